package lsp

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/dhamidi/jdec/decompiler"

	_ "github.com/tliron/commonlog/simple"
)

const lsName = "jdec"

// Commands answered through workspace/executeCommand.
const (
	// CommandDecompile takes a class file URI and an optional format name
	// and returns the encoded result.
	CommandDecompile = "jdec.decompile"
	// CommandCFG takes a class file URI, a method name, and optionally a
	// descriptor and a stage, and returns the graph in DOT form.
	CommandCFG = "jdec.cfg"
)

var log = commonlog.GetLogger("jdec.lsp")

type Server struct {
	workspace *Workspace
	opts      decompiler.Options
	handler   protocol.Handler
	server    *server.Server
	version   string

	mu     sync.Mutex
	open   map[string]bool
	notify glsp.NotifyFunc
	cancel context.CancelFunc
}

func NewServer(version string, opts decompiler.Options) *Server {
	ls := &Server{
		version: version,
		opts:    opts,
		open:    make(map[string]bool),
	}

	ls.handler = protocol.Handler{
		Initialize:              ls.initialize,
		Initialized:             ls.initialized,
		Shutdown:                ls.shutdown,
		SetTrace:                ls.setTrace,
		TextDocumentDidOpen:     ls.textDocumentDidOpen,
		TextDocumentDidClose:    ls.textDocumentDidClose,
		TextDocumentDidSave:     ls.textDocumentDidSave,
		WorkspaceExecuteCommand: ls.executeCommand,
	}

	ls.server = server.NewServer(&ls.handler, lsName, false)

	return ls
}

func (ls *Server) RunStdio() error {
	return ls.server.RunStdio()
}

func (ls *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	rootDir := "."
	if params.RootPath != nil && *params.RootPath != "" {
		rootDir = *params.RootPath
	} else if params.RootURI != nil && *params.RootURI != "" {
		if path, err := uriToPath(*params.RootURI); err == nil {
			rootDir = path
		}
	}

	ls.workspace = NewWorkspace(rootDir, ls.opts)

	capabilities := ls.handler.CreateServerCapabilities()

	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Save:      &protocol.SaveOptions{IncludeText: boolPtr(false)},
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{CommandDecompile, CommandCFG},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &ls.version,
		},
	}, nil
}

// initialized scans the workspace and keeps diagnostics of open files
// current while class files change on disk.
func (ls *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	ls.notify = ctx.Notify
	if err := ls.workspace.ScanAll(); err != nil {
		log.Warningf("scan %s: %v", ls.workspace.RootDir(), err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel
	go func() {
		if err := Watch(watchCtx, ls.workspace.RootDir(), 0, ls.filesChanged); err != nil {
			log.Errorf("watch %s: %v", ls.workspace.RootDir(), err)
		}
	}()
	return nil
}

func (ls *Server) filesChanged(paths []string) {
	for _, path := range paths {
		if _, err := ls.workspace.ScanFile(path); err != nil {
			ls.workspace.RemoveFile(path)
		}
		if ls.isOpen(path) {
			ls.publish(ls.notify, path)
		}
	}
}

func (ls *Server) shutdown(ctx *glsp.Context) error {
	if ls.cancel != nil {
		ls.cancel()
	}
	return nil
}

func (ls *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func (ls *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil || !IsClassFile(path) {
		return nil
	}
	ls.setOpen(path, true)
	if _, err := ls.workspace.ScanFile(path); err != nil {
		log.Warningf("%s: %v", path, err)
		return nil
	}
	ls.publish(ctx.Notify, path)
	return nil
}

func (ls *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil
	}
	ls.setOpen(path, false)
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         pathToURI(path),
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (ls *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil || !IsClassFile(path) {
		return nil
	}
	if _, err := ls.workspace.ScanFile(path); err != nil {
		return nil
	}
	ls.publish(ctx.Notify, path)
	return nil
}

func (ls *Server) setOpen(path string, open bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if open {
		ls.open[path] = true
	} else {
		delete(ls.open, path)
	}
}

func (ls *Server) isOpen(path string) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.open[path]
}

func (ls *Server) publish(notify glsp.NotifyFunc, path string) {
	if notify == nil {
		return
	}
	notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         pathToURI(path),
		Diagnostics: Diagnostics(ls.workspace.GetFile(path)),
	})
}

func (ls *Server) executeCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	return ls.workspace.Execute(params.Command, stringArgs(params.Arguments))
}

func uriToPath(uri string) (string, error) {
	if strings.HasPrefix(uri, "file://") {
		parsed, err := url.Parse(uri)
		if err != nil {
			return "", err
		}
		return filepath.Clean(parsed.Path), nil
	}
	return uri, nil
}

func pathToURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func boolPtr(b bool) *bool {
	return &b
}
