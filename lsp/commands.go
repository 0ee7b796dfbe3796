package lsp

import (
	"bytes"
	"fmt"

	"github.com/dhamidi/jdec/cfg"
	"github.com/dhamidi/jdec/decompiler"
	"github.com/dhamidi/jdec/format"
)

// Execute runs one of the server commands against the workspace.
func (w *Workspace) Execute(command string, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%s: missing class file argument", command)
	}
	path, err := uriToPath(args[0])
	if err != nil {
		return "", err
	}
	f := w.GetFile(path)
	if f == nil {
		if f, err = w.ScanFile(path); err != nil {
			return "", err
		}
	}
	if f.Err != nil {
		return "", f.Err
	}

	switch command {
	case CommandDecompile:
		name := "tree"
		if len(args) > 1 {
			name = args[1]
		}
		var buf bytes.Buffer
		enc, err := format.New(name, &buf)
		if err != nil {
			return "", err
		}
		if err := enc.Encode(f.Result); err != nil {
			return "", err
		}
		return buf.String(), nil
	case CommandCFG:
		if len(args) < 2 {
			return "", fmt.Errorf("%s: missing method argument", command)
		}
		method, desc, stage := args[1], "", cfg.StageFull
		if len(args) > 2 {
			desc = args[2]
		}
		if len(args) > 3 {
			if stage, err = cfg.ParseStage(args[3]); err != nil {
				return "", err
			}
		}
		g, err := decompiler.Graph(f.Data, method, desc, stage)
		if err != nil {
			return "", err
		}
		return g.DOT(f.Result.Class + "." + method + desc), nil
	}
	return "", fmt.Errorf("unknown command %q", command)
}

func stringArgs(args []any) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if s, ok := a.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprint(a))
		}
	}
	return out
}

