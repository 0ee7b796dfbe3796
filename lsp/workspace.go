// Package lsp serves reconstruction diagnostics for class files to editors.
package lsp

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dhamidi/jdec/decompiler"
)

// Workspace holds the decompiled class files under a root directory.
type Workspace struct {
	mu      sync.RWMutex
	rootDir string
	opts    decompiler.Options
	files   map[string]*File
}

type File struct {
	Path   string
	Data   []byte
	Result *decompiler.Result
	Err    error
}

func NewWorkspace(rootDir string, opts decompiler.Options) *Workspace {
	return &Workspace{
		rootDir: rootDir,
		opts:    opts,
		files:   make(map[string]*File),
	}
}

func (w *Workspace) RootDir() string {
	return w.rootDir
}

// ScanAll decompiles every class file below the root, skipping hidden
// directories.
func (w *Workspace) ScanAll() error {
	return filepath.WalkDir(w.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.rootDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsClassFile(path) {
			w.ScanFile(path)
		}
		return nil
	})
}

func (w *Workspace) ScanFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return w.UpdateFile(path, data), nil
}

// UpdateFile decompiles data as the content of path. Unchanged content
// keeps its earlier result.
func (w *Workspace) UpdateFile(path string, data []byte) *File {
	w.mu.RLock()
	old := w.files[path]
	w.mu.RUnlock()
	if old != nil && string(old.Data) == string(data) {
		return old
	}

	f := &File{Path: path, Data: data}
	f.Result, f.Err = decompiler.Decompile(data, w.opts)
	if f.Err != nil {
		log.Debugf("%s: %v", path, f.Err)
	}

	w.mu.Lock()
	w.files[path] = f
	w.mu.Unlock()
	return f
}

func (w *Workspace) RemoveFile(path string) {
	w.mu.Lock()
	delete(w.files, path)
	w.mu.Unlock()
}

func (w *Workspace) GetFile(path string) *File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.files[path]
}

// Files returns the known paths in order.
func (w *Workspace) Files() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func IsClassFile(path string) bool {
	return filepath.Ext(path) == ".class"
}
