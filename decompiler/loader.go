package decompiler

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by a Loader that has no class of the given name.
var ErrNotFound = errors.New("class not found")

// Loader resolves internal class names (java/util/List) to class file bytes.
// Implementations must be safe for concurrent use.
type Loader interface {
	Load(internalName string) ([]byte, error)
}

// DirLoader loads classes from a directory tree laid out by package.
type DirLoader struct {
	Root string
}

func (l DirLoader) Load(name string) ([]byte, error) {
	path := filepath.Join(l.Root, filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return data, err
}

// ZipLoader loads classes from a jar or zip archive. The archive is opened
// on first use and kept open until Close.
type ZipLoader struct {
	Path string

	once    sync.Once
	mu      sync.Mutex
	reader  *zip.ReadCloser
	entries map[string]*zip.File
	err     error
}

func NewZipLoader(path string) *ZipLoader {
	return &ZipLoader{Path: path}
}

func (l *ZipLoader) open() {
	l.reader, l.err = zip.OpenReader(l.Path)
	if l.err != nil {
		return
	}
	l.entries = make(map[string]*zip.File, len(l.reader.File))
	for _, f := range l.reader.File {
		if strings.HasSuffix(f.Name, ".class") {
			l.entries[strings.TrimSuffix(f.Name, ".class")] = f
		}
	}
}

func (l *ZipLoader) Load(name string) ([]byte, error) {
	l.once.Do(l.open)
	if l.err != nil {
		return nil, fmt.Errorf("open %s: %w", l.Path, l.err)
	}
	f, ok := l.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in %s: %w", f.Name, l.Path, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Names lists the classes in the archive in archive order.
func (l *ZipLoader) Names() ([]string, error) {
	l.once.Do(l.open)
	if l.err != nil {
		return nil, l.err
	}
	var names []string
	for _, f := range l.reader.File {
		if strings.HasSuffix(f.Name, ".class") {
			names = append(names, strings.TrimSuffix(f.Name, ".class"))
		}
	}
	return names, nil
}

func (l *ZipLoader) Close() error {
	if l.reader == nil {
		return nil
	}
	return l.reader.Close()
}

// MultiLoader tries each loader in order and returns the first hit.
type MultiLoader []Loader

func (ls MultiLoader) Load(name string) ([]byte, error) {
	for _, l := range ls {
		data, err := l.Load(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// MapLoader serves classes from memory, keyed by internal name.
type MapLoader map[string][]byte

func (l MapLoader) Load(name string) ([]byte, error) {
	if data, ok := l[name]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
}

// ClasspathLoader builds a loader from classpath entries: directories are
// read as package trees, anything else as an archive.
func ClasspathLoader(entries []string) MultiLoader {
	var out MultiLoader
	for _, e := range entries {
		if e == "" {
			continue
		}
		if info, err := os.Stat(e); err == nil && info.IsDir() {
			out = append(out, DirLoader{Root: e})
			continue
		}
		out = append(out, NewZipLoader(e))
	}
	return out
}
