package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhamidi/jdec/decompiler"
)

// collectInputs expands class files, directories and jar or zip archives
// into the class files they contain, in a stable order.
func collectInputs(paths []string) ([]decompiler.Input, error) {
	var inputs []decompiler.Input
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		var found []decompiler.Input
		switch ext := filepath.Ext(path); {
		case info.IsDir():
			found, err = scanDirectory(path)
		case ext == ".jar" || ext == ".zip":
			found, err = scanArchive(path)
		case ext == ".class":
			found, err = readClass(path)
		default:
			return nil, fmt.Errorf("unsupported file type: %s (expected .class, .jar, .zip or a directory)", path)
		}
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, found...)
	}
	return inputs, nil
}

func readClass(path string) ([]decompiler.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return []decompiler.Input{{Name: path, Data: data}}, nil
}

func scanDirectory(root string) ([]decompiler.Input, error) {
	var inputs []decompiler.Input
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".class" {
			return nil
		}
		found, err := readClass(path)
		inputs = append(inputs, found...)
		return err
	})
	return inputs, err
}

// scanArchive names entries path!internal/Name.class.
func scanArchive(path string) ([]decompiler.Input, error) {
	zl := decompiler.NewZipLoader(path)
	defer zl.Close()
	names, err := zl.Names()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	inputs := make([]decompiler.Input, 0, len(names))
	for _, name := range names {
		data, err := zl.Load(name)
		if err != nil {
			return nil, fmt.Errorf("%s!%s: %w", path, name, err)
		}
		inputs = append(inputs, decompiler.Input{Name: path + "!" + name + ".class", Data: data})
	}
	return inputs, nil
}
