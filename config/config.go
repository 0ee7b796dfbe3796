// Package config reads the jdec options file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dhamidi/jdec/decompiler"
	"github.com/dhamidi/jdec/idiom"
)

// FileName is the options file looked up in the working directory.
const FileName = "jdec.yaml"

type Config struct {
	Workers        int      `yaml:"workers"`
	MaxRounds      int      `yaml:"max_rounds"`
	PreReduce      bool     `yaml:"pre_reduce"`
	Format         string   `yaml:"format"`
	Classpath      []string `yaml:"classpath"`
	DisabledIdioms []string `yaml:"disabled_idioms"`
}

func Default() *Config {
	return &Config{Format: "tree"}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Find loads path when it is set, else FileName from dir when present,
// else the defaults.
func Find(path, dir string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	candidate := filepath.Join(dir, FileName)
	if _, err := os.Stat(candidate); err != nil {
		return Default(), nil
	}
	return Load(candidate)
}

func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must not be negative, got %d", c.MaxRounds)
	}
	switch c.Format {
	case "tree", "json", "line":
	default:
		return fmt.Errorf("unknown format %q (expected tree, json or line)", c.Format)
	}
	known := make(map[string]bool, len(idiom.Names))
	for _, n := range idiom.Names {
		known[n] = true
	}
	for _, n := range c.DisabledIdioms {
		if !known[n] {
			return fmt.Errorf("unknown idiom %q in disabled_idioms", n)
		}
	}
	return nil
}

// Options converts the file to decompiler options. The classpath becomes
// the loader.
func (c *Config) Options() decompiler.Options {
	opts := decompiler.Options{
		Workers:        c.Workers,
		MaxRounds:      c.MaxRounds,
		PreReduce:      c.PreReduce,
		DisabledIdioms: c.DisabledIdioms,
	}
	if len(c.Classpath) > 0 {
		opts.Loader = decompiler.ClasspathLoader(c.Classpath)
	}
	return opts
}
