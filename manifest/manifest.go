// Package manifest handles heron.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest represents a heron.toml project configuration.
type Manifest struct {
	Program Program   `toml:"program"`
	Run     RunConfig `toml:"run"`

	// Dir is the directory containing the heron.toml file (set at load time).
	Dir string `toml:"-"`
}

// Program contains project metadata and file locations.
type Program struct {
	Name   string `toml:"name"`
	Source string `toml:"source"` // assembly source file
	Output string `toml:"output"` // bundle output path
}

// RunConfig configures execution.
type RunConfig struct {
	Trace     bool   `toml:"trace"`      // log each executed instruction
	DumpStack bool   `toml:"dump-stack"` // print final stack after a run
	Verbosity int    `toml:"verbosity"`  // log verbosity for the CLI
	Output    string `toml:"output"`     // dmp destination, "" for stdout
}

// Load parses a heron.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "heron.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Program.Source == "" {
		m.Program.Source = "main.hasm"
	}
	if m.Program.Name == "" {
		base := filepath.Base(m.Program.Source)
		m.Program.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if m.Program.Output == "" {
		m.Program.Output = m.Program.Name + ".hbc"
	}
}

// SourcePath returns the absolute path of the assembly source.
func (m *Manifest) SourcePath() string {
	return filepath.Join(m.Dir, m.Program.Source)
}

// OutputPath returns the absolute path of the bundle output.
func (m *Manifest) OutputPath() string {
	return filepath.Join(m.Dir, m.Program.Output)
}
