// Package workspace loads the TOML manifest enumerating a project's
// packages and entry points, and turns it into the (path, source id)
// list the compilation pipeline consumes. The core never parses
// manifests itself; this package is the collaborator that does.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/runelang/rune/diagnostics"
)

// EntryPointKind classifies a manifest entry point.
type EntryPointKind string

const (
	KindBin     EntryPointKind = "bin"
	KindTest    EntryPointKind = "test"
	KindExample EntryPointKind = "example"
	KindBench   EntryPointKind = "bench"
)

// Entry is one declared entry point.
type Entry struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

// Package is the manifest's package section.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Manifest is the decoded project manifest.
type Manifest struct {
	Package  Package `toml:"package"`
	Bins     []Entry `toml:"bin"`
	Tests    []Entry `toml:"test"`
	Examples []Entry `toml:"example"`
	Benches  []Entry `toml:"bench"`

	// dir the manifest was loaded from; entry paths resolve against
	// it.
	dir string
}

// Load reads and decodes a manifest file.
func Load(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.dir = filepath.Dir(path)
	return m, nil
}

// Parse decodes manifest content.
func Parse(content []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Package.Name == "" {
		return nil, fmt.Errorf("manifest is missing package.name")
	}
	return &m, nil
}

// EntryPoint is one resolved script entry point.
type EntryPoint struct {
	Kind EntryPointKind
	Name string
	Path string
}

// EntryPoints lists every declared entry point with paths resolved
// against the manifest directory.
func (m *Manifest) EntryPoints() []EntryPoint {
	var out []EntryPoint
	add := func(kind EntryPointKind, entries []Entry) {
		for _, e := range entries {
			path := e.Path
			if path == "" {
				path = filepath.Join(string(kind)+"s", e.Name+".rn")
			}
			if m.dir != "" && !filepath.IsAbs(path) {
				path = filepath.Join(m.dir, path)
			}
			out = append(out, EntryPoint{Kind: kind, Name: e.Name, Path: path})
		}
	}
	add(KindBin, m.Bins)
	add(KindTest, m.Tests)
	add(KindExample, m.Examples)
	add(KindBench, m.Benches)
	return out
}

// SourceEntry pairs an entry point with its registered source.
type SourceEntry struct {
	EntryPoint
	SourceID diagnostics.SourceID
}

// RegisterSources reads every entry point and inserts it into the
// sources collection, producing the list the compiler frontend
// consumes.
func (m *Manifest) RegisterSources(sources *diagnostics.Sources) ([]SourceEntry, error) {
	entries := m.EntryPoints()
	out := make([]SourceEntry, 0, len(entries))
	for _, entry := range entries {
		content, err := os.ReadFile(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("entry point %s: %w", entry.Name, err)
		}
		id := sources.Insert(entry.Path, string(content))
		out = append(out, SourceEntry{EntryPoint: entry, SourceID: id})
	}
	return out, nil
}
