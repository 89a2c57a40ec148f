package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/diagnostics"
)

const manifest = `
[package]
name = "sample"
version = "0.1.0"

[[bin]]
name = "main"
path = "src/main.rn"

[[test]]
name = "smoke"

[[example]]
name = "hello"
path = "examples/hello.rn"
`

func TestParseManifest(t *testing.T) {
	m, err := Parse([]byte(manifest))
	require.NoError(t, err)
	assert.Equal(t, "sample", m.Package.Name)
	require.Len(t, m.Bins, 1)
	require.Len(t, m.Tests, 1)

	entries := m.EntryPoints()
	require.Len(t, entries, 3)
	assert.Equal(t, KindBin, entries[0].Kind)
	assert.Equal(t, filepath.Join("src", "main.rn"), entries[0].Path)
	// Omitted paths fall back to the conventional directory.
	assert.Equal(t, filepath.Join("tests", "smoke.rn"), entries[1].Path)
}

func TestParseRejectsMissingName(t *testing.T) {
	_, err := Parse([]byte("[package]\nversion = \"1.0\"\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("not toml ["))
	assert.Error(t, err)
}

func TestRegisterSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "main.rn"), []byte("fn main() {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Rune.toml"), []byte(`
[package]
name = "sample"

[[bin]]
name = "main"
path = "src/main.rn"
`), 0o644))

	m, err := Load(filepath.Join(dir, "Rune.toml"))
	require.NoError(t, err)

	sources := diagnostics.NewSources()
	entries, err := m.RegisterSources(sources)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	src, ok := sources.Get(entries[0].SourceID)
	require.True(t, ok)
	assert.Equal(t, "fn main() {}", src.Content())
}

func TestRegisterSourcesMissingFile(t *testing.T) {
	m, err := Parse([]byte("[package]\nname = \"sample\"\n\n[[bin]]\nname = \"main\"\n"))
	require.NoError(t, err)
	_, err = m.RegisterSources(diagnostics.NewSources())
	assert.Error(t, err)
}
