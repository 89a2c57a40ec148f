package diagnostics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcePositions(t *testing.T) {
	sources := NewSources()
	id := sources.Insert("main.rn", "fn main() {\n    1 + x\n}\n")

	src, ok := sources.Get(id)
	require.True(t, ok)

	line, col := src.Position(0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 1, col)

	// Offset of the `x` on the second line.
	line, col = src.Position(20)
	assert.Equal(t, 2, line)
	assert.Equal(t, 9, col)
	assert.Equal(t, "    1 + x", src.Line(2))

	// Out-of-range offsets clamp instead of panicking.
	line, _ = src.Position(9999)
	assert.Equal(t, 4, line)
	assert.Equal(t, "", src.Line(99))
}

func TestDiagnosticsAccumulate(t *testing.T) {
	d := NewDiagnostics()
	assert.True(t, d.IsEmpty())

	d.Warning(0, Span{Start: 1, End: 2}, "unused variable %q", "x")
	assert.False(t, d.HasError())

	d.Error(0, Span{Start: 3, End: 4}, "missing function")
	assert.True(t, d.HasError())
	require.Len(t, d.Items(), 2)
	assert.Equal(t, SeverityWarning, d.Items()[0].Severity)
}

func TestEmitRendersSpans(t *testing.T) {
	sources := NewSources()
	id := sources.Insert("main.rn", "fn main() {\n    1 + x\n}\n")

	d := NewDiagnostics()
	d.Error(id, Span{Start: 20, End: 21}, "missing local %q", "x")

	var buf bytes.Buffer
	require.NoError(t, d.Emit(&buf, sources))
	out := buf.String()
	assert.Contains(t, out, "error")
	assert.Contains(t, out, "main.rn:2:9")
	assert.Contains(t, out, "    1 + x")
	assert.Contains(t, out, "^")
}
