package diagnostics

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	errorHeader   = color.New(color.FgRed, color.Bold)
	warningHeader = color.New(color.FgYellow, color.Bold)
	locationText  = color.New(color.FgCyan)
	underlineText = color.New(color.FgRed, color.Bold)
)

// Emit renders every recorded diagnostic against the given sources:
// a severity header, the file:line:column location, the offending
// source line and a caret underline covering the span.
func (d *Diagnostics) Emit(w io.Writer, sources *Sources) error {
	for _, item := range d.items {
		if err := emitOne(w, sources, item); err != nil {
			return err
		}
	}
	return nil
}

func emitOne(w io.Writer, sources *Sources, item Diagnostic) error {
	header := warningHeader
	if item.Severity == SeverityError {
		header = errorHeader
	}
	if _, err := fmt.Fprintf(w, "%s: %s\n", header.Sprint(item.Severity), item.Message); err != nil {
		return err
	}

	src, ok := sources.Get(item.SourceID)
	if !ok {
		_, err := fmt.Fprintln(w)
		return err
	}

	line, column := src.Position(item.Span.Start)
	if _, err := fmt.Fprintf(w, "  %s %s:%d:%d\n", locationText.Sprint("-->"), src.Name(), line, column); err != nil {
		return err
	}

	text := src.Line(line)
	if _, err := fmt.Fprintf(w, "   |\n%3d| %s\n", line, text); err != nil {
		return err
	}

	width := item.Span.End - item.Span.Start
	if width < 1 {
		width = 1
	}
	if column-1+width > len(text) {
		width = len(text) - column + 1
		if width < 1 {
			width = 1
		}
	}
	underline := strings.Repeat(" ", column-1) + underlineText.Sprint(strings.Repeat("^", width))
	_, err := fmt.Fprintf(w, "   | %s\n\n", underline)
	return err
}
