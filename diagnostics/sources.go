package diagnostics

import (
	"sort"
	"strings"
)

// Source is one named UTF-8 source text.
type Source struct {
	name    string
	content string
	// Byte offsets of line starts, computed once on insertion.
	lineStarts []int
}

func newSource(name, content string) *Source {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Source{name: name, content: content, lineStarts: starts}
}

// Name returns the source's display name.
func (s *Source) Name() string {
	return s.name
}

// Content returns the full text.
func (s *Source) Content() string {
	return s.content
}

// Position translates a byte offset into a 1-based line and column.
func (s *Source) Position(offset int) (line, column int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.content) {
		offset = len(s.content)
	}
	i := sort.Search(len(s.lineStarts), func(i int) bool {
		return s.lineStarts[i] > offset
	}) - 1
	return i + 1, offset - s.lineStarts[i] + 1
}

// Line returns the text of the 1-based line without its newline.
func (s *Source) Line(line int) string {
	if line < 1 || line > len(s.lineStarts) {
		return ""
	}
	start := s.lineStarts[line-1]
	end := len(s.content)
	if line < len(s.lineStarts) {
		end = s.lineStarts[line] - 1
	}
	return strings.TrimSuffix(s.content[start:end], "\r")
}

// Sources is the collection of source files a unit was compiled from.
// IDs are dense and stable in insertion order.
type Sources struct {
	sources []*Source
}

// NewSources returns an empty collection.
func NewSources() *Sources {
	return &Sources{}
}

// Insert adds a source and returns its ID.
func (s *Sources) Insert(name, content string) SourceID {
	s.sources = append(s.sources, newSource(name, content))
	return SourceID(len(s.sources) - 1)
}

// Get returns the source with the given ID.
func (s *Sources) Get(id SourceID) (*Source, bool) {
	if int(id) < 0 || int(id) >= len(s.sources) {
		return nil, false
	}
	return s.sources[id], true
}

// Name returns the display name for the ID, or a placeholder.
func (s *Sources) Name(id SourceID) string {
	if src, ok := s.Get(id); ok {
		return src.Name()
	}
	return "<unknown>"
}

// Len returns the number of sources.
func (s *Sources) Len() int {
	return len(s.sources)
}
