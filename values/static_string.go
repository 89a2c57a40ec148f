package values

import "github.com/runelang/rune/hash"

// StaticString is an interned, immutable UTF-8 string paired with its
// content hash. Static strings are produced by the unit builder's
// string pool; comparing two of them from the same pool is a slot
// compare, and comparing against arbitrary strings starts with the
// precomputed hash.
type StaticString struct {
	s string
	h hash.Hash
}

// NewStaticString interns the given content.
func NewStaticString(s string) *StaticString {
	return &StaticString{s: s, h: hash.OfString(s)}
}

// String returns the interned content.
func (s *StaticString) String() string {
	return s.s
}

// Hash returns the content hash.
func (s *StaticString) Hash() hash.Hash {
	return s.h
}

// EqString compares against arbitrary string content.
func (s *StaticString) EqString(other string) bool {
	return s.h == hash.OfString(other) && s.s == other
}

// Eq compares two static strings by hash, then content.
func (s *StaticString) Eq(other *StaticString) bool {
	return s.h == other.h && s.s == other.s
}
