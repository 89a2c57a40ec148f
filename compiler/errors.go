package compiler

import (
	"fmt"

	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/hash"
)

// BuildErrorKind classifies unit construction failures.
type BuildErrorKind int

const (
	// ErrStaticStringHashConflict means two distinct strings collided
	// in the static string pool.
	ErrStaticStringHashConflict BuildErrorKind = iota
	// ErrStaticBytesHashConflict is the byte-pool analogue.
	ErrStaticBytesHashConflict
	// ErrStaticObjectKeysHashConflict is the key-set-pool analogue.
	ErrStaticObjectKeysHashConflict
	// ErrFunctionConflict means a function hash was declared twice.
	ErrFunctionConflict
	// ErrRttiConflict means type information was installed twice.
	ErrRttiConflict
	// ErrConstantConflict means a constant hash was declared twice.
	ErrConstantConflict
	// ErrMissingLabel means a jump referenced a label that was never
	// bound to a position.
	ErrMissingLabel
	// ErrDuplicateLabel means a label was bound twice.
	ErrDuplicateLabel
	// ErrOffsetOverflow means a resolved jump did not fit the
	// instruction encoding.
	ErrOffsetOverflow
	// ErrMissingReexportTarget means a reexport pointed at a function
	// absent from the unit.
	ErrMissingReexportTarget
	// ErrNotExclusivelyHeld means Build was called on a builder that
	// was already consumed.
	ErrNotExclusivelyHeld
)

// BuildError reports a failed unit builder operation.
type BuildError struct {
	Kind     BuildErrorKind
	Hash     hash.Hash
	Label    string
	Location diagnostics.Location
}

func (e *BuildError) Error() string {
	switch e.Kind {
	case ErrStaticStringHashConflict:
		return fmt.Sprintf("static string hash collision at %s", e.Hash)
	case ErrStaticBytesHashConflict:
		return fmt.Sprintf("static bytes hash collision at %s", e.Hash)
	case ErrStaticObjectKeysHashConflict:
		return fmt.Sprintf("static object keys hash collision at %s", e.Hash)
	case ErrFunctionConflict:
		return fmt.Sprintf("function %s already declared in unit", e.Hash)
	case ErrRttiConflict:
		return fmt.Sprintf("type information for %s already declared", e.Hash)
	case ErrConstantConflict:
		return fmt.Sprintf("constant %s already declared in unit", e.Hash)
	case ErrMissingLabel:
		return fmt.Sprintf("jump to unbound label %q", e.Label)
	case ErrDuplicateLabel:
		return fmt.Sprintf("label %q bound twice", e.Label)
	case ErrOffsetOverflow:
		return fmt.Sprintf("jump to label %q overflows the offset encoding", e.Label)
	case ErrMissingReexportTarget:
		return fmt.Sprintf("reexport target %s missing from unit", e.Hash)
	case ErrNotExclusivelyHeld:
		return "unit builder is not exclusively held"
	}
	return "unit build error"
}

// LinkerError reports a function referenced by the unit that neither
// the unit nor the context can resolve. Every call site is attached.
type LinkerError struct {
	Hash      hash.Hash
	Locations []diagnostics.Location
}

func (e *LinkerError) Error() string {
	return fmt.Sprintf("missing function %s referenced from %d call sites", e.Hash, len(e.Locations))
}
