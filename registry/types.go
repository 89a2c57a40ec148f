package registry

import (
	"fmt"
	"strings"

	"github.com/runelang/rune/hash"
)

// TypeInfo describes a registered type for diagnostics and reverse
// lookups.
type TypeInfo struct {
	Item *hash.Item
	Hash hash.Hash
	// Name is the host-facing type name (usually the Go type).
	Name string
}

func (t *TypeInfo) String() string {
	return t.Item.String()
}

// Signature describes a callable for diagnostics. Args of -1 means
// the arity is unknown or variadic.
type Signature struct {
	Item     *hash.Item
	Hash     hash.Hash
	Args     int
	Instance bool
	// SelfType names the receiver type of an instance function.
	SelfType string
}

func (s *Signature) String() string {
	var sb strings.Builder
	sb.WriteString(s.Item.String())
	sb.WriteByte('(')
	if s.Instance {
		sb.WriteString("self")
	}
	args := s.Args
	if s.Instance && args > 0 {
		args--
	}
	for i := 0; i < args; i++ {
		if i > 0 || s.Instance {
			sb.WriteString(", ")
		}
		sb.WriteString("arg")
	}
	if args < 0 {
		sb.WriteString("..")
	}
	sb.WriteByte(')')
	return sb.String()
}

// MetaKind discriminates compile-time metadata entries.
type MetaKind byte

const (
	// MetaStruct is a unit struct.
	MetaStruct MetaKind = iota
	// MetaTupleStruct is a tuple struct with Args fields.
	MetaTupleStruct
	// MetaEnum is an enum type; its variants are separate entries.
	MetaEnum
	// MetaUnitVariant is a fieldless enum variant.
	MetaUnitVariant
	// MetaTupleVariant is a tuple enum variant with Args fields.
	MetaTupleVariant
	// MetaFunction is a callable.
	MetaFunction
	// MetaConst is a constant value.
	MetaConst
)

func (k MetaKind) String() string {
	switch k {
	case MetaStruct:
		return "struct"
	case MetaTupleStruct:
		return "tuple struct"
	case MetaEnum:
		return "enum"
	case MetaUnitVariant:
		return "unit variant"
	case MetaTupleVariant:
		return "tuple variant"
	case MetaFunction:
		return "function"
	case MetaConst:
		return "constant"
	}
	return "meta"
}

// Meta is the compile-time description of one named symbol. The
// compiler frontend resolves names to Meta; the unit builder turns
// Meta into RTTI and constructor entries.
type Meta struct {
	Kind MetaKind
	Item *hash.Item
	Hash hash.Hash
	// Enum is the owning enum's hash for variant entries.
	Enum hash.Hash
	// Args is the field count of tuple structs and tuple variants.
	Args int
}

// ContextErrorKind classifies registry construction failures.
type ContextErrorKind int

const (
	// ErrConflictingMeta means two different declarations share an item.
	ErrConflictingMeta ContextErrorKind = iota
	// ErrConflictingTypeHash means one item resolved to two type hashes.
	ErrConflictingTypeHash
	// ErrConflictingFunction means a function hash is already taken.
	ErrConflictingFunction
	// ErrConflictingConstant means a constant hash is already taken.
	ErrConflictingConstant
	// ErrMissingInstanceType means an instance function referenced a
	// type the module never registered.
	ErrMissingInstanceType
	// ErrInternalAlreadyPresent means an internal enum was installed
	// twice.
	ErrInternalAlreadyPresent
	// ErrConflictingMacro means a macro hash is already taken.
	ErrConflictingMacro
)

// ContextError reports a failed module installation.
type ContextError struct {
	Kind ContextErrorKind
	Item *hash.Item
	Hash hash.Hash
	Name string
}

func (e *ContextError) Error() string {
	switch e.Kind {
	case ErrConflictingMeta:
		return fmt.Sprintf("conflicting meta for item `%s`", e.Item)
	case ErrConflictingTypeHash:
		return fmt.Sprintf("type `%s` already registered with a different hash", e.Item)
	case ErrConflictingFunction:
		return fmt.Sprintf("function `%s` (%s) already registered", e.Item, e.Hash)
	case ErrConflictingConstant:
		return fmt.Sprintf("constant `%s` already registered", e.Item)
	case ErrMissingInstanceType:
		return fmt.Sprintf("instance function `%s` installed on missing type `%s`", e.Name, e.Item)
	case ErrInternalAlreadyPresent:
		return fmt.Sprintf("internal enum `%s` can only be installed once", e.Name)
	case ErrConflictingMacro:
		return fmt.Sprintf("macro `%s` already registered", e.Item)
	}
	return "context error"
}
