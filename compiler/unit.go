package compiler

import (
	"fmt"
	"io"
	"sort"

	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
)

// UnitFnKind discriminates unit function table entries.
type UnitFnKind byte

const (
	// UnitFnOffset is bytecode at an instruction offset.
	UnitFnOffset UnitFnKind = iota
	// UnitFnUnitStruct constructs an empty struct value.
	UnitFnUnitStruct
	// UnitFnTupleStruct constructs a tuple struct from Args values.
	UnitFnTupleStruct
	// UnitFnUnitVariant constructs a fieldless enum variant.
	UnitFnUnitVariant
	// UnitFnTupleVariant constructs a tuple enum variant from Args
	// values.
	UnitFnTupleVariant
)

// UnitFn is one entry of the unit's function table.
type UnitFn struct {
	Kind UnitFnKind
	// Offset is the entry instruction pointer for UnitFnOffset.
	Offset int
	// Call selects the wrapper produced when entering the function.
	Call values.CallKind
	// Args is the declared arity or constructor field count.
	Args int
	// Hash is the constructed type or variant hash for constructors.
	Hash hash.Hash
	// Enum is the owning enum for variant constructors.
	Enum hash.Hash
}

func (f UnitFn) String() string {
	switch f.Kind {
	case UnitFnOffset:
		return fmt.Sprintf("offset ip=%d call=%s args=%d", f.Offset, f.Call, f.Args)
	case UnitFnUnitStruct:
		return fmt.Sprintf("unit-struct %s", f.Hash)
	case UnitFnTupleStruct:
		return fmt.Sprintf("tuple-struct %s args=%d", f.Hash, f.Args)
	case UnitFnUnitVariant:
		return fmt.Sprintf("unit-variant %s::%s", f.Enum, f.Hash)
	case UnitFnTupleVariant:
		return fmt.Sprintf("tuple-variant %s::%s args=%d", f.Enum, f.Hash, f.Args)
	}
	return "unit-fn"
}

// Rtti is the runtime type information of a struct.
type Rtti struct {
	Hash hash.Hash
	Item *hash.Item
}

// VariantRtti is the runtime type information of an enum variant.
type VariantRtti struct {
	Enum hash.Hash
	Hash hash.Hash
	Item *hash.Item
}

// DebugInst is the out-of-band debug record of one instruction.
type DebugInst struct {
	Location diagnostics.Location
	Label    string
	Comment  string
}

// DebugSignature is the debug rendering of a function's declaration.
type DebugSignature struct {
	Item *hash.Item
	Args []string
}

func (s *DebugSignature) String() string {
	out := s.Item.String() + "("
	for i, arg := range s.Args {
		if i > 0 {
			out += ", "
		}
		out += arg
	}
	return out + ")"
}

// DebugInfo carries the optional debug metadata of a unit.
type DebugInfo struct {
	instructions map[int]*DebugInst
	functions    map[hash.Hash]*DebugSignature
}

func newDebugInfo() *DebugInfo {
	return &DebugInfo{
		instructions: make(map[int]*DebugInst),
		functions:    make(map[hash.Hash]*DebugSignature),
	}
}

// InstructionAt returns the debug record for an instruction pointer.
func (d *DebugInfo) InstructionAt(ip int) (*DebugInst, bool) {
	inst, ok := d.instructions[ip]
	return inst, ok
}

// Function returns the debug signature of a function hash.
func (d *DebugInfo) Function(h hash.Hash) (*DebugSignature, bool) {
	sig, ok := d.functions[h]
	return sig, ok
}

// Unit is the frozen, executable product of compilation: instructions,
// function table, static pools, runtime type information, constants
// and optional debug metadata. Units are immutable and safe to share
// between VMs.
type Unit struct {
	instructions []opcodes.Instruction

	functions map[hash.Hash]UnitFn
	reexports map[hash.Hash]hash.Hash

	staticStrings    []*values.StaticString
	staticBytes      [][]byte
	staticObjectKeys [][]string

	rtti        map[hash.Hash]*Rtti
	variantRtti map[hash.Hash]*VariantRtti

	constants map[hash.Hash]values.ConstValue

	prelude map[string]*hash.Item

	debug *DebugInfo
}

// Instruction returns the instruction at ip.
func (u *Unit) Instruction(ip int) (opcodes.Instruction, bool) {
	if ip < 0 || ip >= len(u.instructions) {
		return opcodes.Instruction{}, false
	}
	return u.instructions[ip], true
}

// InstructionCount returns the length of the instruction vector.
func (u *Unit) InstructionCount() int {
	return len(u.instructions)
}

// Function resolves a unit function by hash, following reexports.
func (u *Unit) Function(h hash.Hash) (UnitFn, bool) {
	fn, ok := u.functions[h]
	return fn, ok
}

// Reexport resolves the forwarding target recorded for a hash.
func (u *Unit) Reexport(h hash.Hash) (hash.Hash, bool) {
	target, ok := u.reexports[h]
	return target, ok
}

// LookupString returns the static string at slot.
func (u *Unit) LookupString(slot int) (*values.StaticString, error) {
	if slot < 0 || slot >= len(u.staticStrings) {
		return nil, fmt.Errorf("static string slot %d out of range", slot)
	}
	return u.staticStrings[slot], nil
}

// LookupBytes returns the static byte blob at slot.
func (u *Unit) LookupBytes(slot int) ([]byte, error) {
	if slot < 0 || slot >= len(u.staticBytes) {
		return nil, fmt.Errorf("static bytes slot %d out of range", slot)
	}
	return u.staticBytes[slot], nil
}

// LookupObjectKeys returns the static key set at slot.
func (u *Unit) LookupObjectKeys(slot int) ([]string, error) {
	if slot < 0 || slot >= len(u.staticObjectKeys) {
		return nil, fmt.Errorf("static object keys slot %d out of range", slot)
	}
	return u.staticObjectKeys[slot], nil
}

// LookupRtti resolves struct runtime type information.
func (u *Unit) LookupRtti(h hash.Hash) (*Rtti, bool) {
	rtti, ok := u.rtti[h]
	return rtti, ok
}

// LookupVariantRtti resolves variant runtime type information.
func (u *Unit) LookupVariantRtti(h hash.Hash) (*VariantRtti, bool) {
	rtti, ok := u.variantRtti[h]
	return rtti, ok
}

// Constant resolves a unit constant by hash.
func (u *Unit) Constant(h hash.Hash) (values.ConstValue, bool) {
	constant, ok := u.constants[h]
	return constant, ok
}

// Prelude returns the short-name prelude the unit was compiled with.
func (u *Unit) Prelude() map[string]*hash.Item {
	return u.prelude
}

// DebugInfo returns the unit's debug metadata, or nil when it was
// built without.
func (u *Unit) DebugInfo() *DebugInfo {
	return u.debug
}

// Disassemble renders the unit's function table and instruction
// stream, including debug labels and comments when present.
func (u *Unit) Disassemble(w io.Writer) error {
	hashes := make([]hash.Hash, 0, len(u.functions))
	for h := range u.functions {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	for _, h := range hashes {
		fn := u.functions[h]
		name := h.String()
		if u.debug != nil {
			if sig, ok := u.debug.Function(h); ok {
				name = sig.String()
			}
		}
		if _, err := fmt.Fprintf(w, "fn %s: %s\n", name, fn); err != nil {
			return err
		}
	}

	for ip, inst := range u.instructions {
		if u.debug != nil {
			if rec, ok := u.debug.InstructionAt(ip); ok && rec.Label != "" {
				if _, err := fmt.Fprintf(w, "%s:\n", rec.Label); err != nil {
					return err
				}
			}
		}
		line := fmt.Sprintf("%5d: %s", ip, inst)
		if u.debug != nil {
			if rec, ok := u.debug.InstructionAt(ip); ok && rec.Comment != "" {
				line += " // " + rec.Comment
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
