package compiler

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// UnitBuilder assembles compiler output into a frozen Unit: it interns
// static data with collision detection, resolves labels into signed
// offsets, records the function table and runtime type information,
// and verifies at link time that every referenced function resolves.
type UnitBuilder struct {
	options Options

	instructions []opcodes.Instruction

	functions map[hash.Hash]UnitFn
	reexports map[hash.Hash]hash.Hash

	staticStrings       []*values.StaticString
	staticStringsRev    map[hash.Hash]int
	staticBytes         [][]byte
	staticBytesRev      map[hash.Hash]int
	staticObjectKeys    [][]string
	staticObjectKeysRev map[hash.Hash]int

	rtti        map[hash.Hash]*Rtti
	variantRtti map[hash.Hash]*VariantRtti

	constants map[hash.Hash]values.ConstValue

	requiredFunctions map[hash.Hash][]diagnostics.Location

	prelude map[string]*hash.Item

	debug *DebugInfo

	consumed bool
}

// NewUnitBuilder returns an empty builder with the given options.
func NewUnitBuilder(options Options) *UnitBuilder {
	b := &UnitBuilder{
		options:             options,
		functions:           make(map[hash.Hash]UnitFn),
		reexports:           make(map[hash.Hash]hash.Hash),
		staticStringsRev:    make(map[hash.Hash]int),
		staticBytesRev:      make(map[hash.Hash]int),
		staticObjectKeysRev: make(map[hash.Hash]int),
		rtti:                make(map[hash.Hash]*Rtti),
		variantRtti:         make(map[hash.Hash]*VariantRtti),
		constants:           make(map[hash.Hash]values.ConstValue),
		requiredFunctions:   make(map[hash.Hash][]diagnostics.Location),
		prelude:             make(map[string]*hash.Item),
	}
	if options.DebugInfo {
		b.debug = newDebugInfo()
	}
	if options.DefaultPrelude {
		b.WithDefaultPrelude()
	}
	return b
}

// InternString interns string content and returns its pool slot.
// Interning is idempotent; distinct content colliding on the content
// hash is a hard error, never silent aliasing.
func (b *UnitBuilder) InternString(s string) (int, error) {
	h := hash.OfString(s)
	if slot, ok := b.staticStringsRev[h]; ok {
		if b.staticStrings[slot].String() != s {
			return 0, &BuildError{Kind: ErrStaticStringHashConflict, Hash: h}
		}
		return slot, nil
	}
	slot := len(b.staticStrings)
	b.staticStrings = append(b.staticStrings, values.NewStaticString(s))
	b.staticStringsRev[h] = slot
	return slot, nil
}

// InternBytes interns a byte blob and returns its pool slot.
func (b *UnitBuilder) InternBytes(content []byte) (int, error) {
	h := hash.OfBytes(content)
	if slot, ok := b.staticBytesRev[h]; ok {
		if !bytes.Equal(b.staticBytes[slot], content) {
			return 0, &BuildError{Kind: ErrStaticBytesHashConflict, Hash: h}
		}
		return slot, nil
	}
	slot := len(b.staticBytes)
	b.staticBytes = append(b.staticBytes, append([]byte(nil), content...))
	b.staticBytesRev[h] = slot
	return slot, nil
}

func objectKeysHash(keys []string) hash.Hash {
	var buf bytes.Buffer
	var frame [8]byte
	for _, key := range keys {
		binary.LittleEndian.PutUint64(frame[:], uint64(len(key)))
		buf.Write(frame[:])
		buf.WriteString(key)
	}
	return hash.OfBytes(buf.Bytes())
}

// InternObjectKeys interns an ordered key set and returns its pool
// slot.
func (b *UnitBuilder) InternObjectKeys(keys []string) (int, error) {
	h := objectKeysHash(keys)
	if slot, ok := b.staticObjectKeysRev[h]; ok {
		if !equalKeys(b.staticObjectKeys[slot], keys) {
			return 0, &BuildError{Kind: ErrStaticObjectKeysHashConflict, Hash: h}
		}
		return slot, nil
	}
	slot := len(b.staticObjectKeys)
	b.staticObjectKeys = append(b.staticObjectKeys, append([]string(nil), keys...))
	b.staticObjectKeysRev[h] = slot
	return slot, nil
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// NewFunction lowers an assembly as the function named by item.
func (b *UnitBuilder) NewFunction(location diagnostics.Location, item *hash.Item, args int, assembly *Assembly, call values.CallKind, debugArgs []string) error {
	h := hash.Type(item)
	if err := b.declareFunction(h, UnitFn{Kind: UnitFnOffset, Offset: len(b.instructions), Call: call, Args: args}); err != nil {
		return err
	}
	b.installDebugSignature(h, item, debugArgs)
	return b.addAssembly(assembly)
}

// NewInstanceFunction lowers an assembly as an instance function:
// both the item's own hash and the receiver-type-mixed instance key
// resolve to it.
func (b *UnitBuilder) NewInstanceFunction(location diagnostics.Location, item *hash.Item, typeHash hash.Hash, name string, args int, assembly *Assembly, call values.CallKind, debugArgs []string) error {
	h := hash.Type(item)
	key := hash.InstanceFunction(typeHash, name)
	fn := UnitFn{Kind: UnitFnOffset, Offset: len(b.instructions), Call: call, Args: args}
	if err := b.declareFunction(h, fn); err != nil {
		return err
	}
	if err := b.declareFunction(key, fn); err != nil {
		return err
	}
	b.installDebugSignature(h, item, debugArgs)
	b.installDebugSignature(key, item, debugArgs)
	return b.addAssembly(assembly)
}

// Reexport forwards the item's hash to another function hash. The
// forward is resolved when the unit is built.
func (b *UnitBuilder) Reexport(item *hash.Item, target hash.Hash) error {
	h := hash.Type(item)
	if _, ok := b.functions[h]; ok {
		return &BuildError{Kind: ErrFunctionConflict, Hash: h}
	}
	if _, ok := b.reexports[h]; ok {
		return &BuildError{Kind: ErrFunctionConflict, Hash: h}
	}
	b.reexports[h] = target
	return nil
}

func (b *UnitBuilder) declareFunction(h hash.Hash, fn UnitFn) error {
	if _, ok := b.functions[h]; ok {
		return &BuildError{Kind: ErrFunctionConflict, Hash: h}
	}
	if _, ok := b.reexports[h]; ok {
		return &BuildError{Kind: ErrFunctionConflict, Hash: h}
	}
	b.functions[h] = fn
	return nil
}

func (b *UnitBuilder) installDebugSignature(h hash.Hash, item *hash.Item, debugArgs []string) {
	if b.debug == nil {
		return
	}
	b.debug.functions[h] = &DebugSignature{Item: item, Args: debugArgs}
}

func (b *UnitBuilder) addAssembly(assembly *Assembly) error {
	base := len(b.instructions)

	for i, ai := range assembly.instructions {
		inst := ai.inst
		if ai.hasLabel {
			target, ok := assembly.labels[ai.label]
			if !ok {
				return &BuildError{Kind: ErrMissingLabel, Label: ai.label.String(), Location: ai.location}
			}
			// Offsets are relative to the next instruction.
			offset := target - (i + 1)
			if offset > math.MaxInt32 || offset < math.MinInt32 {
				return &BuildError{Kind: ErrOffsetOverflow, Label: ai.label.String(), Location: ai.location}
			}
			inst.B = offset
		}

		if inst.Opcode == opcodes.OP_CALL {
			b.requiredFunctions[inst.Hash] = append(b.requiredFunctions[inst.Hash], ai.location)
		}

		ip := base + i
		b.instructions = append(b.instructions, inst)

		if b.debug != nil {
			rec := &DebugInst{Location: ai.location}
			if label, ok := assembly.labelsRev[i]; ok {
				rec.Label = label.String()
			}
			comments := append([]string(nil), assembly.comments[i]...)
			// Collapsed labels survive as comments so no name is lost
			// from debug output.
			for _, extra := range assembly.extraLabels[i] {
				comments = append(comments, "label: "+extra.String())
			}
			rec.Comment = joinComments(comments)
			b.debug.instructions[ip] = rec
		}
	}
	return nil
}

func joinComments(comments []string) string {
	out := ""
	for i, c := range comments {
		if i > 0 {
			out += "; "
		}
		out += c
	}
	return out
}

// InsertMeta installs the runtime type information and constructor
// entries implied by a compile-time meta entry.
func (b *UnitBuilder) InsertMeta(meta *registry.Meta) error {
	switch meta.Kind {
	case registry.MetaStruct:
		if err := b.insertRtti(meta); err != nil {
			return err
		}
		if err := b.declareFunction(meta.Hash, UnitFn{Kind: UnitFnUnitStruct, Hash: meta.Hash}); err != nil {
			return err
		}
	case registry.MetaTupleStruct:
		if err := b.insertRtti(meta); err != nil {
			return err
		}
		if err := b.declareFunction(meta.Hash, UnitFn{Kind: UnitFnTupleStruct, Hash: meta.Hash, Args: meta.Args}); err != nil {
			return err
		}
	case registry.MetaEnum:
		if err := b.insertRtti(meta); err != nil {
			return err
		}
	case registry.MetaUnitVariant:
		if err := b.insertVariantRtti(meta); err != nil {
			return err
		}
		if err := b.declareFunction(meta.Hash, UnitFn{Kind: UnitFnUnitVariant, Hash: meta.Hash, Enum: meta.Enum}); err != nil {
			return err
		}
	case registry.MetaTupleVariant:
		if err := b.insertVariantRtti(meta); err != nil {
			return err
		}
		if err := b.declareFunction(meta.Hash, UnitFn{Kind: UnitFnTupleVariant, Hash: meta.Hash, Enum: meta.Enum, Args: meta.Args}); err != nil {
			return err
		}
	}
	b.installTypeNameConstant(meta.Hash, meta.Item)
	return nil
}

func (b *UnitBuilder) insertRtti(meta *registry.Meta) error {
	if _, ok := b.rtti[meta.Hash]; ok {
		return &BuildError{Kind: ErrRttiConflict, Hash: meta.Hash}
	}
	b.rtti[meta.Hash] = &Rtti{Hash: meta.Hash, Item: meta.Item}
	return nil
}

func (b *UnitBuilder) insertVariantRtti(meta *registry.Meta) error {
	if _, ok := b.variantRtti[meta.Hash]; ok {
		return &BuildError{Kind: ErrRttiConflict, Hash: meta.Hash}
	}
	b.variantRtti[meta.Hash] = &VariantRtti{Enum: meta.Enum, Hash: meta.Hash, Item: meta.Item}
	return nil
}

// InsertConstant installs a unit-level constant under the item's hash.
func (b *UnitBuilder) InsertConstant(item *hash.Item, value values.ConstValue) error {
	h := hash.Type(item)
	if _, ok := b.constants[h]; ok {
		return &BuildError{Kind: ErrConstantConflict, Hash: h}
	}
	b.constants[h] = value
	b.installTypeNameConstant(h, item)
	return nil
}

func (b *UnitBuilder) installTypeNameConstant(h hash.Hash, item *hash.Item) {
	key := hash.Instance(h, hash.ProtocolIntoTypeName.Hash)
	if _, ok := b.constants[key]; !ok {
		b.constants[key] = values.ConstStringValue(item.String())
	}
}

// WithDefaultPrelude seeds the short-name prelude the frontend
// consults before qualified resolution. The prelude is informational
// to the VM.
func (b *UnitBuilder) WithDefaultPrelude() *UnitBuilder {
	for name, item := range DefaultPrelude() {
		b.prelude[name] = item
	}
	return b
}

// PreludeItem resolves a short name against the prelude.
func (b *UnitBuilder) PreludeItem(name string) (*hash.Item, bool) {
	item, ok := b.prelude[name]
	return item, ok
}

// Link verifies that every function the unit requires resolves in the
// unit's own table, its reexports, or the context. Missing functions
// are reported as diagnostics and returned with all their call sites.
func (b *UnitBuilder) Link(ctx *registry.Context, d *diagnostics.Diagnostics) []*LinkerError {
	var errs []*LinkerError
	for h, locations := range b.requiredFunctions {
		if _, ok := b.functions[h]; ok {
			continue
		}
		if _, ok := b.reexports[h]; ok {
			continue
		}
		if ctx != nil {
			if _, ok := ctx.LookupFunction(h); ok {
				continue
			}
		}
		err := &LinkerError{Hash: h, Locations: append([]diagnostics.Location(nil), locations...)}
		errs = append(errs, err)
		if d != nil {
			for _, location := range locations {
				d.Error(location.SourceID, location.Span, "missing function %s", h)
			}
		}
	}
	return errs
}

// Build consumes the builder and returns the immutable unit. The
// builder must be exclusively held: a second Build fails.
func (b *UnitBuilder) Build() (*Unit, error) {
	if b.consumed {
		return nil, &BuildError{Kind: ErrNotExclusivelyHeld}
	}
	b.consumed = true

	for h, target := range b.reexports {
		fn, ok := b.functions[target]
		if !ok {
			return nil, &BuildError{Kind: ErrMissingReexportTarget, Hash: target}
		}
		b.functions[h] = fn
	}

	return &Unit{
		instructions:     b.instructions,
		functions:        b.functions,
		reexports:        b.reexports,
		staticStrings:    b.staticStrings,
		staticBytes:      b.staticBytes,
		staticObjectKeys: b.staticObjectKeys,
		rtti:             b.rtti,
		variantRtti:      b.variantRtti,
		constants:        b.constants,
		prelude:          b.prelude,
		debug:            b.debug,
	}, nil
}
