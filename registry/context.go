package registry

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
)

// Context is the build-time registry of host-provided types, functions,
// macros and constants that scripts resolve against. It is mutated by
// Install and then snapshotted into a RuntimeContext for execution.
type Context struct {
	mu sync.RWMutex

	unique map[uuid.UUID]struct{}
	crates map[string]struct{}

	meta       map[string]*Meta
	metaByHash map[hash.Hash]*Meta
	items      []*hash.Item

	functions     map[hash.Hash]values.Handler
	macros        map[hash.Hash]MacroHandler
	functionsInfo map[hash.Hash]*Signature

	types    map[hash.Hash]*TypeInfo
	typesRev map[string]hash.Hash

	internals map[string]struct{}

	constants map[hash.Hash]values.ConstValue
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{
		unique:        make(map[uuid.UUID]struct{}),
		crates:        make(map[string]struct{}),
		meta:          make(map[string]*Meta),
		metaByHash:    make(map[hash.Hash]*Meta),
		functions:     make(map[hash.Hash]values.Handler),
		macros:        make(map[hash.Hash]MacroHandler),
		functionsInfo: make(map[hash.Hash]*Signature),
		types:         make(map[hash.Hash]*TypeInfo),
		typesRev:      make(map[string]hash.Hash),
		internals:     make(map[string]struct{}),
		constants:     make(map[hash.Hash]values.ConstValue),
	}
}

// Install registers every declaration of the module. Installing the
// same module value twice is a no-op; distinct modules that declare
// the same symbols fail with a ContextError.
func (c *Context) Install(m *Module) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.unique[m.id]; ok {
		return nil
	}

	if first := m.item.Components(); len(first) > 0 && first[0].Kind == hash.ComponentCrate {
		c.crates[first[0].Str] = struct{}{}
	}

	for _, t := range m.types {
		if err := c.installType(t); err != nil {
			return err
		}
	}
	for _, enum := range m.internals {
		if err := c.installInternalEnum(enum); err != nil {
			return err
		}
	}
	for _, fn := range m.functions {
		if err := c.installFunction(m, fn); err != nil {
			return err
		}
	}
	for _, mac := range m.macros {
		if err := c.installMacro(m, mac); err != nil {
			return err
		}
	}
	for _, constant := range m.constants {
		if err := c.installConstant(m, constant); err != nil {
			return err
		}
	}

	c.unique[m.id] = struct{}{}
	return nil
}

func (c *Context) installType(t *moduleType) error {
	if existing, ok := c.meta[t.item.String()]; ok {
		if existing.Hash != t.hash {
			return &ContextError{Kind: ErrConflictingTypeHash, Item: t.item, Hash: t.hash}
		}
		return &ContextError{Kind: ErrConflictingMeta, Item: t.item}
	}
	c.insertMeta(&Meta{Kind: MetaStruct, Item: t.item, Hash: t.hash})
	c.types[t.hash] = &TypeInfo{Item: t.item, Hash: t.hash, Name: t.goName}
	c.typesRev[t.goName] = t.hash
	c.installTypeNameConstant(t.hash, t.item)
	return nil
}

func (c *Context) installInternalEnum(enum *internalEnum) error {
	if _, ok := c.internals[enum.name]; ok {
		return &ContextError{Kind: ErrInternalAlreadyPresent, Name: enum.name}
	}
	c.internals[enum.name] = struct{}{}

	c.insertMeta(&Meta{Kind: MetaEnum, Item: enum.item, Hash: enum.hash})
	c.types[enum.hash] = &TypeInfo{Item: enum.item, Hash: enum.hash, Name: enum.name}
	c.installTypeNameConstant(enum.hash, enum.item)

	for _, variant := range enum.variants {
		item := enum.item.Child(variant.name)
		c.insertMeta(&Meta{
			Kind: variant.kind,
			Item: item,
			Hash: variant.hash,
			Enum: enum.hash,
			Args: variant.args,
		})
		// Constructible variants come with a companion constructor
		// function at the variant's own hash.
		if _, ok := c.functions[variant.hash]; ok {
			return &ContextError{Kind: ErrConflictingFunction, Item: item, Hash: variant.hash}
		}
		c.functions[variant.hash] = variant.constructor
		c.functionsInfo[variant.hash] = &Signature{Item: item, Hash: variant.hash, Args: variant.args}
		c.installTypeNameConstant(variant.hash, item)
	}
	return nil
}

func (c *Context) installFunction(m *Module, fn *moduleFunction) error {
	var key hash.Hash
	var item *hash.Item
	signature := &Signature{Args: fn.args, Instance: fn.instance}

	if fn.instance {
		t, ok := m.typeIndex[fn.typeName]
		if !ok {
			return &ContextError{Kind: ErrMissingInstanceType, Item: m.item.Child(fn.typeName), Name: fn.name}
		}
		item = t.item.Child(fn.name)
		if fn.protocol != nil {
			key = hash.Instance(t.hash, fn.protocol.Hash)
		} else {
			key = hash.InstanceFunction(t.hash, fn.name)
		}
		signature.SelfType = t.goName
	} else {
		item = m.item.Child(fn.name)
		key = hash.Type(item)
	}
	signature.Item = item
	signature.Hash = key

	if _, ok := c.functions[key]; ok {
		return &ContextError{Kind: ErrConflictingFunction, Item: item, Hash: key}
	}
	c.functions[key] = fn.handler
	c.functionsInfo[key] = signature
	if !fn.instance {
		c.insertMeta(&Meta{Kind: MetaFunction, Item: item, Hash: key, Args: fn.args})
		c.installTypeNameConstant(key, item)
	}
	return nil
}

func (c *Context) installMacro(m *Module, mac *moduleMacro) error {
	item := m.item.Child(mac.name)
	key := hash.Type(item)
	if _, ok := c.macros[key]; ok {
		return &ContextError{Kind: ErrConflictingMacro, Item: item, Hash: key}
	}
	c.macros[key] = mac.handler
	return nil
}

func (c *Context) installConstant(m *Module, constant *moduleConstant) error {
	item := m.item.Child(constant.name)
	key := hash.Type(item)
	if _, ok := c.constants[key]; ok {
		return &ContextError{Kind: ErrConflictingConstant, Item: item, Hash: key}
	}
	c.constants[key] = constant.value
	c.insertMeta(&Meta{Kind: MetaConst, Item: item, Hash: key})
	c.installTypeNameConstant(key, item)
	return nil
}

func (c *Context) insertMeta(meta *Meta) {
	c.meta[meta.Item.String()] = meta
	c.metaByHash[meta.Hash] = meta
	c.items = append(c.items, meta.Item)
}

// installTypeNameConstant folds the symbol's display name into a
// constant under the into-type-name protocol so typeof-style queries
// resolve without calling into the host.
func (c *Context) installTypeNameConstant(h hash.Hash, item *hash.Item) {
	key := hash.Instance(h, hash.ProtocolIntoTypeName.Hash)
	c.constants[key] = values.ConstStringValue(item.String())
}

// LookupFunction resolves a native handler by hash.
func (c *Context) LookupFunction(h hash.Hash) (values.Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.functions[h]
	return fn, ok
}

// LookupMacro resolves a macro handler by hash.
func (c *Context) LookupMacro(h hash.Hash) (MacroHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mac, ok := c.macros[h]
	return mac, ok
}

// LookupMeta resolves compile-time metadata by item.
func (c *Context) LookupMeta(item *hash.Item) (*Meta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.meta[item.String()]
	return meta, ok
}

// LookupMetaByHash resolves compile-time metadata by hash.
func (c *Context) LookupMetaByHash(h hash.Hash) (*Meta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.metaByHash[h]
	return meta, ok
}

// LookupSignature resolves a callable's diagnostic signature by hash.
func (c *Context) LookupSignature(h hash.Hash) (*Signature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.functionsInfo[h]
	return sig, ok
}

// LookupType resolves a registered type by hash.
func (c *Context) LookupType(h hash.Hash) (*TypeInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[h]
	return t, ok
}

// TypeHashFor resolves the type hash registered for a host Go type
// name, the reverse of Ty.
func (c *Context) TypeHashFor(goName string) (hash.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.typesRev[goName]
	return h, ok
}

// HasCrate reports whether any installed module is rooted in the
// given crate.
func (c *Context) HasCrate(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.crates[name]
	return ok
}

// Constant resolves a constant by hash.
func (c *Context) Constant(h hash.Hash) (values.ConstValue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	constant, ok := c.constants[h]
	return constant, ok
}

// TypeCheckFor translates a type or variant hash into the shape tag
// used by the VM's pattern-match instructions.
func (c *Context) TypeCheckFor(h hash.Hash) (opcodes.TypeCheck, bool) {
	switch h {
	case values.UnitTypeHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckUnit}, true
	case values.TupleTypeHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckTuple}, true
	case values.VecTypeHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckVec}, true
	case values.ObjectTypeHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckObject}, true
	case values.ResultOkHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckResult, Index: 0}, true
	case values.ResultErrHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckResult, Index: 1}, true
	case values.OptionSomeHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckOption, Index: 0}, true
	case values.OptionNoneHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckOption, Index: 1}, true
	case values.GeneratorStateYieldedHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckGeneratorState, Index: 0}, true
	case values.GeneratorStateCompleteHash:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckGeneratorState, Index: 1}, true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.metaByHash[h]
	if !ok {
		return opcodes.TypeCheck{}, false
	}
	switch meta.Kind {
	case MetaUnitVariant, MetaTupleVariant:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckVariant, Hash: h}, true
	case MetaStruct, MetaTupleStruct:
		return opcodes.TypeCheck{Kind: opcodes.TypeCheckType, Hash: h}, true
	}
	return opcodes.TypeCheck{}, false
}

// IterComponents enumerates the distinct direct children of the given
// prefix, in sorted order. Consumers are completion and documentation
// tooling, never the VM.
func (c *Context) IterComponents(prefix *hash.Item) []hash.Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]hash.Component)
	for _, item := range c.items {
		if item.Len() <= prefix.Len() || !item.StartsWith(prefix) {
			continue
		}
		component := item.Components()[prefix.Len()]
		seen[component.String()] = component
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]hash.Component, 0, len(keys))
	for _, k := range keys {
		out = append(out, seen[k])
	}
	return out
}

// Runtime snapshots the functions and constants the VM needs. The
// snapshot is immutable and safe to share across threads.
func (c *Context) Runtime() *RuntimeContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	functions := make(map[hash.Hash]values.Handler, len(c.functions))
	for k, v := range c.functions {
		functions[k] = v
	}
	constants := make(map[hash.Hash]values.ConstValue, len(c.constants))
	for k, v := range c.constants {
		constants[k] = v
	}
	return &RuntimeContext{functions: functions, constants: constants}
}
