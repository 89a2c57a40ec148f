package registry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/values"
)

// MacroHandler is the compile-time callable invoked by the macro
// expander collaborator. The core only stores and resolves handlers.
type MacroHandler func(input []values.Value) (values.Value, error)

// Fn is the convenience shape for native functions: argument values
// in, one return value out.
type Fn func(args []values.Value) (values.Value, error)

// Module accumulates host declarations under an item prefix before
// they are installed into a Context. Conflict detection inside a
// module is by local name; global conflicts are detected on install.
type Module struct {
	// id makes repeated installs of the same module idempotent.
	id   uuid.UUID
	item *hash.Item

	types     []*moduleType
	typeIndex map[string]*moduleType

	functions     []*moduleFunction
	functionIndex map[string]struct{}

	macros    []*moduleMacro
	constants []*moduleConstant
	internals []*internalEnum
}

type moduleType struct {
	name   string
	item   *hash.Item
	hash   hash.Hash
	goName string
}

type moduleFunction struct {
	name     string
	instance bool
	typeName string
	args     int
	handler  values.Handler
	// protocol, when set, keys the function by the protocol hash
	// instead of the name hash.
	protocol *hash.Protocol
}

type moduleMacro struct {
	name    string
	handler MacroHandler
}

type moduleConstant struct {
	name  string
	value values.ConstValue
}

type internalVariant struct {
	name        string
	hash        hash.Hash
	args        int
	kind        MetaKind
	constructor values.Handler
}

type internalEnum struct {
	name     string
	item     *hash.Item
	hash     hash.Hash
	variants []internalVariant
}

// NewModule starts a module rooted at the given path. The first
// component is the crate.
func NewModule(path ...string) *Module {
	components := make([]hash.Component, 0, len(path))
	for i, p := range path {
		if i == 0 {
			components = append(components, hash.CrateComponent(p))
			continue
		}
		components = append(components, hash.StrComponent(p))
	}
	return &Module{
		id:            uuid.New(),
		item:          hash.ItemOf(components...),
		typeIndex:     make(map[string]*moduleType),
		functionIndex: make(map[string]struct{}),
	}
}

// ID returns the module's unique identity.
func (m *Module) ID() uuid.UUID {
	return m.id
}

// Item returns the module's item prefix.
func (m *Module) Item() *hash.Item {
	return m.item
}

// Ty registers the native Go type T under the given local name. The
// type's hash is derived from the module path plus the name, and the
// reverse index from the Go type is populated on install.
func Ty[T any](m *Module, name string) (hash.Hash, error) {
	var zero *T
	goName := reflect.TypeOf(zero).Elem().String()
	return m.registerType(name, goName)
}

// NamedType registers a type that has no backing Go representation,
// such as the built-in value types.
func (m *Module) NamedType(name, goName string) (hash.Hash, error) {
	return m.registerType(name, goName)
}

func (m *Module) registerType(name, goName string) (hash.Hash, error) {
	if _, ok := m.typeIndex[name]; ok {
		return hash.Empty, &ContextError{Kind: ErrConflictingMeta, Item: m.item.Child(name)}
	}
	item := m.item.Child(name)
	t := &moduleType{name: name, item: item, hash: hash.Type(item), goName: goName}
	m.typeIndex[name] = t
	m.types = append(m.types, t)
	return t.hash, nil
}

// UnitType registers the unit type under the given name.
func (m *Module) UnitType(name string) error {
	_, err := m.registerType(name, "unit")
	return err
}

func (m *Module) registerFunction(key string, fn *moduleFunction) error {
	if _, ok := m.functionIndex[key]; ok {
		return &ContextError{Kind: ErrConflictingFunction, Item: m.item.Child(fn.name)}
	}
	m.functionIndex[key] = struct{}{}
	m.functions = append(m.functions, fn)
	return nil
}

// RawFunction registers a free function with a handler that manages
// the stack itself. Args of -1 declares an unknown arity.
func (m *Module) RawFunction(name string, args int, handler values.Handler) error {
	return m.registerFunction(name, &moduleFunction{name: name, args: args, handler: handler})
}

// Function registers a free function. The wrapper pops the declared
// arguments and pushes the single return value.
func (m *Module) Function(name string, args int, fn Fn) error {
	return m.RawFunction(name, args, wrapFn(fn))
}

// AsyncFunction registers a free function whose call produces a
// Future. The function body runs when the future is awaited.
func (m *Module) AsyncFunction(name string, args int, fn Fn) error {
	return m.RawFunction(name, args, wrapAsyncFn(fn))
}

// InstFn registers an instance function on a type previously
// registered in this module. Args counts the non-receiver arguments;
// fn receives the receiver as its first value.
func (m *Module) InstFn(typeName, name string, args int, fn Fn) error {
	return m.rawInstFn(typeName, name, args, wrapFn(fn))
}

// AsyncInstFn registers an instance function producing a Future.
func (m *Module) AsyncInstFn(typeName, name string, args int, fn Fn) error {
	return m.rawInstFn(typeName, name, args, wrapAsyncFn(fn))
}

func (m *Module) rawInstFn(typeName, name string, args int, handler values.Handler) error {
	if _, ok := m.typeIndex[typeName]; !ok {
		return &ContextError{Kind: ErrMissingInstanceType, Item: m.item.Child(typeName), Name: name}
	}
	total := args
	if total >= 0 {
		// The receiver travels on the stack as the leading argument.
		total++
	}
	fn := &moduleFunction{name: name, instance: true, typeName: typeName, args: total, handler: handler}
	return m.registerFunction(typeName+"."+name, fn)
}

// ProtocolFn registers a protocol implementation on a type previously
// registered in this module. The function is keyed by the protocol's
// reserved hash mixed with the receiver type hash.
func (m *Module) ProtocolFn(typeName string, protocol hash.Protocol, args int, fn Fn) error {
	if _, ok := m.typeIndex[typeName]; !ok {
		return &ContextError{Kind: ErrMissingInstanceType, Item: m.item.Child(typeName), Name: protocol.Name}
	}
	total := args
	if total >= 0 {
		total++
	}
	p := protocol
	decl := &moduleFunction{
		name:     protocol.Name,
		instance: true,
		typeName: typeName,
		args:     total,
		handler:  wrapFn(fn),
		protocol: &p,
	}
	return m.registerFunction(typeName+"#"+protocol.Name, decl)
}

// Constant registers a constant value under the given name.
func (m *Module) Constant(name string, value values.ConstValue) error {
	for _, c := range m.constants {
		if c.name == name {
			return &ContextError{Kind: ErrConflictingConstant, Item: m.item.Child(name)}
		}
	}
	m.constants = append(m.constants, &moduleConstant{name: name, value: value})
	return nil
}

// Macro registers a compile-time macro handler.
func (m *Module) Macro(name string, handler MacroHandler) error {
	for _, mac := range m.macros {
		if mac.name == name {
			return &ContextError{Kind: ErrConflictingMacro, Item: m.item.Child(name)}
		}
	}
	m.macros = append(m.macros, &moduleMacro{name: name, handler: handler})
	return nil
}

// indexInternalType makes an internal enum addressable as a receiver
// for InstFn and ProtocolFn without registering struct meta for it.
func (m *Module) indexInternalType(name string, item *hash.Item, h hash.Hash) {
	m.typeIndex[name] = &moduleType{name: name, item: item, hash: h, goName: name}
}

// Option declares the internal Option enum with its Some and None
// constructors. It can be installed into a context exactly once.
func (m *Module) Option(name string) error {
	item := m.item.Child(name)
	enum := &internalEnum{
		name: "Option",
		item: item,
		hash: hash.Type(item),
		variants: []internalVariant{
			{
				name: "Some",
				hash: hash.Type(item.Child("Some")),
				args: 1,
				kind: MetaTupleVariant,
				constructor: wrapFn(func(args []values.Value) (values.Value, error) {
					return values.NewSome(args[0]), nil
				}),
			},
			{
				name: "None",
				hash: hash.Type(item.Child("None")),
				kind: MetaUnitVariant,
				constructor: wrapFn(func([]values.Value) (values.Value, error) {
					return values.NewNone(), nil
				}),
			},
		},
	}
	m.internals = append(m.internals, enum)
	m.indexInternalType(enum.name, item, enum.hash)
	return nil
}

// Result declares the internal Result enum with its Ok and Err
// constructors.
func (m *Module) Result(name string) error {
	item := m.item.Child(name)
	enum := &internalEnum{
		name: "Result",
		item: item,
		hash: hash.Type(item),
		variants: []internalVariant{
			{
				name: "Ok",
				hash: hash.Type(item.Child("Ok")),
				args: 1,
				kind: MetaTupleVariant,
				constructor: wrapFn(func(args []values.Value) (values.Value, error) {
					return values.NewOk(args[0]), nil
				}),
			},
			{
				name: "Err",
				hash: hash.Type(item.Child("Err")),
				args: 1,
				kind: MetaTupleVariant,
				constructor: wrapFn(func(args []values.Value) (values.Value, error) {
					return values.NewErr(args[0]), nil
				}),
			},
		},
	}
	m.internals = append(m.internals, enum)
	m.indexInternalType(enum.name, item, enum.hash)
	return nil
}

// GeneratorState declares the internal GeneratorState enum.
func (m *Module) GeneratorState(name string) error {
	item := m.item.Child(name)
	enum := &internalEnum{
		name: "GeneratorState",
		item: item,
		hash: hash.Type(item),
		variants: []internalVariant{
			{
				name: "Yielded",
				hash: hash.Type(item.Child("Yielded")),
				args: 1,
				kind: MetaTupleVariant,
				constructor: wrapFn(func(args []values.Value) (values.Value, error) {
					return values.NewYielded(args[0]), nil
				}),
			},
			{
				name: "Complete",
				hash: hash.Type(item.Child("Complete")),
				args: 1,
				kind: MetaTupleVariant,
				constructor: wrapFn(func(args []values.Value) (values.Value, error) {
					return values.NewComplete(args[0]), nil
				}),
			},
		},
	}
	m.internals = append(m.internals, enum)
	m.indexInternalType(enum.name, item, enum.hash)
	return nil
}

func wrapFn(fn Fn) values.Handler {
	return func(stack *values.Stack, args int) error {
		vals, err := stack.Drain(args)
		if err != nil {
			return err
		}
		out, err := fn(vals)
		if err != nil {
			return err
		}
		stack.Push(out)
		return nil
	}
}

func wrapAsyncFn(fn Fn) values.Handler {
	return func(stack *values.Stack, args int) error {
		vals, err := stack.Drain(args)
		if err != nil {
			return err
		}
		stack.Push(values.NewFutureValue(values.NewFuture(func(context.Context) (values.Value, error) {
			return fn(vals)
		})))
		return nil
	}
}

// ExpectArgs is a helper for handlers that validate their own arity.
func ExpectArgs(args []values.Value, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}
