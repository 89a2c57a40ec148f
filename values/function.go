package values

import "github.com/runelang/rune/hash"

// CallKind selects the execution wrapper a function produces when it
// is entered: run inline, or suspend behind a Future, Generator or
// Stream value.
type CallKind byte

const (
	CallImmediate CallKind = iota
	CallAsync
	CallGenerator
	CallStream
)

func (k CallKind) String() string {
	switch k {
	case CallAsync:
		return "async"
	case CallGenerator:
		return "generator"
	case CallStream:
		return "stream"
	default:
		return "immediate"
	}
}

// FunctionKind discriminates first-class function values.
type FunctionKind byte

const (
	// FunctionOffset points at a function in the executing unit.
	FunctionOffset FunctionKind = iota
	// FunctionClosure is an offset function plus captured values.
	FunctionClosure
	// FunctionHandler wraps a native host handler.
	FunctionHandler
	// FunctionVariantConstructor builds a tuple enum variant.
	FunctionVariantConstructor
	// FunctionTupleConstructor builds a tuple struct.
	FunctionTupleConstructor
)

// Handler is the native callable contract. A handler receives the VM's
// operand stack and the caller's declared argument count; it must pop
// exactly args values and push exactly one return value. Handlers are
// never allowed to suspend the VM; async host work is expressed by
// pushing a Future for the VM to await later.
type Handler func(stack *Stack, args int) error

// Function is the payload of a first-class function value.
type Function struct {
	Kind FunctionKind

	// Hash of the unit function, tuple struct, or variant.
	Hash hash.Hash
	// Enum hash when Kind is FunctionVariantConstructor.
	Enum hash.Hash
	// Args is the declared arity; constructors use it as tuple size.
	Args int
	// Call selects the wrapper produced when entering the function.
	Call CallKind
	// Environment holds a closure's captured values.
	Environment []Value
	// Handler is the native callable when Kind is FunctionHandler.
	Handler Handler
}

// NewOffsetFunction builds a function value pointing at a unit
// function.
func NewOffsetFunction(h hash.Hash, args int, call CallKind) *Function {
	return &Function{Kind: FunctionOffset, Hash: h, Args: args, Call: call}
}

// NewClosure builds a closure over a unit function.
func NewClosure(h hash.Hash, environment []Value, args int, call CallKind) *Function {
	return &Function{Kind: FunctionClosure, Hash: h, Args: args, Call: call, Environment: environment}
}

// NewHandlerFunction wraps a native handler.
func NewHandlerFunction(handler Handler) *Function {
	return &Function{Kind: FunctionHandler, Handler: handler}
}

// NewVariantConstructor builds a constructor for a tuple enum variant.
func NewVariantConstructor(enumHash, variantHash hash.Hash, args int) *Function {
	return &Function{Kind: FunctionVariantConstructor, Enum: enumHash, Hash: variantHash, Args: args}
}

// NewTupleConstructor builds a constructor for a tuple struct.
func NewTupleConstructor(h hash.Hash, args int) *Function {
	return &Function{Kind: FunctionTupleConstructor, Hash: h, Args: args}
}
