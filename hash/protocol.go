package hash

import "github.com/cespare/xxhash/v2"

// Protocol is a reserved associated-function name whose hash, mixed
// with a type hash through Instance, forms a well-known dispatch key.
// Protocols are how the VM reaches user- or host-defined behavior for
// built-in operations: iteration, equality, indexing, arithmetic
// fallbacks and type-name queries.
type Protocol struct {
	// Name of the protocol function as surfaced in diagnostics.
	Name string
	// Hash reserved for the protocol. Lives in its own hash domain so
	// it cannot collide with ordinary associated-function names.
	Hash Hash
}

func protocol(name string) Protocol {
	d := xxhash.New()
	_, _ = d.Write([]byte{tagProto})
	_, _ = d.WriteString(name)
	return Protocol{Name: name, Hash: Hash(d.Sum64())}
}

var (
	// ProtocolIntoTypeName resolves a value's type name; installed as a
	// constant for every registered symbol so typeof-style queries fold.
	ProtocolIntoTypeName = protocol("into_type_name")
	// ProtocolIntoIter converts a value into an iterator.
	ProtocolIntoIter = protocol("into_iter")
	// ProtocolNext advances an iterator, producing an Option.
	ProtocolNext = protocol("next")
	// ProtocolGet reads a keyed slot.
	ProtocolGet = protocol("get")
	// ProtocolSet writes a keyed slot.
	ProtocolSet = protocol("set")
	// ProtocolIndexGet implements the index-read operator.
	ProtocolIndexGet = protocol("index_get")
	// ProtocolIndexSet implements the index-write operator.
	ProtocolIndexSet = protocol("index_set")
	// ProtocolEq implements total equality.
	ProtocolEq = protocol("eq")
	// ProtocolPartialEq implements partial equality.
	ProtocolPartialEq = protocol("partial_eq")
	// ProtocolCmp implements total ordering.
	ProtocolCmp = protocol("cmp")
	// ProtocolPartialCmp implements partial ordering.
	ProtocolPartialCmp = protocol("partial_cmp")
	// ProtocolAdd is the fallback for the + operator.
	ProtocolAdd = protocol("add")
	// ProtocolSub is the fallback for the - operator.
	ProtocolSub = protocol("sub")
	// ProtocolMul is the fallback for the * operator.
	ProtocolMul = protocol("mul")
	// ProtocolDiv is the fallback for the / operator.
	ProtocolDiv = protocol("div")
	// ProtocolRem is the fallback for the % operator.
	ProtocolRem = protocol("rem")
	// ProtocolStringDisplay renders a value for user-facing output.
	ProtocolStringDisplay = protocol("string_display")
	// ProtocolStringDebug renders a value for debugging output.
	ProtocolStringDebug = protocol("string_debug")
)

// Protocols lists every reserved protocol, primarily for tooling.
var Protocols = []Protocol{
	ProtocolIntoTypeName,
	ProtocolIntoIter,
	ProtocolNext,
	ProtocolGet,
	ProtocolSet,
	ProtocolIndexGet,
	ProtocolIndexSet,
	ProtocolEq,
	ProtocolPartialEq,
	ProtocolCmp,
	ProtocolPartialCmp,
	ProtocolAdd,
	ProtocolSub,
	ProtocolMul,
	ProtocolDiv,
	ProtocolRem,
	ProtocolStringDisplay,
	ProtocolStringDebug,
}
