package opcodes

import (
	"fmt"

	"github.com/runelang/rune/hash"
)

// Opcode identifies a bytecode instruction. The bytecode is
// register-less: operands are stack positions or immediates carried on
// the instruction.
type Opcode byte

// Arithmetic and logical operations (0-19). Binary operators pop the
// right then the left operand and push the result.
const (
	OP_NOP Opcode = iota

	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV
	OP_MOD

	OP_SHL
	OP_SHR
	OP_BIT_AND
	OP_BIT_OR
	OP_BIT_XOR

	OP_NEG
	OP_NOT
)

// Comparison operations (20-39).
const (
	OP_EQ Opcode = iota + 20
	OP_NEQ
	OP_LT
	OP_LTE
	OP_GT
	OP_GTE

	OP_IS      // value is of the type on top of the stack
	OP_IS_UNIT // pop, push whether it was unit
	OP_IS_ERR  // pop a result, push whether it was Err

	OP_AND // strict boolean and
	OP_OR  // strict boolean or
)

// Compound assignments (40-59) pop the right operand, apply the
// operator to the frame slot at offset A and write the result back.
const (
	OP_ADD_ASSIGN Opcode = iota + 40
	OP_SUB_ASSIGN
	OP_MUL_ASSIGN
	OP_DIV_ASSIGN
	OP_MOD_ASSIGN
	OP_SHL_ASSIGN
	OP_SHR_ASSIGN
	OP_BIT_AND_ASSIGN
	OP_BIT_OR_ASSIGN
	OP_BIT_XOR_ASSIGN
)

// Stack operations (60-79).
const (
	OP_PUSH    Opcode = iota + 60 // push Imm
	OP_COPY                       // push a copy of frame slot A
	OP_DUP                        // duplicate the top of the stack
	OP_DROP                       // pop one value
	OP_POP_N                      // pop A values
	OP_CLEAN                      // preserve the top, pop A values under it
	OP_REPLACE                    // pop into frame slot A
)

// Control flow (80-99). Jump offsets live in B and are relative to the
// instruction after the jump.
const (
	OP_JUMP Opcode = iota + 80
	OP_JUMP_IF
	OP_JUMP_IF_NOT
	OP_JUMP_IF_OR_POP
	OP_JUMP_IF_NOT_OR_POP
	OP_JUMP_IF_BRANCH      // jump if the branch register equals A
	OP_POP_AND_JUMP_IF_NOT // pop a bool; when false pop A values and jump
)

// Calls and returns (100-119).
const (
	OP_CALL             Opcode = iota + 100 // call Hash with B args
	OP_CALL_INSTANCE                        // instance call; B args include the receiver at the bottom
	OP_LOAD_INSTANCE_FN                     // pop receiver, push its resolved Hash function
	OP_CALL_FN                              // call the function value under B args
	OP_RETURN
	OP_RETURN_UNIT
)

// Aggregate construction (120-139). Elements are popped from the
// stack; key sets come from the static object-keys pool at slot A.
const (
	OP_VEC            Opcode = iota + 120 // B elements
	OP_TUPLE                              // B elements
	OP_OBJECT                             // keys at slot A
	OP_TYPED_OBJECT                       // Hash type, keys at slot A
	OP_VARIANT_OBJECT                     // Hash2 enum, Hash variant, keys at slot A
	OP_TYPED_TUPLE                        // Hash type, B elements
	OP_VARIANT_TUPLE                      // Hash2 enum, Hash variant, B elements
)

// Aggregate access (140-159).
const (
	OP_INDEX_GET           Opcode = iota + 140 // pop index, pop target, push element
	OP_INDEX_SET                               // pop value, pop index, pop target
	OP_TUPLE_INDEX_GET_AT                      // read element B of the tuple in frame slot A
	OP_OBJECT_INDEX_GET_AT                     // read the field named by string slot B of frame slot A
	OP_FIELD_GET                               // pop target, push the field named by string slot A
	OP_FIELD_SET                               // pop value, pop target, set field named by string slot A
)

// Pattern matching (160-179). Match instructions pop the candidate and
// push a boolean, typically followed by OP_POP_AND_JUMP_IF_NOT.
const (
	OP_MATCH_SEQUENCE Opcode = iota + 160 // Check shape, A length, Exact
	OP_MATCH_OBJECT                       // Check shape, keys at slot A, Exact
	OP_EQ_BYTE                            // pop, compare against Imm
	OP_EQ_CHARACTER
	OP_EQ_INTEGER
	OP_EQ_STATIC_STRING // pop, compare against string slot A
)

// Iteration, async and generators (180-199).
const (
	OP_ITER_NEXT  Opcode = iota + 180 // advance the iterator in frame slot A; jump when exhausted
	OP_AWAIT                          // pop a future, suspend, push its value
	OP_SELECT                         // race B futures; winner index lands in the branch register
	OP_YIELD                          // pop a value and suspend
	OP_YIELD_UNIT                     // suspend with unit
	OP_PANIC                          // abort with PanicReason A
)

var opcodeNames = map[Opcode]string{
	OP_NOP:                 "nop",
	OP_ADD:                 "add",
	OP_SUB:                 "sub",
	OP_MUL:                 "mul",
	OP_DIV:                 "div",
	OP_MOD:                 "mod",
	OP_SHL:                 "shl",
	OP_SHR:                 "shr",
	OP_BIT_AND:             "bit-and",
	OP_BIT_OR:              "bit-or",
	OP_BIT_XOR:             "bit-xor",
	OP_NEG:                 "neg",
	OP_NOT:                 "not",
	OP_EQ:                  "eq",
	OP_NEQ:                 "neq",
	OP_LT:                  "lt",
	OP_LTE:                 "lte",
	OP_GT:                  "gt",
	OP_GTE:                 "gte",
	OP_IS:                  "is",
	OP_IS_UNIT:             "is-unit",
	OP_IS_ERR:              "is-err",
	OP_AND:                 "and",
	OP_OR:                  "or",
	OP_ADD_ASSIGN:          "add-assign",
	OP_SUB_ASSIGN:          "sub-assign",
	OP_MUL_ASSIGN:          "mul-assign",
	OP_DIV_ASSIGN:          "div-assign",
	OP_MOD_ASSIGN:          "mod-assign",
	OP_SHL_ASSIGN:          "shl-assign",
	OP_SHR_ASSIGN:          "shr-assign",
	OP_BIT_AND_ASSIGN:      "bit-and-assign",
	OP_BIT_OR_ASSIGN:       "bit-or-assign",
	OP_BIT_XOR_ASSIGN:      "bit-xor-assign",
	OP_PUSH:                "push",
	OP_COPY:                "copy",
	OP_DUP:                 "dup",
	OP_DROP:                "drop",
	OP_POP_N:               "pop-n",
	OP_CLEAN:               "clean",
	OP_REPLACE:             "replace",
	OP_JUMP:                "jump",
	OP_JUMP_IF:             "jump-if",
	OP_JUMP_IF_NOT:         "jump-if-not",
	OP_JUMP_IF_OR_POP:      "jump-if-or-pop",
	OP_JUMP_IF_NOT_OR_POP:  "jump-if-not-or-pop",
	OP_JUMP_IF_BRANCH:      "jump-if-branch",
	OP_POP_AND_JUMP_IF_NOT: "pop-and-jump-if-not",
	OP_CALL:                "call",
	OP_CALL_INSTANCE:       "call-instance",
	OP_LOAD_INSTANCE_FN:    "load-instance-fn",
	OP_CALL_FN:             "call-fn",
	OP_RETURN:              "return",
	OP_RETURN_UNIT:         "return-unit",
	OP_VEC:                 "vec",
	OP_TUPLE:               "tuple",
	OP_OBJECT:              "object",
	OP_TYPED_OBJECT:        "typed-object",
	OP_VARIANT_OBJECT:      "variant-object",
	OP_TYPED_TUPLE:         "typed-tuple",
	OP_VARIANT_TUPLE:       "variant-tuple",
	OP_INDEX_GET:           "index-get",
	OP_INDEX_SET:           "index-set",
	OP_TUPLE_INDEX_GET_AT:  "tuple-index-get-at",
	OP_OBJECT_INDEX_GET_AT: "object-index-get-at",
	OP_FIELD_GET:           "field-get",
	OP_FIELD_SET:           "field-set",
	OP_MATCH_SEQUENCE:      "match-sequence",
	OP_MATCH_OBJECT:        "match-object",
	OP_EQ_BYTE:             "eq-byte",
	OP_EQ_CHARACTER:        "eq-character",
	OP_EQ_INTEGER:          "eq-integer",
	OP_EQ_STATIC_STRING:    "eq-static-string",
	OP_ITER_NEXT:           "iter-next",
	OP_AWAIT:               "await",
	OP_SELECT:              "select",
	OP_YIELD:               "yield",
	OP_YIELD_UNIT:          "yield-unit",
	OP_PANIC:               "panic",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(%d)", byte(op))
}

// ImmediateKind tags the payload of a push immediate.
type ImmediateKind byte

const (
	ImmUnit ImmediateKind = iota
	ImmBool
	ImmByte
	ImmChar
	ImmInteger
	ImmFloat
	ImmType
	ImmStaticString // slot into the unit's static string pool
)

// Immediate is the operand of OP_PUSH and the comparison operand of
// the OP_EQ_* family.
type Immediate struct {
	Kind  ImmediateKind
	Bool  bool
	Int   int64
	Float float64
	Hash  hash.Hash
}

func UnitImmediate() Immediate       { return Immediate{Kind: ImmUnit} }
func BoolImmediate(b bool) Immediate { return Immediate{Kind: ImmBool, Bool: b} }
func ByteImmediate(b byte) Immediate { return Immediate{Kind: ImmByte, Int: int64(b)} }
func CharImmediate(c rune) Immediate { return Immediate{Kind: ImmChar, Int: int64(c)} }
func IntegerImmediate(i int64) Immediate {
	return Immediate{Kind: ImmInteger, Int: i}
}
func FloatImmediate(f float64) Immediate {
	return Immediate{Kind: ImmFloat, Float: f}
}
func TypeImmediate(h hash.Hash) Immediate {
	return Immediate{Kind: ImmType, Hash: h}
}
func StaticStringImmediate(slot int) Immediate {
	return Immediate{Kind: ImmStaticString, Int: int64(slot)}
}

func (imm Immediate) String() string {
	switch imm.Kind {
	case ImmUnit:
		return "()"
	case ImmBool:
		return fmt.Sprintf("%t", imm.Bool)
	case ImmByte:
		return fmt.Sprintf("b'%c'", byte(imm.Int))
	case ImmChar:
		return fmt.Sprintf("'%c'", rune(imm.Int))
	case ImmInteger:
		return fmt.Sprintf("%d", imm.Int)
	case ImmFloat:
		return fmt.Sprintf("%g", imm.Float)
	case ImmType:
		return fmt.Sprintf("type(%s)", imm.Hash)
	case ImmStaticString:
		return fmt.Sprintf("string-slot(%d)", imm.Int)
	}
	return "?"
}

// TypeCheckKind selects the static shape requirement of a match
// instruction.
type TypeCheckKind byte

const (
	TypeCheckUnit TypeCheckKind = iota
	TypeCheckTuple
	TypeCheckVec
	TypeCheckObject
	TypeCheckResult         // Index 0 = Ok, 1 = Err
	TypeCheckOption         // Index 0 = Some, 1 = None
	TypeCheckGeneratorState // Index 0 = Yielded, 1 = Complete
	TypeCheckType           // typed tuple or object with Hash
	TypeCheckVariant        // variant with Hash
)

// TypeCheck is the shape operand of the match instructions.
type TypeCheck struct {
	Kind  TypeCheckKind
	Index int
	Hash  hash.Hash
}

func (tc TypeCheck) String() string {
	switch tc.Kind {
	case TypeCheckUnit:
		return "unit"
	case TypeCheckTuple:
		return "tuple"
	case TypeCheckVec:
		return "vec"
	case TypeCheckObject:
		return "object"
	case TypeCheckResult:
		if tc.Index == 0 {
			return "result::ok"
		}
		return "result::err"
	case TypeCheckOption:
		if tc.Index == 0 {
			return "option::some"
		}
		return "option::none"
	case TypeCheckGeneratorState:
		if tc.Index == 0 {
			return "generator-state::yielded"
		}
		return "generator-state::complete"
	case TypeCheckType:
		return fmt.Sprintf("type(%s)", tc.Hash)
	case TypeCheckVariant:
		return fmt.Sprintf("variant(%s)", tc.Hash)
	}
	return "?"
}

// PanicReason identifies a well-known VM panic.
type PanicReason byte

const (
	// PanicUnmatchedPattern is raised when a match has no arm left.
	PanicUnmatchedPattern PanicReason = iota
	// PanicNotImplemented marks a lowered placeholder.
	PanicNotImplemented
)

func (r PanicReason) String() string {
	switch r {
	case PanicUnmatchedPattern:
		return "unmatched pattern"
	case PanicNotImplemented:
		return "not implemented"
	}
	return "unknown panic"
}

// Instruction is one decoded bytecode instruction. Field use depends
// on the opcode; unused fields are zero. The source span of every
// instruction is stored out-of-band in the unit's debug info.
type Instruction struct {
	Opcode Opcode

	// Hash is the function, type or variant operand.
	Hash hash.Hash
	// Hash2 is the enum hash of variant construction.
	Hash2 hash.Hash
	// Imm is the immediate of OP_PUSH and the OP_EQ_* family.
	Imm Immediate
	// Check is the shape operand of the match instructions.
	Check TypeCheck

	// A is the primary integer operand: a frame offset, count, pool
	// slot, branch index or panic reason.
	A int
	// B is the secondary integer operand: an argument count, element
	// count or signed jump offset.
	B int
	// Exact requires the matched length or key set to be exact rather
	// than a lower bound.
	Exact bool
}

// IsJump reports whether the instruction's B operand is a label-
// relative jump offset the assembler must resolve.
func (inst Instruction) IsJump() bool {
	switch inst.Opcode {
	case OP_JUMP, OP_JUMP_IF, OP_JUMP_IF_NOT, OP_JUMP_IF_OR_POP,
		OP_JUMP_IF_NOT_OR_POP, OP_JUMP_IF_BRANCH,
		OP_POP_AND_JUMP_IF_NOT, OP_ITER_NEXT:
		return true
	}
	return false
}

func (inst Instruction) String() string {
	switch inst.Opcode {
	case OP_PUSH:
		return fmt.Sprintf("push %s", inst.Imm)
	case OP_EQ_BYTE, OP_EQ_CHARACTER, OP_EQ_INTEGER:
		return fmt.Sprintf("%s %s", inst.Opcode, inst.Imm)
	case OP_EQ_STATIC_STRING:
		return fmt.Sprintf("eq-static-string slot=%d", inst.A)
	case OP_COPY, OP_REPLACE, OP_POP_N, OP_CLEAN,
		OP_ADD_ASSIGN, OP_SUB_ASSIGN, OP_MUL_ASSIGN, OP_DIV_ASSIGN,
		OP_MOD_ASSIGN, OP_SHL_ASSIGN, OP_SHR_ASSIGN,
		OP_BIT_AND_ASSIGN, OP_BIT_OR_ASSIGN, OP_BIT_XOR_ASSIGN:
		return fmt.Sprintf("%s %d", inst.Opcode, inst.A)
	case OP_JUMP, OP_JUMP_IF, OP_JUMP_IF_NOT, OP_JUMP_IF_OR_POP, OP_JUMP_IF_NOT_OR_POP:
		return fmt.Sprintf("%s %+d", inst.Opcode, inst.B)
	case OP_JUMP_IF_BRANCH:
		return fmt.Sprintf("jump-if-branch branch=%d %+d", inst.A, inst.B)
	case OP_POP_AND_JUMP_IF_NOT:
		return fmt.Sprintf("pop-and-jump-if-not count=%d %+d", inst.A, inst.B)
	case OP_ITER_NEXT:
		return fmt.Sprintf("iter-next offset=%d %+d", inst.A, inst.B)
	case OP_CALL:
		return fmt.Sprintf("call %s args=%d", inst.Hash, inst.B)
	case OP_CALL_INSTANCE:
		return fmt.Sprintf("call-instance %s args=%d", inst.Hash, inst.B)
	case OP_LOAD_INSTANCE_FN:
		return fmt.Sprintf("load-instance-fn %s", inst.Hash)
	case OP_CALL_FN:
		return fmt.Sprintf("call-fn args=%d", inst.B)
	case OP_VEC, OP_TUPLE:
		return fmt.Sprintf("%s count=%d", inst.Opcode, inst.B)
	case OP_OBJECT:
		return fmt.Sprintf("object keys-slot=%d", inst.A)
	case OP_TYPED_OBJECT:
		return fmt.Sprintf("typed-object %s keys-slot=%d", inst.Hash, inst.A)
	case OP_VARIANT_OBJECT:
		return fmt.Sprintf("variant-object %s::%s keys-slot=%d", inst.Hash2, inst.Hash, inst.A)
	case OP_TYPED_TUPLE:
		return fmt.Sprintf("typed-tuple %s count=%d", inst.Hash, inst.B)
	case OP_VARIANT_TUPLE:
		return fmt.Sprintf("variant-tuple %s::%s count=%d", inst.Hash2, inst.Hash, inst.B)
	case OP_TUPLE_INDEX_GET_AT:
		return fmt.Sprintf("tuple-index-get-at offset=%d index=%d", inst.A, inst.B)
	case OP_OBJECT_INDEX_GET_AT:
		return fmt.Sprintf("object-index-get-at offset=%d string-slot=%d", inst.A, inst.B)
	case OP_FIELD_GET:
		return fmt.Sprintf("field-get string-slot=%d", inst.A)
	case OP_FIELD_SET:
		return fmt.Sprintf("field-set string-slot=%d", inst.A)
	case OP_MATCH_SEQUENCE:
		return fmt.Sprintf("match-sequence %s len=%d exact=%t", inst.Check, inst.A, inst.Exact)
	case OP_MATCH_OBJECT:
		return fmt.Sprintf("match-object %s keys-slot=%d exact=%t", inst.Check, inst.A, inst.Exact)
	case OP_SELECT:
		return fmt.Sprintf("select len=%d", inst.B)
	case OP_PANIC:
		return fmt.Sprintf("panic %q", PanicReason(inst.A).String())
	}
	return inst.Opcode.String()
}
