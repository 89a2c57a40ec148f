package values

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/runelang/rune/hash"
)

// Kind tags a runtime value.
type Kind byte

const (
	KindUnit Kind = iota
	KindBool
	KindByte
	KindChar
	KindInteger
	KindFloat
	KindType
	KindStaticString
	KindString
	KindBytes
	KindVec
	KindTuple
	KindObject
	KindFuture
	KindStream
	KindGenerator
	KindGeneratorState
	KindOption
	KindResult
	KindFunction
	KindTypedTuple
	KindVariantTuple
	KindTypedObject
	KindVariantObject
	KindAny
)

var kindNames = map[Kind]string{
	KindUnit:           "unit",
	KindBool:           "bool",
	KindByte:           "byte",
	KindChar:           "char",
	KindInteger:        "int",
	KindFloat:          "float",
	KindType:           "type",
	KindStaticString:   "String",
	KindString:         "String",
	KindBytes:          "Bytes",
	KindVec:            "Vec",
	KindTuple:          "Tuple",
	KindObject:         "Object",
	KindFuture:         "Future",
	KindStream:         "Stream",
	KindGenerator:      "Generator",
	KindGeneratorState: "GeneratorState",
	KindOption:         "Option",
	KindResult:         "Result",
	KindFunction:       "Function",
	KindTypedTuple:     "struct",
	KindVariantTuple:   "variant",
	KindTypedObject:    "struct",
	KindVariantObject:  "variant",
	KindAny:            "any",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// TypeError is returned when a value is used as a kind it is not.
type TypeError struct {
	Expected string
	Actual   string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("expected %s but found %s", e.Expected, e.Actual)
}

// Payload types stored inside shared cells.

// Vec is the payload of a KindVec cell.
type Vec struct {
	Items []Value
}

// Tuple is the payload of a KindTuple cell.
type Tuple struct {
	Items []Value
}

// TypedTuple is a tuple struct carrying its type hash.
type TypedTuple struct {
	Type  hash.Hash
	Items []Value
}

// VariantTuple is a tuple enum variant carrying the enum hash and the
// variant hash.
type VariantTuple struct {
	Enum  hash.Hash
	Hash  hash.Hash
	Items []Value
}

// TypedObject is an object struct carrying its type hash.
type TypedObject struct {
	Type   hash.Hash
	Object *Object
}

// VariantObject is an object enum variant.
type VariantObject struct {
	Enum   hash.Hash
	Hash   hash.Hash
	Object *Object
}

// Option is the payload of a KindOption cell.
type Option struct {
	Some  bool
	Value Value
}

// ResultPayload is the payload of a KindResult cell.
type ResultPayload struct {
	IsOk  bool
	Value Value
}

// GeneratorState is the payload of a KindGeneratorState cell: either
// Yielded(value) or Complete(value).
type GeneratorState struct {
	Completed bool
	Value     Value
}

// Any is a host-registered opaque value carrying its type hash.
type Any struct {
	Type     hash.Hash
	TypeName string
	Value    any
}

// Value is the tagged runtime value. Inline kinds live entirely in the
// struct; shared kinds point at a reference-counted cell guarded by an
// access flag. Copying a Value copies the tag and the pointer, so two
// copies of a shared value alias the same cell.
type Value struct {
	kind Kind
	num  uint64
	ref  any
}

// Unit returns the unit value.
func Unit() Value {
	return Value{kind: KindUnit}
}

// NewBool builds an inline boolean.
func NewBool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// NewByte builds an inline byte.
func NewByte(b byte) Value {
	return Value{kind: KindByte, num: uint64(b)}
}

// NewChar builds an inline character.
func NewChar(c rune) Value {
	return Value{kind: KindChar, num: uint64(uint32(c))}
}

// NewInteger builds an inline 64-bit integer.
func NewInteger(i int64) Value {
	return Value{kind: KindInteger, num: uint64(i)}
}

// NewFloat builds an inline 64-bit float.
func NewFloat(f float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(f)}
}

// NewTypeValue builds an inline type value from a type hash.
func NewTypeValue(h hash.Hash) Value {
	return Value{kind: KindType, num: uint64(h)}
}

// StaticStringValue wraps an interned string. Static strings are
// immutable and carry no cell.
func StaticStringValue(s *StaticString) Value {
	return Value{kind: KindStaticString, ref: s}
}

func sharedValue(kind Kind, payload any) Value {
	return Value{kind: kind, ref: NewShared(payload)}
}

// NewString builds a shared mutable string.
func NewString(s string) Value {
	return sharedValue(KindString, &s)
}

// NewBytes builds a shared byte buffer.
func NewBytes(b []byte) Value {
	return sharedValue(KindBytes, &b)
}

// NewVec builds a shared vector owning the given items.
func NewVec(items []Value) Value {
	return sharedValue(KindVec, &Vec{Items: items})
}

// NewTuple builds a shared tuple owning the given items.
func NewTuple(items []Value) Value {
	return sharedValue(KindTuple, &Tuple{Items: items})
}

// NewObjectValue wraps an object in a shared cell.
func NewObjectValue(o *Object) Value {
	return sharedValue(KindObject, o)
}

// NewTypedTuple builds a tuple struct value.
func NewTypedTuple(typeHash hash.Hash, items []Value) Value {
	return sharedValue(KindTypedTuple, &TypedTuple{Type: typeHash, Items: items})
}

// NewVariantTuple builds a tuple variant value.
func NewVariantTuple(enumHash, variantHash hash.Hash, items []Value) Value {
	return sharedValue(KindVariantTuple, &VariantTuple{Enum: enumHash, Hash: variantHash, Items: items})
}

// NewTypedObject builds an object struct value.
func NewTypedObject(typeHash hash.Hash, o *Object) Value {
	return sharedValue(KindTypedObject, &TypedObject{Type: typeHash, Object: o})
}

// NewVariantObject builds an object variant value.
func NewVariantObject(enumHash, variantHash hash.Hash, o *Object) Value {
	return sharedValue(KindVariantObject, &VariantObject{Enum: enumHash, Hash: variantHash, Object: o})
}

// NewSome builds Option::Some(value).
func NewSome(value Value) Value {
	return sharedValue(KindOption, &Option{Some: true, Value: value})
}

// NewNone builds Option::None.
func NewNone() Value {
	return sharedValue(KindOption, &Option{})
}

// NewOk builds Result::Ok(value).
func NewOk(value Value) Value {
	return sharedValue(KindResult, &ResultPayload{IsOk: true, Value: value})
}

// NewErr builds Result::Err(value).
func NewErr(value Value) Value {
	return sharedValue(KindResult, &ResultPayload{Value: value})
}

// NewYielded builds GeneratorState::Yielded(value).
func NewYielded(value Value) Value {
	return sharedValue(KindGeneratorState, &GeneratorState{Value: value})
}

// NewComplete builds GeneratorState::Complete(value).
func NewComplete(value Value) Value {
	return sharedValue(KindGeneratorState, &GeneratorState{Completed: true, Value: value})
}

// NewFunctionValue wraps a function in a shared cell.
func NewFunctionValue(f *Function) Value {
	return sharedValue(KindFunction, f)
}

// NewFutureValue wraps a future in a shared cell.
func NewFutureValue(f *Future) Value {
	return sharedValue(KindFuture, f)
}

// NewGeneratorValue wraps a generator in a shared cell.
func NewGeneratorValue(g *Generator) Value {
	return sharedValue(KindGenerator, g)
}

// NewStreamValue wraps a stream in a shared cell.
func NewStreamValue(s *Stream) Value {
	return sharedValue(KindStream, s)
}

// NewAny wraps a host-native value, keyed by its registered type hash.
func NewAny(typeHash hash.Hash, typeName string, value any) Value {
	return sharedValue(KindAny, &Any{Type: typeHash, TypeName: typeName, Value: value})
}

// Kind returns the value's tag.
func (v Value) Kind() Kind {
	return v.kind
}

// IsUnit reports whether the value is unit.
func (v Value) IsUnit() bool {
	return v.kind == KindUnit
}

// AsBool unpacks an inline boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.num != 0, true
}

// AsByte unpacks an inline byte.
func (v Value) AsByte() (byte, bool) {
	if v.kind != KindByte {
		return 0, false
	}
	return byte(v.num), true
}

// AsChar unpacks an inline character.
func (v Value) AsChar() (rune, bool) {
	if v.kind != KindChar {
		return 0, false
	}
	return rune(uint32(v.num)), true
}

// AsInteger unpacks an inline integer.
func (v Value) AsInteger() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return int64(v.num), true
}

// AsFloat unpacks an inline float.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return math.Float64frombits(v.num), true
}

// AsTypeHash unpacks an inline type value.
func (v Value) AsTypeHash() (hash.Hash, bool) {
	if v.kind != KindType {
		return hash.Empty, false
	}
	return hash.Hash(v.num), true
}

// AsStaticString unpacks an interned string.
func (v Value) AsStaticString() (*StaticString, bool) {
	if v.kind != KindStaticString {
		return nil, false
	}
	return v.ref.(*StaticString), true
}

// Cell exposes the value's shared cell, or nil for inline kinds.
func (v Value) Cell() *Shared {
	cell, _ := v.ref.(*Shared)
	return cell
}

func (v Value) typeError(expected string) error {
	return &TypeError{Expected: expected, Actual: v.TypeInfo()}
}

// BorrowRefAs acquires a shared borrow on the payload of a cell of the
// given kind.
func (v Value) BorrowRefAs(kind Kind, op string) (any, Release, error) {
	if v.kind != kind {
		return nil, nil, v.typeError(kind.String())
	}
	return v.ref.(*Shared).BorrowShared(op)
}

// BorrowMutAs acquires the exclusive borrow on the payload of a cell
// of the given kind.
func (v Value) BorrowMutAs(kind Kind, op string) (any, Release, error) {
	if v.kind != kind {
		return nil, nil, v.typeError(kind.String())
	}
	return v.ref.(*Shared).BorrowExclusive(op)
}

// TakeAs moves the payload out of a cell of the given kind, leaving
// the cell in its terminal taken state.
func (v Value) TakeAs(kind Kind, op string) (any, error) {
	if v.kind != kind {
		return nil, v.typeError(kind.String())
	}
	return v.ref.(*Shared).Take(op)
}

func (v Value) BorrowString(op string) (*string, Release, error) {
	data, release, err := v.BorrowRefAs(KindString, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*string), release, nil
}

func (v Value) BorrowStringMut(op string) (*string, Release, error) {
	data, release, err := v.BorrowMutAs(KindString, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*string), release, nil
}

func (v Value) BorrowBytes(op string) (*[]byte, Release, error) {
	data, release, err := v.BorrowRefAs(KindBytes, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*[]byte), release, nil
}

func (v Value) BorrowVec(op string) (*Vec, Release, error) {
	data, release, err := v.BorrowRefAs(KindVec, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Vec), release, nil
}

func (v Value) BorrowVecMut(op string) (*Vec, Release, error) {
	data, release, err := v.BorrowMutAs(KindVec, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Vec), release, nil
}

func (v Value) BorrowTuple(op string) (*Tuple, Release, error) {
	data, release, err := v.BorrowRefAs(KindTuple, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Tuple), release, nil
}

func (v Value) BorrowObject(op string) (*Object, Release, error) {
	data, release, err := v.BorrowRefAs(KindObject, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Object), release, nil
}

func (v Value) BorrowObjectMut(op string) (*Object, Release, error) {
	data, release, err := v.BorrowMutAs(KindObject, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Object), release, nil
}

func (v Value) BorrowOption(op string) (*Option, Release, error) {
	data, release, err := v.BorrowRefAs(KindOption, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Option), release, nil
}

func (v Value) BorrowResult(op string) (*ResultPayload, Release, error) {
	data, release, err := v.BorrowRefAs(KindResult, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*ResultPayload), release, nil
}

func (v Value) BorrowGeneratorState(op string) (*GeneratorState, Release, error) {
	data, release, err := v.BorrowRefAs(KindGeneratorState, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*GeneratorState), release, nil
}

func (v Value) BorrowFunction(op string) (*Function, Release, error) {
	data, release, err := v.BorrowRefAs(KindFunction, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Function), release, nil
}

func (v Value) BorrowAny(op string) (*Any, Release, error) {
	data, release, err := v.BorrowRefAs(KindAny, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Any), release, nil
}

// TakeFuture moves the future out of its cell. Awaiting consumes the
// future, so a second await of the same value reports a taken cell.
func (v Value) TakeFuture(op string) (*Future, error) {
	data, err := v.TakeAs(KindFuture, op)
	if err != nil {
		return nil, err
	}
	return data.(*Future), nil
}

func (v Value) BorrowGenerator(op string) (*Generator, Release, error) {
	data, release, err := v.BorrowMutAs(KindGenerator, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Generator), release, nil
}

func (v Value) BorrowStream(op string) (*Stream, Release, error) {
	data, release, err := v.BorrowMutAs(KindStream, op)
	if err != nil {
		return nil, nil, err
	}
	return data.(*Stream), release, nil
}

// TypeHash returns the at-runtime type identity of the value. Typed
// aggregates read their hash from the cell under a transient shared
// borrow, so the call can fail on a contended cell.
func (v Value) TypeHash() (hash.Hash, error) {
	switch v.kind {
	case KindUnit:
		return UnitTypeHash, nil
	case KindBool:
		return BoolTypeHash, nil
	case KindByte:
		return ByteTypeHash, nil
	case KindChar:
		return CharTypeHash, nil
	case KindInteger:
		return IntegerTypeHash, nil
	case KindFloat:
		return FloatTypeHash, nil
	case KindType:
		return TypeTypeHash, nil
	case KindStaticString, KindString:
		return StringTypeHash, nil
	case KindBytes:
		return BytesTypeHash, nil
	case KindVec:
		return VecTypeHash, nil
	case KindTuple:
		return TupleTypeHash, nil
	case KindObject:
		return ObjectTypeHash, nil
	case KindFuture:
		return FutureTypeHash, nil
	case KindStream:
		return StreamTypeHash, nil
	case KindGenerator:
		return GeneratorTypeHash, nil
	case KindGeneratorState:
		return GeneratorStateTypeHash, nil
	case KindOption:
		return OptionTypeHash, nil
	case KindResult:
		return ResultTypeHash, nil
	case KindFunction:
		return FunctionTypeHash, nil
	case KindTypedTuple, KindVariantTuple, KindTypedObject, KindVariantObject, KindAny:
		data, err := v.ref.(*Shared).Snapshot("type_of")
		if err != nil {
			return hash.Empty, err
		}
		switch payload := data.(type) {
		case *TypedTuple:
			return payload.Type, nil
		case *VariantTuple:
			return payload.Enum, nil
		case *TypedObject:
			return payload.Type, nil
		case *VariantObject:
			return payload.Enum, nil
		case *Any:
			return payload.Type, nil
		}
	}
	return hash.Empty, fmt.Errorf("no type hash for %s", v.kind)
}

// TypeInfo returns a short human description of the value's type for
// diagnostics.
func (v Value) TypeInfo() string {
	if v.kind == KindAny {
		if data, err := v.ref.(*Shared).Snapshot("type_info"); err == nil {
			return data.(*Any).TypeName
		}
	}
	return v.kind.String()
}

// Eq computes structural equality between two values. Strings compare
// by content regardless of interning; aggregates compare recursively.
// Kinds with no structural equality (functions, futures, generators,
// streams, opaque host values) report an error.
func Eq(a, b Value) (bool, error) {
	if sa, ok := normalizeString(a); ok {
		sb, ok := normalizeString(b)
		if !ok {
			return false, nil
		}
		return sa == sb, nil
	}
	switch a.kind {
	case KindUnit:
		return b.kind == KindUnit, nil
	case KindBool, KindByte, KindChar, KindInteger, KindType:
		return a.kind == b.kind && a.num == b.num, nil
	case KindFloat:
		if b.kind != KindFloat {
			return false, nil
		}
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return af == bf, nil
	case KindBytes:
		if b.kind != KindBytes {
			return false, nil
		}
		ab, ra, err := a.BorrowBytes("eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bb, rb, err := b.BorrowBytes("eq")
		if err != nil {
			return false, err
		}
		defer rb()
		return string(*ab) == string(*bb), nil
	case KindVec:
		if b.kind != KindVec {
			return false, nil
		}
		av, ra, err := a.BorrowVec("eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bv, rb, err := b.BorrowVec("eq")
		if err != nil {
			return false, err
		}
		defer rb()
		return eqItems(av.Items, bv.Items)
	case KindTuple:
		if b.kind != KindTuple {
			return false, nil
		}
		at, ra, err := a.BorrowTuple("eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bt, rb, err := b.BorrowTuple("eq")
		if err != nil {
			return false, err
		}
		defer rb()
		return eqItems(at.Items, bt.Items)
	case KindObject:
		if b.kind != KindObject {
			return false, nil
		}
		ao, ra, err := a.BorrowObject("eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bo, rb, err := b.BorrowObject("eq")
		if err != nil {
			return false, err
		}
		defer rb()
		return eqObjects(ao, bo)
	case KindOption:
		if b.kind != KindOption {
			return false, nil
		}
		aopt, ra, err := a.BorrowOption("eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bopt, rb, err := b.BorrowOption("eq")
		if err != nil {
			return false, err
		}
		defer rb()
		if aopt.Some != bopt.Some {
			return false, nil
		}
		if !aopt.Some {
			return true, nil
		}
		return Eq(aopt.Value, bopt.Value)
	case KindResult:
		if b.kind != KindResult {
			return false, nil
		}
		ares, ra, err := a.BorrowResult("eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bres, rb, err := b.BorrowResult("eq")
		if err != nil {
			return false, err
		}
		defer rb()
		if ares.IsOk != bres.IsOk {
			return false, nil
		}
		return Eq(ares.Value, bres.Value)
	case KindGeneratorState:
		if b.kind != KindGeneratorState {
			return false, nil
		}
		ast, ra, err := a.BorrowGeneratorState("eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bst, rb, err := b.BorrowGeneratorState("eq")
		if err != nil {
			return false, err
		}
		defer rb()
		if ast.Completed != bst.Completed {
			return false, nil
		}
		return Eq(ast.Value, bst.Value)
	case KindTypedTuple:
		if b.kind != KindTypedTuple {
			return false, nil
		}
		at, ra, err := a.BorrowRefAs(KindTypedTuple, "eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bt, rb, err := b.BorrowRefAs(KindTypedTuple, "eq")
		if err != nil {
			return false, err
		}
		defer rb()
		att := at.(*TypedTuple)
		btt := bt.(*TypedTuple)
		if att.Type != btt.Type {
			return false, nil
		}
		return eqItems(att.Items, btt.Items)
	case KindVariantTuple:
		if b.kind != KindVariantTuple {
			return false, nil
		}
		at, ra, err := a.BorrowRefAs(KindVariantTuple, "eq")
		if err != nil {
			return false, err
		}
		defer ra()
		bt, rb, err := b.BorrowRefAs(KindVariantTuple, "eq")
		if err != nil {
			return false, err
		}
		defer rb()
		avt := at.(*VariantTuple)
		bvt := bt.(*VariantTuple)
		if avt.Hash != bvt.Hash {
			return false, nil
		}
		return eqItems(avt.Items, bvt.Items)
	}
	return false, fmt.Errorf("cannot test equality of %s values", a.TypeInfo())
}

func normalizeString(v Value) (string, bool) {
	switch v.kind {
	case KindStaticString:
		return v.ref.(*StaticString).String(), true
	case KindString:
		data, err := v.ref.(*Shared).Snapshot("eq")
		if err != nil {
			return "", false
		}
		return *data.(*string), true
	}
	return "", false
}

func eqItems(a, b []Value) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		ok, err := Eq(a[i], b[i])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func eqObjects(a, b *Object) (bool, error) {
	if a.Len() != b.Len() {
		return false, nil
	}
	for i := 0; i < a.Len(); i++ {
		key, av := a.At(i)
		bv, ok := b.Get(key)
		if !ok {
			return false, nil
		}
		eq, err := Eq(av, bv)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// Debug renders the value for diagnostics and the dbg builtin. Cells
// that cannot be borrowed render as *borrowed*.
func (v Value) Debug() string {
	var sb strings.Builder
	v.debugInto(&sb)
	return sb.String()
}

func (v Value) debugInto(sb *strings.Builder) {
	switch v.kind {
	case KindUnit:
		sb.WriteString("()")
	case KindBool:
		b, _ := v.AsBool()
		sb.WriteString(strconv.FormatBool(b))
	case KindByte:
		b, _ := v.AsByte()
		fmt.Fprintf(sb, "b'%c'", b)
	case KindChar:
		c, _ := v.AsChar()
		fmt.Fprintf(sb, "'%c'", c)
	case KindInteger:
		i, _ := v.AsInteger()
		sb.WriteString(strconv.FormatInt(i, 10))
	case KindFloat:
		f, _ := v.AsFloat()
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case KindType:
		h, _ := v.AsTypeHash()
		fmt.Fprintf(sb, "Type(%s)", h)
	case KindStaticString:
		fmt.Fprintf(sb, "%q", v.ref.(*StaticString).String())
	case KindString:
		s, release, err := v.BorrowString("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		fmt.Fprintf(sb, "%q", *s)
		release()
	case KindBytes:
		b, release, err := v.BorrowBytes("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		fmt.Fprintf(sb, "b%q", string(*b))
		release()
	case KindVec:
		vec, release, err := v.BorrowVec("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		sb.WriteByte('[')
		for i, item := range vec.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.debugInto(sb)
		}
		sb.WriteByte(']')
		release()
	case KindTuple:
		t, release, err := v.BorrowTuple("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		debugTupleInto(sb, t.Items)
		release()
	case KindObject:
		o, release, err := v.BorrowObject("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		debugObjectInto(sb, o)
		release()
	case KindOption:
		opt, release, err := v.BorrowOption("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		if opt.Some {
			sb.WriteString("Some(")
			opt.Value.debugInto(sb)
			sb.WriteByte(')')
		} else {
			sb.WriteString("None")
		}
		release()
	case KindResult:
		res, release, err := v.BorrowResult("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		if res.IsOk {
			sb.WriteString("Ok(")
		} else {
			sb.WriteString("Err(")
		}
		res.Value.debugInto(sb)
		sb.WriteByte(')')
		release()
	case KindGeneratorState:
		st, release, err := v.BorrowGeneratorState("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		if st.Completed {
			sb.WriteString("Complete(")
		} else {
			sb.WriteString("Yielded(")
		}
		st.Value.debugInto(sb)
		sb.WriteByte(')')
		release()
	case KindTypedTuple:
		data, release, err := v.BorrowRefAs(KindTypedTuple, "debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		tt := data.(*TypedTuple)
		fmt.Fprintf(sb, "%s", tt.Type)
		debugTupleInto(sb, tt.Items)
		release()
	case KindVariantTuple:
		data, release, err := v.BorrowRefAs(KindVariantTuple, "debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		vt := data.(*VariantTuple)
		fmt.Fprintf(sb, "%s", vt.Hash)
		debugTupleInto(sb, vt.Items)
		release()
	case KindAny:
		data, err := v.ref.(*Shared).Snapshot("debug")
		if err != nil {
			sb.WriteString("*borrowed*")
			return
		}
		fmt.Fprintf(sb, "%s(..)", data.(*Any).TypeName)
	default:
		sb.WriteString(v.kind.String())
	}
}

func debugTupleInto(sb *strings.Builder, items []Value) {
	sb.WriteByte('(')
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		item.debugInto(sb)
	}
	sb.WriteByte(')')
}

func debugObjectInto(sb *strings.Builder, o *Object) {
	sb.WriteByte('{')
	first := true
	o.Each(func(key string, value Value) bool {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(sb, "%q: ", key)
		value.debugInto(sb)
		return true
	})
	sb.WriteByte('}')
}
