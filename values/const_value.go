package values

import "fmt"

// ConstKind tags a compile-time constant.
type ConstKind byte

const (
	ConstUnit ConstKind = iota
	ConstBool
	ConstByte
	ConstChar
	ConstInteger
	ConstFloat
	ConstString
	ConstBytes
	ConstVec
	ConstTuple
	ConstObject
	ConstOption
)

// ConstPair is one entry of a constant object.
type ConstPair struct {
	Key   string
	Value ConstValue
}

// ConstValue is the restricted value tree that can be stored in a
// unit's or context's constant pool. Constants carry no cells, so they
// can be shared freely and converted to fresh runtime values on use.
type ConstValue struct {
	Kind    ConstKind
	Bool    bool
	Byte    byte
	Char    rune
	Integer int64
	Float   float64
	String  string
	Bytes   []byte
	Items   []ConstValue
	Pairs   []ConstPair
	// Some distinguishes Some(Items[0]) from None for ConstOption.
	Some bool
}

func ConstUnitValue() ConstValue       { return ConstValue{Kind: ConstUnit} }
func ConstBoolValue(b bool) ConstValue { return ConstValue{Kind: ConstBool, Bool: b} }
func ConstByteValue(b byte) ConstValue { return ConstValue{Kind: ConstByte, Byte: b} }
func ConstCharValue(c rune) ConstValue { return ConstValue{Kind: ConstChar, Char: c} }
func ConstIntegerValue(i int64) ConstValue {
	return ConstValue{Kind: ConstInteger, Integer: i}
}
func ConstFloatValue(f float64) ConstValue {
	return ConstValue{Kind: ConstFloat, Float: f}
}
func ConstStringValue(s string) ConstValue {
	return ConstValue{Kind: ConstString, String: s}
}
func ConstBytesValue(b []byte) ConstValue {
	return ConstValue{Kind: ConstBytes, Bytes: b}
}
func ConstVecValue(items []ConstValue) ConstValue {
	return ConstValue{Kind: ConstVec, Items: items}
}
func ConstTupleValue(items []ConstValue) ConstValue {
	return ConstValue{Kind: ConstTuple, Items: items}
}
func ConstObjectValue(pairs []ConstPair) ConstValue {
	return ConstValue{Kind: ConstObject, Pairs: pairs}
}
func ConstSomeValue(inner ConstValue) ConstValue {
	return ConstValue{Kind: ConstOption, Some: true, Items: []ConstValue{inner}}
}
func ConstNoneValue() ConstValue { return ConstValue{Kind: ConstOption} }

// ToValue materializes the constant as a fresh runtime value.
func (c ConstValue) ToValue() Value {
	switch c.Kind {
	case ConstBool:
		return NewBool(c.Bool)
	case ConstByte:
		return NewByte(c.Byte)
	case ConstChar:
		return NewChar(c.Char)
	case ConstInteger:
		return NewInteger(c.Integer)
	case ConstFloat:
		return NewFloat(c.Float)
	case ConstString:
		return NewString(c.String)
	case ConstBytes:
		return NewBytes(append([]byte(nil), c.Bytes...))
	case ConstVec:
		items := make([]Value, len(c.Items))
		for i, item := range c.Items {
			items[i] = item.ToValue()
		}
		return NewVec(items)
	case ConstTuple:
		items := make([]Value, len(c.Items))
		for i, item := range c.Items {
			items[i] = item.ToValue()
		}
		return NewTuple(items)
	case ConstObject:
		o := NewObject()
		for _, pair := range c.Pairs {
			o.Insert(pair.Key, pair.Value.ToValue())
		}
		return NewObjectValue(o)
	case ConstOption:
		if c.Some {
			return NewSome(c.Items[0].ToValue())
		}
		return NewNone()
	default:
		return Unit()
	}
}

// ConstFromValue converts a runtime value back into a constant, if it
// fits the restricted tree.
func ConstFromValue(v Value) (ConstValue, error) {
	switch v.Kind() {
	case KindUnit:
		return ConstUnitValue(), nil
	case KindBool:
		b, _ := v.AsBool()
		return ConstBoolValue(b), nil
	case KindByte:
		b, _ := v.AsByte()
		return ConstByteValue(b), nil
	case KindChar:
		c, _ := v.AsChar()
		return ConstCharValue(c), nil
	case KindInteger:
		i, _ := v.AsInteger()
		return ConstIntegerValue(i), nil
	case KindFloat:
		f, _ := v.AsFloat()
		return ConstFloatValue(f), nil
	case KindStaticString:
		s, _ := v.AsStaticString()
		return ConstStringValue(s.String()), nil
	case KindString:
		s, release, err := v.BorrowString("const")
		if err != nil {
			return ConstValue{}, err
		}
		defer release()
		return ConstStringValue(*s), nil
	case KindBytes:
		b, release, err := v.BorrowBytes("const")
		if err != nil {
			return ConstValue{}, err
		}
		defer release()
		return ConstBytesValue(append([]byte(nil), *b...)), nil
	case KindVec:
		vec, release, err := v.BorrowVec("const")
		if err != nil {
			return ConstValue{}, err
		}
		defer release()
		items, err := constItems(vec.Items)
		if err != nil {
			return ConstValue{}, err
		}
		return ConstVecValue(items), nil
	case KindTuple:
		t, release, err := v.BorrowTuple("const")
		if err != nil {
			return ConstValue{}, err
		}
		defer release()
		items, err := constItems(t.Items)
		if err != nil {
			return ConstValue{}, err
		}
		return ConstTupleValue(items), nil
	case KindObject:
		o, release, err := v.BorrowObject("const")
		if err != nil {
			return ConstValue{}, err
		}
		defer release()
		pairs := make([]ConstPair, 0, o.Len())
		var convErr error
		o.Each(func(key string, value Value) bool {
			c, err := ConstFromValue(value)
			if err != nil {
				convErr = err
				return false
			}
			pairs = append(pairs, ConstPair{Key: key, Value: c})
			return true
		})
		if convErr != nil {
			return ConstValue{}, convErr
		}
		return ConstObjectValue(pairs), nil
	case KindOption:
		opt, release, err := v.BorrowOption("const")
		if err != nil {
			return ConstValue{}, err
		}
		defer release()
		if !opt.Some {
			return ConstNoneValue(), nil
		}
		inner, err := ConstFromValue(opt.Value)
		if err != nil {
			return ConstValue{}, err
		}
		return ConstSomeValue(inner), nil
	}
	return ConstValue{}, fmt.Errorf("%s cannot be a constant", v.TypeInfo())
}

func constItems(items []Value) ([]ConstValue, error) {
	out := make([]ConstValue, len(items))
	for i, item := range items {
		c, err := ConstFromValue(item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}
