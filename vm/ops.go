package vm

import (
	"math"

	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
)

func (v *Vm) binaryOp(op opcodes.Opcode) error {
	rhs, err := v.stack.Pop()
	if err != nil {
		return err
	}
	lhs, err := v.stack.Pop()
	if err != nil {
		return err
	}
	out, handled, err := v.applyBinary(op, lhs, rhs)
	if err != nil {
		return err
	}
	if handled {
		v.stack.Push(out)
		return nil
	}
	// No built-in meaning: fall back to the operator protocol on the
	// left operand's type.
	if protocol, ok := binaryProtocol(op); ok {
		v.stack.Push(lhs)
		v.stack.Push(rhs)
		if handled, err := v.protocolCall(lhs, protocol, 2); err != nil {
			return err
		} else if handled {
			return nil
		}
		// Restore the stack shape before reporting.
		if err := v.stack.PopN(2); err != nil {
			return err
		}
	}
	return v.err(ErrUnsupportedOperation, "`%s %s %s`", lhs.TypeInfo(), op, rhs.TypeInfo())
}

func binaryProtocol(op opcodes.Opcode) (hash.Protocol, bool) {
	switch op {
	case opcodes.OP_ADD:
		return hash.ProtocolAdd, true
	case opcodes.OP_SUB:
		return hash.ProtocolSub, true
	case opcodes.OP_MUL:
		return hash.ProtocolMul, true
	case opcodes.OP_DIV:
		return hash.ProtocolDiv, true
	case opcodes.OP_MOD:
		return hash.ProtocolRem, true
	}
	return hash.Protocol{}, false
}

// applyBinary computes built-in binary operators. The second return is
// false when the operand types have no built-in meaning for op.
func (v *Vm) applyBinary(op opcodes.Opcode, lhs, rhs values.Value) (values.Value, bool, error) {
	if li, ok := lhs.AsInteger(); ok {
		ri, ok := rhs.AsInteger()
		if !ok {
			return values.Unit(), false, nil
		}
		out, err := v.integerOp(op, li, ri)
		if err != nil {
			return values.Unit(), false, err
		}
		return out, true, nil
	}
	if lf, ok := lhs.AsFloat(); ok {
		rf, ok := rhs.AsFloat()
		if !ok {
			return values.Unit(), false, nil
		}
		out, ok, err := v.floatOp(op, lf, rf)
		return out, ok, err
	}
	if op == opcodes.OP_ADD {
		if ls, ok := stringContent(lhs); ok {
			if rs, ok := stringContent(rhs); ok {
				return values.NewString(ls + rs), true, nil
			}
		}
	}
	return values.Unit(), false, nil
}

func (v *Vm) integerOp(op opcodes.Opcode, a, b int64) (values.Value, error) {
	switch op {
	case opcodes.OP_ADD:
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return values.Unit(), v.err(ErrOverflow, "%d + %d", a, b)
		}
		return values.NewInteger(a + b), nil
	case opcodes.OP_SUB:
		if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
			return values.Unit(), v.err(ErrOverflow, "%d - %d", a, b)
		}
		return values.NewInteger(a - b), nil
	case opcodes.OP_MUL:
		if a != 0 && b != 0 {
			if c := a * b; c/b != a {
				return values.Unit(), v.err(ErrOverflow, "%d * %d", a, b)
			}
		}
		return values.NewInteger(a * b), nil
	case opcodes.OP_DIV:
		if b == 0 {
			return values.Unit(), v.err(ErrDivideByZero, "%d / 0", a)
		}
		if a == math.MinInt64 && b == -1 {
			return values.Unit(), v.err(ErrOverflow, "%d / %d", a, b)
		}
		return values.NewInteger(a / b), nil
	case opcodes.OP_MOD:
		if b == 0 {
			return values.Unit(), v.err(ErrDivideByZero, "%d %% 0", a)
		}
		return values.NewInteger(a % b), nil
	case opcodes.OP_SHL, opcodes.OP_SHR:
		if b < 0 || b >= 64 {
			return values.Unit(), v.err(ErrOverflow, "shift by %d", b)
		}
		if op == opcodes.OP_SHL {
			return values.NewInteger(a << uint(b)), nil
		}
		return values.NewInteger(a >> uint(b)), nil
	case opcodes.OP_BIT_AND:
		return values.NewInteger(a & b), nil
	case opcodes.OP_BIT_OR:
		return values.NewInteger(a | b), nil
	case opcodes.OP_BIT_XOR:
		return values.NewInteger(a ^ b), nil
	}
	return values.Unit(), v.err(ErrBadInstruction, "bad integer op %s", op)
}

func (v *Vm) floatOp(op opcodes.Opcode, a, b float64) (values.Value, bool, error) {
	switch op {
	case opcodes.OP_ADD:
		return values.NewFloat(a + b), true, nil
	case opcodes.OP_SUB:
		return values.NewFloat(a - b), true, nil
	case opcodes.OP_MUL:
		return values.NewFloat(a * b), true, nil
	case opcodes.OP_DIV:
		return values.NewFloat(a / b), true, nil
	case opcodes.OP_MOD:
		return values.NewFloat(math.Mod(a, b)), true, nil
	}
	return values.Unit(), false, nil
}

func stringContent(v values.Value) (string, bool) {
	if s, ok := v.AsStaticString(); ok {
		return s.String(), true
	}
	if v.Kind() != values.KindString {
		return "", false
	}
	s, release, err := v.BorrowString("add")
	if err != nil {
		return "", false
	}
	defer release()
	return *s, true
}

func (v *Vm) negOp() error {
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	if i, ok := val.AsInteger(); ok {
		if i == math.MinInt64 {
			return v.err(ErrOverflow, "-%d", i)
		}
		v.stack.Push(values.NewInteger(-i))
		return nil
	}
	if f, ok := val.AsFloat(); ok {
		v.stack.Push(values.NewFloat(-f))
		return nil
	}
	return v.err(ErrUnsupportedOperation, "`-%s`", val.TypeInfo())
}

func (v *Vm) notOp() error {
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	if b, ok := val.AsBool(); ok {
		v.stack.Push(values.NewBool(!b))
		return nil
	}
	return v.err(ErrUnsupportedOperation, "`!%s`", val.TypeInfo())
}

func (v *Vm) comparisonOp(op opcodes.Opcode) error {
	rhs, err := v.stack.Pop()
	if err != nil {
		return err
	}
	lhs, err := v.stack.Pop()
	if err != nil {
		return err
	}

	switch op {
	case opcodes.OP_EQ, opcodes.OP_NEQ:
		eq, err := values.Eq(lhs, rhs)
		if err != nil {
			return v.wrapErr(err)
		}
		if op == opcodes.OP_NEQ {
			eq = !eq
		}
		v.stack.Push(values.NewBool(eq))
		return nil
	}

	ordering, ok, err := compareValues(lhs, rhs)
	if err != nil {
		return v.wrapErr(err)
	}
	if !ok {
		return v.err(ErrUnsupportedOperation, "`%s %s %s`", lhs.TypeInfo(), op, rhs.TypeInfo())
	}
	var out bool
	switch op {
	case opcodes.OP_LT:
		out = ordering < 0
	case opcodes.OP_LTE:
		out = ordering <= 0
	case opcodes.OP_GT:
		out = ordering > 0
	case opcodes.OP_GTE:
		out = ordering >= 0
	}
	v.stack.Push(values.NewBool(out))
	return nil
}

func compareValues(lhs, rhs values.Value) (int, bool, error) {
	if a, ok := lhs.AsInteger(); ok {
		b, ok := rhs.AsInteger()
		if !ok {
			return 0, false, nil
		}
		return compareOrdered(a, b), true, nil
	}
	if a, ok := lhs.AsFloat(); ok {
		b, ok := rhs.AsFloat()
		if !ok {
			return 0, false, nil
		}
		return compareOrdered(a, b), true, nil
	}
	if a, ok := lhs.AsByte(); ok {
		b, ok := rhs.AsByte()
		if !ok {
			return 0, false, nil
		}
		return compareOrdered(a, b), true, nil
	}
	if a, ok := lhs.AsChar(); ok {
		b, ok := rhs.AsChar()
		if !ok {
			return 0, false, nil
		}
		return compareOrdered(a, b), true, nil
	}
	if a, ok := stringContent(lhs); ok {
		b, ok := stringContent(rhs)
		if !ok {
			return 0, false, nil
		}
		return compareOrdered(a, b), true, nil
	}
	return 0, false, nil
}

func compareOrdered[T int64 | float64 | byte | rune | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (v *Vm) isOp() error {
	typeVal, err := v.stack.Pop()
	if err != nil {
		return err
	}
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	expected, ok := typeVal.AsTypeHash()
	if !ok {
		return v.err(ErrUnsupportedOperation, "`is` expects a type, found %s", typeVal.TypeInfo())
	}
	actual, err := val.TypeHash()
	if err != nil {
		return v.wrapErr(err)
	}
	v.stack.Push(values.NewBool(actual == expected))
	return nil
}

func (v *Vm) isErrOp() error {
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	res, release, err := val.BorrowResult("is_err")
	if err != nil {
		return v.wrapErr(err)
	}
	defer release()
	v.stack.Push(values.NewBool(!res.IsOk))
	return nil
}

func (v *Vm) boolOp(op opcodes.Opcode) error {
	rhs, err := v.popBool()
	if err != nil {
		return err
	}
	lhs, err := v.popBool()
	if err != nil {
		return err
	}
	if op == opcodes.OP_AND {
		v.stack.Push(values.NewBool(lhs && rhs))
	} else {
		v.stack.Push(values.NewBool(lhs || rhs))
	}
	return nil
}

func (v *Vm) compoundAssign(inst opcodes.Instruction) error {
	var op opcodes.Opcode
	switch inst.Opcode {
	case opcodes.OP_ADD_ASSIGN:
		op = opcodes.OP_ADD
	case opcodes.OP_SUB_ASSIGN:
		op = opcodes.OP_SUB
	case opcodes.OP_MUL_ASSIGN:
		op = opcodes.OP_MUL
	case opcodes.OP_DIV_ASSIGN:
		op = opcodes.OP_DIV
	case opcodes.OP_MOD_ASSIGN:
		op = opcodes.OP_MOD
	case opcodes.OP_SHL_ASSIGN:
		op = opcodes.OP_SHL
	case opcodes.OP_SHR_ASSIGN:
		op = opcodes.OP_SHR
	case opcodes.OP_BIT_AND_ASSIGN:
		op = opcodes.OP_BIT_AND
	case opcodes.OP_BIT_OR_ASSIGN:
		op = opcodes.OP_BIT_OR
	case opcodes.OP_BIT_XOR_ASSIGN:
		op = opcodes.OP_BIT_XOR
	}

	rhs, err := v.stack.Pop()
	if err != nil {
		return err
	}
	lhs, err := v.stack.At(inst.A)
	if err != nil {
		return err
	}
	out, handled, err := v.applyBinary(op, lhs, rhs)
	if err != nil {
		return err
	}
	if !handled {
		return v.err(ErrUnsupportedOperation, "`%s %s= %s`", lhs.TypeInfo(), op, rhs.TypeInfo())
	}
	return v.stack.SetAt(inst.A, out)
}

func (v *Vm) buildAggregate(inst opcodes.Instruction) error {
	switch inst.Opcode {
	case opcodes.OP_VEC:
		items, err := v.stack.Drain(inst.B)
		if err != nil {
			return err
		}
		v.stack.Push(values.NewVec(items))
	case opcodes.OP_TUPLE:
		items, err := v.stack.Drain(inst.B)
		if err != nil {
			return err
		}
		v.stack.Push(values.NewTuple(items))
	case opcodes.OP_TYPED_TUPLE:
		if _, ok := v.unit.LookupRtti(inst.Hash); !ok {
			return &Error{Kind: ErrMissingRtti, IP: v.lastIP, Hash: inst.Hash, unit: v.unit}
		}
		items, err := v.stack.Drain(inst.B)
		if err != nil {
			return err
		}
		v.stack.Push(values.NewTypedTuple(inst.Hash, items))
	case opcodes.OP_VARIANT_TUPLE:
		if _, ok := v.unit.LookupVariantRtti(inst.Hash); !ok {
			return &Error{Kind: ErrMissingRtti, IP: v.lastIP, Hash: inst.Hash, unit: v.unit}
		}
		items, err := v.stack.Drain(inst.B)
		if err != nil {
			return err
		}
		v.stack.Push(values.NewVariantTuple(inst.Hash2, inst.Hash, items))
	case opcodes.OP_OBJECT, opcodes.OP_TYPED_OBJECT, opcodes.OP_VARIANT_OBJECT:
		keys, err := v.unit.LookupObjectKeys(inst.A)
		if err != nil {
			return v.err(ErrBadInstruction, "%s", err)
		}
		items, err := v.stack.Drain(len(keys))
		if err != nil {
			return err
		}
		obj := values.NewObjectWith(keys, items)
		switch inst.Opcode {
		case opcodes.OP_OBJECT:
			v.stack.Push(values.NewObjectValue(obj))
		case opcodes.OP_TYPED_OBJECT:
			if _, ok := v.unit.LookupRtti(inst.Hash); !ok {
				return &Error{Kind: ErrMissingRtti, IP: v.lastIP, Hash: inst.Hash, unit: v.unit}
			}
			v.stack.Push(values.NewTypedObject(inst.Hash, obj))
		case opcodes.OP_VARIANT_OBJECT:
			if _, ok := v.unit.LookupVariantRtti(inst.Hash); !ok {
				return &Error{Kind: ErrMissingRtti, IP: v.lastIP, Hash: inst.Hash, unit: v.unit}
			}
			v.stack.Push(values.NewVariantObject(inst.Hash2, inst.Hash, obj))
		}
	}
	return nil
}

func (v *Vm) opIndexGet() error {
	index, err := v.stack.Pop()
	if err != nil {
		return err
	}
	target, err := v.stack.Pop()
	if err != nil {
		return err
	}

	switch target.Kind() {
	case values.KindVec:
		i, ok := index.AsInteger()
		if !ok {
			return v.err(ErrUnsupportedOperation, "vec index must be int, found %s", index.TypeInfo())
		}
		vec, release, err := target.BorrowVec("index_get")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		if i < 0 || int(i) >= len(vec.Items) {
			return v.err(ErrBadIndex, "index %d out of range 0..%d", i, len(vec.Items))
		}
		v.stack.Push(vec.Items[i])
		return nil
	case values.KindTuple:
		i, ok := index.AsInteger()
		if !ok {
			return v.err(ErrUnsupportedOperation, "tuple index must be int, found %s", index.TypeInfo())
		}
		t, release, err := target.BorrowTuple("index_get")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		if i < 0 || int(i) >= len(t.Items) {
			return v.err(ErrBadIndex, "index %d out of range 0..%d", i, len(t.Items))
		}
		v.stack.Push(t.Items[i])
		return nil
	case values.KindObject:
		key, ok := stringContent(index)
		if !ok {
			return v.err(ErrUnsupportedOperation, "object index must be string, found %s", index.TypeInfo())
		}
		obj, release, err := target.BorrowObject("index_get")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		val, ok := obj.Get(key)
		if !ok {
			return v.err(ErrBadIndex, "missing key %q", key)
		}
		v.stack.Push(val)
		return nil
	}

	// Index reads on host types go through the index protocol.
	v.stack.Push(target)
	v.stack.Push(index)
	if handled, err := v.protocolCall(target, hash.ProtocolIndexGet, 2); err != nil {
		return err
	} else if handled {
		return nil
	}
	if err := v.stack.PopN(2); err != nil {
		return err
	}
	return v.err(ErrUnsupportedOperation, "cannot index %s", target.TypeInfo())
}

func (v *Vm) opIndexSet() error {
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	index, err := v.stack.Pop()
	if err != nil {
		return err
	}
	target, err := v.stack.Pop()
	if err != nil {
		return err
	}

	switch target.Kind() {
	case values.KindVec:
		i, ok := index.AsInteger()
		if !ok {
			return v.err(ErrUnsupportedOperation, "vec index must be int, found %s", index.TypeInfo())
		}
		vec, release, err := target.BorrowVecMut("index_set")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		if i < 0 || int(i) >= len(vec.Items) {
			return v.err(ErrBadIndex, "index %d out of range 0..%d", i, len(vec.Items))
		}
		vec.Items[i] = val
		return nil
	case values.KindObject:
		key, ok := stringContent(index)
		if !ok {
			return v.err(ErrUnsupportedOperation, "object index must be string, found %s", index.TypeInfo())
		}
		obj, release, err := target.BorrowObjectMut("index_set")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		obj.Insert(key, val)
		return nil
	}
	return v.err(ErrUnsupportedOperation, "cannot index-assign %s", target.TypeInfo())
}

// tupleLikeGet reads element index of any tuple-shaped value,
// including the payloads of Option, Result and GeneratorState.
func (v *Vm) tupleLikeGet(target values.Value, index int) (values.Value, error) {
	fromItems := func(items []values.Value) (values.Value, error) {
		if index < 0 || index >= len(items) {
			return values.Unit(), v.err(ErrBadIndex, "tuple index %d out of range 0..%d", index, len(items))
		}
		return items[index], nil
	}

	switch target.Kind() {
	case values.KindTuple:
		t, release, err := target.BorrowTuple("tuple_index_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return fromItems(t.Items)
	case values.KindVec:
		vec, release, err := target.BorrowVec("tuple_index_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return fromItems(vec.Items)
	case values.KindTypedTuple:
		data, release, err := target.BorrowRefAs(values.KindTypedTuple, "tuple_index_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return fromItems(data.(*values.TypedTuple).Items)
	case values.KindVariantTuple:
		data, release, err := target.BorrowRefAs(values.KindVariantTuple, "tuple_index_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return fromItems(data.(*values.VariantTuple).Items)
	case values.KindOption:
		opt, release, err := target.BorrowOption("tuple_index_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		if !opt.Some {
			return fromItems(nil)
		}
		return fromItems([]values.Value{opt.Value})
	case values.KindResult:
		res, release, err := target.BorrowResult("tuple_index_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return fromItems([]values.Value{res.Value})
	case values.KindGeneratorState:
		st, release, err := target.BorrowGeneratorState("tuple_index_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return fromItems([]values.Value{st.Value})
	}
	return values.Unit(), v.err(ErrUnsupportedOperation, "%s is not tuple-like", target.TypeInfo())
}

func (v *Vm) opTupleIndexGetAt(offset, index int) error {
	target, err := v.stack.At(offset)
	if err != nil {
		return err
	}
	out, err := v.tupleLikeGet(target, index)
	if err != nil {
		return err
	}
	v.stack.Push(out)
	return nil
}

// objectLikeGet reads a named field of any object-shaped value.
func (v *Vm) objectLikeGet(target values.Value, field string) (values.Value, error) {
	read := func(obj *values.Object) (values.Value, error) {
		val, ok := obj.Get(field)
		if !ok {
			return values.Unit(), v.err(ErrBadIndex, "missing field %q", field)
		}
		return val, nil
	}

	switch target.Kind() {
	case values.KindObject:
		obj, release, err := target.BorrowObject("field_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return read(obj)
	case values.KindTypedObject:
		data, release, err := target.BorrowRefAs(values.KindTypedObject, "field_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return read(data.(*values.TypedObject).Object)
	case values.KindVariantObject:
		data, release, err := target.BorrowRefAs(values.KindVariantObject, "field_get")
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		defer release()
		return read(data.(*values.VariantObject).Object)
	}
	return values.Unit(), v.err(ErrUnsupportedOperation, "%s has no fields", target.TypeInfo())
}

func (v *Vm) opObjectIndexGetAt(offset, slot int) error {
	field, err := v.unit.LookupString(slot)
	if err != nil {
		return v.err(ErrBadInstruction, "%s", err)
	}
	target, err := v.stack.At(offset)
	if err != nil {
		return err
	}
	out, err := v.objectLikeGet(target, field.String())
	if err != nil {
		return err
	}
	v.stack.Push(out)
	return nil
}

func (v *Vm) opFieldGet(slot int) error {
	field, err := v.unit.LookupString(slot)
	if err != nil {
		return v.err(ErrBadInstruction, "%s", err)
	}
	target, err := v.stack.Pop()
	if err != nil {
		return err
	}
	out, err := v.objectLikeGet(target, field.String())
	if err != nil {
		return err
	}
	v.stack.Push(out)
	return nil
}

func (v *Vm) opFieldSet(slot int) error {
	field, err := v.unit.LookupString(slot)
	if err != nil {
		return v.err(ErrBadInstruction, "%s", err)
	}
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	target, err := v.stack.Pop()
	if err != nil {
		return err
	}

	write := func(obj *values.Object) {
		obj.Insert(field.String(), val)
	}

	switch target.Kind() {
	case values.KindObject:
		obj, release, err := target.BorrowObjectMut("field_set")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		write(obj)
		return nil
	case values.KindTypedObject:
		data, release, err := target.BorrowMutAs(values.KindTypedObject, "field_set")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		write(data.(*values.TypedObject).Object)
		return nil
	case values.KindVariantObject:
		data, release, err := target.BorrowMutAs(values.KindVariantObject, "field_set")
		if err != nil {
			return v.wrapErr(err)
		}
		defer release()
		write(data.(*values.VariantObject).Object)
		return nil
	}
	return v.err(ErrUnsupportedOperation, "%s has no fields", target.TypeInfo())
}
