package vm

import (
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
)

func lengthMatches(actual, wanted int, exact bool) bool {
	if exact {
		return actual == wanted
	}
	return wanted <= actual
}

// opMatchSequence pops the candidate and pushes whether it has the
// required static shape and length.
func (v *Vm) opMatchSequence(inst opcodes.Instruction) error {
	candidate, err := v.stack.Pop()
	if err != nil {
		return err
	}
	ok, err := v.matchSequence(candidate, inst.Check, inst.A, inst.Exact)
	if err != nil {
		return err
	}
	v.stack.Push(values.NewBool(ok))
	return nil
}

func (v *Vm) matchSequence(candidate values.Value, check opcodes.TypeCheck, length int, exact bool) (bool, error) {
	switch check.Kind {
	case opcodes.TypeCheckUnit:
		return candidate.IsUnit(), nil

	case opcodes.TypeCheckTuple:
		if candidate.Kind() != values.KindTuple {
			return false, nil
		}
		t, release, err := candidate.BorrowTuple("match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		return lengthMatches(len(t.Items), length, exact), nil

	case opcodes.TypeCheckVec:
		if candidate.Kind() != values.KindVec {
			return false, nil
		}
		vec, release, err := candidate.BorrowVec("match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		return lengthMatches(len(vec.Items), length, exact), nil

	case opcodes.TypeCheckResult:
		if candidate.Kind() != values.KindResult {
			return false, nil
		}
		res, release, err := candidate.BorrowResult("match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		if res.IsOk != (check.Index == 0) {
			return false, nil
		}
		return lengthMatches(1, length, exact), nil

	case opcodes.TypeCheckOption:
		if candidate.Kind() != values.KindOption {
			return false, nil
		}
		opt, release, err := candidate.BorrowOption("match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		if opt.Some != (check.Index == 0) {
			return false, nil
		}
		payload := 0
		if opt.Some {
			payload = 1
		}
		return lengthMatches(payload, length, exact), nil

	case opcodes.TypeCheckGeneratorState:
		if candidate.Kind() != values.KindGeneratorState {
			return false, nil
		}
		st, release, err := candidate.BorrowGeneratorState("match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		if st.Completed != (check.Index == 1) {
			return false, nil
		}
		return lengthMatches(1, length, exact), nil

	case opcodes.TypeCheckType:
		if candidate.Kind() != values.KindTypedTuple {
			return false, nil
		}
		data, release, err := candidate.BorrowRefAs(values.KindTypedTuple, "match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		tt := data.(*values.TypedTuple)
		if tt.Type != check.Hash {
			return false, nil
		}
		return lengthMatches(len(tt.Items), length, exact), nil

	case opcodes.TypeCheckVariant:
		if candidate.Kind() != values.KindVariantTuple {
			return false, nil
		}
		data, release, err := candidate.BorrowRefAs(values.KindVariantTuple, "match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		vt := data.(*values.VariantTuple)
		if vt.Hash != check.Hash {
			return false, nil
		}
		return lengthMatches(len(vt.Items), length, exact), nil
	}
	return false, nil
}

// opMatchObject pops the candidate and pushes whether it is an
// object-shaped value containing the static key set.
func (v *Vm) opMatchObject(inst opcodes.Instruction) error {
	candidate, err := v.stack.Pop()
	if err != nil {
		return err
	}
	keys, err := v.unit.LookupObjectKeys(inst.A)
	if err != nil {
		return v.err(ErrBadInstruction, "%s", err)
	}
	ok, err := v.matchObject(candidate, inst.Check, keys, inst.Exact)
	if err != nil {
		return err
	}
	v.stack.Push(values.NewBool(ok))
	return nil
}

func (v *Vm) matchObject(candidate values.Value, check opcodes.TypeCheck, keys []string, exact bool) (bool, error) {
	matchKeys := func(obj *values.Object) bool {
		if exact && obj.Len() != len(keys) {
			return false
		}
		for _, key := range keys {
			if !obj.Contains(key) {
				return false
			}
		}
		return true
	}

	switch check.Kind {
	case opcodes.TypeCheckObject:
		if candidate.Kind() != values.KindObject {
			return false, nil
		}
		obj, release, err := candidate.BorrowObject("match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		return matchKeys(obj), nil

	case opcodes.TypeCheckType:
		if candidate.Kind() != values.KindTypedObject {
			return false, nil
		}
		data, release, err := candidate.BorrowRefAs(values.KindTypedObject, "match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		to := data.(*values.TypedObject)
		if to.Type != check.Hash {
			return false, nil
		}
		return matchKeys(to.Object), nil

	case opcodes.TypeCheckVariant:
		if candidate.Kind() != values.KindVariantObject {
			return false, nil
		}
		data, release, err := candidate.BorrowRefAs(values.KindVariantObject, "match")
		if err != nil {
			return false, v.wrapErr(err)
		}
		defer release()
		vo := data.(*values.VariantObject)
		if vo.Hash != check.Hash {
			return false, nil
		}
		return matchKeys(vo.Object), nil
	}
	return false, nil
}

// opEqImmediate pops a value and pushes whether it equals the inline
// immediate. Kind mismatches are false, never errors.
func (v *Vm) opEqImmediate(inst opcodes.Instruction) error {
	candidate, err := v.stack.Pop()
	if err != nil {
		return err
	}
	var out bool
	switch inst.Opcode {
	case opcodes.OP_EQ_BYTE:
		b, ok := candidate.AsByte()
		out = ok && b == byte(inst.Imm.Int)
	case opcodes.OP_EQ_CHARACTER:
		c, ok := candidate.AsChar()
		out = ok && c == rune(inst.Imm.Int)
	case opcodes.OP_EQ_INTEGER:
		i, ok := candidate.AsInteger()
		out = ok && i == inst.Imm.Int
	}
	v.stack.Push(values.NewBool(out))
	return nil
}

func (v *Vm) opEqStaticString(slot int) error {
	expected, err := v.unit.LookupString(slot)
	if err != nil {
		return v.err(ErrBadInstruction, "%s", err)
	}
	candidate, err := v.stack.Pop()
	if err != nil {
		return err
	}

	// Interned strings from the same pool compare by identity first.
	if s, ok := candidate.AsStaticString(); ok {
		v.stack.Push(values.NewBool(s == expected || s.Eq(expected)))
		return nil
	}
	if content, ok := stringContent(candidate); ok {
		v.stack.Push(values.NewBool(expected.EqString(content)))
		return nil
	}
	v.stack.Push(values.NewBool(false))
	return nil
}
