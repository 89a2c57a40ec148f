package vm

import (
	"fmt"

	"github.com/runelang/rune/compiler"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/values"
)

// callHandler invokes a native handler, converting a Go panic into an
// ordinary error so the VM never unwinds through host code.
func callHandler(handler values.Handler, stack *values.Stack, args int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(stack, args)
}

// construct synthesizes an aggregate value for a constructor entry in
// the function table, consuming fn.Args values from the stack.
func (v *Vm) construct(fn compiler.UnitFn, stack *values.Stack) (values.Value, error) {
	switch fn.Kind {
	case compiler.UnitFnUnitStruct:
		return values.NewTypedTuple(fn.Hash, nil), nil
	case compiler.UnitFnTupleStruct:
		items, err := stack.Drain(fn.Args)
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		return values.NewTypedTuple(fn.Hash, items), nil
	case compiler.UnitFnUnitVariant:
		return values.NewVariantTuple(fn.Enum, fn.Hash, nil), nil
	case compiler.UnitFnTupleVariant:
		items, err := stack.Drain(fn.Args)
		if err != nil {
			return values.Unit(), v.wrapErr(err)
		}
		return values.NewVariantTuple(fn.Enum, fn.Hash, items), nil
	}
	return values.Unit(), v.err(ErrBadInstruction, "not a constructor")
}

// enterOffsetFn transfers control into a unit function whose args are
// already on the stack. Non-immediate call kinds suspend the body
// behind a wrapper value instead of executing it.
func (v *Vm) enterOffsetFn(fn compiler.UnitFn, args int) error {
	if fn.Args >= 0 && fn.Args != args {
		return v.err(ErrBadArgumentCount, "expected %d arguments, got %d", fn.Args, args)
	}

	if fn.Call != values.CallImmediate {
		fnArgs, err := v.stack.Drain(args)
		if err != nil {
			return err
		}
		child := v.fork(fn, fnArgs)
		v.stack.Push(child.wrapper(fn.Call))
		return nil
	}

	if err := v.pushFrame(v.stack.Len() - args); err != nil {
		return err
	}
	v.ip = fn.Offset
	return nil
}

// callUnitFn dispatches a resolved function table entry with args
// already on the stack.
func (v *Vm) callUnitFn(fn compiler.UnitFn, args int) error {
	if fn.Kind == compiler.UnitFnOffset {
		return v.enterOffsetFn(fn, args)
	}
	if fn.Args != args {
		return v.err(ErrBadArgumentCount, "expected %d arguments, got %d", fn.Args, args)
	}
	out, err := v.construct(fn, v.stack)
	if err != nil {
		return err
	}
	v.stack.Push(out)
	return nil
}

// opCall resolves hash in the unit first, then in the context.
func (v *Vm) opCall(h hash.Hash, args int) error {
	if fn, ok := v.unit.Function(h); ok {
		return v.callUnitFn(fn, args)
	}
	if handler, ok := v.rt.Function(h); ok {
		if err := callHandler(handler, v.stack, args); err != nil {
			return v.wrapErr(err)
		}
		return nil
	}
	return &Error{Kind: ErrMissingFunction, IP: v.lastIP, Hash: h, unit: v.unit}
}

// resolveInstance resolves an instance key against the unit and the
// context through the dispatch cache.
func (v *Vm) resolveInstance(key hash.Hash) (resolvedFn, bool) {
	if cached, ok := v.cache.Get(key); ok {
		return cached, true
	}
	if fn, ok := v.unit.Function(key); ok {
		resolved := resolvedFn{unitFn: fn, hasUnit: true}
		v.cache.Add(key, resolved)
		return resolved, true
	}
	if handler, ok := v.rt.Function(key); ok {
		resolved := resolvedFn{handler: handler}
		v.cache.Add(key, resolved)
		return resolved, true
	}
	return resolvedFn{}, false
}

func (v *Vm) dispatchResolved(resolved resolvedFn, args int) error {
	if resolved.hasUnit {
		return v.callUnitFn(resolved.unitFn, args)
	}
	if err := callHandler(resolved.handler, v.stack, args); err != nil {
		return v.wrapErr(err)
	}
	return nil
}

// opCallInstance dispatches on the receiver's type: the receiver sits
// at the bottom of the args block and counts toward args.
func (v *Vm) opCallInstance(nameHash hash.Hash, args int) error {
	receiver, err := v.stack.Get(v.stack.Len() - args)
	if err != nil {
		return err
	}
	typeHash, err := receiver.TypeHash()
	if err != nil {
		return v.wrapErr(err)
	}

	key := hash.Instance(typeHash, nameHash)
	resolved, ok := v.resolveInstance(key)
	if !ok {
		return &Error{
			Kind:     ErrMissingInstanceFunction,
			IP:       v.lastIP,
			Hash:     nameHash,
			Instance: typeHash,
			unit:     v.unit,
		}
	}
	return v.dispatchResolved(resolved, args)
}

// protocolCall dispatches a protocol implementation for the receiver,
// with the receiver and arguments already on the stack. It reports
// false without touching the stack when the type has no
// implementation.
func (v *Vm) protocolCall(receiver values.Value, protocol hash.Protocol, args int) (bool, error) {
	typeHash, err := receiver.TypeHash()
	if err != nil {
		return false, v.wrapErr(err)
	}
	resolved, ok := v.resolveInstance(hash.Instance(typeHash, protocol.Hash))
	if !ok {
		return false, nil
	}
	if err := v.dispatchResolved(resolved, args); err != nil {
		return false, err
	}
	return true, nil
}

// opLoadInstanceFn pops the receiver and caches its resolved instance
// function as a first-class value.
func (v *Vm) opLoadInstanceFn(nameHash hash.Hash) error {
	receiver, err := v.stack.Pop()
	if err != nil {
		return err
	}
	typeHash, err := receiver.TypeHash()
	if err != nil {
		return v.wrapErr(err)
	}
	key := hash.Instance(typeHash, nameHash)
	resolved, ok := v.resolveInstance(key)
	if !ok {
		return &Error{
			Kind:     ErrMissingInstanceFunction,
			IP:       v.lastIP,
			Hash:     nameHash,
			Instance: typeHash,
			unit:     v.unit,
		}
	}
	var fn *values.Function
	if resolved.hasUnit {
		fn = values.NewOffsetFunction(key, resolved.unitFn.Args, resolved.unitFn.Call)
	} else {
		fn = values.NewHandlerFunction(resolved.handler)
	}
	v.stack.Push(values.NewFunctionValue(fn))
	return nil
}

// opCallFn calls the first-class function value sitting under args.
func (v *Vm) opCallFn(args int) error {
	index := v.stack.Len() - 1 - args
	fnVal, err := v.stack.Remove(index)
	if err != nil {
		return err
	}
	fn, release, err := fnVal.BorrowFunction("call_fn")
	if err != nil {
		return v.wrapErr(err)
	}
	kind := *fn
	release()

	switch kind.Kind {
	case values.FunctionOffset:
		target, ok := v.unit.Function(kind.Hash)
		if !ok {
			return &Error{Kind: ErrMissingFunction, IP: v.lastIP, Hash: kind.Hash, unit: v.unit}
		}
		return v.callUnitFn(target, args)
	case values.FunctionClosure:
		target, ok := v.unit.Function(kind.Hash)
		if !ok {
			return &Error{Kind: ErrMissingFunction, IP: v.lastIP, Hash: kind.Hash, unit: v.unit}
		}
		// Captures enter as additional leading arguments.
		if err := v.stack.Insert(v.stack.Len()-args, kind.Environment...); err != nil {
			return err
		}
		return v.callUnitFn(target, args+len(kind.Environment))
	case values.FunctionHandler:
		if err := callHandler(kind.Handler, v.stack, args); err != nil {
			return v.wrapErr(err)
		}
		return nil
	case values.FunctionVariantConstructor:
		if kind.Args != args {
			return v.err(ErrBadArgumentCount, "expected %d arguments, got %d", kind.Args, args)
		}
		items, err := v.stack.Drain(args)
		if err != nil {
			return err
		}
		v.stack.Push(values.NewVariantTuple(kind.Enum, kind.Hash, items))
		return nil
	case values.FunctionTupleConstructor:
		if kind.Args != args {
			return v.err(ErrBadArgumentCount, "expected %d arguments, got %d", kind.Args, args)
		}
		items, err := v.stack.Drain(args)
		if err != nil {
			return err
		}
		v.stack.Push(values.NewTypedTuple(kind.Hash, items))
		return nil
	}
	return v.err(ErrBadInstruction, "unknown function kind")
}
