package modules

import (
	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// VecModule registers the Vec type and its instance functions,
// including the iterator surface used by for loops.
func VecModule() (*registry.Module, error) {
	m := registry.NewModule("std", "vec")
	if _, err := m.NamedType("Vec", "vec"); err != nil {
		return nil, err
	}

	if err := m.Function("new", 0, func([]values.Value) (values.Value, error) {
		return values.NewVec(nil), nil
	}); err != nil {
		return nil, err
	}

	if err := m.InstFn("Vec", "len", 0, func(args []values.Value) (values.Value, error) {
		vec, release, err := args[0].BorrowVec("len")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewInteger(int64(len(vec.Items))), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Vec", "is_empty", 0, func(args []values.Value) (values.Value, error) {
		vec, release, err := args[0].BorrowVec("is_empty")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(len(vec.Items) == 0), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Vec", "push", 1, func(args []values.Value) (values.Value, error) {
		vec, release, err := args[0].BorrowVecMut("push")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		vec.Items = append(vec.Items, args[1])
		return values.Unit(), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Vec", "pop", 0, func(args []values.Value) (values.Value, error) {
		vec, release, err := args[0].BorrowVecMut("pop")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		if len(vec.Items) == 0 {
			return values.NewNone(), nil
		}
		out := vec.Items[len(vec.Items)-1]
		vec.Items = vec.Items[:len(vec.Items)-1]
		return values.NewSome(out), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Vec", "get", 1, func(args []values.Value) (values.Value, error) {
		i, err := integerValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		vec, release, err := args[0].BorrowVec("get")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		if i < 0 || int(i) >= len(vec.Items) {
			return values.NewNone(), nil
		}
		return values.NewSome(vec.Items[i]), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Vec", "clear", 0, func(args []values.Value) (values.Value, error) {
		vec, release, err := args[0].BorrowVecMut("clear")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		vec.Items = nil
		return values.Unit(), nil
	}); err != nil {
		return nil, err
	}

	// iter produces a generator reading the vec lazily; each step
	// takes its own shared borrow so mutation during iteration is an
	// access error, not corruption.
	if err := m.InstFn("Vec", "iter", 0, func(args []values.Value) (values.Value, error) {
		receiver := args[0]
		index := 0
		return values.NewGeneratorValue(values.NativeGenerator(func() (values.Value, bool, error) {
			vec, release, err := receiver.BorrowVec("iter")
			if err != nil {
				return values.Unit(), false, err
			}
			defer release()
			if index >= len(vec.Items) {
				return values.Unit(), false, nil
			}
			out := vec.Items[index]
			index++
			return out, true, nil
		})), nil
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// ObjectModule registers the Object type and its instance functions.
func ObjectModule() (*registry.Module, error) {
	m := registry.NewModule("std", "object")
	if _, err := m.NamedType("Object", "object"); err != nil {
		return nil, err
	}

	if err := m.Function("new", 0, func([]values.Value) (values.Value, error) {
		return values.NewObjectValue(values.NewObject()), nil
	}); err != nil {
		return nil, err
	}

	if err := m.InstFn("Object", "len", 0, func(args []values.Value) (values.Value, error) {
		obj, release, err := args[0].BorrowObject("len")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewInteger(int64(obj.Len())), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Object", "contains_key", 1, func(args []values.Value) (values.Value, error) {
		key, err := stringValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		obj, release, err := args[0].BorrowObject("contains_key")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(obj.Contains(key)), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Object", "get", 1, func(args []values.Value) (values.Value, error) {
		key, err := stringValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		obj, release, err := args[0].BorrowObject("get")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		out, ok := obj.Get(key)
		if !ok {
			return values.NewNone(), nil
		}
		return values.NewSome(out), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Object", "insert", 2, func(args []values.Value) (values.Value, error) {
		key, err := stringValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		obj, release, err := args[0].BorrowObjectMut("insert")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		obj.Insert(key, args[2])
		return values.Unit(), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Object", "remove", 1, func(args []values.Value) (values.Value, error) {
		key, err := stringValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		obj, release, err := args[0].BorrowObjectMut("remove")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		out, ok := obj.Remove(key)
		if !ok {
			return values.NewNone(), nil
		}
		return values.NewSome(out), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Object", "keys", 0, func(args []values.Value) (values.Value, error) {
		obj, release, err := args[0].BorrowObject("keys")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		items := make([]values.Value, 0, obj.Len())
		for _, key := range obj.Keys() {
			items = append(items, values.NewString(key))
		}
		return values.NewVec(items), nil
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// TupleModule registers the Tuple type.
func TupleModule() (*registry.Module, error) {
	m := registry.NewModule("std", "tuple")
	if _, err := m.NamedType("Tuple", "tuple"); err != nil {
		return nil, err
	}
	if err := m.InstFn("Tuple", "len", 0, func(args []values.Value) (values.Value, error) {
		tup, release, err := args[0].BorrowTuple("len")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewInteger(int64(len(tup.Items))), nil
	}); err != nil {
		return nil, err
	}
	return m, nil
}
