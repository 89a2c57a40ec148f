package modules

import (
	"fmt"
	"math"
	"strconv"

	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// Core registers the built-in value types and the instance functions
// on numbers.
func Core() (*registry.Module, error) {
	m := registry.NewModule("std")

	if err := m.UnitType("unit"); err != nil {
		return nil, err
	}
	for _, t := range []struct{ name, goName string }{
		{"bool", "bool"},
		{"byte", "byte"},
		{"char", "rune"},
		{"int", "int64"},
		{"float", "float64"},
		{"type", "type"},
	} {
		if _, err := m.NamedType(t.name, t.goName); err != nil {
			return nil, err
		}
	}

	if err := m.InstFn("int", "abs", 0, func(args []values.Value) (values.Value, error) {
		i, err := integerValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		if i == math.MinInt64 {
			return values.Unit(), fmt.Errorf("abs overflows")
		}
		if i < 0 {
			i = -i
		}
		return values.NewInteger(i), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("int", "to_float", 0, func(args []values.Value) (values.Value, error) {
		i, err := integerValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		return values.NewFloat(float64(i)), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("int", "to_string", 0, func(args []values.Value) (values.Value, error) {
		i, err := integerValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		return values.NewString(strconv.FormatInt(i, 10)), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("int", "min", 1, func(args []values.Value) (values.Value, error) {
		a, err := integerValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		b, err := integerValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		return values.NewInteger(min(a, b)), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("int", "max", 1, func(args []values.Value) (values.Value, error) {
		a, err := integerValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		b, err := integerValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		return values.NewInteger(max(a, b)), nil
	}); err != nil {
		return nil, err
	}

	if err := m.InstFn("float", "floor", 0, floatFn(math.Floor)); err != nil {
		return nil, err
	}
	if err := m.InstFn("float", "ceil", 0, floatFn(math.Ceil)); err != nil {
		return nil, err
	}
	if err := m.InstFn("float", "round", 0, floatFn(math.Round)); err != nil {
		return nil, err
	}
	if err := m.InstFn("float", "abs", 0, floatFn(math.Abs)); err != nil {
		return nil, err
	}
	if err := m.InstFn("float", "to_int", 0, func(args []values.Value) (values.Value, error) {
		f, ok := args[0].AsFloat()
		if !ok {
			return values.Unit(), fmt.Errorf("expected float, found %s", args[0].TypeInfo())
		}
		if math.IsNaN(f) || f < math.MinInt64 || f > math.MaxInt64 {
			return values.Unit(), fmt.Errorf("%g is out of the int range", f)
		}
		return values.NewInteger(int64(f)), nil
	}); err != nil {
		return nil, err
	}

	return m, nil
}

func floatFn(fn func(float64) float64) registry.Fn {
	return func(args []values.Value) (values.Value, error) {
		f, ok := args[0].AsFloat()
		if !ok {
			return values.Unit(), fmt.Errorf("expected float, found %s", args[0].TypeInfo())
		}
		return values.NewFloat(fn(f)), nil
	}
}

// CoreFns registers the std::core functions plus the numeric limit
// constants.
func CoreFns() (*registry.Module, error) {
	m := registry.NewModule("std", "core")

	if err := m.Function("panic", 1, func(args []values.Value) (values.Value, error) {
		msg, err := stringValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		return values.Unit(), fmt.Errorf("panic: %s", msg)
	}); err != nil {
		return nil, err
	}
	if err := m.Function("parse_int", 1, func(args []values.Value) (values.Value, error) {
		s, err := stringValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return values.NewNone(), nil
		}
		return values.NewSome(values.NewInteger(i)), nil
	}); err != nil {
		return nil, err
	}

	if err := m.Constant("INT_MAX", values.ConstIntegerValue(math.MaxInt64)); err != nil {
		return nil, err
	}
	if err := m.Constant("INT_MIN", values.ConstIntegerValue(math.MinInt64)); err != nil {
		return nil, err
	}
	if err := m.Constant("FLOAT_EPSILON", values.ConstFloatValue(2.220446049250313e-16)); err != nil {
		return nil, err
	}
	return m, nil
}
