package modules

import (
	"strings"

	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

func stringFn(fn func(string) (values.Value, error)) registry.Fn {
	return func(args []values.Value) (values.Value, error) {
		s, err := stringValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		return fn(s)
	}
}

func stringPairFn(fn func(a, b string) values.Value) registry.Fn {
	return func(args []values.Value) (values.Value, error) {
		a, err := stringValue(args[0])
		if err != nil {
			return values.Unit(), err
		}
		b, err := stringValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		return fn(a, b), nil
	}
}

// StringModule registers the String type and its instance functions.
func StringModule() (*registry.Module, error) {
	m := registry.NewModule("std", "string")
	if _, err := m.NamedType("String", "string"); err != nil {
		return nil, err
	}

	instFns := []struct {
		name string
		args int
		fn   registry.Fn
	}{
		{"len", 0, stringFn(func(s string) (values.Value, error) {
			return values.NewInteger(int64(len(s))), nil
		})},
		{"is_empty", 0, stringFn(func(s string) (values.Value, error) {
			return values.NewBool(s == ""), nil
		})},
		{"to_uppercase", 0, stringFn(func(s string) (values.Value, error) {
			return values.NewString(strings.ToUpper(s)), nil
		})},
		{"to_lowercase", 0, stringFn(func(s string) (values.Value, error) {
			return values.NewString(strings.ToLower(s)), nil
		})},
		{"trim", 0, stringFn(func(s string) (values.Value, error) {
			return values.NewString(strings.TrimSpace(s)), nil
		})},
		{"contains", 1, stringPairFn(func(a, b string) values.Value {
			return values.NewBool(strings.Contains(a, b))
		})},
		{"starts_with", 1, stringPairFn(func(a, b string) values.Value {
			return values.NewBool(strings.HasPrefix(a, b))
		})},
		{"ends_with", 1, stringPairFn(func(a, b string) values.Value {
			return values.NewBool(strings.HasSuffix(a, b))
		})},
		{"split", 1, stringPairFn(func(a, b string) values.Value {
			parts := strings.Split(a, b)
			items := make([]values.Value, len(parts))
			for i, part := range parts {
				items[i] = values.NewString(part)
			}
			return values.NewVec(items)
		})},
		{"chars", 0, stringFn(func(s string) (values.Value, error) {
			items := make([]values.Value, 0, len(s))
			for _, c := range s {
				items = append(items, values.NewChar(c))
			}
			return values.NewVec(items), nil
		})},
	}
	for _, decl := range instFns {
		if err := m.InstFn("String", decl.name, decl.args, decl.fn); err != nil {
			return nil, err
		}
	}

	// push_str mutates the receiver in place, so it skips the Fn wrapper
	// and borrows exclusively.
	if err := m.InstFn("String", "push_str", 1, func(args []values.Value) (values.Value, error) {
		suffix, err := stringValue(args[1])
		if err != nil {
			return values.Unit(), err
		}
		s, release, err := args[0].BorrowStringMut("push_str")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		*s += suffix
		return values.Unit(), nil
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// BytesModule registers the Bytes type.
func BytesModule() (*registry.Module, error) {
	m := registry.NewModule("std", "bytes")
	if _, err := m.NamedType("Bytes", "bytes"); err != nil {
		return nil, err
	}
	if err := m.Function("new", 0, func([]values.Value) (values.Value, error) {
		return values.NewBytes(nil), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Bytes", "len", 0, func(args []values.Value) (values.Value, error) {
		b, release, err := args[0].BorrowBytes("len")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewInteger(int64(len(*b))), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Bytes", "is_empty", 0, func(args []values.Value) (values.Value, error) {
		b, release, err := args[0].BorrowBytes("is_empty")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(len(*b) == 0), nil
	}); err != nil {
		return nil, err
	}
	return m, nil
}
