package modules

import (
	"fmt"
	"io"
	"os"

	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// Io registers the std::io module. With stdio disabled the functions
// stay resolvable, so units compiled against the full context still
// link: print and println reject writes, and dbg returns its argument
// without writing anything.
func Io(stdio bool) (*registry.Module, error) {
	var out io.Writer
	if stdio {
		out = os.Stdout
	}

	m := registry.NewModule("std", "io")

	display := func(v values.Value) (string, error) {
		if s, ok := v.AsStaticString(); ok {
			return s.String(), nil
		}
		if v.Kind() == values.KindString {
			s, release, err := v.BorrowString("print")
			if err != nil {
				return "", err
			}
			defer release()
			return *s, nil
		}
		return v.Debug(), nil
	}

	write := func(render func(values.Value) (string, error)) registry.Fn {
		return func(args []values.Value) (values.Value, error) {
			if out == nil {
				return values.Unit(), fmt.Errorf("stdio is disabled in this context")
			}
			text, err := render(args[0])
			if err != nil {
				return values.Unit(), err
			}
			if _, err := io.WriteString(out, text); err != nil {
				return values.Unit(), err
			}
			return values.Unit(), nil
		}
	}

	if err := m.Function("print", 1, write(display)); err != nil {
		return nil, err
	}
	if err := m.Function("println", 1, write(func(v values.Value) (string, error) {
		text, err := display(v)
		if err != nil {
			return "", err
		}
		return text + "\n", nil
	})); err != nil {
		return nil, err
	}
	if err := m.Function("dbg", 1, func(args []values.Value) (values.Value, error) {
		if out != nil {
			fmt.Fprintln(out, args[0].Debug())
		}
		return args[0], nil
	}); err != nil {
		return nil, err
	}

	return m, nil
}
