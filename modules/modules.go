// Package modules provides the default host modules installed by
// DefaultContext: the built-in value types, the internal enums, and
// the basic functions scripts expect without imports.
package modules

import (
	"fmt"

	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// DefaultModules returns every default module. The stdio flag controls
// whether the io module writes to standard output or rejects writes.
func DefaultModules(stdio bool) ([]*registry.Module, error) {
	builders := []func() (*registry.Module, error){
		Core,
		CoreFns,
		Option,
		Result,
		GeneratorModule,
		StreamModule,
		FutureModule,
		StringModule,
		BytesModule,
		VecModule,
		ObjectModule,
		TupleModule,
		func() (*registry.Module, error) { return Io(stdio) },
	}
	out := make([]*registry.Module, 0, len(builders))
	for _, build := range builders {
		m, err := build()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// DefaultContext builds a context with every default module installed.
// This is the standard starting point for hosts embedding the
// language.
func DefaultContext(stdio bool) (*registry.Context, error) {
	ctx := registry.NewContext()
	mods, err := DefaultModules(stdio)
	if err != nil {
		return nil, err
	}
	for _, m := range mods {
		if err := ctx.Install(m); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

// stringValue reads string content out of a static or shared string.
func stringValue(v values.Value) (string, error) {
	if s, ok := v.AsStaticString(); ok {
		return s.String(), nil
	}
	s, release, err := v.BorrowString("string")
	if err != nil {
		return "", err
	}
	defer release()
	return *s, nil
}

func integerValue(v values.Value) (int64, error) {
	i, ok := v.AsInteger()
	if !ok {
		return 0, fmt.Errorf("expected int, found %s", v.TypeInfo())
	}
	return i, nil
}
