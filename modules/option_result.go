package modules

import (
	"fmt"

	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// Option registers the internal Option enum and its instance
// functions.
func Option() (*registry.Module, error) {
	m := registry.NewModule("std", "option")
	if err := m.Option("Option"); err != nil {
		return nil, err
	}

	if err := m.InstFn("Option", "is_some", 0, func(args []values.Value) (values.Value, error) {
		opt, release, err := args[0].BorrowOption("is_some")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(opt.Some), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Option", "is_none", 0, func(args []values.Value) (values.Value, error) {
		opt, release, err := args[0].BorrowOption("is_none")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(!opt.Some), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Option", "unwrap", 0, func(args []values.Value) (values.Value, error) {
		opt, release, err := args[0].BorrowOption("unwrap")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		if !opt.Some {
			return values.Unit(), fmt.Errorf("called unwrap on None")
		}
		return opt.Value, nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Option", "unwrap_or", 1, func(args []values.Value) (values.Value, error) {
		opt, release, err := args[0].BorrowOption("unwrap_or")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		if !opt.Some {
			return args[1], nil
		}
		return opt.Value, nil
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// Result registers the internal Result enum and its instance
// functions.
func Result() (*registry.Module, error) {
	m := registry.NewModule("std", "result")
	if err := m.Result("Result"); err != nil {
		return nil, err
	}

	if err := m.InstFn("Result", "is_ok", 0, func(args []values.Value) (values.Value, error) {
		res, release, err := args[0].BorrowResult("is_ok")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(res.IsOk), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Result", "is_err", 0, func(args []values.Value) (values.Value, error) {
		res, release, err := args[0].BorrowResult("is_err")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(!res.IsOk), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Result", "unwrap", 0, func(args []values.Value) (values.Value, error) {
		res, release, err := args[0].BorrowResult("unwrap")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		if !res.IsOk {
			return values.Unit(), fmt.Errorf("called unwrap on Err(%s)", res.Value.Debug())
		}
		return res.Value, nil
	}); err != nil {
		return nil, err
	}
	return m, nil
}
