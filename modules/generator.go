package modules

import (
	"context"

	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// GeneratorModule registers the Generator and Stream types, the
// internal GeneratorState enum, and the drive functions hosts and
// scripts use outside of for loops.
func GeneratorModule() (*registry.Module, error) {
	m := registry.NewModule("std", "generator")
	if err := m.GeneratorState("GeneratorState"); err != nil {
		return nil, err
	}
	if _, err := m.NamedType("Generator", "generator"); err != nil {
		return nil, err
	}

	if err := m.InstFn("Generator", "next", 0, func(args []values.Value) (values.Value, error) {
		gen, release, err := args[0].BorrowGenerator("next")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		out, ok, err := gen.Next(context.Background())
		if err != nil {
			return values.Unit(), err
		}
		if !ok {
			return values.NewNone(), nil
		}
		return values.NewSome(out), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Generator", "resume", 1, func(args []values.Value) (values.Value, error) {
		gen, release, err := args[0].BorrowGenerator("resume")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return gen.Resume(context.Background(), args[1])
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// StreamModule registers the Stream type and its drive functions.
func StreamModule() (*registry.Module, error) {
	m := registry.NewModule("std", "stream")
	if _, err := m.NamedType("Stream", "stream"); err != nil {
		return nil, err
	}

	if err := m.AsyncInstFn("Stream", "next", 0, func(args []values.Value) (values.Value, error) {
		stream, release, err := args[0].BorrowStream("next")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		out, ok, err := stream.Next(context.Background())
		if err != nil {
			return values.Unit(), err
		}
		if !ok {
			return values.NewNone(), nil
		}
		return values.NewSome(out), nil
	}); err != nil {
		return nil, err
	}
	if err := m.InstFn("Stream", "resume", 1, func(args []values.Value) (values.Value, error) {
		stream, release, err := args[0].BorrowStream("resume")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return stream.Resume(context.Background(), args[1])
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// FutureModule registers the Future type. Futures are consumed by
// await, so the surface is identity only.
func FutureModule() (*registry.Module, error) {
	m := registry.NewModule("std", "future")
	if _, err := m.NamedType("Future", "future"); err != nil {
		return nil, err
	}
	if err := m.InstFn("Future", "is_completed", 0, func(args []values.Value) (values.Value, error) {
		data, release, err := args[0].BorrowRefAs(values.KindFuture, "is_completed")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewBool(data.(*values.Future).IsCompleted()), nil
	}); err != nil {
		return nil, err
	}
	return m, nil
}
