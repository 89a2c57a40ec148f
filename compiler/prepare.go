package compiler

import (
	"errors"

	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/registry"
)

// Frontend is the interface the compiler frontend collaborator must
// present: it resolves and lowers sources into per-function assemblies
// and meta against the given context, feeding the unit builder.
type Frontend interface {
	Compile(sources *diagnostics.Sources, ctx *registry.Context, builder *UnitBuilder, d *diagnostics.Diagnostics) error
}

// FrontendFunc adapts a function to the Frontend interface.
type FrontendFunc func(sources *diagnostics.Sources, ctx *registry.Context, builder *UnitBuilder, d *diagnostics.Diagnostics) error

func (f FrontendFunc) Compile(sources *diagnostics.Sources, ctx *registry.Context, builder *UnitBuilder, d *diagnostics.Diagnostics) error {
	return f(sources, ctx, builder, d)
}

// ErrNoFrontend is returned by Build when no frontend was attached.
var ErrNoFrontend = errors.New("no compiler frontend attached")

// ErrCompileFailed is returned when diagnostics carry at least one
// error after compilation or linking.
var ErrCompileFailed = errors.New("compilation failed")

// Build is the fluent compilation entry point:
//
//	unit, err := compiler.Prepare(sources).
//		WithContext(ctx).
//		WithOptions(options).
//		WithDiagnostics(d).
//		WithFrontend(frontend).
//		Build()
type Build struct {
	sources     *diagnostics.Sources
	ctx         *registry.Context
	options     Options
	diagnostics *diagnostics.Diagnostics
	frontend    Frontend
}

// Prepare starts a build over the given sources.
func Prepare(sources *diagnostics.Sources) *Build {
	return &Build{sources: sources, options: DefaultOptions()}
}

// WithContext attaches the registry the sources resolve against.
func (b *Build) WithContext(ctx *registry.Context) *Build {
	b.ctx = ctx
	return b
}

// WithOptions overrides the default options.
func (b *Build) WithOptions(options Options) *Build {
	b.options = options
	return b
}

// WithDiagnostics attaches a diagnostics collector. Without one a
// private collector is used and discarded.
func (b *Build) WithDiagnostics(d *diagnostics.Diagnostics) *Build {
	b.diagnostics = d
	return b
}

// WithFrontend attaches the compiler frontend collaborator.
func (b *Build) WithFrontend(frontend Frontend) *Build {
	b.frontend = frontend
	return b
}

// Build runs the frontend, links and freezes the unit.
func (b *Build) Build() (*Unit, error) {
	if b.frontend == nil {
		return nil, ErrNoFrontend
	}
	d := b.diagnostics
	if d == nil {
		d = diagnostics.NewDiagnostics()
	}

	builder := NewUnitBuilder(b.options)
	if err := b.frontend.Compile(b.sources, b.ctx, builder, d); err != nil {
		return nil, err
	}
	if d.HasError() {
		return nil, ErrCompileFailed
	}

	if b.options.LinkChecks {
		if errs := builder.Link(b.ctx, d); len(errs) > 0 {
			return nil, ErrCompileFailed
		}
	}
	return builder.Build()
}
