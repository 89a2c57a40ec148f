package values

import (
	"context"
	"errors"
)

// ErrGeneratorCompleted is returned when a finished generator or
// stream is resumed again.
var ErrGeneratorCompleted = errors.New("generator has already completed")

// Execution drives a suspended fiber. The interpreter implements it
// for script functions; hosts can implement it for native producers.
// Resume hands the fiber a value (the result of the yield expression
// it is suspended on) and runs it until the next suspension point or
// completion.
type Execution interface {
	Resume(ctx context.Context, value Value) (ExecutionStep, error)
}

// ExecutionStep is the observable outcome of resuming an execution.
type ExecutionStep struct {
	// Value yielded or returned.
	Value Value
	// Completed is set when the fiber returned instead of yielding.
	Completed bool
}

// ExecutionFunc adapts a plain function to the Execution interface.
type ExecutionFunc func(ctx context.Context, value Value) (ExecutionStep, error)

func (f ExecutionFunc) Resume(ctx context.Context, value Value) (ExecutionStep, error) {
	return f(ctx, value)
}

// Generator is a value owning a suspended synchronous fiber. Driving
// it produces GeneratorState values: Yielded for each suspension and
// one final Complete.
type Generator struct {
	execution Execution
	started   bool
	completed bool
}

// NewGenerator wraps an execution.
func NewGenerator(execution Execution) *Generator {
	return &Generator{execution: execution}
}

// NativeGenerator builds a generator from a plain next function, used
// by host modules to expose iterators.
func NativeGenerator(next func() (Value, bool, error)) *Generator {
	return NewGenerator(ExecutionFunc(func(ctx context.Context, _ Value) (ExecutionStep, error) {
		v, ok, err := next()
		if err != nil {
			return ExecutionStep{}, err
		}
		if !ok {
			return ExecutionStep{Value: Unit(), Completed: true}, nil
		}
		return ExecutionStep{Value: v}, nil
	}))
}

// Resume sends a value into the generator and runs it to its next
// suspension point. The sent value is ignored on the first resume
// since the fiber has not reached a yield yet.
func (g *Generator) Resume(ctx context.Context, value Value) (Value, error) {
	if g.completed {
		return Unit(), ErrGeneratorCompleted
	}
	g.started = true
	step, err := g.execution.Resume(ctx, value)
	if err != nil {
		g.completed = true
		return Unit(), err
	}
	if step.Completed {
		g.completed = true
		return NewComplete(step.Value), nil
	}
	return NewYielded(step.Value), nil
}

// Next advances the generator for iteration. The second return is
// false once the generator has completed; the completion value is
// discarded, matching iterator semantics.
func (g *Generator) Next(ctx context.Context) (Value, bool, error) {
	if g.completed {
		return Unit(), false, nil
	}
	step, err := g.execution.Resume(ctx, Unit())
	if err != nil {
		g.completed = true
		return Unit(), false, err
	}
	if step.Completed {
		g.completed = true
		return Unit(), false, nil
	}
	return step.Value, true, nil
}

// IsCompleted reports whether the generator has returned.
func (g *Generator) IsCompleted() bool {
	return g.completed
}
