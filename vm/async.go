package vm

import (
	"context"

	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
)

// execution adapts a forked VM fiber to the values.Execution surface
// driven by Generator and Stream values.
type execution struct {
	vm      *Vm
	started bool
}

func newExecution(v *Vm) *execution {
	return &execution{vm: v}
}

// Resume hands the fiber the result of the yield expression it is
// suspended on and runs it to the next suspension point. The sent
// value is discarded on the first resume since the fiber has not
// reached a yield yet.
func (e *execution) Resume(ctx context.Context, value values.Value) (values.ExecutionStep, error) {
	if e.started {
		e.vm.stack.Push(value)
	} else {
		e.started = true
	}
	reason, out, err := e.vm.run(ctx)
	if err != nil {
		return values.ExecutionStep{}, err
	}
	return values.ExecutionStep{Value: out, Completed: reason == haltComplete}, nil
}

// opAwait pops a future, runs it to completion and pushes its value.
// The future is moved out of its cell: awaiting the same future value
// twice reports a taken cell.
func (v *Vm) opAwait(ctx context.Context) error {
	val, err := v.stack.Pop()
	if err != nil {
		return err
	}
	fut, err := val.TakeFuture("await")
	if err != nil {
		return v.wrapErr(err)
	}
	out, err := fut.Await(ctx)
	if err != nil {
		return v.wrapErr(err)
	}
	v.stack.Push(out)
	return nil
}

type selectOutcome struct {
	index int
	value values.Value
	err   error
}

// opSelect pops the raced futures and blocks until the first of them
// completes. The winning branch index lands in the branch register for
// a following jump-if-branch; the winner's value is pushed. A losing
// future keeps running on its goroutine but its result is discarded,
// so exactly one winner is observed per select.
func (v *Vm) opSelect(ctx context.Context, count int) error {
	if count <= 0 {
		return v.err(ErrBadInstruction, "select of %d branches", count)
	}
	vals, err := v.stack.Drain(count)
	if err != nil {
		return err
	}
	futures := make([]*values.Future, count)
	for i, val := range vals {
		fut, err := val.TakeFuture("select")
		if err != nil {
			return v.wrapErr(err)
		}
		futures[i] = fut
	}

	outcomes := make(chan selectOutcome, count)
	for i, fut := range futures {
		go func(index int, fut *values.Future) {
			out, err := fut.Await(ctx)
			outcomes <- selectOutcome{index: index, value: out, err: err}
		}(i, fut)
	}

	outcome := <-outcomes
	if outcome.err != nil {
		return v.wrapErr(outcome.err)
	}
	branch := outcome.index
	v.branch = &branch
	v.stack.Push(outcome.value)
	return nil
}

// opIterNext advances the iterator in the given frame slot: a
// Generator, a Stream, or any value whose type implements the next
// protocol with a native handler producing an Option. When the
// iterator is exhausted the instruction jumps instead of pushing.
func (v *Vm) opIterNext(ctx context.Context, inst opcodes.Instruction) error {
	iter, err := v.stack.At(inst.A)
	if err != nil {
		return err
	}

	switch iter.Kind() {
	case values.KindGenerator:
		gen, release, err := iter.BorrowGenerator("iter_next")
		if err != nil {
			return v.wrapErr(err)
		}
		out, ok, err := gen.Next(ctx)
		release()
		if err != nil {
			return v.wrapErr(err)
		}
		if !ok {
			v.ip += inst.B
			return nil
		}
		v.stack.Push(out)
		return nil

	case values.KindStream:
		stream, release, err := iter.BorrowStream("iter_next")
		if err != nil {
			return v.wrapErr(err)
		}
		out, ok, err := stream.Next(ctx)
		release()
		if err != nil {
			return v.wrapErr(err)
		}
		if !ok {
			v.ip += inst.B
			return nil
		}
		v.stack.Push(out)
		return nil
	}

	// Native iterators implement the next protocol and return an
	// Option per step.
	typeHash, err := iter.TypeHash()
	if err != nil {
		return v.wrapErr(err)
	}
	resolved, ok := v.resolveInstance(hash.Instance(typeHash, hash.ProtocolNext.Hash))
	if !ok || resolved.hasUnit {
		return v.err(ErrUnsupportedOperation, "%s is not an iterator", iter.TypeInfo())
	}
	v.stack.Push(iter)
	if err := callHandler(resolved.handler, v.stack, 1); err != nil {
		return v.wrapErr(err)
	}
	out, err := v.stack.Pop()
	if err != nil {
		return err
	}
	opt, release, err := out.BorrowOption("iter_next")
	if err != nil {
		return v.wrapErr(err)
	}
	defer release()
	if !opt.Some {
		v.ip += inst.B
		return nil
	}
	v.stack.Push(opt.Value)
	return nil
}
