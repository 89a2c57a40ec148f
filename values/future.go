package values

import (
	"context"
	"errors"
)

// ErrFutureCompleted is returned when a future is awaited twice.
var ErrFutureCompleted = errors.New("future has already completed")

// Thunk is the work a future performs when awaited. VM-backed futures
// wrap a suspended fiber; host futures wrap arbitrary Go work. Thunks
// run on the awaiting goroutine, so cooperative suspension amounts to
// blocking the VM's own goroutine.
type Thunk func(ctx context.Context) (Value, error)

// Future is a one-shot asynchronous computation. Awaiting consumes it.
type Future struct {
	thunk     Thunk
	completed bool
}

// NewFuture wraps a thunk.
func NewFuture(thunk Thunk) *Future {
	return &Future{thunk: thunk}
}

// Await runs the future to completion and returns its value. A second
// await reports ErrFutureCompleted.
func (f *Future) Await(ctx context.Context) (Value, error) {
	if f.completed {
		return Unit(), ErrFutureCompleted
	}
	f.completed = true
	return f.thunk(ctx)
}

// IsCompleted reports whether the future has been awaited.
func (f *Future) IsCompleted() bool {
	return f.completed
}
