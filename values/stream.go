package values

import "context"

// Stream is the asynchronous counterpart of Generator: a fiber that
// may both await and yield. Under the cooperative model the awaits
// inside the fiber run on the driving goroutine, so the drive surface
// is the same shape as Generator's.
type Stream struct {
	execution Execution
	completed bool
}

// NewStream wraps an execution.
func NewStream(execution Execution) *Stream {
	return &Stream{execution: execution}
}

// Resume sends a value into the stream and runs it until it yields,
// awaits its way to a yield, or completes.
func (s *Stream) Resume(ctx context.Context, value Value) (Value, error) {
	if s.completed {
		return Unit(), ErrGeneratorCompleted
	}
	step, err := s.execution.Resume(ctx, value)
	if err != nil {
		s.completed = true
		return Unit(), err
	}
	if step.Completed {
		s.completed = true
		return NewComplete(step.Value), nil
	}
	return NewYielded(step.Value), nil
}

// Next advances the stream for iteration, discarding the completion
// value.
func (s *Stream) Next(ctx context.Context) (Value, bool, error) {
	if s.completed {
		return Unit(), false, nil
	}
	step, err := s.execution.Resume(ctx, Unit())
	if err != nil {
		s.completed = true
		return Unit(), false, err
	}
	if step.Completed {
		s.completed = true
		return Unit(), false, nil
	}
	return step.Value, true, nil
}

// IsCompleted reports whether the stream has returned.
func (s *Stream) IsCompleted() bool {
	return s.completed
}
