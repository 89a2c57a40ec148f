package values

import (
	"fmt"
	"math"
	"sync/atomic"
)

// AccessKind classifies why a borrow on a shared cell failed.
type AccessKind int

const (
	// AccessConflict means a live borrow blocked the requested access.
	AccessConflict AccessKind = iota
	// AccessTaken means the cell's payload was already moved out.
	AccessTaken
)

// AccessError is returned when a borrow on a shared cell cannot be
// granted. Acquisition failure is always an error, never a wait.
type AccessError struct {
	Kind AccessKind
	Op   string
}

func (e *AccessError) Error() string {
	switch e.Kind {
	case AccessTaken:
		return fmt.Sprintf("%s: value has been moved out of its cell", e.Op)
	default:
		return fmt.Sprintf("%s: conflicting access to shared value", e.Op)
	}
}

// Access flag states. Positive values count live shared borrows.
const (
	accessFree      int32 = 0
	accessExclusive int32 = -1
	accessTaken     int32 = math.MinInt32
)

// Release relinquishes a borrow previously granted by a shared cell.
// Calling it more than once is a programming error and corrupts the
// flag, so callers hold it in a defer or release exactly once.
type Release func()

// Shared is a reference-counted heap cell guarded by an access flag.
// The flag is a small state machine with three observable states
// (free, shared-borrowed with a count, exclusively borrowed) and one
// terminal state (taken). Multiple VMs may alias the same cell; the
// flag enforces single-writer/multi-reader observationally across all
// of them.
type Shared struct {
	access int32
	data   any
}

// NewShared wraps a payload in a fresh, free cell.
func NewShared(data any) *Shared {
	return &Shared{data: data}
}

// BorrowShared acquires a shared borrow. Fails if the cell is
// exclusively borrowed or taken.
func (s *Shared) BorrowShared(op string) (any, Release, error) {
	for {
		state := atomic.LoadInt32(&s.access)
		if state == accessTaken {
			return nil, nil, &AccessError{Kind: AccessTaken, Op: op}
		}
		if state < 0 {
			return nil, nil, &AccessError{Kind: AccessConflict, Op: op}
		}
		if atomic.CompareAndSwapInt32(&s.access, state, state+1) {
			return s.data, s.releaseShared, nil
		}
	}
}

// BorrowExclusive acquires the exclusive borrow. Fails if any borrow
// is live or the cell is taken.
func (s *Shared) BorrowExclusive(op string) (any, Release, error) {
	state := atomic.LoadInt32(&s.access)
	if state == accessTaken {
		return nil, nil, &AccessError{Kind: AccessTaken, Op: op}
	}
	if state != accessFree || !atomic.CompareAndSwapInt32(&s.access, accessFree, accessExclusive) {
		return nil, nil, &AccessError{Kind: AccessConflict, Op: op}
	}
	return s.data, s.releaseExclusive, nil
}

// Take moves the payload out of the cell, leaving it in the terminal
// taken state. Fails if any borrow is live.
func (s *Shared) Take(op string) (any, error) {
	state := atomic.LoadInt32(&s.access)
	if state == accessTaken {
		return nil, &AccessError{Kind: AccessTaken, Op: op}
	}
	if state != accessFree || !atomic.CompareAndSwapInt32(&s.access, accessFree, accessTaken) {
		return nil, &AccessError{Kind: AccessConflict, Op: op}
	}
	data := s.data
	s.data = nil
	return data, nil
}

// IsTaken reports whether the payload has been moved out.
func (s *Shared) IsTaken() bool {
	return atomic.LoadInt32(&s.access) == accessTaken
}

// Snapshot reads the payload under a transient shared borrow. Intended
// for rendering and tests, not for holding onto the payload.
func (s *Shared) Snapshot(op string) (any, error) {
	data, release, err := s.BorrowShared(op)
	if err != nil {
		return nil, err
	}
	release()
	return data, nil
}

func (s *Shared) releaseShared() {
	atomic.AddInt32(&s.access, -1)
}

func (s *Shared) releaseExclusive() {
	atomic.StoreInt32(&s.access, accessFree)
}
