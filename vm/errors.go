package vm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/runelang/rune/compiler"
	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/values"
)

// ErrorKind classifies runtime failures.
type ErrorKind int

const (
	// ErrPanic is an explicit script panic, such as an unmatched
	// pattern.
	ErrPanic ErrorKind = iota
	// ErrStackUnderflow means an instruction ran out of operands.
	ErrStackUnderflow
	// ErrBadArgumentCount means a call did not match the declared
	// arity.
	ErrBadArgumentCount
	// ErrUnsupportedOperation means an operator has no meaning for its
	// operand types.
	ErrUnsupportedOperation
	// ErrMissingFunction means a call hash resolved nowhere.
	ErrMissingFunction
	// ErrMissingInstanceFunction means instance dispatch found no
	// target for the receiver's type.
	ErrMissingInstanceFunction
	// ErrDivideByZero is integer division or remainder by zero.
	ErrDivideByZero
	// ErrOverflow is integer overflow or an out-of-range conversion.
	ErrOverflow
	// ErrAccess wraps a shared-cell borrow failure.
	ErrAccess
	// ErrBadIndex means an index read or write was out of range or the
	// key was absent.
	ErrBadIndex
	// ErrMissingRtti means aggregate construction referenced type
	// information absent from the unit.
	ErrMissingRtti
	// ErrHandler wraps a failure or panic inside a native handler.
	ErrHandler
	// ErrBadInstruction means the instruction stream was malformed,
	// for example a yield outside a generator.
	ErrBadInstruction
)

var errorKindNames = map[ErrorKind]string{
	ErrPanic:                   "panic",
	ErrStackUnderflow:          "stack underflow",
	ErrBadArgumentCount:        "bad argument count",
	ErrUnsupportedOperation:    "unsupported operation",
	ErrMissingFunction:         "missing function",
	ErrMissingInstanceFunction: "missing instance function",
	ErrDivideByZero:            "divide by zero",
	ErrOverflow:                "overflow",
	ErrAccess:                  "access error",
	ErrBadIndex:                "bad index",
	ErrMissingRtti:             "missing type information",
	ErrHandler:                 "handler error",
	ErrBadInstruction:          "bad instruction",
}

// Error is the runtime error of a virtual machine. It carries the
// instruction pointer it originated at plus the return pointer of
// every frame that was live, so diagnostics can reconstruct a source
// trace through the unit's debug info.
type Error struct {
	Kind    ErrorKind
	IP      int
	Message string
	Inner   error

	// Hash identifies the missing function or instance key.
	Hash hash.Hash
	// Instance is the receiver type hash of a failed instance call.
	Instance hash.Hash

	// Trace holds the return instruction pointers of the frames that
	// were live when the error occurred, innermost first.
	Trace []int

	unit *compiler.Unit
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at ip=%d", errorKindNames[e.Kind], e.IP)
	if e.Message != "" {
		fmt.Fprintf(&sb, ": %s", e.Message)
	}
	if e.Inner != nil {
		fmt.Fprintf(&sb, ": %s", e.Inner)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Emit renders the error and its stacktrace against the sources the
// unit was compiled from.
func (e *Error) Emit(w io.Writer, sources *diagnostics.Sources) error {
	if _, err := fmt.Fprintf(w, "error: %s\n", e); err != nil {
		return err
	}
	if e.unit == nil || e.unit.DebugInfo() == nil {
		return nil
	}
	ips := append([]int{e.IP}, e.Trace...)
	for i, ip := range ips {
		rec, ok := e.unit.DebugInfo().InstructionAt(ip)
		if !ok {
			continue
		}
		src, ok := sources.Get(rec.Location.SourceID)
		if !ok {
			continue
		}
		line, column := src.Position(rec.Location.Span.Start)
		prefix := "at"
		if i > 0 {
			prefix = "called from"
		}
		if _, err := fmt.Fprintf(w, "  %s %s:%d:%d\n", prefix, src.Name(), line, column); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vm) err(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, IP: v.lastIP, Message: fmt.Sprintf(format, args...), unit: v.unit}
}

// wrapErr converts an arbitrary failure into a VM error attributed to
// the current instruction. Access failures and stack underflows keep
// their dedicated kinds.
func (v *Vm) wrapErr(err error) *Error {
	var vmErr *Error
	if errors.As(err, &vmErr) {
		return vmErr
	}
	kind := ErrHandler
	var access *values.AccessError
	switch {
	case errors.As(err, &access):
		kind = ErrAccess
	case errors.Is(err, values.ErrStackUnderflow):
		kind = ErrStackUnderflow
	}
	return &Error{Kind: kind, IP: v.lastIP, Inner: err, unit: v.unit}
}
