package errors

import (
	stderrors "errors"
	"fmt"
)

// TrapKind names a run-time fault. The values match the messages used by
// the WebAssembly reference test suite.
type TrapKind string

const (
	TrapUnreachable           TrapKind = "unreachable"
	TrapIntegerDivideByZero   TrapKind = "integer divide by zero"
	TrapIntegerOverflow       TrapKind = "integer overflow"
	TrapInvalidConversion     TrapKind = "invalid conversion to integer"
	TrapMemoryOutOfBounds     TrapKind = "out of bounds memory access"
	TrapUndefinedElement      TrapKind = "undefined element"
	TrapUninitializedElement  TrapKind = "uninitialized element"
	TrapIndirectCallSignature TrapKind = "indirect call type mismatch"
	TrapCallStackExhausted    TrapKind = "call stack exhausted"
	TrapHost                  TrapKind = "host function error"
	TrapFuelExhausted         TrapKind = "fuel exhausted"
	TrapInterrupted           TrapKind = "interrupted"
)

// Trap is a fault raised while executing WebAssembly code. It aborts the
// current invocation only; the instance stays usable.
type Trap struct {
	Cause error
	Kind  TrapKind
	// Func is the index of the function executing when the trap fired.
	Func uint32
	// Offset is the byte offset of the trapping instruction within the
	// function body, or -1 when unknown.
	Offset int
}

// NewTrap creates a trap of the given kind with no location.
func NewTrap(kind TrapKind) *Trap {
	return &Trap{Kind: kind, Offset: -1}
}

func (t *Trap) Error() string {
	msg := "trap: " + string(t.Kind)
	if t.Offset >= 0 {
		msg += fmt.Sprintf(" (func %d, offset 0x%x)", t.Func, t.Offset)
	}
	if t.Cause != nil {
		msg += ": " + t.Cause.Error()
	}
	return msg
}

// Unwrap returns the host error behind a TrapHost, if any.
func (t *Trap) Unwrap() error {
	return t.Cause
}

// Is matches any *Trap with the same kind.
func (t *Trap) Is(target error) bool {
	if o, ok := target.(*Trap); ok {
		return o.Kind == t.Kind
	}
	return false
}

// AsTrap extracts a *Trap from an error chain.
func AsTrap(err error) (*Trap, bool) {
	var t *Trap
	if stderrors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// IsTrap reports whether err is, or wraps, a trap.
func IsTrap(err error) bool {
	_, ok := AsTrap(err)
	return ok
}
