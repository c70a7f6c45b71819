package engine

import (
	stderrors "errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasmvm/errors"
)

const wasmErrorPrefix = "wasm error: "

// wazero reports traps as "wasm error: <message>\nwasm stack trace: ...".
var wazeroTraps = map[string]errors.TrapKind{
	"unreachable":                   errors.TrapUnreachable,
	"integer divide by zero":        errors.TrapIntegerDivideByZero,
	"integer overflow":              errors.TrapIntegerOverflow,
	"invalid conversion to integer": errors.TrapInvalidConversion,
	"out of bounds memory access":   errors.TrapMemoryOutOfBounds,
	"invalid table access":          errors.TrapUndefinedElement,
	"indirect call type mismatch":   errors.TrapIndirectCallSignature,
	"stack overflow":                errors.TrapCallStackExhausted,
}

// TrapKindOf classifies an error returned by wazero. Host errors that are
// already traps keep their kind; any other host error is a host trap.
func TrapKindOf(err error) (errors.TrapKind, bool) {
	if err == nil {
		return "", false
	}
	if trap, ok := errors.AsTrap(err); ok {
		return trap.Kind, true
	}
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		switch exit.ExitCode() {
		case sys.ExitCodeDeadlineExceeded, sys.ExitCodeContextCanceled:
			return errors.TrapInterrupted, true
		}
		return "", false
	}

	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, wasmErrorPrefix); ok {
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		if kind, ok := wazeroTraps[rest]; ok {
			return kind, true
		}
		return "", false
	}
	if strings.Contains(msg, "(recovered by wazero)") {
		return errors.TrapHost, true
	}
	return "", false
}

// SameTrap reports whether two trap kinds describe the same fault. wazero
// does not distinguish a missing table slot from an empty one.
func SameTrap(a, b errors.TrapKind) bool {
	return normalize(a) == normalize(b)
}

func normalize(k errors.TrapKind) errors.TrapKind {
	if k == errors.TrapUninitializedElement {
		return errors.TrapUndefinedElement
	}
	return k
}
