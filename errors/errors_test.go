package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: New(PhaseValidate, KindTypeMismatch).
				Path("code", "func[2]").
				At(0x1a).
				Detail("type mismatch").
				Build(),
			contains: []string{"[validate]", "type_mismatch", "code.func[2]", "offset 0x1a", "type mismatch"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindMalformed,
			},
			contains: []string{"[decode]", "malformed"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseInstantiate,
				Kind:   KindInstantiation,
				Detail: "start function",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[instantiate]", "instantiation", "start function", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_NoOffsetByDefault(t *testing.T) {
	err := &Error{Phase: PhaseDecode, Kind: KindMalformed}
	if err.HasOffset() {
		t.Error("literal error should not carry an offset")
	}
	if strings.Contains(err.Error(), "offset") {
		t.Errorf("unexpected offset in %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseDecode, KindInvalidData, cause, "outer")

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := UnknownIndex([]string{"code"}, "global", 3)

	tests := []struct {
		name   string
		target error
		want   bool
	}{
		{"same phase and kind", &Error{Phase: PhaseValidate, Kind: KindUnknownIndex}, true},
		{"different kind", &Error{Phase: PhaseValidate, Kind: KindTypeMismatch}, false},
		{"different phase", &Error{Phase: PhaseDecode, Kind: KindUnknownIndex}, false},
		{"non-structured", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_WrappedByFmt(t *testing.T) {
	inner := Malformed("type", 12, "integer representation too long")
	outer := fmt.Errorf("load: %w", inner)

	var e *Error
	if !errors.As(outer, &e) {
		t.Fatal("errors.As failed")
	}
	if e.Phase != PhaseDecode || e.Kind != KindMalformed {
		t.Errorf("got phase=%s kind=%s", e.Phase, e.Kind)
	}
	if !e.HasOffset() || e.Offset != 12 {
		t.Errorf("offset = %d (has=%v), want 12", e.Offset, e.HasOffset())
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
		text  string
	}{
		{"TypeMismatch", TypeMismatch(nil, "i32", "i64"), PhaseValidate, KindTypeMismatch, "expected i32, got i64"},
		{"UnknownIndex", UnknownIndex(nil, "function", 9), PhaseValidate, KindUnknownIndex, "unknown function 9"},
		{"InvalidUTF8", InvalidUTF8(PhaseDecode, nil, []byte{0xff}), PhaseDecode, KindInvalidUTF8, "ff"},
		{"OutOfBounds", OutOfBounds(PhaseRuntime, nil, 5, 2), PhaseRuntime, KindOutOfBounds, "index 5"},
		{"Incompatible", Incompatible("env", "f", "signature"), PhaseLink, KindIncompatible, "env.f"},
		{"NotFound", NotFound(PhaseRuntime, "export", "main"), PhaseRuntime, KindNotFound, `"main"`},
		{"InvalidInput", InvalidInput(PhaseRuntime, "bad"), PhaseRuntime, KindInvalidInput, "bad"},
		{"Unsupported", Unsupported(PhaseDecode, "simd"), PhaseDecode, KindUnsupported, "simd"},
		{"Registration", Registration(PhaseHost, "env", "f", errors.New("dup")), PhaseHost, KindRegistration, "env.f"},
		{"Instantiation", Instantiation("start", errors.New("x")), PhaseInstantiate, KindInstantiation, "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("phase = %s, want %s", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Error(), tt.text) {
				t.Errorf("%q does not contain %q", tt.err.Error(), tt.text)
			}
		})
	}
}

func TestMissingImportsError(t *testing.T) {
	err := &MissingImportsError{Imports: []MissingImport{
		{Module: "env", Name: "print", Kind: "func"},
		{Module: "wasi", Name: "fd_write", Kind: "func"},
		{Module: "env", Name: "mem", Kind: "memory"},
	}}
	msg := err.Error()
	for _, s := range []string{"3 unresolved", "env:", "- print (func)", "- mem (memory)", "wasi:"} {
		if !strings.Contains(msg, s) {
			t.Errorf("%q does not contain %q", msg, s)
		}
	}
	if strings.Index(msg, "mem") < strings.Index(msg, "print") {
		t.Error("imports should be grouped by module in first-seen order")
	}
	if !errors.Is(err, &Error{Phase: PhaseLink, Kind: KindMissingImport}) {
		t.Error("MissingImportsError should match link/missing_import")
	}
	if got := (&MissingImportsError{}).Error(); !strings.Contains(got, "no imports") {
		t.Errorf("empty error = %q", got)
	}
}

func TestTrap(t *testing.T) {
	trap := &Trap{Kind: TrapIntegerDivideByZero, Func: 2, Offset: 7}
	if got := trap.Error(); got != "trap: integer divide by zero (func 2, offset 0x7)" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewTrap(TrapUnreachable).Error(); got != "trap: unreachable" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := fmt.Errorf("invoke: %w", trap)
	if !errors.Is(wrapped, &Trap{Kind: TrapIntegerDivideByZero}) {
		t.Error("errors.Is should match trap kind")
	}
	if errors.Is(wrapped, &Trap{Kind: TrapUnreachable}) {
		t.Error("errors.Is matched wrong trap kind")
	}
	got, ok := AsTrap(wrapped)
	if !ok || got != trap {
		t.Error("AsTrap did not return the trap")
	}
	if IsTrap(errors.New("plain")) {
		t.Error("plain error reported as trap")
	}
}

func TestTrap_HostCause(t *testing.T) {
	cause := errors.New("disk full")
	trap := &Trap{Kind: TrapHost, Cause: cause, Offset: -1}
	if !errors.Is(trap, cause) {
		t.Error("host trap should unwrap to cause")
	}
	if !strings.Contains(trap.Error(), "disk full") {
		t.Errorf("Error() = %q", trap.Error())
	}
}
