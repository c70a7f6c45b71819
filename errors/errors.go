package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode      Phase = "decode"      // binary format
	PhaseValidate    Phase = "validate"    // static typing and module rules
	PhaseLink        Phase = "link"        // import resolution
	PhaseInstantiate Phase = "instantiate" // segment initialization and start function
	PhaseRuntime     Phase = "runtime"     // embedder calls into an instance
	PhaseHost        Phase = "host"        // host function registration
	PhaseConfig      Phase = "config"      // runtime and CLI configuration
)

// Kind categorizes the error
type Kind string

const (
	KindMalformed          Kind = "malformed"
	KindInvalidUTF8        Kind = "invalid_utf8"
	KindOverflow           Kind = "overflow"
	KindTypeMismatch       Kind = "type_mismatch"
	KindUnknownLabel       Kind = "unknown_label"
	KindUnknownIndex       Kind = "unknown_index"
	KindStackHeight        Kind = "stack_height"
	KindMalformedImmediate Kind = "malformed_immediate"
	KindInvalidData        Kind = "invalid_data"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindMissingImport      Kind = "missing_import"
	KindIncompatible       Kind = "incompatible_import"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
	KindRegistration       Kind = "registration"
	KindInstantiation      Kind = "instantiation"
	KindUnsupported        Kind = "unsupported"
)

// Error is the structured load-time and embedder error type.
// Run-time faults inside WebAssembly code are reported as *Trap instead.
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Detail    string
	Path      []string
	Offset    int
	hasOffset bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.hasOffset {
		fmt.Fprintf(&b, " (offset 0x%x)", e.Offset)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// HasOffset reports whether the error carries a byte offset.
func (e *Error) HasOffset() bool {
	return e.hasOffset
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path, e.g. "code", "func[3]"
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// At records the byte offset the error refers to
func (b *Builder) At(offset int) *Builder {
	b.err.Offset = offset
	b.err.hasOffset = true
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Malformed creates a decode error for a byte sequence that violates the binary format
func Malformed(section string, offset int, detail string) *Error {
	e := New(PhaseDecode, KindMalformed).At(offset).Detail(detail)
	if section != "" {
		e.Path(section)
	}
	return e.Build()
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("malformed UTF-8 encoding: %x", preview),
	}
}

// TypeMismatch creates a validation type mismatch error
func TypeMismatch(path []string, want, got string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("type mismatch: expected %s, got %s", want, got),
	}
}

// UnknownIndex creates an error for an index outside its index space
func UnknownIndex(path []string, space string, index uint32) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindUnknownIndex,
		Path:   path,
		Detail: fmt.Sprintf("unknown %s %d", space, index),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Incompatible creates a link error for an import whose type does not match
func Incompatible(module, name, detail string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindIncompatible,
		Path:   []string{module, name},
		Detail: "incompatible import type: " + detail,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module string // e.g., "env"
	Name   string // e.g., "print_i32"
	Kind   string // func, table, memory or global
}

// MissingImportsError is returned when instantiation fails due to unresolved imports
type MissingImportsError struct {
	Imports []MissingImport
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[link] missing_import: unknown import, %d unresolved:\n", len(e.Imports))

	// Group by module for cleaner output
	byModule := make(map[string][]MissingImport)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, imp := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(imp.Name)
			if imp.Kind != "" {
				b.WriteString(" (")
				b.WriteString(imp.Kind)
				b.WriteByte(')')
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Phase == PhaseLink && t.Kind == KindMissingImport
	}
	return false
}

// Runtime package convenience constructors

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, module, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", module, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: detail,
		Cause:  cause,
	}
}
