// Package errors provides structured error types for the wasmvm library.
//
// Two taxonomies are kept apart. Load-time and embedder errors are *Error
// values categorized by Phase (decode, validate, link, instantiate, runtime,
// host) and Kind. Faults inside executing WebAssembly code are *Trap values
// categorized by TrapKind.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
//		Path("code", "func[3]").
//		At(0x1a).
//		Detail("type mismatch").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnknownIndex(path, "global", 7)
//	trap := errors.NewTrap(errors.TrapIntegerDivideByZero)
//
// Matching with errors.Is compares Phase and Kind for *Error and TrapKind
// for *Trap:
//
//	if errors.Is(err, &errors.Trap{Kind: errors.TrapUnreachable}) { ... }
package errors
