// Package validator checks decoded modules against the WebAssembly 1.0
// validation rules and compiles function bodies for the interpreter.
//
// Validation is a single forward pass per function. Operand types are
// tracked on an abstract stack; control constructs push frames recording
// the stack height and result types. After an unconditional transfer
// (unreachable, br, br_table, return) the frame becomes polymorphic and
// popping past its height yields a type that matches anything.
//
// While checking, the validator emits a side table for each body (see
// package sidetable), so the interpreter never scans for a matching end or
// else at run time.
//
// Basic usage:
//
//	mod, err := validator.Validate(wasmBytes)
//	if err != nil {
//	    // *errors.Error with PhaseDecode or PhaseValidate
//	}
//	fn := mod.Function(idx)
//	_ = fn.Side.Lookup(pos)
package validator
