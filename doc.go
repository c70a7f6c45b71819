// Package wasmvm is a validating WebAssembly 1.0 interpreter written in Go.
//
// Modules are decoded and validated ahead of execution. Validation also
// computes a side table that resolves every branch target in advance, so
// the interpreter executes the original instruction stream with no control
// stack of its own.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmvm/              Root package with the Memory interfaces seen by hosts
//	├── runtime/         High-level API: compile cache, host registry, pools, metrics
//	├── interp/          Instances, linking and the execution engine
//	├── validator/       Type checking and function compilation
//	├── sidetable/       Precomputed branch targets and stack adjustments
//	├── memory/          Linear memory with bounds checked access
//	├── wasm/            Binary format decoding and encoding
//	├── engine/          wazero reference engine for differential checks
//	└── errors/          Structured error and trap types
//
// # Quick Start
//
//	rt, _ := runtime.New(ctx)
//	defer rt.Close(ctx)
//
//	mod, err := rt.Compile(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err) // decode or validation error
//	}
//
//	inst, err := mod.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err) // missing or incompatible imports
//	}
//
//	results, err := inst.Call(ctx, "add", int32(2), int32(3))
//	fmt.Println(results[0]) // 5
//
// # Errors
//
// Every failure before execution is an *errors.Error carrying a phase
// (decode, validate, link, instantiate) and a kind. Faults during execution
// are *errors.Trap values; a trap aborts the invocation but leaves the
// instance usable.
//
//	if trap, ok := errors.AsTrap(err); ok {
//	    log.Printf("trap %s in func %d at 0x%x", trap.Kind, trap.Func, trap.Offset)
//	}
//
// # Limits
//
// interp.Config bounds call depth, memory pages, table size and fuel.
// Cancelling the context passed to a call interrupts it at the next call
// or loop back-edge.
package wasmvm
