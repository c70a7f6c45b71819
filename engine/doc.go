// Package engine runs modules on wazero as a reference implementation.
//
// The interpreter in package interp is the engine that embedders use. This
// package exists to check it: the same binary is loaded into a wazero
// interpreter runtime limited to api.CoreFeaturesV1, the same exports are
// invoked, and results and trap kinds are compared. The wasmvm CLI exposes
// this as "run --crosscheck".
//
//	e, _ := engine.NewWazeroEngine(ctx)
//	defer e.Close(ctx)
//	inst, err := e.Load(ctx, bin, engine.Hosts{"env": {"print_i32": printer}})
//	results, err := inst.Call(ctx, "add", []uint64{2, 3})
//
// Trap errors come back as *errors.Trap. wazero reports a missing and an
// empty table slot the same way; use SameTrap when comparing kinds.
//
// WazeroEngine is safe for concurrent use. WazeroInstance is not.
package engine
