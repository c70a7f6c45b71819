// Package interp instantiates validated modules and executes them.
//
// Values live as raw 64-bit slots: i32 and f32 occupy the low half with
// the upper half zero, floats are stored as their IEEE-754 bits. Control
// flow follows the side table produced during validation, so branches are
// a single table lookup.
//
// Each Invoke runs on its own machine with a heap allocated frame stack.
// Call depth is bounded by Config.MaxCallDepth, and when Config.Fuel is
// set every call and backward branch consumes one unit. Cancellation of
// the invocation context is observed at the same points.
//
// Traps abort the current invocation only. The instance stays usable and
// any memory or global writes made before the trap remain visible.
//
//	mod, _ := validator.Validate(bin)
//	inst, err := interp.Instantiate(ctx, mod, imports, interp.Config{})
//	results, err := inst.Call(ctx, "add", 1, 2)
package interp
