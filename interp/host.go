package interp

import (
	"context"

	"github.com/wippyai/wasmvm"
	"github.com/wippyai/wasmvm/wasm"
)

// HostFunc is a function implemented by the embedder. Params and results
// are raw value slots sized by Type; Fn writes the results in place. A
// returned error traps the calling code.
type HostFunc struct {
	Fn   func(ctx context.Context, caller *Caller, params, results []uint64) error
	Type wasm.FuncType
}

// Caller gives a host function access to the instance that called it.
type Caller struct {
	inst *Instance
}

// Instance returns the calling instance, or nil when the host function was
// invoked directly by the embedder.
func (c *Caller) Instance() *Instance {
	if c == nil {
		return nil
	}
	return c.inst
}

// Memory returns the calling instance's memory, or nil when it has none.
func (c *Caller) Memory() wasmvm.Memory {
	if c == nil || c.inst == nil || c.inst.mem == nil {
		return nil
	}
	return c.inst.mem
}
