package runtime

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/interp"
	"github.com/wippyai/wasmvm/memory"
)

type Instance struct {
	module *Module
	inst   *interp.Instance
}

// Module returns the module the instance was created from.
func (i *Instance) Module() *Module {
	return i.module
}

// Raw returns the underlying interpreter instance.
func (i *Instance) Raw() *interp.Instance {
	return i.inst
}

// Call invokes an exported function, converting Go arguments per its
// signature. i32 accepts int32, uint32 and int; i64 accepts int64, uint64
// and smaller integers; f32 accepts float32; f64 accepts float32 and
// float64. Results come back as int32, int64, float32 or float64.
func (i *Instance) Call(ctx context.Context, name string, args ...any) ([]any, error) {
	fn, ok := i.inst.ExportedFunction(name)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("unknown export function %q", name))
	}
	params := fn.Type.Params
	if len(args) != len(params) {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s%s expects %d arguments, got %d", name, fn.Type, len(params), len(args)))
	}
	slots := make([]uint64, len(args))
	for j, arg := range args {
		v, err := toSlot(arg, params[j])
		if err != nil {
			return nil, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("%s argument %d: %v", name, j, err))
		}
		slots[j] = v
	}

	raw, err := i.invoke(ctx, name, fn, slots)
	if err != nil {
		return nil, err
	}
	results := make([]any, len(raw))
	for j, bits := range raw {
		results[j] = fromSlot(bits, fn.Type.Results[j])
	}
	return results, nil
}

// CallRaw invokes an exported function with raw value slots.
func (i *Instance) CallRaw(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, ok := i.inst.ExportedFunction(name)
	if !ok {
		return nil, errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("unknown export function %q", name))
	}
	return i.invoke(ctx, name, fn, args)
}

func (i *Instance) invoke(ctx context.Context, name string, fn *interp.Function, args []uint64) ([]uint64, error) {
	rt := i.module.runtime
	start := time.Now()
	res, err := i.inst.Invoke(ctx, fn, args)
	rt.metrics.observeCall(name, time.Since(start), err)
	if trap, ok := errors.AsTrap(err); ok {
		rt.logger.Debug("trap",
			zap.String("function", name),
			zap.String("kind", string(trap.Kind)),
			zap.Uint32("func_index", trap.Func),
			zap.Int("offset", trap.Offset))
	}
	return res, err
}

// Memory returns the exported memory called name.
func (i *Instance) Memory(name string) (*memory.Memory, bool) {
	return i.inst.ExportedMemory(name)
}

// Global returns the exported global called name.
func (i *Instance) Global(name string) (*interp.Global, bool) {
	return i.inst.ExportedGlobal(name)
}

// Exports returns the export names in sorted order.
func (i *Instance) Exports() []string {
	return i.inst.ExportNames()
}
