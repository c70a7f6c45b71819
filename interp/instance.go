package interp

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/memory"
	"github.com/wippyai/wasmvm/validator"
	"github.com/wippyai/wasmvm/wasm"
)

// Instance is one instantiation of a validated module. It owns its memory,
// table and globals and runs one invocation at a time.
type Instance struct {
	mod     *validator.Module
	table   *Table
	mem     *memory.Memory
	exports map[string]Extern
	funcs   []*Function
	globals []*Global
	cfg     Config
	busy    atomic.Bool
}

func (e Extern) valid() bool {
	return e.Func != nil || e.Table != nil || e.Memory != nil || e.Global != nil
}

// Instantiate links m against imports, allocates its state, initializes
// tables and memory from the segments and runs the start function.
// imports may be nil for modules without imports.
func Instantiate(ctx context.Context, m *validator.Module, imports Resolver, cfg Config) (*Instance, error) {
	cfg = cfg.withDefaults()
	inst := &Instance{mod: m, cfg: cfg, exports: make(map[string]Extern, len(m.Raw.Exports))}
	raw := m.Raw

	var missing []werrors.MissingImport
	for _, imp := range raw.Imports {
		var ext Extern
		ok := false
		if imports != nil {
			ext, ok = imports.Resolve(imp.Module, imp.Name)
		}
		if !ok || !ext.valid() {
			missing = append(missing, werrors.MissingImport{
				Module: imp.Module, Name: imp.Name, Kind: wasm.KindName(imp.Desc.Kind),
			})
			continue
		}
		var want *wasm.FuncType
		if imp.Desc.Kind == wasm.KindFunc {
			want = &raw.Types[imp.Desc.TypeIdx]
		}
		if err := checkImport(imp, want, ext); err != nil {
			return nil, err
		}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			inst.funcs = append(inst.funcs, ext.Func)
		case wasm.KindTable:
			inst.table = ext.Table
		case wasm.KindMemory:
			inst.mem = ext.Memory
		case wasm.KindGlobal:
			inst.globals = append(inst.globals, ext.Global)
		}
	}
	if len(missing) > 0 {
		return nil, &werrors.MissingImportsError{Imports: missing}
	}

	for _, fn := range m.Funcs {
		inst.funcs = append(inst.funcs, &Function{Type: fn.Type, owner: inst, code: fn})
	}

	for _, tt := range raw.Tables {
		if tt.Limits.Min > cfg.MaxTableSize {
			return nil, werrors.Instantiation(
				fmt.Sprintf("table of %d elements exceeds limit %d", tt.Limits.Min, cfg.MaxTableSize), nil)
		}
		inst.table = NewTable(tt.Limits.Min, tt.Limits.Max)
	}

	for _, mt := range raw.Memories {
		if ceiling := memory.Ceiling(mt.Limits.Max, cfg.MaxMemoryPages); mt.Limits.Min > ceiling {
			return nil, werrors.Instantiation(
				fmt.Sprintf("memory of %d pages exceeds limit %d", mt.Limits.Min, ceiling), nil)
		}
		inst.mem = memory.New(mt.Limits.Min, mt.Limits.Max, cfg.MaxMemoryPages)
	}

	for _, g := range raw.Globals {
		inst.globals = append(inst.globals, NewGlobal(g.Type, inst.evalConst(g.Init)))
	}

	for _, exp := range raw.Exports {
		inst.exports[exp.Name] = inst.extern(exp)
	}

	if err := inst.initSegments(); err != nil {
		return nil, err
	}

	if raw.Start != nil {
		mc := newMachine(ctx, cfg)
		if _, err := mc.run(inst, inst.funcs[*raw.Start], nil); err != nil {
			return nil, werrors.Instantiation("start function failed", err)
		}
	}

	Logger().Debug("module instantiated",
		zap.Int("functions", len(inst.funcs)),
		zap.Int("globals", len(inst.globals)),
		zap.Bool("memory", inst.mem != nil),
		zap.Bool("table", inst.table != nil))
	return inst, nil
}

// evalConst evaluates a validated initializer. global.get can only refer
// to imported globals, which are already in place.
func (inst *Instance) evalConst(e wasm.ConstExpr) uint64 {
	if e.Opcode == wasm.OpGlobalGet {
		return inst.globals[e.Value].Get()
	}
	return e.Value
}

func (inst *Instance) extern(exp wasm.Export) Extern {
	switch exp.Kind {
	case wasm.KindFunc:
		fn := inst.funcs[exp.Idx]
		if fn.owner == inst && fn.Name == "" {
			fn.Name = exp.Name
		}
		return Extern{Func: fn}
	case wasm.KindTable:
		return Extern{Table: inst.table}
	case wasm.KindMemory:
		return Extern{Memory: inst.mem}
	default:
		return Extern{Global: inst.globals[exp.Idx]}
	}
}

// initSegments checks every segment before writing any of them, so a
// failing instantiation leaves imported tables and memories untouched.
func (inst *Instance) initSegments() error {
	raw := inst.mod.Raw

	elemOffsets := make([]uint64, len(raw.Elements))
	for i, el := range raw.Elements {
		off := uint64(uint32(inst.evalConst(el.Offset)))
		if off+uint64(len(el.FuncIdxs)) > uint64(inst.table.Len()) {
			return werrors.New(werrors.PhaseInstantiate, werrors.KindOutOfBounds).
				Path("element", fmt.Sprintf("[%d]", i)).
				Detail("elements segment does not fit").
				Cause(werrors.NewTrap(werrors.TrapUndefinedElement)).
				Build()
		}
		elemOffsets[i] = off
	}

	dataOffsets := make([]uint64, len(raw.Data))
	for i, seg := range raw.Data {
		off := uint64(uint32(inst.evalConst(seg.Offset)))
		if off+uint64(len(seg.Init)) > inst.mem.Len() {
			return werrors.New(werrors.PhaseInstantiate, werrors.KindOutOfBounds).
				Path("data", fmt.Sprintf("[%d]", i)).
				Detail("data segment does not fit").
				Cause(werrors.NewTrap(werrors.TrapMemoryOutOfBounds)).
				Build()
		}
		dataOffsets[i] = off
	}

	for i, el := range raw.Elements {
		for j, idx := range el.FuncIdxs {
			inst.table.elems[elemOffsets[i]+uint64(j)] = inst.funcs[idx]
		}
	}
	for i, seg := range raw.Data {
		copy(inst.mem.Bytes()[dataOffsets[i]:], seg.Init)
	}
	return nil
}

// Module returns the validated module the instance was created from.
func (inst *Instance) Module() *validator.Module {
	return inst.mod
}

// Memory returns the instance's memory, imported or defined, or nil.
func (inst *Instance) Memory() *memory.Memory {
	return inst.mem
}

// Table returns the instance's table, imported or defined, or nil.
func (inst *Instance) Table() *Table {
	return inst.table
}

// Export looks up an export by name.
func (inst *Instance) Export(name string) (Extern, bool) {
	ext, ok := inst.exports[name]
	return ext, ok
}

// Resolve implements Resolver over the instance's exports, ignoring the
// module name. It lets one instance satisfy another's imports.
func (inst *Instance) Resolve(_, name string) (Extern, bool) {
	return inst.Export(name)
}

// ExportedFunction returns the exported function called name.
func (inst *Instance) ExportedFunction(name string) (*Function, bool) {
	ext, ok := inst.exports[name]
	if !ok || ext.Func == nil {
		return nil, false
	}
	return ext.Func, true
}

// ExportedGlobal returns the exported global called name.
func (inst *Instance) ExportedGlobal(name string) (*Global, bool) {
	ext, ok := inst.exports[name]
	if !ok || ext.Global == nil {
		return nil, false
	}
	return ext.Global, true
}

// ExportedMemory returns the exported memory called name.
func (inst *Instance) ExportedMemory(name string) (*memory.Memory, bool) {
	ext, ok := inst.exports[name]
	if !ok || ext.Memory == nil {
		return nil, false
	}
	return ext.Memory, true
}

// ExportNames returns the export names in sorted order.
func (inst *Instance) ExportNames() []string {
	names := make([]string, 0, len(inst.exports))
	for name := range inst.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs fn with raw argument slots and returns its raw results.
// Argument count errors are reported before anything executes; failures
// during execution are *errors.Trap values. fn may belong to another
// instance, in which case it runs with that instance's state.
func (inst *Instance) Invoke(ctx context.Context, fn *Function, args []uint64) ([]uint64, error) {
	if fn == nil {
		return nil, werrors.InvalidInput(werrors.PhaseRuntime, "nil function")
	}
	if len(args) != len(fn.Type.Params) {
		return nil, werrors.InvalidInput(werrors.PhaseRuntime,
			fmt.Sprintf("%s expects %d arguments, got %d", fn.Type, len(fn.Type.Params), len(args)))
	}
	if !inst.busy.CompareAndSwap(false, true) {
		return nil, werrors.InvalidInput(werrors.PhaseRuntime, "instance is already executing an invocation")
	}
	defer inst.busy.Store(false)

	return newMachine(ctx, inst.cfg).run(inst, fn, args)
}

// Call invokes the exported function name.
func (inst *Instance) Call(ctx context.Context, name string, args ...uint64) ([]uint64, error) {
	fn, ok := inst.ExportedFunction(name)
	if !ok {
		return nil, werrors.NotFound(werrors.PhaseRuntime, "export", name)
	}
	return inst.Invoke(ctx, fn, args)
}
