package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmvm "github.com/wippyai/wasmvm"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

// WazeroEngine runs modules on wazero's interpreter, restricted to the
// WebAssembly 1.0 feature set.
type WazeroEngine struct {
	runtime      wazero.Runtime
	hostModuleMu sync.Mutex
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// HostFunc is a slot-level host function. Params hold the arguments on
// entry; results are written back into the front of stack.
type HostFunc struct {
	Fn      func(ctx context.Context, mem wasmvm.Memory, stack []uint64) error
	Params  []wasm.ValType
	Results []wasm.ValType
}

// Hosts maps import module name to function name to implementation.
type Hosts map[string]map[string]HostFunc

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(api.CoreFeaturesV1).
		WithCloseOnContextDone(true)

	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return &WazeroEngine{runtime: runtime}, nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Load defines the host modules that are not yet present, then compiles
// and instantiates bin. The module's start function runs; no "_start"
// export is called.
func (e *WazeroEngine) Load(ctx context.Context, bin []byte, hosts Hosts) (*WazeroInstance, error) {
	if err := e.defineHosts(ctx, hosts); err != nil {
		return nil, err
	}

	compiled, err := e.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseValidate, errors.KindInvalidData, err, "wazero compile")
	}

	mod, err := e.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		compiled.Close(ctx)
		if kind, ok := TrapKindOf(err); ok {
			return nil, &errors.Trap{Kind: kind, Cause: err, Offset: -1}
		}
		return nil, errors.Instantiation("wazero instantiate", err)
	}

	debugf("loaded module with %d exported functions", len(compiled.ExportedFunctions()))
	return &WazeroInstance{module: mod, compiled: compiled}, nil
}

func (e *WazeroEngine) defineHosts(ctx context.Context, hosts Hosts) error {
	e.hostModuleMu.Lock()
	defer e.hostModuleMu.Unlock()

	namespaces := make([]string, 0, len(hosts))
	for ns := range hosts {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		if e.runtime.Module(ns) != nil {
			continue
		}
		builder := e.runtime.NewHostModuleBuilder(ns)
		for name, h := range hosts[ns] {
			builder.NewFunctionBuilder().
				WithGoModuleFunction(goModuleFunc(h), valueTypes(h.Params), valueTypes(h.Results)).
				Export(name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			Logger().Debug("host module rejected", zap.String("module", ns), zap.Error(err))
			return errors.Registration(errors.PhaseHost, ns, "", err)
		}
	}
	return nil
}

// goModuleFunc panics with the host error; wazero recovers it and keeps
// it in the returned error chain.
func goModuleFunc(h HostFunc) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		var mem wasmvm.Memory
		if m := mod.Memory(); m != nil {
			mem = &WazeroMemory{mem: m}
		}
		if err := h.Fn(ctx, mem, stack); err != nil {
			panic(err)
		}
	}
}

func valueTypes(ts []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		out[i] = api.ValueType(t)
	}
	return out
}

// WazeroInstance is an instantiated module. Like wazero modules it must
// not be called from several goroutines at once.
type WazeroInstance struct {
	module   api.Module
	compiled wazero.CompiledModule
}

// Call invokes an exported function with raw value slots. Traps are
// returned as *errors.Trap with the kind translated from wazero's message.
func (i *WazeroInstance) Call(ctx context.Context, name string, args []uint64) ([]uint64, error) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "export function", name)
	}
	if want := len(fn.Definition().ParamTypes()); want != len(args) {
		return nil, errors.InvalidInput(errors.PhaseRuntime,
			fmt.Sprintf("%s expects %d arguments, got %d", name, want, len(args)))
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		if kind, ok := TrapKindOf(err); ok {
			return nil, &errors.Trap{Kind: kind, Cause: err, Offset: -1}
		}
		return nil, err
	}
	return results, nil
}

// ExportNames returns the exported function names, sorted.
func (i *WazeroInstance) ExportNames() []string {
	defs := i.module.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Memory returns the exported memory called name.
func (i *WazeroInstance) Memory(name string) (*WazeroMemory, bool) {
	mem := i.module.ExportedMemory(name)
	if mem == nil {
		return nil, false
	}
	return &WazeroMemory{mem: mem}, true
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	var firstErr error
	if err := i.module.Close(ctx); err != nil {
		firstErr = err
	}
	if err := i.compiled.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// WazeroMemory wraps wazero memory to implement wasmvm.Memory
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.oob(offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.oob(offset, uint32(len(data)))
	}
	return nil
}

func (m *WazeroMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, m.oob(offset, 1)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, m.oob(offset, 2)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.oob(offset, 4)
	}
	return v, nil
}

func (m *WazeroMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, m.oob(offset, 8)
	}
	return v, nil
}

func (m *WazeroMemory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return m.oob(offset, 1)
	}
	return nil
}

func (m *WazeroMemory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return m.oob(offset, 2)
	}
	return nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return m.oob(offset, 4)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return m.oob(offset, 8)
	}
	return nil
}

func (m *WazeroMemory) oob(offset, n uint32) error {
	return errors.New(errors.PhaseRuntime, errors.KindOutOfBounds).
		Detail("memory access at %d of %d bytes", offset, n).Build()
}

// Size returns the memory size in pages.
func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size() / wasm.PageSize
}

var (
	_ wasmvm.Memory      = (*WazeroMemory)(nil)
	_ wasmvm.MemorySizer = (*WazeroMemory)(nil)
)
