package runtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/interp"
	"github.com/wippyai/wasmvm/validator"
	"github.com/wippyai/wasmvm/wasm"
)

// Module is a compiled, validated module. It is immutable and may be
// instantiated any number of times, concurrently.
type Module struct {
	runtime  *Runtime
	compiled *validator.Module
	bin      []byte
	hash     uint64
}

// Validated returns the validated form, including compiled function bodies.
func (m *Module) Validated() *validator.Module {
	return m.compiled
}

// Hash returns the xxhash64 of the module bytes.
func (m *Module) Hash() uint64 {
	return m.hash
}

// Instantiate links the module against the runtime's registered instances
// and host functions and runs its start function.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	start := time.Now()
	inst, err := interp.Instantiate(ctx, m.compiled, m.runtime, m.runtime.cfg)
	if err != nil {
		m.runtime.logger.Debug("instantiation failed", zap.Error(err))
		return nil, err
	}
	m.runtime.logger.Debug("module instantiated",
		zap.Uint64("hash", m.hash),
		zap.Int("imports", len(m.compiled.Raw.Imports)),
		zap.Duration("elapsed", time.Since(start)))
	return &Instance{module: m, inst: inst}, nil
}

// Export describes one export of a module.
type Export struct {
	Name string
	Kind string
	// Type is the signature for functions and the value type for globals.
	Type string
}

// Import describes one import of a module.
type Import struct {
	Module string
	Name   string
	Kind   string
	Type   string
}

func (m *Module) Exports() []Export {
	raw := m.compiled.Raw
	exports := make([]Export, len(raw.Exports))
	for i, exp := range raw.Exports {
		exports[i] = Export{Name: exp.Name, Kind: wasm.KindName(exp.Kind)}
		switch exp.Kind {
		case wasm.KindFunc:
			if ft, ok := m.compiled.FuncType(exp.Idx); ok {
				exports[i].Type = ft.String()
			}
		case wasm.KindGlobal:
			if int(exp.Idx) < len(m.compiled.Globals) {
				exports[i].Type = globalTypeString(m.compiled.Globals[exp.Idx])
			}
		}
	}
	return exports
}

func (m *Module) Imports() []Import {
	raw := m.compiled.Raw
	imports := make([]Import, len(raw.Imports))
	for i, imp := range raw.Imports {
		imports[i] = Import{Module: imp.Module, Name: imp.Name, Kind: wasm.KindName(imp.Desc.Kind)}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			imports[i].Type = raw.Types[imp.Desc.TypeIdx].String()
		case wasm.KindGlobal:
			imports[i].Type = globalTypeString(*imp.Desc.Global)
		}
	}
	return imports
}

func globalTypeString(g wasm.GlobalType) string {
	if g.Mutable {
		return "mut " + g.ValType.String()
	}
	return g.ValType.String()
}
