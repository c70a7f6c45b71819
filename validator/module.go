package validator

import (
	"fmt"

	"go.uber.org/zap"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

// Module is a module that passed validation. Only a Module can be
// instantiated, so every function body it holds has a complete side table.
type Module struct {
	// Raw is the decoded module the functions were compiled from.
	Raw *wasm.Module
	// Funcs holds the defined functions; Funcs[i] has index NumImportedFuncs+i.
	Funcs []*Function
	// FuncTypes is the type index of every function in the index space.
	FuncTypes []uint32
	// Globals is the type of every global in the index space.
	Globals []wasm.GlobalType

	NumImportedFuncs int
}

// Function returns the defined function with index idx, or nil for an
// imported or out of range index.
func (m *Module) Function(idx uint32) *Function {
	i := int(idx) - m.NumImportedFuncs
	if i < 0 || i >= len(m.Funcs) {
		return nil
	}
	return m.Funcs[i]
}

// FuncType returns the signature of function idx.
func (m *Module) FuncType(idx uint32) (wasm.FuncType, bool) {
	if int(idx) >= len(m.FuncTypes) {
		return wasm.FuncType{}, false
	}
	return m.Raw.Types[m.FuncTypes[idx]], true
}

// moduleContext is the index space view function bodies validate against.
type moduleContext struct {
	types     []wasm.FuncType
	funcs     []uint32
	globals   []wasm.GlobalType
	hasTable  bool
	hasMemory bool
}

// Validate decodes and validates a binary module.
func Validate(data []byte) (*Module, error) {
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, err
	}
	return ValidateModule(m)
}

// ValidateModule checks m against the 1.0 validation rules and compiles
// every function body. The first violation is returned.
func ValidateModule(m *wasm.Module) (*Module, error) {
	mc, err := checkModule(m)
	if err != nil {
		return nil, err
	}

	out := &Module{
		Raw:              m,
		Funcs:            make([]*Function, len(m.Code)),
		FuncTypes:        mc.funcs,
		Globals:          mc.globals,
		NumImportedFuncs: m.NumImportedFuncs(),
	}
	entries := 0
	for i := range m.Code {
		idx := uint32(out.NumImportedFuncs + i)
		fn, err := validateFunction(mc, idx, m.Funcs[i], &m.Code[i])
		if err != nil {
			return nil, err
		}
		out.Funcs[i] = fn
		entries += fn.Side.NumEntries()
	}

	Logger().Debug("module validated",
		zap.Int("functions", len(out.Funcs)),
		zap.Int("imports", len(m.Imports)),
		zap.Int("side_table_entries", entries))
	return out, nil
}

func invalid(kind werrors.Kind, path []string, format string, args ...any) error {
	return werrors.New(werrors.PhaseValidate, kind).Path(path...).Detail(format, args...).Build()
}

func idxPath(section string, i int) []string {
	return []string{section, fmt.Sprintf("[%d]", i)}
}

func checkModule(m *wasm.Module) (*moduleContext, error) {
	mc := &moduleContext{types: m.Types}

	for i, ft := range m.Types {
		if len(ft.Results) > 1 {
			return nil, invalid(werrors.KindInvalidData, idxPath("type", i), "invalid result arity")
		}
	}

	tables, memories := 0, 0
	for i, imp := range m.Imports {
		path := []string{"import", imp.Module, imp.Name}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			if int(imp.Desc.TypeIdx) >= len(m.Types) {
				return nil, invalid(werrors.KindUnknownIndex, path, "unknown type %d", imp.Desc.TypeIdx)
			}
			mc.funcs = append(mc.funcs, imp.Desc.TypeIdx)
		case wasm.KindTable:
			if err := checkTable(imp.Desc.Table, path); err != nil {
				return nil, err
			}
			tables++
		case wasm.KindMemory:
			if err := checkMemory(imp.Desc.Memory, path); err != nil {
				return nil, err
			}
			memories++
		case wasm.KindGlobal:
			mc.globals = append(mc.globals, *imp.Desc.Global)
		default:
			return nil, invalid(werrors.KindMalformed, idxPath("import", i), "malformed import kind %d", imp.Desc.Kind)
		}
	}
	numImportedGlobals := len(mc.globals)

	for i, typeIdx := range m.Funcs {
		if int(typeIdx) >= len(m.Types) {
			return nil, invalid(werrors.KindUnknownIndex, idxPath("function", i), "unknown type %d", typeIdx)
		}
		mc.funcs = append(mc.funcs, typeIdx)
	}
	if len(m.Funcs) != len(m.Code) {
		return nil, werrors.New(werrors.PhaseDecode, werrors.KindMalformed).Path("code").
			Detail("function and code section have inconsistent lengths").Build()
	}

	for i := range m.Tables {
		if err := checkTable(&m.Tables[i], idxPath("table", i)); err != nil {
			return nil, err
		}
		tables++
	}
	if tables > 1 {
		return nil, invalid(werrors.KindInvalidData, []string{"table"}, "multiple tables")
	}
	mc.hasTable = tables == 1

	for i := range m.Memories {
		if err := checkMemory(&m.Memories[i], idxPath("memory", i)); err != nil {
			return nil, err
		}
		memories++
	}
	if memories > 1 {
		return nil, invalid(werrors.KindInvalidData, []string{"memory"}, "multiple memories")
	}
	mc.hasMemory = memories == 1

	for i, g := range m.Globals {
		path := idxPath("global", i)
		if err := checkConstExpr(mc, g.Init, g.Type.ValType, numImportedGlobals, path); err != nil {
			return nil, err
		}
		mc.globals = append(mc.globals, g.Type)
	}

	seen := make(map[string]struct{}, len(m.Exports))
	for _, exp := range m.Exports {
		path := []string{"export", exp.Name}
		if _, dup := seen[exp.Name]; dup {
			return nil, invalid(werrors.KindInvalidData, path, "duplicate export name")
		}
		seen[exp.Name] = struct{}{}
		if err := checkExportIndex(mc, exp, tables, memories, path); err != nil {
			return nil, err
		}
	}

	if m.Start != nil {
		path := []string{"start"}
		idx := *m.Start
		if int(idx) >= len(mc.funcs) {
			return nil, invalid(werrors.KindUnknownIndex, path, "unknown function %d", idx)
		}
		ft := mc.types[mc.funcs[idx]]
		if len(ft.Params) != 0 || len(ft.Results) != 0 {
			return nil, invalid(werrors.KindTypeMismatch, path, "start function must have type [] -> [], has %s", ft)
		}
	}

	for i, el := range m.Elements {
		path := idxPath("element", i)
		if el.TableIdx != 0 || !mc.hasTable {
			return nil, invalid(werrors.KindUnknownIndex, path, "unknown table %d", el.TableIdx)
		}
		if err := checkConstExpr(mc, el.Offset, wasm.ValI32, numImportedGlobals, path); err != nil {
			return nil, err
		}
		for _, f := range el.FuncIdxs {
			if int(f) >= len(mc.funcs) {
				return nil, invalid(werrors.KindUnknownIndex, path, "unknown function %d", f)
			}
		}
	}

	for i, seg := range m.Data {
		path := idxPath("data", i)
		if seg.MemIdx != 0 || !mc.hasMemory {
			return nil, invalid(werrors.KindUnknownIndex, path, "unknown memory %d", seg.MemIdx)
		}
		if err := checkConstExpr(mc, seg.Offset, wasm.ValI32, numImportedGlobals, path); err != nil {
			return nil, err
		}
	}

	return mc, nil
}

func checkLimits(l wasm.Limits, bound uint64, what string, path []string) error {
	if uint64(l.Min) > bound {
		return invalid(werrors.KindInvalidData, path, "%s size must be at most %d", what, bound)
	}
	if l.Max != nil {
		if uint64(*l.Max) > bound {
			return invalid(werrors.KindInvalidData, path, "%s size must be at most %d", what, bound)
		}
		if *l.Max < l.Min {
			return invalid(werrors.KindInvalidData, path, "size minimum must not be greater than maximum")
		}
	}
	return nil
}

func checkTable(t *wasm.TableType, path []string) error {
	if t.ElemType != wasm.ElemFuncRef {
		return invalid(werrors.KindMalformed, path, "malformed element type 0x%02x", t.ElemType)
	}
	return checkLimits(t.Limits, 1<<32-1, "table", path)
}

func checkMemory(mt *wasm.MemoryType, path []string) error {
	return checkLimits(mt.Limits, wasm.MaxPages, "memory", path)
}

// checkConstExpr validates an initializer. global.get may only read an
// imported immutable global, since defined globals are not yet initialized.
func checkConstExpr(mc *moduleContext, e wasm.ConstExpr, want wasm.ValType, numImportedGlobals int, path []string) error {
	var got wasm.ValType
	switch e.Opcode {
	case wasm.OpI32Const:
		got = wasm.ValI32
	case wasm.OpI64Const:
		got = wasm.ValI64
	case wasm.OpF32Const:
		got = wasm.ValF32
	case wasm.OpF64Const:
		got = wasm.ValF64
	case wasm.OpGlobalGet:
		if e.Value >= uint64(numImportedGlobals) {
			return invalid(werrors.KindUnknownIndex, path, "unknown global %d", e.Value)
		}
		g := mc.globals[e.Value]
		if g.Mutable {
			return invalid(werrors.KindInvalidData, path, "constant expression required")
		}
		got = g.ValType
	default:
		return invalid(werrors.KindInvalidData, path, "constant expression required")
	}
	if got != want {
		return invalid(werrors.KindTypeMismatch, path, "type mismatch: expected %s, got %s", want, got)
	}
	return nil
}

func checkExportIndex(mc *moduleContext, exp wasm.Export, tables, memories int, path []string) error {
	var n int
	switch exp.Kind {
	case wasm.KindFunc:
		n = len(mc.funcs)
	case wasm.KindTable:
		n = tables
	case wasm.KindMemory:
		n = memories
	case wasm.KindGlobal:
		n = len(mc.globals)
	default:
		return invalid(werrors.KindMalformed, path, "malformed export kind %d", exp.Kind)
	}
	if int(exp.Idx) >= n {
		return invalid(werrors.KindUnknownIndex, path, "unknown %s %d", wasm.KindName(exp.Kind), exp.Idx)
	}
	return nil
}
