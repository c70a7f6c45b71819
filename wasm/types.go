package wasm

import "strings"

// Module represents a parsed WebAssembly 1.0 module.
type Module struct {
	Start          *uint32
	Types          []FuncType
	Imports        []Import
	Funcs          []uint32 // Type indices for defined functions
	Tables         []TableType
	Memories       []MemoryType
	Globals        []Global
	Exports        []Export
	Elements       []Element
	Code           []FuncBody
	Data           []DataSegment
	CustomSections []CustomSection
}

// FuncType is a function signature: parameter and result value types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures have identical type sequences.
func (f FuncType) Equal(o FuncType) bool {
	return valTypesEqual(f.Params, o.Params) && valTypesEqual(f.Results, o.Results)
}

// String renders the signature as "[i32 i32] -> [i64]".
func (f FuncType) String() string {
	var b strings.Builder
	writeTypeList(&b, f.Params)
	b.WriteString(" -> ")
	writeTypeList(&b, f.Results)
	return b.String()
}

func writeTypeList(b *strings.Builder, types []ValType) {
	b.WriteByte('[')
	for i, t := range types {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.String())
	}
	b.WriteByte(']')
}

func valTypesEqual(a, b []ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ValType is a WebAssembly value type.
type ValType byte

// String returns the text-format name of the value type.
func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// IsValid reports whether v is one of the four 1.0 value types.
func (v ValType) IsValid() bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64:
		return true
	}
	return false
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Limits   Limits
	ElemType byte
}

// MemoryType describes a linear memory with size limits in pages.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max *uint32
	Min uint32
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with type and initialization.
type Global struct {
	Init ConstExpr
	Type GlobalType
}

// ConstExpr is a constant initializer expression: a single constant or
// global.get instruction followed by end.
type ConstExpr struct {
	// Opcode is one of OpI32Const, OpI64Const, OpF32Const, OpF64Const or OpGlobalGet.
	Opcode byte
	// Value holds the raw bits of the constant, or the global index.
	Value uint64
}

// Export describes an exported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element is an active element segment initializing table entries.
type Element struct {
	Offset   ConstExpr
	FuncIdxs []uint32
	TableIdx uint32
}

// FuncBody represents a function's local declarations and bytecode.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte // Raw code bytes including end opcode
	// Offset is the position of Code within the module binary.
	Offset int
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment is an active data segment initializing memory bytes.
type DataSegment struct {
	Offset ConstExpr
	Init   []byte
	MemIdx uint32
}

// CustomSection holds a named custom section's data.
type CustomSection struct {
	Name string
	Data []byte
}

// NumImportedFuncs returns the count of imported functions.
func (m *Module) NumImportedFuncs() int {
	return m.countImports(KindFunc)
}

// NumImportedGlobals returns the count of imported globals.
func (m *Module) NumImportedGlobals() int {
	return m.countImports(KindGlobal)
}

// NumImportedTables returns the count of imported tables.
func (m *Module) NumImportedTables() int {
	return m.countImports(KindTable)
}

// NumImportedMemories returns the count of imported memories.
func (m *Module) NumImportedMemories() int {
	return m.countImports(KindMemory)
}

func (m *Module) countImports(kind byte) int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			count++
		}
	}
	return count
}

// NumFuncs returns the size of the function index space.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// GetFuncType returns the signature of the function at funcIdx in the
// function index space (imports first), or nil if out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	idx := int(funcIdx)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if idx == 0 {
			return m.typeAt(imp.Desc.TypeIdx)
		}
		idx--
	}
	if idx < len(m.Funcs) {
		return m.typeAt(m.Funcs[idx])
	}
	return nil
}

// GlobalTypes returns the types of the global index space (imports first).
func (m *Module) GlobalTypes() []GlobalType {
	var out []GlobalType
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal && imp.Desc.Global != nil {
			out = append(out, *imp.Desc.Global)
		}
	}
	for _, g := range m.Globals {
		out = append(out, g.Type)
	}
	return out
}

// ExportByName finds an export by name.
func (m *Module) ExportByName(name string) (Export, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name {
			return exp, true
		}
	}
	return Export{}, false
}

func (m *Module) typeAt(typeIdx uint32) *FuncType {
	if int(typeIdx) < len(m.Types) {
		return &m.Types[typeIdx]
	}
	return nil
}

// AddType appends a signature to the type section, reusing an equal one.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, existing := range m.Types {
		if existing.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// KindName returns the text name of an import/export kind.
func KindName(kind byte) string {
	switch kind {
	case KindFunc:
		return "func"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return "unknown"
	}
}
