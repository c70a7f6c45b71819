package interp

import (
	"fmt"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/memory"
	"github.com/wippyai/wasmvm/validator"
	"github.com/wippyai/wasmvm/wasm"
)

// Function is a callable function instance: a compiled body bound to the
// instance whose state it runs with, or a host function.
type Function struct {
	host  *HostFunc
	owner *Instance
	code  *validator.Function
	Type  wasm.FuncType
	// Name is informational: the export or import name it was created under.
	Name string
}

// NewHostFunction wraps a host function so it can be imported or stored
// in a table.
func NewHostFunction(name string, h HostFunc) *Function {
	return &Function{host: &h, Type: h.Type, Name: name}
}

// IsHost reports whether f is implemented by the embedder.
func (f *Function) IsHost() bool {
	return f.host != nil
}

// Instance returns the instance a wasm function belongs to, or nil for
// host functions.
func (f *Function) Instance() *Instance {
	return f.owner
}

// Table is a funcref table. A nil slot is an uninitialized element.
type Table struct {
	elems []*Function
	max   *uint32
}

// NewTable allocates a table of min empty slots.
func NewTable(min uint32, max *uint32) *Table {
	return &Table{elems: make([]*Function, min), max: max}
}

// Len returns the number of slots.
func (t *Table) Len() uint32 {
	return uint32(len(t.elems))
}

// Max returns the declared maximum, if any.
func (t *Table) Max() (uint32, bool) {
	if t.max == nil {
		return 0, false
	}
	return *t.max, true
}

// Get returns slot i. ok is false when i is out of bounds; a nil function
// with ok set means the slot is uninitialized.
func (t *Table) Get(i uint32) (fn *Function, ok bool) {
	if uint64(i) >= uint64(len(t.elems)) {
		return nil, false
	}
	return t.elems[i], true
}

// Set stores fn in slot i.
func (t *Table) Set(i uint32, fn *Function) error {
	if uint64(i) >= uint64(len(t.elems)) {
		return werrors.OutOfBounds(werrors.PhaseRuntime, []string{"table"}, int(i), len(t.elems))
	}
	t.elems[i] = fn
	return nil
}

// Global is a global variable holding raw value bits.
type Global struct {
	Type wasm.GlobalType
	bits uint64
}

// NewGlobal creates a global with initial value bits.
func NewGlobal(t wasm.GlobalType, bits uint64) *Global {
	return &Global{Type: t, bits: bits}
}

// Get returns the value bits.
func (g *Global) Get() uint64 {
	return g.bits
}

// Set replaces the value bits of a mutable global.
func (g *Global) Set(bits uint64) error {
	if !g.Type.Mutable {
		return werrors.InvalidInput(werrors.PhaseRuntime, "global is immutable")
	}
	g.bits = bits
	return nil
}

// Extern is one importable or exported item. Exactly one field is set.
type Extern struct {
	Func   *Function
	Table  *Table
	Memory *memory.Memory
	Global *Global
}

// Kind returns the wasm.Kind* constant of the item.
func (e Extern) Kind() byte {
	switch {
	case e.Func != nil:
		return wasm.KindFunc
	case e.Table != nil:
		return wasm.KindTable
	case e.Memory != nil:
		return wasm.KindMemory
	default:
		return wasm.KindGlobal
	}
}

func (e Extern) String() string {
	return wasm.KindName(e.Kind())
}

// Resolver supplies import values at instantiation.
type Resolver interface {
	Resolve(module, name string) (Extern, bool)
}

// Imports is a Resolver backed by nested maps, module name first.
type Imports map[string]map[string]Extern

// Resolve implements Resolver.
func (im Imports) Resolve(module, name string) (Extern, bool) {
	ext, ok := im[module][name]
	return ext, ok
}

// Add registers an item, creating the module namespace on first use.
func (im Imports) Add(module, name string, ext Extern) {
	ns, ok := im[module]
	if !ok {
		ns = make(map[string]Extern)
		im[module] = ns
	}
	ns[name] = ext
}

// checkImport verifies that ext can satisfy imp.
func checkImport(imp wasm.Import, want *wasm.FuncType, ext Extern) error {
	if ext.Kind() != imp.Desc.Kind {
		return werrors.Incompatible(imp.Module, imp.Name,
			fmt.Sprintf("expected %s, got %s", wasm.KindName(imp.Desc.Kind), ext))
	}
	switch imp.Desc.Kind {
	case wasm.KindFunc:
		if !ext.Func.Type.Equal(*want) {
			return werrors.Incompatible(imp.Module, imp.Name,
				fmt.Sprintf("expected %s, got %s", want, ext.Func.Type))
		}
	case wasm.KindTable:
		max, hasMax := ext.Table.Max()
		if err := checkLimits(imp, imp.Desc.Table.Limits, ext.Table.Len(), max, hasMax); err != nil {
			return err
		}
	case wasm.KindMemory:
		max, hasMax := ext.Memory.Max()
		if err := checkLimits(imp, imp.Desc.Memory.Limits, ext.Memory.Size(), max, hasMax); err != nil {
			return err
		}
	case wasm.KindGlobal:
		if ext.Global.Type != *imp.Desc.Global {
			return werrors.Incompatible(imp.Module, imp.Name,
				fmt.Sprintf("expected %s, got %s", globalTypeString(*imp.Desc.Global), globalTypeString(ext.Global.Type)))
		}
	}
	return nil
}

// checkLimits applies limits subtyping: the provided item must be at least
// as large as required, and at least as tightly bounded.
func checkLimits(imp wasm.Import, want wasm.Limits, size, max uint32, hasMax bool) error {
	if size < want.Min {
		return werrors.Incompatible(imp.Module, imp.Name,
			fmt.Sprintf("minimum %d below required %d", size, want.Min))
	}
	if want.Max != nil {
		if !hasMax {
			return werrors.Incompatible(imp.Module, imp.Name,
				fmt.Sprintf("unbounded, required maximum %d", *want.Max))
		}
		if max > *want.Max {
			return werrors.Incompatible(imp.Module, imp.Name,
				fmt.Sprintf("maximum %d above required %d", max, *want.Max))
		}
	}
	return nil
}

func globalTypeString(g wasm.GlobalType) string {
	if g.Mutable {
		return "mut " + g.ValType.String()
	}
	return g.ValType.String()
}
