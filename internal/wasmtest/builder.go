// Package wasmtest builds WebAssembly modules in memory for tests.
//
// Imports must be declared before defined functions and globals so that
// the returned indices stay valid.
package wasmtest

import (
	"math"

	"github.com/wippyai/wasmvm/wasm"
)

// Builder assembles a wasm.Module.
type Builder struct {
	m wasm.Module
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Type adds (or reuses) a function type and returns its index.
func (b *Builder) Type(params, results []wasm.ValType) uint32 {
	return b.m.AddType(wasm.FuncType{Params: params, Results: results})
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, params, results []wasm.ValType) uint32 {
	t := b.Type(params, results)
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: t},
	})
	return uint32(b.m.NumImportedFuncs() - 1)
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, min uint32, max *uint32) {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: min, Max: max}}},
	})
}

// ImportTable declares a funcref table import.
func (b *Builder) ImportTable(module, name string, min uint32, max *uint32) {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindTable, Table: &wasm.TableType{ElemType: wasm.ElemFuncRef, Limits: wasm.Limits{Min: min, Max: max}}},
	})
}

// ImportGlobal declares a global import and returns its global index.
func (b *Builder) ImportGlobal(module, name string, t wasm.ValType, mutable bool) uint32 {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module, Name: name,
		Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: t, Mutable: mutable}},
	})
	return uint32(b.m.NumImportedGlobals() - 1)
}

// NextFuncIndex returns the index the next defined function will get,
// for bodies that call themselves.
func (b *Builder) NextFuncIndex() uint32 {
	return uint32(b.m.NumImportedFuncs() + len(b.m.Funcs))
}

// Func defines a function whose body is body followed by end and returns
// its function index.
func (b *Builder) Func(params, results, locals []wasm.ValType, body ...wasm.Instruction) uint32 {
	code := wasm.EncodeInstructions(append(body, Op(wasm.OpEnd)))
	return b.RawFunc(b.Type(params, results), locals, code)
}

// RawFunc defines a function from encoded instructions, which must include
// the final end.
func (b *Builder) RawFunc(typeIdx uint32, locals []wasm.ValType, code []byte) uint32 {
	b.m.Funcs = append(b.m.Funcs, typeIdx)
	b.m.Code = append(b.m.Code, wasm.FuncBody{Locals: compressLocals(locals), Code: code})
	return uint32(b.m.NumImportedFuncs() + len(b.m.Funcs) - 1)
}

func compressLocals(locals []wasm.ValType) []wasm.LocalEntry {
	var out []wasm.LocalEntry
	for _, t := range locals {
		if n := len(out); n > 0 && out[n-1].ValType == t {
			out[n-1].Count++
			continue
		}
		out = append(out, wasm.LocalEntry{Count: 1, ValType: t})
	}
	return out
}

// Memory defines a memory.
func (b *Builder) Memory(min uint32, max *uint32) *Builder {
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: min, Max: max}})
	return b
}

// Table defines a funcref table.
func (b *Builder) Table(min uint32, max *uint32) *Builder {
	b.m.Tables = append(b.m.Tables, wasm.TableType{ElemType: wasm.ElemFuncRef, Limits: wasm.Limits{Min: min, Max: max}})
	return b
}

// Global defines a global and returns its global index.
func (b *Builder) Global(t wasm.ValType, mutable bool, init wasm.ConstExpr) uint32 {
	b.m.Globals = append(b.m.Globals, wasm.Global{Type: wasm.GlobalType{ValType: t, Mutable: mutable}, Init: init})
	return uint32(b.m.NumImportedGlobals() + len(b.m.Globals) - 1)
}

// Export exports an item.
func (b *Builder) Export(name string, kind byte, idx uint32) *Builder {
	b.m.Exports = append(b.m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
	return b
}

// ExportFunc exports function idx.
func (b *Builder) ExportFunc(name string, idx uint32) *Builder {
	return b.Export(name, wasm.KindFunc, idx)
}

// Elem adds an element segment for table 0.
func (b *Builder) Elem(offset wasm.ConstExpr, funcs ...uint32) *Builder {
	b.m.Elements = append(b.m.Elements, wasm.Element{Offset: offset, FuncIdxs: funcs})
	return b
}

// Data adds a data segment for memory 0.
func (b *Builder) Data(offset wasm.ConstExpr, init []byte) *Builder {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Offset: offset, Init: init})
	return b
}

// Start sets the start function.
func (b *Builder) Start(idx uint32) *Builder {
	b.m.Start = &idx
	return b
}

// Module returns the assembled module. The builder must not be reused.
func (b *Builder) Module() *wasm.Module {
	return &b.m
}

// Bytes returns the binary encoding of the assembled module.
func (b *Builder) Bytes() []byte {
	return b.m.Encode()
}

// ConstI32 is an i32.const initializer.
func ConstI32(v int32) wasm.ConstExpr {
	return wasm.ConstExpr{Opcode: wasm.OpI32Const, Value: uint64(uint32(v))}
}

// ConstI64 is an i64.const initializer.
func ConstI64(v int64) wasm.ConstExpr {
	return wasm.ConstExpr{Opcode: wasm.OpI64Const, Value: uint64(v)}
}

// ConstF64 is an f64.const initializer.
func ConstF64(v float64) wasm.ConstExpr {
	return wasm.ConstExpr{Opcode: wasm.OpF64Const, Value: math.Float64bits(v)}
}

// ConstGlobal is a global.get initializer.
func ConstGlobal(idx uint32) wasm.ConstExpr {
	return wasm.ConstExpr{Opcode: wasm.OpGlobalGet, Value: uint64(idx)}
}

// Ptr returns a pointer to v, for limits maxima.
func Ptr(v uint32) *uint32 {
	return &v
}
