package wasm

import (
	"github.com/wippyai/wasmvm/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	w := binary.NewWriter()

	// Magic number and version
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	// Type section
	if len(m.Types) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
		writeSection(w, SectionType, sec.Bytes())
	}

	// Import section
	if len(m.Imports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec.WriteName(imp.Module)
			sec.WriteName(imp.Name)
			sec.Byte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec.WriteU32(imp.Desc.TypeIdx)
			case KindTable:
				if imp.Desc.Table != nil {
					writeTableType(sec, *imp.Desc.Table)
				}
			case KindMemory:
				if imp.Desc.Memory != nil {
					writeLimits(sec, imp.Desc.Memory.Limits)
				}
			case KindGlobal:
				if imp.Desc.Global != nil {
					writeGlobalType(sec, *imp.Desc.Global)
				}
			}
		}
		writeSection(w, SectionImport, sec.Bytes())
	}

	// Function section
	if len(m.Funcs) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec.WriteU32(typeIdx)
		}
		writeSection(w, SectionFunction, sec.Bytes())
	}

	// Table section
	if len(m.Tables) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(sec, t)
		}
		writeSection(w, SectionTable, sec.Bytes())
	}

	// Memory section
	if len(m.Memories) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(sec, mem.Limits)
		}
		writeSection(w, SectionMemory, sec.Bytes())
	}

	// Global section
	if len(m.Globals) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			writeConstExpr(sec, g.Init)
		}
		writeSection(w, SectionGlobal, sec.Bytes())
	}

	// Export section
	if len(m.Exports) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec.WriteName(exp.Name)
			sec.Byte(exp.Kind)
			sec.WriteU32(exp.Idx)
		}
		writeSection(w, SectionExport, sec.Bytes())
	}

	// Start section
	if m.Start != nil {
		sec := binary.NewWriter()
		sec.WriteU32(*m.Start)
		writeSection(w, SectionStart, sec.Bytes())
	}

	// Element section
	if len(m.Elements) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Elements)))
		for _, elem := range m.Elements {
			sec.WriteU32(elem.TableIdx)
			writeConstExpr(sec, elem.Offset)
			sec.WriteU32(uint32(len(elem.FuncIdxs)))
			for _, idx := range elem.FuncIdxs {
				sec.WriteU32(idx)
			}
		}
		writeSection(w, SectionElement, sec.Bytes())
	}

	// Code section
	if len(m.Code) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			bw := binary.NewWriter()
			bw.WriteU32(uint32(len(body.Locals)))
			for _, local := range body.Locals {
				bw.WriteU32(local.Count)
				bw.Byte(byte(local.ValType))
			}
			bw.WriteBytes(body.Code)
			sec.WriteU32(uint32(bw.Len()))
			sec.WriteBytes(bw.Bytes())
		}
		writeSection(w, SectionCode, sec.Bytes())
	}

	// Data section
	if len(m.Data) > 0 {
		sec := binary.NewWriter()
		sec.WriteU32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			sec.WriteU32(seg.MemIdx)
			writeConstExpr(sec, seg.Offset)
			sec.WriteU32(uint32(len(seg.Init)))
			sec.WriteBytes(seg.Init)
		}
		writeSection(w, SectionData, sec.Bytes())
	}

	// Custom sections go last; their position is not significant.
	for _, cs := range m.CustomSections {
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		writeSection(w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *binary.Writer, id byte, data []byte) {
	w.Byte(id)
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	if l.Max != nil {
		w.Byte(0x01)
		w.WriteU32(l.Min)
		w.WriteU32(*l.Max)
		return
	}
	w.Byte(0x00)
	w.WriteU32(l.Min)
}

func writeTableType(w *binary.Writer, t TableType) {
	elem := t.ElemType
	if elem == 0 {
		elem = ElemFuncRef
	}
	w.Byte(elem)
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(0x01)
	} else {
		w.Byte(0x00)
	}
}

func writeConstExpr(w *binary.Writer, e ConstExpr) {
	encodeInstruction(w, Instruction{Opcode: e.Opcode, Value: e.Value, Index: uint32(e.Value)})
	w.Byte(OpEnd)
}
