package wasmtest

import (
	"math"

	"github.com/wippyai/wasmvm/wasm"
)

// Value type shorthands.
var (
	I32s = []wasm.ValType{wasm.ValI32}
	I64s = []wasm.ValType{wasm.ValI64}
	F32s = []wasm.ValType{wasm.ValF32}
	F64s = []wasm.ValType{wasm.ValF64}
)

// Types builds a value type list.
func Types(ts ...wasm.ValType) []wasm.ValType {
	return ts
}

// Op is an instruction without immediates.
func Op(op byte) wasm.Instruction {
	return wasm.Instruction{Opcode: op}
}

func I32(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI32Const, Value: uint64(uint32(v))}
}

func I64(v int64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI64Const, Value: uint64(v)}
}

func F32(v float32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF32Const, Value: uint64(math.Float32bits(v))}
}

func F64(v float64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpF64Const, Value: math.Float64bits(v)}
}

func Get(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Index: idx}
}

func Set(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, Index: idx}
}

func Tee(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalTee, Index: idx}
}

func GlobalGet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalGet, Index: idx}
}

func GlobalSet(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpGlobalSet, Index: idx}
}

func Call(idx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Index: idx}
}

func CallIndirect(typeIdx uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCallIndirect, Index: typeIdx}
}

func Br(depth uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBr, Index: depth}
}

func BrIf(depth uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrIf, Index: depth}
}

// BrTable branches to labels[i], or def when i is out of range.
func BrTable(def uint32, labels ...uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBrTable, Index: def, Labels: labels}
}

// Block opens a block with an optional result type; pass 0 for none.
func Block(result wasm.ValType) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBlock, BlockType: result}
}

func Loop(result wasm.ValType) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLoop, BlockType: result}
}

func If(result wasm.ValType) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpIf, BlockType: result}
}

var (
	Else = Op(wasm.OpElse)
	End  = Op(wasm.OpEnd)
)

// Mem is a load or store with the given alignment exponent and offset.
func Mem(op byte, align, offset uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: op, Align: align, Value: uint64(offset)}
}
