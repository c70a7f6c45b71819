package validator

import "github.com/wippyai/wasmvm/wasm"

// opSig is the fixed operand signature of a numeric instruction.
type opSig struct {
	in  [2]wasm.ValType
	n   uint8
	out wasm.ValType
}

// memOp is the value type and natural alignment exponent of a load or store.
type memOp struct {
	typ   wasm.ValType
	align uint32
	store bool
}

var (
	numericSigs [256]opSig
	hasNumeric  [256]bool
	memOps      [256]memOp
)

func unary(op byte, in, out wasm.ValType) {
	numericSigs[op] = opSig{in: [2]wasm.ValType{in}, n: 1, out: out}
	hasNumeric[op] = true
}

func binaryOp(op byte, in, out wasm.ValType) {
	numericSigs[op] = opSig{in: [2]wasm.ValType{in, in}, n: 2, out: out}
	hasNumeric[op] = true
}

func opRange(from, to byte, fn func(op byte)) {
	for op := int(from); op <= int(to); op++ {
		fn(byte(op))
	}
}

func init() {
	i32, i64, f32, f64 := wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValF64

	unary(wasm.OpI32Eqz, i32, i32)
	opRange(wasm.OpI32Eq, wasm.OpI32GeU, func(op byte) { binaryOp(op, i32, i32) })
	unary(wasm.OpI64Eqz, i64, i32)
	opRange(wasm.OpI64Eq, wasm.OpI64GeU, func(op byte) { binaryOp(op, i64, i32) })
	opRange(wasm.OpF32Eq, wasm.OpF32Ge, func(op byte) { binaryOp(op, f32, i32) })
	opRange(wasm.OpF64Eq, wasm.OpF64Ge, func(op byte) { binaryOp(op, f64, i32) })

	opRange(wasm.OpI32Clz, wasm.OpI32Popcnt, func(op byte) { unary(op, i32, i32) })
	opRange(wasm.OpI32Add, wasm.OpI32Rotr, func(op byte) { binaryOp(op, i32, i32) })
	opRange(wasm.OpI64Clz, wasm.OpI64Popcnt, func(op byte) { unary(op, i64, i64) })
	opRange(wasm.OpI64Add, wasm.OpI64Rotr, func(op byte) { binaryOp(op, i64, i64) })
	opRange(wasm.OpF32Abs, wasm.OpF32Sqrt, func(op byte) { unary(op, f32, f32) })
	opRange(wasm.OpF32Add, wasm.OpF32Copysign, func(op byte) { binaryOp(op, f32, f32) })
	opRange(wasm.OpF64Abs, wasm.OpF64Sqrt, func(op byte) { unary(op, f64, f64) })
	opRange(wasm.OpF64Add, wasm.OpF64Copysign, func(op byte) { binaryOp(op, f64, f64) })

	unary(wasm.OpI32WrapI64, i64, i32)
	unary(wasm.OpI32TruncF32S, f32, i32)
	unary(wasm.OpI32TruncF32U, f32, i32)
	unary(wasm.OpI32TruncF64S, f64, i32)
	unary(wasm.OpI32TruncF64U, f64, i32)
	unary(wasm.OpI64ExtendI32S, i32, i64)
	unary(wasm.OpI64ExtendI32U, i32, i64)
	unary(wasm.OpI64TruncF32S, f32, i64)
	unary(wasm.OpI64TruncF32U, f32, i64)
	unary(wasm.OpI64TruncF64S, f64, i64)
	unary(wasm.OpI64TruncF64U, f64, i64)
	unary(wasm.OpF32ConvertI32S, i32, f32)
	unary(wasm.OpF32ConvertI32U, i32, f32)
	unary(wasm.OpF32ConvertI64S, i64, f32)
	unary(wasm.OpF32ConvertI64U, i64, f32)
	unary(wasm.OpF32DemoteF64, f64, f32)
	unary(wasm.OpF64ConvertI32S, i32, f64)
	unary(wasm.OpF64ConvertI32U, i32, f64)
	unary(wasm.OpF64ConvertI64S, i64, f64)
	unary(wasm.OpF64ConvertI64U, i64, f64)
	unary(wasm.OpF64PromoteF32, f32, f64)
	unary(wasm.OpI32ReinterpretF32, f32, i32)
	unary(wasm.OpI64ReinterpretF64, f64, i64)
	unary(wasm.OpF32ReinterpretI32, i32, f32)
	unary(wasm.OpF64ReinterpretI64, i64, f64)

	memOps[wasm.OpI32Load] = memOp{typ: i32, align: 2}
	memOps[wasm.OpI64Load] = memOp{typ: i64, align: 3}
	memOps[wasm.OpF32Load] = memOp{typ: f32, align: 2}
	memOps[wasm.OpF64Load] = memOp{typ: f64, align: 3}
	memOps[wasm.OpI32Load8S] = memOp{typ: i32, align: 0}
	memOps[wasm.OpI32Load8U] = memOp{typ: i32, align: 0}
	memOps[wasm.OpI32Load16S] = memOp{typ: i32, align: 1}
	memOps[wasm.OpI32Load16U] = memOp{typ: i32, align: 1}
	memOps[wasm.OpI64Load8S] = memOp{typ: i64, align: 0}
	memOps[wasm.OpI64Load8U] = memOp{typ: i64, align: 0}
	memOps[wasm.OpI64Load16S] = memOp{typ: i64, align: 1}
	memOps[wasm.OpI64Load16U] = memOp{typ: i64, align: 1}
	memOps[wasm.OpI64Load32S] = memOp{typ: i64, align: 2}
	memOps[wasm.OpI64Load32U] = memOp{typ: i64, align: 2}
	memOps[wasm.OpI32Store] = memOp{typ: i32, align: 2, store: true}
	memOps[wasm.OpI64Store] = memOp{typ: i64, align: 3, store: true}
	memOps[wasm.OpF32Store] = memOp{typ: f32, align: 2, store: true}
	memOps[wasm.OpF64Store] = memOp{typ: f64, align: 3, store: true}
	memOps[wasm.OpI32Store8] = memOp{typ: i32, align: 0, store: true}
	memOps[wasm.OpI32Store16] = memOp{typ: i32, align: 1, store: true}
	memOps[wasm.OpI64Store8] = memOp{typ: i64, align: 0, store: true}
	memOps[wasm.OpI64Store16] = memOp{typ: i64, align: 1, store: true}
	memOps[wasm.OpI64Store32] = memOp{typ: i64, align: 2, store: true}
}
