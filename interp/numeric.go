package interp

import (
	"math"
	"math/bits"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

const (
	canonicalNaN32 = 0x7FC00000
	canonicalNaN64 = 0x7FF8000000000000
	signBit32      = 0x80000000
	signBit64      = 0x8000000000000000
)

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func f32(v uint64) float32 { return math.Float32frombits(uint32(v)) }
func f64(v uint64) float64 { return math.Float64frombits(v) }
func u32(f float32) uint64 { return uint64(math.Float32bits(f)) }
func u64(f float64) uint64 { return math.Float64bits(f) }

// numeric executes one validated numeric instruction. Opcodes are grouped
// by their ascending encoding ranges.
func (m *machine) numeric(op byte) error {
	switch {
	case op == wasm.OpI32Eqz:
		m.push(b2u(uint32(m.pop()) == 0))
	case op <= wasm.OpI32GeU:
		b, a := uint32(m.pop()), uint32(m.pop())
		m.push(b2u(cmpI32(op, a, b)))
	case op == wasm.OpI64Eqz:
		m.push(b2u(m.pop() == 0))
	case op <= wasm.OpI64GeU:
		b, a := m.pop(), m.pop()
		m.push(b2u(cmpI64(op, a, b)))
	case op <= wasm.OpF32Ge:
		b, a := f32(m.pop()), f32(m.pop())
		m.push(b2u(cmpF64(op-wasm.OpF32Eq+wasm.OpF64Eq, float64(a), float64(b))))
	case op <= wasm.OpF64Ge:
		b, a := f64(m.pop()), f64(m.pop())
		m.push(b2u(cmpF64(op, a, b)))
	case op <= wasm.OpI32Popcnt:
		m.push(uint64(unI32(op, uint32(m.pop()))))
	case op <= wasm.OpI32Rotr:
		b, a := uint32(m.pop()), uint32(m.pop())
		r, err := binI32(op, a, b)
		if err != nil {
			return err
		}
		m.push(uint64(r))
	case op <= wasm.OpI64Popcnt:
		m.push(unI64(op, m.pop()))
	case op <= wasm.OpI64Rotr:
		b, a := m.pop(), m.pop()
		r, err := binI64(op, a, b)
		if err != nil {
			return err
		}
		m.push(r)
	case op <= wasm.OpF32Sqrt:
		m.push(unF32(op, uint32(m.pop())))
	case op <= wasm.OpF32Copysign:
		b, a := uint32(m.pop()), uint32(m.pop())
		m.push(binF32(op, a, b))
	case op <= wasm.OpF64Sqrt:
		m.push(unF64(op, m.pop()))
	case op <= wasm.OpF64Copysign:
		b, a := m.pop(), m.pop()
		m.push(binF64(op, a, b))
	default:
		r, err := convert(op, m.pop())
		if err != nil {
			return err
		}
		m.push(r)
	}
	return nil
}

func cmpI32(op byte, a, b uint32) bool {
	switch op {
	case wasm.OpI32Eq:
		return a == b
	case wasm.OpI32Ne:
		return a != b
	case wasm.OpI32LtS:
		return int32(a) < int32(b)
	case wasm.OpI32LtU:
		return a < b
	case wasm.OpI32GtS:
		return int32(a) > int32(b)
	case wasm.OpI32GtU:
		return a > b
	case wasm.OpI32LeS:
		return int32(a) <= int32(b)
	case wasm.OpI32LeU:
		return a <= b
	case wasm.OpI32GeS:
		return int32(a) >= int32(b)
	default:
		return a >= b
	}
}

func cmpI64(op byte, a, b uint64) bool {
	switch op {
	case wasm.OpI64Eq:
		return a == b
	case wasm.OpI64Ne:
		return a != b
	case wasm.OpI64LtS:
		return int64(a) < int64(b)
	case wasm.OpI64LtU:
		return a < b
	case wasm.OpI64GtS:
		return int64(a) > int64(b)
	case wasm.OpI64GtU:
		return a > b
	case wasm.OpI64LeS:
		return int64(a) <= int64(b)
	case wasm.OpI64LeU:
		return a <= b
	case wasm.OpI64GeS:
		return int64(a) >= int64(b)
	default:
		return a >= b
	}
}

// cmpF64 also serves f32 comparisons: widening is exact.
func cmpF64(op byte, a, b float64) bool {
	switch op {
	case wasm.OpF64Eq:
		return a == b
	case wasm.OpF64Ne:
		return a != b
	case wasm.OpF64Lt:
		return a < b
	case wasm.OpF64Gt:
		return a > b
	case wasm.OpF64Le:
		return a <= b
	default:
		return a >= b
	}
}

func unI32(op byte, a uint32) uint32 {
	switch op {
	case wasm.OpI32Clz:
		return uint32(bits.LeadingZeros32(a))
	case wasm.OpI32Ctz:
		return uint32(bits.TrailingZeros32(a))
	default:
		return uint32(bits.OnesCount32(a))
	}
}

func unI64(op byte, a uint64) uint64 {
	switch op {
	case wasm.OpI64Clz:
		return uint64(bits.LeadingZeros64(a))
	case wasm.OpI64Ctz:
		return uint64(bits.TrailingZeros64(a))
	default:
		return uint64(bits.OnesCount64(a))
	}
}

func binI32(op byte, a, b uint32) (uint32, error) {
	switch op {
	case wasm.OpI32Add:
		return a + b, nil
	case wasm.OpI32Sub:
		return a - b, nil
	case wasm.OpI32Mul:
		return a * b, nil
	case wasm.OpI32DivS:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0, werrors.NewTrap(werrors.TrapIntegerOverflow)
		}
		return uint32(int32(a) / int32(b)), nil
	case wasm.OpI32DivU:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		return a / b, nil
	case wasm.OpI32RemS:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		if int32(b) == -1 {
			return 0, nil
		}
		return uint32(int32(a) % int32(b)), nil
	case wasm.OpI32RemU:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		return a % b, nil
	case wasm.OpI32And:
		return a & b, nil
	case wasm.OpI32Or:
		return a | b, nil
	case wasm.OpI32Xor:
		return a ^ b, nil
	case wasm.OpI32Shl:
		return a << (b & 31), nil
	case wasm.OpI32ShrS:
		return uint32(int32(a) >> (b & 31)), nil
	case wasm.OpI32ShrU:
		return a >> (b & 31), nil
	case wasm.OpI32Rotl:
		return bits.RotateLeft32(a, int(b&31)), nil
	default:
		return bits.RotateLeft32(a, -int(b&31)), nil
	}
}

func binI64(op byte, a, b uint64) (uint64, error) {
	switch op {
	case wasm.OpI64Add:
		return a + b, nil
	case wasm.OpI64Sub:
		return a - b, nil
	case wasm.OpI64Mul:
		return a * b, nil
	case wasm.OpI64DivS:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return 0, werrors.NewTrap(werrors.TrapIntegerOverflow)
		}
		return uint64(int64(a) / int64(b)), nil
	case wasm.OpI64DivU:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		return a / b, nil
	case wasm.OpI64RemS:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		if int64(b) == -1 {
			return 0, nil
		}
		return uint64(int64(a) % int64(b)), nil
	case wasm.OpI64RemU:
		if b == 0 {
			return 0, werrors.NewTrap(werrors.TrapIntegerDivideByZero)
		}
		return a % b, nil
	case wasm.OpI64And:
		return a & b, nil
	case wasm.OpI64Or:
		return a | b, nil
	case wasm.OpI64Xor:
		return a ^ b, nil
	case wasm.OpI64Shl:
		return a << (b & 63), nil
	case wasm.OpI64ShrS:
		return uint64(int64(a) >> (b & 63)), nil
	case wasm.OpI64ShrU:
		return a >> (b & 63), nil
	case wasm.OpI64Rotl:
		return bits.RotateLeft64(a, int(b&63)), nil
	default:
		return bits.RotateLeft64(a, -int(b&63)), nil
	}
}

// abs, neg and copysign only touch the sign bit, NaN payloads included.
func unF32(op byte, a uint32) uint64 {
	switch op {
	case wasm.OpF32Abs:
		return uint64(a &^ signBit32)
	case wasm.OpF32Neg:
		return uint64(a ^ signBit32)
	}
	x := float64(math.Float32frombits(a))
	switch op {
	case wasm.OpF32Ceil:
		x = math.Ceil(x)
	case wasm.OpF32Floor:
		x = math.Floor(x)
	case wasm.OpF32Trunc:
		x = math.Trunc(x)
	case wasm.OpF32Nearest:
		x = math.RoundToEven(x)
	default:
		x = math.Sqrt(x)
	}
	return u32(float32(x))
}

func unF64(op byte, a uint64) uint64 {
	switch op {
	case wasm.OpF64Abs:
		return a &^ signBit64
	case wasm.OpF64Neg:
		return a ^ signBit64
	}
	x := f64(a)
	switch op {
	case wasm.OpF64Ceil:
		x = math.Ceil(x)
	case wasm.OpF64Floor:
		x = math.Floor(x)
	case wasm.OpF64Trunc:
		x = math.Trunc(x)
	case wasm.OpF64Nearest:
		x = math.RoundToEven(x)
	default:
		x = math.Sqrt(x)
	}
	return u64(x)
}

func binF32(op byte, a, b uint32) uint64 {
	if op == wasm.OpF32Copysign {
		return uint64(a&^signBit32 | b&signBit32)
	}
	x, y := math.Float32frombits(a), math.Float32frombits(b)
	switch op {
	case wasm.OpF32Add:
		return u32(x + y)
	case wasm.OpF32Sub:
		return u32(x - y)
	case wasm.OpF32Mul:
		return u32(x * y)
	case wasm.OpF32Div:
		return u32(x / y)
	}
	if math.IsNaN(float64(x)) || math.IsNaN(float64(y)) {
		return canonicalNaN32
	}
	if op == wasm.OpF32Min {
		return u32(min(x, y))
	}
	return u32(max(x, y))
}

func binF64(op byte, a, b uint64) uint64 {
	if op == wasm.OpF64Copysign {
		return a&^signBit64 | b&signBit64
	}
	x, y := f64(a), f64(b)
	switch op {
	case wasm.OpF64Add:
		return u64(x + y)
	case wasm.OpF64Sub:
		return u64(x - y)
	case wasm.OpF64Mul:
		return u64(x * y)
	case wasm.OpF64Div:
		return u64(x / y)
	}
	if math.IsNaN(x) || math.IsNaN(y) {
		return canonicalNaN64
	}
	if op == wasm.OpF64Min {
		return u64(min(x, y))
	}
	return u64(max(x, y))
}

func convert(op byte, v uint64) (uint64, error) {
	switch op {
	case wasm.OpI32WrapI64:
		return uint64(uint32(v)), nil
	case wasm.OpI32TruncF32S:
		return truncS32(float64(f32(v)))
	case wasm.OpI32TruncF32U:
		return truncU32(float64(f32(v)))
	case wasm.OpI32TruncF64S:
		return truncS32(f64(v))
	case wasm.OpI32TruncF64U:
		return truncU32(f64(v))
	case wasm.OpI64ExtendI32S:
		return uint64(int64(int32(v))), nil
	case wasm.OpI64ExtendI32U:
		return uint64(uint32(v)), nil
	case wasm.OpI64TruncF32S:
		return truncS64(float64(f32(v)))
	case wasm.OpI64TruncF32U:
		return truncU64(float64(f32(v)))
	case wasm.OpI64TruncF64S:
		return truncS64(f64(v))
	case wasm.OpI64TruncF64U:
		return truncU64(f64(v))
	case wasm.OpF32ConvertI32S:
		return u32(float32(int32(v))), nil
	case wasm.OpF32ConvertI32U:
		return u32(float32(uint32(v))), nil
	case wasm.OpF32ConvertI64S:
		return u32(float32(int64(v))), nil
	case wasm.OpF32ConvertI64U:
		return u32(float32(v)), nil
	case wasm.OpF32DemoteF64:
		return u32(float32(f64(v))), nil
	case wasm.OpF64ConvertI32S:
		return u64(float64(int32(v))), nil
	case wasm.OpF64ConvertI32U:
		return u64(float64(uint32(v))), nil
	case wasm.OpF64ConvertI64S:
		return u64(float64(int64(v))), nil
	case wasm.OpF64ConvertI64U:
		return u64(float64(v)), nil
	case wasm.OpF64PromoteF32:
		return u64(float64(f32(v))), nil
	default:
		// Reinterpretations keep the bits; f32 and i32 slots hold them in
		// the low half already.
		return v, nil
	}
}

// The trunc bounds are exclusive and exact in float64.

func truncS32(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, werrors.NewTrap(werrors.TrapInvalidConversion)
	}
	if f <= -2147483649 || f >= 2147483648 {
		return 0, werrors.NewTrap(werrors.TrapIntegerOverflow)
	}
	return uint64(uint32(int32(f))), nil
}

func truncU32(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, werrors.NewTrap(werrors.TrapInvalidConversion)
	}
	if f <= -1 || f >= 4294967296 {
		return 0, werrors.NewTrap(werrors.TrapIntegerOverflow)
	}
	return uint64(uint32(f)), nil
}

func truncS64(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, werrors.NewTrap(werrors.TrapInvalidConversion)
	}
	if f < -9223372036854775808 || f >= 9223372036854775808 {
		return 0, werrors.NewTrap(werrors.TrapIntegerOverflow)
	}
	return uint64(int64(f)), nil
}

func truncU64(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, werrors.NewTrap(werrors.TrapInvalidConversion)
	}
	if f <= -1 || f >= 18446744073709551616 {
		return 0, werrors.NewTrap(werrors.TrapIntegerOverflow)
	}
	return uint64(f), nil
}
