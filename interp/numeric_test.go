package interp

import (
	"math"
	"testing"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

func TestTruncRanges(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(float64) (uint64, error)
		in    float64
		want  uint64
		fault werrors.TrapKind
	}{
		{"s32 max", truncS32, 2147483647.9, 2147483647, ""},
		{"s32 min", truncS32, -2147483648.9, 0x80000000, ""},
		{"s32 above", truncS32, 2147483648, 0, werrors.TrapIntegerOverflow},
		{"s32 below", truncS32, -2147483649, 0, werrors.TrapIntegerOverflow},
		{"s32 nan", truncS32, math.NaN(), 0, werrors.TrapInvalidConversion},
		{"u32 negative fraction", truncU32, -0.9, 0, ""},
		{"u32 max", truncU32, 4294967295.5, 4294967295, ""},
		{"u32 minus one", truncU32, -1, 0, werrors.TrapIntegerOverflow},
		{"u32 infinity", truncU32, math.Inf(1), 0, werrors.TrapIntegerOverflow},
		{"s64 min", truncS64, -9223372036854775808, 1 << 63, ""},
		{"s64 above", truncS64, 9223372036854775808, 0, werrors.TrapIntegerOverflow},
		{"s64 minus infinity", truncS64, math.Inf(-1), 0, werrors.TrapIntegerOverflow},
		{"u64 largest", truncU64, 18446744073709549568, 18446744073709549568, ""},
		{"u64 above", truncU64, 18446744073709551616, 0, werrors.TrapIntegerOverflow},
		{"u64 nan", truncU64, math.NaN(), 0, werrors.TrapInvalidConversion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			if tt.fault != "" {
				trap, ok := werrors.AsTrap(err)
				if !ok || trap.Kind != tt.fault {
					t.Fatalf("err = %v, want trap %q", err, tt.fault)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIntegerEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		a, b uint32
		want uint32
	}{
		{"shl masks count", wasm.OpI32Shl, 1, 33, 2},
		{"shr_s keeps sign", wasm.OpI32ShrS, 0x80000000, 31, 0xFFFFFFFF},
		{"shr_u", wasm.OpI32ShrU, 0x80000000, 31, 1},
		{"rotl", wasm.OpI32Rotl, 0x80000001, 1, 3},
		{"rotr", wasm.OpI32Rotr, 1, 1, 0x80000000},
		{"rotr masks count", wasm.OpI32Rotr, 1, 33, 0x80000000},
		{"rem_s min by minus one", wasm.OpI32RemS, 0x80000000, 0xFFFFFFFF, 0},
		{"rem_s sign follows dividend", wasm.OpI32RemS, uint32(0xFFFFFFF9), 2, 0xFFFFFFFF},
		{"div_u", wasm.OpI32DivU, 0xFFFFFFFF, 2, 0x7FFFFFFF},
		{"sub wraps", wasm.OpI32Sub, 0, 1, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := binI32(tt.op, tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
		})
	}

	if _, err := binI64(wasm.OpI64DivS, 1<<63, math.MaxUint64); !werrors.IsTrap(err) {
		t.Errorf("i64.div_s overflow: err = %v", err)
	}
	if got, _ := binI64(wasm.OpI64Shl, 1, 64); got != 1 {
		t.Errorf("i64.shl by 64 = %d, want 1", got)
	}
	for op, want := range map[byte]uint32{wasm.OpI32Clz: 32, wasm.OpI32Ctz: 32, wasm.OpI32Popcnt: 0} {
		if got := unI32(op, 0); got != want {
			t.Errorf("%s(0) = %d, want %d", wasm.OpName(op), got, want)
		}
	}
}

func TestFloatEdgeCases(t *testing.T) {
	negZero := math.Copysign(0, -1)
	f := math.Float64bits

	tests := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"min signed zeros", binF64(wasm.OpF64Min, f(0), f(negZero)), f(negZero)},
		{"max signed zeros", binF64(wasm.OpF64Max, f(negZero), f(0)), f(0)},
		{"min nan", binF64(wasm.OpF64Min, f(math.NaN()), f(1)), canonicalNaN64},
		{"f32 max nan", binF32(wasm.OpF32Max, math.Float32bits(1), canonicalNaN32|1), canonicalNaN32},
		{"nearest ties to even", unF64(wasm.OpF64Nearest, f(2.5)), f(2)},
		{"nearest odd tie", unF64(wasm.OpF64Nearest, f(3.5)), f(4)},
		{"nearest keeps sign", unF64(wasm.OpF64Nearest, f(-0.5)), f(negZero)},
		{"f32 nearest", unF32(wasm.OpF32Nearest, math.Float32bits(-1.5)), uint64(math.Float32bits(-2))},
		{"copysign", binF64(wasm.OpF64Copysign, f(1), f(negZero)), f(-1)},
		{"neg nan flips sign only", unF64(wasm.OpF64Neg, canonicalNaN64|5), canonicalNaN64 | 5 | signBit64},
		{"abs clears sign", unF32(wasm.OpF32Abs, math.Float32bits(-3)), uint64(math.Float32bits(3))},
		{"ceil", unF64(wasm.OpF64Ceil, f(-0.5)), f(negZero)},
		{"f32 floor", unF32(wasm.OpF32Floor, math.Float32bits(1.7)), uint64(math.Float32bits(1))},
		{"trunc", unF64(wasm.OpF64Trunc, f(-2.7)), f(-2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %#x, want %#x", tt.got, tt.want)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		in   uint64
		want uint64
	}{
		{"f32.convert_i64_u max", wasm.OpF32ConvertI64U, math.MaxUint64, uint64(math.Float32bits(18446744073709551616))},
		{"f64.convert_i64_s min", wasm.OpF64ConvertI64S, 1 << 63, math.Float64bits(-9223372036854775808)},
		{"f32.convert_i32_s", wasm.OpF32ConvertI32S, 0xFFFFFFFF, uint64(math.Float32bits(-1))},
		{"i64.extend_i32_u", wasm.OpI64ExtendI32U, 0xFFFFFFFF, 0xFFFFFFFF},
		{"f64.promote_f32", wasm.OpF64PromoteF32, uint64(math.Float32bits(0.5)), math.Float64bits(0.5)},
		{"f64.reinterpret_i64", wasm.OpF64ReinterpretI64, 0x7FF0000000000000, 0x7FF0000000000000},
		{"i32.trunc_f32_u", wasm.OpI32TruncF32U, uint64(math.Float32bits(3.9)), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convert(tt.op, tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
		})
	}

	if _, err := convert(wasm.OpI32TruncF32S, canonicalNaN32); err == nil {
		t.Error("truncating NaN should trap")
	}
}

func TestComparisonsWithNaN(t *testing.T) {
	nan := math.NaN()
	for _, op := range []byte{wasm.OpF64Eq, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge} {
		if cmpF64(op, nan, nan) {
			t.Errorf("%s(nan, nan) should be false", wasm.OpName(op))
		}
	}
	if !cmpF64(wasm.OpF64Ne, nan, 1) {
		t.Error("f64.ne(nan, 1) should be true")
	}
}
