package interp_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/interp"
	. "github.com/wippyai/wasmvm/internal/wasmtest"
	"github.com/wippyai/wasmvm/wasm"
)

func TestMath(t *testing.T) {
	inst := instantiate(t, Math(), nil, interp.Config{})

	tests := []struct {
		fn   string
		args []uint64
		want uint64
	}{
		{"factorial", []uint64{5}, 120},
		{"factorial", []uint64{0}, 1},
		{"factorial_recursive", []uint64{5}, 120},
		{"fibonacci", []uint64{0}, 0},
		{"fibonacci", []uint64{1}, 1},
		{"fibonacci", []uint64{10}, 55},
		{"divide", []uint64{10, 3}, 3},
		{"divide", []uint64{i32(-7), 2}, i32(-3)},
		{"add", []uint64{i32(-1), 1}, 0},
		{"remainder", []uint64{10, 3}, 1},
		{"remainder", []uint64{i32(-1), 10}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			if got := call1(t, inst, tt.fn, tt.args...); got != tt.want {
				t.Errorf("%s%v = %d, want %d", tt.fn, tt.args, got, tt.want)
			}
		})
	}
}

func TestFactorialsAgree(t *testing.T) {
	inst := instantiate(t, Math(), nil, interp.Config{})
	want := uint64(1)
	for n := uint64(0); n <= 12; n++ {
		if n > 0 {
			want *= n
		}
		iter := call1(t, inst, "factorial", n)
		rec := call1(t, inst, "factorial_recursive", n)
		if iter != want || rec != want {
			t.Errorf("factorial(%d): iterative %d, recursive %d, want %d", n, iter, rec, want)
		}
	}
}

func TestFactorialWraps(t *testing.T) {
	inst := instantiate(t, Math(), nil, interp.Config{})
	// 13! = 6227020800 reduced modulo 2^32.
	if got := call1(t, inst, "factorial", 13); got != 1932053504 {
		t.Errorf("factorial(13) = %d, want 1932053504", got)
	}
}

func TestIntegerTraps(t *testing.T) {
	inst := instantiate(t, Math(), nil, interp.Config{})

	tests := []struct {
		name string
		fn   string
		args []uint64
		kind werrors.TrapKind
	}{
		{"divide by zero", "divide", []uint64{10, 0}, werrors.TrapIntegerDivideByZero},
		{"signed overflow", "divide", []uint64{i32(math.MinInt32), i32(-1)}, werrors.TrapIntegerOverflow},
		{"remainder by zero", "remainder", []uint64{10, 0}, werrors.TrapIntegerDivideByZero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inst.Call(context.Background(), tt.fn, tt.args...)
			wantTrap(t, err, tt.kind)
		})
	}
}

func TestTrapLocation(t *testing.T) {
	inst := instantiate(t, Math(), nil, interp.Config{})
	_, err := inst.Call(context.Background(), "divide", 1, 0)
	trap := wantTrap(t, err, werrors.TrapIntegerDivideByZero)
	fn, _ := inst.ExportedFunction("divide")
	if trap.Func != 3 {
		t.Errorf("trap func = %d, want 3 (%s)", trap.Func, fn.Name)
	}
	if trap.Offset < 0 {
		t.Error("trap should carry the instruction offset")
	}
}

func TestUsableAfterTrap(t *testing.T) {
	inst := instantiate(t, Math(), nil, interp.Config{})
	if _, err := inst.Call(context.Background(), "divide", 1, 0); err == nil {
		t.Fatal("expected trap")
	}
	if got := call1(t, inst, "divide", 9, 3); got != 3 {
		t.Errorf("divide after trap = %d, want 3", got)
	}
}

func TestMemoryOps(t *testing.T) {
	inst := instantiate(t, Memory(), nil, interp.Config{})

	call(t, inst, "memset", 0, 255, 10)
	if got := call1(t, inst, "load_byte", 5); got != 255 {
		t.Errorf("load_byte(5) = %d, want 255", got)
	}
	if got := call1(t, inst, "load_byte", 10); got != 0 {
		t.Errorf("load_byte(10) = %d, want 0", got)
	}

	call(t, inst, "memcpy", 100, 0, 10)
	for i := uint64(100); i < 110; i++ {
		if got := call1(t, inst, "load_byte", i); got != 255 {
			t.Fatalf("load_byte(%d) after memcpy = %d, want 255", i, got)
		}
	}

	call(t, inst, "store_i32", 8, 0x01020304)
	raw := inst.Memory().Bytes()[8:12]
	if raw[0] != 0x04 || raw[3] != 0x01 {
		t.Errorf("store_i32 wrote % x, want little-endian", raw)
	}
	if got := call1(t, inst, "load_i32", 8); got != 0x01020304 {
		t.Errorf("load_i32(8) = %#x", got)
	}
}

func TestMemoryBounds(t *testing.T) {
	inst := instantiate(t, Memory(), nil, interp.Config{})
	ctx := context.Background()

	if _, err := inst.Call(ctx, "load_i32", 65532); err != nil {
		t.Errorf("load_i32 at the last word: %v", err)
	}
	tests := []struct {
		name string
		fn   string
		args []uint64
	}{
		{"straddles end", "load_i32", []uint64{65533}},
		{"past end", "load_byte", []uint64{65536}},
		{"wrapping address", "store_i32", []uint64{i32(-1), 1}},
		{"memset past end", "memset", []uint64{65530, 1, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inst.Call(ctx, tt.fn, tt.args...)
			wantTrap(t, err, werrors.TrapMemoryOutOfBounds)
		})
	}

	// memset wrote up to the boundary before trapping.
	if got := call1(t, inst, "load_byte", 65535); got != 1 {
		t.Errorf("load_byte(65535) = %d, want 1", got)
	}
}

func TestMemoryGrowInstruction(t *testing.T) {
	inst := instantiate(t, Memory(), nil, interp.Config{})
	if got := call1(t, inst, "grow", 0); got != 1 {
		t.Errorf("grow(0) = %d, want 1", got)
	}
	if got := call1(t, inst, "grow", 1); got != 1 {
		t.Errorf("grow(1) = %d, want 1", got)
	}
	if got := call1(t, inst, "size"); got != 2 {
		t.Errorf("size = %d, want 2", got)
	}
	if got := call1(t, inst, "grow", 1); got != i32(-1) {
		t.Errorf("grow past maximum = %d, want -1", int32(got))
	}
	if got := call1(t, inst, "size"); got != 2 {
		t.Errorf("size after failed grow = %d, want 2", got)
	}
	if got := call1(t, inst, "load_byte", 2*65536-1); got != 0 {
		t.Errorf("new page not zeroed: %d", got)
	}
}

func TestMemoryPageLimit(t *testing.T) {
	inst := instantiate(t, Memory(), nil, interp.Config{MaxMemoryPages: 1})
	if got := call1(t, inst, "grow", 1); got != i32(-1) {
		t.Errorf("grow beyond configured limit = %d, want -1", int32(got))
	}
}

func TestCallIndirect(t *testing.T) {
	inst := instantiate(t, Table(), nil, interp.Config{})
	if got := call1(t, inst, "call", 0, 21); got != 42 {
		t.Errorf("call(0, 21) = %d, want 42", got)
	}

	tests := []struct {
		name string
		slot uint64
		kind werrors.TrapKind
	}{
		{"signature mismatch", 1, werrors.TrapIndirectCallSignature},
		{"uninitialized", 2, werrors.TrapUninitializedElement},
		{"out of range", 3, werrors.TrapUndefinedElement},
		{"huge index", i32(-1), werrors.TrapUndefinedElement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inst.Call(context.Background(), "call", tt.slot, 1)
			wantTrap(t, err, tt.kind)
		})
	}
}

func TestTableSetFromHost(t *testing.T) {
	inst := instantiate(t, Table(), nil, interp.Config{})
	double, _ := inst.Table().Get(0)
	if err := inst.Table().Set(2, double); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := call1(t, inst, "call", 2, 5); got != 10 {
		t.Errorf("call(2, 5) = %d, want 10", got)
	}
	if err := inst.Table().Set(3, double); err == nil {
		t.Error("Set past the end should fail")
	}
}

func TestBrTable(t *testing.T) {
	inst := instantiate(t, Control(), nil, interp.Config{})
	for in, want := range map[uint64]uint64{0: 10, 1: 20, 2: 30, 100: 30, i32(-1): 30} {
		if got := call1(t, inst, "classify", in); got != want {
			t.Errorf("classify(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestFuelExhausted(t *testing.T) {
	inst := instantiate(t, Control(), nil, interp.Config{Fuel: 1000})
	_, err := inst.Call(context.Background(), "spin")
	wantTrap(t, err, werrors.TrapFuelExhausted)

	// Fuel is per invocation.
	if got := call1(t, inst, "classify", 1); got != 20 {
		t.Errorf("classify after exhaustion = %d", got)
	}
}

func TestInterrupted(t *testing.T) {
	inst := instantiate(t, Control(), nil, interp.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := inst.Call(ctx, "spin")
	trap := wantTrap(t, err, werrors.TrapInterrupted)
	if trap.Cause != context.DeadlineExceeded {
		t.Errorf("cause = %v, want deadline exceeded", trap.Cause)
	}
}

func TestCallStackExhausted(t *testing.T) {
	for _, depth := range []int{0, 50} {
		inst := instantiate(t, Control(), nil, interp.Config{MaxCallDepth: depth})
		_, err := inst.Call(context.Background(), "recurse", 0)
		wantTrap(t, err, werrors.TrapCallStackExhausted)
	}
}

func TestDeepRecursionWithinLimit(t *testing.T) {
	inst := instantiate(t, Math(), nil, interp.Config{})
	// fibonacci(20) nests 20 frames and runs ~20k calls.
	if got := call1(t, inst, "fibonacci", 20); got != 6765 {
		t.Errorf("fibonacci(20) = %d, want 6765", got)
	}
}

func TestNumericDispatch(t *testing.T) {
	f32 := func(f float32) uint64 { return uint64(math.Float32bits(f)) }
	f64 := math.Float64bits
	i32t, i64t, f32t, f64t := wasm.ValI32, wasm.ValI64, wasm.ValF32, wasm.ValF64

	tests := []struct {
		name   string
		op     byte
		params []wasm.ValType
		result wasm.ValType
		args   []uint64
		want   uint64
	}{
		{"i32.eqz", wasm.OpI32Eqz, Types(i32t), i32t, []uint64{0}, 1},
		{"i32.lt_s", wasm.OpI32LtS, Types(i32t, i32t), i32t, []uint64{i32(-1), 0}, 1},
		{"i32.lt_u", wasm.OpI32LtU, Types(i32t, i32t), i32t, []uint64{i32(-1), 0}, 0},
		{"i64.eqz", wasm.OpI64Eqz, Types(i64t), i32t, []uint64{1}, 0},
		{"i64.ge_u", wasm.OpI64GeU, Types(i64t, i64t), i32t, []uint64{math.MaxUint64, 1}, 1},
		{"f32.lt", wasm.OpF32Lt, Types(f32t, f32t), i32t, []uint64{f32(1), f32(2)}, 1},
		{"f64.ne nan", wasm.OpF64Ne, Types(f64t, f64t), i32t, []uint64{f64(math.NaN()), f64(math.NaN())}, 1},
		{"i32.clz", wasm.OpI32Clz, Types(i32t), i32t, []uint64{1}, 31},
		{"i32.shr_s", wasm.OpI32ShrS, Types(i32t, i32t), i32t, []uint64{i32(-8), 1}, i32(-4)},
		{"i64.popcnt", wasm.OpI64Popcnt, Types(i64t), i64t, []uint64{math.MaxUint64}, 64},
		{"i64.mul", wasm.OpI64Mul, Types(i64t, i64t), i64t, []uint64{1 << 32, 1 << 32}, 0},
		{"i64.rotl", wasm.OpI64Rotl, Types(i64t, i64t), i64t, []uint64{1 << 63, 1}, 1},
		{"f32.sqrt", wasm.OpF32Sqrt, Types(f32t), f32t, []uint64{f32(9)}, f32(3)},
		{"f32.add", wasm.OpF32Add, Types(f32t, f32t), f32t, []uint64{f32(1.5), f32(2.25)}, f32(3.75)},
		{"f64.div", wasm.OpF64Div, Types(f64t, f64t), f64t, []uint64{f64(1), f64(0)}, f64(math.Inf(1))},
		{"f64.min", wasm.OpF64Min, Types(f64t, f64t), f64t, []uint64{f64(0), f64(math.Copysign(0, -1))}, 1 << 63},
		{"i32.wrap_i64", wasm.OpI32WrapI64, Types(i64t), i32t, []uint64{1<<32 | 5}, 5},
		{"i64.extend_i32_s", wasm.OpI64ExtendI32S, Types(i32t), i64t, []uint64{i32(-1)}, math.MaxUint64},
		{"i64.trunc_f64_s", wasm.OpI64TruncF64S, Types(f64t), i64t, []uint64{f64(-1.9)}, math.MaxUint64},
		{"f64.convert_i32_u", wasm.OpF64ConvertI32U, Types(i32t), f64t, []uint64{i32(-1)}, f64(4294967295)},
		{"f32.demote_f64", wasm.OpF32DemoteF64, Types(f64t), f32t, []uint64{f64(0.5)}, f32(0.5)},
		{"i32.reinterpret_f32", wasm.OpI32ReinterpretF32, Types(f32t), i32t, []uint64{f32(1)}, 0x3F800000},
	}

	b := New()
	for _, tt := range tests {
		body := make([]wasm.Instruction, 0, 3)
		for i := range tt.params {
			body = append(body, Get(uint32(i)))
		}
		body = append(body, Op(tt.op))
		b.ExportFunc(tt.name, b.Func(tt.params, Types(tt.result), nil, body...))
	}
	inst := instantiate(t, b, nil, interp.Config{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := call1(t, inst, tt.name, tt.args...); got != tt.want {
				t.Errorf("%s%v = %#x, want %#x", tt.name, tt.args, got, tt.want)
			}
		})
	}
}

func TestValueSlotsStayNormalized(t *testing.T) {
	b := New()
	// i32.const -1 must occupy only the low half of its slot.
	b.ExportFunc("neg", b.Func(nil, I32s, nil, I32(-1)))
	b.ExportFunc("widen", b.Func(nil, I64s, nil, I32(-1), Op(wasm.OpI64ExtendI32U)))
	inst := instantiate(t, b, nil, interp.Config{})

	if got := call1(t, inst, "neg"); got != 0xFFFFFFFF {
		t.Errorf("i32.const -1 slot = %#x", got)
	}
	if got := call1(t, inst, "widen"); got != 0xFFFFFFFF {
		t.Errorf("i64.extend_i32_u(-1) = %#x", got)
	}
}

func TestBranchKeepsResults(t *testing.T) {
	b := New()
	// block (result i32) pushes garbage below its result then breaks out.
	b.ExportFunc("f", b.Func(nil, I32s, nil,
		Block(wasm.ValI32),
		I32(1), I32(2), I32(3),
		Br(0),
		End,
	))
	// select between two locals.
	b.ExportFunc("pick", b.Func(Types(wasm.ValI32, wasm.ValI32, wasm.ValI32), I32s, nil,
		Get(0), Get(1), Get(2), Op(wasm.OpSelect),
	))
	// loop with br_if back-edge summing 1..n.
	b.ExportFunc("sum", b.Func(I32s, I32s, I32s,
		Loop(0),
		Get(1), Get(0), Op(wasm.OpI32Add), Set(1),
		Get(0), I32(1), Op(wasm.OpI32Sub), Tee(0),
		BrIf(0),
		End,
		Get(1),
	))
	inst := instantiate(t, b, nil, interp.Config{})

	if got := call1(t, inst, "f"); got != 3 {
		t.Errorf("f = %d, want 3", got)
	}
	if got := call1(t, inst, "pick", 7, 8, 1); got != 7 {
		t.Errorf("pick(7, 8, 1) = %d, want 7", got)
	}
	if got := call1(t, inst, "pick", 7, 8, 0); got != 8 {
		t.Errorf("pick(7, 8, 0) = %d, want 8", got)
	}
	if got := call1(t, inst, "sum", 100); got != 5050 {
		t.Errorf("sum(100) = %d, want 5050", got)
	}
}

func TestArgumentSlotsNormalized(t *testing.T) {
	b := New()
	b.ExportFunc("id32", b.Func(I32s, I32s, nil, Get(0)))
	b.ExportFunc("idf32", b.Func(F32s, F32s, nil, Get(0)))
	b.ExportFunc("id64", b.Func(I64s, I64s, nil, Get(0)))
	b.ExportFunc("add", b.Func(Types(wasm.ValI32, wasm.ValI32), I32s, nil, Get(0), Get(1), Op(wasm.OpI32Add)))
	inst := instantiate(t, b, nil, interp.Config{})

	tests := []struct {
		fn   string
		args []uint64
		want uint64
	}{
		{"id32", []uint64{0x1_0000_0005}, 5},
		{"idf32", []uint64{0xFFFF_FFFF_3F80_0000}, 0x3F80_0000},
		{"id64", []uint64{0x1_0000_0005}, 0x1_0000_0005},
		{"add", []uint64{0xAAAA_0000_0001, 0x1_0000_0002}, 3},
	}
	for _, tt := range tests {
		if got := call1(t, inst, tt.fn, tt.args...); got != tt.want {
			t.Errorf("%s(%#x) = %#x, want %#x", tt.fn, tt.args, got, tt.want)
		}
	}
}

type outcome struct {
	Results []uint64
	Trap    werrors.TrapKind
}

func TestDeterministicExecution(t *testing.T) {
	steps := []struct {
		fn   string
		args []uint64
	}{
		{"store_i32", []uint64{16, 0xDEADBEEF}},
		{"load_i32", []uint64{16}},
		{"load_i32", []uint64{65533}},
		{"load_i32", []uint64{16}},
		{"grow", []uint64{1}},
		{"load_i32", []uint64{65536 + 16}},
		{"memset", []uint64{100, 0x41, 8}},
		{"load_i32", []uint64{102}},
		{"size", nil},
	}
	record := func() []outcome {
		inst := instantiate(t, Memory(), nil, interp.Config{})
		var out []outcome
		for _, s := range steps {
			res, err := inst.Call(context.Background(), s.fn, s.args...)
			o := outcome{Results: res}
			if err != nil {
				trap, ok := werrors.AsTrap(err)
				if !ok {
					t.Fatalf("%s%v: %v", s.fn, s.args, err)
				}
				o.Trap = trap.Kind
			}
			out = append(out, o)
		}
		return out
	}

	first := record()
	if first[2].Trap != werrors.TrapMemoryOutOfBounds {
		t.Fatalf("expected out of bounds trap, got %+v", first[2])
	}
	if diff := cmp.Diff(first[1], first[3]); diff != "" {
		t.Errorf("same load around a trap differs (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(first, record()); diff != "" {
		t.Errorf("repeated run differs (-first +second):\n%s", diff)
	}
}
