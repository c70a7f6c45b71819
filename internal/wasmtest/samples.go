package wasmtest

import "github.com/wippyai/wasmvm/wasm"

// Math exports factorial, factorial_recursive, fibonacci, divide, add and
// remainder, all over i32.
func Math() *Builder {
	b := New()
	i32 := wasm.ValI32

	fac := b.Func(I32s, I32s, I32s,
		I32(1), Set(1),
		Block(0),
		Loop(0),
		Get(0), Op(wasm.OpI32Eqz), BrIf(1),
		Get(1), Get(0), Op(wasm.OpI32Mul), Set(1),
		Get(0), I32(1), Op(wasm.OpI32Sub), Set(0),
		Br(0),
		End,
		End,
		Get(1),
	)
	b.ExportFunc("factorial", fac)

	facRec := b.NextFuncIndex()
	b.Func(I32s, I32s, nil,
		Get(0), Op(wasm.OpI32Eqz),
		If(i32),
		I32(1),
		Else,
		Get(0), Get(0), I32(1), Op(wasm.OpI32Sub), Call(facRec), Op(wasm.OpI32Mul),
		End,
	)
	b.ExportFunc("factorial_recursive", facRec)

	fib := b.NextFuncIndex()
	b.Func(I32s, I32s, nil,
		Get(0), I32(2), Op(wasm.OpI32LtU),
		If(i32),
		Get(0),
		Else,
		Get(0), I32(1), Op(wasm.OpI32Sub), Call(fib),
		Get(0), I32(2), Op(wasm.OpI32Sub), Call(fib),
		Op(wasm.OpI32Add),
		End,
	)
	b.ExportFunc("fibonacci", fib)

	two := Types(i32, i32)
	b.ExportFunc("divide", b.Func(two, I32s, nil, Get(0), Get(1), Op(wasm.OpI32DivS)))
	b.ExportFunc("add", b.Func(two, I32s, nil, Get(0), Get(1), Op(wasm.OpI32Add)))
	b.ExportFunc("remainder", b.Func(two, I32s, nil, Get(0), Get(1), Op(wasm.OpI32RemU)))
	return b
}

// Memory exports a one page memory with a two page maximum, and memset,
// memcpy, load_byte, load_i32, store_i32, grow and size.
func Memory() *Builder {
	b := New()
	i32 := wasm.ValI32
	three := Types(i32, i32, i32)
	b.Memory(1, Ptr(2))
	b.Export("memory", wasm.KindMemory, 0)

	b.ExportFunc("memset", b.Func(three, nil, nil,
		Block(0),
		Loop(0),
		Get(2), Op(wasm.OpI32Eqz), BrIf(1),
		Get(0), Get(1), Mem(wasm.OpI32Store8, 0, 0),
		Get(0), I32(1), Op(wasm.OpI32Add), Set(0),
		Get(2), I32(1), Op(wasm.OpI32Sub), Set(2),
		Br(0),
		End,
		End,
	))
	b.ExportFunc("memcpy", b.Func(three, nil, nil,
		Block(0),
		Loop(0),
		Get(2), Op(wasm.OpI32Eqz), BrIf(1),
		Get(0), Get(1), Mem(wasm.OpI32Load8U, 0, 0), Mem(wasm.OpI32Store8, 0, 0),
		Get(0), I32(1), Op(wasm.OpI32Add), Set(0),
		Get(1), I32(1), Op(wasm.OpI32Add), Set(1),
		Get(2), I32(1), Op(wasm.OpI32Sub), Set(2),
		Br(0),
		End,
		End,
	))
	b.ExportFunc("load_byte", b.Func(I32s, I32s, nil, Get(0), Mem(wasm.OpI32Load8U, 0, 0)))
	b.ExportFunc("load_i32", b.Func(I32s, I32s, nil, Get(0), Mem(wasm.OpI32Load, 2, 0)))
	b.ExportFunc("store_i32", b.Func(Types(i32, i32), nil, nil, Get(0), Get(1), Mem(wasm.OpI32Store, 2, 0)))
	b.ExportFunc("grow", b.Func(I32s, I32s, nil, Get(0), Op(wasm.OpMemoryGrow)))
	b.ExportFunc("size", b.Func(nil, I32s, nil, Op(wasm.OpMemorySize)))
	return b
}

// Table exports call(slot, x) which calls table[slot] with type i32 -> i32.
// Slot 0 holds double, slot 1 holds a function of type i64 -> i64 and slot
// 2 is left uninitialized.
func Table() *Builder {
	b := New()
	double := b.Func(I32s, I32s, nil, Get(0), I32(2), Op(wasm.OpI32Mul))
	neg := b.Func(I64s, I64s, nil, I64(0), Get(0), Op(wasm.OpI64Sub))
	sig := b.Type(I32s, I32s)
	b.Table(3, nil)
	b.Elem(ConstI32(0), double, neg)
	b.ExportFunc("call", b.Func(Types(wasm.ValI32, wasm.ValI32), I32s, nil,
		Get(1), Get(0), CallIndirect(sig),
	))
	b.Export("table", wasm.KindTable, 0)
	return b
}

// Control exports classify, which maps 0, 1 and anything else to 10, 20
// and 30 through br_table, plus spin, an infinite loop, and recurse, which
// never terminates its recursion.
func Control() *Builder {
	b := New()
	b.ExportFunc("classify", b.Func(I32s, I32s, nil,
		Block(0),
		Block(0),
		Block(0),
		Get(0), BrTable(2, 0, 1),
		End,
		I32(10), Op(wasm.OpReturn),
		End,
		I32(20), Op(wasm.OpReturn),
		End,
		I32(30),
	))
	b.ExportFunc("spin", b.Func(nil, nil, nil, Loop(0), Br(0), End))

	rec := b.NextFuncIndex()
	b.Func(I32s, I32s, nil, Get(0), I32(1), Op(wasm.OpI32Add), Call(rec))
	b.ExportFunc("recurse", rec)
	return b
}

// Host imports env.print_i32 and env.add_i64 and exports run(x), which
// prints x and returns add_i64(x, 1) truncated to i32, and counter, which
// bumps a mutable exported global.
func Host() *Builder {
	b := New()
	printer := b.ImportFunc("env", "print_i32", I32s, nil)
	add := b.ImportFunc("env", "add_i64", Types(wasm.ValI64, wasm.ValI64), I64s)
	count := b.Global(wasm.ValI32, true, ConstI32(0))

	b.ExportFunc("run", b.Func(I32s, I32s, nil,
		Get(0), Call(printer),
		Get(0), Op(wasm.OpI64ExtendI32S), I64(1), Call(add),
		Op(wasm.OpI32WrapI64),
	))
	b.ExportFunc("counter", b.Func(nil, I32s, nil,
		GlobalGet(count), I32(1), Op(wasm.OpI32Add), GlobalSet(count),
		GlobalGet(count),
	))
	b.Export("count", wasm.KindGlobal, count)
	return b
}
