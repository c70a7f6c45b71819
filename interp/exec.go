package interp

import (
	"context"
	"slices"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/memory"
	"github.com/wippyai/wasmvm/sidetable"
	"github.com/wippyai/wasmvm/validator"
	"github.com/wippyai/wasmvm/wasm"
)

// frame is one active wasm call. Locals occupy stack[base:] ahead of the
// operands.
type frame struct {
	fn   *validator.Function
	inst *Instance
	pc   int
	base int
}

// machine executes one invocation. Wasm-to-wasm calls push frames on a
// heap slice, so recursion depth never depends on the Go stack.
type machine struct {
	ctx      context.Context
	done     <-chan struct{}
	stack    []uint64
	frames   []frame
	fuel     uint64
	maxDepth int
	metered  bool
}

func newMachine(ctx context.Context, cfg Config) *machine {
	if ctx == nil {
		ctx = context.Background()
	}
	return &machine{
		ctx:      ctx,
		done:     ctx.Done(),
		stack:    make([]uint64, 0, 256),
		frames:   make([]frame, 0, 16),
		fuel:     cfg.Fuel,
		metered:  cfg.Fuel > 0,
		maxDepth: cfg.MaxCallDepth,
	}
}

// tick charges one unit of fuel and observes cancellation. It runs on
// every call and every backward branch.
func (m *machine) tick() error {
	if m.metered {
		if m.fuel == 0 {
			return werrors.NewTrap(werrors.TrapFuelExhausted)
		}
		m.fuel--
	}
	select {
	case <-m.done:
		t := werrors.NewTrap(werrors.TrapInterrupted)
		t.Cause = m.ctx.Err()
		return t
	default:
		return nil
	}
}

func (m *machine) run(caller *Instance, fn *Function, args []uint64) ([]uint64, error) {
	if fn.host != nil {
		params := normalize(fn.Type.Params, append([]uint64(nil), args...))
		results := make([]uint64, len(fn.Type.Results))
		if err := m.callHost(caller, fn, params, results); err != nil {
			return nil, err
		}
		return results, nil
	}

	sp := len(m.stack)
	m.stack = append(m.stack, args...)
	normalize(fn.Type.Params, m.stack[sp:])
	if err := m.enter(fn); err != nil {
		return nil, err
	}
	for len(m.frames) > 0 {
		if err := m.exec(); err != nil {
			return nil, err
		}
	}
	n := len(fn.Type.Results)
	return append([]uint64(nil), m.stack[len(m.stack)-n:]...), nil
}

// normalize clears the upper half of i32 and f32 slots supplied by the
// embedder.
func normalize(params []wasm.ValType, slots []uint64) []uint64 {
	for i, t := range params {
		if t == wasm.ValI32 || t == wasm.ValF32 {
			slots[i] &= 0xFFFFFFFF
		}
	}
	return slots
}

func (m *machine) push(v uint64) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() uint64 {
	n := len(m.stack) - 1
	v := m.stack[n]
	m.stack = m.stack[:n]
	return v
}

// enter pushes a frame for a wasm function whose arguments are on the stack.
func (m *machine) enter(fn *Function) error {
	if len(m.frames) >= m.maxDepth {
		return werrors.NewTrap(werrors.TrapCallStackExhausted)
	}
	if err := m.tick(); err != nil {
		return err
	}
	code := fn.code
	base := len(m.stack) - len(fn.Type.Params)
	m.stack = slices.Grow(m.stack, len(code.Locals)+code.MaxHeight)
	for range code.Locals {
		m.stack = append(m.stack, 0)
	}
	m.frames = append(m.frames, frame{fn: code, inst: fn.owner, base: base})
	return nil
}

func (m *machine) call(caller *Instance, fn *Function) error {
	if fn.host == nil {
		return m.enter(fn)
	}
	sp := len(m.stack)
	n := len(fn.Type.Params)
	params := m.stack[sp-n : sp : sp]
	results := make([]uint64, len(fn.Type.Results))
	if err := m.callHost(caller, fn, params, results); err != nil {
		return err
	}
	m.stack = append(m.stack[:sp-n], results...)
	return nil
}

func (m *machine) callHost(caller *Instance, fn *Function, params, results []uint64) error {
	if err := m.tick(); err != nil {
		return err
	}
	err := fn.host.Fn(m.ctx, &Caller{inst: caller}, params, results)
	if err == nil {
		return nil
	}
	if werrors.IsTrap(err) {
		return err
	}
	t := werrors.NewTrap(werrors.TrapHost)
	t.Cause = err
	return t
}

// ret pops the top frame, leaving exactly its results at the frame base.
func (m *machine) ret() {
	fr := &m.frames[len(m.frames)-1]
	n := len(fr.fn.Type.Results)
	sp := len(m.stack)
	copy(m.stack[fr.base:], m.stack[sp-n:sp])
	m.stack = m.stack[:fr.base+n]
	m.frames = m.frames[:len(m.frames)-1]
}

func (m *machine) branch(fr *frame, e sidetable.Entry) error {
	if e.Drop > 0 {
		sp := len(m.stack)
		keep := int(e.Keep)
		copy(m.stack[sp-keep-int(e.Drop):], m.stack[sp-keep:sp])
		m.stack = m.stack[:sp-int(e.Drop)]
	}
	target := int(e.Target)
	if target <= fr.pc {
		if err := m.tick(); err != nil {
			return err
		}
	}
	fr.pc = target
	return nil
}

// fault records where an unlocated trap happened.
func (m *machine) fault(fr *frame, ins *wasm.Instruction, err error) error {
	if t, ok := werrors.AsTrap(err); ok && t.Offset < 0 {
		t.Func = fr.fn.Index
		t.Offset = ins.Offset
	}
	return err
}

// exec runs the top frame until it calls, returns or traps.
func (m *machine) exec() error {
	fr := &m.frames[len(m.frames)-1]
	inst := fr.inst
	code := fr.fn.Code
	side := fr.fn.Side
	mem := inst.mem
	base := fr.base

	for {
		ins := &code[fr.pc]
		switch ins.Opcode {
		case wasm.OpUnreachable:
			return m.fault(fr, ins, werrors.NewTrap(werrors.TrapUnreachable))

		case wasm.OpNop, wasm.OpBlock, wasm.OpLoop:
			fr.pc++

		case wasm.OpIf:
			if uint32(m.pop()) == 0 {
				fr.pc = int(side.Lookup(uint32(fr.pc)).Target)
			} else {
				fr.pc++
			}

		case wasm.OpElse:
			fr.pc = int(side.Lookup(uint32(fr.pc)).Target)

		case wasm.OpEnd:
			if fr.pc == len(code)-1 {
				m.ret()
				return nil
			}
			fr.pc++

		case wasm.OpBr:
			if err := m.branch(fr, side.Lookup(uint32(fr.pc))); err != nil {
				return m.fault(fr, ins, err)
			}

		case wasm.OpBrIf:
			if uint32(m.pop()) == 0 {
				fr.pc++
				break
			}
			if err := m.branch(fr, side.Lookup(uint32(fr.pc))); err != nil {
				return m.fault(fr, ins, err)
			}

		case wasm.OpBrTable:
			i := uint32(m.pop())
			e := side.LookupTable(uint32(fr.pc), i, uint32(len(ins.Labels)))
			if err := m.branch(fr, e); err != nil {
				return m.fault(fr, ins, err)
			}

		case wasm.OpReturn:
			m.ret()
			return nil

		case wasm.OpCall:
			fr.pc++
			if err := m.call(inst, inst.funcs[ins.Index]); err != nil {
				return m.fault(fr, ins, err)
			}
			return nil

		case wasm.OpCallIndirect:
			fn, ok := inst.table.Get(uint32(m.pop()))
			switch {
			case !ok:
				return m.fault(fr, ins, werrors.NewTrap(werrors.TrapUndefinedElement))
			case fn == nil:
				return m.fault(fr, ins, werrors.NewTrap(werrors.TrapUninitializedElement))
			case !fn.Type.Equal(inst.mod.Raw.Types[ins.Index]):
				return m.fault(fr, ins, werrors.NewTrap(werrors.TrapIndirectCallSignature))
			}
			fr.pc++
			if err := m.call(inst, fn); err != nil {
				return m.fault(fr, ins, err)
			}
			return nil

		case wasm.OpDrop:
			m.stack = m.stack[:len(m.stack)-1]
			fr.pc++

		case wasm.OpSelect:
			c := uint32(m.pop())
			v2 := m.pop()
			if c == 0 {
				m.stack[len(m.stack)-1] = v2
			}
			fr.pc++

		case wasm.OpLocalGet:
			m.push(m.stack[base+int(ins.Index)])
			fr.pc++
		case wasm.OpLocalSet:
			m.stack[base+int(ins.Index)] = m.pop()
			fr.pc++
		case wasm.OpLocalTee:
			m.stack[base+int(ins.Index)] = m.stack[len(m.stack)-1]
			fr.pc++

		case wasm.OpGlobalGet:
			m.push(inst.globals[ins.Index].bits)
			fr.pc++
		case wasm.OpGlobalSet:
			inst.globals[ins.Index].bits = m.pop()
			fr.pc++

		case wasm.OpMemorySize:
			m.push(uint64(mem.Size()))
			fr.pc++
		case wasm.OpMemoryGrow:
			old, ok := mem.Grow(uint32(m.pop()))
			if !ok {
				old = 0xFFFFFFFF
			}
			m.push(uint64(old))
			fr.pc++

		case wasm.OpI32Const, wasm.OpI64Const, wasm.OpF32Const, wasm.OpF64Const:
			m.push(ins.Value)
			fr.pc++

		default:
			var err error
			if wasm.IsMemoryAccess(ins.Opcode) {
				err = m.access(mem, ins)
			} else {
				err = m.numeric(ins.Opcode)
			}
			if err != nil {
				return m.fault(fr, ins, err)
			}
			fr.pc++
		}
	}
}

func (m *machine) access(mem *memory.Memory, ins *wasm.Instruction) error {
	op := ins.Opcode
	if op >= wasm.OpI32Store {
		v := m.pop()
		ea := uint64(uint32(m.pop())) + ins.Value
		switch op {
		case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
			return mem.Store32(ea, uint32(v))
		case wasm.OpI64Store, wasm.OpF64Store:
			return mem.Store64(ea, v)
		case wasm.OpI32Store8, wasm.OpI64Store8:
			return mem.Store8(ea, uint8(v))
		default:
			return mem.Store16(ea, uint16(v))
		}
	}

	ea := uint64(uint32(m.pop())) + ins.Value
	var v uint64
	switch op {
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32U:
		x, err := mem.Load32(ea)
		if err != nil {
			return err
		}
		v = uint64(x)
	case wasm.OpI64Load, wasm.OpF64Load:
		x, err := mem.Load64(ea)
		if err != nil {
			return err
		}
		v = x
	case wasm.OpI64Load32S:
		x, err := mem.Load32(ea)
		if err != nil {
			return err
		}
		v = uint64(int64(int32(x)))
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		x, err := mem.Load8(ea)
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpI32Load8S:
			v = uint64(uint32(int32(int8(x))))
		case wasm.OpI64Load8S:
			v = uint64(int64(int8(x)))
		default:
			v = uint64(x)
		}
	default:
		x, err := mem.Load16(ea)
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpI32Load16S:
			v = uint64(uint32(int32(int16(x))))
		case wasm.OpI64Load16S:
			v = uint64(int64(int16(x)))
		default:
			v = uint64(x)
		}
	}
	m.push(v)
	return nil
}
