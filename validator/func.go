package validator

import (
	"errors"
	"fmt"
	"io"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/sidetable"
	"github.com/wippyai/wasmvm/wasm"
)

// unknown is the polymorphic operand type produced by popping past the
// frame height in unreachable code. It matches every type.
const unknown wasm.ValType = 0

// Function is a validated function body ready for execution.
type Function struct {
	// Side resolves every branch, if and else in Code.
	Side *sidetable.Table
	// Locals holds the declared locals, excluding parameters.
	Locals []wasm.ValType
	// Code is the decoded body; positions index the side table.
	Code []wasm.Instruction
	Type wasm.FuncType
	// MaxHeight is the largest operand stack depth the body reaches.
	MaxHeight int
	// Index is the function's position in the module function index space.
	Index   uint32
	TypeIdx uint32
}

// NumLocals returns parameters plus declared locals.
func (f *Function) NumLocals() int {
	return len(f.Type.Params) + len(f.Locals)
}

type frameKind uint8

const (
	frameFunc frameKind = iota
	frameBlock
	frameLoop
	frameIf
	frameElse
)

type ctrlFrame struct {
	// fixups are side table entries whose target is this frame's end.
	fixups      []int
	results     []wasm.ValType
	height      int
	ifEntry     int
	pos         uint32
	kind        frameKind
	unreachable bool
}

// labelTypes are the operand types a branch to this frame carries.
// Loop labels take the block parameters, which are always empty in 1.0.
func (f *ctrlFrame) labelTypes() []wasm.ValType {
	if f.kind == frameLoop {
		return nil
	}
	return f.results
}

// funcValidator checks one body with an abstract operand stack and emits
// its side table in the same pass.
type funcValidator struct {
	mod        *moduleContext
	side       *sidetable.Builder
	locals     []wasm.ValType
	vals       []wasm.ValType
	ctrls      []ctrlFrame
	code       []wasm.Instruction
	sig        wasm.FuncType
	cur        wasm.Instruction
	maxHeight  int
	bodyOffset int
	funcIdx    uint32
}

func validateFunction(mc *moduleContext, funcIdx, typeIdx uint32, body *wasm.FuncBody) (*Function, error) {
	sig := mc.types[typeIdx]
	v := &funcValidator{
		mod:        mc,
		side:       sidetable.NewBuilder(),
		sig:        sig,
		funcIdx:    funcIdx,
		bodyOffset: body.Offset,
	}

	declared := make([]wasm.ValType, 0)
	for _, le := range body.Locals {
		for i := uint32(0); i < le.Count; i++ {
			declared = append(declared, le.ValType)
		}
	}
	v.locals = make([]wasm.ValType, 0, len(sig.Params)+len(declared))
	v.locals = append(v.locals, sig.Params...)
	v.locals = append(v.locals, declared...)

	v.ctrls = append(v.ctrls, ctrlFrame{kind: frameFunc, results: sig.Results, ifEntry: -1})

	ir := wasm.NewInstrReader(body.Code)
	for {
		ins, err := ir.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, v.rebase(err)
		}
		v.cur = ins
		if len(v.ctrls) == 0 {
			return nil, v.fail(werrors.KindMalformed, "operators remaining after end of function")
		}
		pos := uint32(len(v.code))
		if err := v.step(ins, pos); err != nil {
			return nil, err
		}
		v.code = append(v.code, ins)
	}
	if len(v.ctrls) != 0 {
		return nil, v.fail(werrors.KindMalformed, "unexpected end of function body")
	}

	return &Function{
		Side:      v.side.Build(len(v.code)),
		Locals:    declared,
		Code:      v.code,
		Type:      sig,
		MaxHeight: v.maxHeight,
		Index:     funcIdx,
		TypeIdx:   typeIdx,
	}, nil
}

func (v *funcValidator) path() []string {
	return []string{"code", fmt.Sprintf("func[%d]", v.funcIdx)}
}

func (v *funcValidator) fail(kind werrors.Kind, format string, args ...any) error {
	return werrors.New(werrors.PhaseValidate, kind).
		Path(v.path()...).
		At(v.bodyOffset + v.cur.Offset).
		Detail(format, args...).
		Build()
}

// rebase moves a body-relative decode error to a module offset.
func (v *funcValidator) rebase(err error) error {
	var e *werrors.Error
	if !errors.As(err, &e) {
		return err
	}
	b := werrors.New(e.Phase, e.Kind).Path(v.path()...).Detail("%s", e.Detail).Cause(e.Cause)
	if e.HasOffset() {
		b = b.At(v.bodyOffset + e.Offset)
	}
	return b.Build()
}

func (v *funcValidator) push(t wasm.ValType) {
	v.vals = append(v.vals, t)
	if len(v.vals) > v.maxHeight {
		v.maxHeight = len(v.vals)
	}
}

func (v *funcValidator) pushAll(ts []wasm.ValType) {
	for _, t := range ts {
		v.push(t)
	}
}

// pop returns the top operand. ok is false when the current frame has no
// operand left and is reachable.
func (v *funcValidator) pop() (t wasm.ValType, ok bool) {
	f := &v.ctrls[len(v.ctrls)-1]
	if len(v.vals) == f.height {
		return unknown, f.unreachable
	}
	t = v.vals[len(v.vals)-1]
	v.vals = v.vals[:len(v.vals)-1]
	return t, true
}

func (v *funcValidator) popExpect(want wasm.ValType) (wasm.ValType, error) {
	got, ok := v.pop()
	if !ok {
		if want == unknown {
			return 0, v.fail(werrors.KindTypeMismatch, "type mismatch: expected a value, stack is empty")
		}
		return 0, v.fail(werrors.KindTypeMismatch, "type mismatch: expected %s, stack is empty", want)
	}
	switch {
	case got == unknown:
		return want, nil
	case want == unknown:
		return got, nil
	case got != want:
		return 0, v.fail(werrors.KindTypeMismatch, "type mismatch: expected %s, got %s", want, got)
	}
	return got, nil
}

func (v *funcValidator) popAll(ts []wasm.ValType) error {
	for i := len(ts) - 1; i >= 0; i-- {
		if _, err := v.popExpect(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *funcValidator) pushCtrl(kind frameKind, results []wasm.ValType, pos uint32, ifEntry int) {
	v.ctrls = append(v.ctrls, ctrlFrame{
		kind:    kind,
		results: results,
		height:  len(v.vals),
		pos:     pos,
		ifEntry: ifEntry,
	})
}

// popCtrl checks the frame's results and unwinds it.
func (v *funcValidator) popCtrl() (ctrlFrame, error) {
	f := &v.ctrls[len(v.ctrls)-1]
	if err := v.popAll(f.results); err != nil {
		return ctrlFrame{}, err
	}
	if len(v.vals) != f.height {
		return ctrlFrame{}, v.fail(werrors.KindStackHeight,
			"type mismatch: %d extra values at end of block", len(v.vals)-f.height)
	}
	frame := *f
	v.ctrls = v.ctrls[:len(v.ctrls)-1]
	return frame, nil
}

func (v *funcValidator) markUnreachable() {
	f := &v.ctrls[len(v.ctrls)-1]
	v.vals = v.vals[:f.height]
	f.unreachable = true
}

func (v *funcValidator) label(depth uint32) (*ctrlFrame, error) {
	if int(depth) >= len(v.ctrls) {
		return nil, v.fail(werrors.KindUnknownLabel, "unknown label %d", depth)
	}
	return &v.ctrls[len(v.ctrls)-1-int(depth)], nil
}

// branchEntry computes the stack adjustment for leaving to frame with h
// operands on the stack. In unreachable code h may sit below the target
// height; nothing executes there, so Drop is clamped to zero.
func branchEntry(frame *ctrlFrame, h int) sidetable.Entry {
	arity := len(frame.labelTypes())
	e := sidetable.Entry{Keep: uint32(arity)}
	if h >= frame.height+arity {
		e.Drop = uint32(h - frame.height - arity)
	}
	if frame.kind == frameLoop {
		e.Target = frame.pos + 1
	}
	return e
}

func (v *funcValidator) track(frame *ctrlFrame, entry int) {
	if frame.kind != frameLoop {
		frame.fixups = append(frame.fixups, entry)
	}
}

func (v *funcValidator) finishFrame(frame ctrlFrame, end uint32) {
	for _, e := range frame.fixups {
		v.side.PatchTarget(e, end)
	}
}

func sameTypes(a, b []wasm.ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v *funcValidator) step(ins wasm.Instruction, pos uint32) error {
	op := ins.Opcode

	if hasNumeric[op] {
		sig := numericSigs[op]
		for i := int(sig.n) - 1; i >= 0; i-- {
			if _, err := v.popExpect(sig.in[i]); err != nil {
				return err
			}
		}
		v.push(sig.out)
		return nil
	}
	if wasm.IsMemoryAccess(op) {
		return v.memoryAccess(ins)
	}

	switch op {
	case wasm.OpUnreachable:
		v.markUnreachable()
	case wasm.OpNop:

	case wasm.OpBlock:
		v.pushCtrl(frameBlock, ins.BlockResults(), pos, -1)
	case wasm.OpLoop:
		v.pushCtrl(frameLoop, ins.BlockResults(), pos, -1)
	case wasm.OpIf:
		if _, err := v.popExpect(wasm.ValI32); err != nil {
			return err
		}
		entry := v.side.Emit(pos, sidetable.Entry{})
		v.pushCtrl(frameIf, ins.BlockResults(), pos, entry)

	case wasm.OpElse:
		if v.ctrls[len(v.ctrls)-1].kind != frameIf {
			return v.fail(werrors.KindMalformed, "else without matching if")
		}
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		v.side.PatchTarget(frame.ifEntry, pos+1)
		frame.fixups = append(frame.fixups, v.side.Emit(pos, sidetable.Entry{}))
		frame.kind = frameElse
		frame.unreachable = false
		v.ctrls = append(v.ctrls, frame)

	case wasm.OpEnd:
		frame, err := v.popCtrl()
		if err != nil {
			return err
		}
		if frame.kind == frameIf {
			if len(frame.results) != 0 {
				return v.fail(werrors.KindTypeMismatch,
					"type mismatch: if without else must not produce %s", frame.results[0])
			}
			v.side.PatchTarget(frame.ifEntry, pos)
		}
		v.finishFrame(frame, pos)
		if frame.kind != frameFunc {
			v.pushAll(frame.results)
		}

	case wasm.OpBr:
		frame, err := v.label(ins.Index)
		if err != nil {
			return err
		}
		entry := v.side.Emit(pos, branchEntry(frame, len(v.vals)))
		v.track(frame, entry)
		if err := v.popAll(frame.labelTypes()); err != nil {
			return err
		}
		v.markUnreachable()

	case wasm.OpBrIf:
		if _, err := v.popExpect(wasm.ValI32); err != nil {
			return err
		}
		frame, err := v.label(ins.Index)
		if err != nil {
			return err
		}
		entry := v.side.Emit(pos, branchEntry(frame, len(v.vals)))
		v.track(frame, entry)
		types := frame.labelTypes()
		if err := v.popAll(types); err != nil {
			return err
		}
		v.pushAll(types)

	case wasm.OpBrTable:
		return v.brTable(ins, pos)

	case wasm.OpReturn:
		if err := v.popAll(v.sig.Results); err != nil {
			return err
		}
		v.markUnreachable()

	case wasm.OpCall:
		if int(ins.Index) >= len(v.mod.funcs) {
			return v.fail(werrors.KindUnknownIndex, "unknown function %d", ins.Index)
		}
		ft := v.mod.types[v.mod.funcs[ins.Index]]
		if err := v.popAll(ft.Params); err != nil {
			return err
		}
		v.pushAll(ft.Results)

	case wasm.OpCallIndirect:
		if !v.mod.hasTable {
			return v.fail(werrors.KindUnknownIndex, "unknown table 0")
		}
		if int(ins.Index) >= len(v.mod.types) {
			return v.fail(werrors.KindUnknownIndex, "unknown type %d", ins.Index)
		}
		if _, err := v.popExpect(wasm.ValI32); err != nil {
			return err
		}
		ft := v.mod.types[ins.Index]
		if err := v.popAll(ft.Params); err != nil {
			return err
		}
		v.pushAll(ft.Results)

	case wasm.OpDrop:
		if _, err := v.popExpect(unknown); err != nil {
			return err
		}

	case wasm.OpSelect:
		if _, err := v.popExpect(wasm.ValI32); err != nil {
			return err
		}
		t1, err := v.popExpect(unknown)
		if err != nil {
			return err
		}
		t2, err := v.popExpect(t1)
		if err != nil {
			return err
		}
		if t1 == unknown {
			t1 = t2
		}
		v.push(t1)

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		if int(ins.Index) >= len(v.locals) {
			return v.fail(werrors.KindUnknownIndex, "unknown local %d", ins.Index)
		}
		t := v.locals[ins.Index]
		switch op {
		case wasm.OpLocalGet:
			v.push(t)
		case wasm.OpLocalSet:
			if _, err := v.popExpect(t); err != nil {
				return err
			}
		default:
			if _, err := v.popExpect(t); err != nil {
				return err
			}
			v.push(t)
		}

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		if int(ins.Index) >= len(v.mod.globals) {
			return v.fail(werrors.KindUnknownIndex, "unknown global %d", ins.Index)
		}
		g := v.mod.globals[ins.Index]
		if op == wasm.OpGlobalGet {
			v.push(g.ValType)
			break
		}
		if !g.Mutable {
			return v.fail(werrors.KindInvalidData, "global is immutable")
		}
		if _, err := v.popExpect(g.ValType); err != nil {
			return err
		}

	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		if !v.mod.hasMemory {
			return v.fail(werrors.KindUnknownIndex, "unknown memory 0")
		}
		if op == wasm.OpMemoryGrow {
			if _, err := v.popExpect(wasm.ValI32); err != nil {
				return err
			}
		}
		v.push(wasm.ValI32)

	case wasm.OpI32Const:
		v.push(wasm.ValI32)
	case wasm.OpI64Const:
		v.push(wasm.ValI64)
	case wasm.OpF32Const:
		v.push(wasm.ValF32)
	case wasm.OpF64Const:
		v.push(wasm.ValF64)

	default:
		return v.fail(werrors.KindMalformed, "illegal opcode 0x%02x", op)
	}
	return nil
}

func (v *funcValidator) brTable(ins wasm.Instruction, pos uint32) error {
	if _, err := v.popExpect(wasm.ValI32); err != nil {
		return err
	}
	def, err := v.label(ins.Index)
	if err != nil {
		return err
	}
	want := def.labelTypes()

	h := len(v.vals)
	entries := make([]sidetable.Entry, 0, len(ins.Labels)+1)
	frames := make([]*ctrlFrame, 0, len(ins.Labels)+1)
	for _, depth := range ins.Labels {
		frame, err := v.label(depth)
		if err != nil {
			return err
		}
		if !sameTypes(frame.labelTypes(), want) {
			return v.fail(werrors.KindTypeMismatch,
				"type mismatch: br_table label %d has arity %d, default has %d",
				depth, len(frame.labelTypes()), len(want))
		}
		entries = append(entries, branchEntry(frame, h))
		frames = append(frames, frame)
	}
	entries = append(entries, branchEntry(def, h))
	frames = append(frames, def)

	first := v.side.EmitRun(pos, entries)
	for i, frame := range frames {
		v.track(frame, first+i)
	}

	if err := v.popAll(want); err != nil {
		return err
	}
	v.markUnreachable()
	return nil
}

func (v *funcValidator) memoryAccess(ins wasm.Instruction) error {
	if !v.mod.hasMemory {
		return v.fail(werrors.KindUnknownIndex, "unknown memory 0")
	}
	m := memOps[ins.Opcode]
	if ins.Align > m.align {
		return v.fail(werrors.KindMalformedImmediate, "alignment must not be larger than natural")
	}
	if m.store {
		if _, err := v.popExpect(m.typ); err != nil {
			return err
		}
		_, err := v.popExpect(wasm.ValI32)
		return err
	}
	if _, err := v.popExpect(wasm.ValI32); err != nil {
		return err
	}
	v.push(m.typ)
	return nil
}
