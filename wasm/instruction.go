package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/wasmvm/wasm/internal/binary"
)

// Instruction is a decoded WebAssembly instruction. Which immediate fields
// are meaningful depends on Opcode.
type Instruction struct {
	// Labels holds br_table target depths; Index holds the default.
	Labels []uint32
	// Value holds the raw bits of a *.const immediate, or the static
	// offset of a load or store.
	Value uint64
	// Offset is the byte position of the opcode within the function body.
	Offset int
	// Index is the label depth, or local, global, function or type index.
	Index uint32
	// Align is the alignment exponent of a load or store.
	Align uint32
	// BlockType is the result type of block, loop and if; zero when empty.
	BlockType ValType
	Opcode    byte
}

// BlockResults returns the result types of a block, loop or if.
func (i Instruction) BlockResults() []ValType {
	if i.BlockType == 0 {
		return nil
	}
	return []ValType{i.BlockType}
}

// String renders the instruction in text format.
func (i Instruction) String() string {
	name := OpName(i.Opcode)
	switch i.Opcode {
	case OpBlock, OpLoop, OpIf:
		if i.BlockType != 0 {
			return fmt.Sprintf("%s (result %s)", name, i.BlockType)
		}
	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		return fmt.Sprintf("%s %d", name, i.Index)
	case OpCallIndirect:
		return fmt.Sprintf("%s (type %d)", name, i.Index)
	case OpBrTable:
		return fmt.Sprintf("%s %v %d", name, i.Labels, i.Index)
	case OpI32Const:
		return fmt.Sprintf("%s %d", name, int32(i.Value))
	case OpI64Const:
		return fmt.Sprintf("%s %d", name, int64(i.Value))
	case OpF32Const, OpF64Const:
		return fmt.Sprintf("%s 0x%x", name, i.Value)
	default:
		if IsMemoryAccess(i.Opcode) {
			return fmt.Sprintf("%s offset=%d align=%d", name, i.Value, uint32(1)<<i.Align)
		}
	}
	return name
}

// IsMemoryAccess reports whether op is a load or store.
func IsMemoryAccess(op byte) bool {
	return op >= OpI32Load && op <= OpI64Store32
}

// InstrReader decodes a function body one instruction at a time.
type InstrReader struct {
	r *binary.Reader
}

// NewInstrReader creates a reader over raw body code.
func NewInstrReader(code []byte) *InstrReader {
	return &InstrReader{r: binary.NewReader(code)}
}

// Offset returns the byte position of the next instruction.
func (ir *InstrReader) Offset() int {
	return ir.r.Position()
}

// Len returns the number of undecoded bytes.
func (ir *InstrReader) Len() int {
	return ir.r.Len()
}

// Next decodes the next instruction. It returns io.EOF when the body is
// exhausted; other failures are decode-phase *errors.Error values.
func (ir *InstrReader) Next() (Instruction, error) {
	if ir.r.Len() == 0 {
		return Instruction{}, io.EOF
	}
	ins, err := ir.next()
	if err != nil {
		return Instruction{}, decodeError(ir.r.WrapError("code", err))
	}
	return ins, nil
}

var errZeroByte = errors.New("zero byte expected")

func (ir *InstrReader) next() (Instruction, error) {
	r := ir.r
	ins := Instruction{Offset: r.Position()}
	op, err := r.ReadByte()
	if err != nil {
		return ins, err
	}
	ins.Opcode = op
	if !IsValidOpcode(op) {
		return ins, &binary.ParseError{Position: ins.Offset, Err: fmt.Errorf("illegal opcode 0x%02x", op)}
	}

	switch op {
	case OpBlock, OpLoop, OpIf:
		b, err := r.ReadByte()
		if err != nil {
			return ins, err
		}
		if b != BlockTypeVoid {
			vt := ValType(b)
			if !vt.IsValid() {
				return ins, fmt.Errorf("malformed block type 0x%02x", b)
			}
			ins.BlockType = vt
		}
	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		ins.Index, err = r.ReadU32()
	case OpBrTable:
		n, err := readCount(r)
		if err != nil {
			return ins, err
		}
		ins.Labels = make([]uint32, n)
		for i := range ins.Labels {
			if ins.Labels[i], err = r.ReadU32(); err != nil {
				return ins, err
			}
		}
		ins.Index, err = r.ReadU32()
		if err != nil {
			return ins, err
		}
	case OpCallIndirect:
		if ins.Index, err = r.ReadU32(); err != nil {
			return ins, err
		}
		err = readReserved(r)
	case OpMemorySize, OpMemoryGrow:
		err = readReserved(r)
	case OpI32Const:
		var v int32
		v, err = r.ReadS32()
		ins.Value = uint64(uint32(v))
	case OpI64Const:
		var v int64
		v, err = r.ReadS64()
		ins.Value = uint64(v)
	case OpF32Const:
		var v uint32
		v, err = r.ReadU32LE()
		ins.Value = uint64(v)
	case OpF64Const:
		ins.Value, err = r.ReadU64LE()
	default:
		if IsMemoryAccess(op) {
			if ins.Align, err = r.ReadU32(); err != nil {
				return ins, err
			}
			var off uint32
			off, err = r.ReadU32()
			ins.Value = uint64(off)
		}
	}
	return ins, err
}

func readReserved(r *binary.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 {
		return errZeroByte
	}
	return nil
}

// DecodeInstructions decodes an entire function body.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	ir := NewInstrReader(code)
	var out []Instruction
	for {
		ins, err := ir.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
}

// EncodeInstructions encodes instructions to binary. Offset fields are ignored.
func EncodeInstructions(instrs []Instruction) []byte {
	w := binary.NewWriter()
	for _, ins := range instrs {
		encodeInstruction(w, ins)
	}
	return w.Bytes()
}

func encodeInstruction(w *binary.Writer, ins Instruction) {
	w.Byte(ins.Opcode)
	switch ins.Opcode {
	case OpBlock, OpLoop, OpIf:
		if ins.BlockType == 0 {
			w.Byte(BlockTypeVoid)
		} else {
			w.Byte(byte(ins.BlockType))
		}
	case OpBr, OpBrIf, OpCall, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		w.WriteU32(ins.Index)
	case OpBrTable:
		w.WriteU32(uint32(len(ins.Labels)))
		for _, l := range ins.Labels {
			w.WriteU32(l)
		}
		w.WriteU32(ins.Index)
	case OpCallIndirect:
		w.WriteU32(ins.Index)
		w.Byte(0)
	case OpMemorySize, OpMemoryGrow:
		w.Byte(0)
	case OpI32Const:
		w.WriteS32(int32(uint32(ins.Value)))
	case OpI64Const:
		w.WriteS64(int64(ins.Value))
	case OpF32Const:
		w.WriteU32LE(uint32(ins.Value))
	case OpF64Const:
		w.WriteU32LE(uint32(ins.Value))
		w.WriteU32LE(uint32(ins.Value >> 32))
	default:
		if IsMemoryAccess(ins.Opcode) {
			w.WriteU32(ins.Align)
			w.WriteU32(uint32(ins.Value))
		}
	}
}
