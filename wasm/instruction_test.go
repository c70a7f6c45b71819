package wasm_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

func TestDecodeInstructions(t *testing.T) {
	code := []byte{
		wasm.OpBlock, 0x7F,
		wasm.OpI32Const, 0x7F, // -1
		wasm.OpI64Const, 0x80, 0x01, // 128
		wasm.OpDrop,
		wasm.OpLocalGet, 0x02,
		wasm.OpBrTable, 0x02, 0x00, 0x01, 0x00,
		wasm.OpEnd,
		wasm.OpI32Load16U, 0x01, 0x10,
		wasm.OpMemoryGrow, 0x00,
		wasm.OpCallIndirect, 0x03, 0x00,
		wasm.OpF32Const, 0x00, 0x00, 0xC0, 0x3F, // 1.5
		wasm.OpEnd,
	}

	got, err := wasm.DecodeInstructions(code)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	want := []wasm.Instruction{
		{Opcode: wasm.OpBlock, BlockType: wasm.ValI32, Offset: 0},
		{Opcode: wasm.OpI32Const, Value: 0xFFFFFFFF, Offset: 2},
		{Opcode: wasm.OpI64Const, Value: 128, Offset: 4},
		{Opcode: wasm.OpDrop, Offset: 7},
		{Opcode: wasm.OpLocalGet, Index: 2, Offset: 8},
		{Opcode: wasm.OpBrTable, Labels: []uint32{0, 1}, Index: 0, Offset: 10},
		{Opcode: wasm.OpEnd, Offset: 15},
		{Opcode: wasm.OpI32Load16U, Align: 1, Value: 16, Offset: 16},
		{Opcode: wasm.OpMemoryGrow, Offset: 19},
		{Opcode: wasm.OpCallIndirect, Index: 3, Offset: 21},
		{Opcode: wasm.OpF32Const, Value: 0x3FC00000, Offset: 24},
		{Opcode: wasm.OpEnd, Offset: 29},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("DecodeInstructions mismatch (-want +got):\n%s", diff)
	}
}

func TestInstrReaderStreaming(t *testing.T) {
	ir := wasm.NewInstrReader([]byte{wasm.OpNop, wasm.OpI32Const, 0x05, wasm.OpEnd})
	var ops []byte
	for {
		ins, err := ir.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		ops = append(ops, ins.Opcode)
	}
	if diff := cmp.Diff([]byte{wasm.OpNop, wasm.OpI32Const, wasm.OpEnd}, ops); diff != "" {
		t.Errorf("opcodes (-want +got):\n%s", diff)
	}
}

func TestDecodeInstructionErrors(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		detail string
	}{
		{"illegal opcode", []byte{0x06}, "illegal opcode"},
		{"prefixed opcode", []byte{0xFC, 0x00}, "illegal opcode"},
		{"bad block type", []byte{wasm.OpBlock, 0x7B}, "malformed block type"},
		{"memory.size reserved", []byte{wasm.OpMemorySize, 0x01}, "zero byte expected"},
		{"call_indirect reserved", []byte{wasm.OpCallIndirect, 0x00, 0x01}, "zero byte expected"},
		{"truncated immediate", []byte{wasm.OpI32Const}, "unexpected end"},
		{"truncated f64", []byte{wasm.OpF64Const, 0x00, 0x00}, "unexpected end"},
		{"truncated br_table", []byte{wasm.OpBrTable, 0x05, 0x00}, "length out of bounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wasm.DecodeInstructions(tt.code)
			if err == nil {
				t.Fatal("expected error")
			}
			var e *werrors.Error
			if !errors.As(err, &e) || e.Phase != werrors.PhaseDecode {
				t.Fatalf("expected decode error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.detail)
			}
		})
	}
}

func TestEncodeInstructionsRoundTrip(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpLoop},
		{Opcode: wasm.OpIf, BlockType: wasm.ValF64},
		{Opcode: wasm.OpI32Const, Value: uint64(uint32(0x80000000))},
		{Opcode: wasm.OpI64Const, Value: 1 << 63},
		{Opcode: wasm.OpF64Const, Value: 0x7FF8000000000001},
		{Opcode: wasm.OpBrTable, Labels: []uint32{3, 2, 1}, Index: 0},
		{Opcode: wasm.OpCall, Index: 300},
		{Opcode: wasm.OpI64Store32, Align: 2, Value: 0xFFFFFFFF},
		{Opcode: wasm.OpMemorySize},
		{Opcode: wasm.OpEnd},
	}
	got, err := wasm.DecodeInstructions(wasm.EncodeInstructions(instrs))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(instrs, got, cmpopts.IgnoreFields(wasm.Instruction{}, "Offset"), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestInstructionString(t *testing.T) {
	tests := []struct {
		ins  wasm.Instruction
		want string
	}{
		{wasm.Instruction{Opcode: wasm.OpI32Const, Value: 0xFFFFFFFF}, "i32.const -1"},
		{wasm.Instruction{Opcode: wasm.OpBlock, BlockType: wasm.ValI64}, "block (result i64)"},
		{wasm.Instruction{Opcode: wasm.OpLoop}, "loop"},
		{wasm.Instruction{Opcode: wasm.OpBr, Index: 2}, "br 2"},
		{wasm.Instruction{Opcode: wasm.OpI32Load, Align: 2, Value: 8}, "i32.load offset=8 align=4"},
		{wasm.Instruction{Opcode: wasm.OpBrTable, Labels: []uint32{0, 1}, Index: 2}, "br_table [0 1] 2"},
	}
	for _, tt := range tests {
		if got := tt.ins.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
