package wasm_test

import (
	"errors"
	"strings"
	"testing"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

func withHeader(sections ...byte) []byte {
	return append(append([]byte{}, header...), sections...)
}

func ptrTo[T any](v T) *T { return &v }

func TestParseMinimalModule(t *testing.T) {
	m, err := wasm.ParseModule(header)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil module")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		kind   werrors.Kind
		detail string
	}{
		{"empty", nil, werrors.KindMalformed, "magic header"},
		{"bad magic", []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}, werrors.KindMalformed, "magic header"},
		{"truncated header", []byte{0x00, 0x61, 0x73}, werrors.KindMalformed, "magic header"},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00}, werrors.KindMalformed, "unknown binary version"},
		{"unknown section", withHeader(0x0C, 0x00), werrors.KindMalformed, "malformed section id"},
		{"duplicate section", withHeader(0x01, 0x01, 0x00, 0x01, 0x01, 0x00), werrors.KindMalformed, "unexpected content"},
		{"out of order", withHeader(0x03, 0x01, 0x00, 0x01, 0x01, 0x00), werrors.KindMalformed, "unexpected content"},
		{"section too long", withHeader(0x01, 0x05, 0x00), werrors.KindMalformed, "length out of bounds"},
		{"section size mismatch", withHeader(0x01, 0x02, 0x00, 0x00), werrors.KindMalformed, "section size mismatch"},
		{"bad functype form", withHeader(0x01, 0x02, 0x01, 0x50), werrors.KindMalformed, "malformed function type"},
		{"bad value type", withHeader(0x01, 0x04, 0x01, 0x60, 0x01, 0x7B), werrors.KindMalformed, "malformed value type"},
		{"leb too long", withHeader(0x01, 0x06, 0x80, 0x80, 0x80, 0x80, 0x80, 0x00), werrors.KindOverflow, "too long"},
		{"truncated vector", withHeader(0x01, 0x01, 0x01), werrors.KindMalformed, "length out of bounds"},
		{"bad import kind", withHeader(0x02, 0x06, 0x01, 0x01, 'a', 0x01, 'b', 0x04), werrors.KindMalformed, "malformed import kind"},
		{"bad utf8 name", withHeader(0x02, 0x07, 0x01, 0x01, 0xFF, 0x01, 'b', 0x00, 0x00), werrors.KindInvalidUTF8, "UTF-8"},
		{"bad limits flag", withHeader(0x05, 0x03, 0x01, 0x02, 0x00), werrors.KindMalformed, "limits flags"},
		{"bad table elem", withHeader(0x04, 0x04, 0x01, 0x6F, 0x00, 0x00), werrors.KindMalformed, "reference type"},
		{"bad mutability", withHeader(0x06, 0x06, 0x01, 0x7F, 0x02, 0x41, 0x00, 0x0B), werrors.KindMalformed, "mutability"},
		{"function without code", withHeader(0x01, 0x04, 0x01, 0x60, 0x00, 0x00, 0x03, 0x02, 0x01, 0x00), werrors.KindMalformed, "inconsistent lengths"},
		{"code without function", withHeader(0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B), werrors.KindMalformed, "inconsistent lengths"},
		{"body missing end", withHeader(0x01, 0x04, 0x01, 0x60, 0x00, 0x00, 0x03, 0x02, 0x01, 0x00, 0x0A, 0x04, 0x01, 0x02, 0x00, 0x01), werrors.KindMalformed, "END opcode expected"},
		{"too many locals", withHeader(0x01, 0x04, 0x01, 0x60, 0x00, 0x00, 0x03, 0x02, 0x01, 0x00,
			0x0A, 0x0A, 0x01, 0x08, 0x02, 0x80, 0x80, 0x04, 0x7F, 0x01, 0x7F, 0x0B), werrors.KindMalformed, "too many locals"},
		{"bad export kind", withHeader(0x07, 0x05, 0x01, 0x01, 'f', 0x04, 0x00), werrors.KindMalformed, "malformed export kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := wasm.ParseModule(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if m != nil {
				t.Error("partial module returned with error")
			}
			var e *werrors.Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *errors.Error, got %T: %v", err, err)
			}
			if e.Phase != werrors.PhaseDecode {
				t.Errorf("phase = %s, want decode", e.Phase)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s (%v)", e.Kind, tt.kind, err)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.detail)
			}
		})
	}
}

func TestParseConstExprRequired(t *testing.T) {
	// (global i32 (i32.add)) uses a non-constant instruction.
	data := withHeader(0x06, 0x05, 0x01, 0x7F, 0x00, 0x6A, 0x0B)
	_, err := wasm.ParseModule(data)
	if !errors.Is(err, &werrors.Error{Phase: werrors.PhaseValidate, Kind: werrors.KindInvalidData}) {
		t.Fatalf("err = %v, want validate/invalid_data", err)
	}
	if !strings.Contains(err.Error(), "constant expression required") {
		t.Errorf("err = %v", err)
	}
}

func TestParseErrorOffset(t *testing.T) {
	data := withHeader(0x01, 0x04, 0x01, 0x60, 0x01, 0x7B)
	_, err := wasm.ParseModule(data)
	var e *werrors.Error
	if !errors.As(err, &e) {
		t.Fatalf("unexpected error type %T", err)
	}
	if !e.HasOffset() {
		t.Fatal("decode error has no offset")
	}
	// The error is reported just past the bad value type byte.
	if e.Offset != len(data) {
		t.Errorf("offset = %d, want %d", e.Offset, len(data))
	}
	if len(e.Path) == 0 || e.Path[0] != "type" {
		t.Errorf("path = %v, want [type]", e.Path)
	}
}

func TestParseCustomSectionsAnywhere(t *testing.T) {
	data := withHeader(
		0x00, 0x03, 0x01, 'a', 0x07,
		0x01, 0x01, 0x00,
		0x00, 0x02, 0x01, 'b',
	)
	m, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(m.CustomSections) != 2 {
		t.Fatalf("got %d custom sections, want 2", len(m.CustomSections))
	}
	if m.CustomSections[0].Name != "a" || len(m.CustomSections[0].Data) != 1 {
		t.Errorf("custom[0] = %+v", m.CustomSections[0])
	}
	if m.CustomSections[1].Name != "b" || len(m.CustomSections[1].Data) != 0 {
		t.Errorf("custom[1] = %+v", m.CustomSections[1])
	}
}

func TestParseFullModule(t *testing.T) {
	src := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "log", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "base", Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32}}},
		},
		Funcs:    []uint32{0, 1},
		Tables:   []wasm.TableType{{ElemType: wasm.ElemFuncRef, Limits: wasm.Limits{Min: 2, Max: ptrTo[uint32](4)}}},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: ptrTo[uint32](2)}}},
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true}, Init: wasm.ConstExpr{Opcode: wasm.OpI32Const, Value: 0xFFFFFFFF}},
			{Type: wasm.GlobalType{ValType: wasm.ValF64}, Init: wasm.ConstExpr{Opcode: wasm.OpF64Const, Value: 0x400921FB54442D18}},
		},
		Exports: []wasm.Export{
			{Name: "f", Kind: wasm.KindFunc, Idx: 1},
			{Name: "mem", Kind: wasm.KindMemory, Idx: 0},
		},
		Start: ptrTo[uint32](2),
		Elements: []wasm.Element{
			{Offset: wasm.ConstExpr{Opcode: wasm.OpGlobalGet, Value: 0}, FuncIdxs: []uint32{1, 2}},
		},
		Code: []wasm.FuncBody{
			{Locals: []wasm.LocalEntry{{Count: 2, ValType: wasm.ValI64}}, Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpEnd}},
			{Code: []byte{wasm.OpEnd}},
		},
		Data: []wasm.DataSegment{
			{Offset: wasm.ConstExpr{Opcode: wasm.OpI32Const, Value: 8}, Init: []byte("hello")},
		},
	}

	m, err := wasm.ParseModule(src.Encode())
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(m.Types) != 2 || !m.Types[0].Equal(src.Types[0]) {
		t.Errorf("types = %+v", m.Types)
	}
	if len(m.Imports) != 2 || m.Imports[1].Desc.Global == nil || m.Imports[1].Desc.Global.ValType != wasm.ValI32 {
		t.Errorf("imports = %+v", m.Imports)
	}
	if len(m.Tables) != 1 || m.Tables[0].Limits.Min != 2 || *m.Tables[0].Limits.Max != 4 {
		t.Errorf("tables = %+v", m.Tables)
	}
	if g := m.Globals[0]; !g.Type.Mutable || g.Init.Opcode != wasm.OpI32Const || g.Init.Value != 0xFFFFFFFF {
		t.Errorf("global[0] = %+v", g)
	}
	if g := m.Globals[1]; g.Init.Value != 0x400921FB54442D18 {
		t.Errorf("global[1] bits = %#x", g.Init.Value)
	}
	if m.Start == nil || *m.Start != 2 {
		t.Errorf("start = %v", m.Start)
	}
	if len(m.Elements) != 1 || m.Elements[0].Offset.Opcode != wasm.OpGlobalGet || len(m.Elements[0].FuncIdxs) != 2 {
		t.Errorf("elements = %+v", m.Elements)
	}
	if len(m.Code) != 2 || m.Code[0].Locals[0].Count != 2 || len(m.Code[0].Code) != 3 {
		t.Errorf("code = %+v", m.Code)
	}
	if m.Code[0].Offset <= 0 {
		t.Errorf("code offset = %d, want position in module", m.Code[0].Offset)
	}
	if string(m.Data[0].Init) != "hello" || m.Data[0].Offset.Value != 8 {
		t.Errorf("data = %+v", m.Data)
	}
}

func TestParseNegativeConst(t *testing.T) {
	src := &wasm.Module{
		Globals: []wasm.Global{
			{Type: wasm.GlobalType{ValType: wasm.ValI64}, Init: wasm.ConstExpr{Opcode: wasm.OpI64Const, Value: uint64(1<<64 - 5)}},
		},
	}
	m, err := wasm.ParseModule(src.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got := int64(m.Globals[0].Init.Value); got != -5 {
		t.Errorf("i64 init = %d, want -5", got)
	}
}
