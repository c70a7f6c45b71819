package wasm_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wippyai/wasmvm/wasm"
)

func TestEncodeEmptyModule(t *testing.T) {
	got := (&wasm.Module{}).Encode()
	if !bytes.Equal(got, header) {
		t.Errorf("Encode() = %x, want %x", got, header)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	src := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}},
		Imports: []wasm.Import{
			{Module: "env", Name: "mem", Desc: wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}}}},
			{Module: "env", Name: "tbl", Desc: wasm.ImportDesc{Kind: wasm.KindTable, Table: &wasm.TableType{ElemType: wasm.ElemFuncRef, Limits: wasm.Limits{Min: 1}}}},
		},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "add", Kind: wasm.KindFunc, Idx: 0}},
		Code: []wasm.FuncBody{{Code: []byte{
			wasm.OpLocalGet, 0x00, wasm.OpLocalGet, 0x01, wasm.OpI32Add, wasm.OpEnd,
		}}},
		CustomSections: []wasm.CustomSection{{Name: "name", Data: []byte{0x01, 0x02}}},
	}

	first := src.Encode()
	m, err := wasm.ParseModule(first)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if diff := cmp.Diff(src, m, cmpopts.IgnoreFields(wasm.FuncBody{}, "Offset"), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if second := m.Encode(); !bytes.Equal(first, second) {
		t.Error("re-encoding a parsed module changed its bytes")
	}
}

func TestEncodeDefaultsTableElemType(t *testing.T) {
	src := &wasm.Module{Tables: []wasm.TableType{{Limits: wasm.Limits{Min: 3}}}}
	m, err := wasm.ParseModule(src.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if m.Tables[0].ElemType != wasm.ElemFuncRef {
		t.Errorf("elem type = %#x, want funcref", m.Tables[0].ElemType)
	}
}
