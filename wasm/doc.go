// Package wasm provides WebAssembly 1.0 binary format parsing and encoding.
//
// This package is the module builder of the VM: it turns a binary module
// into a structured Module (types, imports, functions, tables, memories,
// globals, exports, element and data segments, start function) and can
// encode a Module back to binary. It does no type checking; run the
// validator package over a parsed module before executing anything.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Malformed input yields a decode-phase *errors.Error carrying the section
// name and byte offset. A partially built Module is never returned.
//
// # Encoding
//
// Round-trip parsing and encoding preserves module semantics:
//
//	original, _ := wasm.ParseModule(data)
//	roundtrip, _ := wasm.ParseModule(original.Encode())
//
// # Instructions
//
// Function bodies stay as raw bytes in FuncBody.Code. InstrReader decodes
// one instruction at a time, which is how the validator walks a body in a
// single pass:
//
//	ir := wasm.NewInstrReader(body.Code)
//	for {
//	    ins, err := ir.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// DecodeInstructions and EncodeInstructions convert whole bodies.
package wasm
