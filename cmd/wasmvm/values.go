package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasmvm/runtime"
	"github.com/wippyai/wasmvm/wasm"
)

// parseValType accepts the text names i32, i64, f32 and f64.
func parseValType(s string) (wasm.ValType, bool) {
	switch s {
	case "i32":
		return wasm.ValI32, true
	case "i64":
		return wasm.ValI64, true
	case "f32":
		return wasm.ValF32, true
	case "f64":
		return wasm.ValF64, true
	default:
		return 0, false
	}
}

// parseArg converts "value" or "value:type" to a raw slot of type want.
// Integers may be negative or hex prefixed; floats accept nan and inf.
func parseArg(arg string, want wasm.ValType) (uint64, error) {
	text := arg
	if i := strings.LastIndexByte(arg, ':'); i >= 0 {
		t, ok := parseValType(arg[i+1:])
		if !ok {
			return 0, fmt.Errorf("argument %q: unknown type %q", arg, arg[i+1:])
		}
		if t != want {
			return 0, fmt.Errorf("argument %q: expected %s", arg, want)
		}
		text = arg[:i]
	}

	switch want {
	case wasm.ValI32:
		v, err := parseInt(text, 32)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", arg, err)
		}
		return uint64(uint32(v)), nil
	case wasm.ValI64:
		v, err := parseInt(text, 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", arg, err)
		}
		return v, nil
	case wasm.ValF32:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", arg, err)
		}
		return uint64(math.Float32bits(float32(v))), nil
	default:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", arg, err)
		}
		return math.Float64bits(v), nil
	}
}

// parseInt accepts both signed and unsigned spellings of a bits-wide value.
func parseInt(s string, bits int) (uint64, error) {
	if v, err := strconv.ParseInt(s, 0, bits); err == nil {
		return uint64(v), nil
	}
	return strconv.ParseUint(s, 0, bits)
}

func parseArgs(args []string, ft wasm.FuncType) ([]uint64, error) {
	if len(args) != len(ft.Params) {
		return nil, fmt.Errorf("function %s takes %d arguments, got %d", ft, len(ft.Params), len(args))
	}
	slots := make([]uint64, len(args))
	for i, a := range args {
		v, err := parseArg(a, ft.Params[i])
		if err != nil {
			return nil, err
		}
		slots[i] = v
	}
	return slots, nil
}

func formatValue(bits uint64, t wasm.ValType) string {
	switch t {
	case wasm.ValI32:
		return strconv.FormatInt(int64(int32(uint32(bits))), 10) + ":i32"
	case wasm.ValI64:
		return strconv.FormatInt(int64(bits), 10) + ":i64"
	case wasm.ValF32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(bits))), 'g', -1, 32) + ":f32"
	default:
		return strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64) + ":f64"
	}
}

func formatResults(results []uint64, ft wasm.FuncType) string {
	if len(results) == 0 {
		return "()"
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = formatValue(r, ft.Results[i])
	}
	return strings.Join(parts, " ")
}

// exportFuncType returns the signature of the exported function name.
func exportFuncType(mod *runtime.Module, name string) (wasm.FuncType, bool) {
	compiled := mod.Validated()
	for _, exp := range compiled.Raw.Exports {
		if exp.Kind == wasm.KindFunc && exp.Name == name {
			return compiled.FuncType(exp.Idx)
		}
	}
	return wasm.FuncType{}, false
}

// exportedFuncs lists exported function names in declaration order.
func exportedFuncs(mod *runtime.Module) []string {
	var names []string
	for _, exp := range mod.Validated().Raw.Exports {
		if exp.Kind == wasm.KindFunc {
			names = append(names, exp.Name)
		}
	}
	return names
}
