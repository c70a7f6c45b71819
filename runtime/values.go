package runtime

import (
	"fmt"
	"math"
	"reflect"

	"github.com/wippyai/wasmvm/wasm"
)

// toSlot converts a Go argument to the raw slot of type t. Untyped int is
// accepted for i32 and i64 when it fits.
func toSlot(arg any, t wasm.ValType) (uint64, error) {
	switch t {
	case wasm.ValI32:
		switch v := arg.(type) {
		case int32:
			return uint64(uint32(v)), nil
		case uint32:
			return uint64(v), nil
		case int:
			if int64(v) < math.MinInt32 || int64(v) > math.MaxUint32 {
				return 0, fmt.Errorf("%d overflows i32", v)
			}
			return uint64(uint32(v)), nil
		}
	case wasm.ValI64:
		switch v := arg.(type) {
		case int64:
			return uint64(v), nil
		case uint64:
			return v, nil
		case int:
			return uint64(int64(v)), nil
		case int32:
			return uint64(int64(v)), nil
		case uint32:
			return uint64(v), nil
		}
	case wasm.ValF32:
		if v, ok := arg.(float32); ok {
			return uint64(math.Float32bits(v)), nil
		}
	case wasm.ValF64:
		switch v := arg.(type) {
		case float64:
			return math.Float64bits(v), nil
		case float32:
			return math.Float64bits(float64(v)), nil
		}
	}
	return 0, fmt.Errorf("cannot use %T as %s", arg, t)
}

// fromSlot converts a raw result to int32, int64, float32 or float64.
func fromSlot(bits uint64, t wasm.ValType) any {
	switch t {
	case wasm.ValI32:
		return int32(uint32(bits))
	case wasm.ValI64:
		return int64(bits)
	case wasm.ValF32:
		return math.Float32frombits(uint32(bits))
	default:
		return math.Float64frombits(bits)
	}
}

// valTypeOf maps a Go parameter or result type of a host function.
func valTypeOf(t reflect.Type) (wasm.ValType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return wasm.ValI32, true
	case reflect.Int64, reflect.Uint64:
		return wasm.ValI64, true
	case reflect.Float32:
		return wasm.ValF32, true
	case reflect.Float64:
		return wasm.ValF64, true
	default:
		return 0, false
	}
}

func reflectToSlot(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int32:
		return uint64(uint32(int32(v.Int())))
	case reflect.Uint32:
		return uint64(uint32(v.Uint()))
	case reflect.Int64:
		return uint64(v.Int())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return uint64(math.Float32bits(float32(v.Float())))
	default:
		return math.Float64bits(v.Float())
	}
}

func reflectFromSlot(bits uint64, t reflect.Type) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32:
		v.SetInt(int64(int32(uint32(bits))))
	case reflect.Uint32:
		v.SetUint(uint64(uint32(bits)))
	case reflect.Int64:
		v.SetInt(int64(bits))
	case reflect.Uint64:
		v.SetUint(bits)
	case reflect.Float32:
		v.SetFloat(float64(math.Float32frombits(uint32(bits))))
	default:
		v.SetFloat(math.Float64frombits(bits))
	}
	return v
}
