package main

import (
	"context"
	"fmt"
	"io"
	"math"

	wasmvm "github.com/wippyai/wasmvm"
	"github.com/wippyai/wasmvm/engine"
	"github.com/wippyai/wasmvm/wasm"
)

// printHost provides env.print_i32, env.print_i64, env.print_f32 and
// env.print_f64 to the modules the CLI runs.
type printHost struct {
	w io.Writer
}

func (h *printHost) Namespace() string { return "env" }

func (h *printHost) PrintI32(v int32) { fmt.Fprintln(h.w, v) }

func (h *printHost) PrintI64(v int64) { fmt.Fprintln(h.w, v) }

func (h *printHost) PrintF32(v float32) { fmt.Fprintln(h.w, v) }

func (h *printHost) PrintF64(v float64) { fmt.Fprintln(h.w, v) }

// referenceHosts mirrors printHost for the wazero engine. Output goes to w
// so a crosscheck run does not print twice.
func referenceHosts(w io.Writer) engine.Hosts {
	printer := func(t wasm.ValType, format func(uint64) any) engine.HostFunc {
		return engine.HostFunc{
			Params: []wasm.ValType{t},
			Fn: func(_ context.Context, _ wasmvm.Memory, stack []uint64) error {
				_, err := fmt.Fprintln(w, format(stack[0]))
				return err
			},
		}
	}
	return engine.Hosts{"env": {
		"print_i32": printer(wasm.ValI32, func(v uint64) any { return int32(uint32(v)) }),
		"print_i64": printer(wasm.ValI64, func(v uint64) any { return int64(v) }),
		"print_f32": printer(wasm.ValF32, func(v uint64) any { return math.Float32frombits(uint32(v)) }),
		"print_f64": printer(wasm.ValF64, func(v uint64) any { return math.Float64frombits(v) }),
	}}
}
