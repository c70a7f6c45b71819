package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasmvm/engine"
	"github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/runtime"
	"github.com/wippyai/wasmvm/wasm"
)

// entryPoints are tried in order when --invoke is not given.
var entryPoints = []string{"_start", "main"}

type runFlags struct {
	invoke      string
	args        []string
	crosscheck  bool
	interactive bool
}

func getCmdRun(c *rootCommand) *cobra.Command {
	flags := &runFlags{}
	runCmd := &cobra.Command{
		Use:   "run <file.wasm> [args...]",
		Short: "Instantiate a module and call an export",
		Long: `Instantiate a module, running its start function, then call an export.

  Arguments are written as value or value:type, for example 7, -1:i32,
  0xff:i64 or 2.5:f64. Without --invoke the first of _start and main that
  the module exports is called.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs := append(append([]string(nil), flags.args...), args[1:]...)
			return c.run(cmd.Context(), args[0], callArgs, flags)
		},
	}
	runCmd.Flags().StringVar(&flags.invoke, "invoke", "", "exported function to call")
	runCmd.Flags().StringSliceVar(&flags.args, "args", nil, "comma separated call arguments")
	runCmd.Flags().BoolVar(&flags.crosscheck, "crosscheck", false, "repeat the call on wazero and compare the outcome")
	runCmd.Flags().BoolVarP(&flags.interactive, "interactive", "i", false, "pick functions and arguments in a terminal UI")
	return runCmd
}

// newRuntime creates a runtime whose print host functions write to out.
func (c *rootCommand) newRuntime(ctx context.Context, out io.Writer) (*runtime.Runtime, error) {
	opts := append(c.config.runtimeOptions(), runtime.WithLogger(c.logger))
	rt, err := runtime.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := rt.RegisterHost(&printHost{w: out}); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return rt, nil
}

func (c *rootCommand) run(ctx context.Context, path string, args []string, flags *runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	out := c.stdout
	var captured *bytes.Buffer
	if flags.interactive {
		if f, ok := c.stdout.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal on stdout")
		}
		captured = &bytes.Buffer{}
		out = captured
	}

	rt, err := c.newRuntime(ctx, out)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	mod, err := rt.Compile(ctx, data)
	if err != nil {
		return err
	}
	if flags.interactive {
		return runInteractive(path, mod, captured)
	}

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return err
	}

	name := flags.invoke
	if name == "" {
		name = defaultEntryPoint(mod)
		if name == "" {
			c.logger.Info("module instantiated, no entry point to call", zap.String("file", path))
			return nil
		}
	}
	ft, ok := exportFuncType(mod, name)
	if !ok {
		return errors.NotFound(errors.PhaseRuntime, "export function", name)
	}
	slots, err := parseArgs(args, ft)
	if err != nil {
		return err
	}

	results, callErr := inst.CallRaw(ctx, name, slots...)
	if callErr == nil {
		fmt.Fprintln(c.stdout, formatResults(results, ft))
	}

	if flags.crosscheck {
		if err := c.crosscheck(ctx, data, name, slots, ft, results, callErr); err != nil {
			return err
		}
	}
	if callErr != nil {
		return fmt.Errorf("call %s: %w", name, callErr)
	}
	return nil
}

func defaultEntryPoint(mod *runtime.Module) string {
	exports := exportedFuncs(mod)
	for _, want := range entryPoints {
		for _, name := range exports {
			if name == want {
				return name
			}
		}
	}
	return ""
}

// crosscheck repeats a call on a fresh wazero instance. The module's own
// start function runs again there, so host output is discarded.
func (c *rootCommand) crosscheck(ctx context.Context, data []byte, name string, args []uint64, ft wasm.FuncType, results []uint64, callErr error) error {
	e, err := engine.NewWazeroEngineWithConfig(ctx, &engine.Config{MemoryLimitPages: c.config.MaxMemoryPages})
	if err != nil {
		return err
	}
	defer e.Close(ctx)

	ref, err := e.Load(ctx, data, referenceHosts(io.Discard))
	if err != nil {
		return fmt.Errorf("crosscheck: %w", err)
	}
	defer ref.Close(ctx)
	want, wantErr := ref.Call(ctx, name, args)

	ours := describeOutcome(results, callErr, ft)
	theirs := describeOutcome(want, wantErr, ft)
	if !sameOutcome(results, callErr, want, wantErr, ft) {
		return fmt.Errorf("crosscheck mismatch: wasmvm %s, wazero %s", ours, theirs)
	}
	fmt.Fprintf(c.stderr, "crosscheck ok: %s\n", theirs)
	return nil
}

func describeOutcome(results []uint64, err error, ft wasm.FuncType) string {
	if err == nil {
		return formatResults(results, ft)
	}
	if trap, ok := errors.AsTrap(err); ok {
		return "trap " + string(trap.Kind)
	}
	return "error " + err.Error()
}

func sameOutcome(a []uint64, aErr error, b []uint64, bErr error, ft wasm.FuncType) bool {
	if aErr != nil || bErr != nil {
		ta, ok1 := errors.AsTrap(aErr)
		tb, ok2 := errors.AsTrap(bErr)
		return ok1 && ok2 && engine.SameTrap(ta.Kind, tb.Kind)
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		// NaN payloads may legitimately differ between engines.
		switch ft.Results[i] {
		case wasm.ValF32:
			if math.IsNaN(float64(math.Float32frombits(uint32(a[i])))) &&
				math.IsNaN(float64(math.Float32frombits(uint32(b[i])))) {
				continue
			}
		case wasm.ValF64:
			if math.IsNaN(math.Float64frombits(a[i])) && math.IsNaN(math.Float64frombits(b[i])) {
				continue
			}
		}
		return false
	}
	return true
}
