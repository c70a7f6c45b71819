package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasmvm/validator"
	"github.com/wippyai/wasmvm/wasm"
)

type inspectFlags struct {
	exportsOnly bool
	importsOnly bool
	verbose     bool
}

func getCmdInspect(c *rootCommand) *cobra.Command {
	flags := &inspectFlags{}
	inspectCmd := &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "Describe the structure of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.exportsOnly && flags.importsOnly {
				return fmt.Errorf("--exports-only and --imports-only are exclusive")
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			m, err := validator.Validate(data)
			if err != nil {
				return err
			}
			inspect(c.stdout, m, flags)
			return nil
		},
	}
	inspectCmd.Flags().BoolVar(&flags.exportsOnly, "exports-only", false, "only list exports")
	inspectCmd.Flags().BoolVar(&flags.importsOnly, "imports-only", false, "only list imports")
	inspectCmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "add per-function instruction and branch counts")
	return inspectCmd
}

func inspect(w io.Writer, m *validator.Module, flags *inspectFlags) {
	raw := m.Raw
	switch {
	case flags.exportsOnly:
		writeExports(w, m)
		return
	case flags.importsOnly:
		writeImports(w, raw)
		return
	}

	fmt.Fprintf(w, "Types (%d):\n", len(raw.Types))
	for i, t := range raw.Types {
		fmt.Fprintf(w, "  %d: %s\n", i, t)
	}
	writeImports(w, raw)

	fmt.Fprintf(w, "Functions (%d defined, %d imported):\n", len(m.Funcs), m.NumImportedFuncs)
	for _, fn := range m.Funcs {
		fmt.Fprintf(w, "  %d: %s", fn.Index, fn.Type)
		if flags.verbose {
			fmt.Fprintf(w, " locals=%d instructions=%d max_stack=%d branches=%d",
				len(fn.Locals), len(fn.Code), fn.MaxHeight, fn.Side.NumEntries())
		}
		fmt.Fprintln(w)
	}

	for i, t := range raw.Tables {
		fmt.Fprintf(w, "Table %d: funcref %s\n", i, limitsString(t.Limits))
	}
	for i, mem := range raw.Memories {
		fmt.Fprintf(w, "Memory %d: %s pages\n", i, limitsString(mem.Limits))
	}
	if len(m.Globals) > 0 {
		fmt.Fprintf(w, "Globals (%d):\n", len(m.Globals))
		for i, g := range m.Globals {
			mut := ""
			if g.Mutable {
				mut = "mut "
			}
			fmt.Fprintf(w, "  %d: %s%s\n", i, mut, g.ValType)
		}
	}
	writeExports(w, m)
	if raw.Start != nil {
		fmt.Fprintf(w, "Start: func %d\n", *raw.Start)
	}
	if flags.verbose {
		fmt.Fprintf(w, "Element segments: %d\nData segments: %d\n", len(raw.Elements), len(raw.Data))
		for _, cs := range raw.CustomSections {
			fmt.Fprintf(w, "Custom section %q: %d bytes\n", cs.Name, len(cs.Data))
		}
	}
}

func writeImports(w io.Writer, raw *wasm.Module) {
	fmt.Fprintf(w, "Imports (%d):\n", len(raw.Imports))
	for _, imp := range raw.Imports {
		var desc string
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			desc = raw.Types[imp.Desc.TypeIdx].String()
		case wasm.KindTable:
			desc = "funcref " + limitsString(imp.Desc.Table.Limits)
		case wasm.KindMemory:
			desc = limitsString(imp.Desc.Memory.Limits) + " pages"
		case wasm.KindGlobal:
			desc = imp.Desc.Global.ValType.String()
			if imp.Desc.Global.Mutable {
				desc = "mut " + desc
			}
		}
		fmt.Fprintf(w, "  %s.%s: %s %s\n", imp.Module, imp.Name, wasm.KindName(imp.Desc.Kind), desc)
	}
}

func writeExports(w io.Writer, m *validator.Module) {
	fmt.Fprintf(w, "Exports (%d):\n", len(m.Raw.Exports))
	for _, exp := range m.Raw.Exports {
		var b strings.Builder
		fmt.Fprintf(&b, "  %s: %s %d", exp.Name, wasm.KindName(exp.Kind), exp.Idx)
		if exp.Kind == wasm.KindFunc {
			if ft, ok := m.FuncType(exp.Idx); ok {
				b.WriteString(" " + ft.String())
			}
		}
		fmt.Fprintln(w, b.String())
	}
}

func limitsString(l wasm.Limits) string {
	if l.Max == nil {
		return fmt.Sprintf("min=%d", l.Min)
	}
	return fmt.Sprintf("min=%d max=%d", l.Min, *l.Max)
}
