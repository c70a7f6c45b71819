// Command wasmvm validates, inspects and runs WebAssembly 1.0 modules.
package main

import (
	"os"
)

func main() {
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.cmd.Execute(); err != nil {
		root.logger.Sync()
		os.Exit(1)
	}
}
