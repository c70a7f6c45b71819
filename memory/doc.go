// Package memory implements WebAssembly linear memory.
//
// A Memory is a single byte buffer sized in 64 KiB pages. Every access is
// bounds-checked against the current size and fails with an
// "out of bounds memory access" trap; addresses are run-time values, so
// this is never a validation error. Growth beyond the declared maximum or
// the configured ceiling fails without trapping, and memory.grow reports
// it to the program as -1.
//
// Load and Store methods take 64-bit effective addresses (base plus static
// offset) as computed by the interpreter. The ReadUxx and WriteUxx methods
// implement wasmvm.Memory for host functions.
package memory
