package sidetable

import "fmt"

// Entry describes one resolved control transfer.
type Entry struct {
	// Target is the instruction position execution continues at.
	Target uint32
	// Drop is the number of operand values discarded below the kept ones.
	Drop uint32
	// Keep is the number of values preserved on top of the stack.
	Keep uint32
}

const noEntry = -1

// Table maps instruction positions of one function to their entries.
// It is immutable once built and safe for concurrent readers.
type Table struct {
	index   []int32
	entries []Entry
}

// Lookup returns the entry for the branch or structural instruction at pos.
// A miss means the validator failed to cover pos, which is a bug, so it panics.
func (t *Table) Lookup(pos uint32) Entry {
	if int(pos) < len(t.index) {
		if i := t.index[pos]; i != noEntry {
			return t.entries[i]
		}
	}
	panic(fmt.Sprintf("sidetable: no entry at position %d", pos))
}

// LookupTable returns arm i of the br_table at pos. Arms are stored as
// consecutive entries; the last one is the default target, and any i past
// the explicit labels selects it.
func (t *Table) LookupTable(pos uint32, i, labels uint32) Entry {
	if i > labels {
		i = labels
	}
	if int(pos) < len(t.index) {
		if base := t.index[pos]; base != noEntry {
			return t.entries[uint32(base)+i]
		}
	}
	panic(fmt.Sprintf("sidetable: no br_table entry at position %d", pos))
}

// Has reports whether pos owns an entry.
func (t *Table) Has(pos uint32) bool {
	return int(pos) < len(t.index) && t.index[pos] != noEntry
}

// Len returns the number of instruction positions covered.
func (t *Table) Len() int {
	return len(t.index)
}

// NumEntries returns the number of packed entries.
func (t *Table) NumEntries() int {
	return len(t.entries)
}

// Entries returns a copy of the packed entries in emission order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Builder accumulates entries while a function is validated.
type Builder struct {
	index   []int32
	entries []Entry
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Emit records a single entry for pos and returns its packed index so the
// target can be patched once a forward label is resolved.
func (b *Builder) Emit(pos uint32, e Entry) int {
	return b.EmitRun(pos, []Entry{e})
}

// EmitRun records consecutive entries owned by pos, as used by br_table.
// It returns the packed index of the first one.
func (b *Builder) EmitRun(pos uint32, es []Entry) int {
	b.grow(pos)
	if b.index[pos] != noEntry {
		panic(fmt.Sprintf("sidetable: position %d emitted twice", pos))
	}
	first := len(b.entries)
	b.index[pos] = int32(first)
	b.entries = append(b.entries, es...)
	return first
}

// PatchTarget sets the target of a previously emitted entry.
func (b *Builder) PatchTarget(entry int, target uint32) {
	b.entries[entry].Target = target
}

// Build freezes the table for a function of n instructions.
func (b *Builder) Build(n int) *Table {
	if n > 0 {
		b.grow(uint32(n - 1))
	}
	t := &Table{
		index:   b.index[:n:n],
		entries: b.entries[:len(b.entries):len(b.entries)],
	}
	b.index, b.entries = nil, nil
	return t
}

func (b *Builder) grow(pos uint32) {
	for uint32(len(b.index)) <= pos {
		b.index = append(b.index, noEntry)
	}
}
