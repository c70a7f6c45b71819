package memory

import (
	"encoding/binary"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm"
)

const (
	PageSize = wasm.PageSize
	MaxPages = wasm.MaxPages
)

// Memory is a linear memory of whole pages. It is not safe for concurrent
// use; an instance owns its memory for the duration of an invocation.
type Memory struct {
	data  []byte
	pages uint32
	max   uint32
	// declared is the module's own maximum, before the ceiling is applied.
	declared *uint32
}

// Ceiling returns the page count a memory may reach: the declared max, or
// limit pages when that is lower. A zero limit means MaxPages.
func Ceiling(max *uint32, limit uint32) uint32 {
	ceiling := uint32(MaxPages)
	if limit != 0 && limit < ceiling {
		ceiling = limit
	}
	if max != nil && *max < ceiling {
		ceiling = *max
	}
	return ceiling
}

// New allocates min zeroed pages. Growth stops at Ceiling(max, limit).
// Callers must reject min above that ceiling before calling New.
func New(min uint32, max *uint32, limit uint32) *Memory {
	ceiling := Ceiling(max, limit)
	return &Memory{
		data:     make([]byte, uint64(min)*PageSize),
		pages:    min,
		max:      ceiling,
		declared: max,
	}
}

// Size returns the current size in pages.
func (m *Memory) Size() uint32 {
	return m.pages
}

// Len returns the current size in bytes.
func (m *Memory) Len() uint64 {
	return uint64(len(m.data))
}

// Max returns the declared maximum, if the module gave one.
func (m *Memory) Max() (uint32, bool) {
	if m.declared == nil {
		return 0, false
	}
	return *m.declared, true
}

// Limit returns the number of pages Grow can reach.
func (m *Memory) Limit() uint32 {
	return m.max
}

// Grow adds delta pages and returns the previous size. Growth past the
// maximum fails without changing the memory.
func (m *Memory) Grow(delta uint32) (old uint32, ok bool) {
	old = m.pages
	if delta == 0 {
		return old, true
	}
	if uint64(old)+uint64(delta) > uint64(m.max) {
		return old, false
	}
	m.pages += delta
	grown := make([]byte, uint64(m.pages)*PageSize)
	copy(grown, m.data)
	m.data = grown
	return old, true
}

// Bytes exposes the backing buffer. It is invalidated by Grow.
func (m *Memory) Bytes() []byte {
	return m.data
}

func oob() error {
	return werrors.NewTrap(werrors.TrapMemoryOutOfBounds)
}

// slice bounds-checks an access of n bytes at effective address ea.
// Effective addresses are a 32-bit base plus a 32-bit offset, so they
// need 33 bits.
func (m *Memory) slice(ea uint64, n uint64) ([]byte, error) {
	if ea+n > uint64(len(m.data)) {
		return nil, oob()
	}
	return m.data[ea : ea+n], nil
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	b, err := m.slice(uint64(offset), uint64(length))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Write copies data to offset. Nothing is written when any byte would be
// out of bounds.
func (m *Memory) Write(offset uint32, data []byte) error {
	b, err := m.slice(uint64(offset), uint64(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *Memory) Load8(ea uint64) (uint8, error) {
	if ea >= uint64(len(m.data)) {
		return 0, oob()
	}
	return m.data[ea], nil
}

func (m *Memory) Load16(ea uint64) (uint16, error) {
	b, err := m.slice(ea, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (m *Memory) Load32(ea uint64) (uint32, error) {
	b, err := m.slice(ea, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *Memory) Load64(ea uint64) (uint64, error) {
	b, err := m.slice(ea, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *Memory) Store8(ea uint64, v uint8) error {
	if ea >= uint64(len(m.data)) {
		return oob()
	}
	m.data[ea] = v
	return nil
}

func (m *Memory) Store16(ea uint64, v uint16) error {
	b, err := m.slice(ea, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

func (m *Memory) Store32(ea uint64, v uint32) error {
	b, err := m.slice(ea, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (m *Memory) Store64(ea uint64, v uint64) error {
	b, err := m.slice(ea, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// The methods below serve host code addressing memory with plain offsets.

func (m *Memory) ReadU8(offset uint32) (uint8, error)   { return m.Load8(uint64(offset)) }
func (m *Memory) ReadU16(offset uint32) (uint16, error) { return m.Load16(uint64(offset)) }
func (m *Memory) ReadU32(offset uint32) (uint32, error) { return m.Load32(uint64(offset)) }
func (m *Memory) ReadU64(offset uint32) (uint64, error) { return m.Load64(uint64(offset)) }

func (m *Memory) WriteU8(offset uint32, v uint8) error   { return m.Store8(uint64(offset), v) }
func (m *Memory) WriteU16(offset uint32, v uint16) error { return m.Store16(uint64(offset), v) }
func (m *Memory) WriteU32(offset uint32, v uint32) error { return m.Store32(uint64(offset), v) }
func (m *Memory) WriteU64(offset uint32, v uint64) error { return m.Store64(uint64(offset), v) }
