package memory

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/wasmvm"
	werrors "github.com/wippyai/wasmvm/errors"
)

var (
	_ wasmvm.Memory       = (*Memory)(nil)
	_ wasmvm.MemorySizer  = (*Memory)(nil)
	_ wasmvm.MemoryGrower = (*Memory)(nil)
)

func ptr(v uint32) *uint32 { return &v }

func isOOB(err error) bool {
	return errors.Is(err, werrors.NewTrap(werrors.TrapMemoryOutOfBounds))
}

func TestNew(t *testing.T) {
	m := New(2, nil, 0)
	if m.Size() != 2 {
		t.Errorf("Size() = %d, want 2", m.Size())
	}
	if m.Len() != 2*PageSize {
		t.Errorf("Len() = %d, want %d", m.Len(), 2*PageSize)
	}
	if _, ok := m.Max(); ok {
		t.Error("Max() reported a maximum for an unbounded memory")
	}
	if m.Limit() != MaxPages {
		t.Errorf("Limit() = %d, want %d", m.Limit(), MaxPages)
	}
	for _, b := range m.Bytes() {
		if b != 0 {
			t.Fatal("new memory is not zeroed")
		}
	}
}

func TestCeiling(t *testing.T) {
	tests := []struct {
		name  string
		max   *uint32
		limit uint32
		want  uint32
	}{
		{"unbounded", nil, 0, MaxPages},
		{"declared max", ptr(7), 0, 7},
		{"limit", nil, 3, 3},
		{"limit below max", ptr(10), 4, 4},
		{"max below limit", ptr(2), 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ceiling(tt.max, tt.limit); got != tt.want {
				t.Errorf("Ceiling = %d, want %d", got, tt.want)
			}
			if got := New(0, tt.max, tt.limit).Limit(); got != tt.want {
				t.Errorf("Limit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGrow(t *testing.T) {
	tests := []struct {
		name    string
		min     uint32
		max     *uint32
		limit   uint32
		delta   uint32
		wantOld uint32
		wantOK  bool
		size    uint32
	}{
		{"within max", 1, ptr(3), 0, 2, 1, true, 3},
		{"past max", 1, ptr(2), 0, 2, 1, false, 1},
		{"zero delta", 1, ptr(1), 0, 0, 1, true, 1},
		{"ceiling below max", 1, ptr(10), 4, 4, 1, false, 1},
		{"up to ceiling", 1, nil, 4, 3, 1, true, 4},
		{"unbounded overflow", 1, nil, 0, 0xFFFFFFFF, 1, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.min, tt.max, tt.limit)
			old, ok := m.Grow(tt.delta)
			if old != tt.wantOld || ok != tt.wantOK {
				t.Errorf("Grow(%d) = (%d, %v), want (%d, %v)", tt.delta, old, ok, tt.wantOld, tt.wantOK)
			}
			if m.Size() != tt.size {
				t.Errorf("Size() = %d, want %d", m.Size(), tt.size)
			}
			if m.Len() != uint64(tt.size)*PageSize {
				t.Errorf("Len() = %d, want %d", m.Len(), uint64(tt.size)*PageSize)
			}
		})
	}
}

func TestGrowPreservesContents(t *testing.T) {
	m := New(1, nil, 0)
	if err := m.Write(PageSize-3, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Grow(1); !ok {
		t.Fatal("Grow failed")
	}
	got, err := m.Read(PageSize-3, 4)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 0}, got); diff != "" {
		t.Errorf("contents after grow (-want +got):\n%s", diff)
	}
}

func TestLittleEndian(t *testing.T) {
	m := New(1, nil, 0)
	if err := m.Store64(8, 0x0807060504030201); err != nil {
		t.Fatal(err)
	}
	raw, _ := m.Read(8, 8)
	if diff := cmp.Diff([]byte{1, 2, 3, 4, 5, 6, 7, 8}, raw); diff != "" {
		t.Errorf("byte order (-want +got):\n%s", diff)
	}
	if v, _ := m.Load32(10); v != 0x06050403 {
		t.Errorf("Load32(10) = %#x", v)
	}
	if v, _ := m.Load16(8); v != 0x0201 {
		t.Errorf("Load16(8) = %#x", v)
	}
	if v, _ := m.ReadU8(15); v != 8 {
		t.Errorf("ReadU8(15) = %d", v)
	}
	if err := m.WriteU32(0, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadU32(0); v != 0xDEADBEEF {
		t.Errorf("ReadU32(0) = %#x", v)
	}
}

func TestBounds(t *testing.T) {
	m := New(1, nil, 0)
	last := uint64(PageSize)

	tests := []struct {
		name string
		op   func() error
		oob  bool
	}{
		{"load8 last byte", func() error { _, err := m.Load8(last - 1); return err }, false},
		{"load8 past end", func() error { _, err := m.Load8(last); return err }, true},
		{"load32 straddles end", func() error { _, err := m.Load32(last - 3); return err }, true},
		{"load32 fits", func() error { _, err := m.Load32(last - 4); return err }, false},
		{"load64 beyond 32-bit", func() error { _, err := m.Load64(1 << 32); return err }, true},
		{"store16 straddles end", func() error { return m.Store16(last-1, 1) }, true},
		{"store64 fits", func() error { return m.Store64(last-8, 1) }, false},
		{"read past end", func() error { _, err := m.Read(PageSize-1, 2); return err }, true},
		{"write empty at end", func() error { return m.Write(PageSize, nil) }, false},
		{"write huge offset", func() error { return m.Write(0xFFFFFFFF, []byte{1}) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			if tt.oob != isOOB(err) {
				t.Errorf("err = %v, want out of bounds = %v", err, tt.oob)
			}
		})
	}
}

func TestWriteOutOfBoundsLeavesMemory(t *testing.T) {
	m := New(1, nil, 0)
	if err := m.Write(PageSize-2, []byte{9, 9, 9}); !isOOB(err) {
		t.Fatalf("expected trap, got %v", err)
	}
	if got, _ := m.Read(PageSize-2, 2); got[0] != 0 || got[1] != 0 {
		t.Errorf("partial write happened: %v", got)
	}
}

func TestReadReturnsCopy(t *testing.T) {
	m := New(1, nil, 0)
	b, _ := m.Read(0, 1)
	b[0] = 42
	if v, _ := m.Load8(0); v != 0 {
		t.Error("Read aliased the backing buffer")
	}
}
