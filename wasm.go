package wasmvm

// Memory represents WASM linear memory as seen by host code.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of WASM linear memory in pages.
type MemorySizer interface {
	Size() uint32
}

// MemoryGrower grows WASM linear memory by whole pages.
type MemoryGrower interface {
	Grow(delta uint32) (old uint32, ok bool)
}
