package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// LEB128 decoding errors. The messages follow the reference test suite.
var (
	ErrOverflow    = errors.New("integer representation too long")
	ErrTooLarge    = errors.New("integer too large")
	ErrInvalidUTF8 = errors.New("malformed UTF-8 encoding")
)

// Reader is a cursor over a byte slice with WASM-specific read methods.
// Positions are reported relative to base so nested readers can report
// offsets within the enclosing module.
type Reader struct {
	data []byte
	pos  int
	base int
}

// NewReader creates a new Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NewReaderAt creates a Reader whose positions start at base.
func NewReaderAt(data []byte, base int) *Reader {
	return &Reader{data: data, base: base}
}

// Position returns the current absolute byte position.
func (r *Reader) Position() int {
	return r.base + r.pos
}

// Offset returns the position relative to the start of data.
func (r *Reader) Offset() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Reset seeks to the given offset relative to the start of data.
func (r *Reader) Reset(offset int) error {
	if offset < 0 || offset > len(r.data) {
		return fmt.Errorf("reset to %d outside [0,%d]", offset, len(r.data))
	}
	r.pos = offset
	return nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	return r.data[r.pos], nil
}

// ReadBytes reads exactly n bytes. The returned slice aliases the input.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU32 reads an unsigned LEB128 encoded uint32.
func (r *Reader) ReadU32() (uint32, error) {
	var result uint32
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, r.eof(err)
		}
		if shift == 28 {
			if b&0x80 != 0 {
				return 0, r.wrapError(ErrOverflow)
			}
			if b&0x70 != 0 {
				return 0, r.wrapError(ErrTooLarge)
			}
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// ReadU64 reads an unsigned LEB128 encoded uint64.
func (r *Reader) ReadU64() (uint64, error) {
	var result uint64
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, r.eof(err)
		}
		if shift == 63 {
			if b&0x80 != 0 {
				return 0, r.wrapError(ErrOverflow)
			}
			if b&0x7e != 0 {
				return 0, r.wrapError(ErrTooLarge)
			}
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// ReadS32 reads a signed LEB128 encoded int32.
func (r *Reader) ReadS32() (int32, error) {
	var result int32
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, r.eof(err)
		}
		if shift == 28 {
			if b&0x80 != 0 {
				return 0, r.wrapError(ErrOverflow)
			}
			// Unused high bits must replicate the sign bit.
			if hi := b & 0x78; hi != 0 && hi != 0x78 {
				return 0, r.wrapError(ErrTooLarge)
			}
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= ^int32(0) << shift
			}
			return result, nil
		}
	}
}

// ReadS64 reads a signed LEB128 encoded int64.
func (r *Reader) ReadS64() (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, r.eof(err)
		}
		if shift == 63 {
			if b&0x80 != 0 {
				return 0, r.wrapError(ErrOverflow)
			}
			if hi := b & 0x7f; hi != 0 && hi != 0x7f {
				return 0, r.wrapError(ErrTooLarge)
			}
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= ^int64(0) << shift
			}
			return result, nil
		}
	}
}

// ReadName reads a UTF-8 encoded name (length-prefixed byte sequence).
func (r *Reader) ReadName() (string, error) {
	length, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	data, err := r.ReadBytes(int(length))
	if err != nil {
		return "", r.wrapError(err)
	}
	if !utf8.Valid(data) {
		return "", r.wrapError(ErrInvalidUTF8)
	}
	return string(data), nil
}

// ReadU32LE reads a little-endian uint32 (fixed 4 bytes).
func (r *Reader) ReadU32LE() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadU64LE reads a little-endian uint64 (fixed 8 bytes).
func (r *Reader) ReadU64LE() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadF32 reads an IEEE 754 binary32 value. The bit pattern is preserved.
func (r *Reader) ReadF32() (float32, error) {
	bits, err := r.ReadU32LE()
	if err != nil {
		return 0, r.wrapError(err)
	}
	return math.Float32frombits(bits), nil
}

// ReadF64 reads an IEEE 754 binary64 value. The bit pattern is preserved.
func (r *Reader) ReadF64() (float64, error) {
	bits, err := r.ReadU64LE()
	if err != nil {
		return 0, r.wrapError(err)
	}
	return math.Float64frombits(bits), nil
}

// ReadRemaining reads all remaining bytes from the reader.
func (r *Reader) ReadRemaining() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

func (r *Reader) eof(err error) error {
	if errors.Is(err, io.EOF) {
		return r.wrapError(io.ErrUnexpectedEOF)
	}
	return r.wrapError(err)
}

func (r *Reader) wrapError(err error) error {
	return &ParseError{Position: r.Position(), Err: err}
}

// ParseError represents an error during binary parsing with position information.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("wasm: %s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("wasm: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError with the current position. An error that
// already carries a position keeps it and gains the section name.
func (r *Reader) WrapError(section string, err error) error {
	var pe *ParseError
	if errors.As(err, &pe) {
		if pe.Section == "" {
			pe.Section = section
		}
		return pe
	}
	return &ParseError{
		Position: r.Position(),
		Section:  section,
		Err:      err,
	}
}
