package byteio

import (
	"encoding/binary"

	"github.com/smoftools/smof/internal/errs"
)

// Reader is a bounds-checked little-endian cursor over an immutable byte
// slice. Every accessor verifies offset+width <= len(data) before reading.
type Reader struct {
	data []byte
	off  int
}

// NewReader wraps data for sequential, bounds-checked reads starting at
// offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Len returns the total length of the underlying slice.
func (r *Reader) Len() int { return len(r.data) }

// Offset returns the current read cursor.
func (r *Reader) Offset() int { return r.off }

// Seek moves the cursor to an absolute offset without reading. It does not
// bounds-check off itself; subsequent reads will fail if the offset is out
// of range for their width.
func (r *Reader) Seek(off int) { r.off = off }

func (r *Reader) require(off, width int) error {
	if off < 0 || width < 0 || off+width > len(r.data) {
		return errs.At(errs.Truncated, "read past end of buffer", int64(off), nil)
	}
	return nil
}

// U8 reads one byte at the cursor and advances it.
func (r *Reader) U8() (uint8, error) {
	if err := r.require(r.off, 1); err != nil {
		return 0, err
	}
	v := r.data[r.off]
	r.off++
	return v, nil
}

// U16 reads a little-endian uint16 at the cursor and advances it.
func (r *Reader) U16() (uint16, error) {
	if err := r.require(r.off, 2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

// U32 reads a little-endian uint32 at the cursor and advances it.
func (r *Reader) U32() (uint32, error) {
	if err := r.require(r.off, 4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// U64 reads a little-endian uint64 at the cursor and advances it.
func (r *Reader) U64() (uint64, error) {
	if err := r.require(r.off, 8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

// Bytes reads n raw bytes at the cursor and advances it. The returned slice
// aliases the reader's backing array; callers that need an independent copy
// must clone it (the arena-backed codecs copy into arena allocations).
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.require(r.off, n); err != nil {
		return nil, err
	}
	v := r.data[r.off : r.off+n]
	r.off += n
	return v, nil
}

// At reads width bytes at an absolute offset without moving the cursor.
func (r *Reader) At(off, width int) ([]byte, error) {
	if err := r.require(off, width); err != nil {
		return nil, err
	}
	return r.data[off : off+width], nil
}

// U8At reads one byte at an absolute offset without moving the cursor.
func (r *Reader) U8At(off int) (uint8, error) {
	if err := r.require(off, 1); err != nil {
		return 0, err
	}
	return r.data[off], nil
}

// U16At reads a little-endian uint16 at an absolute offset.
func (r *Reader) U16At(off int) (uint16, error) {
	if err := r.require(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.data[off:]), nil
}

// U32At reads a little-endian uint32 at an absolute offset.
func (r *Reader) U32At(off int) (uint32, error) {
	if err := r.require(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.data[off:]), nil
}

// U64At reads a little-endian uint64 at an absolute offset.
func (r *Reader) U64At(off int) (uint64, error) {
	if err := r.require(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(r.data[off:]), nil
}

// CStringAt reads a NUL-terminated string starting at off, failing if no
// terminator is found before the end of the underlying buffer.
func (r *Reader) CStringAt(off int) (string, error) {
	if off < 0 || off >= len(r.data) {
		return "", errs.At(errs.Truncated, "string offset out of range", int64(off), nil)
	}
	end := off
	for end < len(r.data) && r.data[end] != 0 {
		end++
	}
	if end >= len(r.data) {
		return "", errs.At(errs.Truncated, "unterminated string", int64(off), nil)
	}
	return string(r.data[off:end]), nil
}
