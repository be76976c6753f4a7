package byteio

import (
	"bytes"
	"encoding/binary"
)

// Writer is a growable little-endian byte buffer used to emit OBJ and AR
// structures deterministically, field by field.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns the accumulated buffer. The returned slice aliases the
// Writer's internal buffer and must be copied before further writes.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// U8 appends a single byte.
func (w *Writer) U8(v uint8) { w.buf.WriteByte(v) }

// U16 appends a little-endian uint16.
func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// Raw appends raw bytes unchanged.
func (w *Writer) Raw(b []byte) { w.buf.Write(b) }

// Zero appends n zero bytes, used for reserved fields and alignment padding.
func (w *Writer) Zero(n int) {
	for i := 0; i < n; i++ {
		w.buf.WriteByte(0)
	}
}

// CString appends s followed by a single NUL terminator.
func (w *Writer) CString(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// PutU32At overwrites 4 bytes at an already-written offset, used to
// back-patch header fields (offsets, sizes, checksums) computed after the
// body has been emitted.
func (w *Writer) PutU32At(off int, v uint32) {
	b := w.buf.Bytes()
	binary.LittleEndian.PutUint32(b[off:off+4], v)
}

// PutU16At overwrites 2 bytes at an already-written offset.
func (w *Writer) PutU16At(off int, v uint16) {
	b := w.buf.Bytes()
	binary.LittleEndian.PutUint16(b[off:off+2], v)
}
