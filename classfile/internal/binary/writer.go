package binary

import (
	"bytes"
	"encoding/binary"
)

// Writer provides buffered big-endian writing for class file encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// U1 writes a single byte.
func (w *Writer) U1(b uint8) {
	w.buf.WriteByte(b)
}

// U2 writes a big-endian uint16.
func (w *Writer) U2(v uint16) {
	w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

// U4 writes a big-endian uint32.
func (w *Writer) U4(v uint32) {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

// U8 writes a big-endian uint64.
func (w *Writer) U8(v uint64) {
	w.buf.Write(binary.BigEndian.AppendUint64(nil, v))
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// PatchU2 overwrites a previously written uint16 at pos.
func (w *Writer) PatchU2(pos int, v uint16) {
	binary.BigEndian.PutUint16(w.buf.Bytes()[pos:], v)
}

// PatchU4 overwrites a previously written uint32 at pos.
func (w *Writer) PatchU4(pos int, v uint32) {
	binary.BigEndian.PutUint32(w.buf.Bytes()[pos:], v)
}
