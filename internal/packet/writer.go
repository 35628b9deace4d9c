package packet

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"
)

// Writer provides methods for writing protocol data.
// Uses Big-Endian byte order for all multi-byte values.
type Writer struct {
	buf *bytes.Buffer
}

// writerPool reduces allocations by reusing Writers.
// Get() returns a Writer with Reset() called, Put() returns it to pool.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf: bytes.NewBuffer(make([]byte, 0, 512)),
		}
	},
}

// Get returns a Writer from the pool (already Reset).
func Get() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// Put returns a Writer to the pool for reuse.
// IMPORTANT: Do not use the Writer (or slices returned by Bytes) after calling Put.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// NewWriter creates a new writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: bytes.NewBuffer(make([]byte, 0, capacity)),
	}
}

// Build runs f against a pooled Writer and returns a copy of the produced bytes.
func Build(f func(w *Writer)) []byte {
	w := Get()
	defer w.Put()
	f(w)
	return w.Copy()
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteU8 writes a single byte.
func (w *Writer) WriteU8(b byte) {
	w.buf.WriteByte(b)
}

// WriteBool writes 1 for true and 0 for false.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

// WriteU16 writes a uint16 (2 bytes, BE).
func (w *Writer) WriteU16(val uint16) {
	w.buf.WriteByte(byte(val >> 8))
	w.buf.WriteByte(byte(val))
}

// WriteU32 writes a uint32 (4 bytes, BE).
func (w *Writer) WriteU32(val uint32) {
	w.buf.WriteByte(byte(val >> 24))
	w.buf.WriteByte(byte(val >> 16))
	w.buf.WriteByte(byte(val >> 8))
	w.buf.WriteByte(byte(val))
}

// WriteU64 writes a uint64 (8 bytes, BE).
func (w *Writer) WriteU64(val uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], val)
	w.buf.Write(tmp[:])
}

// WriteDouble writes a float64 (8 bytes, BE IEEE 754).
func (w *Writer) WriteDouble(val float64) {
	w.WriteU64(math.Float64bits(val))
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	_, _ = w.buf.Write(data)
}

// WriteWithLength writes data prefixed by a 4-byte BE length that counts itself.
func (w *Writer) WriteWithLength(data []byte) {
	w.WriteU32(uint32(len(data) + 4))
	w.WriteBytes(data)
}

// WriteStringWithLength is WriteWithLength for strings.
func (w *Writer) WriteStringWithLength(s string) {
	w.WriteU32(uint32(len(s) + 4))
	w.buf.WriteString(s)
}

// WriteTlv writes data prefixed by a 2-byte BE length (not counting itself).
func (w *Writer) WriteTlv(data []byte) {
	w.WriteU16(uint16(len(data)))
	w.WriteBytes(data)
}

// WriteTlvString is WriteTlv for strings.
func (w *Writer) WriteTlvString(s string) {
	w.WriteU16(uint16(len(s)))
	w.buf.WriteString(s)
}

// WriteTlvLimited writes at most limit bytes of data as a TLV value.
func (w *Writer) WriteTlvLimited(data []byte, limit int) {
	if len(data) > limit {
		data = data[:limit]
	}
	w.WriteTlv(data)
}

// Reserve appends a zeroed uint32 placeholder and returns its offset.
func (w *Writer) Reserve() int {
	pos := w.buf.Len()
	w.WriteU32(0)
	return pos
}

// PutU32At overwrites the uint32 at pos (see Reserve).
func (w *Writer) PutU32At(pos int, val uint32) {
	binary.BigEndian.PutUint32(w.buf.Bytes()[pos:], val)
}

// Bytes returns the accumulated data.
// The slice aliases the internal buffer.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Copy returns a copy of the accumulated data, safe to keep after Put.
func (w *Writer) Copy() []byte {
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	return out
}

// Len returns the current length of the data.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset clears the buffer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
}
