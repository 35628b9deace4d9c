package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrDecode marks malformed input: truncated fields, bad lengths, failed
	// cipher trailers. Every decoding failure in the module wraps it.
	ErrDecode = errors.New("decode error")

	// ErrShortBuffer is returned (wrapped) whenever a read runs past the end of data.
	ErrShortBuffer = fmt.Errorf("%w: not enough data", ErrDecode)
)

// Reader provides methods for reading protocol data.
// Uses Big-Endian byte order for all multi-byte values.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a new reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{
		data: data,
		pos:  0,
	}
}

func (r *Reader) need(op string, n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("%s: %w (pos=%d, need=%d, len=%d)", op, ErrShortBuffer, r.pos, n, len(r.data))
	}
	return nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.need("ReadByte", 1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadU16 reads a uint16 (2 bytes, BE).
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.need("ReadU16", 2); err != nil {
		return 0, err
	}
	val := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return val, nil
}

// ReadU32 reads a uint32 (4 bytes, BE).
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.need("ReadU32", 4); err != nil {
		return 0, err
	}
	val := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return val, nil
}

// ReadI32 reads an int32 (4 bytes, BE).
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadU64 reads a uint64 (8 bytes, BE).
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.need("ReadU64", 8); err != nil {
		return 0, err
	}
	val := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return val, nil
}

// ReadBytes reads n bytes (ZERO-COPY — returns subslice of internal data).
// Caller MUST NOT modify returned bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need("ReadBytes", n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadWithLength reads a block prefixed by a 4-byte BE length that counts itself.
func (r *Reader) ReadWithLength() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if n < 4 {
		return nil, fmt.Errorf("ReadWithLength: %w: invalid length %d", ErrDecode, n)
	}
	return r.ReadBytes(int(n) - 4)
}

// ReadStringWithLength is ReadWithLength for strings.
func (r *Reader) ReadStringWithLength() (string, error) {
	b, err := r.ReadWithLength()
	return string(b), err
}

// ReadTlv reads a block prefixed by a 2-byte BE length.
func (r *Reader) ReadTlv() ([]byte, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need("Skip", n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Rest returns all unread bytes and moves to the end.
func (r *Reader) Rest() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}
