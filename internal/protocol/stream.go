package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/packet"
)

// Stream reassembles length-prefixed frames from arbitrarily chunked reads.
// It is not safe for concurrent use; the connection reader owns it.
type Stream struct {
	buf     []byte
	maxSize int
}

// NewStream creates a reassembler that rejects frames larger than maxSize.
// maxSize <= 0 selects constants.MaxFrameSize.
func NewStream(maxSize int) *Stream {
	if maxSize <= 0 {
		maxSize = constants.MaxFrameSize
	}
	return &Stream{maxSize: maxSize}
}

// Feed appends a chunk read from the socket.
func (s *Stream) Feed(chunk []byte) {
	s.buf = append(s.buf, chunk...)
}

// Buffered returns the number of bytes waiting for a complete frame.
func (s *Stream) Buffered() int {
	return len(s.buf)
}

// Next returns the next complete frame without its length prefix.
// ok is false when more data is needed. A declared length below the prefix
// size or above the limit is a decode error and the stream must be discarded.
func (s *Stream) Next() (frame []byte, ok bool, err error) {
	if len(s.buf) < constants.FrameLengthSize {
		return nil, false, nil
	}
	n := int(binary.BigEndian.Uint32(s.buf))
	if n < constants.FrameLengthSize || n > s.maxSize {
		return nil, false, fmt.Errorf("%w: frame length %d (max %d)", packet.ErrDecode, n, s.maxSize)
	}
	if len(s.buf) < n {
		return nil, false, nil
	}

	frame = make([]byte, n-constants.FrameLengthSize)
	copy(frame, s.buf[constants.FrameLengthSize:n])

	rest := len(s.buf) - n
	copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
	return frame, true, nil
}
