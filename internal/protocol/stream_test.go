package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/packet"
)

func rawFrame(payload string) []byte {
	b := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(b, uint32(len(b)))
	copy(b[4:], payload)
	return b
}

func drain(t *testing.T, s *Stream) []string {
	t.Helper()
	var out []string
	for {
		f, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, string(f))
	}
}

func TestStream_SplitAtEveryBoundary(t *testing.T) {
	var wire []byte
	want := []string{"first", "", "third frame", "x"}
	for _, p := range want {
		wire = append(wire, rawFrame(p)...)
	}

	for cut := 0; cut <= len(wire); cut++ {
		s := NewStream(0)
		s.Feed(wire[:cut])
		got := drain(t, s)
		s.Feed(wire[cut:])
		got = append(got, drain(t, s)...)
		require.Equal(t, want, got, "cut at %d", cut)
		assert.Zero(t, s.Buffered())
	}
}

func TestStream_ByteByByte(t *testing.T) {
	wire := append(rawFrame("alpha"), rawFrame("beta")...)
	s := NewStream(0)
	var got []string
	for _, b := range wire {
		s.Feed([]byte{b})
		got = append(got, drain(t, s)...)
	}
	assert.Equal(t, []string{"alpha", "beta"}, got)
}

func TestStream_ReturnedFrameIsCopy(t *testing.T) {
	s := NewStream(0)
	s.Feed(append(rawFrame("aaaa"), rawFrame("bbbb")...))
	first, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	_, _, _ = s.Next()
	s.Feed(rawFrame("cccc"))
	assert.Equal(t, "aaaa", string(first))
}

func TestStream_InvalidLength(t *testing.T) {
	s := NewStream(0)
	s.Feed([]byte{0, 0, 0, 3})
	_, _, err := s.Next()
	require.ErrorIs(t, err, packet.ErrDecode)

	s = NewStream(64)
	s.Feed([]byte{0, 0, 0, 65})
	_, _, err = s.Next()
	require.ErrorIs(t, err, packet.ErrDecode)
}

func TestStream_PartialHeader(t *testing.T) {
	s := NewStream(0)
	s.Feed([]byte{0, 0})
	_, ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, s.Buffered())
}
