package pb

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/udisondev/goicq/internal/packet"
)

func TestEncode_KnownBytes(t *testing.T) {
	b, err := Encode(Message{1: 150, 2: "testing"})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x08, 0x96, 0x01,
		0x12, 0x07, 't', 'e', 's', 't', 'i', 'n', 'g',
	}, b)
}

func TestEncode_NegativeIsRawTwosComplement(t *testing.T) {
	b, err := Encode(Message{1: int32(-1)})
	require.NoError(t, err)
	// header + 10-byte varint, no zig-zag
	assert.Len(t, b, 11)

	m, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), m.Int(1))
}

func TestRoundTrip_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want func(t *testing.T, v *Value)
	}{
		{"small int", 7, func(t *testing.T, v *Value) { assert.Equal(t, int64(7), v.Int()) }},
		{"large uint", uint64(math.MaxUint64), func(t *testing.T, v *Value) { assert.Equal(t, uint64(math.MaxUint64), v.Uint()) }},
		{"int64 min", int64(math.MinInt64), func(t *testing.T, v *Value) { assert.Equal(t, int64(math.MinInt64), v.Int()) }},
		{"pair", Int64Pair{Hi: 1, Lo: 2}, func(t *testing.T, v *Value) { assert.Equal(t, uint64(1<<32|2), v.Uint()) }},
		{"double", 3.25, func(t *testing.T, v *Value) { assert.Equal(t, 3.25, v.Float()) }},
		{"bool", true, func(t *testing.T, v *Value) { assert.Equal(t, int64(1), v.Int()) }},
		{"bytes", []byte{0, 1, 2}, func(t *testing.T, v *Value) { assert.Equal(t, []byte{0, 1, 2}, v.Bytes()) }},
		{"string", "hello", func(t *testing.T, v *Value) { assert.Equal(t, "hello", v.String()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(Message{5: tt.in})
			require.NoError(t, err)
			m, err := Decode(b)
			require.NoError(t, err)
			require.NotNil(t, m.Value(5))
			tt.want(t, m.Value(5))
		})
	}
}

func TestRoundTrip_Nested(t *testing.T) {
	in := Message{
		1: Message{
			1: 46,
			2: Message{3: "deep"},
		},
		2: []byte("raw"),
	}
	b, err := Encode(in)
	require.NoError(t, err)

	m, err := Decode(b)
	require.NoError(t, err)

	inner := m.Msg(1)
	require.NotNil(t, inner)
	assert.Equal(t, int64(46), inner.Int(1))
	assert.Equal(t, "deep", inner.Msg(2).String(3))

	// the same field is still reachable as raw bytes
	nestedRaw, err := Encode(in[1].(Message))
	require.NoError(t, err)
	assert.Equal(t, nestedRaw, m.Bytes(1))
}

func TestRoundTrip_Repeated(t *testing.T) {
	in := Message{
		1: []any{Message{1: 46, 2: 1}, Message{1: 283, 2: 0}},
		2: []int64{1, 2, 3},
		3: []string{"a", "b"},
	}
	b, err := Encode(in)
	require.NoError(t, err)

	m, err := Decode(b)
	require.NoError(t, err)

	items := m.Values(1)
	require.Len(t, items, 2)
	assert.Equal(t, int64(46), items[0].Msg().Int(1))
	assert.Equal(t, int64(283), items[1].Msg().Int(1))

	nums := m.Values(2)
	require.Len(t, nums, 3)
	for i, v := range nums {
		assert.Equal(t, int64(i+1), v.Int())
	}
	assert.Equal(t, "b", m.Values(3)[1].String())
}

func TestRoundTrip_DecodedReencodes(t *testing.T) {
	in := Message{1: 10, 2: "x", 3: Message{1: 1}, 4: 1.5}
	b, err := Encode(in)
	require.NoError(t, err)
	m, err := Decode(b)
	require.NoError(t, err)

	again, err := Encode(m)
	require.NoError(t, err)
	assert.Equal(t, b, again)
}

func TestDecode_StringFallsBackToRaw(t *testing.T) {
	// "\xff" is not a valid tag, so the nested view is nil and bytes survive
	b, err := Encode(Message{1: "\xffnot a message"})
	require.NoError(t, err)
	m, err := Decode(b)
	require.NoError(t, err)
	assert.Nil(t, m.Msg(1))
	assert.Equal(t, "\xffnot a message", m.String(1))
}

func TestDecode_Truncated(t *testing.T) {
	b, err := Encode(Message{1: "hello"})
	require.NoError(t, err)

	_, err = Decode(b[:len(b)-1])
	require.Error(t, err)
	assert.True(t, errors.Is(err, packet.ErrDecode))
}

func TestDecode_Fixed32(t *testing.T) {
	b := protowire.AppendTag(nil, 7, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, math.Float32bits(-2.5))
	m, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, -2.5, m.Value(7).Float())
}

func TestDecode_GroupRejected(t *testing.T) {
	b := protowire.AppendTag(nil, 1, protowire.StartGroupType)
	_, err := Decode(b)
	require.Error(t, err)
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(Message{0: 1})
	require.Error(t, err)

	_, err = Encode(Message{1: struct{}{}})
	require.Error(t, err)
}

func TestAccessors_Missing(t *testing.T) {
	m := Message{}
	assert.Nil(t, m.Value(1))
	assert.Zero(t, m.Int(1))
	assert.Nil(t, m.Bytes(1))
	assert.Empty(t, m.String(1))
	assert.Nil(t, m.Msg(1))
}

func BenchmarkEncode(b *testing.B) {
	m := Message{1: 42, 2: "benchmark", 3: Message{1: []byte("payload"), 2: uint64(1 << 40)}}
	b.ReportAllocs()
	for b.Loop() {
		_, _ = Encode(m)
	}
}

func BenchmarkDecode(b *testing.B) {
	data := MustEncode(Message{1: 42, 2: "benchmark", 3: Message{1: []byte("payload"), 2: uint64(1 << 40)}})
	b.ReportAllocs()
	for b.Loop() {
		_, _ = Decode(data)
	}
}
