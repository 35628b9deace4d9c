package pb

import (
	"fmt"
	"math"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/udisondev/goicq/internal/packet"
)

// Value is one decoded field. Scalars keep their wire integer; length
// delimited values keep their raw bytes and decode as a nested Message on
// demand.
type Value struct {
	typ protowire.Type
	num uint64
	raw []byte

	once   sync.Once
	nested Message
}

// Type returns the wire type the value was read with.
func (v *Value) Type() protowire.Type {
	return v.typ
}

// Int returns the value as a signed integer (two's complement).
func (v *Value) Int() int64 {
	if v == nil {
		return 0
	}
	if v.typ == protowire.Fixed32Type {
		return int64(int32(v.num))
	}
	return int64(v.num)
}

// Uint returns the value as an unsigned integer.
func (v *Value) Uint() uint64 {
	if v == nil {
		return 0
	}
	return v.num
}

// Float returns a fixed64/fixed32 value as a float.
func (v *Value) Float() float64 {
	if v == nil {
		return 0
	}
	if v.typ == protowire.Fixed32Type {
		return float64(math.Float32frombits(uint32(v.num)))
	}
	return math.Float64frombits(v.num)
}

// Bytes returns the raw bytes of a length-delimited value.
func (v *Value) Bytes() []byte {
	if v == nil {
		return nil
	}
	return v.raw
}

// String returns the raw bytes of a length-delimited value as a string.
func (v *Value) String() string {
	if v == nil {
		return ""
	}
	if v.typ != protowire.BytesType {
		return fmt.Sprint(v.num)
	}
	return string(v.raw)
}

// Msg returns the nested view of a length-delimited value, or nil when the
// bytes do not parse as a message. Failure is silent: many leaf strings are
// not messages.
func (v *Value) Msg() Message {
	if v == nil || v.typ != protowire.BytesType {
		return nil
	}
	v.once.Do(func() {
		m, err := Decode(v.raw)
		if err == nil {
			v.nested = m
		}
	})
	return v.nested
}

// Decode parses b until it is exhausted. A tag seen more than once maps to a
// []*Value in arrival order; otherwise it maps to a single *Value.
func Decode(b []byte) (Message, error) {
	m := make(Message)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("pb decode tag: %w: %v", packet.ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]

		v := &Value{typ: typ}
		switch typ {
		case protowire.VarintType:
			v.num, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			v.num, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var u uint32
			u, n = protowire.ConsumeFixed32(b)
			v.num = uint64(u)
		case protowire.BytesType:
			v.raw, n = protowire.ConsumeBytes(b)
		default:
			return nil, fmt.Errorf("pb decode field %d: %w: unsupported wire type %d", num, packet.ErrDecode, typ)
		}
		if n < 0 {
			return nil, fmt.Errorf("pb decode field %d: %w: %v", num, packet.ErrDecode, protowire.ParseError(n))
		}
		b = b[n:]
		m.add(int(num), v)
	}
	return m, nil
}

func (m Message) add(tag int, v *Value) {
	switch cur := m[tag].(type) {
	case nil:
		m[tag] = v
	case *Value:
		m[tag] = []*Value{cur, v}
	case []*Value:
		m[tag] = append(cur, v)
	}
}

// Value returns the first decoded value for tag, or nil.
func (m Message) Value(tag int) *Value {
	switch v := m[tag].(type) {
	case *Value:
		return v
	case []*Value:
		if len(v) > 0 {
			return v[0]
		}
	}
	return nil
}

// Values returns every decoded value for tag in arrival order.
func (m Message) Values(tag int) []*Value {
	switch v := m[tag].(type) {
	case *Value:
		return []*Value{v}
	case []*Value:
		return v
	}
	return nil
}

// Int is shorthand for m.Value(tag).Int().
func (m Message) Int(tag int) int64 { return m.Value(tag).Int() }

// Uint is shorthand for m.Value(tag).Uint().
func (m Message) Uint(tag int) uint64 { return m.Value(tag).Uint() }

// Bytes is shorthand for m.Value(tag).Bytes().
func (m Message) Bytes(tag int) []byte { return m.Value(tag).Bytes() }

// String is shorthand for m.Value(tag).String().
func (m Message) String(tag int) string { return m.Value(tag).String() }

// Msg is shorthand for m.Value(tag).Msg().
func (m Message) Msg(tag int) Message { return m.Value(tag).Msg() }
