package pb

import (
	"fmt"
	"math"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message maps field numbers to values.
//
// Accepted value kinds for encoding: signed and unsigned integers, bool,
// Int64Pair, float32/float64, []byte, string, Message (or map[int]any),
// *Value, and slices ([]any, []Message, []*Value, []int64, []uint64,
// []string, [][]byte) for repeated fields. nil values are skipped.
type Message map[int]any

// Int64Pair is a 64-bit integer carried as two 32-bit halves.
type Int64Pair struct {
	Hi uint32
	Lo uint32
}

// Uint64 joins the halves.
func (p Int64Pair) Uint64() uint64 {
	return uint64(p.Hi)<<32 | uint64(p.Lo)
}

// Encode serializes m. Fields are written in ascending tag order; repeated
// fields are written as repeated header+value pairs, never packed.
func Encode(m Message) ([]byte, error) {
	return appendMessage(nil, m)
}

// MustEncode is Encode for statically known messages; it panics on error.
func MustEncode(m Message) []byte {
	b, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return b
}

func appendMessage(b []byte, m Message) ([]byte, error) {
	tags := make([]int, 0, len(m))
	for tag := range m {
		tags = append(tags, tag)
	}
	slices.Sort(tags)

	var err error
	for _, tag := range tags {
		if tag <= 0 || tag > int(protowire.MaxValidNumber) {
			return nil, fmt.Errorf("pb encode: invalid tag %d", tag)
		}
		b, err = appendField(b, protowire.Number(tag), m[tag])
		if err != nil {
			return nil, fmt.Errorf("pb encode tag %d: %w", tag, err)
		}
	}
	return b, nil
}

func appendField(b []byte, num protowire.Number, v any) ([]byte, error) {
	var err error
	switch val := v.(type) {
	case nil:
		return b, nil
	case []any:
		for _, item := range val {
			if b, err = appendField(b, num, item); err != nil {
				return nil, err
			}
		}
		return b, nil
	case []Message:
		for _, item := range val {
			if b, err = appendField(b, num, item); err != nil {
				return nil, err
			}
		}
		return b, nil
	case []*Value:
		for _, item := range val {
			if b, err = appendField(b, num, item); err != nil {
				return nil, err
			}
		}
		return b, nil
	case []int64:
		for _, item := range val {
			b = appendVarint(b, num, uint64(item))
		}
		return b, nil
	case []uint64:
		for _, item := range val {
			b = appendVarint(b, num, item)
		}
		return b, nil
	case []string:
		for _, item := range val {
			b = appendBytes(b, num, []byte(item))
		}
		return b, nil
	case [][]byte:
		for _, item := range val {
			b = appendBytes(b, num, item)
		}
		return b, nil
	}

	switch val := v.(type) {
	case int:
		return appendVarint(b, num, uint64(val)), nil
	case int8:
		return appendVarint(b, num, uint64(val)), nil
	case int16:
		return appendVarint(b, num, uint64(val)), nil
	case int32:
		return appendVarint(b, num, uint64(val)), nil
	case int64:
		return appendVarint(b, num, uint64(val)), nil
	case uint:
		return appendVarint(b, num, uint64(val)), nil
	case uint8:
		return appendVarint(b, num, uint64(val)), nil
	case uint16:
		return appendVarint(b, num, uint64(val)), nil
	case uint32:
		return appendVarint(b, num, uint64(val)), nil
	case uint64:
		return appendVarint(b, num, val), nil
	case bool:
		return appendVarint(b, num, protowire.EncodeBool(val)), nil
	case Int64Pair:
		return appendVarint(b, num, val.Uint64()), nil
	case float32:
		return appendFixed64(b, num, math.Float64bits(float64(val))), nil
	case float64:
		return appendFixed64(b, num, math.Float64bits(val)), nil
	case []byte:
		return appendBytes(b, num, val), nil
	case string:
		return appendBytes(b, num, []byte(val)), nil
	case Message:
		return appendNested(b, num, val)
	case map[int]any:
		return appendNested(b, num, Message(val))
	case *Value:
		return appendValue(b, num, val), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendNested(b []byte, num protowire.Number, m Message) ([]byte, error) {
	inner, err := appendMessage(nil, m)
	if err != nil {
		return nil, err
	}
	return appendBytes(b, num, inner), nil
}

func appendValue(b []byte, num protowire.Number, v *Value) []byte {
	switch v.typ {
	case protowire.VarintType:
		return appendVarint(b, num, v.num)
	case protowire.Fixed64Type:
		return appendFixed64(b, num, v.num)
	case protowire.Fixed32Type:
		b = protowire.AppendTag(b, num, protowire.Fixed32Type)
		return protowire.AppendFixed32(b, uint32(v.num))
	default:
		return appendBytes(b, num, v.raw)
	}
}
