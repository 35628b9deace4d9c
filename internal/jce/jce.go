// Package jce implements the ordered-tag struct encoding used by the legacy
// service commands.
//
// Every field carries a head byte (tag<<4 | type, with an extra tag byte for
// tags ≥ 15). The tag of a field is its position in the encoded []any.
package jce

import (
	"fmt"
	"math"
	"slices"

	"github.com/udisondev/goicq/internal/packet"
)

// Field types on the wire.
const (
	TypeInt8        = 0
	TypeInt16       = 1
	TypeInt32       = 2
	TypeInt64       = 3
	TypeFloat       = 4
	TypeDouble      = 5
	TypeString1     = 6
	TypeString4     = 7
	TypeMap         = 8
	TypeList        = 9
	TypeStructBegin = 10
	TypeStructEnd   = 11
	TypeZero        = 12
	TypeSimpleList  = 13
)

// Struct is a nested struct: its elements are encoded with tags 0..n-1
// between struct-begin and struct-end markers.
type Struct []any

// Entry is one key/value pair of a map, in wire order.
type Entry struct {
	Key   any
	Value any
}

// Map is a decoded map. Keys keep their decoded type.
type Map []Entry

// Encode serializes values, using each element's index as its tag.
// nil elements are skipped.
func Encode(values []any) ([]byte, error) {
	w := packet.Get()
	defer w.Put()
	for tag, v := range values {
		if v == nil {
			continue
		}
		if tag > math.MaxUint8 {
			return nil, fmt.Errorf("jce encode: tag %d out of range", tag)
		}
		if err := writeElement(w, byte(tag), v); err != nil {
			return nil, fmt.Errorf("jce encode tag %d: %w", tag, err)
		}
	}
	return w.Copy(), nil
}

// EncodeStruct encodes fields as a single struct at tag 0. This is the form
// request bodies take inside a wrapper map.
func EncodeStruct(fields []any) ([]byte, error) {
	return Encode([]any{Struct(fields)})
}

func writeHead(w *packet.Writer, tag, typ byte) {
	if tag < 15 {
		w.WriteU8(tag<<4 | typ)
		return
	}
	w.WriteU8(0xF0 | typ)
	w.WriteU8(tag)
}

func writeInt(w *packet.Writer, tag byte, v int64) {
	switch {
	case v == 0:
		writeHead(w, tag, TypeZero)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		writeHead(w, tag, TypeInt8)
		w.WriteU8(byte(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		writeHead(w, tag, TypeInt16)
		w.WriteU16(uint16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		writeHead(w, tag, TypeInt32)
		w.WriteU32(uint32(v))
	default:
		writeHead(w, tag, TypeInt64)
		w.WriteU64(uint64(v))
	}
}

func writeString(w *packet.Writer, tag byte, s string) {
	if len(s) <= math.MaxUint8 {
		writeHead(w, tag, TypeString1)
		w.WriteU8(byte(len(s)))
	} else {
		writeHead(w, tag, TypeString4)
		w.WriteU32(uint32(len(s)))
	}
	w.WriteBytes([]byte(s))
}

func writeBytes(w *packet.Writer, tag byte, b []byte) {
	writeHead(w, tag, TypeSimpleList)
	writeHead(w, 0, TypeInt8)
	writeInt(w, 0, int64(len(b)))
	w.WriteBytes(b)
}

func writeList[T any](w *packet.Writer, tag byte, items []T) error {
	writeHead(w, tag, TypeList)
	writeInt(w, 0, int64(len(items)))
	for _, item := range items {
		if err := writeElement(w, 0, item); err != nil {
			return err
		}
	}
	return nil
}

func writeMap[V any](w *packet.Writer, tag byte, m map[string]V) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	writeHead(w, tag, TypeMap)
	writeInt(w, 0, int64(len(keys)))
	for _, k := range keys {
		writeString(w, 0, k)
		if err := writeElement(w, 1, m[k]); err != nil {
			return err
		}
	}
	return nil
}

func writeElement(w *packet.Writer, tag byte, v any) error {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		if val {
			writeInt(w, tag, 1)
		} else {
			writeInt(w, tag, 0)
		}
	case int:
		writeInt(w, tag, int64(val))
	case int8:
		writeInt(w, tag, int64(val))
	case int16:
		writeInt(w, tag, int64(val))
	case int32:
		writeInt(w, tag, int64(val))
	case int64:
		writeInt(w, tag, val)
	case uint8:
		writeInt(w, tag, int64(val))
	case uint16:
		writeInt(w, tag, int64(val))
	case uint32:
		writeInt(w, tag, int64(val))
	case uint64:
		writeInt(w, tag, int64(val))
	case float32:
		writeHead(w, tag, TypeFloat)
		w.WriteU32(math.Float32bits(val))
	case float64:
		writeHead(w, tag, TypeDouble)
		w.WriteDouble(val)
	case string:
		writeString(w, tag, val)
	case []byte:
		writeBytes(w, tag, val)
	case Struct:
		writeHead(w, tag, TypeStructBegin)
		for i, field := range val {
			if field == nil {
				continue
			}
			if i > math.MaxUint8 {
				return fmt.Errorf("struct field %d: tag out of range", i)
			}
			if err := writeElement(w, byte(i), field); err != nil {
				return fmt.Errorf("struct field %d: %w", i, err)
			}
		}
		writeHead(w, 0, TypeStructEnd)
	case Map:
		writeHead(w, tag, TypeMap)
		writeInt(w, 0, int64(len(val)))
		for _, e := range val {
			if err := writeElement(w, 0, e.Key); err != nil {
				return err
			}
			if err := writeElement(w, 1, e.Value); err != nil {
				return err
			}
		}
	case map[string]any:
		return writeMap(w, tag, val)
	case map[string]string:
		return writeMap(w, tag, val)
	case map[string][]byte:
		return writeMap(w, tag, val)
	case []any:
		return writeList(w, tag, val)
	case []Struct:
		return writeList(w, tag, val)
	case []string:
		return writeList(w, tag, val)
	case []int64:
		return writeList(w, tag, val)
	case [][]byte:
		return writeList(w, tag, val)
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}
