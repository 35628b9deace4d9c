package jce

import (
	"errors"
	"fmt"
	"math"

	"github.com/udisondev/goicq/internal/packet"
)

// Values is a decoded struct indexed by tag. Missing tags are nil.
//
// Integers of every width decode as int64, strings as string, simple lists
// as []byte, lists as []any, maps as Map and nested structs as Values.
type Values []any

var errStructEnd = errors.New("jce: struct end")

// Decode parses a top-level field stream. Decoding stops cleanly at a
// struct-end marker or at the first field that cannot be decoded once at
// least one field was read; servers append diagnostic fields this client
// does not know about.
func Decode(b []byte) (Values, error) {
	d := &decoder{r: packet.NewReader(b)}
	var out Values
	for d.r.Remaining() > 0 {
		tag, v, err := d.field()
		if errors.Is(err, errStructEnd) {
			break
		}
		if err != nil {
			if len(out) > 0 {
				break
			}
			return nil, fmt.Errorf("jce decode: %w", err)
		}
		out = out.set(tag, v)
	}
	return out, nil
}

func (vs Values) set(tag int, v any) Values {
	for len(vs) <= tag {
		vs = append(vs, nil)
	}
	vs[tag] = v
	return vs
}

type decoder struct {
	r *packet.Reader
}

func (d *decoder) head() (int, byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	typ := b & 0x0F
	tag := int(b >> 4)
	if tag == 15 {
		t, err := d.r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		tag = int(t)
	}
	return tag, typ, nil
}

// field reads one head+value. A struct-end head yields errStructEnd.
func (d *decoder) field() (int, any, error) {
	tag, typ, err := d.head()
	if err != nil {
		return 0, nil, err
	}
	if typ == TypeStructEnd {
		return tag, nil, errStructEnd
	}
	v, err := d.value(typ)
	if err != nil {
		return 0, nil, fmt.Errorf("tag %d: %w", tag, err)
	}
	return tag, v, nil
}

func (d *decoder) int() (int64, error) {
	_, v, err := d.field()
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: expected integer length, got %T", packet.ErrDecode, v)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative length %d", packet.ErrDecode, n)
	}
	return n, nil
}

func (d *decoder) value(typ byte) (any, error) {
	switch typ {
	case TypeInt8:
		b, err := d.r.ReadByte()
		return int64(int8(b)), err
	case TypeInt16:
		v, err := d.r.ReadU16()
		return int64(int16(v)), err
	case TypeInt32:
		v, err := d.r.ReadU32()
		return int64(int32(v)), err
	case TypeInt64:
		v, err := d.r.ReadU64()
		return int64(v), err
	case TypeFloat:
		v, err := d.r.ReadU32()
		return math.Float32frombits(v), err
	case TypeDouble:
		v, err := d.r.ReadU64()
		return math.Float64frombits(v), err
	case TypeString1:
		n, err := d.r.ReadByte()
		if err != nil {
			return nil, err
		}
		b, err := d.r.ReadBytes(int(n))
		return string(b), err
	case TypeString4:
		n, err := d.r.ReadU32()
		if err != nil {
			return nil, err
		}
		b, err := d.r.ReadBytes(int(n))
		return string(b), err
	case TypeMap:
		n, err := d.int()
		if err != nil {
			return nil, err
		}
		m := make(Map, 0, min(n, 64))
		for range n {
			_, k, err := d.field()
			if err != nil {
				return nil, err
			}
			_, v, err := d.field()
			if err != nil {
				return nil, err
			}
			m = append(m, Entry{Key: k, Value: v})
		}
		return m, nil
	case TypeList:
		n, err := d.int()
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, min(n, 64))
		for range n {
			_, v, err := d.field()
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case TypeStructBegin:
		var s Values
		for {
			tag, v, err := d.field()
			if errors.Is(err, errStructEnd) {
				return s, nil
			}
			if err != nil {
				return nil, err
			}
			s = s.set(tag, v)
		}
	case TypeZero:
		return int64(0), nil
	case TypeSimpleList:
		if _, _, err := d.head(); err != nil {
			return nil, err
		}
		n, err := d.int()
		if err != nil {
			return nil, err
		}
		b, err := d.r.ReadBytes(int(n))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %d", packet.ErrDecode, typ)
	}
}

// Get returns the value at tag or nil.
func (vs Values) Get(tag int) any {
	if tag < 0 || tag >= len(vs) {
		return nil
	}
	return vs[tag]
}

// Int returns the integer at tag, or 0.
func (vs Values) Int(tag int) int64 {
	n, _ := vs.Get(tag).(int64)
	return n
}

// String returns the string at tag, or "".
func (vs Values) String(tag int) string {
	switch v := vs.Get(tag).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// Bytes returns the bytes at tag, or nil.
func (vs Values) Bytes(tag int) []byte {
	switch v := vs.Get(tag).(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	}
	return nil
}

// List returns the list at tag, or nil.
func (vs Values) List(tag int) []any {
	l, _ := vs.Get(tag).([]any)
	return l
}

// Map returns the map at tag, or nil.
func (vs Values) Map(tag int) Map {
	m, _ := vs.Get(tag).(Map)
	return m
}

// Struct returns the nested struct at tag, or nil.
func (vs Values) Struct(tag int) Values {
	s, _ := vs.Get(tag).(Values)
	return s
}

// Keyed returns a view of the entries whose keys are strings or bytes.
func (m Map) Keyed() map[string]any {
	out := make(map[string]any, len(m))
	for _, e := range m {
		switch k := e.Key.(type) {
		case string:
			out[k] = e.Value
		case []byte:
			out[string(k)] = e.Value
		}
	}
	return out
}

// Get returns the value stored under a string key.
func (m Map) Get(key string) (any, bool) {
	v, ok := m.Keyed()[key]
	return v, ok
}
