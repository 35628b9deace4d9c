// Package tlv builds and parses the tag-length-value fields of wtlogin
// request and response bodies.
package tlv

import (
	"errors"
	"fmt"
	"slices"

	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/packet"
)

var (
	// ErrUnknownTag is returned by Pack for a tag with no builder.
	ErrUnknownTag = errors.New("unknown tlv tag")

	// ErrMissingField is returned when a builder's input is absent.
	ErrMissingField = errors.New("missing tlv input")

	// ErrTruncated is returned by Read when a field runs past the buffer.
	ErrTruncated = fmt.Errorf("%w: truncated tlv", packet.ErrDecode)
)

// Map holds parsed fields by tag.
type Map map[uint16][]byte

// Has reports whether tag is present.
func (m Map) Has(tag uint16) bool {
	_, ok := m[tag]
	return ok
}

// Env is everything the builders read. Continuation fields are filled from
// earlier server responses.
type Env struct {
	Uin         int64
	PasswordMD5 []byte
	Device      *device.Device
	App         device.AppVersion
	Seq         int32

	TGT []byte
	D2  []byte

	T104 []byte
	T174 []byte
	T402 []byte
	T106 []byte // QR login: temporary password blob, sent verbatim
	T16A []byte
	T318 []byte

	CaptchaResult string
	CaptchaSign   []byte
	SliderTicket  string
	SMSCode       string

	Domains []string
}

type builder func(e *Env, w *packet.Writer) error

// Pack writes `u16 tag | u16 len | body` for each tag, in order.
func Pack(e *Env, tags ...uint16) ([]byte, error) {
	w := packet.Get()
	defer w.Put()
	for _, tag := range tags {
		if err := packOne(e, w, tag); err != nil {
			return nil, err
		}
	}
	return w.Copy(), nil
}

// PackCounted is Pack prefixed with `u16 subcmd | u16 count`, the layout of
// every wtlogin body.
func PackCounted(e *Env, subcmd uint16, tags ...uint16) ([]byte, error) {
	body, err := Pack(e, tags...)
	if err != nil {
		return nil, err
	}
	return packet.Build(func(w *packet.Writer) {
		w.WriteU16(subcmd)
		w.WriteU16(uint16(len(tags)))
		w.WriteBytes(body)
	}), nil
}

func packOne(e *Env, w *packet.Writer, tag uint16) error {
	b, ok := builders[tag]
	if !ok {
		return fmt.Errorf("packing 0x%X: %w", tag, ErrUnknownTag)
	}
	body := packet.Get()
	defer body.Put()
	if err := b(e, body); err != nil {
		return fmt.Errorf("packing 0x%X: %w", tag, err)
	}
	w.WriteU16(tag)
	w.WriteTlv(body.Bytes())
	return nil
}

// Supported returns every tag Pack can build, sorted.
func Supported() []uint16 {
	tags := make([]uint16, 0, len(builders))
	for t := range builders {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}

// Read parses fields until the end of b.
func Read(b []byte) (Map, error) {
	r := packet.NewReader(b)
	m := make(Map)
	for r.Remaining() > 0 {
		if err := readOne(r, m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ReadCounted parses a `u16 count` prefixed list of fields and returns the
// unread rest of b.
func ReadCounted(b []byte) (Map, []byte, error) {
	r := packet.NewReader(b)
	n, err := r.ReadU16()
	if err != nil {
		return nil, nil, ErrTruncated
	}
	m := make(Map, n)
	for range n {
		if err := readOne(r, m); err != nil {
			return nil, nil, err
		}
	}
	return m, r.Rest(), nil
}

func readOne(r *packet.Reader, m Map) error {
	tag, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("reading tag at %d: %w", r.Position(), ErrTruncated)
	}
	v, err := r.ReadTlv()
	if err != nil {
		return fmt.Errorf("reading 0x%X: %w", tag, ErrTruncated)
	}
	m[tag] = v
	return nil
}

// MarshalCounted encodes m as a `u16 count` prefixed list in ascending tag
// order, the inverse of ReadCounted.
func (m Map) MarshalCounted() []byte {
	tags := make([]uint16, 0, len(m))
	for t := range m {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return packet.Build(func(w *packet.Writer) {
		w.WriteU16(uint16(len(tags)))
		for _, t := range tags {
			w.WriteU16(t)
			w.WriteTlv(m[t])
		}
	})
}
