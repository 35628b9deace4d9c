package login

import (
	"errors"
	"fmt"
	"time"

	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/tlv"
)

// Sig is the signature bundle issued by a successful login.
type Sig struct {
	TGT      []byte
	TGTGT    []byte
	D2       []byte
	D2Key    []byte
	SKey     []byte
	SrmToken []byte // t16a
	T133     []byte

	// WtSessionTicketKey is t134, the key of encrypt type 3 responses.
	WtSessionTicketKey []byte
	KSID               []byte
	DeviceToken        []byte

	Nickname  string
	PsKeys    map[string][]byte
	Pt4Tokens map[string][]byte
	ExpiresAt time.Time
}

// Token field sizes, in file order. The device token takes the rest.
const (
	tokenD2KeySize = 16
	tokenD2Size    = 64
	tokenT134Size  = 16
	tokenT133Size  = 48
	tokenT16ASize  = 56
	tokenTGTSize   = 72

	tokenFixedSize = tokenD2KeySize + tokenD2Size + tokenT134Size + tokenT133Size + tokenT16ASize + tokenTGTSize
)

// ErrTokenLayout is returned when a field does not fit the token layout.
var ErrTokenLayout = errors.New("bad token layout")

// HasToken reports whether s carries enough to resume without a password.
func (s *Sig) HasToken() bool {
	return s != nil && len(s.D2Key) > 0 && len(s.D2) > 0 && len(s.TGT) > 0
}

// MarshalToken serializes the resumable subset of s.
func (s *Sig) MarshalToken() ([]byte, error) {
	fields := []struct {
		name string
		b    []byte
		size int
	}{
		{"d2key", s.D2Key, tokenD2KeySize},
		{"d2", s.D2, tokenD2Size},
		{"t134", s.WtSessionTicketKey, tokenT134Size},
		{"t133", s.T133, tokenT133Size},
		{"t16a", s.SrmToken, tokenT16ASize},
		{"tgt", s.TGT, tokenTGTSize},
	}
	out := make([]byte, 0, tokenFixedSize+len(s.DeviceToken))
	for _, f := range fields {
		if len(f.b) != f.size {
			return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrTokenLayout, f.name, len(f.b), f.size)
		}
		out = append(out, f.b...)
	}
	return append(out, s.DeviceToken...), nil
}

// UnmarshalToken is the inverse of MarshalToken.
func UnmarshalToken(b []byte) (*Sig, error) {
	if len(b) < tokenFixedSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTokenLayout, len(b))
	}
	r := packet.NewReader(b)
	next := func(n int) []byte {
		v, _ := r.ReadBytes(n)
		return append([]byte(nil), v...)
	}
	s := &Sig{}
	s.D2Key = next(tokenD2KeySize)
	s.D2 = next(tokenD2Size)
	s.WtSessionTicketKey = next(tokenT134Size)
	s.T133 = next(tokenT133Size)
	s.SrmToken = next(tokenT16ASize)
	s.TGT = next(tokenTGTSize)
	s.DeviceToken = append([]byte(nil), r.Rest()...)
	return s, nil
}

// Merge copies every non-empty field of o into s.
func (s *Sig) Merge(o *Sig) {
	set := func(dst *[]byte, v []byte) {
		if len(v) > 0 {
			*dst = v
		}
	}
	set(&s.TGT, o.TGT)
	set(&s.TGTGT, o.TGTGT)
	set(&s.D2, o.D2)
	set(&s.D2Key, o.D2Key)
	set(&s.SKey, o.SKey)
	set(&s.SrmToken, o.SrmToken)
	set(&s.T133, o.T133)
	set(&s.WtSessionTicketKey, o.WtSessionTicketKey)
	set(&s.KSID, o.KSID)
	set(&s.DeviceToken, o.DeviceToken)
	if o.Nickname != "" {
		s.Nickname = o.Nickname
	}
	if o.PsKeys != nil {
		s.PsKeys = o.PsKeys
	}
	if o.Pt4Tokens != nil {
		s.Pt4Tokens = o.Pt4Tokens
	}
	if !o.ExpiresAt.IsZero() {
		s.ExpiresAt = o.ExpiresAt
	}
}

// Clone returns a deep enough copy for a reader outside the session lock.
func (s *Sig) Clone() *Sig {
	c := *s
	return &c
}

// Sig bundle tags inside the decrypted t119.
const (
	tagTGT         = 0x10A
	tagD2          = 0x143
	tagD2Key       = 0x305
	tagSKey        = 0x120
	tagSrmToken    = 0x16A
	tagT133        = 0x133
	tagTicketKey   = 0x134
	tagDeviceToken = 0x322
	tagNick        = 0x11A
	tagCookies     = 0x512
	tagExpiry      = 0x138
	tagKSID        = 0x108
)

// decodeSig reads the bundle fields of a decrypted t119.
func decodeSig(m tlv.Map, now time.Time) (*Sig, error) {
	s := &Sig{
		TGT:                m[tagTGT],
		D2:                 m[tagD2],
		D2Key:              m[tagD2Key],
		SKey:               m[tagSKey],
		SrmToken:           m[tagSrmToken],
		T133:               m[tagT133],
		WtSessionTicketKey: m[tagTicketKey],
		DeviceToken:        m[tagDeviceToken],
		KSID:               m[tagKSID],
	}
	if len(s.D2Key) == 0 || len(s.D2) == 0 || len(s.TGT) == 0 {
		return nil, fmt.Errorf("%w: sig bundle without d2/d2key/tgt", packet.ErrDecode)
	}
	if b, ok := m[tagNick]; ok {
		nick, err := decodeNick(b)
		if err != nil {
			return nil, err
		}
		s.Nickname = nick
	}
	if b, ok := m[tagCookies]; ok {
		ps, pt4, err := decodeCookies(b)
		if err != nil {
			return nil, err
		}
		s.PsKeys, s.Pt4Tokens = ps, pt4
	}
	if b, ok := m[tagExpiry]; ok {
		if ttl, ok := decodeExpiry(b); ok {
			s.ExpiresAt = now.Add(ttl)
		}
	}
	return s, nil
}

// t11a: u16 face | u8 age | u8 gender | u8 len | nick
func decodeNick(b []byte) (string, error) {
	r := packet.NewReader(b)
	if err := r.Skip(4); err != nil {
		return "", fmt.Errorf("reading t11a: %w", err)
	}
	n, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("reading t11a: %w", err)
	}
	nick, err := r.ReadBytes(int(n))
	if err != nil {
		return "", fmt.Errorf("reading t11a: %w", err)
	}
	return string(nick), nil
}

// t512: u16 count, then per domain `lp16 domain | lp16 pskey | lp16 pt4token`.
func decodeCookies(b []byte) (ps, pt4 map[string][]byte, err error) {
	r := packet.NewReader(b)
	n, err := r.ReadU16()
	if err != nil {
		return nil, nil, fmt.Errorf("reading t512: %w", err)
	}
	ps = make(map[string][]byte, n)
	pt4 = make(map[string][]byte, n)
	for range n {
		domain, err := r.ReadTlv()
		if err != nil {
			return nil, nil, fmt.Errorf("reading t512 domain: %w", err)
		}
		key, err := r.ReadTlv()
		if err != nil {
			return nil, nil, fmt.Errorf("reading t512 pskey: %w", err)
		}
		tok, err := r.ReadTlv()
		if err != nil {
			return nil, nil, fmt.Errorf("reading t512 pt4token: %w", err)
		}
		if len(key) > 0 {
			ps[string(domain)] = append([]byte(nil), key...)
		}
		if len(tok) > 0 {
			pt4[string(domain)] = append([]byte(nil), tok...)
		}
	}
	return ps, pt4, nil
}

// t138: u32 count, then `u16 tag | u32 seconds | u32 0` per sig. The d2
// lifetime bounds the bundle.
func decodeExpiry(b []byte) (time.Duration, bool) {
	r := packet.NewReader(b)
	n, err := r.ReadU32()
	if err != nil {
		return 0, false
	}
	for range n {
		tag, err := r.ReadU16()
		if err != nil {
			return 0, false
		}
		secs, err := r.ReadU32()
		if err != nil {
			return 0, false
		}
		if err := r.Skip(4); err != nil {
			return 0, false
		}
		if tag == tagD2 {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}
