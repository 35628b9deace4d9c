package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/tea"

	"github.com/udisondev/goicq/internal/packet"
)

const (
	// TeaKeySize is the TEA key size in bytes (128-bit).
	TeaKeySize = 16

	// TeaBlockSize is the TEA block size in bytes (64-bit).
	TeaBlockSize = 8

	// teaRounds is counted in half-rounds by x/crypto/tea: 32 → 16 cycles.
	teaRounds = 32

	teaTrailerSize = 7
)

// ZeroKey is the all-zero key used by encryption type 2 frames.
var ZeroKey = make([]byte, TeaKeySize)

// TeaCipher wraps the 16-cycle TEA block cipher with the protocol's
// self-chaining padded framing.
type TeaCipher struct {
	block cipher.Block
}

// NewTeaCipher creates a TEA cipher from a 16-byte key.
func NewTeaCipher(key []byte) (*TeaCipher, error) {
	b, err := tea.NewCipherWithRounds(key, teaRounds)
	if err != nil {
		return nil, fmt.Errorf("creating tea cipher: %w", err)
	}
	return &TeaCipher{block: b}, nil
}

func (t *TeaCipher) encode(v uint64) uint64 {
	var b [TeaBlockSize]byte
	binary.BigEndian.PutUint64(b[:], v)
	t.block.Encrypt(b[:], b[:])
	return binary.BigEndian.Uint64(b[:])
}

func (t *TeaCipher) decode(v uint64) uint64 {
	var b [TeaBlockSize]byte
	binary.BigEndian.PutUint64(b[:], v)
	t.block.Decrypt(b[:], b[:])
	return binary.BigEndian.Uint64(b[:])
}

// Encrypt pads and encrypts src. The output length is always a multiple of 8.
//
// Layout before encryption: one header byte carrying the pad count in its low
// 3 bits, 2..9 random pad bytes, src, 7 zero bytes.
func (t *TeaCipher) Encrypt(src []byte) []byte {
	fill := 10 - (len(src)+1)%TeaBlockSize
	dst := make([]byte, fill+len(src)+teaTrailerSize)
	_, _ = rand.Read(dst[:fill])
	dst[0] = byte(fill-3) | 0xF8
	copy(dst[fill:], src)

	var prevOut, prevIn uint64
	for i := 0; i < len(dst); i += TeaBlockSize {
		in := binary.BigEndian.Uint64(dst[i:]) ^ prevOut
		out := t.encode(in) ^ prevIn
		prevIn = in
		prevOut = out
		binary.BigEndian.PutUint64(dst[i:], out)
	}
	return dst
}

// Decrypt reverses Encrypt. It fails with packet.ErrDecode when the input is
// not block aligned, too short, or the zero trailer does not validate.
func (t *TeaCipher) Decrypt(src []byte) ([]byte, error) {
	if len(src)%TeaBlockSize != 0 || len(src) < 2*TeaBlockSize {
		return nil, fmt.Errorf("tea decrypt: %w: length %d", packet.ErrDecode, len(src))
	}

	dst := make([]byte, len(src))
	var prevCipher, prevIn uint64
	for i := 0; i < len(src); i += TeaBlockSize {
		block := binary.BigEndian.Uint64(src[i:])
		in := t.decode(block ^ prevIn)
		prevIn = in
		binary.BigEndian.PutUint64(dst[i:], in^prevCipher)
		prevCipher = block
	}

	for _, b := range dst[len(dst)-teaTrailerSize:] {
		if b != 0 {
			return nil, fmt.Errorf("tea decrypt: %w: bad trailer", packet.ErrDecode)
		}
	}
	start := int(dst[0]&7) + 3
	end := len(dst) - teaTrailerSize
	if start > end {
		return nil, fmt.Errorf("tea decrypt: %w: bad padding", packet.ErrDecode)
	}
	return dst[start:end], nil
}

// TeaEncrypt encrypts src with key. key must be 16 bytes.
func TeaEncrypt(src, key []byte) ([]byte, error) {
	c, err := NewTeaCipher(key)
	if err != nil {
		return nil, err
	}
	return c.Encrypt(src), nil
}

// TeaDecrypt decrypts src with key. key must be 16 bytes.
func TeaDecrypt(src, key []byte) ([]byte, error) {
	c, err := NewTeaCipher(key)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(src)
}
