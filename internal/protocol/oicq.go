package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/packet"
)

// EncryptMethod selects how an oicq envelope body is keyed.
type EncryptMethod byte

const (
	// EncryptECDH seals the body with the ECDH share key and announces our public key.
	EncryptECDH EncryptMethod = 0x87
	// EncryptST seals the body with the random key and is used once a session ticket exists.
	EncryptST EncryptMethod = 0x45
)

// OicqMessage is the decrypted content of a 0x810/0x812 envelope.
type OicqMessage struct {
	Uin     uint32
	Command uint16
	Method  EncryptMethod
	Body    []byte
}

// OicqCodec seals and opens wtlogin envelopes. One codec lives for the
// whole login of a session; its random key doubles as the fallback
// response key.
type OicqCodec struct {
	ecdh      *crypto.ECDH
	randomKey []byte

	// WtSessionTicketKey opens responses of encrypt type 3.
	WtSessionTicketKey []byte
}

// NewOicqCodec creates a codec around an ECDH exchange.
func NewOicqCodec(e *crypto.ECDH) (*OicqCodec, error) {
	key := make([]byte, crypto.TeaKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating oicq random key: %w", err)
	}
	return &OicqCodec{ecdh: e, randomKey: key}, nil
}

// RandomKey returns the per-codec random key sent in ECDH envelopes.
func (c *OicqCodec) RandomKey() []byte { return c.randomKey }

// ECDH returns the key agreement the codec was created with.
func (c *OicqCodec) ECDH() *crypto.ECDH { return c.ecdh }

// Marshal builds the envelope for m.
func (c *OicqCodec) Marshal(m OicqMessage) ([]byte, error) {
	w := packet.Get()
	defer w.Put()

	w.WriteU8(0x02)
	w.WriteU16(0) // length, patched below
	w.WriteU16(constants.OicqVersion)
	w.WriteU16(m.Command)
	w.WriteU16(1)
	w.WriteU32(m.Uin)
	w.WriteU8(0x03)
	w.WriteU8(byte(m.Method))
	w.WriteU8(0)
	w.WriteU32(2)
	w.WriteU32(0)
	w.WriteU32(0)

	switch m.Method {
	case EncryptECDH:
		sealed, err := crypto.TeaEncrypt(m.Body, c.ecdh.ShareKey)
		if err != nil {
			return nil, fmt.Errorf("sealing oicq body: %w", err)
		}
		w.WriteU8(0x02)
		w.WriteU8(0x01)
		w.WriteBytes(c.randomKey)
		w.WriteU16(0x0131)
		w.WriteU16(c.ecdh.KeyVersion)
		w.WriteTlv(c.ecdh.PublicKey)
		w.WriteBytes(sealed)
	case EncryptST:
		sealed, err := crypto.TeaEncrypt(m.Body, c.randomKey)
		if err != nil {
			return nil, fmt.Errorf("sealing oicq body: %w", err)
		}
		w.WriteU8(0x01)
		w.WriteU8(0x03)
		w.WriteBytes(c.randomKey)
		w.WriteU16(0x0102)
		w.WriteU16(0)
		w.WriteBytes(sealed)
	default:
		return nil, fmt.Errorf("sealing oicq body: unknown method 0x%X", byte(m.Method))
	}
	w.WriteU8(0x03)

	out := w.Copy()
	binary.BigEndian.PutUint16(out[1:3], uint16(len(out)))
	return out, nil
}

// Unmarshal opens a response envelope. Encrypt type 0 is tried with the
// share key first and the random key second.
func (c *OicqCodec) Unmarshal(b []byte) (*OicqMessage, error) {
	if len(b) < constants.OicqHeaderSize+1 {
		return nil, fmt.Errorf("%w: oicq envelope of %d bytes", packet.ErrDecode, len(b))
	}
	if b[0] != 0x02 {
		return nil, fmt.Errorf("%w: oicq flag 0x%X", packet.ErrDecode, b[0])
	}
	r := packet.NewReader(b[:constants.OicqHeaderSize])
	_ = r.Skip(5) // flag, length, version
	cmd, _ := r.ReadU16()
	_ = r.Skip(2)
	uin, _ := r.ReadU32()
	_ = r.Skip(1)
	encType, _ := r.ReadByte()

	sealed := b[constants.OicqHeaderSize : len(b)-1]
	m := &OicqMessage{Uin: uin, Command: cmd}

	var err error
	switch encType {
	case 0:
		m.Body, err = crypto.TeaDecrypt(sealed, c.ecdh.ShareKey)
		if err != nil {
			m.Body, err = crypto.TeaDecrypt(sealed, c.randomKey)
		}
	case 3:
		m.Body, err = crypto.TeaDecrypt(sealed, c.WtSessionTicketKey)
	default:
		return nil, fmt.Errorf("%w: oicq encrypt type %d", packet.ErrDecode, encType)
	}
	if err != nil {
		return nil, fmt.Errorf("opening oicq body: %w", err)
	}
	return m, nil
}
