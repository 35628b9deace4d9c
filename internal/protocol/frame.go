// Package protocol implements the outer frame codec, the oicq login envelope
// and the stream reassembler for the persistent TCP session.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/packet"
)

// EncryptType selects the TEA key of a frame body.
type EncryptType uint8

const (
	EncryptNone    EncryptType = 0
	EncryptD2Key   EncryptType = 1
	EncryptZeroKey EncryptType = 2
)

// String returns a readable name for logging.
func (e EncryptType) String() string {
	switch e {
	case EncryptNone:
		return "NONE"
	case EncryptD2Key:
		return "D2KEY"
	case EncryptZeroKey:
		return "ZEROKEY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(e))
	}
}

var (
	// ErrRetCode is wrapped by *RetCodeError.
	ErrRetCode = errors.New("non-zero return code")

	// ErrNoSessionKey is returned when a d2key frame arrives before login finished.
	ErrNoSessionKey = errors.New("no session key")
)

// RetCodeError is returned by ParseFrame when the SSO head carries a non-zero
// return code. The Frame returned alongside still has Seq and Command set.
type RetCodeError struct {
	Code    int32
	Message string
}

func (e *RetCodeError) Error() string {
	return fmt.Sprintf("return code %d: %s", e.Code, e.Message)
}

func (e *RetCodeError) Unwrap() error { return ErrRetCode }

// Frame is one decoded server frame.
type Frame struct {
	Seq         int32
	RetCode     int32
	Message     string
	Command     string
	Session     []byte
	Payload     []byte
	EncryptType EncryptType
}

// LoginHeader describes a marker 0x0A frame with the full SSO head.
type LoginHeader struct {
	Seq         int32
	AppID       uint32
	SubAppID    uint32
	Uin         int64
	Command     string
	EncryptType EncryptType
	D2          []byte
	D2Key       []byte
	TGT         []byte
	Session     []byte
	IMEI        string
	KSID        []byte
}

// UniHeader describes a marker 0x0B steady-state frame.
type UniHeader struct {
	Seq     int32
	Uin     int64
	Command string
	Session []byte
	D2Key   []byte
}

var ssoFixed = []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00}

// BuildLoginFrame serializes a full-head frame including its length prefix.
// A d2key frame without d2 falls back to the zero key.
func BuildLoginFrame(h LoginHeader, body []byte) ([]byte, error) {
	enc := h.EncryptType
	if enc == EncryptD2Key && (len(h.D2) == 0 || len(h.D2Key) == 0) {
		enc = EncryptZeroKey
	}

	sso := packet.Get()
	defer sso.Put()

	pos := sso.Reserve()
	sso.WriteU32(uint32(h.Seq))
	sso.WriteU32(h.AppID)
	sso.WriteU32(h.SubAppID)
	sso.WriteBytes(ssoFixed)
	sso.WriteWithLength(h.TGT)
	sso.WriteStringWithLength(h.Command)
	sso.WriteWithLength(h.Session)
	sso.WriteStringWithLength(h.IMEI)
	sso.WriteU32(4)
	sso.WriteU16(uint16(len(h.KSID) + 2))
	sso.WriteBytes(h.KSID)
	sso.WriteU32(4)
	sso.PutU32At(pos, uint32(sso.Len()-pos))
	sso.WriteWithLength(body)

	sealed, err := seal(enc, h.D2Key, sso.Bytes())
	if err != nil {
		return nil, err
	}

	w := packet.Get()
	defer w.Put()
	start := w.Reserve()
	w.WriteU32(constants.FrameMarkerLogin)
	w.WriteU8(byte(enc))
	if enc == EncryptD2Key {
		w.WriteWithLength(h.D2)
	} else {
		w.WriteU32(4)
	}
	w.WriteU8(0)
	w.WriteStringWithLength(strconv.FormatInt(h.Uin, 10))
	w.WriteBytes(sealed)
	w.PutU32At(start, uint32(w.Len()))
	return w.Copy(), nil
}

// BuildUniFrame serializes a steady-state frame including its length prefix.
// The body is always sealed with d2key.
func BuildUniFrame(h UniHeader, body []byte) ([]byte, error) {
	if len(h.D2Key) == 0 {
		return nil, fmt.Errorf("building %s frame: %w", h.Command, ErrNoSessionKey)
	}

	inner := packet.Get()
	defer inner.Put()
	pos := inner.Reserve()
	inner.WriteStringWithLength(h.Command)
	inner.WriteWithLength(h.Session)
	inner.WriteU32(4)
	inner.PutU32At(pos, uint32(inner.Len()-pos))
	inner.WriteWithLength(body)

	sealed, err := seal(EncryptD2Key, h.D2Key, inner.Bytes())
	if err != nil {
		return nil, err
	}

	w := packet.Get()
	defer w.Put()
	start := w.Reserve()
	w.WriteU32(constants.FrameMarkerUni)
	w.WriteU8(byte(EncryptD2Key))
	w.WriteU32(uint32(h.Seq))
	w.WriteU8(0)
	w.WriteStringWithLength(strconv.FormatInt(h.Uin, 10))
	w.WriteBytes(sealed)
	w.PutU32At(start, uint32(w.Len()))
	return w.Copy(), nil
}

func seal(enc EncryptType, d2key, plain []byte) ([]byte, error) {
	switch enc {
	case EncryptNone:
		out := make([]byte, len(plain))
		copy(out, plain)
		return out, nil
	case EncryptD2Key:
		return crypto.TeaEncrypt(plain, d2key)
	case EncryptZeroKey:
		return crypto.TeaEncrypt(plain, crypto.ZeroKey)
	default:
		return nil, fmt.Errorf("sealing frame: unknown encrypt type %d", enc)
	}
}

func open(enc EncryptType, d2key, sealed []byte) ([]byte, error) {
	switch enc {
	case EncryptNone:
		return sealed, nil
	case EncryptD2Key:
		if len(d2key) == 0 {
			return nil, ErrNoSessionKey
		}
		return crypto.TeaDecrypt(sealed, d2key)
	case EncryptZeroKey:
		return crypto.TeaDecrypt(sealed, crypto.ZeroKey)
	default:
		return nil, fmt.Errorf("%w: unknown encrypt type %d", packet.ErrDecode, enc)
	}
}

// ParseFrame decodes a frame without its length prefix (as yielded by Stream).
//
// On a non-zero return code both the frame and a *RetCodeError are returned
// so the caller can still fail the matching request.
func ParseFrame(b, d2key []byte) (*Frame, error) {
	r := packet.NewReader(b)
	marker, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("reading frame marker: %w", err)
	}
	if marker != constants.FrameMarkerLogin && marker != constants.FrameMarkerUni {
		return nil, fmt.Errorf("%w: unknown frame marker 0x%X", packet.ErrDecode, marker)
	}
	flag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading encrypt flag: %w", err)
	}
	if err := r.Skip(1); err != nil {
		return nil, fmt.Errorf("reading frame head: %w", err)
	}
	if _, err := r.ReadWithLength(); err != nil {
		return nil, fmt.Errorf("reading frame uin: %w", err)
	}

	enc := EncryptType(flag)
	plain, err := open(enc, d2key, r.Rest())
	if err != nil {
		return nil, fmt.Errorf("decrypting frame: %w", err)
	}

	f, err := parseSSO(plain)
	if f != nil {
		f.EncryptType = enc
	}
	return f, err
}

func parseSSO(b []byte) (*Frame, error) {
	r := packet.NewReader(b)
	headLen, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("reading sso head length: %w", err)
	}
	if headLen < 4 || int(headLen) > len(b) {
		return nil, fmt.Errorf("%w: sso head length %d of %d", packet.ErrDecode, headLen, len(b))
	}
	head, _ := r.ReadBytes(int(headLen) - 4)
	hr := packet.NewReader(head)

	f := &Frame{}
	if f.Seq, err = hr.ReadI32(); err != nil {
		return nil, fmt.Errorf("reading sso seq: %w", err)
	}
	if f.RetCode, err = hr.ReadI32(); err != nil {
		return nil, fmt.Errorf("reading sso retcode: %w", err)
	}
	if f.Message, err = hr.ReadStringWithLength(); err != nil {
		return nil, fmt.Errorf("reading sso message: %w", err)
	}
	if f.Command, err = hr.ReadStringWithLength(); err != nil {
		return nil, fmt.Errorf("reading sso command: %w", err)
	}
	if f.Session, err = hr.ReadWithLength(); err != nil {
		return nil, fmt.Errorf("reading sso session: %w", err)
	}
	compress, err := hr.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("reading sso compress flag: %w", err)
	}

	if f.RetCode != 0 {
		return f, &RetCodeError{Code: f.RetCode, Message: f.Message}
	}
	if f.Command == constants.CmdHeartbeat {
		f.Payload = []byte{}
		return f, nil
	}

	switch compress {
	case constants.CompressNone:
		f.Payload, err = r.ReadWithLength()
	case constants.CompressZlib:
		var deflated []byte
		if deflated, err = r.ReadWithLength(); err == nil {
			f.Payload, err = inflate(deflated)
		}
	case constants.CompressRaw:
		f.Payload = r.Rest()
	default:
		err = fmt.Errorf("%w: unknown compress flag %d", packet.ErrDecode, compress)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s body: %w", f.Command, err)
	}
	return f, nil
}

func inflate(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", packet.ErrDecode, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib: %v", packet.ErrDecode, err)
	}
	return out, nil
}
