package testutil

import (
	"bytes"
	"crypto/ecdh"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zlib"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/protocol"
)

// ssoFixedSize — длина неизменной части sso-заголовка login кадра.
const ssoFixedSize = 12

// ClientFrame — кадр клиента, разобранный на стороне сервера.
type ClientFrame struct {
	Marker      uint32
	Seq         int32
	Uin         int64
	Command     string
	Session     []byte
	IMEI        string
	KSID        []byte
	TGT         []byte
	Body        []byte
	EncryptType protocol.EncryptType
}

// ParseClientFrame разбирает кадр protocol.BuildLoginFrame или
// protocol.BuildUniFrame без префикса длины.
func ParseClientFrame(b, d2key []byte) (*ClientFrame, error) {
	r := packet.NewReader(b)
	f := &ClientFrame{}
	var err error
	if f.Marker, err = r.ReadU32(); err != nil {
		return nil, fmt.Errorf("reading frame marker: %w", err)
	}
	flag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading encrypt flag: %w", err)
	}
	f.EncryptType = protocol.EncryptType(flag)

	switch f.Marker {
	case constants.FrameMarkerLogin:
		if _, err = r.ReadWithLength(); err != nil {
			return nil, fmt.Errorf("reading d2: %w", err)
		}
	case constants.FrameMarkerUni:
		seq, err := r.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("reading seq: %w", err)
		}
		f.Seq = seq
	default:
		return nil, fmt.Errorf("%w: unknown frame marker 0x%X", packet.ErrDecode, f.Marker)
	}
	if err = r.Skip(1); err != nil {
		return nil, fmt.Errorf("reading frame head: %w", err)
	}
	uin, err := r.ReadStringWithLength()
	if err != nil {
		return nil, fmt.Errorf("reading uin: %w", err)
	}
	if f.Uin, err = strconv.ParseInt(uin, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: uin %q", packet.ErrDecode, uin)
	}

	plain, err := openFrame(f.EncryptType, d2key, r.Rest())
	if err != nil {
		return nil, fmt.Errorf("decrypting frame: %w", err)
	}

	pr := packet.NewReader(plain)
	head, err := pr.ReadWithLength()
	if err != nil {
		return nil, fmt.Errorf("reading head: %w", err)
	}
	if f.Body, err = pr.ReadWithLength(); err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	hr := packet.NewReader(head)
	if f.Marker == constants.FrameMarkerLogin {
		seq, err := hr.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("reading seq: %w", err)
		}
		f.Seq = seq
		if err := hr.Skip(8 + ssoFixedSize); err != nil {
			return nil, fmt.Errorf("reading app ids: %w", err)
		}
		if f.TGT, err = hr.ReadWithLength(); err != nil {
			return nil, fmt.Errorf("reading tgt: %w", err)
		}
	}
	if f.Command, err = hr.ReadStringWithLength(); err != nil {
		return nil, fmt.Errorf("reading command: %w", err)
	}
	if f.Session, err = hr.ReadWithLength(); err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	if f.Marker == constants.FrameMarkerLogin {
		if f.IMEI, err = hr.ReadStringWithLength(); err != nil {
			return nil, fmt.Errorf("reading imei: %w", err)
		}
		if err := hr.Skip(4); err != nil {
			return nil, fmt.Errorf("reading ksid: %w", err)
		}
		n, err := hr.ReadU16()
		if err != nil || n < 2 {
			return nil, fmt.Errorf("%w: ksid length", packet.ErrDecode)
		}
		if f.KSID, err = hr.ReadBytes(int(n) - 2); err != nil {
			return nil, fmt.Errorf("reading ksid: %w", err)
		}
	}
	return f, nil
}

// BuildServerFrame собирает кадр сервера с флагом сжатия compress
// (constants.CompressNone, CompressZlib или CompressRaw).
func BuildServerFrame(f *protocol.Frame, uin int64, d2key []byte, compress int32) ([]byte, error) {
	body := packet.Get()
	defer body.Put()

	pos := body.Reserve()
	body.WriteU32(uint32(f.Seq))
	body.WriteU32(uint32(f.RetCode))
	body.WriteStringWithLength(f.Message)
	body.WriteStringWithLength(f.Command)
	body.WriteWithLength(f.Session)
	body.WriteU32(uint32(compress))
	body.PutU32At(pos, uint32(body.Len()-pos))

	switch compress {
	case constants.CompressNone:
		body.WriteWithLength(f.Payload)
	case constants.CompressZlib:
		body.WriteWithLength(deflate(f.Payload))
	case constants.CompressRaw:
		body.WriteBytes(f.Payload)
	default:
		return nil, fmt.Errorf("building server frame: unknown compress flag %d", compress)
	}

	sealed, err := sealFrame(f.EncryptType, d2key, body.Bytes())
	if err != nil {
		return nil, err
	}

	w := packet.Get()
	defer w.Put()
	start := w.Reserve()
	w.WriteU32(constants.FrameMarkerLogin)
	w.WriteU8(byte(f.EncryptType))
	w.WriteU8(0)
	w.WriteStringWithLength(strconv.FormatInt(uin, 10))
	w.WriteBytes(sealed)
	w.PutU32At(start, uint32(w.Len()))
	return w.Copy(), nil
}

func sealFrame(enc protocol.EncryptType, d2key, plain []byte) ([]byte, error) {
	switch enc {
	case protocol.EncryptNone:
		return bytes.Clone(plain), nil
	case protocol.EncryptD2Key:
		return crypto.TeaEncrypt(plain, d2key)
	case protocol.EncryptZeroKey:
		return crypto.TeaEncrypt(plain, crypto.ZeroKey)
	default:
		return nil, fmt.Errorf("sealing frame: unknown encrypt type %d", enc)
	}
}

func openFrame(enc protocol.EncryptType, d2key, sealed []byte) ([]byte, error) {
	switch enc {
	case protocol.EncryptNone:
		return sealed, nil
	case protocol.EncryptD2Key:
		if len(d2key) == 0 {
			return nil, protocol.ErrNoSessionKey
		}
		return crypto.TeaDecrypt(sealed, d2key)
	case protocol.EncryptZeroKey:
		return crypto.TeaDecrypt(sealed, crypto.ZeroKey)
	default:
		return nil, fmt.Errorf("%w: unknown encrypt type %d", packet.ErrDecode, enc)
	}
}

func deflate(b []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write(b)
	_ = zw.Close()
	return buf.Bytes()
}

// OicqServer вскрывает oicq конверты клиента приватным ключом кластера
// и запечатывает ответы выведенным share key.
type OicqServer struct {
	priv *ecdh.PrivateKey
}

// NewOicqServer оборачивает P-256 ключ кластера.
func NewOicqServer(priv *ecdh.PrivateKey) *OicqServer {
	return &OicqServer{priv: priv}
}

// OicqRequest — вскрытый конверт клиента.
type OicqRequest struct {
	protocol.OicqMessage
	ShareKey  []byte
	RandomKey []byte
}

// Unmarshal вскрывает конверт, запечатанный EncryptECDH или EncryptST.
func (s *OicqServer) Unmarshal(b []byte) (*OicqRequest, error) {
	r := packet.NewReader(b)
	if flag, err := r.ReadByte(); err != nil || flag != 0x02 {
		return nil, fmt.Errorf("%w: oicq flag", packet.ErrDecode)
	}
	if len(b) < 28 || b[len(b)-1] != 0x03 {
		return nil, fmt.Errorf("%w: oicq envelope of %d bytes", packet.ErrDecode, len(b))
	}
	_ = r.Skip(4)
	req := &OicqRequest{}
	req.Command, _ = r.ReadU16()
	_ = r.Skip(2)
	req.Uin, _ = r.ReadU32()
	_ = r.Skip(1)
	method, _ := r.ReadByte()
	req.Method = protocol.EncryptMethod(method)
	_ = r.Skip(1 + 12 + 2)

	var err error
	if req.RandomKey, err = r.ReadBytes(crypto.TeaKeySize); err != nil {
		return nil, fmt.Errorf("reading random key: %w", err)
	}
	switch req.Method {
	case protocol.EncryptECDH:
		if err := r.Skip(4); err != nil {
			return nil, fmt.Errorf("reading key version: %w", err)
		}
		pub, err := r.ReadTlv()
		if err != nil {
			return nil, fmt.Errorf("reading public key: %w", err)
		}
		remote, err := ecdh.P256().NewPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: client public key: %v", packet.ErrDecode, err)
		}
		secret, err := s.priv.ECDH(remote)
		if err != nil {
			return nil, fmt.Errorf("computing ecdh secret: %w", err)
		}
		req.ShareKey = crypto.ShareKeyFromSecret(secret)
	case protocol.EncryptST:
		if err := r.Skip(4); err != nil {
			return nil, fmt.Errorf("reading st head: %w", err)
		}
		req.ShareKey = req.RandomKey
	default:
		return nil, fmt.Errorf("%w: oicq method 0x%X", packet.ErrDecode, method)
	}

	sealed := b[r.Position() : len(b)-1]
	if req.Body, err = crypto.TeaDecrypt(sealed, req.ShareKey); err != nil {
		return nil, fmt.Errorf("opening oicq body: %w", err)
	}
	return req, nil
}

// Marshal запечатывает тело ответа ключом key (encrypt type 0).
func (s *OicqServer) Marshal(cmd uint16, uin uint32, key, body []byte) ([]byte, error) {
	sealed, err := crypto.TeaEncrypt(body, key)
	if err != nil {
		return nil, fmt.Errorf("sealing oicq response: %w", err)
	}
	out := packet.Build(func(w *packet.Writer) {
		w.WriteU8(0x02)
		w.WriteU16(uint16(constants.OicqHeaderSize + len(sealed) + 1))
		w.WriteU16(constants.OicqVersion)
		w.WriteU16(cmd)
		w.WriteU16(1)
		w.WriteU32(uin)
		w.WriteU8(0)
		w.WriteU8(0)
		w.WriteU8(0)
		w.WriteBytes(sealed)
		w.WriteU8(0x03)
	})
	return out, nil
}
