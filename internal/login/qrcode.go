package login

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/tlv"
)

// trans_emp sub commands.
const (
	qrCmdFetch = 0x31
	qrCmdQuery = 0x12
)

// code2dHeadSize is the fixed part of a code2d packet, from the leading
// 0x02 through the u64 before the body.
const code2dHeadSize = 43

var transEmpHead, _ = hex.DecodeString("0001110000001000000072000000")

var qrFetchTags = []uint16{0x016, 0x01B, 0x01D, 0x01F, 0x033, 0x035}

// QR TLVs of a confirmed scan.
const (
	tagQRImage = 0x17
	tagQRT106  = 0x18
	tagQRT16A  = 0x19
	tagQRT318  = 0x65
	tagQRTGTGT = 0x1E
)

func code2d(cmd uint16, body []byte, now time.Time) []byte {
	return packet.Build(func(w *packet.Writer) {
		w.WriteBytes(transEmpHead)
		w.WriteU32(uint32(now.Unix()))

		w.WriteU8(0x02)
		w.WriteU16(uint16(code2dHeadSize + len(body) + 1))
		w.WriteU16(cmd)
		w.WriteBytes(make([]byte, 21))
		w.WriteU8(0x03)
		w.WriteU16(0)
		w.WriteU16(50)
		w.WriteU32(0)
		w.WriteU64(0)
		w.WriteBytes(body)
		w.WriteU8(0x03)
	})
}

func qrFetchBody(e *tlv.Env, now time.Time) ([]byte, error) {
	fields, err := tlv.Pack(e, qrFetchTags...)
	if err != nil {
		return nil, err
	}
	body := packet.Build(func(w *packet.Writer) {
		w.WriteU16(0)
		w.WriteU32(16)
		w.WriteU64(0)
		w.WriteU8(8)
		w.WriteTlv(nil)
		w.WriteU16(uint16(len(qrFetchTags)))
		w.WriteBytes(fields)
	})
	return code2d(qrCmdFetch, body, now), nil
}

func qrQueryBody(sig []byte, now time.Time) []byte {
	body := packet.Build(func(w *packet.Writer) {
		w.WriteU16(5)
		w.WriteU8(1)
		w.WriteU32(8)
		w.WriteU32(16)
		w.WriteTlv(sig)
		w.WriteU64(0)
		w.WriteU8(8)
		w.WriteTlv(nil)
		w.WriteU16(0)
	})
	return code2d(qrCmdQuery, body, now)
}

// qrResult is a decoded trans_emp response.
type qrResult struct {
	cmd   uint16
	image []byte
	sig   []byte
	state QRState
	uin   int64
	// confirmed scan
	t106, t16a, t318, tgtgt []byte
}

func decodeTransEmp(b []byte) (*qrResult, error) {
	r := packet.NewReader(b)
	if err := r.Skip(5 + 1 + 2); err != nil {
		return nil, fmt.Errorf("reading trans_emp head: %w", err)
	}
	cmd, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("reading trans_emp head: %w", err)
	}
	if err := r.Skip(21 + 1 + 2 + 2 + 4 + 8); err != nil {
		return nil, fmt.Errorf("reading trans_emp head: %w", err)
	}
	rest := r.Rest()
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: empty trans_emp body", packet.ErrDecode)
	}
	body := packet.NewReader(rest[:len(rest)-1])

	switch cmd {
	case qrCmdFetch:
		return decodeQRFetch(body)
	case qrCmdQuery:
		return decodeQRQuery(body)
	default:
		return nil, fmt.Errorf("%w: trans_emp cmd 0x%X", packet.ErrDecode, cmd)
	}
}

func decodeQRFetch(r *packet.Reader) (*qrResult, error) {
	if err := r.Skip(2 + 4); err != nil {
		return nil, fmt.Errorf("reading qr fetch: %w", err)
	}
	code, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading qr fetch: %w", err)
	}
	if code != 0 {
		return nil, &Error{Code: int(code), Message: "qr code fetch rejected"}
	}
	sig, err := r.ReadTlv()
	if err != nil {
		return nil, fmt.Errorf("reading qr sig: %w", err)
	}
	m, _, err := tlv.ReadCounted(r.Rest())
	if err != nil {
		return nil, err
	}
	img, ok := m[tagQRImage]
	if !ok {
		return nil, fmt.Errorf("%w: qr fetch without image", packet.ErrDecode)
	}
	return &qrResult{cmd: qrCmdFetch, image: img, sig: sig}, nil
}

func decodeQRQuery(r *packet.Reader) (*qrResult, error) {
	n, err := r.ReadU16()
	if err != nil {
		return nil, fmt.Errorf("reading qr query: %w", err)
	}
	if n > 0 {
		n--
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("reading qr query: %w", err)
		}
		if kind == 2 {
			if err := r.Skip(8); err != nil {
				return nil, fmt.Errorf("reading qr query: %w", err)
			}
			n -= 8
		}
	}
	if err := r.Skip(int(n) + 4); err != nil {
		return nil, fmt.Errorf("reading qr query: %w", err)
	}
	code, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading qr state: %w", err)
	}
	res := &qrResult{cmd: qrCmdQuery, state: QRState(code)}
	if res.state != QRConfirmed {
		return res, nil
	}

	uin, err := r.ReadU64()
	if err != nil {
		return nil, fmt.Errorf("reading qr uin: %w", err)
	}
	if err := r.Skip(4); err != nil {
		return nil, fmt.Errorf("reading qr result: %w", err)
	}
	m, _, err := tlv.ReadCounted(r.Rest())
	if err != nil {
		return nil, err
	}
	res.uin = int64(uin)
	res.t106, res.t16a, res.t318, res.tgtgt = m[tagQRT106], m[tagQRT16A], m[tagQRT318], m[tagQRTGTGT]
	if len(res.t106) == 0 || len(res.tgtgt) == 0 {
		return nil, fmt.Errorf("%w: confirmed qr without t106/tgtgt", packet.ErrDecode)
	}
	return res, nil
}
