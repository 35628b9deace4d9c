package testutil

import (
	"fmt"
	"time"

	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/tlv"
)

// Теги t119 и code2d ответов.
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

	tagQRImage = 0x17
	tagQRT106  = 0x18
	tagQRT16A  = 0x19
	tagQRT318  = 0x65
	tagQRTGTGT = 0x1E
)

const (
	qrCmdFetch = 0x31
	qrCmdQuery = 0x12

	// transEmpHeadSize — длина заголовка trans_emp перед code2d телом.
	transEmpHeadSize = 14
	code2dHeadSize   = 43
)

// ReadLoginRequest разбирает тело wtlogin запроса на subcmd и поля.
func ReadLoginRequest(body []byte) (uint16, tlv.Map, error) {
	r := packet.NewReader(body)
	sub, err := r.ReadU16()
	if err != nil {
		return 0, nil, fmt.Errorf("reading sub command: %w", err)
	}
	m, _, err := tlv.ReadCounted(r.Rest())
	if err != nil {
		return 0, nil, err
	}
	return sub, m, nil
}

// ReadTransEmp возвращает code2d команду trans_emp запроса.
func ReadTransEmp(body []byte) (uint16, error) {
	r := packet.NewReader(body)
	if err := r.Skip(transEmpHeadSize + 4 + 1 + 2); err != nil {
		return 0, fmt.Errorf("reading trans_emp request: %w", err)
	}
	cmd, err := r.ReadU16()
	if err != nil {
		return 0, fmt.Errorf("reading trans_emp request: %w", err)
	}
	return cmd, nil
}

// LoginResponse собирает `u16 subcmd | u8 status | u16 count | fields`.
func LoginResponse(sub uint16, status byte, fields tlv.Map) []byte {
	return packet.Build(func(w *packet.Writer) {
		w.WriteU16(sub)
		w.WriteU8(status)
		w.WriteBytes(fields.MarshalCounted())
	})
}

// SealSig кодирует s как t119 успешного ответа, запечатанный ключом key.
// Положительный ttl попадает в t138 как срок жизни d2.
func SealSig(s *login.Sig, key []byte, ttl time.Duration) ([]byte, error) {
	m := tlv.Map{
		tagTGT:   s.TGT,
		tagD2:    s.D2,
		tagD2Key: s.D2Key,
	}
	for tag, v := range map[uint16][]byte{
		tagSKey:        s.SKey,
		tagSrmToken:    s.SrmToken,
		tagT133:        s.T133,
		tagTicketKey:   s.WtSessionTicketKey,
		tagDeviceToken: s.DeviceToken,
		tagKSID:        s.KSID,
	} {
		if len(v) > 0 {
			m[tag] = v
		}
	}
	if s.Nickname != "" {
		m[tagNick] = packet.Build(func(w *packet.Writer) {
			w.WriteU16(0)
			w.WriteU8(0)
			w.WriteU8(0)
			w.WriteU8(byte(len(s.Nickname)))
			w.WriteBytes([]byte(s.Nickname))
		})
	}
	if len(s.PsKeys) > 0 || len(s.Pt4Tokens) > 0 {
		domains := make(map[string]struct{})
		for d := range s.PsKeys {
			domains[d] = struct{}{}
		}
		for d := range s.Pt4Tokens {
			domains[d] = struct{}{}
		}
		m[tagCookies] = packet.Build(func(w *packet.Writer) {
			w.WriteU16(uint16(len(domains)))
			for d := range domains {
				w.WriteTlvString(d)
				w.WriteTlv(s.PsKeys[d])
				w.WriteTlv(s.Pt4Tokens[d])
			}
		})
	}
	if ttl > 0 {
		m[tagExpiry] = packet.Build(func(w *packet.Writer) {
			w.WriteU32(1)
			w.WriteU16(tagD2)
			w.WriteU32(uint32(ttl / time.Second))
			w.WriteU32(0)
		})
	}
	return crypto.TeaEncrypt(m.MarshalCounted(), key)
}

// TransEmpFetchResponse собирает ответ на запрос QR-кода.
func TransEmpFetchResponse(sig, image []byte) []byte {
	return transEmpResponse(qrCmdFetch, packet.Build(func(w *packet.Writer) {
		w.WriteU16(0)
		w.WriteU32(0)
		w.WriteU8(0)
		w.WriteTlv(sig)
		w.WriteBytes(tlv.Map{tagQRImage: image}.MarshalCounted())
	}))
}

// TransEmpQueryResponse собирает ответ на опрос QR-кода. uin и блобы
// tgtgt/t106/t16a/t318 отправляются только с login.QRConfirmed.
func TransEmpQueryResponse(state login.QRState, uin int64, tgtgt, t106, t16a, t318 []byte) []byte {
	return transEmpResponse(qrCmdQuery, packet.Build(func(w *packet.Writer) {
		w.WriteU16(0)
		w.WriteU32(0)
		w.WriteU8(byte(state))
		if state != login.QRConfirmed {
			return
		}
		w.WriteU64(uint64(uin))
		w.WriteU32(0)
		w.WriteBytes(tlv.Map{
			tagQRT106:  t106,
			tagQRT16A:  t16a,
			tagQRT318:  t318,
			tagQRTGTGT: tgtgt,
		}.MarshalCounted())
	}))
}

func transEmpResponse(cmd uint16, body []byte) []byte {
	return packet.Build(func(w *packet.Writer) {
		w.WriteBytes(make([]byte, 5))
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

// MessageField собирает t146 с текстом ошибки msg.
func MessageField(title, msg string) []byte {
	return packet.Build(func(w *packet.Writer) {
		w.WriteU32(0)
		w.WriteTlvString(title)
		w.WriteTlvString(msg)
	})
}

// PhoneField собирает t178.
func PhoneField(country, phone string) []byte {
	return packet.Build(func(w *packet.Writer) {
		w.WriteTlvString(country)
		w.WriteTlvString(phone)
	})
}

// CaptchaField собирает t105.
func CaptchaField(sign, image []byte) []byte {
	return packet.Build(func(w *packet.Writer) {
		w.WriteU16(uint16(len(sign)))
		w.WriteU16(uint16(len(image)))
		w.WriteBytes(sign)
		w.WriteBytes(image)
	})
}
