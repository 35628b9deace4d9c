package tlv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/pb"
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	d, err := device.Generate()
	require.NoError(t, err)
	app, err := device.AndroidPhone.App()
	require.NoError(t, err)
	return &Env{
		Uin:         10001,
		PasswordMD5: crypto.MD5([]byte("secret")),
		Device:      d,
		App:         app,
		Seq:         7,
	}
}

func TestPack_Layout(t *testing.T) {
	e := testEnv(t)
	b, err := Pack(e, 0x008, 0x154)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x00, 0x08, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x08, 0x04, 0x00, 0x00,
		0x01, 0x54, 0x00, 0x04, 0x00, 0x00, 0x00, 0x07,
	}, b)
}

func TestPack_UnknownTag(t *testing.T) {
	_, err := Pack(testEnv(t), 0x008, 0x9999)
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestPack_MissingField(t *testing.T) {
	tests := []struct {
		name string
		tag  uint16
		mod  func(e *Env)
	}{
		{"t106 without password", 0x106, func(e *Env) { e.PasswordMD5 = nil }},
		{"t104 without challenge", 0x104, func(e *Env) {}},
		{"t174 without sms token", 0x174, func(e *Env) {}},
		{"t17c without code", 0x17C, func(e *Env) {}},
		{"t193 without ticket", 0x193, func(e *Env) {}},
		{"t2 without captcha", 0x002, func(e *Env) {}},
		{"t10a without tgt", 0x10A, func(e *Env) {}},
		{"t108 without device", 0x108, func(e *Env) { e.Device = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnv(t)
			tt.mod(e)
			_, err := Pack(e, tt.tag)
			require.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestPack_EverySupportedTagWithFullEnv(t *testing.T) {
	e := testEnv(t)
	e.TGT = []byte{1}
	e.D2 = []byte{2}
	e.T104 = []byte{3}
	e.T174 = []byte{4}
	e.T16A = []byte{5}
	e.T318 = []byte{6}
	e.CaptchaResult = "abcd"
	e.CaptchaSign = []byte{7}
	e.SliderTicket = "ticket"
	e.SMSCode = "123456"

	tags := Supported()
	require.Contains(t, tags, uint16(0x52D))
	b, err := Pack(e, tags...)
	require.NoError(t, err)

	m, err := Read(b)
	require.NoError(t, err)
	assert.Len(t, m, len(tags))
}

func TestT106_DecryptsWithPasswordKey(t *testing.T) {
	e := testEnv(t)
	b, err := Pack(e, 0x106)
	require.NoError(t, err)
	m, err := Read(b)
	require.NoError(t, err)

	salt := make([]byte, 8)
	salt[4], salt[5], salt[6], salt[7] = 0, 0, 0x27, 0x11 // 10001
	plain, err := crypto.TeaDecrypt(m[0x106], crypto.MD5(e.PasswordMD5, salt))
	require.NoError(t, err)

	r := packet.NewReader(plain)
	ver, _ := r.ReadU16()
	assert.Equal(t, uint16(4), ver)
	require.NoError(t, r.Skip(4+4+4+4))
	uin, _ := r.ReadU64()
	assert.Equal(t, uint64(10001), uin)
	require.NoError(t, r.Skip(4+4+1))
	pw, _ := r.ReadBytes(16)
	assert.Equal(t, e.PasswordMD5, pw)
	tgtgt, _ := r.ReadBytes(16)
	assert.Equal(t, []byte(e.Device.TgtgtKey), tgtgt)
}

func TestT106_QRPassthrough(t *testing.T) {
	e := testEnv(t)
	e.PasswordMD5 = nil
	e.T106 = []byte{0xDE, 0xAD}
	b, err := Pack(e, 0x106)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x06, 0x00, 0x02, 0xDE, 0xAD}, b)
}

func TestT144_NestedFields(t *testing.T) {
	e := testEnv(t)
	b, err := Pack(e, 0x144)
	require.NoError(t, err)
	m, err := Read(b)
	require.NoError(t, err)

	plain, err := crypto.TeaDecrypt(m[0x144], e.Device.TgtgtKey)
	require.NoError(t, err)
	nested, rest, err := ReadCounted(plain)
	require.NoError(t, err)
	assert.Empty(t, rest)
	for _, tag := range []uint16{0x109, 0x52D, 0x124, 0x128, 0x16E} {
		assert.True(t, nested.Has(tag), "0x%X", tag)
	}

	report, err := pb.Decode(nested[0x52D])
	require.NoError(t, err)
	assert.Equal(t, e.Device.BootID, report.String(6))
	assert.Equal(t, []byte(e.Device.Model), nested[0x16E])
}

func TestT401_DeviceLockHash(t *testing.T) {
	e := testEnv(t)
	e.T402 = []byte{9, 9, 9}
	b, err := Pack(e, 0x401)
	require.NoError(t, err)
	m, err := Read(b)
	require.NoError(t, err)
	assert.Equal(t, crypto.MD5(e.Device.Guid(), []byte("stMNokHgxZUGhsYp"), e.T402), m[0x401])
}

func TestT525_WrapsT536(t *testing.T) {
	b, err := Pack(testEnv(t), 0x525)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x25, 0x00, 0x08, 0x00, 0x01, 0x05, 0x36, 0x00, 0x02, 0x01, 0x00}, b)
}

func TestStepSets(t *testing.T) {
	e := testEnv(t)
	e.TGT = []byte{1}
	e.D2 = []byte{2}
	e.T104 = []byte{3}
	e.T174 = []byte{4}
	e.CaptchaResult = "abcd"
	e.CaptchaSign = []byte{5}
	e.SliderTicket = "t"
	e.SMSCode = "1"
	e.T106 = []byte{6}
	e.T16A = []byte{7}
	e.T318 = []byte{8}

	tests := []struct {
		name   string
		build  func(*Env) ([]byte, error)
		subcmd uint16
		count  int
	}{
		{"password", PasswordLogin, 9, 23},
		{"qr", QRLogin, 9, 24},
		{"exchange", Exchange, 11, 16},
		{"captcha", Captcha, 2, 4},
		{"slider", Slider, 2, 4},
		{"sms request", SMSRequest, 8, 6},
		{"sms submit", SMSSubmit, 7, 7},
		{"device lock", DeviceLock, 20, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := tt.build(e)
			require.NoError(t, err)

			r := packet.NewReader(b)
			sub, _ := r.ReadU16()
			assert.Equal(t, tt.subcmd, sub)
			m, rest, err := ReadCounted(r.Rest())
			require.NoError(t, err)
			assert.Empty(t, rest)
			assert.Len(t, m, tt.count)
		})
	}
}

func TestRead_Truncated(t *testing.T) {
	_, err := Read([]byte{0x01, 0x06, 0x00, 0x05, 0xAA})
	require.ErrorIs(t, err, ErrTruncated)
	require.ErrorIs(t, err, packet.ErrDecode)

	_, err = Read([]byte{0x01})
	require.ErrorIs(t, err, ErrTruncated)

	_, _, err = ReadCounted([]byte{0x00, 0x02, 0x00, 0x01, 0x00, 0x00})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestRead_LastDuplicateWins(t *testing.T) {
	m, err := Read([]byte{0x00, 0x01, 0x00, 0x01, 0xAA, 0x00, 0x01, 0x00, 0x01, 0xBB})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xBB}, m[0x001])
}
