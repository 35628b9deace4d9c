package login

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/tlv"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testSig() *Sig {
	return &Sig{
		D2Key:              bytes.Repeat([]byte{1}, tokenD2KeySize),
		D2:                 bytes.Repeat([]byte{2}, tokenD2Size),
		WtSessionTicketKey: bytes.Repeat([]byte{3}, tokenT134Size),
		T133:               bytes.Repeat([]byte{4}, tokenT133Size),
		SrmToken:           bytes.Repeat([]byte{5}, tokenT16ASize),
		TGT:                bytes.Repeat([]byte{6}, tokenTGTSize),
		DeviceToken:        []byte("device-token"),
		SKey:               []byte("@abcdefgh"),
		Nickname:           "tester",
		PsKeys:             map[string][]byte{"qun.qq.com": []byte("pskey")},
		Pt4Tokens:          map[string][]byte{"qun.qq.com": []byte("pt4")},
	}
}

func TestToken_RoundTrip(t *testing.T) {
	s := testSig()
	b, err := s.MarshalToken()
	require.NoError(t, err)
	assert.Len(t, b, tokenFixedSize+len("device-token"))
	assert.Equal(t, s.D2Key, b[:16])

	got, err := UnmarshalToken(b)
	require.NoError(t, err)
	assert.Equal(t, s.D2Key, got.D2Key)
	assert.Equal(t, s.D2, got.D2)
	assert.Equal(t, s.WtSessionTicketKey, got.WtSessionTicketKey)
	assert.Equal(t, s.T133, got.T133)
	assert.Equal(t, s.SrmToken, got.SrmToken)
	assert.Equal(t, s.TGT, got.TGT)
	assert.Equal(t, s.DeviceToken, got.DeviceToken)
	assert.True(t, got.HasToken())
}

func TestToken_EmptyDeviceToken(t *testing.T) {
	s := testSig()
	s.DeviceToken = nil
	b, err := s.MarshalToken()
	require.NoError(t, err)
	got, err := UnmarshalToken(b)
	require.NoError(t, err)
	assert.Empty(t, got.DeviceToken)
}

func TestToken_Layout(t *testing.T) {
	s := testSig()
	s.D2 = s.D2[:10]
	_, err := s.MarshalToken()
	require.ErrorIs(t, err, ErrTokenLayout)

	_, err = UnmarshalToken(make([]byte, tokenFixedSize-1))
	require.ErrorIs(t, err, ErrTokenLayout)
}

func TestSig_HasToken(t *testing.T) {
	var s *Sig
	assert.False(t, s.HasToken())
	assert.False(t, (&Sig{D2: []byte{1}}).HasToken())
	assert.True(t, testSig().HasToken())
}

func TestSig_Merge(t *testing.T) {
	s := testSig()
	s.Merge(&Sig{D2: []byte("new-d2"), Nickname: ""})
	assert.Equal(t, []byte("new-d2"), s.D2)
	assert.Equal(t, "tester", s.Nickname)
	assert.Equal(t, testSig().TGT, s.TGT)
}

func TestDecodeSig_T119Fields(t *testing.T) {
	want := testSig()
	m := tlv.Map{
		tagTGT:       want.TGT,
		tagD2:        want.D2,
		tagD2Key:     want.D2Key,
		tagTicketKey: want.WtSessionTicketKey,
		tagNick: packet.Build(func(w *packet.Writer) {
			w.WriteU16(0)
			w.WriteU16(0)
			w.WriteU8(byte(len("tester")))
			w.WriteBytes([]byte("tester"))
		}),
		tagCookies: packet.Build(func(w *packet.Writer) {
			w.WriteU16(1)
			w.WriteTlvString("qun.qq.com")
			w.WriteTlv([]byte("pskey"))
			w.WriteTlv([]byte("pt4"))
		}),
		tagExpiry: packet.Build(func(w *packet.Writer) {
			w.WriteU32(1)
			w.WriteU16(tagD2)
			w.WriteU32(3600)
			w.WriteU32(0)
		}),
	}

	got, err := decodeSig(m, testNow)
	require.NoError(t, err)
	assert.Equal(t, "tester", got.Nickname)
	assert.Equal(t, testNow.Add(time.Hour), got.ExpiresAt)
	assert.Equal(t, want.WtSessionTicketKey, got.WtSessionTicketKey)
	assert.Equal(t, []byte("pskey"), got.PsKeys["qun.qq.com"])
	assert.Equal(t, []byte("pt4"), got.Pt4Tokens["qun.qq.com"])
	assert.Empty(t, got.SKey)
}

func TestDecodeSig_RequiresCoreFields(t *testing.T) {
	_, err := decodeSig(tlv.Map{tagD2: []byte{1}}, testNow)
	require.Error(t, err)
}

func TestDecodeCookies_Truncated(t *testing.T) {
	_, _, err := decodeCookies([]byte{0, 1, 0, 5, 'a'})
	require.Error(t, err)
}
