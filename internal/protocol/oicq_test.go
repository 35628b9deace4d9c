package protocol_test

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/protocol"
	"github.com/udisondev/goicq/internal/testutil"
)

func newTestCodec(t *testing.T) (*protocol.OicqCodec, *testutil.OicqServer) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	e, err := crypto.NewECDHWithServerKey(priv.PublicKey().Bytes(), 2)
	require.NoError(t, err)
	c, err := protocol.NewOicqCodec(e)
	require.NoError(t, err)
	return c, testutil.NewOicqServer(priv)
}

func TestOicq_MarshalLayout(t *testing.T) {
	c, _ := newTestCodec(t)
	b, err := c.Marshal(protocol.OicqMessage{Uin: 10001, Command: constants.OicqCmdLogin, Method: protocol.EncryptECDH, Body: []byte("tlvs")})
	require.NoError(t, err)

	r := packet.NewReader(b)
	flag, _ := r.ReadByte()
	assert.Equal(t, byte(0x02), flag)
	n, _ := r.ReadU16()
	assert.Equal(t, uint16(len(b)), n)
	ver, _ := r.ReadU16()
	assert.Equal(t, uint16(constants.OicqVersion), ver)
	cmd, _ := r.ReadU16()
	assert.Equal(t, uint16(0x810), cmd)
	one, _ := r.ReadU16()
	assert.Equal(t, uint16(1), one)
	uin, _ := r.ReadU32()
	assert.Equal(t, uint32(10001), uin)
	head, _ := r.ReadBytes(3)
	assert.Equal(t, []byte{0x03, 0x87, 0x00}, head)
	require.NoError(t, r.Skip(12))
	head, _ = r.ReadBytes(2)
	assert.Equal(t, []byte{0x02, 0x01}, head)
	key, _ := r.ReadBytes(16)
	assert.Equal(t, c.RandomKey(), key)
	tag, _ := r.ReadU16()
	assert.Equal(t, uint16(0x131), tag)
	kv, _ := r.ReadU16()
	assert.Equal(t, uint16(2), kv)
	pub, _ := r.ReadTlv()
	assert.Len(t, pub, 65)
	assert.Equal(t, byte(0x03), b[len(b)-1])
}

func TestOicq_RoundTripThroughServer(t *testing.T) {
	c, srv := newTestCodec(t)

	for _, method := range []protocol.EncryptMethod{protocol.EncryptECDH, protocol.EncryptST} {
		b, err := c.Marshal(protocol.OicqMessage{Uin: 10001, Command: constants.OicqCmdLogin, Method: method, Body: []byte("request body")})
		require.NoError(t, err)

		req, err := srv.Unmarshal(b)
		require.NoError(t, err)
		assert.Equal(t, method, req.Method)
		assert.Equal(t, uint32(10001), req.Uin)
		assert.Equal(t, []byte("request body"), req.Body)

		resp, err := srv.Marshal(req.Command, req.Uin, req.ShareKey, []byte("response body"))
		require.NoError(t, err)
		m, err := c.Unmarshal(resp)
		require.NoError(t, err)
		assert.Equal(t, uint16(constants.OicqCmdLogin), m.Command)
		assert.Equal(t, []byte("response body"), m.Body)
	}
}

func TestOicq_UnmarshalFallsBackToRandomKey(t *testing.T) {
	c, srv := newTestCodec(t)
	resp, err := srv.Marshal(constants.OicqCmdLogin, 1, c.RandomKey(), []byte("x"))
	require.NoError(t, err)

	m, err := c.Unmarshal(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), m.Body)
}

func TestOicq_UnmarshalErrors(t *testing.T) {
	c, srv := newTestCodec(t)

	_, err := c.Unmarshal([]byte{0x02, 0x00})
	require.ErrorIs(t, err, packet.ErrDecode)

	resp, err := srv.Marshal(constants.OicqCmdLogin, 1, c.ECDH().ShareKey, []byte("x"))
	require.NoError(t, err)

	bad := append([]byte{}, resp...)
	bad[0] = 0x05
	_, err = c.Unmarshal(bad)
	require.ErrorIs(t, err, packet.ErrDecode)

	bad = append([]byte{}, resp...)
	bad[14] = 9
	_, err = c.Unmarshal(bad)
	require.ErrorIs(t, err, packet.ErrDecode)

	other := make([]byte, 16)
	other[0] = 1
	resp, err = srv.Marshal(constants.OicqCmdLogin, 1, other, []byte("x"))
	require.NoError(t, err)
	_, err = c.Unmarshal(resp)
	require.ErrorIs(t, err, packet.ErrDecode)
}
