package crypto

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/packet"
)

func testKey() []byte {
	key := make([]byte, TeaKeySize)
	for i := range key {
		key[i] = byte(i*7 + 3)
	}
	return key
}

func TestTea_RoundTrip(t *testing.T) {
	c, err := NewTeaCipher(testKey())
	require.NoError(t, err)

	for n := 0; n <= 64; n++ {
		plain := make([]byte, n)
		_, _ = rand.Read(plain)

		enc := c.Encrypt(plain)
		assert.Zero(t, len(enc)%TeaBlockSize, "len=%d", n)
		assert.GreaterOrEqual(t, len(enc), n+10)

		dec, err := c.Decrypt(enc)
		require.NoError(t, err, "len=%d", n)
		assert.True(t, bytes.Equal(plain, dec), "len=%d", n)
	}
}

func TestTea_RoundTripRandomKeys(t *testing.T) {
	for range 32 {
		key := make([]byte, TeaKeySize)
		_, _ = rand.Read(key)
		plain := make([]byte, 8*(1+len(key)%5))
		_, _ = rand.Read(plain)

		enc, err := TeaEncrypt(plain, key)
		require.NoError(t, err)
		dec, err := TeaDecrypt(enc, key)
		require.NoError(t, err)
		assert.Equal(t, plain, dec)
	}
}

func TestTea_EncryptIsRandomized(t *testing.T) {
	c, err := NewTeaCipher(testKey())
	require.NoError(t, err)
	plain := []byte("same plaintext")

	// random pad bytes make two encryptions differ with overwhelming probability
	assert.NotEqual(t, c.Encrypt(plain), c.Encrypt(plain))
}

func TestTea_DecryptUnaligned(t *testing.T) {
	c, err := NewTeaCipher(testKey())
	require.NoError(t, err)

	for _, n := range []int{0, 1, 7, 8, 15, 17, 23} {
		_, err := c.Decrypt(make([]byte, n))
		require.Error(t, err, "len=%d", n)
		assert.True(t, errors.Is(err, packet.ErrDecode), "len=%d", n)
	}
}

func TestTea_DecryptBadTrailer(t *testing.T) {
	key := testKey()
	enc, err := TeaEncrypt([]byte("hello world"), key)
	require.NoError(t, err)

	// wrong key: trailer validation must fail
	other := bytes.Repeat([]byte{0x42}, TeaKeySize)
	_, err = TeaDecrypt(enc, other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, packet.ErrDecode))

	// corrupted last block
	enc[len(enc)-1] ^= 0x01
	_, err = TeaDecrypt(enc, key)
	require.Error(t, err)
	assert.True(t, errors.Is(err, packet.ErrDecode))
}

func TestTea_Chained(t *testing.T) {
	key := testKey()
	plain := bytes.Repeat([]byte{0x11}, 40)
	enc, err := TeaEncrypt(plain, key)
	require.NoError(t, err)

	// identical plaintext blocks must not produce identical ciphertext blocks
	assert.NotEqual(t, enc[16:24], enc[24:32])

	// swapping two middle blocks breaks decryption
	swapped := append([]byte(nil), enc...)
	copy(swapped[16:24], enc[24:32])
	copy(swapped[24:32], enc[16:24])
	dec, err := TeaDecrypt(swapped, key)
	if err == nil {
		assert.NotEqual(t, plain, dec)
	}
}

func TestTea_BadKeySize(t *testing.T) {
	_, err := NewTeaCipher([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestECDH_ShareKeyAgreement(t *testing.T) {
	server, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	e, err := NewECDHWithServerKey(server.PublicKey().Bytes(), 2)
	require.NoError(t, err)
	assert.Len(t, e.PublicKey, 65)
	assert.Len(t, e.ShareKey, 16)
	assert.Equal(t, uint16(2), e.KeyVersion)

	clientPub, err := ecdh.P256().NewPublicKey(e.PublicKey)
	require.NoError(t, err)
	secret, err := server.ECDH(clientPub)
	require.NoError(t, err)
	assert.Equal(t, ShareKeyFromSecret(secret), e.ShareKey)
}

func TestECDH_DefaultServerKey(t *testing.T) {
	e, err := NewECDH()
	require.NoError(t, err)
	assert.Equal(t, uint16(ServerKeyVersion), e.KeyVersion)
	assert.Equal(t, byte(0x04), e.PublicKey[0])
}

func TestMD5_Concat(t *testing.T) {
	assert.Equal(t, MD5([]byte("abc")), MD5([]byte("a"), []byte("bc")))
	assert.Len(t, MD5(), 16)
}

func BenchmarkTea_Encrypt(b *testing.B) {
	c, _ := NewTeaCipher(testKey())
	data := make([]byte, 1024)
	b.ReportAllocs()
	for b.Loop() {
		_ = c.Encrypt(data)
	}
}

func BenchmarkTea_Decrypt(b *testing.B) {
	c, _ := NewTeaCipher(testKey())
	enc := c.Encrypt(make([]byte, 1024))
	b.ReportAllocs()
	for b.Loop() {
		_, _ = c.Decrypt(enc)
	}
}
