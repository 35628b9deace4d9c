package crypto

import (
	"crypto/ecdh"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ServerPublicKeyHex is the login cluster's P-256 public key (uncompressed).
const ServerPublicKeyHex = "04EBCA94D733E399B2DB96EACDD3F69A8BB0F74224E2B44E3357812211D2E62EFBC91BB553098E25E33A799ADC7F76FEB208DA7C6522CDB0719A305180CC54A82E"

// ServerKeyVersion is sent next to our public key in the login header.
const ServerKeyVersion = 1

// ECDH holds the per-process key agreement used before a session key exists.
type ECDH struct {
	// PublicKey is our uncompressed public key (65 bytes), sent in the login header.
	PublicKey []byte
	// ShareKey is MD5(secret[:16]) and encrypts the bootstrap login bodies.
	ShareKey []byte
	// KeyVersion identifies the server key the secret was computed with.
	KeyVersion uint16
}

// NewECDH generates a keypair and derives the share key against the default server key.
func NewECDH() (*ECDH, error) {
	pub, err := hex.DecodeString(ServerPublicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding server public key: %w", err)
	}
	return NewECDHWithServerKey(pub, ServerKeyVersion)
}

// NewECDHWithServerKey generates a keypair and derives the share key against serverPub.
func NewECDHWithServerKey(serverPub []byte, version uint16) (*ECDH, error) {
	curve := ecdh.P256()
	remote, err := curve.NewPublicKey(serverPub)
	if err != nil {
		return nil, fmt.Errorf("parsing server public key: %w", err)
	}
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ecdh key: %w", err)
	}
	secret, err := priv.ECDH(remote)
	if err != nil {
		return nil, fmt.Errorf("computing ecdh secret: %w", err)
	}
	return &ECDH{
		PublicKey:  priv.PublicKey().Bytes(),
		ShareKey:   ShareKeyFromSecret(secret),
		KeyVersion: version,
	}, nil
}

// ShareKeyFromSecret derives the 16-byte TEA key from a raw ECDH secret.
func ShareKeyFromSecret(secret []byte) []byte {
	sum := md5.Sum(secret[:16])
	return sum[:]
}

// MD5 returns the MD5 digest of data as a slice.
func MD5(data ...[]byte) []byte {
	h := md5.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
