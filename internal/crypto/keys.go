// Package crypto implements the protocol primitives: password-derived P-256
// key pairs, SHA3-256 message hashing, ECDSA signatures and ECIES envelopes.
// All wire encodings (hex points, {r,s} JSON, ciphertext JSON) are fixed by
// the protocol and must not change.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/rafimaliki/cryptalk/internal/model"
)

const (
	scalarLen       = 32
	uncompressedLen = 1 + 2*scalarLen
)

func curve() elliptic.Curve { return elliptic.P256() }

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewNonceValue returns a fresh high-entropy challenge value (32 bytes, hex).
func NewNonceValue() (string, error) {
	b, err := RandBytes(32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DeriveKeyPair derives a P-256 key pair from a password. Deterministic:
// equal passwords yield identical pairs, so the password alone regenerates
// the private key (a protocol-level constraint; there is no salt).
// The private scalar is SHA3-256(password) reduced into [1, N-1]; a zero
// residue is re-seeded by hashing the seed with a counter byte.
func DeriveKeyPair(password string) (*model.KeyPair, error) {
	c := curve()
	n := c.Params().N

	seed := sha3.Sum256([]byte(password))
	d := new(big.Int)
	for ctr := 0; ; ctr++ {
		d.SetBytes(seed[:])
		d.Mod(d, n)
		if d.Sign() != 0 {
			break
		}
		if ctr > 255 {
			return nil, errors.New("key derivation: no valid scalar")
		}
		h := sha3.New256()
		h.Write(seed[:])
		h.Write([]byte{byte(ctr)})
		copy(seed[:], h.Sum(nil))
	}

	x, y := c.ScalarBaseMult(d.FillBytes(make([]byte, scalarLen)))
	return &model.KeyPair{
		PublicKey:  encodePoint(x, y),
		PrivateKey: hex.EncodeToString(d.FillBytes(make([]byte, scalarLen))),
	}, nil
}

// encodePoint renders a point as hex of the uncompressed form 04||X||Y.
func encodePoint(x, y *big.Int) string {
	buf := make([]byte, uncompressedLen)
	buf[0] = 0x04
	x.FillBytes(buf[1 : 1+scalarLen])
	y.FillBytes(buf[1+scalarLen:])
	return hex.EncodeToString(buf)
}

// ParsePublicKey decodes a hex-encoded uncompressed P-256 point.
func ParsePublicKey(pubHex string) (*ecdsa.PublicKey, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, errors.New("public key: bad hex")
	}
	if len(raw) != uncompressedLen || raw[0] != 0x04 {
		return nil, errors.New("public key: not an uncompressed point")
	}
	x := new(big.Int).SetBytes(raw[1 : 1+scalarLen])
	y := new(big.Int).SetBytes(raw[1+scalarLen:])
	c := curve()
	if !c.IsOnCurve(x, y) {
		return nil, errors.New("public key: point not on curve")
	}
	return &ecdsa.PublicKey{Curve: c, X: x, Y: y}, nil
}

// ParsePrivateKey decodes a hex-encoded private scalar and computes its
// public point.
func ParsePrivateKey(privHex string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil || len(raw) == 0 || len(raw) > scalarLen {
		return nil, errors.New("private key: bad hex")
	}
	c := curve()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(c.Params().N) >= 0 {
		return nil, errors.New("private key: scalar out of range")
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = c
	priv.X, priv.Y = c.ScalarBaseMult(d.FillBytes(make([]byte, scalarLen)))
	return priv, nil
}
