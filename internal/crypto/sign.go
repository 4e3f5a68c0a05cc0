package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/rafimaliki/cryptalk/internal/model"
)

// Sign produces an ECDSA signature over digest with the given private key.
// A failure here means a malformed key or a broken randomness source, which
// callers treat as fatal.
func Sign(privateKeyHex string, digest []byte) (model.Signature, error) {
	priv, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return model.Signature{}, err
	}
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return model.Signature{}, err
	}
	return model.Signature{R: r.Text(16), S: s.Text(16)}, nil
}

// Verify reports whether sig is a valid signature over digest by the holder
// of publicKeyHex. It returns false, never an error, on malformed keys or
// signatures: callers treat any non-true result as "unverified".
func Verify(publicKeyHex string, digest []byte, sig model.Signature) bool {
	pub, err := ParsePublicKey(publicKeyHex)
	if err != nil {
		return false
	}
	r, ok := new(big.Int).SetString(sig.R, 16)
	if !ok || r.Sign() <= 0 {
		return false
	}
	s, ok := new(big.Int).SetString(sig.S, 16)
	if !ok || s.Sign() <= 0 {
		return false
	}
	return ecdsa.Verify(pub, digest, r, s)
}

// EncodeSignature renders a signature in its wire form: {"r":…,"s":…}.
func EncodeSignature(sig model.Signature) (string, error) {
	b, err := json.Marshal(sig)
	return string(b), err
}

// ParseSignature decodes the wire form produced by EncodeSignature.
func ParseSignature(s string) (model.Signature, error) {
	var sig model.Signature
	if err := json.Unmarshal([]byte(s), &sig); err != nil {
		return model.Signature{}, err
	}
	if sig.R == "" || sig.S == "" {
		return model.Signature{}, errors.New("signature: missing r/s")
	}
	return sig, nil
}
