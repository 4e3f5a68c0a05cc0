package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/model"
)

const gcmNonceLen = 12

// Encrypt seals plaintext for the holder of recipientPublicKeyHex. Each call
// generates a fresh ephemeral key pair, so the two envelopes produced per
// outgoing message (recipient copy, sender copy) are cryptographically
// unlinked. Confidentiality only: authorship is established by the separate
// signature, never by this envelope.
func Encrypt(recipientPublicKeyHex, plaintext string) (*model.Ciphertext, error) {
	pub, err := ParsePublicKey(recipientPublicKeyHex)
	if err != nil {
		return nil, err
	}
	eph, err := ecdsa.GenerateKey(curve(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aead, err := deriveAEAD(eph.D, pub)
	if err != nil {
		return nil, err
	}
	nonce, err := RandBytes(gcmNonceLen)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return &model.Ciphertext{
		EphemeralPublicKey: encodePoint(eph.X, eph.Y),
		Encrypted:          base64.StdEncoding.EncodeToString(sealed),
	}, nil
}

// Decrypt opens an envelope with the recipient's private key. Any failure,
// whether an unparsable envelope, a wrong key or a corrupted payload,
// surfaces as errs.ErrDecryptionFailed with no partial plaintext; callers
// fall back to displaying the opaque ciphertext.
func Decrypt(privateKeyHex string, ct *model.Ciphertext) (string, error) {
	if ct == nil {
		return "", errs.ErrDecryptionFailed
	}
	priv, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return "", errs.ErrDecryptionFailed
	}
	ephPub, err := ParsePublicKey(ct.EphemeralPublicKey)
	if err != nil {
		return "", errs.ErrDecryptionFailed
	}
	sealed, err := base64.StdEncoding.DecodeString(ct.Encrypted)
	if err != nil || len(sealed) < gcmNonceLen {
		return "", errs.ErrDecryptionFailed
	}

	// ECDH symmetry: priv.D * ephPub equals eph.D * recipientPub.
	aead, err := deriveAEAD(priv.D, ephPub)
	if err != nil {
		return "", errs.ErrDecryptionFailed
	}
	plain, err := aead.Open(nil, sealed[:gcmNonceLen], sealed[gcmNonceLen:], nil)
	if err != nil {
		return "", errs.ErrDecryptionFailed
	}
	return string(plain), nil
}

// deriveAEAD computes the shared ECDH point and turns its X coordinate
// (32-byte big-endian) into an AES-256-GCM key via SHA3-256.
func deriveAEAD(scalar *big.Int, peer *ecdsa.PublicKey) (cipher.AEAD, error) {
	sx, _ := curve().ScalarMult(peer.X, peer.Y, scalar.FillBytes(make([]byte, scalarLen)))
	key := sha3.Sum256(sx.FillBytes(make([]byte, scalarLen)))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncodeCiphertext renders an envelope in its wire form, the JSON object
// {"ephemeralPublicKey":…,"encrypted":…} stored in message rows.
func EncodeCiphertext(ct *model.Ciphertext) (string, error) {
	b, err := json.Marshal(ct)
	return string(b), err
}

// ParseCiphertext decodes the wire form. Malformed input maps to
// errs.ErrDecryptionFailed so callers need only one failure path.
func ParseCiphertext(s string) (*model.Ciphertext, error) {
	var ct model.Ciphertext
	if err := json.Unmarshal([]byte(s), &ct); err != nil {
		return nil, errs.ErrDecryptionFailed
	}
	if ct.EphemeralPublicKey == "" || ct.Encrypted == "" {
		return nil, errs.ErrDecryptionFailed
	}
	return &ct, nil
}
