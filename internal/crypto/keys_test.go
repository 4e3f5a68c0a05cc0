package crypto

import (
	"strings"
	"testing"
)

func TestDeriveKeyPair_Deterministic(t *testing.T) {
	t.Parallel()
	a, err := DeriveKeyPair("correct horse battery staple")
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	b, err := DeriveKeyPair("correct horse battery staple")
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	if a.PrivateKey != b.PrivateKey || a.PublicKey != b.PublicKey {
		t.Fatalf("same password must derive identical pairs:\n%+v\n%+v", a, b)
	}
}

func TestDeriveKeyPair_DifferentPasswordsDiverge(t *testing.T) {
	t.Parallel()
	a, _ := DeriveKeyPair("password-one")
	b, _ := DeriveKeyPair("password-two")
	if a.PrivateKey == b.PrivateKey {
		t.Fatalf("different passwords derived the same private key")
	}
	if a.PublicKey == b.PublicKey {
		t.Fatalf("different passwords derived the same public key")
	}
}

func TestDeriveKeyPair_Encoding(t *testing.T) {
	t.Parallel()
	kp, err := DeriveKeyPair("pw")
	if err != nil {
		t.Fatalf("DeriveKeyPair: %v", err)
	}
	if len(kp.PrivateKey) != 64 {
		t.Fatalf("private key hex length = %d, want 64", len(kp.PrivateKey))
	}
	if len(kp.PublicKey) != 130 || !strings.HasPrefix(kp.PublicKey, "04") {
		t.Fatalf("public key must be a 130-hex uncompressed point, got %q", kp.PublicKey)
	}
	if _, err := ParsePublicKey(kp.PublicKey); err != nil {
		t.Fatalf("derived public key does not parse: %v", err)
	}
	priv, err := ParsePrivateKey(kp.PrivateKey)
	if err != nil {
		t.Fatalf("derived private key does not parse: %v", err)
	}
	if encodePoint(priv.X, priv.Y) != kp.PublicKey {
		t.Fatalf("private key does not reproduce the public point")
	}
}

func TestParsePublicKey_Malformed(t *testing.T) {
	t.Parallel()
	cases := []string{
		"",
		"zz",
		"04deadbeef",
		strings.Repeat("ab", 65),                // right length, wrong prefix/point
		"02" + strings.Repeat("11", 32),         // compressed form unsupported
		"04" + strings.Repeat("00", 64),         // origin, not on curve
	}
	for _, c := range cases {
		if _, err := ParsePublicKey(c); err == nil {
			t.Fatalf("ParsePublicKey(%q) accepted malformed input", c)
		}
	}
}

func TestParsePrivateKey_Range(t *testing.T) {
	t.Parallel()
	if _, err := ParsePrivateKey(strings.Repeat("00", 32)); err == nil {
		t.Fatalf("zero scalar must be rejected")
	}
	if _, err := ParsePrivateKey(strings.Repeat("ff", 32)); err == nil {
		t.Fatalf("scalar >= N must be rejected")
	}
	if _, err := ParsePrivateKey("nothex"); err == nil {
		t.Fatalf("non-hex scalar must be rejected")
	}
}

func TestNewNonceValue_EntropyAndShape(t *testing.T) {
	t.Parallel()
	a, err := NewNonceValue()
	if err != nil {
		t.Fatalf("NewNonceValue: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("nonce hex length = %d, want 64", len(a))
	}
	b, _ := NewNonceValue()
	if a == b {
		t.Fatalf("two nonces must never repeat")
	}
}
