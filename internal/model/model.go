// Package model defines domain entities used by services and repositories.
package model

import "time"

// User is a registered identity: a stable username bound to a public key.
// The server never sees private keys; the public key is immutable after
// registration (no key rotation).
type User struct {
	ID        int64  // PK
	Username  string // unique
	PublicKey string // hex-encoded uncompressed P-256 point
	CreatedAt time.Time
}

// KeyPair is a password-derived P-256 key pair. Client-side only, never
// persisted on the server: the password fully determines both halves.
type KeyPair struct {
	PublicKey  string // hex, uncompressed point (04||X||Y)
	PrivateKey string // hex, 32-byte scalar
}

// Nonce is a single-use login challenge bound to a username.
type Nonce struct {
	ID        int64
	Username  string
	Value     string // 32 random bytes, hex
	CreatedAt time.Time
}

// Signature is an ECDSA signature in the protocol's wire form.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
}

// Ciphertext is a self-contained ECIES envelope. Decryption needs only the
// matching private key.
type Ciphertext struct {
	EphemeralPublicKey string `json:"ephemeralPublicKey"`
	Encrypted          string `json:"encrypted"` // base64(nonce||AES-GCM ciphertext)
}

// Room is a two-party conversation.
type Room struct {
	ID        int64
	User1ID   int64
	User2ID   int64
	CreatedAt time.Time
}

// Message is an immutable sealed chat record. Message holds the ciphertext
// for the recipient, MessageForSender an independent ciphertext of the same
// plaintext under the sender's own key so the sender can re-read history.
// Signature covers SHA3-256(plaintext||timestamp||sender||receiver) and is
// verified client-side after decryption.
type Message struct {
	ID               int64
	RoomID           int64
	FromUserID       int64
	ToUserID         int64
	Message          string // ciphertext JSON for recipient
	MessageForSender string // ciphertext JSON for sender
	Signature        string // {r,s} JSON
	CreatedAt        time.Time
}

// RecentChat is the newest message of one room, for conversation lists.
type RecentChat struct {
	RoomID       int64
	PeerID       int64
	PeerUsername string
	LastMessage  Message
}

// Tokens collects issued session credentials.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // for diagnostics
}
