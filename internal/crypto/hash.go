package crypto

import "golang.org/x/crypto/sha3"

// HashMessage produces the canonical 256-bit digest binding a message to its
// timestamp and both participants. Fields are concatenated in this exact
// order with no separators; the layout is fixed by the wire protocol even
// though adjacent fields can shift bytes between each other ("ab"+"c" hashes
// like "a"+"bc"). Hashing is always over plaintext: senders hash before
// encrypting, receivers hash the decrypted text before verifying.
func HashMessage(message, timestamp, sender, receiver string) []byte {
	h := sha3.New256()
	h.Write([]byte(message))
	h.Write([]byte(timestamp))
	h.Write([]byte(sender))
	h.Write([]byte(receiver))
	return h.Sum(nil)
}

// NonceDigest is the digest a client signs to answer a login challenge.
// The username is bound into the signed payload so a signed nonce cannot be
// replayed for a different identity.
func NonceDigest(nonceValue, username string) []byte {
	h := sha3.New256()
	h.Write([]byte(nonceValue))
	h.Write([]byte(username))
	return h.Sum(nil)
}
