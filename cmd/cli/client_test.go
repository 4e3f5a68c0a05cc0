package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rafimaliki/cryptalk/internal/crypto"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	alice, err := crypto.DeriveKeyPair("alice-pw")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	bob, err := crypto.DeriveKeyPair("bob-pw")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	msg, msgForSender, sig, err := seal(alice, bob.PublicKey, "see you at noon", "alice", "bob", at)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	stored := apiMessage{
		ID: 1, RoomID: 1, FromUserID: 1, ToUserID: 2,
		Message: msg, MessageForSender: msgForSender, Signature: sig, CreatedAt: at,
	}

	// Bob opens the recipient copy.
	text, verified, err := open(bob, 2, "bob", "alice", alice.PublicKey, stored)
	if err != nil {
		t.Fatalf("open as recipient: %v", err)
	}
	if text != "see you at noon" || !verified {
		t.Fatalf("recipient read: text=%q verified=%v", text, verified)
	}

	// Alice re-reads her own copy.
	text, verified, err = open(alice, 1, "alice", "bob", alice.PublicKey, stored)
	if err != nil {
		t.Fatalf("open as sender: %v", err)
	}
	if text != "see you at noon" || !verified {
		t.Fatalf("sender re-read: text=%q verified=%v", text, verified)
	}

	// Eve's key opens nothing.
	eve, _ := crypto.DeriveKeyPair("eve-pw")
	if _, _, err := open(eve, 2, "bob", "alice", alice.PublicKey, stored); err == nil {
		t.Fatalf("foreign key opened the envelope")
	}
}

func TestOpen_ForeignSignatureUnverified(t *testing.T) {
	t.Parallel()
	alice, _ := crypto.DeriveKeyPair("alice-pw")
	bob, _ := crypto.DeriveKeyPair("bob-pw")
	eve, _ := crypto.DeriveKeyPair("eve-pw")

	at := time.Now().UTC().Truncate(time.Second)
	msg, msgForSender, _, err := seal(alice, bob.PublicKey, "hi", "alice", "bob", at)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	// Eve signs the same hash with her own key.
	forged, err := crypto.Sign(eve.PrivateKey, crypto.HashMessage("hi", hashTimestamp(at), "alice", "bob"))
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	forgedWire, _ := crypto.EncodeSignature(forged)

	stored := apiMessage{
		FromUserID: 1, ToUserID: 2,
		Message: msg, MessageForSender: msgForSender, Signature: forgedWire, CreatedAt: at,
	}
	text, verified, err := open(bob, 2, "bob", "alice", alice.PublicKey, stored)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if text != "hi" || verified {
		t.Fatalf("forged signature slipped through: text=%q verified=%v", text, verified)
	}
}

func TestAuthenticate_FullExchange(t *testing.T) {
	t.Parallel()
	kp, err := crypto.DeriveKeyPair("alice-pw")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	nonce, err := crypto.NewNonceValue()
	if err != nil {
		t.Fatalf("nonce: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/challenge", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiChallenge{NonceID: 42, Nonce: nonce})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username    string `json:"username"`
			NonceID     int64  `json:"nonce_id"`
			SignedNonce string `json:"signed_nonce"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NonceID != 42 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sig, err := crypto.ParseSignature(req.SignedNonce)
		if err != nil || !crypto.Verify(kp.PublicKey, crypto.NonceDigest(nonce, req.Username), sig) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
			return
		}
		json.NewEncoder(w).Encode(apiLogin{
			Token:     "issued",
			ExpiresAt: time.Now().Add(time.Hour),
			User:      apiUser{ID: 7, Username: req.Username, PublicKey: kp.PublicKey},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api := newAPIClient(srv.URL, "")
	lg, err := authenticate(context.Background(), api, "alice", kp)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if lg.Token != "issued" || lg.User.ID != 7 {
		t.Fatalf("bad login result: %+v", lg)
	}

	// Wrong password derives the wrong key and must be rejected.
	wrong, _ := crypto.DeriveKeyPair("not-alice")
	if _, err := authenticate(context.Background(), api, "alice", wrong); err == nil {
		t.Fatalf("authenticate with wrong key succeeded")
	}
}
