package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rafimaliki/cryptalk/internal/crypto"
	"github.com/rafimaliki/cryptalk/internal/model"
)

// apiClient talks to the relay's HTTP API.
type apiClient struct {
	base   string
	bearer string
	http   *http.Client
}

func newAPIClient(base, bearer string) *apiClient {
	return &apiClient{base: base, bearer: bearer, http: &http.Client{Timeout: 30 * time.Second}}
}

type apiUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

type apiChallenge struct {
	NonceID int64  `json:"nonce_id"`
	Nonce   string `json:"nonce"`
}

type apiLogin struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      apiUser   `json:"user"`
}

type apiMessage struct {
	ID               int64     `json:"id"`
	RoomID           int64     `json:"room_id"`
	FromUserID       int64     `json:"from_user_id"`
	ToUserID         int64     `json:"to_user_id"`
	Message          string    `json:"message"`
	MessageForSender string    `json:"message_for_sender"`
	Signature        string    `json:"signature"`
	CreatedAt        time.Time `json:"created_at"`
}

type apiRecentChat struct {
	RoomID       int64      `json:"room_id"`
	PeerID       int64      `json:"peer_id"`
	PeerUsername string     `json:"peer_username"`
	LastMessage  apiMessage `json:"last_message"`
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("server: %s", e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) register(ctx context.Context, username, publicKey string) (*apiUser, error) {
	var u apiUser
	err := c.do(ctx, http.MethodPost, "/api/auth/register",
		map[string]string{"username": username, "public_key": publicKey}, &u)
	return &u, err
}

func (c *apiClient) challenge(ctx context.Context, username string) (*apiChallenge, error) {
	var ch apiChallenge
	err := c.do(ctx, http.MethodPost, "/api/auth/challenge",
		map[string]string{"username": username}, &ch)
	return &ch, err
}

func (c *apiClient) login(ctx context.Context, username string, nonceID int64, signedNonce string) (*apiLogin, error) {
	var lg apiLogin
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]any{
		"username":     username,
		"nonce_id":     nonceID,
		"signed_nonce": signedNonce,
	}, &lg)
	return &lg, err
}

func (c *apiClient) lookup(ctx context.Context, username string) (*apiUser, error) {
	var u apiUser
	err := c.do(ctx, http.MethodGet, "/api/users/"+url.PathEscape(username), nil, &u)
	return &u, err
}

func (c *apiClient) messages(ctx context.Context, user1ID, user2ID int64) ([]apiMessage, error) {
	var out struct {
		Messages []apiMessage `json:"messages"`
	}
	path := fmt.Sprintf("/api/chats/messages?user1_id=%d&user2_id=%d", user1ID, user2ID)
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Messages, err
}

func (c *apiClient) recents(ctx context.Context) ([]apiRecentChat, error) {
	var out struct {
		Chats []apiRecentChat `json:"chats"`
	}
	err := c.do(ctx, http.MethodGet, "/api/chats/recents", nil, &out)
	return out.Chats, err
}

// dialWS opens the push socket using the saved session token.
func dialWS(base, bearer string) (*websocket.Conn, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("bad server url scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = "token=" + url.QueryEscape(bearer)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

// sendFrame is the client half of the socket protocol.
type sendFrame struct {
	Type             string    `json:"type"`
	ToUserID         int64     `json:"to_user_id"`
	Message          string    `json:"message"`
	MessageForSender string    `json:"message_for_sender"`
	Signature        string    `json:"signature"`
	CreatedAt        time.Time `json:"created_at"`
}

// recvFrame is what the relay sends back: acks, pushes and errors.
type recvFrame struct {
	Type    string      `json:"type"`
	Error   string      `json:"error,omitempty"`
	Message *apiMessage `json:"message,omitempty"`
}

// hashTimestamp renders a message timestamp the way both ends hash it.
func hashTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UTC().Unix(), 10)
}

// seal encrypts plaintext for the peer and for the sender's own history, and
// signs the canonical message hash.
func seal(priv *model.KeyPair, peerPublicKey, plaintext, sender, receiver string, at time.Time) (msg, msgForSender, signature string, err error) {
	forPeer, err := crypto.Encrypt(peerPublicKey, plaintext)
	if err != nil {
		return "", "", "", fmt.Errorf("encrypt for peer: %w", err)
	}
	forSelf, err := crypto.Encrypt(priv.PublicKey, plaintext)
	if err != nil {
		return "", "", "", fmt.Errorf("encrypt for self: %w", err)
	}
	msg, err = crypto.EncodeCiphertext(forPeer)
	if err != nil {
		return "", "", "", err
	}
	msgForSender, err = crypto.EncodeCiphertext(forSelf)
	if err != nil {
		return "", "", "", err
	}

	digest := crypto.HashMessage(plaintext, hashTimestamp(at), sender, receiver)
	sig, err := crypto.Sign(priv.PrivateKey, digest)
	if err != nil {
		return "", "", "", fmt.Errorf("sign: %w", err)
	}
	signature, err = crypto.EncodeSignature(sig)
	if err != nil {
		return "", "", "", err
	}
	return msg, msgForSender, signature, nil
}

// open decrypts one stored message from my point of view and verifies the
// sender's signature over the recovered plaintext.
func open(priv *model.KeyPair, myID int64, myName, peerName, senderPublicKey string, m apiMessage) (plaintext string, verified bool, err error) {
	raw := m.Message
	if m.FromUserID == myID {
		raw = m.MessageForSender
	}
	ct, err := crypto.ParseCiphertext(raw)
	if err != nil {
		return "", false, err
	}
	plaintext, err = crypto.Decrypt(priv.PrivateKey, ct)
	if err != nil {
		return "", false, err
	}

	sender, receiver := peerName, myName
	if m.FromUserID == myID {
		sender, receiver = myName, peerName
	}
	sig, err := crypto.ParseSignature(m.Signature)
	if err != nil {
		return plaintext, false, nil
	}
	digest := crypto.HashMessage(plaintext, hashTimestamp(m.CreatedAt), sender, receiver)
	return plaintext, crypto.Verify(senderPublicKey, digest, sig), nil
}

// authenticate runs the full challenge–response exchange.
func authenticate(ctx context.Context, api *apiClient, username string, kp *model.KeyPair) (*apiLogin, error) {
	ch, err := api.challenge(ctx, username)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(kp.PrivateKey, crypto.NonceDigest(ch.Nonce, username))
	if err != nil {
		return nil, err
	}
	signed, err := crypto.EncodeSignature(sig)
	if err != nil {
		return nil, err
	}
	lg, err := api.login(ctx, username, ch.NonceID, signed)
	if err != nil {
		return nil, err
	}
	if lg.User.PublicKey != kp.PublicKey {
		return nil, errors.New("server returned a different public key for this username")
	}
	return lg, nil
}
