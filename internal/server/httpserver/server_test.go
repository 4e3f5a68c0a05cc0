package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/metrics"
	"github.com/rafimaliki/cryptalk/internal/model"
	"github.com/rafimaliki/cryptalk/internal/service"
)

func init() { gin.SetMode(gin.TestMode) }

var testSignKey = []byte("httpserver-test-key")

type fakeAuth struct {
	registerErr error
	loginErr    error
	user        model.User
	nonce       model.Nonce
}

var _ service.AuthService = (*fakeAuth)(nil)

func (f *fakeAuth) Register(_ context.Context, username, publicKey string) (*model.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	u := f.user
	u.Username = username
	u.PublicKey = publicKey
	return &u, nil
}

func (f *fakeAuth) Challenge(_ context.Context, username string) (*model.Nonce, error) {
	if username != f.user.Username {
		return nil, errs.ErrUnknownIdentity
	}
	n := f.nonce
	return &n, nil
}

func (f *fakeAuth) Login(_ context.Context, username string, _ int64, _, _ string) (model.Tokens, *model.User, error) {
	if f.loginErr != nil {
		return model.Tokens{}, nil, f.loginErr
	}
	u := f.user
	return model.Tokens{AccessToken: "issued-token", ExpiresAt: time.Now().Add(time.Hour)}, &u, nil
}

func (f *fakeAuth) Lookup(_ context.Context, username string) (*model.User, error) {
	if username != f.user.Username {
		return nil, errs.ErrUnknownIdentity
	}
	u := f.user
	return &u, nil
}

type fakeChatSvc struct {
	messages []model.Message
	recents  []model.RecentChat

	saveErr error
}

var _ service.ChatService = (*fakeChatSvc)(nil)

func (f *fakeChatSvc) SaveMessage(_ context.Context, in service.SendMessage) (*model.Message, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	m := model.Message{
		ID: int64(len(f.messages) + 1), RoomID: 1,
		FromUserID: in.FromUserID, ToUserID: in.ToUserID,
		Message: in.Message, MessageForSender: in.MessageForSender,
		Signature: in.Signature, CreatedAt: in.CreatedAt,
	}
	f.messages = append(f.messages, m)
	return &m, nil
}

func (f *fakeChatSvc) MessagesBetween(_ context.Context, requesterID, user1ID, user2ID int64) ([]model.Message, error) {
	if requesterID != user1ID && requesterID != user2ID {
		return nil, errs.ErrForbidden
	}
	return f.messages, nil
}

func (f *fakeChatSvc) RecentChats(context.Context, int64) ([]model.RecentChat, error) {
	return f.recents, nil
}

func newTestServer(auth *fakeAuth, chats *fakeChatSvc) *gin.Engine {
	m := metrics.New(prometheus.NewRegistry())
	s := New(zap.NewNop(), auth, chats, m, testSignKey)
	return s.Router(nil)
}

func bearerFor(t *testing.T, userID int64, username string) string {
	t.Helper()
	claims := &service.SessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSignKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + tok
}

func doJSON(r *gin.Engine, method, path, body, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHTTP_Register(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{user: model.User{ID: 7}}
	r := newTestServer(auth, &fakeChatSvc{})

	w := doJSON(r, http.MethodPost, "/api/auth/register", `{"username":"alice","public_key":"04abc"}`, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var got userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != 7 || got.Username != "alice" {
		t.Fatalf("bad body: %+v", got)
	}

	// Missing fields fail binding.
	if w := doJSON(r, http.MethodPost, "/api/auth/register", `{"username":"alice"}`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("want 400 on missing public_key, got %d", w.Code)
	}

	auth.registerErr = errs.ErrUsernameTaken
	if w := doJSON(r, http.MethodPost, "/api/auth/register", `{"username":"alice","public_key":"04abc"}`, ""); w.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", w.Code)
	}
}

func TestHTTP_Challenge(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{
		user:  model.User{ID: 7, Username: "alice"},
		nonce: model.Nonce{ID: 42, Value: "deadbeef"},
	}
	r := newTestServer(auth, &fakeChatSvc{})

	w := doJSON(r, http.MethodPost, "/api/auth/challenge", `{"username":"alice"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var got challengeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.NonceID != 42 || got.Nonce != "deadbeef" {
		t.Fatalf("bad body: %+v", got)
	}

	if w := doJSON(r, http.MethodPost, "/api/auth/challenge", `{"username":"ghost"}`, ""); w.Code != http.StatusNotFound {
		t.Fatalf("want 404 for unknown identity, got %d", w.Code)
	}
}

func TestHTTP_Login_StatusMapping(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{user: model.User{ID: 7, Username: "alice"}}
	r := newTestServer(auth, &fakeChatSvc{})
	body := `{"username":"alice","nonce_id":42,"signed_nonce":"{\"r\":\"1\",\"s\":\"2\"}"}`

	w := doJSON(r, http.MethodPost, "/api/auth/login", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var got loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Token != "issued-token" || got.User.ID != 7 {
		t.Fatalf("bad body: %+v", got)
	}

	auth.loginErr = errs.ErrInvalidCredentials
	if w := doJSON(r, http.MethodPost, "/api/auth/login", body, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
	auth.loginErr = errs.ErrRateLimited
	if w := doJSON(r, http.MethodPost, "/api/auth/login", body, ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
}

func TestHTTP_AuthenticatedRoutes(t *testing.T) {
	t.Parallel()
	auth := &fakeAuth{user: model.User{ID: 7, Username: "alice", PublicKey: "04abc"}}
	chats := &fakeChatSvc{
		messages: []model.Message{{ID: 1, RoomID: 1, FromUserID: 7, ToUserID: 8, CreatedAt: time.Now()}},
	}
	r := newTestServer(auth, chats)

	// No token.
	if w := doJSON(r, http.MethodGet, "/api/users/alice", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", w.Code)
	}
	// Garbage token.
	if w := doJSON(r, http.MethodGet, "/api/users/alice", "", "Bearer junk"); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 with bad token, got %d", w.Code)
	}

	authz := bearerFor(t, 7, "alice")

	w := doJSON(r, http.MethodGet, "/api/users/alice", "", authz)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: status %d, body %s", w.Code, w.Body.String())
	}
	var u userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.PublicKey != "04abc" {
		t.Fatalf("lookup body: %+v", u)
	}

	if w := doJSON(r, http.MethodGet, "/api/users/ghost", "", authz); w.Code != http.StatusNotFound {
		t.Fatalf("want 404 on unknown user, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/chats/messages?user1_id=7&user2_id=8", "", authz)
	if w.Code != http.StatusOK {
		t.Fatalf("messages: status %d, body %s", w.Code, w.Body.String())
	}

	// Requester (id 7) not a participant.
	if w := doJSON(r, http.MethodGet, "/api/chats/messages?user1_id=8&user2_id=9", "", authz); w.Code != http.StatusForbidden {
		t.Fatalf("want 403 for outsider, got %d", w.Code)
	}

	if w := doJSON(r, http.MethodGet, "/api/chats/messages?user1_id=x&user2_id=8", "", authz); w.Code != http.StatusBadRequest {
		t.Fatalf("want 400 on bad ids, got %d", w.Code)
	}

	if w := doJSON(r, http.MethodGet, "/api/chats/recents", "", authz); w.Code != http.StatusOK {
		t.Fatalf("recents: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestHTTP_Healthz(t *testing.T) {
	t.Parallel()
	r := newTestServer(&fakeAuth{}, &fakeChatSvc{})
	if w := doJSON(r, http.MethodGet, "/healthz", "", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
}
