// Package service contains application services for authentication and chat.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/rafimaliki/cryptalk/internal/crypto"
	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/limiter"
	"github.com/rafimaliki/cryptalk/internal/model"
	"github.com/rafimaliki/cryptalk/internal/repository"
)

const maxUsernameLen = 32

// AuthService implements the challenge–response protocol: registration of a
// public key, nonce issuance, and signature-verified login.
type AuthService interface {
	// Register binds a username to a public key. The server never sees a
	// password or private key.
	Register(ctx context.Context, username, publicKey string) (*model.User, error)
	// Challenge issues a fresh single-use nonce for a registered username.
	Challenge(ctx context.Context, username string) (*model.Nonce, error)
	// Login verifies a signed nonce and issues a session token. All protocol
	// failures surface as errs.ErrInvalidCredentials.
	Login(ctx context.Context, username string, nonceID int64, signedNonce, ip string) (model.Tokens, *model.User, error)
	// Lookup returns the public identity for a username.
	Lookup(ctx context.Context, username string) (*model.User, error)
}

// SessionClaims is the JWT payload carried by authenticated requests. The
// public key rides along so downstream consumers can verify without an
// extra identity lookup.
type SessionClaims struct {
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
	jwt.RegisteredClaims
}

// UserID returns the numeric identity id encoded in the subject.
func (c *SessionClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// VerifyToken parses and validates a session token issued by Login.
func VerifyToken(signKey []byte, token string) (*SessionClaims, error) {
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return signKey, nil
	})
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

type AuthServiceImpl struct {
	users    repository.UserRepository
	nonces   repository.NonceRepository
	guard    limiter.LoginGuard
	signKey  []byte
	tokenTTL time.Duration
	nonceTTL time.Duration
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(
	users repository.UserRepository,
	nonces repository.NonceRepository,
	guard limiter.LoginGuard,
	signKey []byte,
	tokenTTL, nonceTTL time.Duration,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:    users,
		nonces:   nonces,
		guard:    guard,
		signKey:  signKey,
		tokenTTL: tokenTTL,
		nonceTTL: nonceTTL,
	}
}

// Register validates and stores a new identity.
func (s *AuthServiceImpl) Register(ctx context.Context, username, publicKey string) (*model.User, error) {
	if username == "" || len(username) > maxUsernameLen {
		return nil, fmt.Errorf("%w: username", errs.ErrValidation)
	}
	if _, err := pkgcrypto.ParsePublicKey(publicKey); err != nil {
		return nil, fmt.Errorf("%w: public key", errs.ErrValidation)
	}
	return s.users.Create(ctx, username, publicKey)
}

// Challenge issues a nonce for username. Concurrent challenges for one user
// may coexist; a successful login sweeps them all.
func (s *AuthServiceImpl) Challenge(ctx context.Context, username string) (*model.Nonce, error) {
	if _, err := s.users.GetByUsername(ctx, username); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnknownIdentity
		}
		return nil, err
	}
	value, err := pkgcrypto.NewNonceValue()
	if err != nil {
		return nil, err
	}
	return s.nonces.Create(ctx, username, value)
}

// Lookup resolves a username to its public identity so peers can fetch
// each other's encryption keys.
func (s *AuthServiceImpl) Lookup(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrUnknownIdentity
		}
		return nil, err
	}
	return u, nil
}

// Login runs the response half of the challenge–response exchange. The
// client proves possession of the private key by signing
// SHA3-256(nonce||username); the nonce is consumed only after the signature
// checks out, so a failed attempt can retry with a fresh challenge.
func (s *AuthServiceImpl) Login(ctx context.Context, username string, nonceID int64, signedNonce, ip string) (model.Tokens, *model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.guard.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if !allowed {
		return model.Tokens{}, nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return model.Tokens{}, nil, s.fail(ctx, username, ipHash)
	}

	value, err := s.nonces.Get(ctx, username, nonceID, s.nonceTTL)
	if err != nil {
		return model.Tokens{}, nil, s.fail(ctx, username, ipHash)
	}

	sig, err := pkgcrypto.ParseSignature(signedNonce)
	if err != nil {
		return model.Tokens{}, nil, s.fail(ctx, username, ipHash)
	}
	if !pkgcrypto.Verify(u.PublicKey, pkgcrypto.NonceDigest(value, username), sig) {
		return model.Tokens{}, nil, s.fail(ctx, username, ipHash)
	}

	// Atomic consume: losing a race over the same nonce id fails the login.
	if err := s.nonces.Consume(ctx, username, nonceID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, nil, errs.ErrInvalidCredentials
		}
		return model.Tokens{}, nil, err
	}

	_ = s.guard.Success(ctx, username, ipHash)

	tokens, err := s.issueToken(u)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	return tokens, u, nil
}

// fail records the failed attempt and collapses the reason into
// ErrInvalidCredentials, or ErrRateLimited once the guard blocks.
func (s *AuthServiceImpl) fail(ctx context.Context, username string, ipHash []byte) error {
	if blocked, _, err := s.guard.Failure(ctx, username, ipHash); err == nil && blocked {
		return errs.ErrRateLimited
	}
	return errs.ErrInvalidCredentials
}

// issueToken creates a signed HS256 JWT carrying id, username and public key.
func (s *AuthServiceImpl) issueToken(u *model.User) (model.Tokens, error) {
	now := time.Now()
	exp := now.Add(s.tokenTTL)
	claims := SessionClaims{
		Username:  u.Username,
		PublicKey: u.PublicKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return model.Tokens{AccessToken: signed, ExpiresAt: exp}, err
}
