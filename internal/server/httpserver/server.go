// Package httpserver exposes the relay's HTTP API.
package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/metrics"
	"github.com/rafimaliki/cryptalk/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	log     *zap.Logger
	auth    service.AuthService
	chats   service.ChatService
	metrics *metrics.Metrics
	signKey []byte
}

// New constructs the HTTP server with injected services.
func New(log *zap.Logger, auth service.AuthService, chats service.ChatService, m *metrics.Metrics, signKey []byte) *Server {
	return &Server{log: log, auth: auth, chats: chats, metrics: m, signKey: signKey}
}

// Router builds the gin engine. ws, when non-nil, is mounted on GET /ws.
func (s *Server) Router(ws http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.log), RequestLogger(s.log))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if ws != nil {
		r.GET("/ws", gin.WrapH(ws))
	}

	api := r.Group("/api")
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/challenge", s.handleChallenge)
	api.POST("/auth/login", s.handleLogin)

	authed := api.Group("", Auth(s.signKey))
	authed.GET("/users/:username", s.handleLookup)
	authed.GET("/chats/messages", s.handleMessages)
	authed.GET("/chats/recents", s.handleRecents)

	return r
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	u, err := s.auth.Register(c.Request.Context(), req.Username, req.PublicKey)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.Registrations.Inc()
	c.JSON(http.StatusCreated, toUserResponse(u))
}

func (s *Server) handleChallenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	n, err := s.auth.Challenge(c.Request.Context(), req.Username)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, challengeResponse{NonceID: n.ID, Nonce: n.Value})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}
	tok, u, err := s.auth.Login(c.Request.Context(), req.Username, req.NonceID, req.SignedNonce, c.ClientIP())
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidCredentials):
			s.metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		case errors.Is(err, errs.ErrRateLimited):
			s.metrics.LoginAttempts.WithLabelValues("rate_limited").Inc()
		default:
			s.metrics.LoginAttempts.WithLabelValues("error").Inc()
		}
		s.writeError(c, err)
		return
	}
	s.metrics.LoginAttempts.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, loginResponse{
		Token:     tok.AccessToken,
		ExpiresAt: tok.ExpiresAt,
		User:      toUserResponse(u),
	})
}

func (s *Server) handleLookup(c *gin.Context) {
	u, err := s.auth.Lookup(c.Request.Context(), c.Param("username"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u))
}

func (s *Server) handleMessages(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no auth"})
		return
	}
	requesterID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad token"})
		return
	}
	user1ID, err1 := strconv.ParseInt(c.Query("user1_id"), 10, 64)
	user2ID, err2 := strconv.ParseInt(c.Query("user2_id"), 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad user ids"})
		return
	}
	ms, err := s.chats.MessagesBetween(c.Request.Context(), requesterID, user1ID, user2ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": toMessageResponses(ms)})
}

func (s *Server) handleRecents(c *gin.Context) {
	claims, ok := ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no auth"})
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bad token"})
		return
	}
	rcs, err := s.chats.RecentChats(c.Request.Context(), userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": toRecentChatResponses(rcs)})
}

// writeError maps service errors onto HTTP statuses. Unmapped errors are
// logged and collapsed into a bare 500.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errs.ErrUnknownIdentity), errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, errs.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, errs.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username exists"})
	case errors.Is(err, errs.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		s.log.Error("handler", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
