// Package ws is the realtime relay: authenticated websocket sessions plus a
// registry so a sealed message reaches its recipient the moment it is stored.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rafimaliki/cryptalk/internal/limiter"
	"github.com/rafimaliki/cryptalk/internal/metrics"
	"github.com/rafimaliki/cryptalk/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second

	maxFrameSize = 64 << 10
)

// Hub upgrades connections and tracks one live session per user. A second
// login replaces the previous session.
type Hub struct {
	log     *zap.Logger
	chats   service.ChatService
	flood   *limiter.Flood
	metrics *metrics.Metrics
	signKey []byte

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[int64]*session
}

type session struct {
	id     uuid.UUID
	userID int64
	conn   *websocket.Conn

	sendMu sync.Mutex // serializes writes to conn
}

// New constructs the hub. flood may be nil to disable throttling.
func New(log *zap.Logger, chats service.ChatService, flood *limiter.Flood, m *metrics.Metrics, signKey []byte) *Hub {
	return &Hub{
		log:     log,
		chats:   chats,
		flood:   flood,
		metrics: m,
		signKey: signKey,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are terminals and native apps, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[int64]*session),
	}
}

// ServeHTTP authenticates via the token query parameter and runs the session
// read loop until the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := service.VerifyToken(h.signKey, r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		h.log.Warn("ws upgrade", zap.Error(err))
		return
	}

	sid, err := uuid.NewV4()
	if err != nil {
		conn.Close()
		return
	}
	s := &session{id: sid, userID: userID, conn: conn}

	h.register(s)
	h.log.Info("ws connect",
		zap.String("session", s.id.String()),
		zap.Int64("user_id", userID),
		zap.String("username", claims.Username),
	)

	go h.pingLoop(s)
	h.readLoop(r, s)

	h.remove(s)
	conn.Close()
	h.log.Info("ws disconnect",
		zap.String("session", s.id.String()),
		zap.Int64("user_id", userID),
	)
}

// register installs s as the user's live session, closing any previous one.
func (h *Hub) register(s *session) {
	h.mu.Lock()
	prev := h.sessions[s.userID]
	h.sessions[s.userID] = s
	h.mu.Unlock()

	if prev != nil {
		prev.conn.Close()
	} else {
		h.metrics.ActiveSessions.Inc()
	}
}

// remove drops s from the registry unless a newer session already replaced it.
func (h *Hub) remove(s *session) {
	h.mu.Lock()
	replaced := h.sessions[s.userID] != s
	if !replaced {
		delete(h.sessions, s.userID)
	}
	h.mu.Unlock()

	if !replaced {
		h.metrics.ActiveSessions.Dec()
	}
}

// lookup returns the live session for userID, nil when offline.
func (h *Hub) lookup(userID int64) *session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

func (h *Hub) readLoop(r *http.Request, s *session) {
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("ws read", zap.String("session", s.id.String()), zap.Error(err))
			}
			return
		}
		if !h.flood.Allow(s.userID, time.Now()) {
			h.send(s, errorFrame("rate limited"))
			continue
		}

		switch f.Type {
		case frameNewMessage:
			h.handleNewMessage(r, s, f)
		default:
			h.send(s, errorFrame("unknown frame type"))
		}
	}
}

// handleNewMessage persists the sealed message, acks the sender and pushes it
// to the recipient when they are connected.
func (h *Hub) handleNewMessage(r *http.Request, s *session, f frame) {
	m, err := h.chats.SaveMessage(r.Context(), service.SendMessage{
		FromUserID:       s.userID,
		ToUserID:         f.ToUserID,
		Message:          f.Message,
		MessageForSender: f.MessageForSender,
		Signature:        f.Signature,
		CreatedAt:        f.CreatedAt,
	})
	if err != nil {
		h.send(s, errorFrame("rejected"))
		return
	}
	h.metrics.MessagesStored.Inc()

	h.send(s, ackFrame(m))

	if peer := h.lookup(m.ToUserID); peer != nil {
		if h.send(peer, pushFrame(m)) {
			h.metrics.MessagesRelayed.Inc()
		}
	}
}

// send writes one frame; reports delivery so callers can count relays.
func (h *Hub) send(s *session, v any) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(v); err != nil {
		h.log.Warn("ws write", zap.String("session", s.id.String()), zap.Error(err))
		return false
	}
	return true
}

func (h *Hub) pingLoop(s *session) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for range t.C {
		s.sendMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := s.conn.WriteMessage(websocket.PingMessage, nil)
		s.sendMu.Unlock()
		if err != nil {
			return
		}
	}
}

// Shutdown closes every live session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.conn.Close()
		delete(h.sessions, id)
	}
}
