package httpserver

import (
	"time"

	"github.com/rafimaliki/cryptalk/internal/model"
)

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	PublicKey string `json:"public_key" binding:"required"`
}

type challengeRequest struct {
	Username string `json:"username" binding:"required"`
}

type challengeResponse struct {
	NonceID int64  `json:"nonce_id"`
	Nonce   string `json:"nonce"`
}

type loginRequest struct {
	Username    string `json:"username" binding:"required"`
	NonceID     int64  `json:"nonce_id" binding:"required"`
	SignedNonce string `json:"signed_nonce" binding:"required"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	PublicKey string `json:"public_key"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, PublicKey: u.PublicKey}
}

type messageResponse struct {
	ID               int64     `json:"id"`
	RoomID           int64     `json:"room_id"`
	FromUserID       int64     `json:"from_user_id"`
	ToUserID         int64     `json:"to_user_id"`
	Message          string    `json:"message"`
	MessageForSender string    `json:"message_for_sender"`
	Signature        string    `json:"signature"`
	CreatedAt        time.Time `json:"created_at"`
}

func toMessageResponse(m model.Message) messageResponse {
	return messageResponse{
		ID:               m.ID,
		RoomID:           m.RoomID,
		FromUserID:       m.FromUserID,
		ToUserID:         m.ToUserID,
		Message:          m.Message,
		MessageForSender: m.MessageForSender,
		Signature:        m.Signature,
		CreatedAt:        m.CreatedAt,
	}
}

func toMessageResponses(ms []model.Message) []messageResponse {
	out := make([]messageResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMessageResponse(m))
	}
	return out
}

type recentChatResponse struct {
	RoomID       int64           `json:"room_id"`
	PeerID       int64           `json:"peer_id"`
	PeerUsername string          `json:"peer_username"`
	LastMessage  messageResponse `json:"last_message"`
}

func toRecentChatResponses(rcs []model.RecentChat) []recentChatResponse {
	out := make([]recentChatResponse, 0, len(rcs))
	for _, rc := range rcs {
		out = append(out, recentChatResponse{
			RoomID:       rc.RoomID,
			PeerID:       rc.PeerID,
			PeerUsername: rc.PeerUsername,
			LastMessage:  toMessageResponse(rc.LastMessage),
		})
	}
	return out
}
