package ws

import (
	"time"

	"github.com/rafimaliki/cryptalk/internal/model"
)

// Frame types on the socket. The client sends new_message; the server
// answers with ack or error and pushes new_message to recipients.
const (
	frameNewMessage = "new_message"
	frameAck        = "ack"
	frameError      = "error"
)

// frame is an inbound client frame. Payload fields beyond the active type
// are ignored.
type frame struct {
	Type             string    `json:"type"`
	ToUserID         int64     `json:"to_user_id"`
	Message          string    `json:"message"`
	MessageForSender string    `json:"message_for_sender"`
	Signature        string    `json:"signature"`
	CreatedAt        time.Time `json:"created_at"`
}

type outMessage struct {
	ID               int64     `json:"id"`
	RoomID           int64     `json:"room_id"`
	FromUserID       int64     `json:"from_user_id"`
	ToUserID         int64     `json:"to_user_id"`
	Message          string    `json:"message"`
	MessageForSender string    `json:"message_for_sender,omitempty"`
	Signature        string    `json:"signature"`
	CreatedAt        time.Time `json:"created_at"`
}

type outFrame struct {
	Type    string      `json:"type"`
	Error   string      `json:"error,omitempty"`
	Message *outMessage `json:"message,omitempty"`
}

func ackFrame(m *model.Message) outFrame {
	return outFrame{Type: frameAck, Message: &outMessage{
		ID:               m.ID,
		RoomID:           m.RoomID,
		FromUserID:       m.FromUserID,
		ToUserID:         m.ToUserID,
		Message:          m.Message,
		MessageForSender: m.MessageForSender,
		Signature:        m.Signature,
		CreatedAt:        m.CreatedAt,
	}}
}

// pushFrame is the recipient copy; the sender ciphertext stays private to
// the sender.
func pushFrame(m *model.Message) outFrame {
	return outFrame{Type: frameNewMessage, Message: &outMessage{
		ID:         m.ID,
		RoomID:     m.RoomID,
		FromUserID: m.FromUserID,
		ToUserID:   m.ToUserID,
		Message:    m.Message,
		Signature:  m.Signature,
		CreatedAt:  m.CreatedAt,
	}}
}

func errorFrame(msg string) outFrame {
	return outFrame{Type: frameError, Error: msg}
}
