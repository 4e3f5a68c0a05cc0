package service

import (
	"context"
	"fmt"
	"time"

	pkgcrypto "github.com/rafimaliki/cryptalk/internal/crypto"
	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/model"
	"github.com/rafimaliki/cryptalk/internal/repository"
)

// SendMessage is a client's sealed outgoing message. The server treats both
// ciphertexts and the signature as opaque: it checks shape, never content.
type SendMessage struct {
	FromUserID       int64
	ToUserID         int64
	Message          string // ciphertext JSON for the recipient
	MessageForSender string // ciphertext JSON for the sender's own re-reads
	Signature        string // {r,s} JSON over the plaintext hash
	CreatedAt        time.Time
}

// ChatService stores and serves sealed messages.
type ChatService interface {
	// SaveMessage validates envelope shape, resolves the pair's room and
	// persists the message.
	SaveMessage(ctx context.Context, in SendMessage) (*model.Message, error)
	// MessagesBetween returns the pair's history; the requester must be one
	// of the two participants.
	MessagesBetween(ctx context.Context, requesterID, user1ID, user2ID int64) ([]model.Message, error)
	// RecentChats returns the newest message per conversation for userID.
	RecentChats(ctx context.Context, userID int64) ([]model.RecentChat, error)
}

type ChatServiceImpl struct {
	repo repository.ChatRepository
}

// NewChatService constructs ChatService.
func NewChatService(repo repository.ChatRepository) *ChatServiceImpl {
	return &ChatServiceImpl{repo: repo}
}

// SaveMessage persists a sealed message after shape validation. Malformed
// envelopes are rejected here so the store only ever holds parseable rows;
// whether they decrypt is the recipient's business.
func (s *ChatServiceImpl) SaveMessage(ctx context.Context, in SendMessage) (*model.Message, error) {
	if in.FromUserID <= 0 || in.ToUserID <= 0 {
		return nil, fmt.Errorf("%w: participant ids", errs.ErrValidation)
	}
	if in.FromUserID == in.ToUserID {
		return nil, fmt.Errorf("%w: sender equals recipient", errs.ErrValidation)
	}
	if _, err := pkgcrypto.ParseCiphertext(in.Message); err != nil {
		return nil, fmt.Errorf("%w: recipient ciphertext", errs.ErrValidation)
	}
	if _, err := pkgcrypto.ParseCiphertext(in.MessageForSender); err != nil {
		return nil, fmt.Errorf("%w: sender ciphertext", errs.ErrValidation)
	}
	if _, err := pkgcrypto.ParseSignature(in.Signature); err != nil {
		return nil, fmt.Errorf("%w: signature", errs.ErrValidation)
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	room, err := s.repo.EnsureRoom(ctx, in.FromUserID, in.ToUserID)
	if err != nil {
		return nil, err
	}
	return s.repo.InsertMessage(ctx, &model.Message{
		RoomID:           room.ID,
		FromUserID:       in.FromUserID,
		ToUserID:         in.ToUserID,
		Message:          in.Message,
		MessageForSender: in.MessageForSender,
		Signature:        in.Signature,
		CreatedAt:        in.CreatedAt,
	})
}

// MessagesBetween enforces that only participants read a conversation.
func (s *ChatServiceImpl) MessagesBetween(ctx context.Context, requesterID, user1ID, user2ID int64) ([]model.Message, error) {
	if requesterID != user1ID && requesterID != user2ID {
		return nil, errs.ErrForbidden
	}
	return s.repo.MessagesBetween(ctx, user1ID, user2ID)
}

// RecentChats lists the newest message per room for the sidebar.
func (s *ChatServiceImpl) RecentChats(ctx context.Context, userID int64) ([]model.RecentChat, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id", errs.ErrValidation)
	}
	return s.repo.RecentChats(ctx, userID)
}
