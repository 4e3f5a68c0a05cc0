package repository

import (
	"context"

	"github.com/rafimaliki/cryptalk/internal/model"
)

// ChatRepository persists rooms and sealed messages. Messages are immutable
// once inserted; there is no update or delete surface.
type ChatRepository interface {
	// EnsureRoom returns the room for the (unordered) user pair, creating it
	// on first contact.
	EnsureRoom(ctx context.Context, user1ID, user2ID int64) (*model.Room, error)

	// InsertMessage stores a sealed message and returns it with ID and
	// CreatedAt populated.
	InsertMessage(ctx context.Context, m *model.Message) (*model.Message, error)

	// MessagesBetween returns all messages exchanged by the pair, oldest first.
	MessagesBetween(ctx context.Context, user1ID, user2ID int64) ([]model.Message, error)

	// RecentChats returns the newest message of every room userID belongs to,
	// newest room first.
	RecentChats(ctx context.Context, userID int64) ([]model.RecentChat, error)
}
