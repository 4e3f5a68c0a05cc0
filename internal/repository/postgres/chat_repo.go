package postgres

import (
	"context"
	"errors"

	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/model"
)

// ChatRepo implements ChatRepository using PostgreSQL.
type ChatRepo struct{ db *DB }

// NewChatRepo constructs a chat repository.
func NewChatRepo(db *DB) *ChatRepo { return &ChatRepo{db: db} }

// EnsureRoom returns the room for the user pair, creating it on first
// contact. The pair is normalized (lower id first) so the unique index
// makes the upsert race-free.
func (r *ChatRepo) EnsureRoom(ctx context.Context, user1ID, user2ID int64) (*model.Room, error) {
	lo, hi := user1ID, user2ID
	if lo > hi {
		lo, hi = hi, lo
	}
	const q = `
INSERT INTO chat_room (user1_id, user2_id)
VALUES ($1, $2)
ON CONFLICT (user1_id, user2_id) DO UPDATE SET user1_id = EXCLUDED.user1_id
RETURNING id, user1_id, user2_id, created_at`
	var room model.Room
	err := r.db.Pool.QueryRow(ctx, q, lo, hi).
		Scan(&room.ID, &room.User1ID, &room.User2ID, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// InsertMessage stores a sealed message. CreatedAt is the client's
// timestamp: it is bound into the signed hash, so the server must not
// substitute its own clock.
func (r *ChatRepo) InsertMessage(ctx context.Context, m *model.Message) (*model.Message, error) {
	const q = `
INSERT INTO chat (room_id, from_user_id, to_user_id, message, message_for_sender, signature, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
	saved := *m
	err := r.db.Pool.QueryRow(ctx, q,
		m.RoomID, m.FromUserID, m.ToUserID,
		m.Message, m.MessageForSender, m.Signature, m.CreatedAt,
	).Scan(&saved.ID)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// MessagesBetween returns the pair's full history, oldest first.
func (r *ChatRepo) MessagesBetween(ctx context.Context, user1ID, user2ID int64) ([]model.Message, error) {
	const q = `
SELECT id, room_id, from_user_id, to_user_id, message, message_for_sender, signature, created_at
FROM chat
WHERE (from_user_id=$1 AND to_user_id=$2) OR (from_user_id=$2 AND to_user_id=$1)
ORDER BY created_at, id`
	rows, err := r.db.Pool.Query(ctx, q, user1ID, user2ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.FromUserID, &m.ToUserID,
			&m.Message, &m.MessageForSender, &m.Signature, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentChats returns the newest message of every room the user belongs to,
// most recently active room first.
func (r *ChatRepo) RecentChats(ctx context.Context, userID int64) ([]model.RecentChat, error) {
	const q = `
SELECT t.room_id, t.id, t.from_user_id, t.to_user_id, t.message, t.message_for_sender, t.signature, t.created_at,
       t.peer_id, t.peer_username
FROM (
    SELECT DISTINCT ON (c.room_id)
        c.room_id, c.id, c.from_user_id, c.to_user_id, c.message, c.message_for_sender, c.signature, c.created_at,
        u.id AS peer_id, u.username AS peer_username
    FROM chat c
    JOIN app_user u
      ON u.id = CASE WHEN c.from_user_id=$1 THEN c.to_user_id ELSE c.from_user_id END
    WHERE c.from_user_id=$1 OR c.to_user_id=$1
    ORDER BY c.room_id, c.created_at DESC, c.id DESC
) t
ORDER BY t.created_at DESC, t.id DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	defer rows.Close()

	var out []model.RecentChat
	for rows.Next() {
		var rc model.RecentChat
		m := &rc.LastMessage
		if err := rows.Scan(&rc.RoomID, &m.ID, &m.FromUserID, &m.ToUserID,
			&m.Message, &m.MessageForSender, &m.Signature, &m.CreatedAt,
			&rc.PeerID, &rc.PeerUsername); err != nil {
			return nil, err
		}
		m.RoomID = rc.RoomID
		out = append(out, rc)
	}
	return out, rows.Err()
}
