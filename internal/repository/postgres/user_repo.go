package postgres

import (
	"context"
	"errors"

	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new identity row. Usernames are unique; the public key
// is written once and never updated.
func (r *UserRepo) Create(ctx context.Context, username, publicKey string) (*model.User, error) {
	const q = `
INSERT INTO app_user (username, public_key)
VALUES ($1, $2)
RETURNING id, username, public_key, created_at`
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, username, publicKey).
		Scan(&u.ID, &u.Username, &u.PublicKey, &u.CreatedAt)
	if isUniqueViolation(err) {
		return nil, errs.ErrUsernameTaken
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID selects an identity by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const q = `
SELECT id, username, public_key, created_at
FROM app_user WHERE id=$1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects an identity by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `
SELECT id, username, public_key, created_at
FROM app_user WHERE username=$1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

func (r *UserRepo) scanUser(row interface{ Scan(dest ...any) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.PublicKey, &u.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	return &u, nil
}
