package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rafimaliki/cryptalk/internal/errs"
	"github.com/rafimaliki/cryptalk/internal/model"
)

// NonceRepo implements NonceRepository using PostgreSQL.
type NonceRepo struct{ db *DB }

// NewNonceRepo constructs a nonce repository.
func NewNonceRepo(db *DB) *NonceRepo { return &NonceRepo{db: db} }

// Create stores a fresh challenge row for username.
func (r *NonceRepo) Create(ctx context.Context, username, value string) (*model.Nonce, error) {
	const q = `
INSERT INTO nonce_store (username, nonce)
VALUES ($1, $2)
RETURNING id, username, nonce, created_at`
	var n model.Nonce
	err := r.db.Pool.QueryRow(ctx, q, username, value).
		Scan(&n.ID, &n.Username, &n.Value, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Get returns the challenge value for (username, id) if it was issued within
// maxAge. Expired rows are invisible here and reaped by PurgeExpired.
func (r *NonceRepo) Get(ctx context.Context, username string, id int64, maxAge time.Duration) (string, error) {
	const q = `
SELECT nonce FROM nonce_store
WHERE id=$1 AND username=$2 AND created_at >= $3`
	cutoff := time.Now().Add(-maxAge)
	var value string
	if err := r.db.Pool.QueryRow(ctx, q, id, username, cutoff).Scan(&value); err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", errs.ErrNotFound
	}
	return value, nil
}

// Consume atomically deletes the targeted challenge and every other
// outstanding challenge for the username. Two logins racing over the same
// nonce id serialize on the first delete: the loser sees zero rows and gets
// errs.ErrNotFound. Clearing the rest invalidates any other in-flight
// challenge for the user, which is intended cross-session behavior.
func (r *NonceRepo) Consume(ctx context.Context, username string, id int64) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const del = `DELETE FROM nonce_store WHERE id=$1 AND username=$2`
	tag, err := tx.Exec(ctx, del, id, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}

	const sweep = `DELETE FROM nonce_store WHERE username=$1`
	if _, err = tx.Exec(ctx, sweep, username); err != nil {
		return err
	}
	return nil
}

// PurgeExpired removes challenges older than maxAge.
func (r *NonceRepo) PurgeExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	const q = `DELETE FROM nonce_store WHERE created_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
