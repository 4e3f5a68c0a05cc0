package repository

import (
	"context"
	"time"

	"github.com/rafimaliki/cryptalk/internal/model"
)

// NonceRepository stores outstanding login challenges. Several challenges
// may coexist for one username; consumption is atomic per (username, id).
type NonceRepository interface {
	// Create stores a fresh challenge value for username and returns the row.
	Create(ctx context.Context, username, value string) (*model.Nonce, error)

	// Get returns the challenge value for (username, id) if it exists and was
	// issued within maxAge; errs.ErrNotFound otherwise.
	Get(ctx context.Context, username string, id int64, maxAge time.Duration) (string, error)

	// Consume deletes the challenge (username, id) and, in the same
	// transaction, every other outstanding challenge for username. It
	// returns errs.ErrNotFound when the targeted challenge is already gone,
	// which is how a lost login race surfaces.
	Consume(ctx context.Context, username string, id int64) error

	// PurgeExpired removes challenges older than maxAge and reports how many
	// rows were deleted.
	PurgeExpired(ctx context.Context, maxAge time.Duration) (int64, error)
}
