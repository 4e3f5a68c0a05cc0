// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/rafimaliki/cryptalk/internal/model"
)

// UserRepository provides access to registered identities.
type UserRepository interface {
	// Create inserts a new identity; errs.ErrUsernameTaken on duplicates.
	Create(ctx context.Context, username, publicKey string) (*model.User, error)
	// GetByID loads an identity by ID.
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername loads an identity by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}
