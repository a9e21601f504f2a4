// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/taskhub/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to registered identities.
type UserRepository interface {
	// Create inserts a new user. Duplicate username or email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by exact, case-sensitive username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// ExistsByUsernameOrEmail reports whether either value is already taken.
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]model.User, error)
	// Count returns the number of registered users.
	Count(ctx context.Context) (int, error)
}
