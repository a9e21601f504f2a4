package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/taskhub/internal/errs"
	"github.com/and161185/taskhub/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userCols = `id, username, email, pwd_hash, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, email, pwd_hash, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Username, u.Email, u.PwdHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE username=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

// ExistsByUsernameOrEmail reports whether a user with the username or email exists.
func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1 OR email=$2)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, username, email).Scan(&ok); err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return ok, nil
}

// List selects all users ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Count returns the number of users.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// scanUser maps a single row; a missing row becomes errs.ErrNotFound,
// anything else is returned as a storage error.
func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PwdHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
