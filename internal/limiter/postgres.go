package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of a pgx pool used by Postgres.
// Implemented by *pgxpool.Pool and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps attempt counters in the login_attempts table.
type Postgres struct {
	q      Querier
	policy Policy
	now    func() time.Time
}

// NewPostgres constructs a PostgreSQL-backed limiter.
func NewPostgres(q Querier, p Policy) *Postgres {
	return &Postgres{q: q, policy: p, now: time.Now}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Postgres) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.q.QueryRow(ctx, q, username, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		if wait := blockedUntil.Sub(l.now()); wait > 0 {
			return false, wait, nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, fmt.Errorf("limiter allow: %w", err)
	}
}

// Success clears the counters for (username, ip).
func (l *Postgres) Success(ctx context.Context, username string, ipHash []byte) error {
	const q = `DELETE FROM login_attempts WHERE username=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, q, username, ipHash); err != nil {
		return fmt.Errorf("limiter success: %w", err)
	}
	return nil
}

// Failure records a failed attempt. Counting restarts when the previous
// failure is older than the window; reaching MaxFails sets blocked_until.
func (l *Postgres) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()
	const q = `
INSERT INTO login_attempts (username, ip_hash, fail_count, window_start, blocked_until)
VALUES ($1, $2, 1, $3, 'epoch')
ON CONFLICT (username, ip_hash) DO UPDATE SET
  fail_count = CASE WHEN login_attempts.window_start < $4 THEN 1 ELSE login_attempts.fail_count + 1 END,
  window_start = CASE WHEN login_attempts.window_start < $4 THEN $3 ELSE login_attempts.window_start END
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, username, ipHash, now, now.Add(-l.policy.Window)).Scan(&fails); err != nil {
		return false, 0, fmt.Errorf("limiter failure: %w", err)
	}
	if fails < l.policy.MaxFails {
		return false, 0, nil
	}
	const upd = `UPDATE login_attempts SET blocked_until=$3 WHERE username=$1 AND ip_hash=$2`
	if _, err := l.q.Exec(ctx, upd, username, ipHash, now.Add(l.policy.BlockFor)); err != nil {
		return false, 0, fmt.Errorf("limiter block: %w", err)
	}
	return true, l.policy.BlockFor, nil
}
