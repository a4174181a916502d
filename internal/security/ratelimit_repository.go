package security

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// rateLimitRepository implements RateLimitRepository with MariaDB. The
// rate_limits table carries UNIQUE(identifier, action), which makes the
// INSERT ... ON DUPLICATE KEY UPDATE in RecordFailure a true atomic upsert:
// concurrent failures serialize on the row and each sees a distinct count.
type rateLimitRepository struct {
	db *sql.DB
}

// NewRateLimitRepository creates a rate-limit repository backed by the given
// DB pool.
func NewRateLimitRepository(db *sql.DB) RateLimitRepository {
	return &rateLimitRepository{db: db}
}

// Find returns the record for (identifier, action), or nil if none exists.
func (r *rateLimitRepository) Find(ctx context.Context, identifier, action string) (*RateLimitRecord, error) {
	query := `SELECT identifier, action, attempts, first_attempt_at, last_attempt_at, blocked_until
	          FROM rate_limits WHERE identifier = ? AND action = ?`

	rec := &RateLimitRecord{}
	err := r.db.QueryRowContext(ctx, query, identifier, action).Scan(
		&rec.Identifier,
		&rec.Action,
		&rec.Attempts,
		&rec.FirstAttemptAt,
		&rec.LastAttemptAt,
		&rec.BlockedUntil,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying rate limit record: %w", err)
	}

	return rec, nil
}

// RecordFailure atomically inserts, increments, or restarts the record in
// one statement. Assignment order in the UPDATE clause matters: the first
// assignment decides between restart (elapsed window, no active block) and
// increment while every column still holds its pre-update value; the later
// assignments key off the resulting count, where attempts = 1 can only mean
// a restart because any existing row increments to at least 2.
func (r *rateLimitRepository) RecordFailure(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) error {
	query := `INSERT INTO rate_limits (identifier, action, attempts, first_attempt_at, last_attempt_at)
	          VALUES (?, ?, 1, NOW(), NOW())
	          ON DUPLICATE KEY UPDATE
	              attempts = IF(
	                  first_attempt_at < DATE_SUB(NOW(), INTERVAL ? SECOND)
	                  AND (blocked_until IS NULL OR blocked_until <= NOW()),
	                  1, attempts + 1),
	              first_attempt_at = IF(attempts = 1, NOW(), first_attempt_at),
	              blocked_until = IF(attempts >= ?,
	                  DATE_ADD(NOW(), INTERVAL ? SECOND),
	                  IF(attempts = 1, NULL, blocked_until)),
	              last_attempt_at = NOW()`

	_, err := r.db.ExecContext(ctx, query,
		identifier, action,
		int(window.Seconds()),
		maxAttempts, int(window.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("upserting rate limit record: %w", err)
	}

	return nil
}

// Delete removes the record for (identifier, action).
func (r *rateLimitRepository) Delete(ctx context.Context, identifier, action string) error {
	query := `DELETE FROM rate_limits WHERE identifier = ? AND action = ?`

	if _, err := r.db.ExecContext(ctx, query, identifier, action); err != nil {
		return fmt.Errorf("deleting rate limit record: %w", err)
	}

	return nil
}

// PruneExpired deletes records whose block expired more than maxAge ago.
func (r *rateLimitRepository) PruneExpired(ctx context.Context, maxAge time.Duration) error {
	query := `DELETE FROM rate_limits
	          WHERE blocked_until IS NOT NULL
	          AND blocked_until < DATE_SUB(NOW(), INTERVAL ? SECOND)`

	if _, err := r.db.ExecContext(ctx, query, int(maxAge.Seconds())); err != nil {
		return fmt.Errorf("pruning rate limit records: %w", err)
	}

	return nil
}
