package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lichtbild/galerie/internal/apperror"
)

// Action constants for rate-limited operations. Each (identifier, action)
// pair is tracked independently so a login lockout does not block browsing.
const (
	ActionLogin      = "login"
	ActionAccessCode = "access_code"
	ActionRequest    = "request"
)

// pruneMaxAge is how long a lockout must be expired before its record is
// eligible for pruning.
const pruneMaxAge = time.Hour

// pruneInterval throttles opportunistic pruning so not every read pays for
// the cleanup DELETE.
const pruneInterval = time.Minute

// RateLimitRecord tracks attempt counts for a single (identifier, action)
// pair. Mirrors a row in the rate_limits table.
type RateLimitRecord struct {
	Identifier     string
	Action         string
	Attempts       int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
	BlockedUntil   *time.Time
}

// RateLimitRepository defines the data access contract for rate-limit state.
// RecordFailure must be an atomic increment-or-insert keyed by the
// (identifier, action) uniqueness constraint: two concurrent failures may
// never observe the same attempt count.
type RateLimitRepository interface {
	// Find returns the record for (identifier, action), or nil if none exists.
	Find(ctx context.Context, identifier, action string) (*RateLimitRecord, error)

	// RecordFailure atomically inserts, increments, or restarts the record
	// in a single statement. A record whose window has elapsed with no
	// active block restarts at attempts = 1 with a fresh window; otherwise
	// the count increments, and reaching maxAttempts sets blocked_until to
	// now + window. Concurrent failures may never observe the same count.
	RecordFailure(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) error

	// Delete removes the record outright (full reset).
	Delete(ctx context.Context, identifier, action string) error

	// PruneExpired deletes records whose block expired more than maxAge ago.
	PruneExpired(ctx context.Context, maxAge time.Duration) error
}

// RateLimiter enforces a fixed attempt window per (identifier, action) with
// an escalating lockout once the window's budget is exhausted. One instance
// carries one parameter set; construct separate limiters for logins
// (5 attempts / 900s) and generic request throttling (100 / 60s).
type RateLimiter struct {
	repo        RateLimitRepository
	maxAttempts int
	window      time.Duration

	// lastPrune is the unix time of the last opportunistic prune.
	lastPrune atomic.Int64
}

// NewRateLimiter creates a rate limiter with the given budget and window.
// The window doubles as the block duration once the budget is exhausted.
func NewRateLimiter(repo RateLimitRepository, maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		repo:        repo,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// Window returns the limiter's configured window, which doubles as the
// block duration. Callers use it as the retry-delay ceiling when the exact
// remaining block time is unavailable.
func (l *RateLimiter) Window() time.Duration {
	return l.window
}

// IsAllowed reports whether the identifier may perform the action right now.
// A record whose window has fully elapsed is reset (deleted) before deciding,
// so stale counters never block a client.
func (l *RateLimiter) IsAllowed(ctx context.Context, identifier, action string) (bool, error) {
	l.maybePrune(ctx)

	rec, err := l.repo.Find(ctx, identifier, action)
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("reading rate limit record: %w", err))
	}
	if rec == nil {
		return true, nil
	}

	now := time.Now()

	// An active block wins regardless of the attempt count.
	if rec.BlockedUntil != nil && rec.BlockedUntil.After(now) {
		return false, nil
	}

	// Window elapsed: reset the counter before deciding.
	if now.Sub(rec.FirstAttemptAt) > l.window {
		if err := l.repo.Delete(ctx, identifier, action); err != nil {
			return false, apperror.NewInternal(fmt.Errorf("resetting rate limit record: %w", err))
		}
		return true, nil
	}

	return rec.Attempts < l.maxAttempts, nil
}

// RecordAttempt records the outcome of an attempt. A success deletes the
// record outright (full reset, not decrement). A failure increments the
// counter atomically; reaching the budget sets the lockout. If the previous
// window has elapsed the counter restarts at one.
func (l *RateLimiter) RecordAttempt(ctx context.Context, identifier, action string, success bool) error {
	if success {
		if err := l.repo.Delete(ctx, identifier, action); err != nil {
			return apperror.NewInternal(fmt.Errorf("resetting rate limit record: %w", err))
		}
		return nil
	}

	// The repository restarts the window in the same upsert when the
	// previous one has fully elapsed and no block is active, so an attacker
	// idle for days never inherits an ancient first_attempt_at or an
	// inflated counter, and no read-modify-write race exists.
	if err := l.repo.RecordFailure(ctx, identifier, action, l.maxAttempts, l.window); err != nil {
		return apperror.NewInternal(fmt.Errorf("recording rate limit attempt: %w", err))
	}
	return nil
}

// RemainingBlockSeconds returns how many seconds remain on an active block,
// or 0 if the identifier is not blocked.
func (l *RateLimiter) RemainingBlockSeconds(ctx context.Context, identifier, action string) (int, error) {
	rec, err := l.repo.Find(ctx, identifier, action)
	if err != nil {
		return 0, apperror.NewInternal(fmt.Errorf("reading rate limit record: %w", err))
	}
	if rec == nil || rec.BlockedUntil == nil {
		return 0, nil
	}

	remaining := int(time.Until(*rec.BlockedUntil).Seconds())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// maybePrune removes long-expired records at most once per pruneInterval.
// Pruning is a storage-growth control, not correctness-critical, so failures
// are logged and swallowed.
func (l *RateLimiter) maybePrune(ctx context.Context) {
	now := time.Now().Unix()
	last := l.lastPrune.Load()
	if now-last < int64(pruneInterval.Seconds()) {
		return
	}
	if !l.lastPrune.CompareAndSwap(last, now) {
		return
	}

	if err := l.repo.PruneExpired(ctx, pruneMaxAge); err != nil {
		slog.Warn("pruning rate limit records failed", slog.Any("error", err))
	}
}
