package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lichtbild/galerie/internal/apperror"
)

// csrfTokenBytes is the number of random bytes in a CSRF token
// (32 bytes = 64 hex chars).
const csrfTokenBytes = 32

// CSRFTokenTTL is how long an issued token stays valid.
const CSRFTokenTTL = 3600 * time.Second

// csrfKeyPrefix namespaces token keys in Redis. Tokens are bound to the
// session they were issued for: csrf:<session>:<token>.
const csrfKeyPrefix = "csrf:"

// CSRFGuard issues and validates one-time anti-forgery tokens. Each token is
// bound to a session, expires after CSRFTokenTTL, and is consumed on first
// successful validation. Multiple live tokens may coexist per session (one
// per open form). Expiry is enforced by Redis TTLs, so no sweeper is needed.
type CSRFGuard struct {
	redis *redis.Client
}

// NewCSRFGuard creates a CSRF guard backed by the given Redis client.
func NewCSRFGuard(rdb *redis.Client) *CSRFGuard {
	return &CSRFGuard{redis: rdb}
}

// Issue generates a new token for the session and registers it with the
// issue timestamp. The returned token is hex-encoded and safe to embed in a
// form field or response body.
func (g *CSRFGuard) Issue(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", apperror.NewInternal(errors.New("issuing CSRF token without a session"))
	}

	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating CSRF token: %w", err))
	}
	token := hex.EncodeToString(b)

	key := csrfKeyPrefix + sessionID + ":" + token
	issuedAt := time.Now().UTC().Format(time.RFC3339)
	if err := g.redis.Set(ctx, key, issuedAt, CSRFTokenTTL).Err(); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("storing CSRF token: %w", err))
	}

	return token, nil
}

// Consume validates a token for the session and removes it in the same
// operation. GETDEL makes read-and-delete a single atomic step, so two
// concurrent requests carrying the same token cannot both succeed. Returns
// true exactly once per issued, unexpired token.
func (g *CSRFGuard) Consume(ctx context.Context, sessionID, token string) (bool, error) {
	if sessionID == "" || token == "" {
		return false, nil
	}

	key := csrfKeyPrefix + sessionID + ":" + token
	err := g.redis.GetDel(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		// Unknown, expired, or already consumed.
		return false, nil
	}
	if err != nil {
		return false, apperror.NewInternal(fmt.Errorf("consuming CSRF token: %w", err))
	}

	return true, nil
}
