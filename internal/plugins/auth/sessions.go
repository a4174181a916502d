package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lichtbild/galerie/internal/apperror"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// ErrNoSession is returned when a token resolves to no stored session.
var ErrNoSession = errors.New("session not found")

// SessionManager owns the session lifecycle in Redis: creation (anonymous or
// authenticated), lookup, mutation, promotion on login, and destruction.
type SessionManager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewSessionManager creates a session manager with the given TTL.
func NewSessionManager(rdb *redis.Client, ttl time.Duration) *SessionManager {
	return &SessionManager{redis: rdb, ttl: ttl}
}

// Create stores a new session and returns its token. Used both for anonymous
// visitors (empty session) and fresh logins.
func (m *SessionManager) Create(ctx context.Context, session *Session) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("generating session token: %w", err))
	}

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	if err := m.write(ctx, token, session); err != nil {
		return "", err
	}
	return token, nil
}

// Get looks up a session by token. Returns ErrNoSession (wrapped) if the
// token is unknown or expired.
func (m *SessionManager) Get(ctx context.Context, token string) (*Session, error) {
	data, err := m.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session: %w", err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("unmarshaling session: %w", err))
	}

	return &session, nil
}

// Save writes a mutated session back under its existing token, refreshing
// the TTL. Used after access-code grants change the granted-gallery set.
func (m *SessionManager) Save(ctx context.Context, token string, session *Session) error {
	return m.write(ctx, token, session)
}

// Promote upgrades a session to an authenticated one on login. The session
// identifier is regenerated (privilege change), the old token is destroyed,
// and session-scoped gallery grants carry over. Returns the new token.
func (m *SessionManager) Promote(ctx context.Context, oldToken string, old *Session, user *User) (string, error) {
	now := time.Now().UTC()
	session := &Session{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		LoginAt:   &now,
		CreatedAt: now,
	}
	if old != nil {
		session.GrantedGalleryIDs = old.GrantedGalleryIDs
	}

	token, err := m.Create(ctx, session)
	if err != nil {
		return "", err
	}

	if oldToken != "" {
		if err := m.Destroy(ctx, oldToken); err != nil {
			// The new session is live; a stale anonymous one only wastes a key.
			return token, nil
		}
	}

	return token, nil
}

// Destroy removes a session, logging the user out.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if err := m.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session: %w", err))
	}
	return nil
}

// write marshals and stores the session with the configured TTL.
func (m *SessionManager) write(ctx context.Context, token string, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("marshaling session: %w", err))
	}

	if err := m.redis.Set(ctx, sessionKeyPrefix+token, data, m.ttl).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("storing session: %w", err))
	}
	return nil
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
