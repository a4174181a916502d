package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newTestSessionManager spins up a miniredis instance and a session manager
// backed by it.
func newTestSessionManager(t *testing.T, ttl time.Duration) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSessionManager(rdb, ttl), mr
}

func TestSessionManager_CreateAndGet(t *testing.T) {
	mgr, _ := newTestSessionManager(t, time.Hour)
	ctx := context.Background()

	token, err := mgr.Create(ctx, &Session{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	session, err := mgr.Get(ctx, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.IsAuthenticated() {
		t.Error("expected fresh session to be anonymous")
	}
	if session.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped")
	}
}

func TestSessionManager_GetUnknownToken(t *testing.T) {
	mgr, _ := newTestSessionManager(t, time.Hour)

	_, err := mgr.Get(context.Background(), "deadbeef")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSessionManager_Expiry(t *testing.T) {
	mgr, mr := newTestSessionManager(t, time.Minute)
	ctx := context.Background()

	token, err := mgr.Create(ctx, &Session{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := mgr.Get(ctx, token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after TTL, got %v", err)
	}
}

func TestSessionManager_SaveMutatesGrants(t *testing.T) {
	mgr, _ := newTestSessionManager(t, time.Hour)
	ctx := context.Background()

	token, err := mgr.Create(ctx, &Session{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	session, err := mgr.Get(ctx, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session.AddGrant("gallery-42")
	if err := mgr.Save(ctx, token, session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := mgr.Get(ctx, token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reloaded.HasGrant("gallery-42") {
		t.Error("expected grant to persist across save/load")
	}
}

func TestSessionManager_PromoteRegeneratesTokenAndCarriesGrants(t *testing.T) {
	mgr, _ := newTestSessionManager(t, time.Hour)
	ctx := context.Background()

	anon := &Session{}
	anon.AddGrant("gallery-7")
	oldToken, err := mgr.Create(ctx, anon)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	user := &User{ID: "user-1", Email: "alice@example.com", Role: RoleClient}
	newToken, err := mgr.Promote(ctx, oldToken, anon, user)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newToken == oldToken {
		t.Error("expected token to be regenerated on login")
	}

	// The old token must be dead.
	if _, err := mgr.Get(ctx, oldToken); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected old token to be destroyed, got %v", err)
	}

	session, err := mgr.Get(ctx, newToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.IsAuthenticated() {
		t.Error("expected promoted session to be authenticated")
	}
	if session.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", session.UserID)
	}
	if !session.HasGrant("gallery-7") {
		t.Error("expected access-code grant to survive login")
	}
	if session.LoginAt == nil {
		t.Error("expected LoginAt to be stamped")
	}
}

func TestSessionManager_Destroy(t *testing.T) {
	mgr, _ := newTestSessionManager(t, time.Hour)
	ctx := context.Background()

	token, err := mgr.Create(ctx, &Session{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mgr.Destroy(ctx, token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.Get(ctx, token); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after destroy, got %v", err)
	}
}
