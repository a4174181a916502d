package security

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// memoryRateLimitRepo is an in-memory RateLimitRepository for testing the
// limiter's window and lockout logic without a database. It mirrors the SQL
// implementation's semantics: increment-or-insert under a lock, restarting
// a record whose window elapsed without an active block, with the block set
// when the incremented count reaches the budget.
type memoryRateLimitRepo struct {
	mu      sync.Mutex
	records map[string]*RateLimitRecord
}

func newMemoryRateLimitRepo() *memoryRateLimitRepo {
	return &memoryRateLimitRepo{records: make(map[string]*RateLimitRecord)}
}

func (r *memoryRateLimitRepo) key(identifier, action string) string {
	return identifier + "|" + action
}

func (r *memoryRateLimitRepo) Find(ctx context.Context, identifier, action string) (*RateLimitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[r.key(identifier, action)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *memoryRateLimitRepo) RecordFailure(ctx context.Context, identifier, action string, maxAttempts int, window time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	key := r.key(identifier, action)
	rec, ok := r.records[key]
	if !ok {
		r.records[key] = &RateLimitRecord{
			Identifier:     identifier,
			Action:         action,
			Attempts:       1,
			FirstAttemptAt: now,
			LastAttemptAt:  now,
		}
		return nil
	}

	elapsed := now.Sub(rec.FirstAttemptAt) > window
	blocked := rec.BlockedUntil != nil && rec.BlockedUntil.After(now)
	if elapsed && !blocked {
		rec.Attempts = 1
		rec.FirstAttemptAt = now
		rec.BlockedUntil = nil
	} else {
		rec.Attempts++
	}
	rec.LastAttemptAt = now
	if rec.Attempts >= maxAttempts {
		until := now.Add(window)
		rec.BlockedUntil = &until
	}
	return nil
}

func (r *memoryRateLimitRepo) Delete(ctx context.Context, identifier, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, r.key(identifier, action))
	return nil
}

func (r *memoryRateLimitRepo) PruneExpired(ctx context.Context, maxAge time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for key, rec := range r.records {
		if rec.BlockedUntil != nil && rec.BlockedUntil.Before(cutoff) {
			delete(r.records, key)
		}
	}
	return nil
}

// backdate rewrites a record's timestamps to simulate the passage of time.
func (r *memoryRateLimitRepo) backdate(identifier, action string, firstAttempt time.Time, blockedUntil *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[r.key(identifier, action)]; ok {
		rec.FirstAttemptAt = firstAttempt
		rec.BlockedUntil = blockedUntil
	}
}

const testClient = "client-fingerprint"

func TestRateLimiter_AllowsFreshClient(t *testing.T) {
	limiter := NewRateLimiter(newMemoryRateLimitRepo(), 5, 15*time.Minute)

	allowed, err := limiter.IsAllowed(context.Background(), testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected a client with no history to be allowed")
	}
}

func TestRateLimiter_BlocksAfterBudgetExhausted(t *testing.T) {
	repo := newMemoryRateLimitRepo()
	limiter := NewRateLimiter(repo, 5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.IsAllowed(ctx, testClient, ActionLogin)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatalf("attempt %d should still be allowed", i+1)
		}
		if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	allowed, err := limiter.IsAllowed(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected client to be blocked after exhausting the budget")
	}

	remaining, err := limiter.RemainingBlockSeconds(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if remaining <= 0 || remaining > int((15*time.Minute).Seconds()) {
		t.Errorf("expected remaining block within (0, 900], got %d", remaining)
	}
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	repo := newMemoryRateLimitRepo()
	limiter := NewRateLimiter(repo, 5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// A success wipes the record entirely, not just one attempt.
	if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := repo.Find(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected record to be deleted on success, got attempts=%d", rec.Attempts)
	}
}

func TestRateLimiter_WindowElapseResets(t *testing.T) {
	repo := newMemoryRateLimitRepo()
	limiter := NewRateLimiter(repo, 5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Simulate the window elapsing without a lockout.
	repo.backdate(testClient, ActionLogin, time.Now().Add(-16*time.Minute), nil)

	allowed, err := limiter.IsAllowed(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Error("expected stale window to reset and allow")
	}

	// The stale record must be gone so counting restarts at zero.
	rec, err := repo.Find(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Error("expected stale record to be deleted")
	}
}

func TestRateLimiter_ActiveBlockOutlivesWindow(t *testing.T) {
	repo := newMemoryRateLimitRepo()
	limiter := NewRateLimiter(repo, 5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Backdate the window start but keep the block in the future. The
	// block must win over the elapsed window.
	blockedUntil := time.Now().Add(5 * time.Minute)
	repo.backdate(testClient, ActionLogin, time.Now().Add(-16*time.Minute), &blockedUntil)

	allowed, err := limiter.IsAllowed(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Error("expected an active block to deny regardless of window age")
	}
}

func TestRateLimiter_IndependentActions(t *testing.T) {
	repo := newMemoryRateLimitRepo()
	limiter := NewRateLimiter(repo, 5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if allowed, _ := limiter.IsAllowed(ctx, testClient, ActionLogin); allowed {
		t.Fatal("login should be blocked")
	}
	if allowed, _ := limiter.IsAllowed(ctx, testClient, ActionAccessCode); !allowed {
		t.Error("a login lockout must not block other actions")
	}
	if allowed, _ := limiter.IsAllowed(ctx, "other-fingerprint", ActionLogin); !allowed {
		t.Error("a lockout must not leak to other identifiers")
	}
}

func TestRateLimiter_ConcurrentFailuresNeverLoseCounts(t *testing.T) {
	repo := newMemoryRateLimitRepo()
	limiter := NewRateLimiter(repo, 100, 15*time.Minute)
	ctx := context.Background()

	const failures = 32
	var wg sync.WaitGroup
	for i := 0; i < failures; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := repo.Find(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.Attempts != failures {
		got := 0
		if rec != nil {
			got = rec.Attempts
		}
		t.Errorf("expected %d attempts recorded, got %d", failures, got)
	}
}

// observingRateLimitRepo counts repository calls so tests can pin down the
// statement shape of a limiter operation, not just its end state.
type observingRateLimitRepo struct {
	*memoryRateLimitRepo
	finds   atomic.Int32
	deletes atomic.Int32
}

func (r *observingRateLimitRepo) Find(ctx context.Context, identifier, action string) (*RateLimitRecord, error) {
	r.finds.Add(1)
	return r.memoryRateLimitRepo.Find(ctx, identifier, action)
}

func (r *observingRateLimitRepo) Delete(ctx context.Context, identifier, action string) error {
	r.deletes.Add(1)
	return r.memoryRateLimitRepo.Delete(ctx, identifier, action)
}

func TestRateLimiter_ConcurrentFailuresAfterWindowElapse(t *testing.T) {
	repo := &observingRateLimitRepo{memoryRateLimitRepo: newMemoryRateLimitRepo()}
	limiter := NewRateLimiter(repo, 5, 15*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	repo.backdate(testClient, ActionLogin, time.Now().Add(-16*time.Minute), nil)

	// Two failures racing over the same elapsed record: one restarts the
	// window at attempts = 1, the other increments to 2. A read-then-delete
	// restart would let both racers observe the stale record and lose one.
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := limiter.RecordAttempt(ctx, testClient, ActionLogin, false); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	rec, err := repo.Find(ctx, testClient, ActionLogin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record after the racing failures")
	}
	if rec.Attempts != 2 {
		t.Errorf("expected the elapsed-window restart to keep both failures, got %d", rec.Attempts)
	}
	if time.Since(rec.FirstAttemptAt) > time.Minute {
		t.Error("expected a fresh window start after the restart")
	}

	// Recording a failure must be a single upsert. Any read or delete on
	// this path reintroduces the race window.
	if repo.finds.Load() != 1 || repo.deletes.Load() != 0 {
		t.Errorf("expected 1 find (the assertion above) and 0 deletes, got %d finds and %d deletes",
			repo.finds.Load(), repo.deletes.Load())
	}
}

func TestRateLimiter_WindowAccessor(t *testing.T) {
	limiter := NewRateLimiter(newMemoryRateLimitRepo(), 100, 90*time.Second)
	if limiter.Window() != 90*time.Second {
		t.Errorf("expected the configured window, got %v", limiter.Window())
	}
}

func TestClientIdentifier_Deterministic(t *testing.T) {
	a := ClientIdentifier("203.0.113.9", "Mozilla/5.0")
	b := ClientIdentifier("203.0.113.9", "Mozilla/5.0")
	if a != b {
		t.Error("expected identical inputs to produce identical fingerprints")
	}
	if a == ClientIdentifier("203.0.113.10", "Mozilla/5.0") {
		t.Error("expected different IPs to produce different fingerprints")
	}
	if a == ClientIdentifier("203.0.113.9", "curl/8.0") {
		t.Error("expected different user agents to produce different fingerprints")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
