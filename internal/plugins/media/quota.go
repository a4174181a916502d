package media

import (
	"context"
	"fmt"
	"sync"
)

// QuotaLedger enforces the per-uploader, per-gallery budget: at most
// QuotaMaxFiles files and QuotaMaxBytes aggregate bytes. Usage is derived
// from stored media rows on demand, never tracked separately.
//
// Check-then-insert is not atomic on its own: two concurrent batches from
// the same (uploader, gallery) pair could both pass against a stale
// snapshot and jointly overshoot. Callers must wrap the check and the
// subsequent writes in Acquire/release for that pair.
type QuotaLedger struct {
	repo MediaRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewQuotaLedger creates a quota ledger reading usage from the repository.
func NewQuotaLedger(repo MediaRepository) *QuotaLedger {
	return &QuotaLedger{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
}

// Acquire takes the mutex serializing quota-checked writes for one
// (uploader, gallery) pair and returns its release function. Per-key
// mutexes are created on first use and kept for the process lifetime; the
// key space is bounded by active user-gallery pairs.
func (q *QuotaLedger) Acquire(uploaderID, galleryID string) func() {
	key := uploaderID + "|" + galleryID

	q.mu.Lock()
	lock, ok := q.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		q.locks[key] = lock
	}
	q.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CheckBatch verifies that persisting all incoming files would keep the
// (uploader, gallery) pair within budget. Errors are cumulative and
// descriptive; any error means the caller must reject the entire batch
// before writing anything. Must be called with the pair's lock held.
func (q *QuotaLedger) CheckBatch(ctx context.Context, uploaderID, galleryID string, files []*UploadFile) ([]string, error) {
	count, totalBytes, err := q.repo.UploadStats(ctx, uploaderID, galleryID)
	if err != nil {
		return nil, fmt.Errorf("reading upload stats: %w", err)
	}

	var errs []string

	var incomingBytes int64
	for _, f := range files {
		incomingBytes += f.Size
		if f.Size > QuotaMaxBytes {
			errs = append(errs, fmt.Sprintf("%s alone exceeds the %s upload budget", f.Name, formatBytes(QuotaMaxBytes)))
		}
	}

	if count+len(files) > QuotaMaxFiles {
		remaining := QuotaMaxFiles - count
		if remaining < 0 {
			remaining = 0
		}
		errs = append(errs, fmt.Sprintf("file limit exceeded: %d of %d files remaining in this gallery", remaining, QuotaMaxFiles))
	}

	if totalBytes+incomingBytes > QuotaMaxBytes {
		remaining := QuotaMaxBytes - totalBytes
		if remaining < 0 {
			remaining = 0
		}
		errs = append(errs, fmt.Sprintf("storage limit exceeded: %s of %s remaining in this gallery", formatBytes(remaining), formatBytes(QuotaMaxBytes)))
	}

	return errs, nil
}

// formatBytes renders a byte count for user-facing quota messages.
func formatBytes(n int64) string {
	const (
		kib = 1024
		mib = 1024 * kib
	)
	switch {
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(mib))
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/float64(kib))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
