package media

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"
)

// memoryMediaRepo is an in-memory MediaRepository. UploadStats derives
// usage from the stored assets, like the SQL implementation does.
type memoryMediaRepo struct {
	mu     sync.Mutex
	assets map[string]*MediaAsset
}

func newMemoryMediaRepo() *memoryMediaRepo {
	return &memoryMediaRepo{assets: make(map[string]*MediaAsset)}
}

func (r *memoryMediaRepo) Create(ctx context.Context, asset *MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *asset
	r.assets[asset.ID] = &cp
	return nil
}

func (r *memoryMediaRepo) FindByID(ctx context.Context, id string) (*MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.assets[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (r *memoryMediaRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assets, id)
	return nil
}

func (r *memoryMediaRepo) ListByGallery(ctx context.Context, galleryID string) ([]MediaAsset, error) {
	return nil, nil
}

func (r *memoryMediaRepo) UploadStats(ctx context.Context, uploaderID, galleryID string) (int, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	var total int64
	for _, a := range r.assets {
		if a.GalleryID == galleryID && a.UploaderUserID != nil && *a.UploaderUserID == uploaderID {
			count++
			total += a.ByteSize
		}
	}
	return count, total, nil
}

// seed inserts existing usage for an uploader/gallery pair.
func (r *memoryMediaRepo) seed(t *testing.T, uploaderID, galleryID string, sizes ...int64) {
	t.Helper()
	for i, size := range sizes {
		uploader := uploaderID
		err := r.Create(context.Background(), &MediaAsset{
			ID:             galleryID + "-seed-" + string(rune('a'+i)),
			GalleryID:      galleryID,
			UploaderUserID: &uploader,
			Type:           TypePhoto,
			Filename:       "seed.jpg",
			MimeType:       "image/jpeg",
			ByteSize:       size,
			UploadedAt:     time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seeding repo: %v", err)
		}
	}
}

const mib = 1024 * 1024

// sizedFiles builds placeholder upload files with the given sizes. Only the
// sizes matter to the ledger.
func sizedFiles(sizes ...int64) []*UploadFile {
	files := make([]*UploadFile, len(sizes))
	for i, size := range sizes {
		files[i] = &UploadFile{Name: "photo.jpg", Size: size}
	}
	return files
}

// --- CheckBatch tests ---

func TestCheckBatch_WithinBudget(t *testing.T) {
	repo := newMemoryMediaRepo()
	ledger := NewQuotaLedger(repo)

	errs, err := ledger.CheckBatch(context.Background(), "u1", "g1", sizedFiles(2*mib, 3*mib))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("expected batch within budget to pass, got %v", errs)
	}
}

func TestCheckBatch_FileCountBound(t *testing.T) {
	repo := newMemoryMediaRepo()
	repo.seed(t, "u1", "g1", 2*mib, 2*mib, 2*mib, 2*mib) // 4 files, 8 MiB
	ledger := NewQuotaLedger(repo)

	// 4 existing + 3 incoming = 7 > 5. Must also spell out the remaining
	// allowance (1 file).
	errs, err := ledger.CheckBatch(context.Background(), "u1", "g1", sizedFiles(mib, mib, mib))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsSubstring(errs, "file limit") {
		t.Errorf("expected file-count error, got %v", errs)
	}
	if !containsSubstring(errs, "1 of 5") {
		t.Errorf("expected remaining allowance in message, got %v", errs)
	}
}

func TestCheckBatch_ByteBoundExactEdge(t *testing.T) {
	repo := newMemoryMediaRepo()
	ledger := NewQuotaLedger(repo)
	ctx := context.Background()

	// Exactly 15 MiB with no prior usage is accepted.
	errs, err := ledger.CheckBatch(ctx, "u1", "g1", sizedFiles(5*mib, 5*mib, 5*mib))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("expected exactly 15 MiB to pass, got %v", errs)
	}

	// One byte over is rejected.
	errs, err = ledger.CheckBatch(ctx, "u2", "g1", sizedFiles(5*mib, 5*mib, 5*mib+1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsSubstring(errs, "storage limit") {
		t.Errorf("expected byte-bound error, got %v", errs)
	}
}

func TestCheckBatch_SingleFileOverByteBudget(t *testing.T) {
	repo := newMemoryMediaRepo()
	ledger := NewQuotaLedger(repo)

	errs, err := ledger.CheckBatch(context.Background(), "u1", "g1", sizedFiles(16*mib))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsSubstring(errs, "alone exceeds") {
		t.Errorf("expected single-file rejection, got %v", errs)
	}
}

func TestCheckBatch_ErrorsAccumulate(t *testing.T) {
	repo := newMemoryMediaRepo()
	repo.seed(t, "u1", "g1", 5*mib, 5*mib, 2*mib, 2*mib) // 4 files, 14 MiB
	ledger := NewQuotaLedger(repo)

	// Violates the count bound, the byte bound, and the single-file bound.
	errs, err := ledger.CheckBatch(context.Background(), "u1", "g1", sizedFiles(16*mib, mib))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(errs) < 3 {
		t.Errorf("expected cumulative errors, got %v", errs)
	}
}

func TestCheckBatch_ScopedPerUserAndGallery(t *testing.T) {
	repo := newMemoryMediaRepo()
	repo.seed(t, "u1", "g1", 5*mib, 5*mib, 5*mib) // u1 full in g1
	ledger := NewQuotaLedger(repo)
	ctx := context.Background()

	// Another user in the same gallery starts fresh.
	if errs, _ := ledger.CheckBatch(ctx, "u2", "g1", sizedFiles(10*mib)); len(errs) != 0 {
		t.Errorf("expected other user's budget to be untouched, got %v", errs)
	}
	// The same user in another gallery starts fresh.
	if errs, _ := ledger.CheckBatch(ctx, "u1", "g2", sizedFiles(10*mib)); len(errs) != 0 {
		t.Errorf("expected other gallery's budget to be untouched, got %v", errs)
	}
}

// --- Batch atomicity through the service ---

func TestUploadBatch_QuotaViolationPersistsNothing(t *testing.T) {
	repo := newMemoryMediaRepo()
	repo.seed(t, "u1", "g1", 3*mib, 3*mib, 2*mib, 2*mib) // 4 files, 10 MiB
	svc := newTestMediaService(t, repo)

	// 3 x 2 MiB: count bound fails (4+3=7 > 5) and byte bound fails
	// (10+6=16 > 15). The whole batch must be rejected with zero writes.
	summary, err := svc.UploadBatch(context.Background(), BatchInput{
		GalleryID:  "g1",
		UploaderID: "u1",
		Files:      validFiles(t, 2*mib, 2*mib, 2*mib),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Succeeded != 0 || summary.Failed != 3 {
		t.Errorf("expected full rejection, got %d/%d", summary.Succeeded, summary.Failed)
	}
	if len(summary.QuotaErrors) == 0 {
		t.Error("expected batch-level quota errors")
	}
	for _, result := range summary.Results {
		if result.Outcome != OutcomeQuotaRejected {
			t.Errorf("expected quota_rejected outcome, got %s", result.Outcome)
		}
	}

	count, total, _ := repo.UploadStats(context.Background(), "u1", "g1")
	if count != 4 || total != 10*mib {
		t.Errorf("expected untouched usage (4, %d), got (%d, %d)", 10*mib, count, total)
	}
}

func TestUploadBatch_RejectsOversizedBatch(t *testing.T) {
	repo := newMemoryMediaRepo()
	svc := newTestMediaService(t, repo)

	sizes := make([]int64, MaxBatchFiles+1)
	for i := range sizes {
		sizes[i] = mib
	}

	// The count ceiling applies to admins too; the quota does not.
	_, err := svc.UploadBatch(context.Background(), BatchInput{
		GalleryID: "g1",
		IsAdmin:   true,
		Files:     validFiles(t, sizes...),
	})
	if err == nil {
		t.Fatal("expected an oversized batch to be rejected")
	}

	repo.mu.Lock()
	persisted := len(repo.assets)
	repo.mu.Unlock()
	if persisted != 0 {
		t.Errorf("expected nothing persisted, got %d assets", persisted)
	}
}

// failingCreateRepo refuses every metadata insert while behaving normally
// otherwise.
type failingCreateRepo struct {
	*memoryMediaRepo
}

func (r *failingCreateRepo) Create(ctx context.Context, asset *MediaAsset) error {
	return errors.New("insert failed")
}

func TestUploadBatch_FailedMetadataCommitLeavesNoOrphanFile(t *testing.T) {
	repo := &failingCreateRepo{memoryMediaRepo: newMemoryMediaRepo()}
	mediaDir := t.TempDir()
	svc := NewMediaService(repo, NewFileInspector(t.TempDir()), NewQuotaLedger(repo), mediaDir)

	summary, err := svc.UploadBatch(context.Background(), BatchInput{
		GalleryID:  "g1",
		UploaderID: "u1",
		Files:      validFiles(t, mib),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Succeeded != 0 || len(summary.Results) != 1 {
		t.Fatalf("expected one failed result, got %d/%d", summary.Succeeded, len(summary.Results))
	}
	if summary.Results[0].Outcome != OutcomeStorageFailed {
		t.Errorf("expected %s outcome, got %s", OutcomeStorageFailed, summary.Results[0].Outcome)
	}

	// The file was written before the insert; the failed commit must have
	// removed it again.
	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		t.Fatalf("reading media dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty media dir after failed commit, found %d files", len(entries))
	}
}

func TestUploadBatch_AdminExemptFromQuota(t *testing.T) {
	repo := newMemoryMediaRepo()
	svc := newTestMediaService(t, repo)

	// Way past every quota bound, but admin uploads are unlimited.
	summary, err := svc.UploadBatch(context.Background(), BatchInput{
		GalleryID: "g1",
		IsAdmin:   true,
		Files:     validFiles(t, 10*mib, 10*mib, 10*mib, 10*mib, 10*mib, 10*mib),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Succeeded != 6 {
		t.Errorf("expected all admin uploads to succeed, got %d", summary.Succeeded)
	}
}

func TestUploadBatch_ConcurrentBatchesCannotJointlyOvershoot(t *testing.T) {
	repo := newMemoryMediaRepo()
	svc := newTestMediaService(t, repo)
	ctx := context.Background()

	// Each batch alone fits (8 MiB <= 15 MiB); together they exceed the
	// budget (16 MiB). At most one may commit.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UploadBatch(ctx, BatchInput{
				GalleryID:  "g1",
				UploaderID: "u1",
				Files:      validFiles(t, 8*mib),
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	count, total, _ := repo.UploadStats(ctx, "u1", "g1")
	if total > QuotaMaxBytes {
		t.Errorf("quota overshoot: %d files, %d bytes committed", count, total)
	}
	if count != 1 {
		t.Errorf("expected exactly one batch to commit, got %d", count)
	}
}

// newTestMediaService wires a service with temp dirs for media and
// quarantine storage.
func newTestMediaService(t *testing.T, repo MediaRepository) MediaService {
	t.Helper()
	return NewMediaService(repo, NewFileInspector(t.TempDir()), NewQuotaLedger(repo), t.TempDir())
}

// validFiles builds files that pass inspection, with the ledger seeing the
// given sizes.
func validFiles(t *testing.T, sizes ...int64) []*UploadFile {
	t.Helper()
	content := tinyJPEG(t)
	files := make([]*UploadFile, len(sizes))
	for i, size := range sizes {
		files[i] = &UploadFile{Name: "photo.jpg", Size: size, Content: content}
	}
	return files
}
