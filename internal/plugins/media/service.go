package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/lichtbild/galerie/internal/apperror"
)

// BatchInput is one upload request: a gallery, the acting uploader, and the
// fully-read files. Admin uploads are quota-exempt and stored without an
// uploader reference.
type BatchInput struct {
	GalleryID  string
	UploaderID string
	IsAdmin    bool
	Files      []*UploadFile
}

// MediaService handles business logic for media operations.
type MediaService interface {
	// UploadBatch inspects, quota-checks, stores, and records a batch.
	// Quota violations reject the whole batch with nothing persisted;
	// validation failures are per-file and quarantine the offender while
	// the rest of the batch proceeds.
	UploadBatch(ctx context.Context, input BatchInput) (*BatchSummary, error)

	GetByID(ctx context.Context, id string) (*MediaAsset, error)
	ListByGallery(ctx context.Context, galleryID string) ([]MediaAsset, error)
	Delete(ctx context.Context, id string) error
	FilePath(asset *MediaAsset) string
}

// mediaService implements MediaService.
type mediaService struct {
	repo      MediaRepository
	inspector *FileInspector
	quota     *QuotaLedger
	mediaPath string
}

// NewMediaService creates a new media service.
func NewMediaService(repo MediaRepository, inspector *FileInspector, quota *QuotaLedger, mediaPath string) MediaService {
	return &mediaService{
		repo:      repo,
		inspector: inspector,
		quota:     quota,
		mediaPath: mediaPath,
	}
}

// UploadBatch runs the full admission pipeline. For non-admins the quota
// check and the subsequent writes hold the (uploader, gallery) lock, so two
// concurrent batches cannot both pass against the same stale snapshot.
func (s *mediaService) UploadBatch(ctx context.Context, input BatchInput) (*BatchSummary, error) {
	if len(input.Files) == 0 {
		return nil, apperror.NewValidation("no files provided")
	}
	if len(input.Files) > MaxBatchFiles {
		return nil, apperror.NewValidation(fmt.Sprintf("too many files in one request (limit %d)", MaxBatchFiles))
	}

	if !input.IsAdmin {
		release := s.quota.Acquire(input.UploaderID, input.GalleryID)
		defer release()

		quotaErrs, err := s.quota.CheckBatch(ctx, input.UploaderID, input.GalleryID, input.Files)
		if err != nil {
			return nil, apperror.NewInternal(err)
		}
		if len(quotaErrs) > 0 {
			// Quota failures block the batch atomically: every file is
			// rejected and nothing touches disk or database.
			summary := &BatchSummary{QuotaErrors: quotaErrs, Failed: len(input.Files)}
			for _, f := range input.Files {
				summary.Results = append(summary.Results, UploadResult{
					Name:    f.Name,
					Outcome: OutcomeQuotaRejected,
					Errors:  quotaErrs,
				})
			}
			return summary, nil
		}
	}

	summary := &BatchSummary{}
	for _, f := range input.Files {
		result := s.processFile(ctx, input, f)
		summary.Results = append(summary.Results, result)
		if result.Outcome == OutcomeSuccess {
			summary.Succeeded++
			summary.BytesStored += result.ByteSize
		} else {
			summary.Failed++
		}
	}

	slog.Info("upload batch processed",
		slog.String("gallery_id", input.GalleryID),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int64("bytes_stored", summary.BytesStored),
	)
	return summary, nil
}

// processFile admits or rejects a single file of a batch.
func (s *mediaService) processFile(ctx context.Context, input BatchInput, f *UploadFile) UploadResult {
	if reasons := s.inspector.Inspect(f); len(reasons) > 0 {
		s.inspector.Quarantine(f, reasons)
		return UploadResult{Name: f.Name, Outcome: OutcomeValidationFailed, Errors: reasons}
	}

	storedName, err := GenerateStoredFilename(f.Name)
	if err != nil {
		return UploadResult{Name: f.Name, Outcome: OutcomeStorageFailed, Errors: []string{"internal error"}}
	}

	if err := os.MkdirAll(s.mediaPath, 0o755); err != nil {
		slog.Error("creating media directory", slog.Any("error", err))
		return UploadResult{Name: f.Name, Outcome: OutcomeStorageFailed, Errors: []string{"storing file failed"}}
	}

	fullPath := filepath.Join(s.mediaPath, storedName)
	if err := os.WriteFile(fullPath, f.Content, 0o644); err != nil {
		slog.Error("writing media file", slog.Any("error", err))
		return UploadResult{Name: f.Name, Outcome: OutcomeStorageFailed, Errors: []string{"storing file failed"}}
	}

	mime := s.inspector.SniffedMime(f)
	asset := &MediaAsset{
		ID:         uuid.NewString(),
		GalleryID:  input.GalleryID,
		Type:       mediaTypeForMime(mime),
		Filename:   storedName,
		MimeType:   mime,
		ByteSize:   f.Size,
		UploadedAt: time.Now().UTC(),
	}
	if !input.IsAdmin {
		asset.UploaderUserID = &input.UploaderID
	}

	if err := s.repo.Create(ctx, asset); err != nil {
		// No orphan survives a failed metadata commit.
		os.Remove(fullPath)
		slog.Error("saving media record",
			slog.String("gallery_id", input.GalleryID),
			slog.Any("error", err),
		)
		return UploadResult{Name: f.Name, Outcome: OutcomeStorageFailed, Errors: []string{"storing file failed"}}
	}

	return UploadResult{Name: f.Name, Outcome: OutcomeSuccess, AssetID: asset.ID, ByteSize: asset.ByteSize}
}

// GetByID retrieves a media asset by ID.
func (s *mediaService) GetByID(ctx context.Context, id string) (*MediaAsset, error) {
	return s.repo.FindByID(ctx, id)
}

// ListByGallery returns a gallery's media, newest first.
func (s *mediaService) ListByGallery(ctx context.Context, galleryID string) ([]MediaAsset, error) {
	return s.repo.ListByGallery(ctx, galleryID)
}

// Delete removes a media asset from database and disk. Database first: a
// dangling row is worse than a dangling file.
func (s *mediaService) Delete(ctx context.Context, id string) error {
	asset, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := os.Remove(s.FilePath(asset)); err != nil && !os.IsNotExist(err) {
		slog.Warn("removing media file",
			slog.String("id", id),
			slog.Any("error", err),
		)
	}

	slog.Info("media deleted", slog.String("id", id))
	return nil
}

// FilePath returns the absolute path to an asset on disk.
func (s *mediaService) FilePath(asset *MediaAsset) string {
	return filepath.Join(s.mediaPath, asset.Filename)
}
