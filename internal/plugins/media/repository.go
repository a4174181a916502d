package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lichtbild/galerie/internal/apperror"
)

// MediaRepository defines the data access contract for media assets. All
// SQL lives in the concrete implementation -- no SQL leaks out.
type MediaRepository interface {
	Create(ctx context.Context, asset *MediaAsset) error
	FindByID(ctx context.Context, id string) (*MediaAsset, error)
	Delete(ctx context.Context, id string) error
	ListByGallery(ctx context.Context, galleryID string) ([]MediaAsset, error)

	// UploadStats returns the current (file count, total bytes) for an
	// uploader in a gallery -- the quota ledger's usage snapshot.
	UploadStats(ctx context.Context, uploaderID, galleryID string) (int, int64, error)
}

// mediaRepository implements MediaRepository with MariaDB queries.
type mediaRepository struct {
	db *sql.DB
}

// NewMediaRepository creates a new repository backed by the given DB pool.
func NewMediaRepository(db *sql.DB) MediaRepository {
	return &mediaRepository{db: db}
}

func (r *mediaRepository) Create(ctx context.Context, asset *MediaAsset) error {
	query := `INSERT INTO media (id, gallery_id, uploader_user_id, type, filename, mime_type, byte_size, uploaded_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		asset.ID, asset.GalleryID, asset.UploaderUserID, asset.Type,
		asset.Filename, asset.MimeType, asset.ByteSize, asset.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting media asset: %w", err)
	}
	return nil
}

func (r *mediaRepository) FindByID(ctx context.Context, id string) (*MediaAsset, error) {
	query := `SELECT id, gallery_id, uploader_user_id, type, filename, mime_type, byte_size, uploaded_at
	          FROM media WHERE id = ?`

	a := &MediaAsset{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.GalleryID, &a.UploaderUserID, &a.Type,
		&a.Filename, &a.MimeType, &a.ByteSize, &a.UploadedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("media not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying media asset: %w", err)
	}
	return a, nil
}

func (r *mediaRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting media asset: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperror.NewNotFound("media not found")
	}
	return nil
}

func (r *mediaRepository) ListByGallery(ctx context.Context, galleryID string) ([]MediaAsset, error) {
	query := `SELECT id, gallery_id, uploader_user_id, type, filename, mime_type, byte_size, uploaded_at
	          FROM media WHERE gallery_id = ? ORDER BY uploaded_at DESC`

	rows, err := r.db.QueryContext(ctx, query, galleryID)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	defer rows.Close()

	var out []MediaAsset
	for rows.Next() {
		var a MediaAsset
		if err := rows.Scan(
			&a.ID, &a.GalleryID, &a.UploaderUserID, &a.Type,
			&a.Filename, &a.MimeType, &a.ByteSize, &a.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning media row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *mediaRepository) UploadStats(ctx context.Context, uploaderID, galleryID string) (int, int64, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(byte_size), 0)
	          FROM media WHERE uploader_user_id = ? AND gallery_id = ?`

	var count int
	var totalBytes int64
	if err := r.db.QueryRowContext(ctx, query, uploaderID, galleryID).Scan(&count, &totalBytes); err != nil {
		return 0, 0, fmt.Errorf("querying upload stats: %w", err)
	}
	return count, totalBytes, nil
}
