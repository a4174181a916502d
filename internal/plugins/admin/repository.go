package admin

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lichtbild/galerie/internal/plugins/auth"
)

// AdminRepository provides the cross-table aggregates and listings the
// operator surface needs.
type AdminRepository interface {
	DashboardStats(ctx context.Context) (*DashboardStats, error)
	ListUsers(ctx context.Context) ([]auth.User, error)
}

// adminRepository implements AdminRepository with MariaDB queries.
type adminRepository struct {
	db *sql.DB
}

// NewAdminRepository creates a new repository backed by the given DB pool.
func NewAdminRepository(db *sql.DB) AdminRepository {
	return &adminRepository{db: db}
}

func (r *adminRepository) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	query := `SELECT
	              (SELECT COUNT(*) FROM users),
	              (SELECT COUNT(*) FROM galleries),
	              (SELECT COUNT(*) FROM media),
	              (SELECT COALESCE(SUM(byte_size), 0) FROM media),
	              (SELECT COUNT(*) FROM gallery_payments WHERE payment_status = 'pending')`

	stats := &DashboardStats{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.UserCount, &stats.GalleryCount, &stats.MediaCount,
		&stats.TotalMediaBytes, &stats.PendingPayments,
	)
	if err != nil {
		return nil, fmt.Errorf("querying dashboard stats: %w", err)
	}

	stats.RecentUploads, err = r.recentUploads(ctx, 10)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *adminRepository) recentUploads(ctx context.Context, limit int) ([]RecentUpload, error) {
	query := `SELECT m.id, m.gallery_id, g.name, m.filename, m.byte_size, m.uploaded_at
	          FROM media m
	          JOIN galleries g ON g.id = m.gallery_id
	          ORDER BY m.uploaded_at DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent uploads: %w", err)
	}
	defer rows.Close()

	uploads := []RecentUpload{}
	for rows.Next() {
		var u RecentUpload
		if err := rows.Scan(&u.MediaID, &u.GalleryID, &u.GalleryName, &u.Filename, &u.ByteSize, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("scanning recent upload row: %w", err)
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

func (r *adminRepository) ListUsers(ctx context.Context) ([]auth.User, error) {
	query := `SELECT id, email, role, created_at, last_login_at
	          FROM users ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var out []auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt, &u.LastLoginAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
