package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lichtbild/galerie/internal/apperror"
)

// GalleryRepository defines the data access contract for galleries and
// assignments. All SQL lives in the concrete implementation -- no SQL
// leaks out.
type GalleryRepository interface {
	// Gallery CRUD
	Create(ctx context.Context, g *Gallery) error
	FindByID(ctx context.Context, id string) (*Gallery, error)
	Update(ctx context.Context, g *Gallery) error
	Delete(ctx context.Context, id string) error
	ListAll(ctx context.Context) ([]GalleryStats, error)

	// ListAccessible returns the galleries a client can reach without an
	// access code: standing assignments plus legacy email matches.
	ListAccessible(ctx context.Context, userID, email string) ([]GalleryStats, error)

	// Assignments
	AddAssignment(ctx context.Context, userID, galleryID string) error
	RemoveAssignment(ctx context.Context, userID, galleryID string) error
	HasAssignment(ctx context.Context, userID, galleryID string) (bool, error)
	ListAssignmentsForUser(ctx context.Context, userID string) ([]Assignment, error)
	ReplaceAssignmentsForUser(ctx context.Context, userID string, galleryIDs []string) error
}

// galleryRepository implements GalleryRepository with MariaDB queries.
type galleryRepository struct {
	db *sql.DB
}

// NewGalleryRepository creates a new repository backed by the given DB pool.
func NewGalleryRepository(db *sql.DB) GalleryRepository {
	return &galleryRepository{db: db}
}

// --- Gallery CRUD ---

func (r *galleryRepository) Create(ctx context.Context, g *Gallery) error {
	query := `INSERT INTO galleries (id, name, client_email, access_code, is_public, has_paywall, price_amount, price_currency, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		g.ID, g.Name, g.ClientEmail, g.AccessCode, g.IsPublic,
		g.HasPaywall, g.PriceAmount, g.PriceCurrency,
		g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting gallery: %w", err)
	}
	return nil
}

func (r *galleryRepository) FindByID(ctx context.Context, id string) (*Gallery, error) {
	query := `SELECT id, name, client_email, access_code, is_public, has_paywall, price_amount, price_currency, created_at, updated_at
	          FROM galleries WHERE id = ?`

	g := &Gallery{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.ClientEmail, &g.AccessCode, &g.IsPublic,
		&g.HasPaywall, &g.PriceAmount, &g.PriceCurrency,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("gallery not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying gallery: %w", err)
	}
	return g, nil
}

func (r *galleryRepository) Update(ctx context.Context, g *Gallery) error {
	query := `UPDATE galleries
	          SET name = ?, client_email = ?, access_code = ?, is_public = ?, has_paywall = ?, price_amount = ?, price_currency = ?, updated_at = ?
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		g.Name, g.ClientEmail, g.AccessCode, g.IsPublic,
		g.HasPaywall, g.PriceAmount, g.PriceCurrency, g.UpdatedAt,
		g.ID,
	)
	if err != nil {
		return fmt.Errorf("updating gallery: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperror.NewNotFound("gallery not found")
	}
	return nil
}

func (r *galleryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM galleries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting gallery: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperror.NewNotFound("gallery not found")
	}
	return nil
}

// ListAll returns every gallery with aggregate media figures, newest first.
func (r *galleryRepository) ListAll(ctx context.Context) ([]GalleryStats, error) {
	query := `SELECT g.id, g.name, g.client_email, g.access_code, g.is_public, g.has_paywall, g.price_amount, g.price_currency, g.created_at, g.updated_at,
	                 COUNT(m.id), COALESCE(SUM(m.byte_size), 0)
	          FROM galleries g
	          LEFT JOIN media m ON m.gallery_id = g.id
	          GROUP BY g.id
	          ORDER BY g.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing galleries: %w", err)
	}
	defer rows.Close()

	return scanGalleryStats(rows)
}

// ListAccessible returns galleries the user reaches via assignment or the
// legacy client_email match, newest first.
func (r *galleryRepository) ListAccessible(ctx context.Context, userID, email string) ([]GalleryStats, error) {
	query := `SELECT g.id, g.name, g.client_email, g.access_code, g.is_public, g.has_paywall, g.price_amount, g.price_currency, g.created_at, g.updated_at,
	                 COUNT(m.id), COALESCE(SUM(m.byte_size), 0)
	          FROM galleries g
	          LEFT JOIN media m ON m.gallery_id = g.id
	          WHERE g.id IN (SELECT gallery_id FROM user_galleries WHERE user_id = ?)
	             OR (g.client_email != '' AND g.client_email = ?)
	          GROUP BY g.id
	          ORDER BY g.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, email)
	if err != nil {
		return nil, fmt.Errorf("listing accessible galleries: %w", err)
	}
	defer rows.Close()

	return scanGalleryStats(rows)
}

func scanGalleryStats(rows *sql.Rows) ([]GalleryStats, error) {
	var out []GalleryStats
	for rows.Next() {
		var gs GalleryStats
		if err := rows.Scan(
			&gs.ID, &gs.Name, &gs.ClientEmail, &gs.AccessCode, &gs.IsPublic,
			&gs.HasPaywall, &gs.PriceAmount, &gs.PriceCurrency,
			&gs.CreatedAt, &gs.UpdatedAt,
			&gs.MediaCount, &gs.TotalBytes,
		); err != nil {
			return nil, fmt.Errorf("scanning gallery row: %w", err)
		}
		out = append(out, gs)
	}
	return out, rows.Err()
}

// --- Assignments ---

// AddAssignment grants standing access. Idempotent: re-granting an existing
// pair is a no-op.
func (r *galleryRepository) AddAssignment(ctx context.Context, userID, galleryID string) error {
	query := `INSERT INTO user_galleries (user_id, gallery_id, created_at)
	          VALUES (?, ?, NOW())
	          ON DUPLICATE KEY UPDATE user_id = user_id`

	if _, err := r.db.ExecContext(ctx, query, userID, galleryID); err != nil {
		return fmt.Errorf("inserting assignment: %w", err)
	}
	return nil
}

func (r *galleryRepository) RemoveAssignment(ctx context.Context, userID, galleryID string) error {
	query := `DELETE FROM user_galleries WHERE user_id = ? AND gallery_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID, galleryID); err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	return nil
}

func (r *galleryRepository) HasAssignment(ctx context.Context, userID, galleryID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM user_galleries WHERE user_id = ? AND gallery_id = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, galleryID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking assignment: %w", err)
	}
	return exists, nil
}

func (r *galleryRepository) ListAssignmentsForUser(ctx context.Context, userID string) ([]Assignment, error) {
	query := `SELECT user_id, gallery_id, created_at FROM user_galleries WHERE user_id = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.UserID, &a.GalleryID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning assignment row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAssignmentsForUser swaps a user's full assignment set in one
// transaction, used by the admin client-editing form.
func (r *galleryRepository) ReplaceAssignmentsForUser(ctx context.Context, userID string, galleryIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_galleries WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing assignments: %w", err)
	}

	for _, galleryID := range galleryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_galleries (user_id, gallery_id, created_at) VALUES (?, ?, NOW())`,
			userID, galleryID,
		); err != nil {
			return fmt.Errorf("inserting assignment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing assignments: %w", err)
	}
	return nil
}
