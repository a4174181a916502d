package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ActivityRepository defines the data access contract for the activity log.
type ActivityRepository interface {
	Insert(ctx context.Context, entry *Entry) error
	List(ctx context.Context, offset, limit int) ([]Entry, int, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// activityRepository implements ActivityRepository with MariaDB queries.
type activityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new repository backed by the given DB pool.
func NewActivityRepository(db *sql.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Insert(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO activity_log (action, user_id, ip_address, user_agent, details, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		entry.Action, nullIfEmpty(entry.UserID), entry.IPAddress,
		entry.UserAgent, entry.Details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting activity entry: %w", err)
	}
	return nil
}

func (r *activityRepository) List(ctx context.Context, offset, limit int) ([]Entry, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting activity entries: %w", err)
	}

	query := `SELECT id, action, COALESCE(user_id, ''), ip_address, user_agent, details, created_at
	          FROM activity_log ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing activity entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Action, &e.UserID, &e.IPAddress, &e.UserAgent, &e.Details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning activity row: %w", err)
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *activityRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM activity_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning activity log: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// nullIfEmpty maps "" to NULL for the nullable user reference.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
