package activity

import (
	"context"
	"log/slog"
	"time"
)

// perPage is the number of entries shown per page in the admin feed.
const perPage = 50

// ActivityService records and reads the activity log.
type ActivityService interface {
	// Record persists an event. Fire-and-forget: failures are logged and
	// swallowed, never surfaced to the triggering operation.
	Record(ctx context.Context, action, userID, ip, userAgent, details string)

	// Feed returns a page of recent entries plus the total count.
	Feed(ctx context.Context, page int) ([]Entry, int, error)

	// Prune deletes entries older than the retention window.
	Prune(ctx context.Context) error
}

type activityService struct {
	repo ActivityRepository
}

// NewActivityService creates an activity service.
func NewActivityService(repo ActivityRepository) ActivityService {
	return &activityService{repo: repo}
}

func (s *activityService) Record(ctx context.Context, action, userID, ip, userAgent, details string) {
	if action == "" {
		return
	}

	entry := &Entry{
		Action:    action,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		slog.Warn("recording activity entry failed",
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

func (s *activityService) Feed(ctx context.Context, page int) ([]Entry, int, error) {
	if page < 1 {
		page = 1
	}
	return s.repo.List(ctx, (page-1)*perPage, perPage)
}

func (s *activityService) Prune(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	pruned, err := s.repo.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if pruned > 0 {
		slog.Info("activity log pruned", slog.Int64("entries", pruned))
	}
	return nil
}
