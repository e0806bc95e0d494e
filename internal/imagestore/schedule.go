package imagestore

import (
	"context"
	"log/slog"
	"time"
)

// NextRun returns the first moment at hour:00 local to now's location that is strictly after now
func NextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunDaily calls Cleanup every day at hour until ctx is canceled
func (s *Store) RunDaily(ctx context.Context, hour int, retention time.Duration) error {
	for {
		next := NextRun(time.Now(), hour)
		s.logger.Info("Next image cleanup scheduled",
			slog.Time("at", next),
		)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.Cleanup(ctx, retention); err != nil {
			s.logger.Error("Scheduled image cleanup failed",
				slog.Any("error", err),
			)
		}
	}
}
