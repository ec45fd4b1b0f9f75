package domain

import (
	"context"
	"log/slog"
	"time"
)

// RunFeedItemCleanup runs a background loop that removes feed items whose
// expiry has passed. It runs immediately on start and then repeats at the
// given interval, blocking until ctx is cancelled. Expiry only reclaims
// storage; read markers and canonical posts are untouched, and the pull path
// keeps working without any materialized items.
func RunFeedItemCleanup(ctx context.Context, items FeedItemRepository, interval time.Duration, logger *slog.Logger) {
	sweep := func() {
		deleted, err := items.DeleteExpiredFeedItems(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("feed item cleanup failed", "error", err)
		} else if deleted > 0 {
			logger.Info("feed item cleanup complete", "deleted", deleted)
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
