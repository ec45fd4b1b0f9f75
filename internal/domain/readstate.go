package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// maxMarkBatch bounds one markAsRead call.
const maxMarkBatch = 50

// ReadMarker records which feed items a user has consumed. A read marker is
// permanent: once set for a (user, post) pair, that post is never shown to
// the user again, even if the feed item expires and is later re-materialized.
type ReadMarker struct {
	items  FeedItemRepository
	logger *slog.Logger
}

// NewReadMarker creates a ReadMarker.
func NewReadMarker(items FeedItemRepository, logger *slog.Logger) *ReadMarker {
	return &ReadMarker{items: items, logger: logger}
}

// MarkAsRead sets the read marker for each post the user currently has a
// feed item for. Ids with no matching item are silently skipped, and
// re-marking an already-read post neither errors nor counts. Returns the
// number of markers actually transitioned.
func (m *ReadMarker) MarkAsRead(ctx context.Context, userID string, postIDs []string) (int64, error) {
	if len(postIDs) > maxMarkBatch {
		return 0, Validationf("postIds must contain at most %d ids, got %d", maxMarkBatch, len(postIDs))
	}
	if len(postIDs) == 0 {
		return 0, nil
	}

	updated, err := m.items.MarkFeedItemsRead(ctx, userID, postIDs, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark feed items read for %s: %w", userID, err)
	}

	m.logger.Info("feed items marked read",
		"user_id", userID,
		"requested", len(postIDs),
		"updated", updated,
	)
	return updated, nil
}
