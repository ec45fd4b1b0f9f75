package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// FanoutConfig tunes the fan-out writer.
type FanoutConfig struct {
	// FollowerThreshold is the follower count at or above which an author's
	// posts are never materialized and are served via the pull path only.
	FollowerThreshold int64

	// Retention is how long a materialized feed item lives before
	// storage-level expiry.
	Retention time.Duration

	// RecipientTimeout bounds each per-recipient write so one slow write
	// cannot block unrelated recipients past their own deadlines.
	RecipientTimeout time.Duration

	// Concurrency caps parallel per-recipient writes.
	Concurrency int
}

// FanoutWriter materializes feed items into follower partitions when a post
// is created. It decides per author between fan-out-on-write and the pull
// path based on follower cardinality.
type FanoutWriter struct {
	profiles ProfileRepository
	follows  FollowRepository
	likes    LikeRepository
	items    FeedItemRepository
	cfg      FanoutConfig
	logger   *slog.Logger
}

// NewFanoutWriter creates a FanoutWriter.
func NewFanoutWriter(
	profiles ProfileRepository,
	follows FollowRepository,
	likes LikeRepository,
	items FeedItemRepository,
	cfg FanoutConfig,
	logger *slog.Logger,
) *FanoutWriter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.RecipientTimeout <= 0 {
		cfg.RecipientTimeout = 5 * time.Second
	}
	return &FanoutWriter{
		profiles: profiles,
		follows:  follows,
		likes:    likes,
		items:    items,
		cfg:      cfg,
		logger:   logger,
	}
}

// OnPostCreated materializes one feed item per follower of the post's author,
// unless the author's follower count is at or above the fan-out threshold.
// Creates are conditional on the item's composite key, so redelivery of the
// same event converges to the same end state. A failure for one recipient
// never aborts the rest; if any recipient could not be written the whole
// event is reported as transient so the stream redelivers it.
func (w *FanoutWriter) OnPostCreated(ctx context.Context, post *Post) error {
	author, err := w.profiles.GetProfile(ctx, post.AuthorID)
	if err != nil {
		return fmt.Errorf("load author profile %s: %w", post.AuthorID, err)
	}

	if author.FollowersCount >= w.cfg.FollowerThreshold {
		w.logger.Info("skipping fan-out for high-follower author",
			"author_id", author.ID,
			"followers_count", author.FollowersCount,
			"post_id", post.ID,
		)
		return nil
	}

	followerIDs, err := w.follows.ListFollowerIDs(ctx, post.AuthorID)
	if err != nil {
		return fmt.Errorf("list followers of %s: %w", post.AuthorID, err)
	}
	if len(followerIDs) == 0 {
		return nil
	}

	likerIDs, err := w.likes.ListLikerIDs(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("list likers of post %s: %w", post.ID, err)
	}
	likers := make(map[string]struct{}, len(likerIDs))
	for _, id := range likerIDs {
		likers[id] = struct{}{}
	}

	expiresAt := time.Now().UTC().Add(w.cfg.Retention)

	var created, existing, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Concurrency)
	for _, followerID := range followerIDs {
		g.Go(func() error {
			_, liked := likers[followerID]
			item := NewFeedItem(followerID, post, author, liked, expiresAt)

			writeCtx, cancel := context.WithTimeout(gctx, w.cfg.RecipientTimeout)
			defer cancel()

			ok, err := w.items.CreateFeedItem(writeCtx, item)
			if err != nil {
				failed.Add(1)
				w.logger.Error("feed item write failed",
					"recipient_id", followerID,
					"post_id", post.ID,
					"author_id", post.AuthorID,
					"error", err,
				)
				return nil
			}
			if ok {
				created.Add(1)
			} else {
				existing.Add(1)
			}
			return nil
		})
	}
	// Goroutines never return errors; Wait only surfaces ctx cancellation.
	if err := g.Wait(); err != nil {
		return err
	}

	w.logger.Info("fan-out complete",
		"post_id", post.ID,
		"author_id", post.AuthorID,
		"followers", len(followerIDs),
		"created", created.Load(),
		"existing", existing.Load(),
		"failed", failed.Load(),
	)

	if n := failed.Load(); n > 0 {
		return &TransientStoreError{Err: fmt.Errorf("materialization failed for %d of %d recipients of post %s", n, len(followerIDs), post.ID)}
	}
	return nil
}

// HandleChange routes post and follow records to the writer. All other
// record types are ignored without error.
func (w *FanoutWriter) HandleChange(ctx context.Context, record *ChangeRecord) error {
	switch record.EntityType {
	case EntityPost:
		if record.Post == nil {
			return fmt.Errorf("%s: %w", record.Key(), ErrMalformedRecord)
		}
		if record.Op != OpInsert {
			// Post deletion does not reach back into materialized feeds.
			return nil
		}
		return w.OnPostCreated(ctx, record.Post)
	case EntityFollow:
		if record.Follow == nil {
			return fmt.Errorf("%s: %w", record.Key(), ErrMalformedRecord)
		}
		return w.OnFollowChanged(ctx, record.Follow, record.Op.Delta())
	default:
		return nil
	}
}

// OnFollowChanged reacts to a follow edge insert or removal. Materialized
// feed items are point-in-time snapshots: an unfollow does not retroactively
// delete items already fanned out, and a new follow does not backfill the
// followee's past posts. Counter maintenance belongs to the reconciler.
func (w *FanoutWriter) OnFollowChanged(ctx context.Context, edge *FollowEdge, delta int64) error {
	w.logger.Debug("follow edge changed",
		"follower_id", edge.FollowerID,
		"followee_id", edge.FolloweeID,
		"delta", delta,
	)
	return nil
}
