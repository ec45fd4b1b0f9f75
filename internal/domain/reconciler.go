package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CounterReconciler maintains the denormalized counters on canonical entities
// and on materialized feed items by applying atomic deltas derived from
// change-stream records. All mutations are atomic increments at the storage
// layer, so concurrent reconciliation of simultaneous events converges
// without lost updates.
type CounterReconciler struct {
	profiles ProfileRepository
	posts    PostRepository
	items    FeedItemRepository
	logger   *slog.Logger
}

// NewCounterReconciler creates a CounterReconciler.
func NewCounterReconciler(
	profiles ProfileRepository,
	posts PostRepository,
	items FeedItemRepository,
	logger *slog.Logger,
) *CounterReconciler {
	return &CounterReconciler{
		profiles: profiles,
		posts:    posts,
		items:    items,
		logger:   logger,
	}
}

// HandleChange processes one change record. Only follow, comment and like
// records carry counters; everything else is ignored without error.
func (r *CounterReconciler) HandleChange(ctx context.Context, record *ChangeRecord) error {
	delta := record.Op.Delta()

	switch record.EntityType {
	case EntityFollow:
		return r.applyFollow(ctx, record, delta)
	case EntityComment:
		return r.applyComment(ctx, record, delta)
	case EntityLike:
		return r.applyLike(ctx, record, delta)
	default:
		return nil
	}
}

// applyFollow adjusts the followee's followersCount and the follower's
// followingCount as two independent atomic updates. A failure on one side
// never prevents attempting the other.
func (r *CounterReconciler) applyFollow(ctx context.Context, record *ChangeRecord, delta int64) error {
	edge := record.Follow
	if edge == nil {
		return fmt.Errorf("%s: %w", record.Key(), ErrMalformedRecord)
	}

	var errs []error
	if err := r.profiles.AdjustFollowersCount(ctx, edge.FolloweeID, delta); err != nil {
		r.logger.Error("followers count update failed",
			"followee_id", edge.FolloweeID,
			"delta", delta,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("followers count for %s: %w", edge.FolloweeID, err))
	}
	if err := r.profiles.AdjustFollowingCount(ctx, edge.FollowerID, delta); err != nil {
		r.logger.Error("following count update failed",
			"follower_id", edge.FollowerID,
			"delta", delta,
			"error", err,
		)
		errs = append(errs, fmt.Errorf("following count for %s: %w", edge.FollowerID, err))
	}
	return errors.Join(errs...)
}

// applyComment adjusts commentsCount on the canonical post, located solely
// via the comment's embedded post snapshot, and on every materialized copy of
// the post. Addressing by the full composite key means a stale ref matches
// nothing instead of materializing an orphaned counter record.
func (r *CounterReconciler) applyComment(ctx context.Context, record *ChangeRecord, delta int64) error {
	comment := record.Comment
	if comment == nil {
		return fmt.Errorf("%s: %w", record.Key(), ErrMalformedRecord)
	}
	if !comment.Post.Valid() {
		return fmt.Errorf("%s: %w", record.Key(), ErrMissingPostRef)
	}

	var errs []error
	if err := r.posts.AdjustPostComments(ctx, comment.Post, delta); err != nil {
		errs = append(errs, fmt.Errorf("post comments count for %s: %w", comment.Post.PostID, err))
	}
	if err := r.items.AdjustFeedItemComments(ctx, comment.Post.PostID, delta); err != nil {
		errs = append(errs, fmt.Errorf("feed item comments count for %s: %w", comment.Post.PostID, err))
	}
	return errors.Join(errs...)
}

// applyLike is applyComment for likesCount.
func (r *CounterReconciler) applyLike(ctx context.Context, record *ChangeRecord, delta int64) error {
	like := record.Like
	if like == nil {
		return fmt.Errorf("%s: %w", record.Key(), ErrMalformedRecord)
	}
	if !like.Post.Valid() {
		return fmt.Errorf("%s: %w", record.Key(), ErrMissingPostRef)
	}

	var errs []error
	if err := r.posts.AdjustPostLikes(ctx, like.Post, delta); err != nil {
		errs = append(errs, fmt.Errorf("post likes count for %s: %w", like.Post.PostID, err))
	}
	if err := r.items.AdjustFeedItemLikes(ctx, like.Post.PostID, delta); err != nil {
		errs = append(errs, fmt.Errorf("feed item likes count for %s: %w", like.Post.PostID, err))
	}
	return errors.Join(errs...)
}
