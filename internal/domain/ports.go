package domain

import (
	"context"
	"time"
)

// PageKey is the sort position of one feed row: the composite (createdAt,
// postId) that gives reverse-chronological natural ordering. Pagination
// resumes strictly after a PageKey.
type PageKey struct {
	CreatedAt time.Time
	PostID    string
}

// ProfileRepository defines the profile reads and counter mutations the
// engine performs. Profiles themselves are created by an external
// collaborator.
type ProfileRepository interface {
	// GetProfile retrieves a profile by id.
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// AdjustFollowersCount atomically applies delta to the profile's
	// followersCount, flooring at zero.
	AdjustFollowersCount(ctx context.Context, id string, delta int64) error

	// AdjustFollowingCount atomically applies delta to the profile's
	// followingCount, flooring at zero.
	AdjustFollowingCount(ctx context.Context, id string, delta int64) error
}

// PostRepository defines canonical-post reads and counter mutations.
type PostRepository interface {
	// AdjustPostLikes atomically applies delta to likesCount on the post
	// located by ref. A ref that matches no post is a no-op, never an insert.
	AdjustPostLikes(ctx context.Context, ref PostRef, delta int64) error

	// AdjustPostComments is AdjustPostLikes for commentsCount.
	AdjustPostComments(ctx context.Context, ref PostRef, delta int64) error

	// ListGlobalFeed retrieves canonical posts joined with their author
	// profiles, ordered by createdAt descending, starting strictly after
	// before (nil means from the top).
	ListGlobalFeed(ctx context.Context, limit int, before *PageKey) ([]FeedEntry, error)
}

// FollowRepository defines follow-edge reads used during fan-out.
type FollowRepository interface {
	// ListFollowerIDs returns the ids of all users following followeeID.
	ListFollowerIDs(ctx context.Context, followeeID string) ([]string, error)
}

// LikeRepository defines like reads used to compute viewer context at
// materialization time.
type LikeRepository interface {
	// ListLikerIDs returns the ids of all users who have liked postID.
	ListLikerIDs(ctx context.Context, postID string) ([]string, error)
}

// FeedItemRepository defines persistence for materialized feed items and the
// permanent read markers attached to them.
type FeedItemRepository interface {
	// CreateFeedItem conditionally creates the item under its composite key.
	// Returns false when an item with the same key already exists; redelivered
	// events converge to the same record.
	CreateFeedItem(ctx context.Context, item *FeedItem) (bool, error)

	// ListUnreadFeedItems retrieves the recipient's unread items ordered by
	// createdAt descending, starting strictly after before (nil means from
	// the top). The read marker, not the item's isRead copy, is authoritative
	// for the filter.
	ListUnreadFeedItems(ctx context.Context, recipientID string, limit int, before *PageKey) ([]FeedItem, error)

	// MarkFeedItemsRead sets the permanent read marker for each post the user
	// has a feed item for, skipping ids with no matching item. Returns the
	// number of markers actually transitioned; re-marking is not counted and
	// not an error.
	MarkFeedItemsRead(ctx context.Context, userID string, postIDs []string, at time.Time) (int64, error)

	// AdjustFeedItemLikes atomically applies delta to likesCount on every
	// materialized copy of postID, flooring at zero.
	AdjustFeedItemLikes(ctx context.Context, postID string, delta int64) error

	// AdjustFeedItemComments is AdjustFeedItemLikes for commentsCount.
	AdjustFeedItemComments(ctx context.Context, postID string, delta int64) error

	// DeleteExpiredFeedItems removes items whose expiry has passed. Read
	// markers are never deleted. Returns the number of rows removed.
	DeleteExpiredFeedItems(ctx context.Context, now time.Time) (int64, error)
}

// ChangeHandler consumes decoded change records from the stream. Handlers
// are responsible for converging under at-least-once redelivery.
type ChangeHandler interface {
	HandleChange(ctx context.Context, record *ChangeRecord) error
}

// CheckpointRepository defines persistence for stream-consumer checkpoints.
type CheckpointRepository interface {
	// GetCheckpoint retrieves the last-acknowledged sequence for the given
	// consumer. Returns 0 if no checkpoint has been saved.
	GetCheckpoint(ctx context.Context, consumer string) (int64, error)

	// UpdateCheckpoint persists the consumer's sequence so it can resume on
	// restart.
	UpdateCheckpoint(ctx context.Context, consumer string, seq int64) error
}

// ChangelogRepository defines the durable event log: every store mutation
// appends one record, and consumers tail it by sequence.
type ChangelogRepository interface {
	// AppendChange appends a record and assigns its sequence.
	AppendChange(ctx context.Context, record *ChangeRecord) (int64, error)

	// ListChangesAfter retrieves up to limit records with seq > after, in
	// sequence order.
	ListChangesAfter(ctx context.Context, after int64, limit int) ([]ChangeRecord, error)
}
