package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// Pagination limits shared by both feed surfaces.
const (
	minFeedLimit = 1
	maxFeedLimit = 100
)

// FeedReader serves the two read surfaces: the materialized following feed
// and the pull-path explore feed. The two are mutually exclusive per surface
// and never merged.
type FeedReader struct {
	items  FeedItemRepository
	posts  PostRepository
	logger *slog.Logger
}

// NewFeedReader creates a FeedReader.
func NewFeedReader(items FeedItemRepository, posts PostRepository, logger *slog.Logger) *FeedReader {
	return &FeedReader{items: items, posts: posts, logger: logger}
}

func validateFeedLimit(limit int) error {
	if limit < minFeedLimit || limit > maxFeedLimit {
		return Validationf("limit must be between %d and %d, got %d", minFeedLimit, maxFeedLimit, limit)
	}
	return nil
}

func decodePageCursor(cursor string) (*PageKey, error) {
	if cursor == "" {
		return nil, nil
	}
	key, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// GetFollowingFeed returns one page of the user's materialized feed, newest
// first, skipping permanently-read items. Displayed fields come entirely from
// the materialization-time snapshot; canonical post edits are not reflected.
// An empty page with no cursor means no unread materialized items remain —
// distinguishing that from "follows nobody" is the caller's job.
func (r *FeedReader) GetFollowingFeed(ctx context.Context, userID string, limit int, cursor string) (*FeedPage, error) {
	if err := validateFeedLimit(limit); err != nil {
		return nil, err
	}
	before, err := decodePageCursor(cursor)
	if err != nil {
		return nil, err
	}

	items, err := r.items.ListUnreadFeedItems(ctx, userID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list unread feed items for %s: %w", userID, err)
	}

	page := &FeedPage{Entries: make([]FeedEntry, len(items))}
	for i, item := range items {
		page.Entries[i] = FeedEntry{
			PostID:            item.PostID,
			AuthorID:          item.AuthorID,
			AuthorHandle:      item.AuthorHandle,
			AuthorDisplayName: item.AuthorDisplayName,
			AuthorAvatarURL:   item.AuthorAvatarURL,
			Caption:           item.Caption,
			MediaURLs:         item.MediaURLs,
			CreatedAt:         item.CreatedAt,
			LikesCount:        item.LikesCount,
			CommentsCount:     item.CommentsCount,
			IsLiked:           item.IsLiked,
		}
	}
	if len(items) == limit {
		last := items[len(items)-1]
		page.Cursor = EncodeCursor(PageKey{CreatedAt: last.CreatedAt, PostID: last.PostID})
	}

	r.logger.Debug("following feed page served",
		"user_id", userID,
		"entries", len(page.Entries),
		"next_cursor", page.Cursor,
	)
	return page, nil
}

// GetFeed returns one page of the global explore feed straight from canonical
// posts, newest first. This is the only read path for posts from authors
// above the fan-out threshold, and it needs no materialized items to exist.
func (r *FeedReader) GetFeed(ctx context.Context, limit int, cursor string) (*FeedPage, error) {
	if err := validateFeedLimit(limit); err != nil {
		return nil, err
	}
	before, err := decodePageCursor(cursor)
	if err != nil {
		return nil, err
	}

	entries, err := r.posts.ListGlobalFeed(ctx, limit, before)
	if err != nil {
		return nil, fmt.Errorf("list global feed: %w", err)
	}

	page := &FeedPage{Entries: entries}
	if len(entries) == limit {
		last := entries[len(entries)-1]
		page.Cursor = EncodeCursor(PageKey{CreatedAt: last.CreatedAt, PostID: last.PostID})
	}
	return page, nil
}
