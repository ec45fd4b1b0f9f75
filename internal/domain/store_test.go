package domain

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory implementation of the store ports with the same
// atomicity guarantees the real store provides: conditional creates keyed by
// the composite key, and floor-at-zero counter adjustments under a lock.
type memStore struct {
	mu sync.Mutex

	profiles map[string]*Profile
	posts    map[memPostKey]*Post
	follows  map[string][]string // followeeID -> follower ids
	likers   map[string][]string // postID -> user ids
	items    map[string]*FeedItem
	markers  map[string]time.Time

	// failCreateFor simulates a write failure for specific recipients.
	failCreateFor map[string]bool

	// failFollowersFor simulates a counter-update failure for a profile id.
	failFollowersFor map[string]bool

	createCalls int
}

func newMemStore() *memStore {
	return &memStore{
		profiles:         make(map[string]*Profile),
		posts:            make(map[memPostKey]*Post),
		follows:          make(map[string][]string),
		likers:           make(map[string][]string),
		items:            make(map[string]*FeedItem),
		markers:          make(map[string]time.Time),
		failCreateFor:    make(map[string]bool),
		failFollowersFor: make(map[string]bool),
	}
}

func itemKey(recipientID string, createdAt time.Time, postID string) string {
	return recipientID + "|" + createdAt.UTC().Format(time.RFC3339Nano) + "|" + postID
}

func markerKey(userID, postID string) string {
	return userID + "|" + postID
}

func (s *memStore) GetProfile(_ context.Context, id string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, errors.New("profile not found: " + id)
	}
	clone := *p
	return &clone, nil
}

func (s *memStore) AdjustFollowersCount(_ context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFollowersFor[id] {
		return errors.New("followers count update failed")
	}
	if p, ok := s.profiles[id]; ok {
		p.FollowersCount = max(0, p.FollowersCount+delta)
	}
	return nil
}

func (s *memStore) AdjustFollowingCount(_ context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[id]; ok {
		p.FollowingCount = max(0, p.FollowingCount+delta)
	}
	return nil
}

func (s *memStore) AdjustPostLikes(_ context.Context, ref PostRef, delta int64) error {
	return s.adjustPost(ref, delta, func(p *Post, d int64) { p.LikesCount = max(0, p.LikesCount+d) })
}

func (s *memStore) AdjustPostComments(_ context.Context, ref PostRef, delta int64) error {
	return s.adjustPost(ref, delta, func(p *Post, d int64) { p.CommentsCount = max(0, p.CommentsCount+d) })
}

// memPostKey mirrors the real store's composite addressing: a stale or
// incomplete ref matches nothing.
type memPostKey struct {
	OwnerID   string
	CreatedAt int64
	PostID    string
}

func (s *memStore) postKey(ref PostRef) memPostKey {
	return memPostKey{OwnerID: ref.OwnerID, CreatedAt: ref.CreatedAt.UnixMilli(), PostID: ref.PostID}
}

func (s *memStore) addPost(p *Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[s.postKey(PostRef{PostID: p.ID, OwnerID: p.AuthorID, CreatedAt: p.CreatedAt})] = p
}

func (s *memStore) adjustPost(ref PostRef, delta int64, apply func(*Post, int64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.posts[s.postKey(ref)]; ok {
		apply(p, delta)
	}
	return nil
}

func (s *memStore) ListGlobalFeed(_ context.Context, limit int, before *PageKey) ([]FeedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []FeedEntry
	for _, p := range s.posts {
		entries = append(entries, FeedEntry{
			PostID:        p.ID,
			AuthorID:      p.AuthorID,
			Caption:       p.Caption,
			CreatedAt:     p.CreatedAt,
			LikesCount:    p.LikesCount,
			CommentsCount: p.CommentsCount,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].PostID > entries[j].PostID
	})
	entries = filterBefore(entries, before)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func filterBefore(entries []FeedEntry, before *PageKey) []FeedEntry {
	if before == nil {
		return entries
	}
	var out []FeedEntry
	for _, e := range entries {
		if e.CreatedAt.Before(before.CreatedAt) ||
			(e.CreatedAt.Equal(before.CreatedAt) && e.PostID < before.PostID) {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) ListFollowerIDs(_ context.Context, followeeID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.follows[followeeID]...), nil
}

func (s *memStore) ListLikerIDs(_ context.Context, postID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.likers[postID]...), nil
}

func (s *memStore) CreateFeedItem(_ context.Context, item *FeedItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.failCreateFor[item.RecipientID] {
		return false, errors.New("write failed for " + item.RecipientID)
	}
	key := itemKey(item.RecipientID, item.CreatedAt, item.PostID)
	if _, exists := s.items[key]; exists {
		return false, nil
	}
	clone := *item
	if _, read := s.markers[markerKey(item.RecipientID, item.PostID)]; read {
		clone.IsRead = true
	}
	s.items[key] = &clone
	return true, nil
}

func (s *memStore) ListUnreadFeedItems(_ context.Context, recipientID string, limit int, before *PageKey) ([]FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []FeedItem
	for _, item := range s.items {
		if item.RecipientID != recipientID {
			continue
		}
		if _, read := s.markers[markerKey(recipientID, item.PostID)]; read {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].PostID > items[j].PostID
	})
	if before != nil {
		var out []FeedItem
		for _, item := range items {
			if item.CreatedAt.Before(before.CreatedAt) ||
				(item.CreatedAt.Equal(before.CreatedAt) && item.PostID < before.PostID) {
				out = append(out, item)
			}
		}
		items = out
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *memStore) MarkFeedItemsRead(_ context.Context, userID string, postIDs []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	for _, postID := range postIDs {
		exists := false
		for _, item := range s.items {
			if item.RecipientID == userID && item.PostID == postID {
				exists = true
				break
			}
		}
		if !exists {
			continue
		}
		key := markerKey(userID, postID)
		if _, read := s.markers[key]; read {
			continue
		}
		s.markers[key] = at
		updated++
	}
	return updated, nil
}

func (s *memStore) AdjustFeedItemLikes(_ context.Context, postID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.PostID == postID {
			item.LikesCount = max(0, item.LikesCount+delta)
		}
	}
	return nil
}

func (s *memStore) AdjustFeedItemComments(_ context.Context, postID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.PostID == postID {
			item.CommentsCount = max(0, item.CommentsCount+delta)
		}
	}
	return nil
}

func (s *memStore) DeleteExpiredFeedItems(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, item := range s.items {
		if !item.ExpiresAt.After(now) {
			delete(s.items, key)
			deleted++
		}
	}
	return deleted, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
