package domain

import "time"

// feedItemSchemaVersion tags materialized feed items so the record layout can
// evolve additively without breaking old rows.
const feedItemSchemaVersion = 1

// Profile represents a user profile. The engine never creates profiles; it
// reads them for fan-out snapshots and mutates only the denormalized counters.
type Profile struct {
	ID          string
	Handle      string
	DisplayName string
	AvatarURL   string

	// Counters maintained exclusively by the CounterReconciler.
	FollowersCount int64
	FollowingCount int64
	PostsCount     int64
}

// Post is a canonical post record. Created by the external write path; the
// engine mutates only LikesCount and CommentsCount.
type Post struct {
	ID        string
	AuthorID  string
	Caption   string
	MediaURLs []string
	CreatedAt time.Time

	LikesCount    int64
	CommentsCount int64
}

// FollowEdge is a follower -> followee relationship. Its insert/remove is the
// sole trigger for follower/following counter updates.
type FollowEdge struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}

// PostRef locates a canonical post by its full composite key. Comments and
// likes embed one at creation time so counter reconciliation never needs a
// secondary lookup and never targets a post by id alone.
type PostRef struct {
	PostID    string
	OwnerID   string
	CreatedAt time.Time
}

// Valid reports whether the ref carries the complete post location.
func (r PostRef) Valid() bool {
	return r.PostID != "" && r.OwnerID != "" && !r.CreatedAt.IsZero()
}

// Comment is a canonical comment with the parent post's embedded location
// snapshot.
type Comment struct {
	ID        string
	AuthorID  string
	Text      string
	Post      PostRef
	CreatedAt time.Time
}

// Like is a canonical like with the liked post's embedded location snapshot.
type Like struct {
	UserID    string
	Post      PostRef
	CreatedAt time.Time
}

// FeedItem is a materialized entry in one recipient's feed. The author and
// caption fields are an immutable snapshot taken at materialization time;
// LikesCount and CommentsCount are kept live by the CounterReconciler.
type FeedItem struct {
	RecipientID string
	CreatedAt   time.Time
	PostID      string

	AuthorID          string
	AuthorHandle      string
	AuthorDisplayName string
	AuthorAvatarURL   string
	Caption           string
	MediaURLs         []string

	LikesCount    int64
	CommentsCount int64

	// IsLiked is the recipient's like state computed once at materialization
	// time. It is not kept live.
	IsLiked bool

	IsRead bool
	ReadAt time.Time

	// ExpiresAt drives storage-level expiry. Expiry is cache hygiene, not a
	// correctness mechanism; read markers outlive the item.
	ExpiresAt time.Time

	SchemaVersion int
}

// NewFeedItem builds the materialized entry for one recipient from the
// canonical post and the author's profile at call time.
func NewFeedItem(recipientID string, post *Post, author *Profile, isLiked bool, expiresAt time.Time) *FeedItem {
	return &FeedItem{
		RecipientID:       recipientID,
		CreatedAt:         post.CreatedAt,
		PostID:            post.ID,
		AuthorID:          post.AuthorID,
		AuthorHandle:      author.Handle,
		AuthorDisplayName: author.DisplayName,
		AuthorAvatarURL:   author.AvatarURL,
		Caption:           post.Caption,
		MediaURLs:         post.MediaURLs,
		LikesCount:        post.LikesCount,
		CommentsCount:     post.CommentsCount,
		IsLiked:           isLiked,
		ExpiresAt:         expiresAt,
		SchemaVersion:     feedItemSchemaVersion,
	}
}

// FeedEntry is one post as presented on a feed surface, common to the
// materialized following feed and the explore feed.
type FeedEntry struct {
	PostID            string
	AuthorID          string
	AuthorHandle      string
	AuthorDisplayName string
	AuthorAvatarURL   string
	Caption           string
	MediaURLs         []string
	CreatedAt         time.Time
	LikesCount        int64
	CommentsCount     int64
	IsLiked           bool
}

// FeedPage is one page of a feed. Cursor is empty when there are no further
// pages.
type FeedPage struct {
	Entries []FeedEntry
	Cursor  string
}
