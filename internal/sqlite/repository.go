// Package sqlite implements the engine's store ports on a single SQLite
// database: canonical entities, materialized feed items, permanent read
// markers, the durable changelog, and consumer checkpoints.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id              TEXT PRIMARY KEY,
	handle          TEXT NOT NULL UNIQUE COLLATE NOCASE,
	display_name    TEXT NOT NULL DEFAULT '',
	avatar_url      TEXT NOT NULL DEFAULT '',
	followers_count INTEGER NOT NULL DEFAULT 0,
	following_count INTEGER NOT NULL DEFAULT 0,
	posts_count     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS posts (
	author_id      TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	id             TEXT NOT NULL,
	caption        TEXT NOT NULL DEFAULT '',
	media_urls     TEXT NOT NULL DEFAULT '[]',
	likes_count    INTEGER NOT NULL DEFAULT 0,
	comments_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (author_id, created_at, id)
);
CREATE INDEX IF NOT EXISTS posts_global_feed ON posts (created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS follows (
	follower_id TEXT NOT NULL,
	followee_id TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (follower_id, followee_id)
);
CREATE INDEX IF NOT EXISTS follows_by_followee ON follows (followee_id);

CREATE TABLE IF NOT EXISTS comments (
	id              TEXT PRIMARY KEY,
	author_id       TEXT NOT NULL,
	text            TEXT NOT NULL DEFAULT '',
	post_id         TEXT NOT NULL,
	post_owner_id   TEXT NOT NULL,
	post_created_at INTEGER NOT NULL,
	created_at      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS likes (
	user_id         TEXT NOT NULL,
	post_id         TEXT NOT NULL,
	post_owner_id   TEXT NOT NULL,
	post_created_at INTEGER NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (user_id, post_id)
);
CREATE INDEX IF NOT EXISTS likes_by_post ON likes (post_id);

CREATE TABLE IF NOT EXISTS feed_items (
	recipient_id        TEXT NOT NULL,
	created_at          INTEGER NOT NULL,
	post_id             TEXT NOT NULL,
	author_id           TEXT NOT NULL,
	author_handle       TEXT NOT NULL,
	author_display_name TEXT NOT NULL DEFAULT '',
	author_avatar_url   TEXT NOT NULL DEFAULT '',
	caption             TEXT NOT NULL DEFAULT '',
	media_urls          TEXT NOT NULL DEFAULT '[]',
	likes_count         INTEGER NOT NULL DEFAULT 0,
	comments_count      INTEGER NOT NULL DEFAULT 0,
	is_liked            INTEGER NOT NULL DEFAULT 0,
	is_read             INTEGER NOT NULL DEFAULT 0,
	read_at             INTEGER,
	expires_at          INTEGER NOT NULL,
	schema_version      INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (recipient_id, created_at, post_id)
);
CREATE INDEX IF NOT EXISTS feed_items_by_post ON feed_items (post_id);
CREATE INDEX IF NOT EXISTS feed_items_expiry ON feed_items (expires_at);

CREATE TABLE IF NOT EXISTS read_markers (
	user_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	read_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, post_id)
);

CREATE TABLE IF NOT EXISTS changelog (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id   TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	op          TEXT NOT NULL,
	occurred_at INTEGER NOT NULL,
	payload     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	consumer   TEXT PRIMARY KEY,
	seq        INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Repository implements the domain store ports on SQLite.
type Repository struct {
	db *sql.DB
}

// Open opens the database at path, applies the schema, and returns a new
// Repository. The caller should call Close when done.
func Open(path string) (*Repository, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func encodeMediaURLs(urls []string) (string, error) {
	if len(urls) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return "", fmt.Errorf("encode media urls: %w", err)
	}
	return string(data), nil
}

func decodeMediaURLs(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var urls []string
	if err := json.Unmarshal([]byte(data), &urls); err != nil {
		return nil, fmt.Errorf("decode media urls: %w", err)
	}
	return urls, nil
}

// GetProfile retrieves a profile by id.
func (r *Repository) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	var p domain.Profile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, handle, display_name, avatar_url, followers_count, following_count, posts_count
		FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.Handle, &p.DisplayName, &p.AvatarURL, &p.FollowersCount, &p.FollowingCount, &p.PostsCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

// AdjustFollowersCount atomically applies delta to followersCount, flooring
// at zero. A single UPDATE keeps concurrent adjustments lossless.
func (r *Repository) AdjustFollowersCount(ctx context.Context, id string, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET followers_count = MAX(0, followers_count + ?) WHERE id = ?`,
		delta, id,
	)
	return err
}

// AdjustFollowingCount atomically applies delta to followingCount, flooring
// at zero.
func (r *Repository) AdjustFollowingCount(ctx context.Context, id string, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE profiles SET following_count = MAX(0, following_count + ?) WHERE id = ?`,
		delta, id,
	)
	return err
}

// AdjustPostLikes atomically applies delta to likesCount on the post located
// by the full composite key from the embedded snapshot. A stale ref matches
// zero rows; no counter record is ever created from a ref.
func (r *Repository) AdjustPostLikes(ctx context.Context, ref domain.PostRef, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE posts SET likes_count = MAX(0, likes_count + ?)
		WHERE author_id = ? AND created_at = ? AND id = ?`,
		delta, ref.OwnerID, toMillis(ref.CreatedAt), ref.PostID,
	)
	return err
}

// AdjustPostComments is AdjustPostLikes for commentsCount.
func (r *Repository) AdjustPostComments(ctx context.Context, ref domain.PostRef, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE posts SET comments_count = MAX(0, comments_count + ?)
		WHERE author_id = ? AND created_at = ? AND id = ?`,
		delta, ref.OwnerID, toMillis(ref.CreatedAt), ref.PostID,
	)
	return err
}

// ListGlobalFeed retrieves canonical posts joined with author profiles,
// newest first, starting strictly after before.
func (r *Repository) ListGlobalFeed(ctx context.Context, limit int, before *domain.PageKey) ([]domain.FeedEntry, error) {
	query := `
		SELECT p.id, p.author_id, pr.handle, pr.display_name, pr.avatar_url,
		       p.caption, p.media_urls, p.created_at, p.likes_count, p.comments_count
		FROM posts p
		JOIN profiles pr ON pr.id = p.author_id`
	args := []any{}
	if before != nil {
		query += `
		WHERE (p.created_at, p.id) < (?, ?)`
		args = append(args, toMillis(before.CreatedAt), before.PostID)
	}
	query += `
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query global feed: %w", err)
	}
	defer rows.Close()

	var entries []domain.FeedEntry
	for rows.Next() {
		var e domain.FeedEntry
		var createdAt int64
		var mediaURLs string
		err := rows.Scan(
			&e.PostID, &e.AuthorID, &e.AuthorHandle, &e.AuthorDisplayName, &e.AuthorAvatarURL,
			&e.Caption, &mediaURLs, &createdAt, &e.LikesCount, &e.CommentsCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan global feed entry: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		if e.MediaURLs, err = decodeMediaURLs(mediaURLs); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate global feed: %w", err)
	}
	return entries, nil
}

// ListFollowerIDs returns the ids of all users following followeeID.
func (r *Repository) ListFollowerIDs(ctx context.Context, followeeID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT follower_id FROM follows WHERE followee_id = ?`, followeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query followers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follower id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListLikerIDs returns the ids of all users who have liked postID.
func (r *Repository) ListLikerIDs(ctx context.Context, postID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM likes WHERE post_id = ?`, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("query likers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan liker id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateFeedItem conditionally creates the item under its composite key.
// An existing read marker pre-seeds is_read, so a hypothetical backfill after
// expiry never resurfaces a consumed post.
func (r *Repository) CreateFeedItem(ctx context.Context, item *domain.FeedItem) (bool, error) {
	mediaURLs, err := encodeMediaURLs(item.MediaURLs)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_items (
			recipient_id, created_at, post_id,
			author_id, author_handle, author_display_name, author_avatar_url,
			caption, media_urls, likes_count, comments_count,
			is_liked, is_read, expires_at, schema_version
		)
		SELECT ?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12,
			EXISTS (SELECT 1 FROM read_markers WHERE user_id = ?1 AND post_id = ?3),
			?13, ?14
		WHERE TRUE
		ON CONFLICT (recipient_id, created_at, post_id) DO NOTHING`,
		item.RecipientID, toMillis(item.CreatedAt), item.PostID,
		item.AuthorID, item.AuthorHandle, item.AuthorDisplayName, item.AuthorAvatarURL,
		item.Caption, mediaURLs, item.LikesCount, item.CommentsCount,
		boolToInt(item.IsLiked),
		toMillis(item.ExpiresAt), item.SchemaVersion,
	)
	if err != nil {
		return false, fmt.Errorf("insert feed item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("feed item rows affected: %w", err)
	}
	return n > 0, nil
}

// ListUnreadFeedItems retrieves the recipient's unread items, newest first.
// The read_markers table is the authoritative filter; the item's own is_read
// copy exists for display and back-compat only.
func (r *Repository) ListUnreadFeedItems(ctx context.Context, recipientID string, limit int, before *domain.PageKey) ([]domain.FeedItem, error) {
	query := `
		SELECT f.recipient_id, f.created_at, f.post_id,
		       f.author_id, f.author_handle, f.author_display_name, f.author_avatar_url,
		       f.caption, f.media_urls, f.likes_count, f.comments_count,
		       f.is_liked, f.expires_at, f.schema_version
		FROM feed_items f
		LEFT JOIN read_markers r ON r.user_id = f.recipient_id AND r.post_id = f.post_id
		WHERE f.recipient_id = ? AND r.post_id IS NULL`
	args := []any{recipientID}
	if before != nil {
		query += ` AND (f.created_at, f.post_id) < (?, ?)`
		args = append(args, toMillis(before.CreatedAt), before.PostID)
	}
	query += `
		ORDER BY f.created_at DESC, f.post_id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unread feed items: %w", err)
	}
	defer rows.Close()

	var items []domain.FeedItem
	for rows.Next() {
		var item domain.FeedItem
		var createdAt, expiresAt int64
		var isLiked int
		var mediaURLs string
		err := rows.Scan(
			&item.RecipientID, &createdAt, &item.PostID,
			&item.AuthorID, &item.AuthorHandle, &item.AuthorDisplayName, &item.AuthorAvatarURL,
			&item.Caption, &mediaURLs, &item.LikesCount, &item.CommentsCount,
			&isLiked, &expiresAt, &item.SchemaVersion,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		item.CreatedAt = fromMillis(createdAt)
		item.ExpiresAt = fromMillis(expiresAt)
		item.IsLiked = isLiked != 0
		if item.MediaURLs, err = decodeMediaURLs(mediaURLs); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed items: %w", err)
	}
	return items, nil
}

// MarkFeedItemsRead sets the permanent read marker for each post the user has
// a feed item for. Returns the number of markers actually transitioned.
func (r *Repository) MarkFeedItemsRead(ctx context.Context, userID string, postIDs []string, at time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	atMillis := toMillis(at)
	var updated int64
	for _, postID := range postIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO read_markers (user_id, post_id, read_at)
			SELECT ?1, ?2, ?3
			WHERE EXISTS (SELECT 1 FROM feed_items WHERE recipient_id = ?1 AND post_id = ?2)
			ON CONFLICT (user_id, post_id) DO NOTHING`,
			userID, postID, atMillis,
		)
		if err != nil {
			return 0, fmt.Errorf("insert read marker for post %s: %w", postID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("read marker rows affected: %w", err)
		}
		if n == 0 {
			continue
		}
		updated += n

		_, err = tx.ExecContext(ctx, `
			UPDATE feed_items SET is_read = 1, read_at = ?
			WHERE recipient_id = ? AND post_id = ? AND is_read = 0`,
			atMillis, userID, postID,
		)
		if err != nil {
			return 0, fmt.Errorf("mark feed item read for post %s: %w", postID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

// AdjustFeedItemLikes atomically applies delta to likesCount on every
// materialized copy of postID, flooring at zero.
func (r *Repository) AdjustFeedItemLikes(ctx context.Context, postID string, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feed_items SET likes_count = MAX(0, likes_count + ?) WHERE post_id = ?`,
		delta, postID,
	)
	return err
}

// AdjustFeedItemComments is AdjustFeedItemLikes for commentsCount.
func (r *Repository) AdjustFeedItemComments(ctx context.Context, postID string, delta int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE feed_items SET comments_count = MAX(0, comments_count + ?) WHERE post_id = ?`,
		delta, postID,
	)
	return err
}

// DeleteExpiredFeedItems removes items whose expiry has passed. Read markers
// are untouched; expiry is cache hygiene, not read state.
func (r *Repository) DeleteExpiredFeedItems(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM feed_items WHERE expires_at <= ?`, toMillis(now),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired feed items: %w", err)
	}
	return res.RowsAffected()
}

// GetCheckpoint retrieves the saved sequence for a consumer.
func (r *Repository) GetCheckpoint(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx,
		`SELECT seq FROM checkpoints WHERE consumer = ?`, consumer,
	).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

// UpdateCheckpoint upserts the sequence for a consumer.
func (r *Repository) UpdateCheckpoint(ctx context.Context, consumer string, seq int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (consumer, seq, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (consumer) DO UPDATE SET seq = excluded.seq, updated_at = excluded.updated_at`,
		consumer, seq, toMillis(time.Now()),
	)
	return err
}

// changePayload is the stored JSON envelope for a changelog record. Exactly
// one field matching the record's entity type is set.
type changePayload struct {
	Post    *postPayload    `json:"post,omitempty"`
	Follow  *followPayload  `json:"follow,omitempty"`
	Comment *commentPayload `json:"comment,omitempty"`
	Like    *likePayload    `json:"like,omitempty"`
}

type postPayload struct {
	ID        string   `json:"id"`
	AuthorID  string   `json:"authorId"`
	Caption   string   `json:"caption"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
	CreatedAt int64    `json:"createdAt"`
}

type followPayload struct {
	FollowerID string `json:"followerId"`
	FolloweeID string `json:"followeeId"`
	CreatedAt  int64  `json:"createdAt"`
}

type postRefPayload struct {
	PostID    string `json:"postId"`
	OwnerID   string `json:"postOwnerId"`
	CreatedAt int64  `json:"postCreatedAt"`
}

type commentPayload struct {
	ID        string         `json:"id"`
	AuthorID  string         `json:"authorId"`
	Text      string         `json:"text"`
	Post      postRefPayload `json:"post"`
	CreatedAt int64          `json:"createdAt"`
}

type likePayload struct {
	UserID    string         `json:"userId"`
	Post      postRefPayload `json:"post"`
	CreatedAt int64          `json:"createdAt"`
}

func encodeChangePayload(record *domain.ChangeRecord) (string, error) {
	var payload changePayload
	switch record.EntityType {
	case domain.EntityPost:
		if record.Post == nil {
			return "", domain.ErrMalformedRecord
		}
		payload.Post = &postPayload{
			ID:        record.Post.ID,
			AuthorID:  record.Post.AuthorID,
			Caption:   record.Post.Caption,
			MediaURLs: record.Post.MediaURLs,
			CreatedAt: toMillis(record.Post.CreatedAt),
		}
	case domain.EntityFollow:
		if record.Follow == nil {
			return "", domain.ErrMalformedRecord
		}
		payload.Follow = &followPayload{
			FollowerID: record.Follow.FollowerID,
			FolloweeID: record.Follow.FolloweeID,
			CreatedAt:  toMillis(record.Follow.CreatedAt),
		}
	case domain.EntityComment:
		if record.Comment == nil {
			return "", domain.ErrMalformedRecord
		}
		payload.Comment = &commentPayload{
			ID:       record.Comment.ID,
			AuthorID: record.Comment.AuthorID,
			Text:     record.Comment.Text,
			Post: postRefPayload{
				PostID:    record.Comment.Post.PostID,
				OwnerID:   record.Comment.Post.OwnerID,
				CreatedAt: toMillis(record.Comment.Post.CreatedAt),
			},
			CreatedAt: toMillis(record.Comment.CreatedAt),
		}
	case domain.EntityLike:
		if record.Like == nil {
			return "", domain.ErrMalformedRecord
		}
		payload.Like = &likePayload{
			UserID: record.Like.UserID,
			Post: postRefPayload{
				PostID:    record.Like.Post.PostID,
				OwnerID:   record.Like.Post.OwnerID,
				CreatedAt: toMillis(record.Like.Post.CreatedAt),
			},
			CreatedAt: toMillis(record.Like.CreatedAt),
		}
	default:
		return "", domain.ErrMalformedRecord
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode change payload: %w", err)
	}
	return string(data), nil
}

func decodeChangePayload(record *domain.ChangeRecord, data string) error {
	var payload changePayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return fmt.Errorf("decode change payload: %w", err)
	}

	switch record.EntityType {
	case domain.EntityPost:
		if payload.Post == nil {
			return domain.ErrMalformedRecord
		}
		record.Post = &domain.Post{
			ID:        payload.Post.ID,
			AuthorID:  payload.Post.AuthorID,
			Caption:   payload.Post.Caption,
			MediaURLs: payload.Post.MediaURLs,
			CreatedAt: fromMillis(payload.Post.CreatedAt),
		}
	case domain.EntityFollow:
		if payload.Follow == nil {
			return domain.ErrMalformedRecord
		}
		record.Follow = &domain.FollowEdge{
			FollowerID: payload.Follow.FollowerID,
			FolloweeID: payload.Follow.FolloweeID,
			CreatedAt:  fromMillis(payload.Follow.CreatedAt),
		}
	case domain.EntityComment:
		if payload.Comment == nil {
			return domain.ErrMalformedRecord
		}
		record.Comment = &domain.Comment{
			ID:       payload.Comment.ID,
			AuthorID: payload.Comment.AuthorID,
			Text:     payload.Comment.Text,
			Post: domain.PostRef{
				PostID:    payload.Comment.Post.PostID,
				OwnerID:   payload.Comment.Post.OwnerID,
				CreatedAt: fromMillis(payload.Comment.Post.CreatedAt),
			},
			CreatedAt: fromMillis(payload.Comment.CreatedAt),
		}
	case domain.EntityLike:
		if payload.Like == nil {
			return domain.ErrMalformedRecord
		}
		record.Like = &domain.Like{
			UserID: payload.Like.UserID,
			Post: domain.PostRef{
				PostID:    payload.Like.Post.PostID,
				OwnerID:   payload.Like.Post.OwnerID,
				CreatedAt: fromMillis(payload.Like.Post.CreatedAt),
			},
			CreatedAt: fromMillis(payload.Like.CreatedAt),
		}
	default:
		return domain.ErrMalformedRecord
	}
	return nil
}

// AppendChange appends a record to the changelog and returns its assigned
// sequence.
func (r *Repository) AppendChange(ctx context.Context, record *domain.ChangeRecord) (int64, error) {
	payload, err := encodeChangePayload(record)
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO changelog (record_id, entity_type, op, occurred_at, payload)
		VALUES (?, ?, ?, ?, ?)`,
		record.ID, string(record.EntityType), string(record.Op), toMillis(record.OccurredAt), payload,
	)
	if err != nil {
		return 0, fmt.Errorf("append change: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("change sequence: %w", err)
	}
	record.Seq = seq
	return seq, nil
}

// ListChangesAfter retrieves up to limit records with seq > after, in order.
func (r *Repository) ListChangesAfter(ctx context.Context, after int64, limit int) ([]domain.ChangeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT seq, record_id, entity_type, op, occurred_at, payload
		FROM changelog WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query changelog: %w", err)
	}
	defer rows.Close()

	var records []domain.ChangeRecord
	for rows.Next() {
		var rec domain.ChangeRecord
		var entityType, op, payload string
		var occurredAt int64
		if err := rows.Scan(&rec.Seq, &rec.ID, &entityType, &op, &occurredAt, &payload); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		rec.EntityType = domain.EntityType(entityType)
		rec.Op = domain.Op(op)
		rec.OccurredAt = fromMillis(occurredAt)
		if err := decodeChangePayload(&rec, payload); err != nil {
			return nil, fmt.Errorf("change record seq %d: %w", rec.Seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changelog: %w", err)
	}
	return records, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
