package sqlite

import (
	"context"
	"fmt"

	"github.com/blackmichael/feed-fanout/internal/domain"
)

// Canonical-entity writes. In production these mutations come from the
// profile/post/comment/like/follow collaborators; the engine itself never
// originates them. They exist here for the seed tool and for tests that need
// a populated store.

// CreateProfile inserts a profile row.
func (r *Repository) CreateProfile(ctx context.Context, p *domain.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, handle, display_name, avatar_url, followers_count, following_count, posts_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Handle, p.DisplayName, p.AvatarURL, p.FollowersCount, p.FollowingCount, p.PostsCount,
	)
	if err != nil {
		return fmt.Errorf("insert profile %s: %w", p.ID, err)
	}
	return nil
}

// CreatePost inserts a post row and bumps the author's postsCount. The
// postsCount counter belongs to the write path, not the reconciler.
func (r *Repository) CreatePost(ctx context.Context, p *domain.Post) error {
	mediaURLs, err := encodeMediaURLs(p.MediaURLs)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (author_id, created_at, id, caption, media_urls, likes_count, comments_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.AuthorID, toMillis(p.CreatedAt), p.ID, p.Caption, mediaURLs, p.LikesCount, p.CommentsCount,
	)
	if err != nil {
		return fmt.Errorf("insert post %s: %w", p.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE profiles SET posts_count = posts_count + 1 WHERE id = ?`, p.AuthorID,
	)
	if err != nil {
		return fmt.Errorf("bump posts count for %s: %w", p.AuthorID, err)
	}
	return tx.Commit()
}

// CreateFollow inserts a follow edge.
func (r *Repository) CreateFollow(ctx context.Context, edge *domain.FollowEdge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (follower_id, followee_id) DO NOTHING`,
		edge.FollowerID, edge.FolloweeID, toMillis(edge.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert follow %s -> %s: %w", edge.FollowerID, edge.FolloweeID, err)
	}
	return nil
}

// RemoveFollow deletes a follow edge.
func (r *Repository) RemoveFollow(ctx context.Context, followerID, followeeID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("delete follow %s -> %s: %w", followerID, followeeID, err)
	}
	return nil
}

// CreateComment inserts a comment row with its embedded post location.
func (r *Repository) CreateComment(ctx context.Context, c *domain.Comment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comments (id, author_id, text, post_id, post_owner_id, post_created_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.AuthorID, c.Text, c.Post.PostID, c.Post.OwnerID, toMillis(c.Post.CreatedAt), toMillis(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert comment %s: %w", c.ID, err)
	}
	return nil
}

// CreateLike inserts a like row with its embedded post location.
func (r *Repository) CreateLike(ctx context.Context, l *domain.Like) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO likes (user_id, post_id, post_owner_id, post_created_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, post_id) DO NOTHING`,
		l.UserID, l.Post.PostID, l.Post.OwnerID, toMillis(l.Post.CreatedAt), toMillis(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert like %s on %s: %w", l.UserID, l.Post.PostID, err)
	}
	return nil
}

// RemoveLike deletes a like row.
func (r *Repository) RemoveLike(ctx context.Context, userID, postID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND post_id = ?`,
		userID, postID,
	)
	if err != nil {
		return fmt.Errorf("delete like %s on %s: %w", userID, postID, err)
	}
	return nil
}
