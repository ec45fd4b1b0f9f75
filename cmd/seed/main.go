// Command seed plays the external write path against a local store: it
// creates profiles, follows, posts, likes and comments, and appends the
// matching change records so a running engine fans them out and reconciles
// the counters. It exists for local development only.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/blackmichael/feed-fanout/internal/auth"
	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/blackmichael/feed-fanout/internal/sqlite"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dbPath    string
		followers int
		posts     int
		secret    string
	)

	flag.StringVar(&dbPath, "db", envOrDefault("FEED_DATABASE_PATH", "feed-fanout.db"), "SQLite database path")
	flag.IntVar(&followers, "followers", 3, "number of follower profiles to create")
	flag.IntVar(&posts, "posts", 5, "number of posts to create for the author")
	flag.StringVar(&secret, "secret", envOrDefault("FEED_AUTH_SECRET", ""), "auth secret used to mint a reader token")
	flag.Parse()

	if followers < 1 {
		return fmt.Errorf("--followers must be at least 1")
	}

	ctx := context.Background()
	repo, err := sqlite.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()

	seeder := &seeder{repo: repo}

	author := &domain.Profile{
		ID:          uuid.NewString(),
		Handle:      fmt.Sprintf("author-%s", uuid.NewString()[:8]),
		DisplayName: "Seed Author",
	}
	if err := repo.CreateProfile(ctx, author); err != nil {
		return err
	}
	fmt.Printf("author: %s (%s)\n", author.Handle, author.ID)

	readerIDs := make([]string, followers)
	for i := range followers {
		follower := &domain.Profile{
			ID:     uuid.NewString(),
			Handle: fmt.Sprintf("reader-%d-%s", i, uuid.NewString()[:8]),
		}
		if err := repo.CreateProfile(ctx, follower); err != nil {
			return err
		}
		readerIDs[i] = follower.ID

		edge := &domain.FollowEdge{
			FollowerID: follower.ID,
			FolloweeID: author.ID,
			CreatedAt:  time.Now().UTC(),
		}
		if err := repo.CreateFollow(ctx, edge); err != nil {
			return err
		}
		if err := seeder.publish(ctx, domain.EntityFollow, domain.OpInsert, &domain.ChangeRecord{Follow: edge}); err != nil {
			return err
		}
	}
	fmt.Printf("followers: %d\n", followers)

	for i := range posts {
		post := &domain.Post{
			ID:        uuid.NewString(),
			AuthorID:  author.ID,
			Caption:   fmt.Sprintf("seed post %d", i+1),
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		if err := repo.CreatePost(ctx, post); err != nil {
			return err
		}
		if err := seeder.publish(ctx, domain.EntityPost, domain.OpInsert, &domain.ChangeRecord{Post: post}); err != nil {
			return err
		}

		// The first reader likes every post.
		like := &domain.Like{
			UserID: readerIDs[0],
			Post: domain.PostRef{
				PostID:    post.ID,
				OwnerID:   post.AuthorID,
				CreatedAt: post.CreatedAt,
			},
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.CreateLike(ctx, like); err != nil {
			return err
		}
		if err := seeder.publish(ctx, domain.EntityLike, domain.OpInsert, &domain.ChangeRecord{Like: like}); err != nil {
			return err
		}

		comment := &domain.Comment{
			ID:        uuid.NewString(),
			AuthorID:  readerIDs[0],
			Text:      "nice one",
			Post:      like.Post,
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.CreateComment(ctx, comment); err != nil {
			return err
		}
		if err := seeder.publish(ctx, domain.EntityComment, domain.OpInsert, &domain.ChangeRecord{Comment: comment}); err != nil {
			return err
		}
	}
	fmt.Printf("posts: %d (each with one like and one comment)\n", posts)

	if secret != "" {
		token, err := auth.NewVerifier(secret).IssueToken(readerIDs[0], 24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("reader token (%s):\n%s\n", readerIDs[0], token)
	}

	return nil
}

type seeder struct {
	repo *sqlite.Repository
}

func (s *seeder) publish(ctx context.Context, entityType domain.EntityType, op domain.Op, record *domain.ChangeRecord) error {
	record.ID = uuid.NewString()
	record.EntityType = entityType
	record.Op = op
	record.OccurredAt = time.Now().UTC()
	if _, err := s.repo.AppendChange(ctx, record); err != nil {
		return fmt.Errorf("append %s/%s change: %w", entityType, op, err)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
