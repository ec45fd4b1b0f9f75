// Package stream carries change records between the durable changelog and
// the engine's consumers: a websocket broadcaster on the serving side and a
// batching subscriber on the consuming side.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
)

// wireRecord is the JSON shape of one change record on the wire.
type wireRecord struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	EntityType string          `json:"entityType"`
	Op         string          `json:"op"`
	OccurredAt int64           `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

type wirePost struct {
	ID        string   `json:"id"`
	AuthorID  string   `json:"authorId"`
	Caption   string   `json:"caption"`
	MediaURLs []string `json:"mediaUrls,omitempty"`
	CreatedAt int64    `json:"createdAt"`
}

type wireFollow struct {
	FollowerID string `json:"followerId"`
	FolloweeID string `json:"followeeId"`
	CreatedAt  int64  `json:"createdAt"`
}

type wirePostRef struct {
	PostID    string `json:"postId"`
	OwnerID   string `json:"postOwnerId"`
	CreatedAt int64  `json:"postCreatedAt"`
}

type wireComment struct {
	ID        string      `json:"id"`
	AuthorID  string      `json:"authorId"`
	Text      string      `json:"text"`
	Post      wirePostRef `json:"post"`
	CreatedAt int64       `json:"createdAt"`
}

type wireLike struct {
	UserID    string      `json:"userId"`
	Post      wirePostRef `json:"post"`
	CreatedAt int64       `json:"createdAt"`
}

func toMillis(t time.Time) int64   { return t.UTC().UnixMilli() }
func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func toWireRef(ref domain.PostRef) wirePostRef {
	return wirePostRef{PostID: ref.PostID, OwnerID: ref.OwnerID, CreatedAt: toMillis(ref.CreatedAt)}
}

func fromWireRef(ref wirePostRef) domain.PostRef {
	return domain.PostRef{PostID: ref.PostID, OwnerID: ref.OwnerID, CreatedAt: fromMillis(ref.CreatedAt)}
}

// EncodeRecord serializes a change record for the wire.
func EncodeRecord(record *domain.ChangeRecord) ([]byte, error) {
	var payload any
	switch record.EntityType {
	case domain.EntityPost:
		if record.Post == nil {
			return nil, domain.ErrMalformedRecord
		}
		payload = wirePost{
			ID:        record.Post.ID,
			AuthorID:  record.Post.AuthorID,
			Caption:   record.Post.Caption,
			MediaURLs: record.Post.MediaURLs,
			CreatedAt: toMillis(record.Post.CreatedAt),
		}
	case domain.EntityFollow:
		if record.Follow == nil {
			return nil, domain.ErrMalformedRecord
		}
		payload = wireFollow{
			FollowerID: record.Follow.FollowerID,
			FolloweeID: record.Follow.FolloweeID,
			CreatedAt:  toMillis(record.Follow.CreatedAt),
		}
	case domain.EntityComment:
		if record.Comment == nil {
			return nil, domain.ErrMalformedRecord
		}
		payload = wireComment{
			ID:        record.Comment.ID,
			AuthorID:  record.Comment.AuthorID,
			Text:      record.Comment.Text,
			Post:      toWireRef(record.Comment.Post),
			CreatedAt: toMillis(record.Comment.CreatedAt),
		}
	case domain.EntityLike:
		if record.Like == nil {
			return nil, domain.ErrMalformedRecord
		}
		payload = wireLike{
			UserID:    record.Like.UserID,
			Post:      toWireRef(record.Like.Post),
			CreatedAt: toMillis(record.Like.CreatedAt),
		}
	default:
		return nil, fmt.Errorf("entity type %q: %w", record.EntityType, domain.ErrMalformedRecord)
	}

	payloadData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(wireRecord{
		ID:         record.ID,
		Seq:        record.Seq,
		EntityType: string(record.EntityType),
		Op:         string(record.Op),
		OccurredAt: toMillis(record.OccurredAt),
		Payload:    payloadData,
	})
}

// DecodeRecord parses a wire message into a typed change record. Unrecognized
// entity types, ops, or payload shapes are rejected here, at the boundary, so
// consumers only ever see well-formed records.
func DecodeRecord(data []byte) (*domain.ChangeRecord, error) {
	var raw wireRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	op := domain.Op(raw.Op)
	if op != domain.OpInsert && op != domain.OpRemove {
		return nil, fmt.Errorf("op %q: %w", raw.Op, domain.ErrMalformedRecord)
	}

	record := &domain.ChangeRecord{
		ID:         raw.ID,
		Seq:        raw.Seq,
		EntityType: domain.EntityType(raw.EntityType),
		Op:         op,
		OccurredAt: fromMillis(raw.OccurredAt),
	}

	switch record.EntityType {
	case domain.EntityPost:
		var p wirePost
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal post payload: %w", err)
		}
		record.Post = &domain.Post{
			ID:        p.ID,
			AuthorID:  p.AuthorID,
			Caption:   p.Caption,
			MediaURLs: p.MediaURLs,
			CreatedAt: fromMillis(p.CreatedAt),
		}
	case domain.EntityFollow:
		var f wireFollow
		if err := json.Unmarshal(raw.Payload, &f); err != nil {
			return nil, fmt.Errorf("unmarshal follow payload: %w", err)
		}
		record.Follow = &domain.FollowEdge{
			FollowerID: f.FollowerID,
			FolloweeID: f.FolloweeID,
			CreatedAt:  fromMillis(f.CreatedAt),
		}
	case domain.EntityComment:
		var c wireComment
		if err := json.Unmarshal(raw.Payload, &c); err != nil {
			return nil, fmt.Errorf("unmarshal comment payload: %w", err)
		}
		record.Comment = &domain.Comment{
			ID:        c.ID,
			AuthorID:  c.AuthorID,
			Text:      c.Text,
			Post:      fromWireRef(c.Post),
			CreatedAt: fromMillis(c.CreatedAt),
		}
	case domain.EntityLike:
		var l wireLike
		if err := json.Unmarshal(raw.Payload, &l); err != nil {
			return nil, fmt.Errorf("unmarshal like payload: %w", err)
		}
		record.Like = &domain.Like{
			UserID:    l.UserID,
			Post:      fromWireRef(l.Post),
			CreatedAt: fromMillis(l.CreatedAt),
		}
	default:
		return nil, fmt.Errorf("entity type %q: %w", raw.EntityType, domain.ErrMalformedRecord)
	}

	return record, nil
}
