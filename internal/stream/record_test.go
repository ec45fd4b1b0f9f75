package stream

import (
	"testing"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ref := domain.PostRef{PostID: "p1", OwnerID: "author", CreatedAt: now}

	records := []*domain.ChangeRecord{
		{
			ID: "r1", Seq: 1, EntityType: domain.EntityPost, Op: domain.OpInsert, OccurredAt: now,
			Post: &domain.Post{ID: "p1", AuthorID: "author", Caption: "hi", MediaURLs: []string{"https://cdn.example.com/1.jpg"}, CreatedAt: now},
		},
		{
			ID: "r2", Seq: 2, EntityType: domain.EntityFollow, Op: domain.OpRemove, OccurredAt: now,
			Follow: &domain.FollowEdge{FollowerID: "alice", FolloweeID: "bob", CreatedAt: now},
		},
		{
			ID: "r3", Seq: 3, EntityType: domain.EntityComment, Op: domain.OpInsert, OccurredAt: now,
			Comment: &domain.Comment{ID: "c1", AuthorID: "alice", Text: "nice", Post: ref, CreatedAt: now},
		},
		{
			ID: "r4", Seq: 4, EntityType: domain.EntityLike, Op: domain.OpInsert, OccurredAt: now,
			Like: &domain.Like{UserID: "alice", Post: ref, CreatedAt: now},
		},
	}

	for _, record := range records {
		data, err := EncodeRecord(record)
		require.NoError(t, err, record.Key())
		decoded, err := DecodeRecord(data)
		require.NoError(t, err, record.Key())
		require.Equal(t, record, decoded)
	}
}

func TestDecodeRecordRejectsUnknownShapes(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown entity type", `{"id":"r1","seq":1,"entityType":"auction","op":"insert","occurredAt":0,"payload":{}}`},
		{"unknown op", `{"id":"r1","seq":1,"entityType":"post","op":"upsert","occurredAt":0,"payload":{}}`},
		{"not json", `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRecord([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestEncodeRecordRejectsMismatchedPayload(t *testing.T) {
	_, err := EncodeRecord(&domain.ChangeRecord{EntityType: domain.EntityPost, Op: domain.OpInsert})
	require.ErrorIs(t, err, domain.ErrMalformedRecord)
}
