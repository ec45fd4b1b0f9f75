package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/stretchr/testify/require"
)

type memChangelog struct {
	mu      sync.Mutex
	records []domain.ChangeRecord
}

func (c *memChangelog) AppendChange(_ context.Context, record *domain.ChangeRecord) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record.Seq = int64(len(c.records) + 1)
	c.records = append(c.records, *record)
	return record.Seq, nil
}

func (c *memChangelog) ListChangesAfter(_ context.Context, after int64, limit int) ([]domain.ChangeRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.ChangeRecord
	for _, rec := range c.records {
		if rec.Seq > after {
			out = append(out, rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type memCheckpoints struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func (c *memCheckpoints) GetCheckpoint(_ context.Context, consumer string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seqs[consumer], nil
}

func (c *memCheckpoints) UpdateCheckpoint(ctx context.Context, consumer string, seq int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seqs == nil {
		c.seqs = make(map[string]int64)
	}
	c.seqs[consumer] = seq
	return nil
}

type collectingHandler struct {
	mu     sync.Mutex
	seen   []int64
	failOn map[int64]error
}

func (h *collectingHandler) HandleChange(_ context.Context, record *domain.ChangeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failOn[record.Seq]; err != nil {
		return err
	}
	h.seen = append(h.seen, record.Seq)
	return nil
}

func (h *collectingHandler) seenSeqs() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.seen...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func seedChangelog(t *testing.T, log *memChangelog, n int) {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for range n {
		_, err := log.AppendChange(context.Background(), &domain.ChangeRecord{
			ID:         "r",
			EntityType: domain.EntityFollow,
			Op:         domain.OpInsert,
			OccurredAt: now,
			Follow:     &domain.FollowEdge{FollowerID: "alice", FolloweeID: "bob", CreatedAt: now},
		})
		require.NoError(t, err)
	}
}

func TestSubscriberReceivesBroadcastRecords(t *testing.T) {
	log := &memChangelog{}
	seedChangelog(t, log, 7)

	server := httptest.NewServer(NewBroadcaster(log, testLogger()))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	handler := &collectingHandler{}
	sub := NewSubscriber(wsURL, handler, &memCheckpoints{}, SubscriberConfig{
		Name:          "test",
		BatchSize:     3,
		FlushInterval: 50 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sub.Start(ctx)

	require.Eventually(t, func() bool {
		return len(handler.seenSeqs()) == 7
	}, 3*time.Second, 20*time.Millisecond)

	seqs := handler.seenSeqs()
	seen := make(map[int64]bool, len(seqs))
	for _, seq := range seqs {
		require.False(t, seen[seq], "record %d delivered twice within session", seq)
		seen[seq] = true
	}
}

func TestSubscriberResumesFromCheckpoint(t *testing.T) {
	log := &memChangelog{}
	seedChangelog(t, log, 5)

	server := httptest.NewServer(NewBroadcaster(log, testLogger()))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	checkpoints := &memCheckpoints{seqs: map[string]int64{"test": 3}}
	handler := &collectingHandler{}
	sub := NewSubscriber(wsURL, handler, checkpoints, SubscriberConfig{
		Name:          "test",
		BatchSize:     10,
		FlushInterval: 50 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sub.Start(ctx)

	require.Eventually(t, func() bool {
		return len(handler.seenSeqs()) == 2
	}, 3*time.Second, 20*time.Millisecond)
	require.ElementsMatch(t, []int64{4, 5}, handler.seenSeqs())
}

func TestSubscriberSavesCheckpointOnShutdown(t *testing.T) {
	log := &memChangelog{}
	seedChangelog(t, log, 3)

	server := httptest.NewServer(NewBroadcaster(log, testLogger()))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	checkpoints := &memCheckpoints{}
	handler := &collectingHandler{}
	sub := NewSubscriber(wsURL, handler, checkpoints, SubscriberConfig{
		Name:          "test",
		BatchSize:     10,
		FlushInterval: 20 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sub.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(handler.seenSeqs()) == 3
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("subscriber did not stop")
	}

	// The teardown save must not be lost to the cancelled context.
	seq, err := checkpoints.GetCheckpoint(context.Background(), "test")
	require.NoError(t, err)
	require.EqualValues(t, 3, seq)
}

type flakyHandler struct {
	mu        sync.Mutex
	attempts  map[int64]int
	failFirst map[int64]error
	applied   map[int64]bool
}

func newFlakyHandler(failFirst map[int64]error) *flakyHandler {
	return &flakyHandler{
		attempts:  make(map[int64]int),
		failFirst: failFirst,
		applied:   make(map[int64]bool),
	}
}

func (h *flakyHandler) HandleChange(_ context.Context, record *domain.ChangeRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts[record.Seq]++
	if err := h.failFirst[record.Seq]; err != nil && h.attempts[record.Seq] == 1 {
		return err
	}
	h.applied[record.Seq] = true
	return nil
}

func (h *flakyHandler) appliedSeq(seq int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.applied[seq]
}

func (h *flakyHandler) attemptCount(seq int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[seq]
}

func TestSubscriberRedeliversTransientFailures(t *testing.T) {
	log := &memChangelog{}
	seedChangelog(t, log, 4)

	server := httptest.NewServer(NewBroadcaster(log, testLogger()))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	// Seq 2 fails with a retryable store error on its first delivery only.
	handler := newFlakyHandler(map[int64]error{
		2: &domain.TransientStoreError{Err: errors.New("database is locked")},
	})
	sub := NewSubscriber(wsURL, handler, &memCheckpoints{}, SubscriberConfig{
		Name:             "test",
		BatchSize:        10,
		FlushInterval:    20 * time.Millisecond,
		ReconnectBackoff: 20 * time.Millisecond,
	}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go sub.Start(ctx)

	// The failed record is replayed without any transport error and applies
	// on the second attempt.
	require.Eventually(t, func() bool {
		return handler.appliedSeq(2)
	}, 3*time.Second, 20*time.Millisecond)
	require.GreaterOrEqual(t, handler.attemptCount(2), 2)
	for _, seq := range []int64{1, 3, 4} {
		require.True(t, handler.appliedSeq(seq))
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	handler := &collectingHandler{failOn: map[int64]error{
		2: errors.New("store timeout"),
		3: domain.ErrMissingPostRef,
	}}
	sub := NewSubscriber("ws://unused", handler, &memCheckpoints{}, SubscriberConfig{Name: "test"}, testLogger())

	now := time.Now().UTC()
	batch := make([]*domain.ChangeRecord, 4)
	for i := range batch {
		batch[i] = &domain.ChangeRecord{
			Seq:        int64(i + 1),
			EntityType: domain.EntityFollow,
			Op:         domain.OpInsert,
			OccurredAt: now,
			Follow:     &domain.FollowEdge{FollowerID: "a", FolloweeID: "b"},
		}
	}

	report := sub.processBatch(context.Background(), batch)
	require.Len(t, report.Results, 4)
	require.Len(t, report.Failed(), 2)
	require.True(t, report.Results[2].Dropped, "missing metadata is a permanent drop")
	require.False(t, report.Results[1].Dropped, "timeouts stay retryable")
	require.EqualValues(t, 1, report.CheckpointSeq(), "checkpoint held before the transient failure")
	require.ElementsMatch(t, []int64{1, 4}, handler.seenSeqs())
}
