package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	checkpointSaveInterval = 5 * time.Second
	reconnectBackoff       = 5 * time.Second
)

// SubscriberConfig tunes one stream consumer.
type SubscriberConfig struct {
	// Name is the consumer's checkpoint key. Each consumer tracks its own
	// position in the log.
	Name string

	// BatchSize caps how many records one delivery batch holds.
	BatchSize int

	// FlushInterval bounds how long a partial batch waits before dispatch.
	FlushInterval time.Duration

	// RecordTimeout bounds processing of one record so a slow record cannot
	// hold up checkpointing past its own deadline.
	RecordTimeout time.Duration

	// Concurrency caps parallel record dispatch within a batch.
	Concurrency int

	// ReconnectBackoff is the pause before redialing after a connection is
	// torn down, whether by a transport error or by a batch that needs
	// redelivery.
	ReconnectBackoff time.Duration
}

// Subscriber connects to the change-stream broadcaster and feeds decoded
// records to a handler in parallel delivery batches. Delivery is
// at-least-once: the checkpoint only advances past records that succeeded or
// were permanently dropped, and a batch with a transient failure tears the
// connection down after saving the held checkpoint, so the failed records
// replay on the next connect.
type Subscriber struct {
	url         string
	handler     domain.ChangeHandler
	checkpoints domain.CheckpointRepository
	cfg         SubscriberConfig
	logger      *slog.Logger
}

// NewSubscriber creates a stream subscriber.
func NewSubscriber(
	streamURL string,
	handler domain.ChangeHandler,
	checkpoints domain.CheckpointRepository,
	cfg SubscriberConfig,
	logger *slog.Logger,
) *Subscriber {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = reconnectBackoff
	}
	return &Subscriber{
		url:         streamURL,
		handler:     handler,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      logger.With("consumer", cfg.Name),
	}
}

// Start connects to the stream and processes records until the context is
// cancelled. It automatically reconnects on transient errors, resuming from
// the persisted checkpoint.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("stream connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.cfg.ReconnectBackoff):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) string {
	u, _ := url.Parse(s.url)
	q := u.Query()
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	checkpoint, err := s.checkpoints.GetCheckpoint(ctx, s.cfg.Name)
	if err != nil {
		s.logger.Warn("failed to load checkpoint, starting from the beginning", "error", err)
	}

	wsURL := s.buildURL(checkpoint)
	s.logger.Info("connecting to change stream", "url", wsURL, "checkpoint", checkpoint)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	msgs := make(chan []byte, s.cfg.BatchSize)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- message:
			case <-ctx.Done():
				return
			}
		}
	}()

	flush := time.NewTicker(s.cfg.FlushInterval)
	defer flush.Stop()

	batch := make([]*domain.ChangeRecord, 0, s.cfg.BatchSize)
	pending := checkpoint
	lastSave := time.Now()

	saveCheckpoint := func() {
		if pending <= checkpoint {
			return
		}
		// The final save on teardown must still go through after ctx is
		// cancelled, or up to checkpointSaveInterval of progress is refetched
		// on every restart.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.checkpoints.UpdateCheckpoint(saveCtx, s.cfg.Name, pending); err != nil {
			s.logger.Error("failed to save checkpoint", "seq", pending, "error", err)
			return
		}
		checkpoint = pending
		lastSave = time.Now()
	}
	defer saveCheckpoint()

	dispatch := func() error {
		if len(batch) == 0 {
			return nil
		}
		report := s.processBatch(ctx, batch)
		size := len(batch)
		batch = batch[:0]

		if seq := report.CheckpointSeq(); seq > pending {
			pending = seq
		}
		// A transient failure must be redelivered, and the broadcaster only
		// replays on connect: save the held checkpoint and tear the
		// connection down so the next dial resumes from it.
		if report.Retryable() {
			saveCheckpoint()
			return fmt.Errorf("batch of %d needs redelivery, resuming from seq %d", size, checkpoint)
		}
		if time.Since(lastSave) >= checkpointSaveInterval {
			saveCheckpoint()
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("read message: %w", err)

		case message := <-msgs:
			record, err := DecodeRecord(message)
			if err != nil {
				// Unrecognized shapes are dropped at the boundary.
				s.logger.Error("failed to decode change record", "error", err)
				continue
			}
			if record.Seq <= checkpoint {
				continue
			}
			batch = append(batch, record)
			if len(batch) >= s.cfg.BatchSize {
				if err := dispatch(); err != nil {
					return err
				}
			}

		case <-flush.C:
			if err := dispatch(); err != nil {
				return err
			}
		}
	}
}

// processBatch dispatches each record of one delivery batch independently and
// in parallel, each with its own timeout. Failures are caught, logged and
// collected into the report; no error escapes a record's task.
func (s *Subscriber) processBatch(ctx context.Context, batch []*domain.ChangeRecord) *domain.BatchReport {
	report := &domain.BatchReport{Results: make([]domain.RecordResult, len(batch))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, record := range batch {
		g.Go(func() error {
			recordCtx, cancel := context.WithTimeout(gctx, s.cfg.RecordTimeout)
			defer cancel()

			err := s.handler.HandleChange(recordCtx, record)
			result := domain.RecordResult{Seq: record.Seq, Key: record.Key(), Err: err}
			if err != nil {
				result.Dropped = domain.IsPermanentRecordError(err)
				s.logger.Error("change record failed",
					"record", record.Key(),
					"dropped", result.Dropped,
					"error", err,
				)
			}
			report.Results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	if failed := report.Failed(); len(failed) > 0 {
		s.logger.Warn("batch completed with failures",
			"batch_size", len(batch),
			"failed", len(failed),
			"checkpoint_seq", report.CheckpointSeq(),
		)
	}
	return report
}
