package stream

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	tailPageSize     = 100
	tailPollInterval = 250 * time.Millisecond
	writeTimeout     = 10 * time.Second
)

// Broadcaster serves the durable changelog over websocket. Each connection
// tails the log from the client's cursor, so a consumer reconnecting with an
// older sequence replays everything it missed — the log, not the socket, is
// the source of truth.
type Broadcaster struct {
	changes  domain.ChangelogRepository
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewBroadcaster creates a changelog broadcaster.
func NewBroadcaster(changes domain.ChangelogRepository, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		changes: changes,
		logger:  logger,
	}
}

// ServeHTTP upgrades the connection and streams change records with
// seq > cursor in sequence order, polling the log for new records.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cursor := int64(0)
	if c := r.URL.Query().Get("cursor"); c != "" {
		parsed, err := strconv.ParseInt(c, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	b.logger.Info("stream consumer connected", "remote", r.RemoteAddr, "cursor", cursor)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read side only exists to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := b.tail(ctx, conn, cursor); err != nil && ctx.Err() == nil {
		b.logger.Error("stream consumer disconnected with error", "remote", r.RemoteAddr, "error", err)
	}
}

func (b *Broadcaster) tail(ctx context.Context, conn *websocket.Conn, cursor int64) error {
	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		records, err := b.changes.ListChangesAfter(ctx, cursor, tailPageSize)
		if err != nil {
			return err
		}

		for i := range records {
			data, err := EncodeRecord(&records[i])
			if err != nil {
				// A record that cannot be encoded is skipped, not fatal.
				b.logger.Error("failed to encode change record", "seq", records[i].Seq, "error", err)
				cursor = records[i].Seq
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
			cursor = records[i].Seq
		}

		if len(records) < tailPageSize {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}
