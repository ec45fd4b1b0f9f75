package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the engine, loaded from environment
// variables.
type Config struct {
	// Port is the HTTP server port.
	Port int `env:"PORT" envDefault:"3000"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `env:"FEED_DATABASE_PATH" envDefault:"feed-fanout.db"`

	// StreamURL is the websocket endpoint of the change-stream broadcaster.
	// Defaults to the loopback broadcaster served by this process.
	StreamURL string `env:"FEED_STREAM_URL"`

	// AuthSecret signs and verifies bearer tokens for authenticated
	// endpoints.
	AuthSecret string `env:"FEED_AUTH_SECRET,required"`

	// FanoutThreshold is the follower count at or above which posts are
	// served only via the pull path.
	FanoutThreshold int64 `env:"FEED_FANOUT_THRESHOLD" envDefault:"5000"`

	// FeedRetention is how long materialized feed items live before expiry.
	FeedRetention time.Duration `env:"FEED_RETENTION" envDefault:"168h"`

	// CleanupInterval is how often expired feed items are swept.
	CleanupInterval time.Duration `env:"FEED_CLEANUP_INTERVAL" envDefault:"1m"`

	// BatchSize caps one change-stream delivery batch.
	BatchSize int `env:"FEED_STREAM_BATCH_SIZE" envDefault:"25"`

	// FlushInterval bounds how long a partial batch waits before dispatch.
	FlushInterval time.Duration `env:"FEED_STREAM_FLUSH_INTERVAL" envDefault:"1s"`

	// RecordTimeout bounds processing of a single change record.
	RecordTimeout time.Duration `env:"FEED_STREAM_RECORD_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StreamURL == "" {
		cfg.StreamURL = fmt.Sprintf("ws://localhost:%d/v1/stream/subscribe", cfg.Port)
	}
	return cfg, nil
}
