package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackmichael/feed-fanout/internal/auth"
	"github.com/blackmichael/feed-fanout/internal/config"
	"github.com/blackmichael/feed-fanout/internal/domain"
	"github.com/blackmichael/feed-fanout/internal/httpserver"
	"github.com/blackmichael/feed-fanout/internal/sqlite"
	"github.com/blackmichael/feed-fanout/internal/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The repository implements every store port against one database.
	repo, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()
	logger.Info("store opened", "path", cfg.DatabasePath)

	fanout := domain.NewFanoutWriter(repo, repo, repo, repo, domain.FanoutConfig{
		FollowerThreshold: cfg.FanoutThreshold,
		Retention:         cfg.FeedRetention,
	}, logger)
	reconciler := domain.NewCounterReconciler(repo, repo, repo, logger)
	reader := domain.NewFeedReader(repo, repo, logger)
	marker := domain.NewReadMarker(repo, logger)
	verifier := auth.NewVerifier(cfg.AuthSecret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The fan-out writer and the counter reconciler run as independent
	// consumers of the same stream, each with its own checkpoint.
	subscriberCfg := stream.SubscriberConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		RecordTimeout: cfg.RecordTimeout,
	}
	for name, handler := range map[string]domain.ChangeHandler{
		"fanout":   fanout,
		"counters": reconciler,
	} {
		consumerCfg := subscriberCfg
		consumerCfg.Name = name
		subscriber := stream.NewSubscriber(cfg.StreamURL, handler, repo, consumerCfg, logger)
		go func() {
			if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("stream subscriber exited with error", "consumer", consumerCfg.Name, "error", err)
			}
		}()
	}

	go domain.RunFeedItemCleanup(ctx, repo, cfg.CleanupInterval, logger)

	broadcaster := stream.NewBroadcaster(repo, logger)
	server := httpserver.NewServer(cfg.Port, reader, marker, verifier, broadcaster, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "stream_url", cfg.StreamURL)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
