package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podrag/internal/app"
	"podrag/internal/auth"
	"podrag/internal/config"
	"podrag/internal/logger"

	"github.com/nsqio/go-nsq"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier := loadVerifier(cfg.PublicKeyPath)

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	application, err := app.New(ctx, cfg, deps, verifier)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	if cfg.EnableIndexConsumer {
		consumer, err := nsq.NewConsumer(config.TopicEpisodeTranscribed, "indexer", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "error", err)
			os.Exit(1)
		}
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			return application.IndexerConsumer.HandleMessage(m)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
		} else {
			slog.Info("NSQ indexer consumer connected", "topic", config.TopicEpisodeTranscribed)
		}
		defer consumer.Stop()
	}

	if cfg.EnableIngestWorker {
		go runIngestLoop(ctx, cfg, application)
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, running workers only")
		<-ctx.Done()
		return
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// loadVerifier reads the RS256 public key used to gate /mcp. A missing key
// file is tolerated so local development works out of the box, but the
// resulting open endpoint is announced as loudly as slog allows.
func loadVerifier(path string) *auth.Verifier {
	pem, err := os.ReadFile(path) // #nosec G304 -- path comes from config, not user input
	if err != nil {
		slog.Warn("no public key found, running WITHOUT authentication; anyone can query the index",
			"path", path, "error", err)
		return nil
	}

	verifier, err := auth.NewVerifier(pem)
	if err != nil {
		slog.Error("failed to parse public key", "path", path, "error", err)
		os.Exit(1)
	}
	slog.Info("auth gate enabled", "public_key", path)
	return verifier
}

// runIngestLoop periodically pulls the feed and indexes anything transcribed
// but not yet in the vector store. The reconcile pass also catches episodes
// whose transcribed event was lost.
func runIngestLoop(ctx context.Context, cfg *config.Config, application *app.App) {
	interval := time.Duration(cfg.IngestIntervalMins) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce := func() {
		if err := application.IngestService.Run(ctx, cfg.EpisodesPerRun); err != nil {
			slog.Error("ingest run failed", "error", err)
		}
		if err := application.IndexService.Reconcile(ctx); err != nil {
			slog.Error("index reconcile failed", "error", err)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
