package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"podrag/features/episode"
	"podrag/features/index"
	"podrag/features/ingest"
	"podrag/features/mcp"
	"podrag/features/stats"
	"podrag/internal/adapter/gemini"
	"podrag/internal/adapter/reranker"
	wstore "podrag/internal/adapter/weaviate"
	"podrag/internal/adapter/whisper"
	"podrag/internal/audio"
	"podrag/internal/auth"
	"podrag/internal/config"
	"podrag/internal/feed"
	"podrag/internal/middleware"
	"podrag/internal/retrieval"
	"podrag/internal/worker"
)

type App struct {
	Handler         http.Handler
	IngestService   *ingest.Service
	IndexService    *index.Service
	IndexerConsumer *worker.IndexerConsumer

	port int
}

func New(ctx context.Context, cfg *config.Config, deps *Dependencies, verifier *auth.Verifier) (*App, error) {
	episodeRepo := episode.NewPostgresRepo(deps.DB)
	vecStore := wstore.NewStore(deps.WeaviateClient)

	// Acquisition pipeline
	feedParser := feed.NewParser(cfg.FeedURL)
	downloader := audio.NewDownloader(cfg.AudioDir)
	segmenter := audio.NewSegmenter(cfg.FFmpegBinary, cfg.FFprobeBinary)
	transcriber := whisper.NewClient(cfg.TranscriptionURL, cfg.TranscriptionAPIKey, cfg.TranscriptionModel, cfg.AudioSizeLimitBytes())

	ingestService := ingest.NewService(
		episodeRepo, feedParser, downloader, transcriber, segmenter,
		deps.NSQProducer, cfg.SegmentSeconds, cfg.ServiceRetryAttempts,
	)

	// Indexing pipeline
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder error: %w", err)
	}
	indexService := index.NewService(episodeRepo, embedder, vecStore, cfg.ChunkMaxTokens, cfg.ServiceRetryAttempts)
	indexerConsumer := worker.NewIndexerConsumer(indexService)

	// Query engine
	completer, err := gemini.NewCompleter(ctx, cfg.GeminiAPIKey, cfg.CompletionModel)
	if err != nil {
		return nil, fmt.Errorf("gemini completer error: %w", err)
	}
	rerankerClient := reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	retrievalService := retrieval.NewService(
		embedder, vecStore, rerankerClient, completer, episodeRepo, queryLogger,
		retrieval.Config{
			TopK:               cfg.RetrievalTopK,
			TopN:               cfg.RerankTopN,
			HistoryTokenBudget: cfg.HistoryTokenBudget,
		},
	)

	mcpHandler := mcp.NewHandler(retrievalService)
	statsHandler := stats.NewHandler(episodeRepo, vecStore)
	authGate := auth.Middleware(verifier)

	mux := http.NewServeMux()
	mux.Handle("/mcp", middleware.CorrelationID(authGate(mcpHandler)))
	mux.Handle("GET /stats", middleware.CorrelationID(statsHandler))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:         mux,
		IngestService:   ingestService,
		IndexService:    indexService,
		IndexerConsumer: indexerConsumer,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
