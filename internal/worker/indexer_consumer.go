package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"podrag/features/episode"
	"podrag/features/ingest"
	"podrag/internal/middleware"
)

type Indexer interface {
	IndexByID(ctx context.Context, id string) error
}

// IndexerConsumer reacts to transcribed-episode events by embedding and
// upserting that episode's passages immediately, instead of waiting for the
// next reconcile sweep.
type IndexerConsumer struct {
	indexer Indexer
}

func NewIndexerConsumer(indexer Indexer) *IndexerConsumer {
	return &IndexerConsumer{indexer: indexer}
}

func (h *IndexerConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var event ingest.TranscribedEvent
	if err := json.Unmarshal(m.Body, &event); err != nil {
		// Poison pill: invalid JSON, don't retry.
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if event.EpisodeID == "" {
		slog.Error("transcribed event missing episode id, dropping")
		return nil
	}

	ctx := context.Background()
	if event.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, event.CorrelationID)
	}

	err := h.indexer.IndexByID(ctx, event.EpisodeID)
	if errors.Is(err, episode.ErrNotFound) || errors.Is(err, episode.ErrInvalidState) {
		// Nothing a redelivery can fix; the reconcile sweep owns repair.
		slog.ErrorContext(ctx, "unindexable episode event dropped", "episode_id", event.EpisodeID, "error", err)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "indexing from event failed, will retry", "episode_id", event.EpisodeID, "error", err)
		return err
	}
	return nil
}
