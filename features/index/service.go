package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"podrag/features/episode"
	"podrag/internal/text"
	"podrag/internal/vector"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	UpsertPassages(ctx context.Context, passages []vector.Passage) error
	DeleteByEpisode(ctx context.Context, episodeID string) error
}

// Service turns stored transcripts into embedded passages in the vector
// index. All writes are idempotent: passage IDs are stable, so retrying a
// partially indexed episode overwrites rather than duplicates.
type Service struct {
	repo          episode.Repository
	embedder      Embedder
	store         VectorStore
	maxTokens     int
	retryAttempts int
}

func NewService(repo episode.Repository, e Embedder, s VectorStore, maxTokens, retryAttempts int) *Service {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	return &Service{repo: repo, embedder: e, store: s, maxTokens: maxTokens, retryAttempts: retryAttempts}
}

// Reconcile indexes every transcribed-but-unindexed episode. One failing
// episode never aborts the sweep.
func (s *Service) Reconcile(ctx context.Context) error {
	episodes, err := s.repo.ListByStatus(ctx, episode.StatusTranscribed)
	if err != nil {
		return fmt.Errorf("list transcribed episodes: %w", err)
	}

	for i := range episodes {
		if err := s.IndexEpisode(ctx, &episodes[i]); err != nil {
			slog.ErrorContext(ctx, "episode indexing failed", "episode_id", episodes[i].ID, "error", err)
		}
	}
	return nil
}

// IndexEpisode chunks, embeds and upserts one episode's transcript, then
// marks the episode indexed. Already-indexed episodes are a no-op. The
// indexed flag is only flipped after every passage is upserted; a mid-run
// failure leaves the episode transcribed so the whole episode is retried.
func (s *Service) IndexEpisode(ctx context.Context, ep *episode.Episode) error {
	if ep.Status == episode.StatusIndexed {
		return nil
	}

	if ep.Transcript == "" {
		// Status and transcript disagree; repair instead of guessing. Any
		// passages already in the index are orphans of a bad run.
		slog.ErrorContext(ctx, "episode has no transcript but claims to be transcribed, repairing to pending",
			"episode_id", ep.ID, "status", ep.Status)
		if err := s.store.DeleteByEpisode(ctx, ep.ID); err != nil {
			slog.WarnContext(ctx, "failed to drop orphaned passages", "episode_id", ep.ID, "error", err)
		}
		if err := s.repo.UpdateStatus(ctx, ep.ID, episode.StatusPending); err != nil {
			return fmt.Errorf("repair invalid state: %w", err)
		}
		return fmt.Errorf("%w: %s", episode.ErrInvalidState, ep.ID)
	}

	chunks := text.ChunkTranscript(ep.Transcript, s.maxTokens)
	if len(chunks) == 0 {
		return fmt.Errorf("transcript for %s produced no chunks", ep.ID)
	}

	date := ep.PublishedAt.Format("2006-01-02")
	passages := make([]vector.Passage, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := s.embedWithRetry(ctx, chunk)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		passages = append(passages, vector.Passage{
			ID:          vector.PassageID(ep.ID, i),
			EpisodeID:   ep.ID,
			EpisodeDate: date,
			Title:       ep.Title,
			ChunkIndex:  i,
			Content:     chunk,
			Vector:      vec,
		})
	}

	if err := s.store.UpsertPassages(ctx, passages); err != nil {
		return fmt.Errorf("upsert passages: %w", err)
	}

	if err := s.repo.UpdateStatus(ctx, ep.ID, episode.StatusIndexed); err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}

	slog.InfoContext(ctx, "episode indexed", "episode_id", ep.ID, "passages", len(passages))
	return nil
}

// IndexByID loads the episode first; used by the event consumer.
func (s *Service) IndexByID(ctx context.Context, id string) error {
	ep, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.IndexEpisode(ctx, ep)
}

func (s *Service) embedWithRetry(ctx context.Context, chunk string) ([]float32, error) {
	var vec []float32
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.retryAttempts-1))

	err := backoff.Retry(func() error {
		var err error
		vec, err = s.embedder.Embed(ctx, chunk)
		return err
	}, backoff.WithContext(policy, ctx))

	return vec, err
}
