package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"podrag/features/episode"
	"podrag/internal/adapter/whisper"
	"podrag/internal/audio"
	"podrag/internal/config"
	"podrag/internal/feed"
	"podrag/internal/middleware"
)

type FeedSource interface {
	Fetch(ctx context.Context) ([]feed.Item, error)
}

type Downloader interface {
	Download(ctx context.Context, name, url string) (path string, size int64, err error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
	MaxBytes() int64
}

type Segmenter interface {
	ProbeDuration(ctx context.Context, source string) (float64, error)
	Extract(ctx context.Context, source string, seg audio.Segment, dest string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// TranscribedEvent is published on config.TopicEpisodeTranscribed after an
// episode's transcript has been persisted.
type TranscribedEvent struct {
	EpisodeID     string `json:"episode_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Service acquires episode audio from the feed and produces transcripts.
// One failing episode never aborts the batch; its transcript stays empty so
// the next run retries it.
type Service struct {
	repo           episode.Repository
	source         FeedSource
	downloader     Downloader
	transcriber    Transcriber
	segmenter      Segmenter
	publisher      EventPublisher
	segmentSeconds int
	retryAttempts  int
}

func NewService(repo episode.Repository, source FeedSource, d Downloader, t Transcriber, s Segmenter, pub EventPublisher, segmentSeconds, retryAttempts int) *Service {
	if segmentSeconds <= 0 {
		segmentSeconds = 600
	}
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	return &Service{
		repo:           repo,
		source:         source,
		downloader:     d,
		transcriber:    t,
		segmenter:      s,
		publisher:      pub,
		segmentSeconds: segmentSeconds,
		retryAttempts:  retryAttempts,
	}
}

// Run fetches the feed and transcribes up to max not-yet-transcribed
// episodes, newest first. Episodes that already carry a transcript are
// skipped without contacting the transcription service.
func (s *Service) Run(ctx context.Context, max int) error {
	items, err := s.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}
	slog.InfoContext(ctx, "feed fetched", "episodes", len(items))

	processed := 0
	for _, item := range items {
		if processed >= max {
			break
		}

		handled, err := s.processItem(ctx, item)
		if err != nil {
			slog.ErrorContext(ctx, "episode processing failed",
				"episode_id", episode.IDForDate(item.PublishedAt), "title", item.Title, "error", err)
			// Per-episode isolation: move on to the next one.
			continue
		}
		if handled {
			processed++
		}
	}

	slog.InfoContext(ctx, "ingestion run complete", "transcribed", processed)
	return nil
}

// processItem returns true when the episode was actually transcribed in this
// run, false when it was skipped.
func (s *Service) processItem(ctx context.Context, item feed.Item) (bool, error) {
	id := episode.IDForDate(item.PublishedAt)

	existing, err := s.repo.Get(ctx, id)
	if err != nil && !errors.Is(err, episode.ErrNotFound) {
		return false, err
	}

	if existing != nil {
		if existing.Status != episode.StatusPending {
			return false, nil
		}
		// Same date, different episode: the date-derived key admits one
		// episode per day, so the newcomer is skipped, never overwritten.
		if item.GUID != "" && existing.GUID != "" && existing.GUID != item.GUID {
			slog.WarnContext(ctx, "second episode on an already-stored date, skipping",
				"episode_id", id, "stored_guid", existing.GUID, "new_guid", item.GUID)
			return false, nil
		}
	} else {
		ep := &episode.Episode{
			ID:            id,
			Title:         item.Title,
			Link:          item.Link,
			Description:   item.Description,
			GUID:          item.GUID,
			Duration:      item.Duration,
			EpisodeNumber: item.EpisodeNumber,
			AudioURL:      item.AudioURL,
			PublishedAt:   item.PublishedAt,
		}
		if err := s.repo.Create(ctx, ep); err != nil {
			return false, fmt.Errorf("create episode: %w", err)
		}
	}

	path, size, err := s.downloader.Download(ctx, id, item.AudioURL)
	if err != nil {
		return false, fmt.Errorf("download audio: %w", err)
	}
	defer s.cleanup(path)

	var transcript string
	if size < s.transcriber.MaxBytes() {
		transcript, err = s.transcribeWithRetry(ctx, path)
	} else {
		slog.InfoContext(ctx, "audio exceeds upload limit, segmenting",
			"episode_id", id, "size", size)
		transcript, err = s.transcribeSegmented(ctx, id, path)
	}
	if err != nil {
		if errors.Is(err, whisper.ErrPayloadTooLarge) {
			slog.ErrorContext(ctx, "segment still exceeds upload limit, skipping episode", "episode_id", id)
			return false, nil
		}
		return false, fmt.Errorf("transcribe: %w", err)
	}

	if err := s.repo.SetTranscript(ctx, id, transcript); err != nil {
		return false, fmt.Errorf("store transcript: %w", err)
	}
	slog.InfoContext(ctx, "episode transcribed", "episode_id", id, "transcript_len", len(transcript))

	s.publishTranscribed(ctx, id)
	return true, nil
}

// transcribeSegmented splits the audio into fixed-duration segments,
// transcribes them concurrently, and merges the results in temporal order.
// Any segment failure discards all partial results.
func (s *Service) transcribeSegmented(ctx context.Context, id, path string) (string, error) {
	duration, err := s.segmenter.ProbeDuration(ctx, path)
	if err != nil {
		return "", err
	}

	plan := audio.Plan(duration, s.segmentSeconds)
	parts := make([]string, len(plan))
	errs := make([]error, len(plan))

	var segmentPaths []string
	defer func() {
		for _, p := range segmentPaths {
			s.cleanup(p)
		}
	}()

	// In-flight goroutines must finish before the deferred cleanup removes
	// their segment files, so an extract failure joins errs instead of
	// returning early.
	var wg sync.WaitGroup
	for _, seg := range plan {
		dest := fmt.Sprintf("%s_segment_%d.mp3", strings.TrimSuffix(path, filepath.Ext(path)), seg.Index)
		segmentPaths = append(segmentPaths, dest)

		if err := s.segmenter.Extract(ctx, path, seg, dest); err != nil {
			errs[seg.Index] = err
			break
		}

		wg.Add(1)
		go func(seg audio.Segment, dest string) {
			defer wg.Done()
			parts[seg.Index], errs[seg.Index] = s.transcribeWithRetry(ctx, dest)
		}(seg, dest)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return "", err
		}
	}

	return strings.Join(parts, " "), nil
}

func (s *Service) transcribeWithRetry(ctx context.Context, path string) (string, error) {
	var transcript string
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.retryAttempts-1))

	err := backoff.Retry(func() error {
		var err error
		transcript, err = s.transcriber.Transcribe(ctx, path)
		if errors.Is(err, whisper.ErrPayloadTooLarge) {
			// No point retrying an oversized payload.
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))

	return transcript, err
}

func (s *Service) publishTranscribed(ctx context.Context, id string) {
	if s.publisher == nil {
		return
	}

	payload, _ := json.Marshal(TranscribedEvent{
		EpisodeID:     id,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err := s.publisher.Publish(config.TopicEpisodeTranscribed, payload); err != nil {
		// The reconcile sweep picks the episode up later; the event is an
		// optimization, not the source of truth.
		slog.WarnContext(ctx, "failed to publish transcribed event", "episode_id", id, "error", err)
	} else {
		slog.InfoContext(ctx, "published transcribed event", "episode_id", id)
	}
}

func (s *Service) cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove temp audio", "path", path, "error", err)
	}
}
