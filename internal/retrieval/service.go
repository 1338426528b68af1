package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"podrag/features/episode"
	"podrag/internal/text"
)

// Turn is one prior exchange in a conversation. Role is "user" or "model".
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchResult is one passage retrieved from the vector index.
type SearchResult struct {
	Content     string  `json:"content"`
	Score       float32 `json:"score"`
	EpisodeID   string  `json:"episodeId,omitempty"`
	EpisodeDate string  `json:"episodeDate,omitempty"`
	Title       string  `json:"title,omitempty"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]int, error)
}

type Completer interface {
	Complete(ctx context.Context, system string, history []Turn, message string) (string, error)
}

const systemPrompt = `You are an assistant that answers questions about a podcast.
Use the relevant excerpts from podcast episodes to give a complete, conversational answer.
Each excerpt is prefixed with its episode date; use it to put your answer in temporal context.
Do not simply repeat the raw excerpt text.
If no relevant information is available, say that you could not find it in the podcast.
Be friendly and engaging.`

const noContextInstruction = "No relevant excerpts were found in the indexed episodes for this question. " +
	"Tell the user you could not find the information in the podcast, and answer from general knowledge only if clearly labelled as such."

// datePrefixSep joins an episode date to its passage text so temporal
// context survives into the prompt.
const datePrefixSep = " – "

type Config struct {
	TopK               int
	TopN               int
	HistoryTokenBudget int
}

// Service answers questions over the indexed transcript corpus. It holds
// only clients and configuration: every call assembles its retrieval and
// chat state from scratch, so concurrent calls share nothing mutable and
// always observe the current persisted index.
type Service struct {
	embedder  Embedder
	store     VectorStore
	reranker  Reranker
	completer Completer
	episodes  episode.Repository
	logger    *QueryLogger
	cfg       Config
}

func NewService(e Embedder, s VectorStore, r Reranker, c Completer, repo episode.Repository, l *QueryLogger, cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	if cfg.HistoryTokenBudget <= 0 {
		cfg.HistoryTokenBudget = 3000
	}
	return &Service{embedder: e, store: s, reranker: r, completer: c, episodes: repo, logger: l, cfg: cfg}
}

// Query retrieves, reranks and assembles context for the question, then asks
// the completion model once. It always produces a textual answer when the
// services are reachable, even with zero retrieved candidates.
func (s *Service) Query(ctx context.Context, question string, history []Turn) (string, error) {
	start := time.Now()

	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embed question: %w", err)
	}

	candidates, err := s.store.Search(ctx, vec, s.cfg.TopK)
	if err != nil {
		return "", fmt.Errorf("vector search: %w", err)
	}

	kept := candidates
	if len(candidates) > 0 && s.reranker != nil {
		docs := make([]string, len(candidates))
		for i, c := range candidates {
			docs[i] = c.Content
		}

		indices, err := s.reranker.Rerank(ctx, question, docs, s.cfg.TopN)
		if err != nil {
			return "", fmt.Errorf("rerank: %w", err)
		}

		kept = make([]SearchResult, 0, len(indices))
		for _, idx := range indices {
			if idx < len(candidates) {
				kept = append(kept, candidates[idx])
			}
		}
	} else if len(kept) > s.cfg.TopN {
		kept = kept[:s.cfg.TopN]
	}

	message := buildMessage(question, kept)
	trimmed := TrimHistory(history, s.cfg.HistoryTokenBudget)

	answer, err := s.completer.Complete(ctx, systemPrompt, trimmed, message)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:      question,
			NumResults: len(kept),
			Duration:   time.Since(start),
		})
	}

	return answer, nil
}

func buildMessage(question string, passages []SearchResult) string {
	var sb strings.Builder
	if len(passages) == 0 {
		sb.WriteString(noContextInstruction)
	} else {
		sb.WriteString("Excerpts from podcast episodes:\n")
		for _, p := range passages {
			sb.WriteString("\n")
			if p.EpisodeDate != "" {
				sb.WriteString(p.EpisodeDate)
				sb.WriteString(datePrefixSep)
			}
			sb.WriteString(p.Content)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(question)
	return sb.String()
}

// TrimHistory drops the oldest turns until the remaining conversation fits
// the token budget.
func TrimHistory(history []Turn, budget int) []Turn {
	total := 0
	for _, t := range history {
		total += text.EstimateTokens(t.Content)
	}
	i := 0
	for i < len(history) && total > budget {
		total -= text.EstimateTokens(history[i].Content)
		i++
	}
	return history[i:]
}

// episode date parsing accepts the formats callers commonly send.
var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
}

// ParseDate converts a caller-supplied date string into a time.Time.
func ParseDate(input string) (time.Time, error) {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, input); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", input)
}

// GetEpisodeInfo looks up the episode published on the given date. A miss is
// reported as episode.ErrNotFound, not a hard failure.
func (s *Service) GetEpisodeInfo(ctx context.Context, date string) (*episode.Episode, error) {
	parsed, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.episodes.GetByDate(ctx, parsed)
}

const maxListRangeDays = 366

// ListEpisodes returns episodes published within [start, end] inclusive,
// ascending by date. An empty end defaults to today, an empty start to 90
// days before the end; ranges longer than twelve months are rejected.
func (s *Service) ListEpisodes(ctx context.Context, start, end string) ([]episode.Episode, error) {
	endDate := time.Now()
	if end != "" {
		parsed, err := ParseDate(end)
		if err != nil {
			return nil, fmt.Errorf("invalid end date: %w", err)
		}
		endDate = parsed
	}

	startDate := endDate.AddDate(0, 0, -90)
	if start != "" {
		parsed, err := ParseDate(start)
		if err != nil {
			return nil, fmt.Errorf("invalid start date: %w", err)
		}
		startDate = parsed
	}

	if startDate.After(endDate) {
		return nil, fmt.Errorf("start date %s is after end date %s",
			startDate.Format("2006-01-02"), endDate.Format("2006-01-02"))
	}
	if endDate.Sub(startDate) > maxListRangeDays*24*time.Hour {
		return nil, fmt.Errorf("date range cannot exceed 12 months")
	}

	return s.episodes.ListByDateRange(ctx, startDate, endDate)
}
