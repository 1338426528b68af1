package stats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"podrag/features/episode"
)

type CorpusRepo interface {
	CountByStatus(ctx context.Context) (map[episode.Status]int, error)
	PublishedBounds(ctx context.Context) (earliest, latest time.Time, err error)
}

type PassageCounter interface {
	CountPassages(ctx context.Context) (int, error)
}

// Handler serves GET /stats, a snapshot of how much of the feed has been
// ingested and indexed.
type Handler struct {
	repo  CorpusRepo
	store PassageCounter
}

func NewHandler(repo CorpusRepo, store PassageCounter) *Handler {
	return &Handler{repo: repo, store: store}
}

type Response struct {
	Episodes       map[string]int `json:"episodes"`
	TotalEpisodes  int            `json:"total_episodes"`
	EarliestDate   string         `json:"earliest_date,omitempty"`
	LatestDate     string         `json:"latest_date,omitempty"`
	EpisodesPerMon float64        `json:"episodes_per_month"`
	Passages       int            `json:"passages"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	counts, err := h.repo.CountByStatus(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count episodes", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := Response{Episodes: map[string]int{}}
	for status, n := range counts {
		resp.Episodes[string(status)] = n
		resp.TotalEpisodes += n
	}

	earliest, latest, err := h.repo.PublishedBounds(ctx)
	if err != nil && !errors.Is(err, episode.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to read publish bounds", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !earliest.IsZero() {
		resp.EarliestDate = earliest.Format("2006-01-02")
		resp.LatestDate = latest.Format("2006-01-02")
		months := latest.Sub(earliest).Hours() / 24 / 30.44
		if months < 1 {
			months = 1
		}
		resp.EpisodesPerMon = float64(resp.TotalEpisodes) / months
	}

	passages, err := h.store.CountPassages(ctx)
	if err != nil {
		// The vector store being down should not hide the episode stats.
		slog.WarnContext(ctx, "failed to count passages", "error", err)
		passages = -1
	}
	resp.Passages = passages

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode stats response", "error", err)
	}
}
