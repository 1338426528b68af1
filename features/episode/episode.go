package episode

import (
	"context"
	"errors"
	"time"
)

// Status is the processing state of an episode. Transitions only move
// forward: StatusPending -> StatusTranscribed -> StatusIndexed.
type Status string

const (
	// StatusPending means the episode is known from the feed but has no
	// transcript yet.
	StatusPending Status = "pending"
	// StatusTranscribed means the full transcript is stored but its passages
	// have not been embedded yet.
	StatusTranscribed Status = "transcribed"
	// StatusIndexed means every passage of the transcript has been embedded
	// and upserted into the vector index.
	StatusIndexed Status = "indexed"
)

var (
	ErrNotFound = errors.New("episode not found")
	// ErrInvalidState flags an episode whose status and transcript disagree,
	// e.g. marked indexed while its transcript is empty.
	ErrInvalidState = errors.New("episode in invalid state")
)

// Episode is one unit of podcast content. The ID is the publish date
// (YYYY-MM-DD): the feed publishes at most one episode per day, and a second
// episode observed on an already-stored date is skipped, never overwritten.
type Episode struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Link          string    `json:"link,omitempty"`
	Description   string    `json:"description,omitempty"`
	GUID          string    `json:"guid,omitempty"`
	Duration      string    `json:"duration,omitempty"`
	EpisodeNumber string    `json:"episode_number,omitempty"`
	AudioURL      string    `json:"audio_url"`
	PublishedAt   time.Time `json:"published_date"`
	Transcript    string    `json:"-"`
	Status        Status    `json:"status"`
}

// IDForDate derives the stable episode identifier from a publish date.
func IDForDate(published time.Time) string {
	return published.Format("2006-01-02")
}

// Valid reports whether the stored status is consistent with the transcript.
// An indexed or transcribed episode must carry a non-empty transcript.
func (e *Episode) Valid() bool {
	if e.Status == StatusTranscribed || e.Status == StatusIndexed {
		return e.Transcript != ""
	}
	return e.Transcript == ""
}

type Repository interface {
	Create(ctx context.Context, ep *Episode) error
	Get(ctx context.Context, id string) (*Episode, error)
	GetByDate(ctx context.Context, date time.Time) (*Episode, error)
	ListByStatus(ctx context.Context, status Status) ([]Episode, error)
	ListByDateRange(ctx context.Context, start, end time.Time) ([]Episode, error)
	SetTranscript(ctx context.Context, id, transcript string) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
	PublishedBounds(ctx context.Context) (earliest, latest time.Time, err error)
}
