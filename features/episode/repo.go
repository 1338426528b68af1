package episode

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const episodeColumns = `id, title, link, description, guid, duration, episode_number, audio_url, published_at, transcript, status`

func scanEpisode(row interface{ Scan(...any) error }) (*Episode, error) {
	var e Episode
	err := row.Scan(&e.ID, &e.Title, &e.Link, &e.Description, &e.GUID, &e.Duration,
		&e.EpisodeNumber, &e.AudioURL, &e.PublishedAt, &e.Transcript, &e.Status)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresRepo) Create(ctx context.Context, ep *Episode) error {
	query := `INSERT INTO episodes (id, title, link, description, guid, duration, episode_number, audio_url, published_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, ep.ID, ep.Title, ep.Link, ep.Description,
		ep.GUID, ep.Duration, ep.EpisodeNumber, ep.AudioURL, ep.PublishedAt, StatusPending)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE id = $1`
	ep, err := scanEpisode(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ep, err
}

func (r *PostgresRepo) GetByDate(ctx context.Context, date time.Time) (*Episode, error) {
	return r.Get(ctx, IDForDate(date))
}

func (r *PostgresRepo) ListByStatus(ctx context.Context, status Status) ([]Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE status = $1 ORDER BY published_at ASC`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *PostgresRepo) ListByDateRange(ctx context.Context, start, end time.Time) ([]Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes
		WHERE published_at >= $1 AND published_at <= $2 ORDER BY published_at ASC`
	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Episode, error) {
	var episodes []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, *ep)
	}
	return episodes, rows.Err()
}

// SetTranscript stores the merged transcript and advances the episode to
// transcribed in one statement, so a transcript is never observable without
// its matching status.
func (r *PostgresRepo) SetTranscript(ctx context.Context, id, transcript string) error {
	query := `UPDATE episodes SET transcript = $1, status = $2, updated_at = NOW() WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, transcript, StatusTranscribed, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, status Status) error {
	query := `UPDATE episodes SET status = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func (r *PostgresRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM episodes GROUP BY status`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *PostgresRepo) PublishedBounds(ctx context.Context) (time.Time, time.Time, error) {
	query := `SELECT MIN(published_at), MAX(published_at) FROM episodes`
	var earliest, latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query).Scan(&earliest, &latest); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !earliest.Valid || !latest.Valid {
		return time.Time{}, time.Time{}, ErrNotFound
	}
	return earliest.Time, latest.Time, nil
}
