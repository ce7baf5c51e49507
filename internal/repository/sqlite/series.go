package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

var _ repository.SeriesRepository = (*DB)(nil)

const seriesColumns = `id, title, year, synopsis, genres, poster_url, seasons, episodes,
	episode_duration, created_at, updated_at`

func scanSeries(row rowScanner) (*model.Series, error) {
	var (
		s      model.Series
		genres string
	)
	if err := row.Scan(
		&s.ID, &s.Title, &s.Year, &s.Synopsis, &genres, &s.PosterURL,
		&s.Seasons, &s.Episodes, &s.EpisodeDuration, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeGenres(&s, genres); err != nil {
		return nil, err
	}
	return &s, nil
}

// decodeGenres fills s.Genres from the JSON text column.
func decodeGenres(s *model.Series, raw string) error {
	if err := json.Unmarshal([]byte(raw), &s.Genres); err != nil {
		return fmt.Errorf("decoding genres of %s: %w", s.ID, err)
	}
	if s.Genres == nil {
		s.Genres = []string{}
	}
	return nil
}

// UpsertSeries inserts a catalog entry or refreshes an existing one.
//
// Metadata arrives from several sources (AI search, TMDB, manual entry), so
// an empty incoming field never overwrites a known value: the CASE
// expressions keep the stored column when the new one is blank or zero.
func (db *DB) UpsertSeries(ctx context.Context, series *model.Series) error {
	if series.Genres == nil {
		series.Genres = []string{}
	}
	genres, err := json.Marshal(series.Genres)
	if err != nil {
		return fmt.Errorf("sqlite: encoding genres: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO series (`+seriesColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title            = excluded.title,
			year             = CASE WHEN excluded.year = 0 THEN series.year ELSE excluded.year END,
			synopsis         = CASE WHEN excluded.synopsis = '' THEN series.synopsis ELSE excluded.synopsis END,
			genres           = CASE WHEN excluded.genres = '[]' THEN series.genres ELSE excluded.genres END,
			poster_url       = CASE WHEN excluded.poster_url = '' THEN series.poster_url ELSE excluded.poster_url END,
			seasons          = CASE WHEN excluded.seasons = 0 THEN series.seasons ELSE excluded.seasons END,
			episodes         = CASE WHEN excluded.episodes = 0 THEN series.episodes ELSE excluded.episodes END,
			episode_duration = CASE WHEN excluded.episode_duration = 0 THEN series.episode_duration ELSE excluded.episode_duration END,
			updated_at       = excluded.updated_at`,
		series.ID, series.Title, series.Year, series.Synopsis, string(genres), series.PosterURL,
		series.Seasons, series.Episodes, series.EpisodeDuration, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting series %s: %w", series.ID, err)
	}

	stored, err := db.GetSeries(ctx, series.ID)
	if err != nil {
		return err
	}
	*series = *stored
	return nil
}

// GetSeries retrieves a catalog entry by slug.
func (db *DB) GetSeries(ctx context.Context, id string) (*model.Series, error) {
	s, err := scanSeries(db.conn.QueryRowContext(ctx,
		`SELECT `+seriesColumns+` FROM series WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("series", id)
		}
		return nil, fmt.Errorf("sqlite: getting series %s: %w", id, err)
	}
	return s, nil
}

// SearchSeries matches titles containing query, most recent first.
func (db *DB) SearchSeries(ctx context.Context, query string, limit int) ([]model.Series, error) {
	limit, _ = clampList(limit, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+seriesColumns+` FROM series
		 WHERE title LIKE ? ESCAPE '\'
		 ORDER BY year DESC, title
		 LIMIT ?`,
		likePattern(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching series: %w", err)
	}
	defer rows.Close()

	out := make([]model.Series, 0, limit)
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning series row: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating series: %w", err)
	}
	return out, nil
}
