package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

var _ repository.ListRepository = (*DB)(nil)

// entryJoinSelect reads a list entry together with its catalog row.
const entryJoinSelect = `SELECT
	us.user_id, us.series_id, us.status, us.note, us.rank_slot, us.rating, us.added_at, us.updated_at,
	s.id, s.title, s.year, s.synopsis, s.genres, s.poster_url, s.seasons, s.episodes,
	s.episode_duration, s.created_at, s.updated_at
	FROM user_series us
	JOIN series s ON s.id = us.series_id`

func scanEntry(row rowScanner) (*model.UserSeries, error) {
	var (
		e      model.UserSeries
		s      model.Series
		slot   sql.NullInt64
		rating sql.NullInt64
		genres string
	)
	if err := row.Scan(
		&e.UserID, &e.SeriesID, &e.Status, &e.Note, &slot, &rating, &e.AddedAt, &e.UpdatedAt,
		&s.ID, &s.Title, &s.Year, &s.Synopsis, &genres, &s.PosterURL, &s.Seasons, &s.Episodes,
		&s.EpisodeDuration, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.RankSlot = intPtr(slot)
	e.Rating = intPtr(rating)

	if err := decodeGenres(&s, genres); err != nil {
		return nil, err
	}
	e.Series = &s
	return &e, nil
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// AddEntry puts a series on a user's list.
// Returns apperror.ErrConflict if it is already there and
// apperror.ErrNotFound if the series is not in the catalog.
func (db *DB) AddEntry(ctx context.Context, entry *model.UserSeries) error {
	now := time.Now().UTC()
	entry.AddedAt = now
	entry.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_series (user_id, series_id, status, note, rank_slot, rating, added_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?, ?)`,
		entry.UserID, entry.SeriesID, string(entry.Status), entry.Note, nullInt(entry.Rating),
		entry.AddedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("series is already on your list")
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("series", entry.SeriesID)
		}
		return fmt.Errorf("sqlite: adding %s to list of %s: %w", entry.SeriesID, entry.UserID, err)
	}
	entry.RankSlot = nil
	return nil
}

// GetEntry returns one list entry with its series.
func (db *DB) GetEntry(ctx context.Context, userID, seriesID string) (*model.UserSeries, error) {
	e, err := scanEntry(db.conn.QueryRowContext(ctx,
		entryJoinSelect+` WHERE us.user_id = ? AND us.series_id = ?`, userID, seriesID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("list entry", seriesID)
		}
		return nil, fmt.Errorf("sqlite: getting list entry %s/%s: %w", userID, seriesID, err)
	}
	return e, nil
}

// UpdateEntry saves status, note and rating. Ranking has its own methods.
func (db *DB) UpdateEntry(ctx context.Context, entry *model.UserSeries) error {
	entry.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE user_series SET status = ?, note = ?, rating = ?, updated_at = ?
		 WHERE user_id = ? AND series_id = ?`,
		string(entry.Status), entry.Note, nullInt(entry.Rating), entry.UpdatedAt,
		entry.UserID, entry.SeriesID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating list entry %s/%s: %w", entry.UserID, entry.SeriesID, err)
	}
	return expectOneRow(result, "list entry", entry.SeriesID)
}

// RemoveEntry deletes a series from a user's list.
func (db *DB) RemoveEntry(ctx context.Context, userID, seriesID string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_series WHERE user_id = ? AND series_id = ?`, userID, seriesID)
	if err != nil {
		return fmt.Errorf("sqlite: removing list entry %s/%s: %w", userID, seriesID, err)
	}
	return expectOneRow(result, "list entry", seriesID)
}

// ListEntries returns a user's list, most recently added first. An empty
// status returns every entry.
func (db *DB) ListEntries(ctx context.Context, userID string, status model.Status) ([]model.UserSeries, error) {
	query := entryJoinSelect + ` WHERE us.user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND us.status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY us.added_at DESC, s.title`

	return db.queryEntries(ctx, query, args...)
}

// SetRankSlot puts seriesID in the given ranking slot.
//
// Both moves happen in one transaction: whichever series held the slot is
// pushed out of the ranking, and if seriesID was ranked elsewhere its old
// slot is freed. The unique (user_id, rank_slot) index is never violated in
// between because the old holder is cleared first.
func (db *DB) SetRankSlot(ctx context.Context, userID, seriesID string, slot int) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		if _, err := tx.ExecContext(ctx,
			`UPDATE user_series SET rank_slot = NULL, updated_at = ?
			 WHERE user_id = ? AND rank_slot = ? AND series_id <> ?`,
			now, userID, slot, seriesID,
		); err != nil {
			return fmt.Errorf("sqlite: clearing rank slot %d: %w", slot, err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE user_series SET rank_slot = ?, updated_at = ?
			 WHERE user_id = ? AND series_id = ?`,
			slot, now, userID, seriesID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: setting rank slot %d: %w", slot, err)
		}
		return expectOneRow(result, "list entry", seriesID)
	})
}

// ClearRankSlot empties a ranking slot. Clearing an empty slot is a no-op.
func (db *DB) ClearRankSlot(ctx context.Context, userID string, slot int) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE user_series SET rank_slot = NULL, updated_at = ?
		 WHERE user_id = ? AND rank_slot = ?`,
		time.Now().UTC(), userID, slot,
	)
	if err != nil {
		return fmt.Errorf("sqlite: clearing rank slot %d: %w", slot, err)
	}
	return nil
}

// Ranking returns the user's ranked entries ordered by slot.
func (db *DB) Ranking(ctx context.Context, userID string) ([]model.UserSeries, error) {
	return db.queryEntries(ctx,
		entryJoinSelect+` WHERE us.user_id = ? AND us.rank_slot IS NOT NULL ORDER BY us.rank_slot`,
		userID,
	)
}

func (db *DB) queryEntries(ctx context.Context, query string, args ...any) ([]model.UserSeries, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing entries: %w", err)
	}
	defer rows.Close()

	entries := []model.UserSeries{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning entry row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating entries: %w", err)
	}
	return entries, nil
}

// expectOneRow turns "zero rows affected" into a NotFound error.
func expectOneRow(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
