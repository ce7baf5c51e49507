package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

var _ repository.ActivityRepository = (*DB)(nil)

// activitySelect reads an activity with its author card and the derived
// counters. The single ? is the viewer ID used for liked_by_me; an anonymous
// viewer passes "" which matches no like row.
const activitySelect = `SELECT
	a.id, a.user_id, a.type, a.payload, a.created_at,
	u.name, u.avatar_url, u.is_bot,
	(SELECT COUNT(*) FROM likes l WHERE l.activity_id = a.id),
	(SELECT COUNT(*) FROM comments c WHERE c.activity_id = a.id),
	EXISTS (SELECT 1 FROM likes l WHERE l.activity_id = a.id AND l.user_id = ?)
	FROM activities a
	JOIN users u ON u.id = a.user_id`

func scanActivity(row rowScanner) (*model.Activity, error) {
	var (
		a       model.Activity
		author  model.UserSummary
		payload string
	)
	if err := row.Scan(
		&a.ID, &a.UserID, &a.Type, &payload, &a.CreatedAt,
		&author.Name, &author.AvatarURL, &author.IsBot,
		&a.LikeCount, &a.CommentCount, &a.LikedByMe,
	); err != nil {
		return nil, err
	}
	author.ID = a.UserID
	a.Author = &author
	a.Payload = []byte(payload)
	return &a, nil
}

// CreateActivity inserts a feed entry. A zero CreatedAt is set to now.
func (db *DB) CreateActivity(ctx context.Context, activity *model.Activity) error {
	activity.ID = xid.New().String()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if len(activity.Payload) == 0 {
		activity.Payload = []byte("{}")
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		activity.ID, activity.UserID, string(activity.Type), string(activity.Payload), activity.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", activity.UserID)
		}
		return fmt.Errorf("sqlite: creating activity: %w", err)
	}
	return nil
}

// GetActivity returns one activity as seen by viewerID.
func (db *DB) GetActivity(ctx context.Context, id, viewerID string) (*model.Activity, error) {
	a, err := scanActivity(db.conn.QueryRowContext(ctx,
		activitySelect+` WHERE a.id = ?`, viewerID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("activity", id)
		}
		return nil, fmt.Errorf("sqlite: getting activity %s: %w", id, err)
	}
	return a, nil
}

// DeleteActivity removes an activity; likes and comments cascade.
func (db *DB) DeleteActivity(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM activities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting activity %s: %w", id, err)
	}
	return expectOneRow(result, "activity", id)
}

// ListFeed returns a page of activities, newest first.
func (db *DB) ListFeed(ctx context.Context, q repository.FeedQuery) ([]model.Activity, error) {
	limit, offset := clampList(q.Limit, q.Offset)

	var (
		where []string
		args  = []any{q.ViewerID}
	)
	if q.AuthorID != "" {
		where = append(where, `a.user_id = ?`)
		args = append(args, q.AuthorID)
	}
	if q.FollowingOnly {
		where = append(where,
			`(a.user_id = ? OR a.user_id IN (SELECT followee_id FROM follows WHERE follower_id = ?))`)
		args = append(args, q.ViewerID, q.ViewerID)
	}

	query := activitySelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing feed: %w", err)
	}
	defer rows.Close()

	activities := make([]model.Activity, 0, limit)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning activity row: %w", err)
		}
		activities = append(activities, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating feed: %w", err)
	}
	return activities, nil
}

// Like records userID's like. Liking twice is a no-op.
func (db *DB) Like(ctx context.Context, activityID, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO likes (activity_id, user_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(activity_id, user_id) DO NOTHING`,
		activityID, userID, time.Now().UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("activity", activityID)
		}
		return fmt.Errorf("sqlite: liking activity %s: %w", activityID, err)
	}
	return nil
}

// Unlike removes userID's like. Unliking twice is a no-op.
func (db *DB) Unlike(ctx context.Context, activityID, userID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM likes WHERE activity_id = ? AND user_id = ?`, activityID, userID,
	); err != nil {
		return fmt.Errorf("sqlite: unliking activity %s: %w", activityID, err)
	}
	return nil
}

const commentSelect = `SELECT c.id, c.activity_id, c.user_id, c.text, c.created_at,
	u.name, u.avatar_url, u.is_bot
	FROM comments c
	JOIN users u ON u.id = c.user_id`

func scanComment(row rowScanner) (*model.Comment, error) {
	var (
		c      model.Comment
		author model.UserSummary
	)
	if err := row.Scan(
		&c.ID, &c.ActivityID, &c.UserID, &c.Text, &c.CreatedAt,
		&author.Name, &author.AvatarURL, &author.IsBot,
	); err != nil {
		return nil, err
	}
	author.ID = c.UserID
	c.Author = &author
	return &c, nil
}

// AddComment inserts a comment on an activity.
func (db *DB) AddComment(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, activity_id, user_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		comment.ID, comment.ActivityID, comment.UserID, comment.Text, comment.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("activity", comment.ActivityID)
		}
		return fmt.Errorf("sqlite: adding comment: %w", err)
	}
	return nil
}

// GetComment returns a single comment.
func (db *DB) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(db.conn.QueryRowContext(ctx, commentSelect+` WHERE c.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return c, nil
}

// ListComments returns an activity's comments, oldest first.
func (db *DB) ListComments(ctx context.Context, activityID string) ([]model.Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		commentSelect+` WHERE c.activity_id = ? ORDER BY c.created_at, c.id`, activityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

// DeleteComment removes a comment.
func (db *DB) DeleteComment(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}
	return expectOneRow(result, "comment", id)
}
