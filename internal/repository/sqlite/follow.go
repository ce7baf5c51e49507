package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

var _ repository.FollowRepository = (*DB)(nil)

// Follow makes followerID follow followeeID. Following twice is a no-op.
func (db *DB) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return apperror.ValidationFailed("id", "you cannot follow yourself")
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(follower_id, followee_id) DO NOTHING`,
		followerID, followeeID, time.Now().UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", followeeID)
		}
		return fmt.Errorf("sqlite: following %s: %w", followeeID, err)
	}
	return nil
}

// Unfollow removes the relationship. Unfollowing a stranger is a no-op.
func (db *DB) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`, followerID, followeeID,
	); err != nil {
		return fmt.Errorf("sqlite: unfollowing %s: %w", followeeID, err)
	}
	return nil
}

func (db *DB) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = ? AND followee_id = ?)`,
		followerID, followeeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking follow: %w", err)
	}
	return exists, nil
}

// Followers lists the users following userID, newest follow first.
func (db *DB) Followers(ctx context.Context, userID string, opts repository.ListOptions) ([]model.UserSummary, error) {
	return db.queryFollowUsers(ctx,
		`SELECT u.id, u.name, u.avatar_url, u.is_bot
		 FROM follows f JOIN users u ON u.id = f.follower_id
		 WHERE f.followee_id = ?
		 ORDER BY f.created_at DESC, u.id
		 LIMIT ? OFFSET ?`,
		userID, opts)
}

// Following lists the users userID follows, newest follow first.
func (db *DB) Following(ctx context.Context, userID string, opts repository.ListOptions) ([]model.UserSummary, error) {
	return db.queryFollowUsers(ctx,
		`SELECT u.id, u.name, u.avatar_url, u.is_bot
		 FROM follows f JOIN users u ON u.id = f.followee_id
		 WHERE f.follower_id = ?
		 ORDER BY f.created_at DESC, u.id
		 LIMIT ? OFFSET ?`,
		userID, opts)
}

func (db *DB) queryFollowUsers(ctx context.Context, query, userID string, opts repository.ListOptions) ([]model.UserSummary, error) {
	limit, offset := clampList(opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing follows of %s: %w", userID, err)
	}
	defer rows.Close()

	users := []model.UserSummary{}
	for rows.Next() {
		var u model.UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.AvatarURL, &u.IsBot); err != nil {
			return nil, fmt.Errorf("sqlite: scanning follow row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating follows: %w", err)
	}
	return users, nil
}

// FollowCounts returns how many users follow userID and how many userID follows.
func (db *DB) FollowCounts(ctx context.Context, userID string) (followers, following int, err error) {
	err = db.conn.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM follows WHERE followee_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?)`,
		userID, userID,
	).Scan(&followers, &following)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: counting follows of %s: %w", userID, err)
	}
	return followers, following, nil
}
