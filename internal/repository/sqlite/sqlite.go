// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary as a single
// file, with no separate server to run. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, so no C compiler is needed.
//
// One *DB value implements every repository interface (users, series, lists,
// feed, follows, badges). The services only ever see the interfaces.
//
// TIMESTAMPS:
// All timestamps are written in UTC. SQLite stores them as text, and keeping
// a single zone makes ORDER BY created_at sort chronologically.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/maratonei.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
//
// PRAGMAS IN THE DSN:
// foreign_keys is a per-connection setting in SQLite. Running
// "PRAGMA foreign_keys=ON" once would only affect whichever pooled connection
// happened to execute it, so we pass it through the DSN instead: the driver
// applies every _pragma to each new connection it opens.
func New(dbPath string) (*DB, error) {
	memory := dbPath == ":memory:"

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand-new empty database.
	// Pin the pool to one connection so all queries see the same tables.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates every table. CREATE ... IF NOT EXISTS makes it idempotent,
// so it runs on every start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				name          TEXT NOT NULL,
				email         TEXT UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				bio           TEXT NOT NULL DEFAULT '',
				avatar_url    TEXT NOT NULL DEFAULT '',
				cover_theme   TEXT NOT NULL DEFAULT '',
				onboarded     INTEGER NOT NULL DEFAULT 0,
				maracoins     INTEGER NOT NULL DEFAULT 0 CHECK (maracoins >= 0),
				is_bot        INTEGER NOT NULL DEFAULT 0,
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_users_name ON users(name);
		`},
		{"series", `
			CREATE TABLE IF NOT EXISTS series (
				id               TEXT PRIMARY KEY,
				title            TEXT NOT NULL,
				year             INTEGER NOT NULL DEFAULT 0,
				synopsis         TEXT NOT NULL DEFAULT '',
				genres           TEXT NOT NULL DEFAULT '[]',
				poster_url       TEXT NOT NULL DEFAULT '',
				seasons          INTEGER NOT NULL DEFAULT 0,
				episodes         INTEGER NOT NULL DEFAULT 0,
				episode_duration INTEGER NOT NULL DEFAULT 0,
				created_at       DATETIME NOT NULL,
				updated_at       DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_series_title ON series(title);
		`},
		// rank_slot is nullable; SQLite treats NULLs as distinct in a UNIQUE
		// index, so only occupied slots collide.
		{"user_series", `
			CREATE TABLE IF NOT EXISTS user_series (
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				series_id  TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
				status     TEXT NOT NULL CHECK (status IN ('Watching', 'Watched', 'Want to Watch')),
				note       TEXT NOT NULL DEFAULT '',
				rank_slot  INTEGER CHECK (rank_slot BETWEEN 1 AND 3),
				rating     INTEGER CHECK (rating BETWEEN 1 AND 5),
				added_at   DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (user_id, series_id)
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_user_series_rank ON user_series(user_id, rank_slot);
		`},
		{"activities", `
			CREATE TABLE IF NOT EXISTS activities (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				type       TEXT NOT NULL CHECK (type IN ('POST', 'ADD_SERIES', 'UPDATE_STATUS')),
				payload    TEXT NOT NULL DEFAULT '{}',
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at);
			CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, created_at);
		`},
		{"likes", `
			CREATE TABLE IF NOT EXISTS likes (
				activity_id TEXT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at  DATETIME NOT NULL,
				PRIMARY KEY (activity_id, user_id)
			);
		`},
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				id          TEXT PRIMARY KEY,
				activity_id TEXT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				text        TEXT NOT NULL,
				created_at  DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_comments_activity ON comments(activity_id, created_at);
		`},
		{"follows", `
			CREATE TABLE IF NOT EXISTS follows (
				follower_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				followee_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at  DATETIME NOT NULL,
				PRIMARY KEY (follower_id, followee_id),
				CHECK (follower_id <> followee_id)
			);
			CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows(followee_id);
		`},
		{"badges", `
			CREATE TABLE IF NOT EXISTS badges (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				icon        TEXT NOT NULL DEFAULT '',
				rarity      TEXT NOT NULL DEFAULT 'common',
				price       INTEGER NOT NULL CHECK (price > 0)
			);
			CREATE TABLE IF NOT EXISTS user_badges (
				user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				badge_id    TEXT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
				for_sale    INTEGER NOT NULL DEFAULT 0,
				ask_price   INTEGER NOT NULL DEFAULT 0,
				acquired_at DATETIME NOT NULL,
				PRIMARY KEY (user_id, badge_id),
				CHECK (for_sale = 0 OR ask_price > 0)
			);
			CREATE INDEX IF NOT EXISTS idx_user_badges_for_sale ON user_badges(for_sale);
		`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s: %w", step.name, err)
		}
	}

	return db.seedBadges()
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint. The driver exposes no typed error for this, only the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports whether err came from a REFERENCES constraint.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// clampList applies the default and maximum page sizes.
func clampList(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
