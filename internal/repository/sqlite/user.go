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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, name, email, password_hash, github_id, bio, avatar_url,
	cover_theme, onboarded, maracoins, is_bot, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u     model.User
		email sql.NullString
		ghID  sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &u.Name, &email, &u.PasswordHash, &ghID, &u.Bio, &u.AvatarURL,
		&u.CoverTheme, &u.Onboarded, &u.Maracoins, &u.IsBot, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	if ghID.Valid {
		id := ghID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}

// nullString maps "" to SQL NULL so optional UNIQUE columns don't collide.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

// CreateUser inserts a new user. The email is stored lower-cased.
// Returns apperror.ErrConflict if the email or GitHub ID is already registered.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, nullString(user.Email), user.PasswordHash, nullInt64(user.GitHubID),
		user.Bio, user.AvatarURL, user.CoverTheme, boolToInt(user.Onboarded),
		user.Maracoins, boolToInt(user.IsBot), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("an account with this email already exists")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// Upsert inserts or updates a user keyed by their GitHub ID. When no row has
// that GitHub ID, an account registered with the same email is linked instead.
//
// The first GitHub login creates the row (keeping the starting balance the
// caller put on the struct); later logins refresh the avatar but leave every
// Maratonei-owned field (bio, theme, coins) alone. After the call, user holds
// the canonical stored record.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("sqlite: upsert requires a GitHub ID")
	}

	existing, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID))
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", *user.GitHubID, err)
	}

	if existing == nil && user.Email != "" {
		existing, err = db.linkGitHubByEmail(ctx, user)
		if err != nil {
			return err
		}
	}
	if existing == nil {
		return db.CreateUser(ctx, user)
	}

	existing.AvatarURL = user.AvatarURL
	existing.UpdatedAt = time.Now().UTC()
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE users SET avatar_url = ?, updated_at = ? WHERE id = ?`,
		existing.AvatarURL, existing.UpdatedAt, existing.ID,
	); err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", existing.ID, err)
	}

	*user = *existing
	return nil
}

// linkGitHubByEmail attaches user's GitHub ID to an email account with the
// same address. It returns nil when there is no such account, and a conflict
// when that account is already linked to a different GitHub user.
func (db *DB) linkGitHubByEmail(ctx context.Context, user *model.User) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	existing, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: looking up user by email: %w", err)
	}
	if existing.GitHubID != nil {
		return nil, apperror.Conflict("this email is linked to another GitHub account")
	}

	if _, err := db.conn.ExecContext(ctx,
		`UPDATE users SET github_id = ? WHERE id = ?`, *user.GitHubID, existing.ID,
	); err != nil {
		return nil, fmt.Errorf("sqlite: linking github_id to user %s: %w", existing.ID, err)
	}
	id := *user.GitHubID
	existing.GitHubID = &id
	return existing, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by (case-insensitive) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpdateUser saves the editable profile fields. Credentials and the coin
// balance are not touched here; the balance only moves inside badge trades.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, bio = ?, avatar_url = ?, cover_theme = ?, onboarded = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name, user.Bio, user.AvatarURL, user.CoverTheme, boolToInt(user.Onboarded),
		user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// SearchUsers finds non-bot users whose name contains query.
func (db *DB) SearchUsers(ctx context.Context, query string, opts repository.ListOptions) ([]model.User, error) {
	limit, offset := clampList(opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE is_bot = 0 AND name LIKE ? ESCAPE '\'
		 ORDER BY name
		 LIMIT ? OFFSET ?`,
		likePattern(query), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// EnsureBotUser returns the system bot account, creating it on first use.
// There is exactly one bot; its name and avatar are refreshed from bot.
func (db *DB) EnsureBotUser(ctx context.Context, bot *model.User) error {
	existing, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE is_bot = 1 ORDER BY created_at LIMIT 1`))
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up bot user: %w", err)
	}

	if existing == nil {
		bot.IsBot = true
		bot.Onboarded = true
		return db.CreateUser(ctx, bot)
	}

	existing.Name = bot.Name
	existing.AvatarURL = bot.AvatarURL
	if err := db.UpdateUser(ctx, existing); err != nil {
		return err
	}
	*bot = *existing
	return nil
}

// likePattern turns free text into a LIKE pattern, escaping the wildcards.
func likePattern(q string) string {
	q = strings.TrimSpace(q)
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
