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

var _ repository.BadgeRepository = (*DB)(nil)

// catalog is the shop inventory written on every start. Existing rows are
// left alone so prices edited in the database survive restarts.
var catalog = []model.Badge{
	{ID: "first-episode", Name: "First Episode", Description: "Everyone starts somewhere.", Icon: "🎬", Rarity: "common", Price: 50},
	{ID: "popcorn", Name: "Popcorn Lover", Description: "Never watches without a snack.", Icon: "🍿", Rarity: "common", Price: 80},
	{ID: "night-owl", Name: "Night Owl", Description: "Just one more episode at 3am.", Icon: "🦉", Rarity: "uncommon", Price: 150},
	{ID: "binge-master", Name: "Binge Master", Description: "A whole season in one sitting.", Icon: "📺", Rarity: "rare", Price: 300},
	{ID: "critic", Name: "Critic", Description: "Has an opinion on every finale.", Icon: "🧐", Rarity: "rare", Price: 350},
	{ID: "marathoner", Name: "Marathoner", Description: "The true spirit of Maratonei.", Icon: "🏃", Rarity: "epic", Price: 600},
	{ID: "golden-remote", Name: "Golden Remote", Description: "Controls the living room.", Icon: "🏆", Rarity: "legendary", Price: 1200},
}

func (db *DB) seedBadges() error {
	for _, b := range catalog {
		if _, err := db.conn.Exec(
			`INSERT INTO badges (id, name, description, icon, rarity, price) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			b.ID, b.Name, b.Description, b.Icon, b.Rarity, b.Price,
		); err != nil {
			return fmt.Errorf("seeding badge %s: %w", b.ID, err)
		}
	}
	return nil
}

const badgeColumns = `id, name, description, icon, rarity, price`

func scanBadge(row rowScanner) (*model.Badge, error) {
	var b model.Badge
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Rarity, &b.Price); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBadges returns the shop catalog, cheapest first.
func (db *DB) ListBadges(ctx context.Context) ([]model.Badge, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+badgeColumns+` FROM badges ORDER BY price, name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing badges: %w", err)
	}
	defer rows.Close()

	badges := []model.Badge{}
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning badge row: %w", err)
		}
		badges = append(badges, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating badges: %w", err)
	}
	return badges, nil
}

func (db *DB) GetBadge(ctx context.Context, id string) (*model.Badge, error) {
	b, err := scanBadge(db.conn.QueryRowContext(ctx,
		`SELECT `+badgeColumns+` FROM badges WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("badge", id)
		}
		return nil, fmt.Errorf("sqlite: getting badge %s: %w", id, err)
	}
	return b, nil
}

// ownedSelect reads a UserBadge with its catalog row and the owner's card.
const ownedSelect = `SELECT
	ub.user_id, ub.badge_id, ub.for_sale, ub.ask_price, ub.acquired_at,
	b.id, b.name, b.description, b.icon, b.rarity, b.price,
	u.id, u.name, u.avatar_url, u.is_bot
	FROM user_badges ub
	JOIN badges b ON b.id = ub.badge_id
	JOIN users u ON u.id = ub.user_id`

func scanOwned(row rowScanner) (*model.UserBadge, error) {
	var (
		ub    model.UserBadge
		b     model.Badge
		owner model.UserSummary
	)
	if err := row.Scan(
		&ub.UserID, &ub.BadgeID, &ub.ForSale, &ub.AskPrice, &ub.AcquiredAt,
		&b.ID, &b.Name, &b.Description, &b.Icon, &b.Rarity, &b.Price,
		&owner.ID, &owner.Name, &owner.AvatarURL, &owner.IsBot,
	); err != nil {
		return nil, err
	}
	ub.Badge = &b
	if ub.ForSale {
		ub.Seller = &owner
	}
	return &ub, nil
}

func (db *DB) queryOwned(ctx context.Context, query string, args ...any) ([]model.UserBadge, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing user badges: %w", err)
	}
	defer rows.Close()

	out := []model.UserBadge{}
	for rows.Next() {
		ub, err := scanOwned(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user badge row: %w", err)
		}
		out = append(out, *ub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user badges: %w", err)
	}
	return out, nil
}

// UserBadges returns a user's collection, most recently acquired first.
func (db *DB) UserBadges(ctx context.Context, userID string) ([]model.UserBadge, error) {
	return db.queryOwned(ctx,
		ownedSelect+` WHERE ub.user_id = ? ORDER BY ub.acquired_at DESC, b.name`, userID)
}

// MarketListings returns every badge listed for sale, cheapest first,
// leaving out the listings of excludeUserID (usually the viewer).
func (db *DB) MarketListings(ctx context.Context, excludeUserID string) ([]model.UserBadge, error) {
	return db.queryOwned(ctx,
		ownedSelect+` WHERE ub.for_sale = 1 AND ub.user_id <> ? ORDER BY ub.ask_price, b.name`,
		excludeUserID)
}

// debit takes amount from a user's balance inside tx. The WHERE guard keeps
// the balance from going negative; zero rows affected means the user could
// not afford it.
func debit(ctx context.Context, tx *sql.Tx, userID string, amount int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET maracoins = maracoins - ?, updated_at = ?
		 WHERE id = ? AND maracoins >= ?`,
		amount, time.Now().UTC(), userID, amount,
	)
	if err != nil {
		return fmt.Errorf("sqlite: debiting %s: %w", userID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.ValidationFailed("maracoins", "insufficient maracoins")
	}
	return nil
}

func owns(ctx context.Context, tx *sql.Tx, userID, badgeID string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_badges WHERE user_id = ? AND badge_id = ?)`,
		userID, badgeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking ownership of %s: %w", badgeID, err)
	}
	return exists, nil
}

// BuyFromShop charges the catalog price and adds the badge to the user's
// collection in one transaction.
func (db *DB) BuyFromShop(ctx context.Context, userID, badgeID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var price int64
		err := tx.QueryRowContext(ctx, `SELECT price FROM badges WHERE id = ?`, badgeID).Scan(&price)
		if err != nil {
			if err == sql.ErrNoRows {
				return apperror.NotFound("badge", badgeID)
			}
			return fmt.Errorf("sqlite: reading badge price: %w", err)
		}

		owned, err := owns(ctx, tx, userID, badgeID)
		if err != nil {
			return err
		}
		if owned {
			return apperror.Conflict("you already own this badge")
		}

		if err := debit(ctx, tx, userID, price); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_badges (user_id, badge_id, for_sale, ask_price, acquired_at)
			 VALUES (?, ?, 0, 0, ?)`,
			userID, badgeID, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("sqlite: granting badge %s: %w", badgeID, err)
		}
		return nil
	})
}

// SetListing puts an owned badge on the market at price, or takes it off
// when forSale is false.
func (db *DB) SetListing(ctx context.Context, userID, badgeID string, forSale bool, price int64) error {
	if !forSale {
		price = 0
	} else if price <= 0 {
		return apperror.ValidationFailed("price", "price must be greater than zero")
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE user_badges SET for_sale = ?, ask_price = ? WHERE user_id = ? AND badge_id = ?`,
		boolToInt(forSale), price, userID, badgeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating listing %s: %w", badgeID, err)
	}
	return expectOneRow(result, "owned badge", badgeID)
}

// BuyListing moves a listed badge from seller to buyer and the asking price
// from buyer to seller. Either everything happens or nothing does.
func (db *DB) BuyListing(ctx context.Context, buyerID, sellerID, badgeID string) error {
	if buyerID == sellerID {
		return apperror.ValidationFailed("sellerId", "you cannot buy your own listing")
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		var price int64
		err := tx.QueryRowContext(ctx,
			`SELECT ask_price FROM user_badges WHERE user_id = ? AND badge_id = ? AND for_sale = 1`,
			sellerID, badgeID,
		).Scan(&price)
		if err != nil {
			if err == sql.ErrNoRows {
				return apperror.NotFound("listing", badgeID)
			}
			return fmt.Errorf("sqlite: reading listing: %w", err)
		}

		owned, err := owns(ctx, tx, buyerID, badgeID)
		if err != nil {
			return err
		}
		if owned {
			return apperror.Conflict("you already own this badge")
		}

		if err := debit(ctx, tx, buyerID, price); err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET maracoins = maracoins + ?, updated_at = ? WHERE id = ?`,
			price, now, sellerID,
		); err != nil {
			return fmt.Errorf("sqlite: crediting seller: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_badges WHERE user_id = ? AND badge_id = ?`, sellerID, badgeID,
		); err != nil {
			return fmt.Errorf("sqlite: removing seller badge: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_badges (user_id, badge_id, for_sale, ask_price, acquired_at)
			 VALUES (?, ?, 0, 0, ?)`,
			buyerID, badgeID, now,
		); err != nil {
			return fmt.Errorf("sqlite: granting badge to buyer: %w", err)
		}
		return nil
	})
}
