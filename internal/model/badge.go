package model

import "time"

// Badge is a cosmetic catalog item bought with Maracoins.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Rarity      string `json:"rarity"`
	Price       int64  `json:"price"`
}

// UserBadge is a badge in a user's collection, optionally listed on the market.
type UserBadge struct {
	UserID     string    `json:"userId"`
	BadgeID    string    `json:"badgeId"`
	ForSale    bool      `json:"forSale"`
	AskPrice   int64     `json:"askPrice,omitempty"`
	AcquiredAt time.Time `json:"acquiredAt"`

	Badge  *Badge       `json:"badge,omitempty"`
	Seller *UserSummary `json:"seller,omitempty"`
}
