// Package repository declares the storage contracts the services depend on.
//
// Services receive these interfaces, never the concrete SQLite type, so tests
// can hand them in-memory fakes and the store can be swapped in one place.
package repository

import (
	"context"

	"github.com/sakif/maratonei/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// FeedQuery selects activities for a feed page.
//
// ViewerID drives likedByMe and, with FollowingOnly, restricts the feed to
// people the viewer follows (plus the viewer's own activity). AuthorID limits
// the feed to one user's profile timeline.
type FeedQuery struct {
	ViewerID      string
	AuthorID      string
	FollowingOnly bool
	ListOptions
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	SearchUsers(ctx context.Context, query string, opts ListOptions) ([]model.User, error)
	EnsureBotUser(ctx context.Context, bot *model.User) error
}

type SeriesRepository interface {
	UpsertSeries(ctx context.Context, series *model.Series) error
	GetSeries(ctx context.Context, id string) (*model.Series, error)
	SearchSeries(ctx context.Context, query string, limit int) ([]model.Series, error)
}

type ListRepository interface {
	AddEntry(ctx context.Context, entry *model.UserSeries) error
	GetEntry(ctx context.Context, userID, seriesID string) (*model.UserSeries, error)
	UpdateEntry(ctx context.Context, entry *model.UserSeries) error
	RemoveEntry(ctx context.Context, userID, seriesID string) error
	ListEntries(ctx context.Context, userID string, status model.Status) ([]model.UserSeries, error)
	SetRankSlot(ctx context.Context, userID, seriesID string, slot int) error
	ClearRankSlot(ctx context.Context, userID string, slot int) error
	Ranking(ctx context.Context, userID string) ([]model.UserSeries, error)
}

type ActivityRepository interface {
	CreateActivity(ctx context.Context, activity *model.Activity) error
	GetActivity(ctx context.Context, id, viewerID string) (*model.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	ListFeed(ctx context.Context, q FeedQuery) ([]model.Activity, error)
	Like(ctx context.Context, activityID, userID string) error
	Unlike(ctx context.Context, activityID, userID string) error
	AddComment(ctx context.Context, comment *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	ListComments(ctx context.Context, activityID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, id string) error
}

type FollowRepository interface {
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	Followers(ctx context.Context, userID string, opts ListOptions) ([]model.UserSummary, error)
	Following(ctx context.Context, userID string, opts ListOptions) ([]model.UserSummary, error)
	FollowCounts(ctx context.Context, userID string) (followers, following int, err error)
}

type BadgeRepository interface {
	ListBadges(ctx context.Context) ([]model.Badge, error)
	GetBadge(ctx context.Context, id string) (*model.Badge, error)
	UserBadges(ctx context.Context, userID string) ([]model.UserBadge, error)
	BuyFromShop(ctx context.Context, userID, badgeID string) error
	SetListing(ctx context.Context, userID, badgeID string, forSale bool, price int64) error
	MarketListings(ctx context.Context, excludeUserID string) ([]model.UserBadge, error)
	BuyListing(ctx context.Context, buyerID, sellerID, badgeID string) error
}
