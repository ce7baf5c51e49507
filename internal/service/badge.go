package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/metrics"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
	"github.com/sakif/maratonei/internal/validation"
)

// BadgeService runs the badge shop and the user-to-user market. Balance
// changes happen inside the repository transactions; this layer validates
// input and returns the buyer's refreshed record.
type BadgeService struct {
	badges repository.BadgeRepository
	users  repository.UserRepository
	logger *slog.Logger
}

func NewBadgeService(badges repository.BadgeRepository, users repository.UserRepository, logger *slog.Logger) *BadgeService {
	return &BadgeService{badges: badges, users: users, logger: logger}
}

type ListingInput struct {
	Price int64 `json:"price" validate:"required,gt=0,lte=1000000"`
}

type BuyListingInput struct {
	SellerID string `json:"sellerId" validate:"required"`
	BadgeID  string `json:"badgeId" validate:"required"`
}

func (s *BadgeService) Catalog(ctx context.Context) ([]model.Badge, error) {
	badges, err := s.badges.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/badge: listing catalog: %w", err)
	}
	return badges, nil
}

func (s *BadgeService) UserBadges(ctx context.Context, userID string) ([]model.UserBadge, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("service/badge: fetching user %s: %w", userID, err)
	}
	owned, err := s.badges.UserBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/badge: listing badges of %s: %w", userID, err)
	}
	return owned, nil
}

// BuyFromShop charges the catalog price and returns the buyer afterwards.
func (s *BadgeService) BuyFromShop(ctx context.Context, userID, badgeID string) (*model.User, error) {
	if err := s.badges.BuyFromShop(ctx, userID, badgeID); err != nil {
		return nil, fmt.Errorf("service/badge: buying %s: %w", badgeID, err)
	}
	metrics.BadgeTrades.WithLabelValues("shop").Inc()
	s.logger.Info("badge bought from shop", slog.String("userID", userID), slog.String("badgeID", badgeID))
	return s.refreshed(ctx, userID)
}

// ListForSale puts one of the caller's badges on the market.
func (s *BadgeService) ListForSale(ctx context.Context, userID, badgeID string, in ListingInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if err := s.badges.SetListing(ctx, userID, badgeID, true, in.Price); err != nil {
		return fmt.Errorf("service/badge: listing %s: %w", badgeID, err)
	}
	return nil
}

func (s *BadgeService) Unlist(ctx context.Context, userID, badgeID string) error {
	if err := s.badges.SetListing(ctx, userID, badgeID, false, 0); err != nil {
		return fmt.Errorf("service/badge: unlisting %s: %w", badgeID, err)
	}
	return nil
}

// Market returns every listing except the viewer's own.
func (s *BadgeService) Market(ctx context.Context, viewerID string) ([]model.UserBadge, error) {
	listings, err := s.badges.MarketListings(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/badge: listing market: %w", err)
	}
	return listings, nil
}

// BuyListing transfers a listed badge and its price between two users.
func (s *BadgeService) BuyListing(ctx context.Context, buyerID string, in BuyListingInput) (*model.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.SellerID == buyerID {
		return nil, apperror.ValidationFailed("sellerId", "you cannot buy your own listing")
	}

	if err := s.badges.BuyListing(ctx, buyerID, in.SellerID, in.BadgeID); err != nil {
		return nil, fmt.Errorf("service/badge: buying listing %s from %s: %w", in.BadgeID, in.SellerID, err)
	}
	metrics.BadgeTrades.WithLabelValues("market").Inc()
	s.logger.Info("badge bought on market",
		slog.String("buyerID", buyerID),
		slog.String("sellerID", in.SellerID),
		slog.String("badgeID", in.BadgeID),
	)
	return s.refreshed(ctx, buyerID)
}

func (s *BadgeService) refreshed(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/badge: reloading user %s: %w", userID, err)
	}
	return user, nil
}
