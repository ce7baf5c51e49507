package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

type FollowService struct {
	follows repository.FollowRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

func NewFollowService(follows repository.FollowRepository, users repository.UserRepository, logger *slog.Logger) *FollowService {
	return &FollowService{follows: follows, users: users, logger: logger}
}

// Follow is idempotent. Following yourself is a validation error.
func (s *FollowService) Follow(ctx context.Context, followerID, followeeID string) error {
	if followerID == followeeID {
		return apperror.ValidationFailed("id", "you cannot follow yourself")
	}
	if err := s.userExists(ctx, followeeID); err != nil {
		return err
	}
	if err := s.follows.Follow(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("service/follow: following %s: %w", followeeID, err)
	}
	s.logger.Debug("follow", slog.String("follower", followerID), slog.String("followee", followeeID))
	return nil
}

func (s *FollowService) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if err := s.userExists(ctx, followeeID); err != nil {
		return err
	}
	if err := s.follows.Unfollow(ctx, followerID, followeeID); err != nil {
		return fmt.Errorf("service/follow: unfollowing %s: %w", followeeID, err)
	}
	return nil
}

func (s *FollowService) Followers(ctx context.Context, userID string, opts repository.ListOptions) ([]model.UserSummary, error) {
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}
	users, err := s.follows.Followers(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/follow: listing followers of %s: %w", userID, err)
	}
	return users, nil
}

func (s *FollowService) Following(ctx context.Context, userID string, opts repository.ListOptions) ([]model.UserSummary, error) {
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}
	users, err := s.follows.Following(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/follow: listing following of %s: %w", userID, err)
	}
	return users, nil
}

func (s *FollowService) userExists(ctx context.Context, id string) error {
	if _, err := s.users.GetUserByID(ctx, id); err != nil {
		return fmt.Errorf("service/follow: fetching user %s: %w", id, err)
	}
	return nil
}
