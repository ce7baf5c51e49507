package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/metrics"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
	"github.com/sakif/maratonei/internal/validation"
)

// Feed scopes.
const (
	ScopeAll       = "all"
	ScopeFollowing = "following"
)

// FeedService reads the community feed and handles posts, likes and comments.
type FeedService struct {
	activities repository.ActivityRepository
	users      repository.UserRepository
	logger     *slog.Logger
}

func NewFeedService(activities repository.ActivityRepository, users repository.UserRepository, logger *slog.Logger) *FeedService {
	return &FeedService{activities: activities, users: users, logger: logger}
}

type CreatePostInput struct {
	Text     string `json:"text" validate:"required,max=1000"`
	ImageURL string `json:"imageUrl" validate:"omitempty,http_url"`
	Link     string `json:"link" validate:"omitempty,http_url"`
}

type CommentInput struct {
	Text string `json:"text" validate:"required,max=500"`
}

// Feed returns a page of the feed for viewerID. The "following" scope needs
// a signed-in viewer and shows their own activity plus people they follow.
func (s *FeedService) Feed(ctx context.Context, viewerID, scope string, opts repository.ListOptions) ([]model.Activity, error) {
	q := repository.FeedQuery{ViewerID: viewerID, ListOptions: opts}
	switch scope {
	case "", ScopeAll:
	case ScopeFollowing:
		if viewerID == "" {
			return nil, apperror.Unauthorized("sign in to see the following feed")
		}
		q.FollowingOnly = true
	default:
		return nil, apperror.ValidationFailed("scope", "scope must be one of: all, following")
	}

	activities, err := s.activities.ListFeed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("service/feed: listing feed: %w", err)
	}
	return activities, nil
}

// UserActivities is a user's own timeline on their profile.
func (s *FeedService) UserActivities(ctx context.Context, userID, viewerID string, opts repository.ListOptions) ([]model.Activity, error) {
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("service/feed: fetching user %s: %w", userID, err)
	}

	activities, err := s.activities.ListFeed(ctx, repository.FeedQuery{
		ViewerID:    viewerID,
		AuthorID:    userID,
		ListOptions: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("service/feed: listing activities of %s: %w", userID, err)
	}
	return activities, nil
}

// CreatePost publishes a free-text POST activity.
func (s *FeedService) CreatePost(ctx context.Context, userID string, in CreatePostInput) (*model.Activity, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(model.PostPayload{Text: in.Text, ImageURL: in.ImageURL, Link: in.Link})
	if err != nil {
		return nil, fmt.Errorf("service/feed: encoding post: %w", err)
	}

	activity := &model.Activity{UserID: userID, Type: model.ActivityPost, Payload: raw}
	if err := s.activities.CreateActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("service/feed: creating post: %w", err)
	}
	metrics.ActivitiesCreated.WithLabelValues(string(model.ActivityPost)).Inc()

	s.logger.Info("post created", slog.String("userID", userID), slog.String("activityID", activity.ID))
	return s.get(ctx, activity.ID, userID)
}

// DeleteActivity removes one of the caller's own activities.
func (s *FeedService) DeleteActivity(ctx context.Context, userID, activityID string) error {
	activity, err := s.get(ctx, activityID, userID)
	if err != nil {
		return err
	}
	if activity.UserID != userID {
		return apperror.Forbidden("you can only delete your own activities")
	}

	if err := s.activities.DeleteActivity(ctx, activityID); err != nil {
		return fmt.Errorf("service/feed: deleting activity %s: %w", activityID, err)
	}
	return nil
}

// Like is idempotent and returns the activity with fresh counters.
func (s *FeedService) Like(ctx context.Context, userID, activityID string) (*model.Activity, error) {
	if err := s.activities.Like(ctx, activityID, userID); err != nil {
		return nil, fmt.Errorf("service/feed: liking %s: %w", activityID, err)
	}
	return s.get(ctx, activityID, userID)
}

func (s *FeedService) Unlike(ctx context.Context, userID, activityID string) (*model.Activity, error) {
	// Unlike on a missing activity would silently succeed; check first.
	if _, err := s.get(ctx, activityID, userID); err != nil {
		return nil, err
	}
	if err := s.activities.Unlike(ctx, activityID, userID); err != nil {
		return nil, fmt.Errorf("service/feed: unliking %s: %w", activityID, err)
	}
	return s.get(ctx, activityID, userID)
}

func (s *FeedService) Comments(ctx context.Context, activityID string) ([]model.Comment, error) {
	if _, err := s.get(ctx, activityID, ""); err != nil {
		return nil, err
	}
	comments, err := s.activities.ListComments(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("service/feed: listing comments of %s: %w", activityID, err)
	}
	return comments, nil
}

func (s *FeedService) AddComment(ctx context.Context, userID, activityID string, in CommentInput) (*model.Comment, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	comment := &model.Comment{ActivityID: activityID, UserID: userID, Text: in.Text}
	if err := s.activities.AddComment(ctx, comment); err != nil {
		return nil, fmt.Errorf("service/feed: commenting on %s: %w", activityID, err)
	}

	stored, err := s.activities.GetComment(ctx, comment.ID)
	if err != nil {
		return nil, fmt.Errorf("service/feed: reloading comment %s: %w", comment.ID, err)
	}
	return stored, nil
}

// DeleteComment is allowed for the comment's author and for the owner of
// the activity it was left on.
func (s *FeedService) DeleteComment(ctx context.Context, userID, commentID string) error {
	comment, err := s.activities.GetComment(ctx, commentID)
	if err != nil {
		return fmt.Errorf("service/feed: fetching comment %s: %w", commentID, err)
	}

	if comment.UserID != userID {
		activity, err := s.get(ctx, comment.ActivityID, userID)
		if err != nil {
			return err
		}
		if activity.UserID != userID {
			return apperror.Forbidden("you can only delete your own comments")
		}
	}

	if err := s.activities.DeleteComment(ctx, commentID); err != nil {
		return fmt.Errorf("service/feed: deleting comment %s: %w", commentID, err)
	}
	return nil
}

func (s *FeedService) get(ctx context.Context, activityID, viewerID string) (*model.Activity, error) {
	activity, err := s.activities.GetActivity(ctx, activityID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("service/feed: fetching activity %s: %w", activityID, err)
	}
	return activity, nil
}
