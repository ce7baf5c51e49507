package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
	"github.com/sakif/maratonei/internal/validation"
)

// CoverThemes are the preset profile covers. Any http(s) image URL is
// accepted as a custom cover too.
var CoverThemes = []string{"sunset", "ocean", "forest", "noir", "neon", "classic"}

func validCoverTheme(theme string) bool {
	for _, preset := range CoverThemes {
		if theme == preset {
			return true
		}
	}
	u, err := url.Parse(theme)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ProfileService serves public profiles and edits the caller's own.
type ProfileService struct {
	users   repository.UserRepository
	follows repository.FollowRepository
	lists   repository.ListRepository
	list    *ListService
	logger  *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	follows repository.FollowRepository,
	lists repository.ListRepository,
	list *ListService,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{users: users, follows: follows, lists: lists, list: list, logger: logger}
}

// UpdateProfileInput is a partial update; nil fields are left unchanged.
type UpdateProfileInput struct {
	Name       *string `json:"name" validate:"omitempty,min=2,max=60"`
	Bio        *string `json:"bio" validate:"omitempty,max=280"`
	AvatarURL  *string `json:"avatarUrl" validate:"omitempty,http_url"`
	CoverTheme *string `json:"coverTheme"`
}

type SeriesSelection struct {
	SeriesID string       `json:"seriesId" validate:"required"`
	Status   model.Status `json:"status" validate:"required,series_status"`
}

// OnboardingInput is what the first-login wizard submits.
type OnboardingInput struct {
	Name       string            `json:"name" validate:"required,min=2,max=60"`
	Bio        string            `json:"bio" validate:"max=280"`
	AvatarURL  string            `json:"avatarUrl" validate:"omitempty,http_url"`
	CoverTheme string            `json:"coverTheme"`
	Series     []SeriesSelection `json:"series" validate:"max=50,dive"`
}

// GetProfile builds the public profile of userID as seen by viewerID
// (empty for anonymous visitors).
func (s *ProfileService) GetProfile(ctx context.Context, userID, viewerID string) (*model.Profile, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching user %s: %w", userID, err)
	}

	followers, following, err := s.follows.FollowCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: counting follows of %s: %w", userID, err)
	}

	entries, err := s.lists.ListEntries(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("service/profile: listing series of %s: %w", userID, err)
	}

	profile := &model.Profile{
		User:           *user,
		FollowerCount:  followers,
		FollowingCount: following,
		StatusCounts:   make(map[model.Status]int, len(model.Statuses)),
	}
	for _, st := range model.Statuses {
		profile.StatusCounts[st] = 0
	}
	for _, e := range entries {
		profile.StatusCounts[e.Status]++
		if e.Status == model.StatusWatched && e.Series != nil {
			profile.MinutesWatched += e.Series.TotalMinutes()
		}
	}
	profile.HoursWatched = math.Round(float64(profile.MinutesWatched)/6) / 10

	if viewerID != "" && viewerID != userID {
		profile.IsFollowing, err = s.follows.IsFollowing(ctx, viewerID, userID)
		if err != nil {
			return nil, fmt.Errorf("service/profile: checking follow: %w", err)
		}
	}

	// Contact details, the GitHub link and the balance are owner-only.
	if viewerID == userID {
		balance := user.Maracoins
		profile.Maracoins = &balance
	} else {
		profile.Email = ""
		profile.GitHubID = nil
		profile.User.Maracoins = 0
	}
	return profile, nil
}

// UpdateProfile applies a partial update to the caller's profile.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*model.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if in.CoverTheme != nil && *in.CoverTheme != "" && !validCoverTheme(*in.CoverTheme) {
		return nil, invalidCoverTheme()
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching user %s: %w", userID, err)
	}

	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.Bio != nil {
		user.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.AvatarURL != nil {
		user.AvatarURL = *in.AvatarURL
	}
	if in.CoverTheme != nil {
		user.CoverTheme = *in.CoverTheme
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/profile: updating user %s: %w", userID, err)
	}
	return user, nil
}

// CompleteOnboarding saves the wizard's profile fields, adds the selected
// series to the list and marks the user onboarded. Series already on the
// list are skipped so a retried submit does not fail.
func (s *ProfileService) CompleteOnboarding(ctx context.Context, userID string, in OnboardingInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.CoverTheme != "" && !validCoverTheme(in.CoverTheme) {
		return nil, invalidCoverTheme()
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching user %s: %w", userID, err)
	}

	// Resolve every selection before writing so an unknown ID leaves the
	// list and the feed untouched.
	for _, sel := range in.Series {
		if _, err := s.list.GetSeries(ctx, sel.SeriesID); err != nil {
			return nil, fmt.Errorf("service/profile: onboarding selection: %w", err)
		}
	}

	for _, sel := range in.Series {
		_, err := s.list.AddToList(ctx, userID, AddEntryInput{SeriesID: sel.SeriesID, Status: sel.Status})
		if err != nil && !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/profile: adding %s during onboarding: %w", sel.SeriesID, err)
		}
	}

	user.Name = in.Name
	user.Bio = strings.TrimSpace(in.Bio)
	if in.AvatarURL != "" {
		user.AvatarURL = in.AvatarURL
	}
	if in.CoverTheme != "" {
		user.CoverTheme = in.CoverTheme
	}
	user.Onboarded = true

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/profile: updating user %s: %w", userID, err)
	}

	s.logger.Info("onboarding completed",
		slog.String("userID", userID),
		slog.Int("series", len(in.Series)),
	)
	return user, nil
}

// SearchUsers finds people by name for the community search box.
func (s *ProfileService) SearchUsers(ctx context.Context, query string, opts repository.ListOptions) ([]model.UserSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.UserSummary{}, nil
	}

	users, err := s.users.SearchUsers(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("service/profile: searching users: %w", err)
	}

	out := make([]model.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

func invalidCoverTheme() error {
	return apperror.ValidationFailed("coverTheme",
		"coverTheme must be one of: "+strings.Join(CoverThemes, ", ")+" or an http(s) image URL")
}
