package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/metrics"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
	"github.com/sakif/maratonei/internal/validation"
)

// ListService manages the catalog and each user's personal list, and posts
// the matching feed activity when a list changes.
type ListService struct {
	series     repository.SeriesRepository
	lists      repository.ListRepository
	activities repository.ActivityRepository
	logger     *slog.Logger
}

func NewListService(
	series repository.SeriesRepository,
	lists repository.ListRepository,
	activities repository.ActivityRepository,
	logger *slog.Logger,
) *ListService {
	return &ListService{series: series, lists: lists, activities: activities, logger: logger}
}

// SeriesSlug derives the catalog ID from title and year, e.g.
// ("Breaking Bad", 2008) → "breaking-bad-2008".
func SeriesSlug(title string, year int) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return ""
	}
	if year > 0 {
		slug += "-" + strconv.Itoa(year)
	}
	return slug
}

type CreateSeriesInput struct {
	Title           string   `json:"title" validate:"required,max=200"`
	Year            int      `json:"year" validate:"omitempty,gte=1900,lte=2100"`
	Synopsis        string   `json:"synopsis" validate:"max=2000"`
	Genres          []string `json:"genres" validate:"max=10"`
	PosterURL       string   `json:"posterUrl" validate:"omitempty,http_url"`
	Seasons         int      `json:"seasons" validate:"gte=0"`
	Episodes        int      `json:"episodes" validate:"gte=0"`
	EpisodeDuration int      `json:"episodeDuration" validate:"gte=0,lte=600"`
}

type AddEntryInput struct {
	SeriesID string       `json:"seriesId" validate:"required"`
	Status   model.Status `json:"status" validate:"required,series_status"`
	Note     string       `json:"note" validate:"max=500"`
	Rating   *int         `json:"rating" validate:"omitempty,min=1,max=5"`
}

// UpdateEntryInput is a partial update; nil fields are left unchanged.
type UpdateEntryInput struct {
	Status *model.Status `json:"status" validate:"omitempty,series_status"`
	Note   *string       `json:"note" validate:"omitempty,max=500"`
	Rating *int          `json:"rating" validate:"omitempty,min=1,max=5"`
}

// CreateSeries adds a show to the catalog, or fills in an existing one.
func (s *ListService) CreateSeries(ctx context.Context, in CreateSeriesInput) (*model.Series, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	series := &model.Series{
		ID:              SeriesSlug(in.Title, in.Year),
		Title:           in.Title,
		Year:            in.Year,
		Synopsis:        in.Synopsis,
		Genres:          in.Genres,
		PosterURL:       in.PosterURL,
		Seasons:         in.Seasons,
		Episodes:        in.Episodes,
		EpisodeDuration: in.EpisodeDuration,
	}
	if series.ID == "" {
		return nil, apperror.ValidationFailed("title", "title must contain letters or digits")
	}
	if err := s.series.UpsertSeries(ctx, series); err != nil {
		return nil, fmt.Errorf("service/list: upserting series %s: %w", series.ID, err)
	}
	return series, nil
}

func (s *ListService) GetSeries(ctx context.Context, id string) (*model.Series, error) {
	series, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/list: fetching series %s: %w", id, err)
	}
	return series, nil
}

// AddToList puts a catalog series on the user's list and posts ADD_SERIES.
func (s *ListService) AddToList(ctx context.Context, userID string, in AddEntryInput) (*model.UserSeries, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	series, err := s.series.GetSeries(ctx, in.SeriesID)
	if err != nil {
		return nil, fmt.Errorf("service/list: fetching series %s: %w", in.SeriesID, err)
	}

	entry := &model.UserSeries{
		UserID:   userID,
		SeriesID: series.ID,
		Status:   in.Status,
		Note:     strings.TrimSpace(in.Note),
		Rating:   in.Rating,
	}
	if err := s.lists.AddEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("service/list: adding %s for %s: %w", series.ID, userID, err)
	}
	entry.Series = series

	s.publish(ctx, userID, model.ActivityAddSeries, model.SeriesPayload{
		SeriesID:  series.ID,
		Title:     series.Title,
		PosterURL: series.PosterURL,
		Status:    entry.Status,
	})
	return entry, nil
}

// UpdateEntry edits status, note or rating. A status change posts
// UPDATE_STATUS.
func (s *ListService) UpdateEntry(ctx context.Context, userID, seriesID string, in UpdateEntryInput) (*model.UserSeries, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	entry, err := s.lists.GetEntry(ctx, userID, seriesID)
	if err != nil {
		return nil, fmt.Errorf("service/list: fetching entry %s: %w", seriesID, err)
	}

	prev := entry.Status
	if in.Status != nil {
		entry.Status = *in.Status
	}
	if in.Note != nil {
		entry.Note = strings.TrimSpace(*in.Note)
	}
	if in.Rating != nil {
		entry.Rating = in.Rating
	}

	if err := s.lists.UpdateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("service/list: updating entry %s: %w", seriesID, err)
	}

	if entry.Status != prev {
		payload := model.SeriesPayload{SeriesID: seriesID, Status: entry.Status, PrevStatus: prev}
		if entry.Series != nil {
			payload.Title = entry.Series.Title
			payload.PosterURL = entry.Series.PosterURL
		}
		s.publish(ctx, userID, model.ActivityUpdateStatus, payload)
	}
	return entry, nil
}

func (s *ListService) RemoveFromList(ctx context.Context, userID, seriesID string) error {
	if err := s.lists.RemoveEntry(ctx, userID, seriesID); err != nil {
		return fmt.Errorf("service/list: removing %s: %w", seriesID, err)
	}
	return nil
}

func checkSlot(slot int) error {
	if slot < 1 || slot > model.MaxRankSlot {
		return apperror.ValidationFailed("slot", fmt.Sprintf("slot must be between 1 and %d", model.MaxRankSlot))
	}
	return nil
}

// SetRanking puts a listed series in a ranking slot, displacing whatever
// held it.
func (s *ListService) SetRanking(ctx context.Context, userID string, slot int, seriesID string) ([]model.UserSeries, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	if strings.TrimSpace(seriesID) == "" {
		return nil, apperror.ValidationFailed("seriesId", "seriesId is required")
	}
	if err := s.lists.SetRankSlot(ctx, userID, seriesID, slot); err != nil {
		return nil, fmt.Errorf("service/list: ranking %s at %d: %w", seriesID, slot, err)
	}
	return s.Ranking(ctx, userID)
}

func (s *ListService) ClearRanking(ctx context.Context, userID string, slot int) ([]model.UserSeries, error) {
	if err := checkSlot(slot); err != nil {
		return nil, err
	}
	if err := s.lists.ClearRankSlot(ctx, userID, slot); err != nil {
		return nil, fmt.Errorf("service/list: clearing slot %d: %w", slot, err)
	}
	return s.Ranking(ctx, userID)
}

func (s *ListService) Ranking(ctx context.Context, userID string) ([]model.UserSeries, error) {
	entries, err := s.lists.Ranking(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/list: ranking of %s: %w", userID, err)
	}
	return entries, nil
}

// List returns a user's entries, optionally filtered by status.
func (s *ListService) List(ctx context.Context, userID string, status model.Status) ([]model.UserSeries, error) {
	if status != "" && !status.Valid() {
		return nil, apperror.ValidationFailed("status", "status must be one of: Watching, Watched, Want to Watch")
	}
	entries, err := s.lists.ListEntries(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("service/list: listing %s: %w", userID, err)
	}
	return entries, nil
}

// Grouped returns the list bucketed by status. Every status key is present.
func (s *ListService) Grouped(ctx context.Context, userID string) (map[model.Status][]model.UserSeries, error) {
	entries, err := s.List(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	groups := make(map[model.Status][]model.UserSeries, len(model.Statuses))
	for _, st := range model.Statuses {
		groups[st] = []model.UserSeries{}
	}
	for _, e := range entries {
		groups[e.Status] = append(groups[e.Status], e)
	}
	return groups, nil
}

// publish records a list activity. The list change has already been saved,
// so a failure here is logged rather than returned.
func (s *ListService) publish(ctx context.Context, userID string, typ model.ActivityType, payload model.SeriesPayload) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encoding activity payload", slog.String("error", err.Error()))
		return
	}

	activity := &model.Activity{UserID: userID, Type: typ, Payload: raw}
	if err := s.activities.CreateActivity(ctx, activity); err != nil {
		s.logger.Warn("publishing list activity",
			slog.String("userID", userID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.ActivitiesCreated.WithLabelValues(string(typ)).Inc()
}
