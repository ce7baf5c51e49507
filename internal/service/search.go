package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/metadata"
	"github.com/sakif/maratonei/internal/metrics"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

const (
	searchLimit          = 10
	recommendationsLimit = 8
	maxQueryLength       = 100
)

// SeriesFinder is the AI side of the metadata package.
type SeriesFinder interface {
	SearchSeries(ctx context.Context, query string, limit int) ([]metadata.SeriesInfo, error)
	Recommend(ctx context.Context, liked, exclude []string, limit int) ([]metadata.SeriesInfo, error)
}

// PosterFinder resolves poster images.
type PosterFinder interface {
	PosterURL(ctx context.Context, title string, year int) (string, error)
}

// SearchService answers series searches and recommendations. Results from
// the AI are enriched with posters, saved to the catalog (so they can be
// added to lists) and cached.
type SearchService struct {
	finder  SeriesFinder
	posters PosterFinder
	cache   metadata.Cache
	series  repository.SeriesRepository
	lists   repository.ListRepository
	logger  *slog.Logger
}

func NewSearchService(
	finder SeriesFinder,
	posters PosterFinder,
	cache metadata.Cache,
	series repository.SeriesRepository,
	lists repository.ListRepository,
	logger *slog.Logger,
) *SearchService {
	if cache == nil {
		cache = metadata.NoopCache{}
	}
	return &SearchService{
		finder:  finder,
		posters: posters,
		cache:   cache,
		series:  series,
		lists:   lists,
		logger:  logger,
	}
}

// Search finds series matching query. When the AI cannot be used the local
// catalog is searched instead; those results are not cached.
func (s *SearchService) Search(ctx context.Context, query string) ([]model.Series, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.ValidationFailed("q", "q is required")
	}
	if len(query) > maxQueryLength {
		return nil, apperror.ValidationFailed("q", fmt.Sprintf("q must be at most %d characters", maxQueryLength))
	}

	key := metadata.CacheKey("search", query)
	if cached, ok := s.cached(ctx, "search", key); ok {
		return cached, nil
	}

	infos, err := s.finder.SearchSeries(ctx, query, searchLimit)
	if err != nil {
		if !errors.Is(err, metadata.ErrUnavailable) {
			s.logger.Warn("AI search failed, using local catalog",
				slog.String("query", query),
				slog.String("error", err.Error()),
			)
		}
		return s.localSearch(ctx, query)
	}

	results, err := s.save(ctx, infos)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, results)
	return results, nil
}

func (s *SearchService) localSearch(ctx context.Context, query string) ([]model.Series, error) {
	results, err := s.series.SearchSeries(ctx, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("service/search: searching catalog: %w", err)
	}
	return results, nil
}

// Recommendations suggests shows similar to what the user is watching or
// has watched, leaving out anything already on their list. It returns an
// empty slice, not an error, when the AI is unavailable.
func (s *SearchService) Recommendations(ctx context.Context, userID string) ([]model.Series, error) {
	entries, err := s.lists.ListEntries(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("service/search: listing %s: %w", userID, err)
	}

	var liked, exclude []string
	for _, e := range entries {
		if e.Series == nil {
			continue
		}
		exclude = append(exclude, e.Series.Title)
		if e.Status == model.StatusWatched || e.Status == model.StatusWatching {
			liked = append(liked, e.Series.Title)
		}
	}
	if len(liked) == 0 {
		return []model.Series{}, nil
	}

	key := metadata.CacheKey("recs", userID+":"+listFingerprint(exclude))
	if cached, ok := s.cached(ctx, "recommendations", key); ok {
		return cached, nil
	}

	infos, err := s.finder.Recommend(ctx, liked, exclude, recommendationsLimit)
	if err != nil {
		if !errors.Is(err, metadata.ErrUnavailable) {
			s.logger.Warn("AI recommendations failed",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
		}
		return []model.Series{}, nil
	}

	results, err := s.save(ctx, infos)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, results)
	return results, nil
}

// save turns AI results into catalog rows, looking up posters on the way.
func (s *SearchService) save(ctx context.Context, infos []metadata.SeriesInfo) ([]model.Series, error) {
	results := make([]model.Series, 0, len(infos))
	for _, info := range infos {
		series := model.Series{
			ID:              SeriesSlug(info.Title, info.Year),
			Title:           info.Title,
			Year:            info.Year,
			Synopsis:        info.Synopsis,
			Genres:          info.Genres,
			Seasons:         info.Seasons,
			Episodes:        info.Episodes,
			EpisodeDuration: info.EpisodeDuration,
		}
		if series.ID == "" {
			continue
		}

		poster, err := s.posters.PosterURL(ctx, info.Title, info.Year)
		switch {
		case err == nil:
			series.PosterURL = poster
		case !errors.Is(err, metadata.ErrUnavailable):
			s.logger.Warn("poster lookup failed",
				slog.String("title", info.Title),
				slog.String("error", err.Error()),
			)
		}

		if err := s.series.UpsertSeries(ctx, &series); err != nil {
			return nil, fmt.Errorf("service/search: saving %s: %w", series.ID, err)
		}
		results = append(results, series)
	}
	return results, nil
}

func (s *SearchService) cached(ctx context.Context, kind, key string) ([]model.Series, bool) {
	var results []model.Series
	found, err := s.cache.Get(ctx, key, &results)
	if err != nil {
		s.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	if !found {
		metrics.CacheMisses.WithLabelValues(kind).Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues(kind).Inc()
	return results, true
}

func (s *SearchService) store(ctx context.Context, key string, results []model.Series) {
	if err := s.cache.Set(ctx, key, results, metadata.SearchCacheTTL); err != nil {
		s.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// listFingerprint changes whenever the set of titles changes, so cached
// recommendations go stale as soon as the list is edited.
func listFingerprint(titles []string) string {
	sorted := append([]string(nil), titles...)
	sort.Strings(sorted)

	h := fnv.New64a()
	for _, t := range sorted {
		h.Write([]byte(strings.ToLower(t)))
		h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
