package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/metadata"
	"github.com/sakif/maratonei/internal/model"
)

type fakeFinder struct {
	results []metadata.SeriesInfo
	err     error

	searches    int
	recommends  int
	lastLiked   []string
	lastExclude []string
}

func (f *fakeFinder) SearchSeries(ctx context.Context, query string, limit int) ([]metadata.SeriesInfo, error) {
	f.searches++
	return f.results, f.err
}

func (f *fakeFinder) Recommend(ctx context.Context, liked, exclude []string, limit int) ([]metadata.SeriesInfo, error) {
	f.recommends++
	f.lastLiked, f.lastExclude = liked, exclude
	return f.results, f.err
}

type fakePosters struct {
	urls map[string]string
	err  error
}

func (f *fakePosters) PosterURL(ctx context.Context, title string, year int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.urls[title], nil
}

// memCache stores values as JSON, like the Redis cache does.
type memCache struct {
	items map[string][]byte
}

func newMemCache() *memCache { return &memCache{items: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

type searchFixture struct {
	svc     *SearchService
	finder  *fakeFinder
	posters *fakePosters
	cache   *memCache
	series  *fakeSeriesRepo
	lists   *fakeListRepo
}

func newSearchFixture() *searchFixture {
	finder := &fakeFinder{results: []metadata.SeriesInfo{
		{Title: "Dark", Year: 2017, Synopsis: "Viagem no tempo.", Genres: []string{"Sci-Fi"}, Episodes: 26, EpisodeDuration: 55},
		{Title: "1899", Year: 2022, Genres: []string{"Mystery"}, Episodes: 8, EpisodeDuration: 60},
	}}
	posters := &fakePosters{urls: map[string]string{"Dark": "https://img/dark.jpg"}}
	cache := newMemCache()
	series := newFakeSeriesRepo(model.Series{ID: "darkwing-duck-1991", Title: "Darkwing Duck", Year: 1991})
	lists := newFakeListRepo(series)
	return &searchFixture{
		svc:     NewSearchService(finder, posters, cache, series, lists, testLogger()),
		finder:  finder,
		posters: posters,
		cache:   cache,
		series:  series,
		lists:   lists,
	}
}

func TestSearch_AIResultsAreSavedAndCached(t *testing.T) {
	f := newSearchFixture()

	got, err := f.svc.Search(context.Background(), "German  TIME travel")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Search() = %d results, want 2", len(got))
	}
	if got[0].ID != "dark-2017" || got[0].PosterURL != "https://img/dark.jpg" {
		t.Errorf("first result = %+v", got[0])
	}
	if got[1].PosterURL != "" {
		t.Errorf("missing poster should stay empty, got %q", got[1].PosterURL)
	}
	if _, ok := f.series.series["dark-2017"]; !ok {
		t.Error("AI result was not saved to the catalog")
	}

	// Same query modulo case and spacing: served from cache.
	again, err := f.svc.Search(context.Background(), "german time travel")
	if err != nil {
		t.Fatalf("second Search() error = %v", err)
	}
	if f.finder.searches != 1 {
		t.Errorf("AI called %d times, want 1", f.finder.searches)
	}
	if len(again) != 2 || again[0].ID != "dark-2017" {
		t.Errorf("cached results = %+v", again)
	}
}

func TestSearch_FallsBackToCatalog(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"AI not configured", metadata.ErrUnavailable},
		{"AI failing", errors.New("upstream 500")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSearchFixture()
			f.finder.err = tt.err

			got, err := f.svc.Search(context.Background(), "darkwing")
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if len(got) != 1 || got[0].ID != "darkwing-duck-1991" {
				t.Errorf("Search() = %+v, want the catalog match", got)
			}
			if len(f.cache.items) != 0 {
				t.Error("fallback results should not be cached")
			}
		})
	}
}

func TestSearch_PosterFailureIsNotFatal(t *testing.T) {
	f := newSearchFixture()
	f.posters.err = errors.New("tmdb down")

	got, err := f.svc.Search(context.Background(), "dark")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 || got[0].PosterURL != "" {
		t.Errorf("Search() = %+v", got)
	}
}

func TestSearch_Validation(t *testing.T) {
	f := newSearchFixture()

	for _, q := range []string{"", "   ", string(make([]byte, 101))} {
		if _, err := f.svc.Search(context.Background(), q); !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Search(len=%d) error = %v, want validation", len(q), err)
		}
	}
}

func TestRecommendations(t *testing.T) {
	f := newSearchFixture()
	f.series.series["lost-2004"] = &model.Series{ID: "lost-2004", Title: "Lost"}
	f.series.series["fringe-2008"] = &model.Series{ID: "fringe-2008", Title: "Fringe"}
	f.lists.entries[entryKey("u1", "lost-2004")] = &model.UserSeries{UserID: "u1", SeriesID: "lost-2004", Status: model.StatusWatched}
	f.lists.entries[entryKey("u1", "fringe-2008")] = &model.UserSeries{UserID: "u1", SeriesID: "fringe-2008", Status: model.StatusWantToWatch}

	got, err := f.svc.Recommendations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Recommendations() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Recommendations() = %+v", got)
	}
	if len(f.finder.lastLiked) != 1 || f.finder.lastLiked[0] != "Lost" {
		t.Errorf("liked = %v, want only watched/watching titles", f.finder.lastLiked)
	}
	if len(f.finder.lastExclude) != 2 {
		t.Errorf("exclude = %v, want every listed title", f.finder.lastExclude)
	}

	if _, err := f.svc.Recommendations(context.Background(), "u1"); err != nil {
		t.Fatalf("second Recommendations() error = %v", err)
	}
	if f.finder.recommends != 1 {
		t.Errorf("AI called %d times, want cached second call", f.finder.recommends)
	}

	// Editing the list changes the cache key.
	delete(f.lists.entries, entryKey("u1", "fringe-2008"))
	f.svc.Recommendations(context.Background(), "u1")
	if f.finder.recommends != 2 {
		t.Errorf("AI called %d times after list change, want 2", f.finder.recommends)
	}
}

func TestRecommendations_Degrades(t *testing.T) {
	f := newSearchFixture()

	got, err := f.svc.Recommendations(context.Background(), "nobody")
	if err != nil || len(got) != 0 || f.finder.recommends != 0 {
		t.Errorf("empty list: got %v, %v; AI calls %d", got, err, f.finder.recommends)
	}

	f.series.series["lost-2004"] = &model.Series{ID: "lost-2004", Title: "Lost"}
	f.lists.entries[entryKey("u1", "lost-2004")] = &model.UserSeries{UserID: "u1", SeriesID: "lost-2004", Status: model.StatusWatching}
	f.finder.err = metadata.ErrUnavailable

	got, err = f.svc.Recommendations(context.Background(), "u1")
	if err != nil || len(got) != 0 {
		t.Errorf("AI unavailable: got %v, %v; want empty, nil", got, err)
	}

	f.lists.listErr = errDatabase
	if _, err := f.svc.Recommendations(context.Background(), "u1"); !errors.Is(err, errDatabase) {
		t.Errorf("list failure error = %v", err)
	}
}

func TestListFingerprint(t *testing.T) {
	a := listFingerprint([]string{"Dark", "Lost"})
	if b := listFingerprint([]string{"lost", "dark"}); a != b {
		t.Errorf("fingerprint depends on order or case: %s vs %s", a, b)
	}
	if c := listFingerprint([]string{"Dark"}); a == c {
		t.Error("different lists share a fingerprint")
	}
}
