package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTMDBClient_PosterURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/tv", r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("api_key"))
		assert.Equal(t, "Dark", r.URL.Query().Get("query"))
		assert.Equal(t, "2017", r.URL.Query().Get("first_air_date_year"))
		w.Write([]byte(`{"results":[
			{"id":1,"name":"Dark Matter","first_air_date":"2015-06-12","poster_path":"/matter.jpg"},
			{"id":2,"name":"Dark","original_name":"Dark","first_air_date":"2017-12-01","poster_path":"/dark.jpg"}
		]}`))
	}))
	defer srv.Close()

	c := NewTMDBClient("k", srv.URL, "https://image.tmdb.org/t/p/w500/", discardLogger())
	poster, err := c.PosterURL(context.Background(), "Dark", 2017)
	require.NoError(t, err)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/dark.jpg", poster)
}

func TestTMDBClient_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := NewTMDBClient("k", srv.URL, "https://img", discardLogger())
	poster, err := c.PosterURL(context.Background(), "Nothing", 0)
	require.NoError(t, err)
	assert.Empty(t, poster)
}

func TestTMDBClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_message":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewTMDBClient("bad", srv.URL, "https://img", discardLogger())
	_, err := c.PosterURL(context.Background(), "Dark", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTMDBClient_Nil(t *testing.T) {
	c := NewTMDBClient("", "https://api", "https://img", discardLogger())
	_, err := c.PosterURL(context.Background(), "Dark", 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPickResult(t *testing.T) {
	results := []tvResult{
		{Name: "The Office", FirstAirDate: "2005-03-24", PosterPath: "/us.jpg"},
		{Name: "The Office", FirstAirDate: "2001-07-09", PosterPath: "/uk.jpg"},
		{Name: "Office Ladies", FirstAirDate: "2019-01-01", PosterPath: "/pod.jpg"},
	}

	tests := []struct {
		name  string
		title string
		year  int
		want  string
	}{
		{"exact title and year", "The Office", 2001, "/uk.jpg"},
		{"title only", "the office", 1990, "/us.jpg"},
		{"no title match uses first", "Officeland", 0, "/us.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pickResult(results, tt.title, tt.year)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.PosterPath)
		})
	}

	assert.Nil(t, pickResult(nil, "x", 0))
}
