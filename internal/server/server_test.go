package server

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/maratonei/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:   8080,
		DBPath: ":memory:",
		Auth: config.AuthConfig{
			JWTSecret: "server-test-secret-0123456789",
			TokenTTL:  time.Hour,
		},
		Gemini: config.GeminiConfig{BaseURL: "http://gemini.invalid/", Model: "test"},
		TMDB:   config.TMDBConfig{BaseURL: "http://tmdb.invalid", ImageBaseURL: "http://img.invalid"},
		News: config.NewsConfig{
			Enabled:    true,
			FeedURL:    "http://feed.invalid/rss",
			Schedule:   "@every 30m",
			CronSecret: "cron-secret",
		},
		AppURL:             "http://localhost:5173",
		CORSOrigins:        []string{"http://localhost:5173"},
		RateLimitPerMinute: 1000,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func serve(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := serve(s, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = serve(s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "maratonei_http_requests_total")
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := serve(s, http.MethodPost, "/api/auth/register", "",
		`{"name":"Ana","email":"ana@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var token string
	for _, c := range rr.Result().Cookies() {
		if c.Name == "token" {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"me requires a session", http.MethodGet, "/api/me", "", http.StatusUnauthorized},
		{"me", http.MethodGet, "/api/me", token, http.StatusOK},
		{"public feed", http.MethodGet, "/api/feed", "", http.StatusOK},
		{"badge catalog", http.MethodGet, "/api/badges", "", http.StatusOK},
		{"market", http.MethodGet, "/api/market", "", http.StatusOK},
		{"unknown series", http.MethodGet, "/api/series/nope-1999", "", http.StatusNotFound},
		{"recommendations require a session", http.MethodGet, "/api/recommendations", "", http.StatusUnauthorized},
		{"recommendations", http.MethodGet, "/api/recommendations", token, http.StatusOK},
		{"news bot without secret", http.MethodPost, "/api/internal/news-bot/run", "", http.StatusUnauthorized},
		{"github login not configured", http.MethodGet, "/auth/github/login", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, tt.method, tt.path, tt.token, "")
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestNewsBotRunEndpoint(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>news</title>
<item><title>Severance renovada</title><link>https://news.test/severance</link><description>Terceira temporada.</description></item>
</channel></rss>`))
	}))
	defer feed.Close()

	cfg := testConfig()
	cfg.News.FeedURL = feed.URL
	s := newTestServer(t, cfg)
	require.NotNil(t, s.scheduler)

	req := httptest.NewRequest(http.MethodPost, "/api/internal/news-bot/run", nil)
	req.Header.Set("X-Cron-Secret", "cron-secret")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"result":"posted"`)

	rr = serve(s, http.MethodGet, "/api/feed", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Severance renovada")
	assert.Contains(t, rr.Body.String(), `"isBot":true`)
}

func TestNewsBotDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.News.Enabled = false
	s := newTestServer(t, cfg)

	assert.Nil(t, s.scheduler)
	rr := serve(s, http.MethodPost, "/api/internal/news-bot/run", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	s := newTestServer(t, cfg)

	var codes []int
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{}`))
		req.RemoteAddr = "203.0.113.9:1234"
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestNew_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.News.Schedule = "whenever"
	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestStart_ListenErrorStopsScheduler(t *testing.T) {
	var fetches atomic.Int32
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(`<rss version="2.0"><channel><title>news</title></channel></rss>`))
	}))
	defer feed.Close()

	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.Port = busy.Addr().(*net.TCPAddr).Port
	cfg.News.FeedURL = feed.URL
	cfg.News.Schedule = "@every 1s"
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	require.Error(t, s.Start())

	// A scheduler left running would fetch the feed against a closed database.
	time.Sleep(1500 * time.Millisecond)
	assert.Zero(t, fetches.Load())
}
