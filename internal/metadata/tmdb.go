package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

const tmdbUpstream = "tmdb"

// TMDBClient looks up TV posters on The Movie Database.
type TMDBClient struct {
	apiKey       string
	baseURL      string
	imageBaseURL string
	http         *http.Client
	cb           *gobreaker.CircuitBreaker[*tvSearchResponse]
	logger       *slog.Logger
}

// NewTMDBClient returns nil when apiKey is empty; a nil client has no posters.
func NewTMDBClient(apiKey, baseURL, imageBaseURL string, logger *slog.Logger) *TMDBClient {
	if apiKey == "" {
		return nil
	}
	return &TMDBClient{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		imageBaseURL: strings.TrimRight(imageBaseURL, "/"),
		http:         &http.Client{Timeout: 10 * time.Second},
		cb:           newBreaker[*tvSearchResponse](tmdbUpstream, logger),
		logger:       logger,
	}
}

type tvSearchResponse struct {
	Results []tvResult `json:"results"`
}

type tvResult struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	FirstAirDate string `json:"first_air_date"`
	PosterPath   string `json:"poster_path"`
}

func (r tvResult) year() int {
	if len(r.FirstAirDate) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(r.FirstAirDate[:4])
	return y
}

// PosterURL returns the full poster URL of the best match for title, or ""
// when TMDB has no poster for it. year narrows the search when known.
func (c *TMDBClient) PosterURL(ctx context.Context, title string, year int) (string, error) {
	if c == nil {
		return "", ErrUnavailable
	}

	res, err := call(c.cb, func() (*tvSearchResponse, error) {
		return c.searchTV(ctx, title, year)
	})
	if err != nil {
		return "", err
	}

	best := pickResult(res.Results, title, year)
	if best == nil || best.PosterPath == "" {
		return "", nil
	}
	return c.imageBaseURL + best.PosterPath, nil
}

func (c *TMDBClient) searchTV(ctx context.Context, title string, year int) (*tvSearchResponse, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("query", title)
	q.Set("language", "pt-BR")
	if year > 0 {
		q.Set("first_air_date_year", strconv.Itoa(year))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/tv?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("metadata: building TMDB request: %w", err)
	}

	c.logger.Debug("fetching TMDB search", slog.String("title", title), slog.Int("year", year))
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata: TMDB request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("metadata: TMDB returned status %d: %s", resp.StatusCode, body)
	}

	var out tvSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("metadata: decoding TMDB response: %w", err)
	}
	return &out, nil
}

// pickResult prefers an exact title match from the right year, then any
// exact title match, then TMDB's own first result.
func pickResult(results []tvResult, title string, year int) *tvResult {
	if len(results) == 0 {
		return nil
	}
	var titleOnly *tvResult
	for i := range results {
		r := &results[i]
		if !strings.EqualFold(r.Name, title) && !strings.EqualFold(r.OriginalName, title) {
			continue
		}
		if year == 0 || r.year() == year {
			return r
		}
		if titleOnly == nil {
			titleOnly = r
		}
	}
	if titleOnly != nil {
		return titleOnly
	}
	return &results[0]
}
