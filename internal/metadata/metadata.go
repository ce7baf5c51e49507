// Package metadata fetches series information from outside sources: a
// generative-AI model (Gemini, via its OpenAI-compatible endpoint) for search
// and recommendations, and TMDB for poster images. Every outbound call runs
// behind a per-upstream circuit breaker, and results can be cached in Redis.
package metadata

import (
	"errors"
	"strings"
)

// ErrUnavailable is returned when an upstream is not configured or its
// circuit breaker is open. Callers fall back to local data.
var ErrUnavailable = errors.New("metadata: upstream unavailable")

// SeriesInfo is what the AI returns for one show. The jsonschema tags feed
// the structured-output schema the model must follow.
type SeriesInfo struct {
	Title           string   `json:"title" jsonschema_description:"Original or most common title of the TV series"`
	Year            int      `json:"year" jsonschema_description:"Year the first season premiered"`
	Synopsis        string   `json:"synopsis" jsonschema_description:"Two or three sentence synopsis in Brazilian Portuguese"`
	Genres          []string `json:"genres" jsonschema_description:"Up to three genres"`
	Seasons         int      `json:"seasons" jsonschema_description:"Number of seasons released so far"`
	Episodes        int      `json:"episodes" jsonschema_description:"Total number of episodes released so far"`
	EpisodeDuration int      `json:"episodeDuration" jsonschema_description:"Average episode length in minutes"`
}

// seriesList wraps results; structured output needs an object at the root.
type seriesList struct {
	Series []SeriesInfo `json:"series"`
}

// clean drops entries without a title and trims whitespace.
func clean(in []SeriesInfo) []SeriesInfo {
	out := make([]SeriesInfo, 0, len(in))
	for _, s := range in {
		s.Title = strings.TrimSpace(s.Title)
		if s.Title == "" {
			continue
		}
		s.Synopsis = strings.TrimSpace(s.Synopsis)
		if s.Genres == nil {
			s.Genres = []string{}
		}
		out = append(out, s)
	}
	return out
}
