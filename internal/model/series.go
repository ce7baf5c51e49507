package model

import "time"

// Status is the viewing status of a series on a user's list.
type Status string

const (
	StatusWatching    Status = "Watching"
	StatusWatched     Status = "Watched"
	StatusWantToWatch Status = "Want to Watch"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusWatching, StatusWatched, StatusWantToWatch}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Series is a catalog entry. The ID is a slug derived from title and year
// (e.g. "breaking-bad-2008") so the same show found twice maps to one row.
type Series struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Year            int       `json:"year"`
	Synopsis        string    `json:"synopsis"`
	Genres          []string  `json:"genres"`
	PosterURL       string    `json:"posterUrl"`
	Seasons         int       `json:"seasons"`
	Episodes        int       `json:"episodes"`
	EpisodeDuration int       `json:"episodeDuration"` // average, in minutes
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TotalMinutes is the runtime of the whole show.
func (s *Series) TotalMinutes() int {
	return s.Episodes * s.EpisodeDuration
}

// MaxRankSlot is the number of ranking slots a user has (their top 3).
const MaxRankSlot = 3

// UserSeries is a user's personal record of a series.
type UserSeries struct {
	UserID    string    `json:"userId"`
	SeriesID  string    `json:"seriesId"`
	Status    Status    `json:"status"`
	Note      string    `json:"note"`
	RankSlot  *int      `json:"rankSlot,omitempty"` // 1..MaxRankSlot
	Rating    *int      `json:"rating,omitempty"`   // 1..5
	AddedAt   time.Time `json:"addedAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Series is populated by list queries that join the catalog.
	Series *Series `json:"series,omitempty"`
}
