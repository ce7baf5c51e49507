package model

import (
	"time"

	"github.com/goccy/go-json"
)

// ActivityType identifies what a feed entry represents.
type ActivityType string

const (
	ActivityPost         ActivityType = "POST"
	ActivityAddSeries    ActivityType = "ADD_SERIES"
	ActivityUpdateStatus ActivityType = "UPDATE_STATUS"
)

// Activity is a feed-visible event owned by a user.
//
// Payload is stored as raw JSON; its shape depends on Type (see PostPayload
// and SeriesPayload). LikeCount, CommentCount and LikedByMe are derived
// per request and are not columns.
type Activity struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Type         ActivityType    `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	CreatedAt    time.Time       `json:"createdAt"`
	Author       *UserSummary    `json:"author,omitempty"`
	LikeCount    int             `json:"likeCount"`
	CommentCount int             `json:"commentCount"`
	LikedByMe    bool            `json:"likedByMe"`
}

// PostPayload is the payload of a POST activity.
type PostPayload struct {
	Text     string `json:"text"`
	ImageURL string `json:"imageUrl,omitempty"`
	Link     string `json:"link,omitempty"`
	Title    string `json:"title,omitempty"` // set by the news bot
}

// SeriesPayload is the payload of ADD_SERIES and UPDATE_STATUS activities.
type SeriesPayload struct {
	SeriesID   string `json:"seriesId"`
	Title      string `json:"title"`
	PosterURL  string `json:"posterUrl,omitempty"`
	Status     Status `json:"status"`
	PrevStatus Status `json:"prevStatus,omitempty"`
}

// Comment is a reply on an activity.
type Comment struct {
	ID         string       `json:"id"`
	ActivityID string       `json:"activityId"`
	UserID     string       `json:"userId"`
	Text       string       `json:"text"`
	CreatedAt  time.Time    `json:"createdAt"`
	Author     *UserSummary `json:"author,omitempty"`
}
