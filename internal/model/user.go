// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. Go favours composition over
// inheritance, so a public profile embeds the User it describes.
package model

import "time"

// User represents a registered Maratonei account.
//
// A user signs up either with email/password or through GitHub OAuth, so both
// Email and GitHubID may be empty (never both). PasswordHash is never
// serialized: the `json:"-"` tag keeps it out of every API response.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	Bio          string    `json:"bio"`
	AvatarURL    string    `json:"avatarUrl"`
	CoverTheme   string    `json:"coverTheme"` // preset key or image URL
	Onboarded    bool      `json:"onboarded"`
	Maracoins    int64     `json:"maracoins"`
	IsBot        bool      `json:"isBot"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSummary is the compact author card shown next to feed items,
// comments and follower lists.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	IsBot     bool   `json:"isBot,omitempty"`
}

// Summary returns the compact card for u.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL, IsBot: u.IsBot}
}

// Profile is the public profile view: the user plus derived counters.
// Counts are computed on read rather than stored, so they can never drift.
//
// Maracoins shadows User.Maracoins on the wire and is only set when the
// owner is looking, so other viewers never see the balance.
type Profile struct {
	User
	Maracoins      *int64         `json:"maracoins,omitempty"`
	FollowerCount  int            `json:"followerCount"`
	FollowingCount int            `json:"followingCount"`
	StatusCounts   map[Status]int `json:"statusCounts"`
	MinutesWatched int            `json:"minutesWatched"`
	HoursWatched   float64        `json:"hoursWatched"` // one decimal place
	IsFollowing    bool           `json:"isFollowing"`
}
