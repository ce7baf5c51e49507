// Package newsbot posts entertainment news from an RSS feed to the community
// feed, authored by a system bot account.
//
// Each run fetches the feed, skips items the bot has already posted (by
// normalized title or link) and posts at most one new item, so the feed gets
// a steady trickle rather than a burst.
package newsbot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mmcdole/gofeed"

	"github.com/sakif/maratonei/internal/metrics"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

const (
	// candidates is how many of the newest feed items a run considers.
	candidates = 5

	// dedupeWindow is how many of the bot's recent posts are compared.
	dedupeWindow = 50

	maxTextLength = 280
)

// Result is the outcome of one run.
type Result string

const (
	ResultPosted    Result = "posted"
	ResultDuplicate Result = "duplicate"
	ResultEmpty     Result = "empty"
	ResultError     Result = "error"
)

// Profile is the bot account shown as the author of news posts.
var Profile = model.User{
	Name:      "Maratonei News",
	Bio:       "Notícias de séries, direto do forno.",
	AvatarURL: "https://api.dicebear.com/7.x/bottts/svg?seed=maratonei",
}

// Bot fetches the feed and publishes news posts.
type Bot struct {
	feedURL    string
	parser     *gofeed.Parser
	users      repository.UserRepository
	activities repository.ActivityRepository
	logger     *slog.Logger

	mu    sync.Mutex // one run at a time
	botID string
}

func New(feedURL string, users repository.UserRepository, activities repository.ActivityRepository, logger *slog.Logger) *Bot {
	parser := gofeed.NewParser()
	parser.UserAgent = "Maratonei-NewsBot/1.0"
	parser.Client = &http.Client{Timeout: 15 * time.Second}

	return &Bot{
		feedURL:    feedURL,
		parser:     parser,
		users:      users,
		activities: activities,
		logger:     logger,
	}
}

// EnsureUser creates the bot account on first start and remembers its ID.
func (b *Bot) EnsureUser(ctx context.Context) (*model.User, error) {
	bot := Profile
	if err := b.users.EnsureBotUser(ctx, &bot); err != nil {
		return nil, fmt.Errorf("newsbot: ensuring bot user: %w", err)
	}

	b.mu.Lock()
	b.botID = bot.ID
	b.mu.Unlock()

	b.logger.Info("news bot user ready", slog.String("userID", bot.ID))
	return &bot, nil
}

// RunOutcome describes what a run did. Activity is set when a post was made.
type RunOutcome struct {
	Result   Result          `json:"result"`
	Activity *model.Activity `json:"activity,omitempty"`
}

// Run performs one poll-and-post cycle.
func (b *Bot) Run(ctx context.Context) (*RunOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out, err := b.run(ctx)
	if err != nil {
		metrics.NewsBotRuns.WithLabelValues(string(ResultError)).Inc()
		b.logger.Error("news bot run failed", slog.String("error", err.Error()))
		return nil, err
	}

	metrics.NewsBotRuns.WithLabelValues(string(out.Result)).Inc()
	metrics.NewsBotLastRun.SetToCurrentTime()
	b.logger.Info("news bot run finished", slog.String("result", string(out.Result)))
	return out, nil
}

func (b *Bot) run(ctx context.Context) (*RunOutcome, error) {
	if b.botID == "" {
		return nil, errors.New("newsbot: bot user not initialized")
	}

	feed, err := b.parser.ParseURLWithContext(b.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("newsbot: fetching %s: %w", b.feedURL, err)
	}

	items := newest(feed.Items, candidates)
	if len(items) == 0 {
		return &RunOutcome{Result: ResultEmpty}, nil
	}

	seen, err := b.recentKeys(ctx)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		title, link := normalize(item.Title), normalizeLink(item.Link)
		if title == "" && link == "" {
			continue
		}
		if (title != "" && seen[title]) || (link != "" && seen[link]) {
			continue
		}

		activity, err := b.post(ctx, item)
		if err != nil {
			return nil, err
		}
		return &RunOutcome{Result: ResultPosted, Activity: activity}, nil
	}
	return &RunOutcome{Result: ResultDuplicate}, nil
}

// recentKeys returns the normalized titles and links of the bot's latest posts.
func (b *Bot) recentKeys(ctx context.Context) (map[string]bool, error) {
	recent, err := b.activities.ListFeed(ctx, repository.FeedQuery{
		AuthorID:    b.botID,
		ListOptions: repository.ListOptions{Limit: dedupeWindow},
	})
	if err != nil {
		return nil, fmt.Errorf("newsbot: loading recent posts: %w", err)
	}

	seen := make(map[string]bool, 2*len(recent))
	for _, a := range recent {
		var p model.PostPayload
		if err := json.Unmarshal(a.Payload, &p); err != nil {
			b.logger.Warn("skipping unreadable bot post", slog.String("activityID", a.ID))
			continue
		}
		if t := normalize(p.Title); t != "" {
			seen[t] = true
		}
		if l := normalizeLink(p.Link); l != "" {
			seen[l] = true
		}
	}
	return seen, nil
}

func (b *Bot) post(ctx context.Context, item *gofeed.Item) (*model.Activity, error) {
	payload := model.PostPayload{
		Title:    strings.TrimSpace(item.Title),
		Text:     summary(item),
		Link:     strings.TrimSpace(item.Link),
		ImageURL: imageURL(item),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("newsbot: encoding post: %w", err)
	}

	activity := &model.Activity{UserID: b.botID, Type: model.ActivityPost, Payload: raw}
	if err := b.activities.CreateActivity(ctx, activity); err != nil {
		return nil, fmt.Errorf("newsbot: creating post: %w", err)
	}
	metrics.ActivitiesCreated.WithLabelValues(string(model.ActivityPost)).Inc()

	b.logger.Info("news posted", slog.String("title", payload.Title), slog.String("activityID", activity.ID))
	return activity, nil
}

// newest returns up to n items, most recently published first. Items
// without a date keep their feed order after the dated ones.
func newest(items []*gofeed.Item, n int) []*gofeed.Item {
	sorted := append([]*gofeed.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].PublishedParsed, sorted[j].PublishedParsed
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// normalize lower-cases s and collapses whitespace and HTML entities, so
// "Dark  ganha&nbsp;trailer" and "dark ganha trailer" compare equal.
func normalize(s string) string {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.ToLower(strings.TrimSpace(spacePattern.ReplaceAllString(s, " ")))
}

// normalizeLink ignores scheme, trailing slash and query-string tracking.
func normalizeLink(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(s, "/")
}

// summary is the item description as plain text, cut at maxTextLength.
func summary(item *gofeed.Item) string {
	text := item.Description
	if text == "" {
		text = item.Content
	}
	text = html.UnescapeString(tagPattern.ReplaceAllString(text, " "))
	text = strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
	if text == "" {
		text = strings.TrimSpace(item.Title)
	}

	runes := []rune(text)
	if len(runes) > maxTextLength {
		text = strings.TrimSpace(string(runes[:maxTextLength-1])) + "…"
	}
	return text
}

func imageURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}
	return ""
}
