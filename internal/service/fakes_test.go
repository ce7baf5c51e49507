package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

// In-memory fakes of the repository interfaces. They implement just enough
// behavior for the service rules to be observable.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =========================================================================
// users
// =========================================================================

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int

	// set to simulate a database failure
	createErr error
	upsertErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) add(name string) *model.User {
	f.nextID++
	u := &model.User{ID: fmt.Sprintf("user-%d", f.nextID), Name: name, Maracoins: StartingMaracoins}
	f.users[u.ID] = u
	return u
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	email := strings.ToLower(user.Email)
	for _, u := range f.users {
		if email != "" && u.Email == email {
			return apperror.Conflict("an account with this email already exists")
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.Email = email
	user.CreatedAt = time.Now()
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, u := range f.users {
		if u.GitHubID != nil && user.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			u.AvatarURL = user.AvatarURL
			*user = *u
			return nil
		}
	}
	if email := strings.ToLower(user.Email); email != "" {
		for _, u := range f.users {
			if u.Email != email {
				continue
			}
			if u.GitHubID != nil {
				return apperror.Conflict("this email is linked to another GitHub account")
			}
			id := *user.GitHubID
			u.GitHubID = &id
			*user = *u
			return nil
		}
	}
	return f.CreateUser(ctx, user)
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email != "" && u.Email == strings.ToLower(email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpdateUser(ctx context.Context, user *model.User) error {
	stored, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	stored.Name = user.Name
	stored.Bio = user.Bio
	stored.AvatarURL = user.AvatarURL
	stored.CoverTheme = user.CoverTheme
	stored.Onboarded = user.Onboarded
	return nil
}

func (f *fakeUserRepo) SearchUsers(ctx context.Context, query string, opts repository.ListOptions) ([]model.User, error) {
	var out []model.User
	for _, u := range f.users {
		if !u.IsBot && strings.Contains(strings.ToLower(u.Name), strings.ToLower(query)) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeUserRepo) EnsureBotUser(ctx context.Context, bot *model.User) error {
	for _, u := range f.users {
		if u.IsBot {
			*bot = *u
			return nil
		}
	}
	bot.IsBot = true
	return f.CreateUser(ctx, bot)
}

// =========================================================================
// series and lists
// =========================================================================

type fakeSeriesRepo struct {
	series map[string]*model.Series
}

func newFakeSeriesRepo(seed ...model.Series) *fakeSeriesRepo {
	f := &fakeSeriesRepo{series: make(map[string]*model.Series)}
	for i := range seed {
		s := seed[i]
		f.series[s.ID] = &s
	}
	return f
}

func (f *fakeSeriesRepo) UpsertSeries(ctx context.Context, series *model.Series) error {
	copied := *series
	f.series[series.ID] = &copied
	return nil
}

func (f *fakeSeriesRepo) GetSeries(ctx context.Context, id string) (*model.Series, error) {
	s, ok := f.series[id]
	if !ok {
		return nil, apperror.NotFound("series", id)
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSeriesRepo) SearchSeries(ctx context.Context, query string, limit int) ([]model.Series, error) {
	out := []model.Series{}
	for _, s := range f.series {
		if strings.Contains(strings.ToLower(s.Title), strings.ToLower(query)) {
			out = append(out, *s)
		}
	}
	return out, nil
}

type fakeListRepo struct {
	series  *fakeSeriesRepo
	entries map[string]*model.UserSeries // key: user|series
	listErr error
}

func newFakeListRepo(series *fakeSeriesRepo) *fakeListRepo {
	return &fakeListRepo{series: series, entries: make(map[string]*model.UserSeries)}
}

func entryKey(userID, seriesID string) string { return userID + "|" + seriesID }

func (f *fakeListRepo) withSeries(e model.UserSeries) model.UserSeries {
	if s, ok := f.series.series[e.SeriesID]; ok {
		copied := *s
		e.Series = &copied
	}
	return e
}

func (f *fakeListRepo) AddEntry(ctx context.Context, entry *model.UserSeries) error {
	if _, ok := f.series.series[entry.SeriesID]; !ok {
		return apperror.NotFound("series", entry.SeriesID)
	}
	key := entryKey(entry.UserID, entry.SeriesID)
	if _, ok := f.entries[key]; ok {
		return apperror.Conflict("series is already on your list")
	}
	entry.AddedAt = time.Now()
	copied := *entry
	f.entries[key] = &copied
	return nil
}

func (f *fakeListRepo) GetEntry(ctx context.Context, userID, seriesID string) (*model.UserSeries, error) {
	e, ok := f.entries[entryKey(userID, seriesID)]
	if !ok {
		return nil, apperror.NotFound("list entry", seriesID)
	}
	out := f.withSeries(*e)
	return &out, nil
}

func (f *fakeListRepo) UpdateEntry(ctx context.Context, entry *model.UserSeries) error {
	e, ok := f.entries[entryKey(entry.UserID, entry.SeriesID)]
	if !ok {
		return apperror.NotFound("list entry", entry.SeriesID)
	}
	e.Status, e.Note, e.Rating = entry.Status, entry.Note, entry.Rating
	return nil
}

func (f *fakeListRepo) RemoveEntry(ctx context.Context, userID, seriesID string) error {
	key := entryKey(userID, seriesID)
	if _, ok := f.entries[key]; !ok {
		return apperror.NotFound("list entry", seriesID)
	}
	delete(f.entries, key)
	return nil
}

func (f *fakeListRepo) ListEntries(ctx context.Context, userID string, status model.Status) ([]model.UserSeries, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.UserSeries{}
	for _, e := range f.entries {
		if e.UserID == userID && (status == "" || e.Status == status) {
			out = append(out, f.withSeries(*e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeriesID < out[j].SeriesID })
	return out, nil
}

func (f *fakeListRepo) SetRankSlot(ctx context.Context, userID, seriesID string, slot int) error {
	target, ok := f.entries[entryKey(userID, seriesID)]
	if !ok {
		return apperror.NotFound("list entry", seriesID)
	}
	for _, e := range f.entries {
		if e.UserID == userID && e.RankSlot != nil && *e.RankSlot == slot {
			e.RankSlot = nil
		}
	}
	target.RankSlot = &slot
	return nil
}

func (f *fakeListRepo) ClearRankSlot(ctx context.Context, userID string, slot int) error {
	for _, e := range f.entries {
		if e.UserID == userID && e.RankSlot != nil && *e.RankSlot == slot {
			e.RankSlot = nil
		}
	}
	return nil
}

func (f *fakeListRepo) Ranking(ctx context.Context, userID string) ([]model.UserSeries, error) {
	out := []model.UserSeries{}
	for _, e := range f.entries {
		if e.UserID == userID && e.RankSlot != nil {
			out = append(out, f.withSeries(*e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].RankSlot < *out[j].RankSlot })
	return out, nil
}

// =========================================================================
// activities
// =========================================================================

type fakeActivityRepo struct {
	activities []*model.Activity
	likes      map[string]map[string]bool // activity → user
	comments   []*model.Comment
	nextID     int
	createErr  error
}

func newFakeActivityRepo() *fakeActivityRepo {
	return &fakeActivityRepo{likes: make(map[string]map[string]bool)}
}

func (f *fakeActivityRepo) ofType(typ model.ActivityType) []*model.Activity {
	var out []*model.Activity
	for _, a := range f.activities {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeActivityRepo) CreateActivity(ctx context.Context, activity *model.Activity) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	activity.ID = fmt.Sprintf("act-%d", f.nextID)
	activity.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	copied := *activity
	f.activities = append(f.activities, &copied)
	return nil
}

func (f *fakeActivityRepo) view(a *model.Activity, viewerID string) model.Activity {
	out := *a
	out.LikeCount = len(f.likes[a.ID])
	out.LikedByMe = f.likes[a.ID][viewerID]
	for _, c := range f.comments {
		if c.ActivityID == a.ID {
			out.CommentCount++
		}
	}
	return out
}

func (f *fakeActivityRepo) find(id string) *model.Activity {
	for _, a := range f.activities {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (f *fakeActivityRepo) GetActivity(ctx context.Context, id, viewerID string) (*model.Activity, error) {
	a := f.find(id)
	if a == nil {
		return nil, apperror.NotFound("activity", id)
	}
	out := f.view(a, viewerID)
	return &out, nil
}

func (f *fakeActivityRepo) DeleteActivity(ctx context.Context, id string) error {
	for i, a := range f.activities {
		if a.ID == id {
			f.activities = append(f.activities[:i], f.activities[i+1:]...)
			delete(f.likes, id)
			return nil
		}
	}
	return apperror.NotFound("activity", id)
}

func (f *fakeActivityRepo) ListFeed(ctx context.Context, q repository.FeedQuery) ([]model.Activity, error) {
	out := []model.Activity{}
	for i := len(f.activities) - 1; i >= 0; i-- {
		a := f.activities[i]
		if q.AuthorID != "" && a.UserID != q.AuthorID {
			continue
		}
		out = append(out, f.view(a, q.ViewerID))
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeActivityRepo) Like(ctx context.Context, activityID, userID string) error {
	if f.find(activityID) == nil {
		return apperror.NotFound("activity", activityID)
	}
	if f.likes[activityID] == nil {
		f.likes[activityID] = make(map[string]bool)
	}
	f.likes[activityID][userID] = true
	return nil
}

func (f *fakeActivityRepo) Unlike(ctx context.Context, activityID, userID string) error {
	delete(f.likes[activityID], userID)
	return nil
}

func (f *fakeActivityRepo) AddComment(ctx context.Context, comment *model.Comment) error {
	if f.find(comment.ActivityID) == nil {
		return apperror.NotFound("activity", comment.ActivityID)
	}
	f.nextID++
	comment.ID = fmt.Sprintf("cmt-%d", f.nextID)
	copied := *comment
	f.comments = append(f.comments, &copied)
	return nil
}

func (f *fakeActivityRepo) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	for _, c := range f.comments {
		if c.ID == id {
			copied := *c
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("comment", id)
}

func (f *fakeActivityRepo) ListComments(ctx context.Context, activityID string) ([]model.Comment, error) {
	out := []model.Comment{}
	for _, c := range f.comments {
		if c.ActivityID == activityID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeActivityRepo) DeleteComment(ctx context.Context, id string) error {
	for i, c := range f.comments {
		if c.ID == id {
			f.comments = append(f.comments[:i], f.comments[i+1:]...)
			return nil
		}
	}
	return apperror.NotFound("comment", id)
}

// =========================================================================
// follows
// =========================================================================

type fakeFollowRepo struct {
	edges map[[2]string]bool // follower, followee
}

func newFakeFollowRepo() *fakeFollowRepo {
	return &fakeFollowRepo{edges: make(map[[2]string]bool)}
}

func (f *fakeFollowRepo) Follow(ctx context.Context, followerID, followeeID string) error {
	f.edges[[2]string{followerID, followeeID}] = true
	return nil
}

func (f *fakeFollowRepo) Unfollow(ctx context.Context, followerID, followeeID string) error {
	delete(f.edges, [2]string{followerID, followeeID})
	return nil
}

func (f *fakeFollowRepo) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	return f.edges[[2]string{followerID, followeeID}], nil
}

func (f *fakeFollowRepo) Followers(ctx context.Context, userID string, opts repository.ListOptions) ([]model.UserSummary, error) {
	out := []model.UserSummary{}
	for e := range f.edges {
		if e[1] == userID {
			out = append(out, model.UserSummary{ID: e[0]})
		}
	}
	return out, nil
}

func (f *fakeFollowRepo) Following(ctx context.Context, userID string, opts repository.ListOptions) ([]model.UserSummary, error) {
	out := []model.UserSummary{}
	for e := range f.edges {
		if e[0] == userID {
			out = append(out, model.UserSummary{ID: e[1]})
		}
	}
	return out, nil
}

func (f *fakeFollowRepo) FollowCounts(ctx context.Context, userID string) (int, int, error) {
	var followers, following int
	for e := range f.edges {
		if e[1] == userID {
			followers++
		}
		if e[0] == userID {
			following++
		}
	}
	return followers, following, nil
}

// =========================================================================
// badges
// =========================================================================

// fakeBadgeRepo moves coins through the fakeUserRepo so balance checks in
// tests see the same numbers the service returns.
type fakeBadgeRepo struct {
	users   *fakeUserRepo
	catalog map[string]model.Badge
	owned   map[[2]string]*model.UserBadge // user, badge
}

func newFakeBadgeRepo(users *fakeUserRepo) *fakeBadgeRepo {
	return &fakeBadgeRepo{
		users: users,
		catalog: map[string]model.Badge{
			"popcorn":       {ID: "popcorn", Name: "Popcorn Lover", Price: 80},
			"golden-remote": {ID: "golden-remote", Name: "Golden Remote", Price: 1200},
		},
		owned: make(map[[2]string]*model.UserBadge),
	}
}

func (f *fakeBadgeRepo) ListBadges(ctx context.Context) ([]model.Badge, error) {
	out := []model.Badge{}
	for _, b := range f.catalog {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out, nil
}

func (f *fakeBadgeRepo) GetBadge(ctx context.Context, id string) (*model.Badge, error) {
	b, ok := f.catalog[id]
	if !ok {
		return nil, apperror.NotFound("badge", id)
	}
	return &b, nil
}

func (f *fakeBadgeRepo) UserBadges(ctx context.Context, userID string) ([]model.UserBadge, error) {
	out := []model.UserBadge{}
	for k, ub := range f.owned {
		if k[0] == userID {
			out = append(out, *ub)
		}
	}
	return out, nil
}

func (f *fakeBadgeRepo) debit(userID string, amount int64) error {
	u := f.users.users[userID]
	if u.Maracoins < amount {
		return apperror.ValidationFailed("maracoins", "insufficient maracoins")
	}
	u.Maracoins -= amount
	return nil
}

func (f *fakeBadgeRepo) BuyFromShop(ctx context.Context, userID, badgeID string) error {
	b, ok := f.catalog[badgeID]
	if !ok {
		return apperror.NotFound("badge", badgeID)
	}
	if _, ok := f.owned[[2]string{userID, badgeID}]; ok {
		return apperror.Conflict("you already own this badge")
	}
	if err := f.debit(userID, b.Price); err != nil {
		return err
	}
	f.owned[[2]string{userID, badgeID}] = &model.UserBadge{UserID: userID, BadgeID: badgeID}
	return nil
}

func (f *fakeBadgeRepo) SetListing(ctx context.Context, userID, badgeID string, forSale bool, price int64) error {
	ub, ok := f.owned[[2]string{userID, badgeID}]
	if !ok {
		return apperror.NotFound("owned badge", badgeID)
	}
	ub.ForSale, ub.AskPrice = forSale, price
	return nil
}

func (f *fakeBadgeRepo) MarketListings(ctx context.Context, excludeUserID string) ([]model.UserBadge, error) {
	out := []model.UserBadge{}
	for k, ub := range f.owned {
		if ub.ForSale && k[0] != excludeUserID {
			out = append(out, *ub)
		}
	}
	return out, nil
}

func (f *fakeBadgeRepo) BuyListing(ctx context.Context, buyerID, sellerID, badgeID string) error {
	listing, ok := f.owned[[2]string{sellerID, badgeID}]
	if !ok || !listing.ForSale {
		return apperror.NotFound("listing", badgeID)
	}
	if _, ok := f.owned[[2]string{buyerID, badgeID}]; ok {
		return apperror.Conflict("you already own this badge")
	}
	if err := f.debit(buyerID, listing.AskPrice); err != nil {
		return err
	}
	f.users.users[sellerID].Maracoins += listing.AskPrice
	delete(f.owned, [2]string{sellerID, badgeID})
	f.owned[[2]string{buyerID, badgeID}] = &model.UserBadge{UserID: buyerID, BadgeID: badgeID}
	return nil
}

var errDatabase = errors.New("database is on fire")
