package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/repository"
)

type profileFixture struct {
	*listFixture
	svc     *ProfileService
	users   *fakeUserRepo
	follows *fakeFollowRepo
}

func newProfileFixture() *profileFixture {
	lf := newListFixture()
	users := newFakeUserRepo()
	follows := newFakeFollowRepo()
	return &profileFixture{
		listFixture: lf,
		svc:         NewProfileService(users, follows, lf.lists, lf.svc, testLogger()),
		users:       users,
		follows:     follows,
	}
}

func strPtr(s string) *string { return &s }

func TestGetProfile_Counts(t *testing.T) {
	f := newProfileFixture()
	ana := f.users.add("Ana")
	ana.Email = "ana@example.com"
	ghID := int64(7)
	ana.GitHubID = &ghID
	bia := f.users.add("Bia")

	f.add(t, ana.ID, "dark-2017", model.StatusWatched)    // 26 × 55
	f.add(t, ana.ID, "lost-2004", model.StatusWatched)    // 121 × 43
	f.add(t, ana.ID, "fringe-2008", model.StatusWatching) // not counted in minutes
	f.follows.Follow(context.Background(), bia.ID, ana.ID)

	p, err := f.svc.GetProfile(context.Background(), ana.ID, bia.ID)
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}

	if want := 26*55 + 121*43; p.MinutesWatched != want {
		t.Errorf("MinutesWatched = %d, want %d", p.MinutesWatched, want)
	}
	if p.HoursWatched != 110.6 {
		t.Errorf("HoursWatched = %v, want 110.6", p.HoursWatched)
	}
	if p.StatusCounts[model.StatusWatched] != 2 || p.StatusCounts[model.StatusWatching] != 1 {
		t.Errorf("StatusCounts = %v", p.StatusCounts)
	}
	if _, ok := p.StatusCounts[model.StatusWantToWatch]; !ok {
		t.Error("StatusCounts should list every status")
	}
	if p.FollowerCount != 1 || p.FollowingCount != 0 {
		t.Errorf("follow counts = %d/%d", p.FollowerCount, p.FollowingCount)
	}
	if !p.IsFollowing {
		t.Error("IsFollowing = false, want true for a follower")
	}
	if p.Email != "" {
		t.Errorf("Email leaked to another viewer: %q", p.Email)
	}
	if p.GitHubID != nil || p.Maracoins != nil || p.User.Maracoins != 0 {
		t.Errorf("private fields leaked to another viewer: githubId=%v maracoins=%v/%d",
			p.GitHubID, p.Maracoins, p.User.Maracoins)
	}

	own, err := f.svc.GetProfile(context.Background(), ana.ID, ana.ID)
	if err != nil {
		t.Fatalf("GetProfile(self) error = %v", err)
	}
	if own.Email != "ana@example.com" {
		t.Errorf("own Email = %q", own.Email)
	}
	if own.Maracoins == nil || *own.Maracoins != StartingMaracoins || own.GitHubID == nil {
		t.Errorf("own profile should carry balance and GitHub link: %+v", own)
	}

	if _, err := f.svc.GetProfile(context.Background(), "ghost", ""); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetProfile(ghost) error = %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newProfileFixture()
	ana := f.users.add("Ana")

	user, err := f.svc.UpdateProfile(context.Background(), ana.ID, UpdateProfileInput{
		Bio:        strPtr("  maratonista  "),
		CoverTheme: strPtr("ocean"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user.Name != "Ana" || user.Bio != "maratonista" || user.CoverTheme != "ocean" {
		t.Errorf("user = %+v", user)
	}

	user, err = f.svc.UpdateProfile(context.Background(), ana.ID, UpdateProfileInput{
		CoverTheme: strPtr("https://images.example/cover.jpg"),
	})
	if err != nil {
		t.Fatalf("UpdateProfile(url cover) error = %v", err)
	}
	if user.Bio != "maratonista" {
		t.Errorf("partial update cleared Bio: %q", user.Bio)
	}
}

func TestUpdateProfile_Validation(t *testing.T) {
	f := newProfileFixture()
	ana := f.users.add("Ana")

	tests := []struct {
		name  string
		in    UpdateProfileInput
		field string
	}{
		{"blank name", UpdateProfileInput{Name: strPtr("   ")}, "name"},
		{"unknown theme", UpdateProfileInput{CoverTheme: strPtr("vaporwave")}, "coverTheme"},
		{"ftp cover", UpdateProfileInput{CoverTheme: strPtr("ftp://x/y.png")}, "coverTheme"},
		{"bad avatar", UpdateProfileInput{AvatarURL: strPtr("not a url")}, "avatarUrl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateProfile(context.Background(), ana.ID, tt.in)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want validation", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestCompleteOnboarding(t *testing.T) {
	f := newProfileFixture()
	ana := f.users.add("ana")
	f.add(t, ana.ID, "dark-2017", model.StatusWatched) // already listed: skipped, not an error

	user, err := f.svc.CompleteOnboarding(context.Background(), ana.ID, OnboardingInput{
		Name:       "Ana Maratona",
		Bio:        "séries sempre",
		CoverTheme: "neon",
		Series: []SeriesSelection{
			{SeriesID: "dark-2017", Status: model.StatusWatched},
			{SeriesID: "lost-2004", Status: model.StatusWantToWatch},
		},
	})
	if err != nil {
		t.Fatalf("CompleteOnboarding() error = %v", err)
	}
	if !user.Onboarded || user.Name != "Ana Maratona" || user.CoverTheme != "neon" {
		t.Errorf("user = %+v", user)
	}
	if !f.users.users[ana.ID].Onboarded {
		t.Error("onboarded flag was not saved")
	}
	if _, ok := f.lists.entries[entryKey(ana.ID, "lost-2004")]; !ok {
		t.Error("selected series was not added")
	}
}

func TestCompleteOnboarding_Errors(t *testing.T) {
	f := newProfileFixture()
	ana := f.users.add("ana")

	_, err := f.svc.CompleteOnboarding(context.Background(), ana.ID, OnboardingInput{
		Name:   "Ana",
		Series: []SeriesSelection{{SeriesID: "dark-2017", Status: "Binge"}},
	})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("bad status error = %v, want validation", err)
	}

	_, err = f.svc.CompleteOnboarding(context.Background(), ana.ID, OnboardingInput{
		Name:   "Ana",
		Series: []SeriesSelection{{SeriesID: "missing-1999", Status: model.StatusWatched}},
	})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown series error = %v, want not found", err)
	}
	if f.users.users[ana.ID].Onboarded {
		t.Error("failed onboarding must not mark the user onboarded")
	}
}

func TestCompleteOnboarding_UnknownSeriesWritesNothing(t *testing.T) {
	f := newProfileFixture()
	ana := f.users.add("ana")

	_, err := f.svc.CompleteOnboarding(context.Background(), ana.ID, OnboardingInput{
		Name: "Ana",
		Series: []SeriesSelection{
			{SeriesID: "dark-2017", Status: model.StatusWatched},
			{SeriesID: "missing-2020", Status: model.StatusWatching},
		},
	})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("CompleteOnboarding() error = %v, want not found", err)
	}
	if len(f.lists.entries) != 0 {
		t.Errorf("list entries = %d, want 0", len(f.lists.entries))
	}
	if len(f.activities.activities) != 0 {
		t.Errorf("activities = %d, want 0", len(f.activities.activities))
	}
	if f.users.users[ana.ID].Onboarded {
		t.Error("user marked onboarded after a failed submit")
	}
}

func TestSearchUsers(t *testing.T) {
	f := newProfileFixture()
	f.users.add("Ana Souza")
	f.users.add("Bia")
	bot := f.users.add("Ana Bot")
	bot.IsBot = true

	got, err := f.svc.SearchUsers(context.Background(), "ana", repository.ListOptions{})
	if err != nil {
		t.Fatalf("SearchUsers() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "Ana Souza" {
		t.Errorf("SearchUsers() = %+v", got)
	}

	got, _ = f.svc.SearchUsers(context.Background(), "   ", repository.ListOptions{})
	if len(got) != 0 {
		t.Errorf("blank query = %+v, want empty", got)
	}
}
