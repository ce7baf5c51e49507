package handler_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/maratonei/internal/auth"
	"github.com/sakif/maratonei/internal/handler"
	"github.com/sakif/maratonei/internal/metadata"
	"github.com/sakif/maratonei/internal/repository/sqlite"
	"github.com/sakif/maratonei/internal/service"
)

// testAPI is the whole handler stack over an in-memory database, routed the
// same way the server routes it.
type testAPI struct {
	t      *testing.T
	db     *sqlite.DB
	router chi.Router
	auth   *service.AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	authSvc := service.NewAuthService(db, tokens, auth.NewPasswordServiceWithCost(bcrypt.MinCost), logger)
	listSvc := service.NewListService(db, db, db, logger)
	profileSvc := service.NewProfileService(db, db, db, listSvc, logger)
	feedSvc := service.NewFeedService(db, db, logger)
	followSvc := service.NewFollowService(db, db, logger)
	badgeSvc := service.NewBadgeService(db, db, logger)
	// No API keys: search answers from the local catalog.
	searchSvc := service.NewSearchService(
		metadata.NewAIClient("", "", "", logger),
		metadata.NewTMDBClient("", "", "", logger),
		nil, db, db, logger,
	)

	authH := handler.NewAuthHandler(authSvc, nil, time.Hour, "http://app.test", logger)
	profileH := handler.NewProfileHandler(profileSvc, logger)
	listH := handler.NewListHandler(listSvc, logger)
	feedH := handler.NewFeedHandler(feedSvc, logger)
	followH := handler.NewFollowHandler(followSvc, logger)
	badgeH := handler.NewBadgeHandler(badgeSvc, logger)
	searchH := handler.NewSearchHandler(searchSvc, logger)

	r := chi.NewRouter()
	r.Post("/api/auth/register", authH.HandleRegister)
	r.Post("/api/auth/login", authH.HandleLogin)
	r.Post("/api/auth/logout", authH.HandleLogout)

	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))
		r.Get("/api/users", profileH.HandleSearch)
		r.Get("/api/users/{id}", profileH.HandleGet)
		r.Get("/api/users/{id}/series", listH.HandleList)
		r.Get("/api/users/{id}/series/grouped", listH.HandleGrouped)
		r.Get("/api/users/{id}/ranking", listH.HandleRanking)
		r.Get("/api/users/{id}/activities", feedH.HandleUserActivities)
		r.Get("/api/users/{id}/followers", followH.HandleFollowers)
		r.Get("/api/users/{id}/badges", badgeH.HandleUserBadges)
		r.Get("/api/series/{id}", listH.HandleGetSeries)
		r.Get("/api/feed", feedH.HandleFeed)
		r.Get("/api/activities/{id}/comments", feedH.HandleComments)
		r.Get("/api/badges", badgeH.HandleCatalog)
		r.Get("/api/market", badgeH.HandleMarket)
		r.Get("/api/search", searchH.HandleSearch)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/api/me", profileH.HandleMe)
		r.Put("/api/me", profileH.HandleUpdateMe)
		r.Post("/api/me/onboarding", profileH.HandleOnboarding)
		r.Post("/api/series", listH.HandleCreateSeries)
		r.Post("/api/me/series", listH.HandleAdd)
		r.Patch("/api/me/series/{seriesId}", listH.HandleUpdate)
		r.Delete("/api/me/series/{seriesId}", listH.HandleRemove)
		r.Put("/api/me/ranking/{slot}", listH.HandleSetRanking)
		r.Delete("/api/me/ranking/{slot}", listH.HandleClearRanking)
		r.Post("/api/activities", feedH.HandleCreatePost)
		r.Delete("/api/activities/{id}", feedH.HandleDelete)
		r.Post("/api/activities/{id}/like", feedH.HandleLike)
		r.Delete("/api/activities/{id}/like", feedH.HandleUnlike)
		r.Post("/api/activities/{id}/comments", feedH.HandleAddComment)
		r.Delete("/api/comments/{id}", feedH.HandleDeleteComment)
		r.Post("/api/users/{id}/follow", followH.HandleFollow)
		r.Delete("/api/users/{id}/follow", followH.HandleUnfollow)
		r.Post("/api/badges/{id}/buy", badgeH.HandleBuy)
		r.Put("/api/me/badges/{id}/listing", badgeH.HandleList)
		r.Delete("/api/me/badges/{id}/listing", badgeH.HandleUnlist)
		r.Post("/api/market/buy", badgeH.HandleBuyListing)
		r.Get("/api/recommendations", searchH.HandleRecommendations)
	})

	return &testAPI{t: t, db: db, router: r, auth: authSvc}
}

// user registers an account and returns its ID and token.
func (a *testAPI) user(name, email string) (id, token string) {
	a.t.Helper()
	res, err := a.auth.Register(context.Background(), service.RegisterInput{Name: name, Email: email, Password: "correct horse"})
	require.NoError(a.t, err)
	return res.User.ID, res.Token
}

// do sends a request; body may be nil, a string of raw JSON, or a value to encode.
func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	return decode[handler.ErrorResponse](t, rr)
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}
