package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/maratonei/internal/service"
)

// ProfileHandler serves the signed-in user's own profile, onboarding and
// public profiles.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// HandleMe returns the signed-in user's full profile, email included.
//
// HTTP: GET /api/me
// Auth: Required
//
// The frontend calls this on load to learn who is logged in and whether to
// send them to onboarding.
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	profile, err := h.profiles.GetProfile(r.Context(), userID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleUpdateMe applies a partial profile update.
//
// HTTP: PUT /api/me
// REQUEST BODY: {"name"?, "bio"?, "avatarUrl"?, "coverTheme"?}
func (h *ProfileHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.profiles.UpdateProfile(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleOnboarding finishes the first-login wizard.
//
// HTTP: POST /api/me/onboarding
func (h *ProfileHandler) HandleOnboarding(w http.ResponseWriter, r *http.Request) {
	var in service.OnboardingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.profiles.CompleteOnboarding(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleGet returns a public profile.
//
// HTTP: GET /api/users/{id}
// Auth: Optional (fills in isFollowing for signed-in viewers)
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetProfile(r.Context(), chi.URLParam(r, "id"), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleSearch finds users by name.
//
// HTTP: GET /api/users?q=ana&limit=20
func (h *ProfileHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	opts, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.profiles.SearchUsers(r.Context(), r.URL.Query().Get("q"), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
