package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/maratonei/internal/service"
)

type FollowHandler struct {
	follows *service.FollowService
	logger  *slog.Logger
}

func NewFollowHandler(follows *service.FollowService, logger *slog.Logger) *FollowHandler {
	return &FollowHandler{follows: follows, logger: logger}
}

// HandleFollow follows {id}. Following twice is a no-op.
//
// HTTP: POST /api/users/{id}/follow
func (h *FollowHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	if err := h.follows.Follow(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnfollow stops following {id}.
//
// HTTP: DELETE /api/users/{id}/follow
func (h *FollowHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	if err := h.follows.Unfollow(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: GET /api/users/{id}/followers
func (h *FollowHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	opts, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.follows.Followers(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HTTP: GET /api/users/{id}/following
func (h *FollowHandler) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	opts, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users, err := h.follows.Following(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}
