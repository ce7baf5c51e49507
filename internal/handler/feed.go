package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/maratonei/internal/service"
)

// FeedHandler serves the community feed: posts, likes and comments.
type FeedHandler struct {
	feed   *service.FeedService
	logger *slog.Logger
}

func NewFeedHandler(feed *service.FeedService, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, logger: logger}
}

// HandleFeed returns a page of the feed, newest first.
//
// HTTP: GET /api/feed?scope=all|following&limit=20&offset=0
// Auth: Optional ("following" requires a session)
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	opts, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	activities, err := h.feed.Feed(r.Context(), currentUser(r), r.URL.Query().Get("scope"), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

// HandleUserActivities returns one user's timeline.
//
// HTTP: GET /api/users/{id}/activities
func (h *FeedHandler) HandleUserActivities(w http.ResponseWriter, r *http.Request) {
	opts, err := pagination(r)
	if err != nil {
		writeError(w, err)
		return
	}

	activities, err := h.feed.UserActivities(r.Context(), chi.URLParam(r, "id"), currentUser(r), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

// HandleCreatePost publishes a text post.
//
// HTTP: POST /api/activities
// REQUEST BODY: {"text": "...", "imageUrl"?, "link"?}
func (h *FeedHandler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	var in service.CreatePostInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	activity, err := h.feed.CreatePost(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, activity)
}

// HandleDelete removes an activity. Only its author may.
//
// HTTP: DELETE /api/activities/{id}
func (h *FeedHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.DeleteActivity(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLike likes an activity and returns it with fresh counts.
// Liking twice is not an error.
//
// HTTP: POST /api/activities/{id}/like
func (h *FeedHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	activity, err := h.feed.Like(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// HandleUnlike removes the like.
//
// HTTP: DELETE /api/activities/{id}/like
func (h *FeedHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	activity, err := h.feed.Unlike(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// HandleComments lists the comments on an activity, oldest first.
//
// HTTP: GET /api/activities/{id}/comments
func (h *FeedHandler) HandleComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.feed.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// HandleAddComment replies to an activity.
//
// HTTP: POST /api/activities/{id}/comments
// REQUEST BODY: {"text": "..."}
func (h *FeedHandler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	var in service.CommentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	comment, err := h.feed.AddComment(r.Context(), currentUser(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// HandleDeleteComment removes a comment; allowed for its author and for
// the owner of the activity it was left on.
//
// HTTP: DELETE /api/comments/{id}
func (h *FeedHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.DeleteComment(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
