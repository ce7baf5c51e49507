package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/maratonei/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
	logger *slog.Logger
}

func NewSearchHandler(search *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

// HandleSearch finds series by free text ("german time travel show").
//
// HTTP: GET /api/search?q=...
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// HandleRecommendations suggests series based on the signed-in user's list.
// An empty array means there was nothing to go on or the AI is unavailable.
//
// HTTP: GET /api/recommendations
// Auth: Required
func (h *SearchHandler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	results, err := h.search.Recommendations(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
