package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/maratonei/internal/apperror"
	"github.com/sakif/maratonei/internal/model"
	"github.com/sakif/maratonei/internal/service"
)

// ListHandler serves the series catalog, personal lists and top-3 rankings.
type ListHandler struct {
	list   *service.ListService
	logger *slog.Logger
}

func NewListHandler(list *service.ListService, logger *slog.Logger) *ListHandler {
	return &ListHandler{list: list, logger: logger}
}

// HandleGetSeries returns one catalog entry.
//
// HTTP: GET /api/series/{id}
func (h *ListHandler) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.list.GetSeries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// HandleCreateSeries adds a show to the catalog. The ID is the title+year
// slug, so posting a known show updates it instead of duplicating.
//
// HTTP: POST /api/series
func (h *ListHandler) HandleCreateSeries(w http.ResponseWriter, r *http.Request) {
	var in service.CreateSeriesInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	series, err := h.list.CreateSeries(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, series)
}

// HandleAdd puts a series on the signed-in user's list.
//
// HTTP: POST /api/me/series
// REQUEST BODY: {"seriesId": "dark-2017", "status": "Watching", "note"?, "rating"?}
func (h *ListHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var in service.AddEntryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.list.AddToList(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleUpdate changes status, note or rating of a list entry.
//
// HTTP: PATCH /api/me/series/{seriesId}
func (h *ListHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateEntryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.list.UpdateEntry(r.Context(), currentUser(r), chi.URLParam(r, "seriesId"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleRemove takes a series off the list.
//
// HTTP: DELETE /api/me/series/{seriesId}
func (h *ListHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.list.RemoveFromList(r.Context(), currentUser(r), chi.URLParam(r, "seriesId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rankingRequest struct {
	SeriesID string `json:"seriesId"`
}

// HandleSetRanking places a series in a ranking slot and returns the new top 3.
//
// HTTP: PUT /api/me/ranking/{slot}
// REQUEST BODY: {"seriesId": "dark-2017"}
func (h *ListHandler) HandleSetRanking(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req rankingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ranking, err := h.list.SetRanking(r.Context(), currentUser(r), slot, req.SeriesID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

// HandleClearRanking empties a slot.
//
// HTTP: DELETE /api/me/ranking/{slot}
func (h *ListHandler) HandleClearRanking(w http.ResponseWriter, r *http.Request) {
	slot, err := slotParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ranking, err := h.list.ClearRanking(r.Context(), currentUser(r), slot)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

// HandleList returns a user's list, optionally filtered.
//
// HTTP: GET /api/users/{id}/series?status=Watching
func (h *ListHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	entries, err := h.list.List(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGrouped returns the list bucketed by status, as the profile page shows it.
//
// HTTP: GET /api/users/{id}/series/grouped
func (h *ListHandler) HandleGrouped(w http.ResponseWriter, r *http.Request) {
	groups, err := h.list.Grouped(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// HandleRanking returns a user's top 3 ordered by slot.
//
// HTTP: GET /api/users/{id}/ranking
func (h *ListHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.list.Ranking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func slotParam(r *http.Request) (int, error) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		return 0, apperror.ValidationFailed("slot", "slot must be a number")
	}
	return slot, nil
}
