package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/maratonei/internal/service"
)

// BadgeHandler serves the badge shop, collections and the player market.
// Purchases answer with the buyer's updated user so the client can refresh
// the Maracoin balance without another request.
type BadgeHandler struct {
	badges *service.BadgeService
	logger *slog.Logger
}

func NewBadgeHandler(badges *service.BadgeService, logger *slog.Logger) *BadgeHandler {
	return &BadgeHandler{badges: badges, logger: logger}
}

// HTTP: GET /api/badges
func (h *BadgeHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	badges, err := h.badges.Catalog(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

// HTTP: GET /api/users/{id}/badges
func (h *BadgeHandler) HandleUserBadges(w http.ResponseWriter, r *http.Request) {
	owned, err := h.badges.UserBadges(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, owned)
}

// HandleBuy buys a badge from the shop at its catalog price.
//
// HTTP: POST /api/badges/{id}/buy
func (h *BadgeHandler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	user, err := h.badges.BuyFromShop(r.Context(), currentUser(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleList puts an owned badge up for sale.
//
// HTTP: PUT /api/me/badges/{id}/listing
// REQUEST BODY: {"price": 150}
func (h *BadgeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var in service.ListingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	if err := h.badges.ListForSale(r.Context(), currentUser(r), chi.URLParam(r, "id"), in); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: DELETE /api/me/badges/{id}/listing
func (h *BadgeHandler) HandleUnlist(w http.ResponseWriter, r *http.Request) {
	if err := h.badges.Unlist(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarket lists badges other users are selling.
//
// HTTP: GET /api/market
// Auth: Optional (the viewer's own listings are left out)
func (h *BadgeHandler) HandleMarket(w http.ResponseWriter, r *http.Request) {
	listings, err := h.badges.Market(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

// HandleBuyListing buys another user's listed badge.
//
// HTTP: POST /api/market/buy
// REQUEST BODY: {"sellerId": "...", "badgeId": "popcorn"}
func (h *BadgeHandler) HandleBuyListing(w http.ResponseWriter, r *http.Request) {
	var in service.BuyListingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.badges.BuyListing(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
