package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tierboard/internal/domain"
)

const historyLimit = 50

// ListTiers returns the tier catalog in ascending point order
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.engine.Catalog().Definitions())
}

// ListGamemodes returns the canonical gamemode keys
func (h *Handler) ListGamemodes(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, domain.Gamemodes())
}

// GetTitle resolves the combat title for a point total
func (h *Handler) GetTitle(w http.ResponseWriter, r *http.Request) {
	points, err := strconv.ParseInt(chi.URLParam(r, "points"), 10, 64)
	if err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	title, err := h.engine.TitleFor(points)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, title)
}

// GetRankings returns a page of the global board, or of one gamemode when
// the path names it
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	gamemode := chi.URLParam(r, "gamemode")
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	page, err := h.engine.RankPage(r.Context(), gamemode, offset, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, page)
}

// GetStanding returns points, rank, title and placements for an ign
func (h *Handler) GetStanding(w http.ResponseWriter, r *http.Request) {
	ign := chi.URLParam(r, "player")
	if err := domain.ValidateIGN(ign); err != nil {
		h.writeError(w, err)
		return
	}
	standing, err := h.engine.Standing(r.Context(), ign)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, standing)
}

// GetHistory returns the latest committed placements for an ign
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.writeJSON(w, http.StatusNotFound, APIResponse{
			Success: false,
			Error:   "placement history is not recorded",
		})
		return
	}

	ign := chi.URLParam(r, "player")
	if err := domain.ValidateIGN(ign); err != nil {
		h.writeError(w, err)
		return
	}
	player, err := h.engine.GetPlayer(r.Context(), ign)
	if err != nil {
		h.writeError(w, err)
		return
	}

	limit := queryInt(r, "limit", historyLimit)
	if limit == 0 || limit > historyLimit {
		limit = historyLimit
	}
	history, err := h.events.RecentEvents(r.Context(), player.ID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if history == nil {
		history = []domain.PlacementCommitted{}
	}
	h.writeSuccess(w, history)
}
