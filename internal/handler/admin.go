package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tierboard/internal/auth"
	"github.com/tierboard/internal/domain"
)

// PlacementRequest is the body of a single placement upsert
type PlacementRequest struct {
	Tier string `json:"tier"`
}

// RegisterPlayer creates a player
func (h *Handler) RegisterPlayer(w http.ResponseWriter, r *http.Request) {
	var req domain.NewPlayerRequest
	if !h.decode(w, r, &req) {
		return
	}

	player, err := h.engine.RegisterPlayer(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    player,
	})
}

// DeletePlayer removes a player and its placements
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player")
	if err := h.engine.DeletePlayer(r.Context(), playerID); err != nil {
		h.writeError(w, err)
		return
	}
	h.audit(r, "player deleted", "player_id", playerID)
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// UpsertPlacement sets the player's tier in one gamemode
func (h *Handler) UpsertPlacement(w http.ResponseWriter, r *http.Request) {
	var req PlacementRequest
	if !h.decode(w, r, &req) {
		return
	}
	playerID := chi.URLParam(r, "player")

	event, err := h.engine.UpsertPlacement(r.Context(), playerID, chi.URLParam(r, "gamemode"), req.Tier)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.audit(r, "placement set", "player_id", playerID, "gamemode", event.Gamemode, "tier", event.NewTier)
	h.writeSuccess(w, event)
}

// RemovePlacement clears the player's placement in one gamemode
func (h *Handler) RemovePlacement(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "player")
	gamemode := chi.URLParam(r, "gamemode")

	total, err := h.engine.RemovePlacement(r.Context(), playerID, gamemode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.audit(r, "placement cleared", "player_id", playerID, "gamemode", gamemode)
	h.writeSuccess(w, map[string]interface{}{
		"player_id":     playerID,
		"global_points": total,
	})
}

// SubmitBatch applies a batch of placements with per-line error reporting
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchPlacementSubmission
	if !h.decode(w, r, &batch) {
		return
	}
	if len(batch.Entries) == 0 {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := h.engine.SubmitBatch(r.Context(), batch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.audit(r, "placement batch applied", "succeeded", result.SuccessCount, "failed", result.FailureCount)
	h.writeSuccess(w, result)
}

// RegisterBatch creates players in bulk with per-line error reporting
func (h *Handler) RegisterBatch(w http.ResponseWriter, r *http.Request) {
	var batch domain.BatchRegistration
	if !h.decode(w, r, &batch) {
		return
	}
	if len(batch.Entries) == 0 {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	result, err := h.engine.RegisterBatch(r.Context(), batch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.audit(r, "registration batch applied", "succeeded", result.SuccessCount, "failed", result.FailureCount)
	h.writeSuccess(w, result)
}

// Reconcile recomputes every total and rebuilds the rank index
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	corrected, err := h.engine.ReconcileAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.audit(r, "reconcile triggered", "corrected", corrected)
	h.writeSuccess(w, map[string]int{"corrected": corrected})
}

func (h *Handler) audit(r *http.Request, msg string, args ...any) {
	if s, ok := auth.FromContext(r.Context()); ok {
		args = append(args, "subject", s.Subject)
	}
	h.logger.Info(msg, args...)
}
