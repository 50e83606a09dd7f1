package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tierboard/internal/auth"
	"github.com/tierboard/internal/domain"
	"github.com/tierboard/internal/service"
	"github.com/tierboard/internal/websocket"
)

// maxBodyBytes bounds request bodies, batches included
const maxBodyBytes = 8 << 20

// EventLog is the placement audit trail kept by durable storage
type EventLog interface {
	RecentEvents(ctx context.Context, playerID string, limit int) ([]domain.PlacementCommitted, error)
}

// Handler provides HTTP handlers for the ranking API
type Handler struct {
	engine   *service.Engine
	hub      *websocket.Hub
	issuer   *auth.Issuer
	gatherer prometheus.Gatherer
	events   EventLog
	logger   *slog.Logger
}

// NewHandler creates a new HTTP handler. A nil issuer disables every admin
// route.
func NewHandler(engine *service.Engine, hub *websocket.Hub, issuer *auth.Issuer, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		hub:      hub,
		issuer:   issuer,
		gatherer: gatherer,
		logger:   logger,
	}
}

// SetEventLog enables the placement history route
func (h *Handler) SetEventLog(log EventLog) {
	h.events = log
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Reference data
		r.Get("/tiers", h.ListTiers)
		r.Get("/gamemodes", h.ListGamemodes)
		r.Get("/titles/{points}", h.GetTitle)

		// Rankings
		r.Get("/rankings", h.GetRankings)
		r.Get("/rankings/{gamemode}", h.GetRankings)
		r.Get("/players/{player}", h.GetStanding)
		r.Get("/players/{player}/history", h.GetHistory)

		// Admin operations
		r.Group(func(r chi.Router) {
			r.Use(h.adminOnly()...)

			r.Post("/players", h.RegisterPlayer)
			r.Post("/players/batch", h.RegisterBatch)
			r.Delete("/players/{player}", h.DeletePlayer)
			r.Put("/players/{player}/placements/{gamemode}", h.UpsertPlacement)
			r.Delete("/players/{player}/placements/{gamemode}", h.RemovePlacement)
			r.Post("/placements/batch", h.SubmitBatch)
			r.Post("/admin/reconcile", h.Reconcile)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

func (h *Handler) adminOnly() []func(http.Handler) http.Handler {
	if h.issuer == nil {
		return []func(http.Handler) http.Handler{
			func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					h.writeError(w, domain.ErrUnauthorized)
				})
			},
		}
	}
	return []func(http.Handler) http.Handler{
		auth.Middleware(h.issuer, h.authError),
		auth.RequireRole(auth.RoleAdmin, h.authError),
	}
}

func (h *Handler) authError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("rejected admin request",
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	h.writeError(w, err)
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsValidationError(err),
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownGamemode):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPlayerExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes an error JSON response. Unexpected errors are logged
// and hidden behind a generic message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		err = domain.ErrInternalError
	}
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// decode reads a JSON body into v
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return false
	}
	return true
}

// queryInt parses a non-negative integer query parameter
func queryInt(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return def
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	subscribers := make(map[domain.Gamemode]int)
	for _, gm := range domain.Gamemodes() {
		subscribers[gm] = h.hub.GetSubscriberCount(gm)
	}
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
		"subscribers":       subscribers,
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck reports whether storage and the rank index are reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Error:   "not ready",
		})
		return
	}
	h.writeSuccess(w, map[string]string{"status": "ready"})
}
