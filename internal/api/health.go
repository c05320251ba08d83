package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goalgetter/goalgetter/internal/store"
)

// ConnectionCounter reports how many live chat connections exist.
type ConnectionCounter interface {
	TotalConnections() int
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	repo  store.Repository
	conns ConnectionCounter
}

// NewHealthHandler creates a health check handler.
func NewHealthHandler(repo store.Repository, conns ConnectionCounter) *HealthHandler {
	return &HealthHandler{repo: repo, conns: conns}
}

// RegisterRoutes registers the health route.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
}

// Health reports process and database health plus the live connection count.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "degraded",
			"database": "unreachable",
		})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": h.conns.TotalConnections(),
	})
}
