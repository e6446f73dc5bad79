package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	logger  *slog.Logger
	version string
	db      Pinger
}

// NewHealthHandler creates the health handler. version comes from build-time
// ldflags.
func NewHealthHandler(logger *slog.Logger, version string, db Pinger) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		version: version,
		db:      db,
	}
}

// HealthResponse is the probe body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health handles GET /healthz
// Liveness: the process is up.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.send(w, HealthResponse{Status: "ok", Version: h.version}, http.StatusOK)
}

// Ready handles GET /readyz
// Readiness: the account ledger answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("readiness probe failed", slog.Any("error", err))
		h.send(w, HealthResponse{Status: "unavailable", Version: h.version}, http.StatusServiceUnavailable)
		return
	}
	h.send(w, HealthResponse{Status: "ok", Version: h.version}, http.StatusOK)
}

func (h *HealthHandler) send(w http.ResponseWriter, resp HealthResponse, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
