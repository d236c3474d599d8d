// Package handlers implements HTTP request handlers for the Pulse API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stratus-analytics/pulse/internal/breaker"
	"github.com/stratus-analytics/pulse/internal/freshness"
	"github.com/stratus-analytics/pulse/internal/orchestrator"
	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	cfg       *types.ProjectConfig
	store     store.Store
	orch      *orchestrator.Orchestrator
	freshness *freshness.Monitor
	breaker   *breaker.Breaker
	logger    *slog.Logger
}

// New creates a new Handlers instance.
func New(cfg *types.ProjectConfig, st store.Store, orch *orchestrator.Orchestrator, fm *freshness.Monitor, br *breaker.Breaker) *Handlers {
	return &Handlers{
		cfg:       cfg,
		store:     st,
		orch:      orch,
		freshness: fm,
		breaker:   br,
		logger:    slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encoding response", "error", err)
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// storeStatus maps a store error to 503 for infrastructure faults and 500
// for everything else.
func (h *Handlers) storeStatus(err error) int {
	if errors.Is(err, store.ErrUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
