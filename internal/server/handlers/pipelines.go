package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stratus-analytics/pulse/internal/orchestrator"
	"github.com/stratus-analytics/pulse/pkg/types"
)

const (
	defaultRunsLimit   = 20
	defaultEventsLimit = 50
	maxListLimit       = 500
)

// ListPipelines returns the configured pipelines.
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cfg.Pipelines)
}

// GetPipeline returns one pipeline's configuration.
func (h *Handlers) GetPipeline(w http.ResponseWriter, r *http.Request) {
	p := h.cfg.Pipeline(chi.URLParam(r, "name"))
	if p == nil {
		h.writeError(w, http.StatusNotFound, "unknown pipeline", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// RefreshPipeline runs a pipeline on demand and returns the run result.
func (h *Handlers) RefreshPipeline(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.cfg.Pipeline(name) == nil {
		h.writeError(w, http.StatusNotFound, "unknown pipeline", nil)
		return
	}

	result, err := h.orch.Run(r.Context(), name)
	if err != nil {
		if errors.Is(err, orchestrator.ErrRunInProgress) {
			h.writeError(w, http.StatusConflict, "pipeline run already in progress", nil)
			return
		}
		h.writeError(w, h.storeStatus(err), "pipeline run failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListRuns returns recent run results for a pipeline, newest first.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.cfg.Pipeline(name) == nil {
		h.writeError(w, http.StatusNotFound, "unknown pipeline", nil)
		return
	}

	runs, err := h.store.ListRunResults(r.Context(), name, limitParam(r, defaultRunsLimit))
	if err != nil {
		h.writeError(w, h.storeStatus(err), "listing runs failed", err)
		return
	}
	if runs == nil {
		runs = []types.PipelineRunResult{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

// ListEvents returns recent events for a pipeline: run completions plus the
// refresh and breaker events of its categories.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p := h.cfg.Pipeline(name)
	if p == nil {
		h.writeError(w, http.StatusNotFound, "unknown pipeline", nil)
		return
	}

	events, err := h.store.ListEvents(r.Context(), limitParam(r, defaultEventsLimit))
	if err != nil {
		h.writeError(w, h.storeStatus(err), "listing events failed", err)
		return
	}

	categories := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		categories[c] = true
	}
	filtered := make([]types.Event, 0, len(events))
	for _, e := range events {
		if e.Pipeline == name || categories[e.Category] {
			filtered = append(filtered, e)
		}
	}
	h.writeJSON(w, http.StatusOK, filtered)
}

// limitParam parses ?limit=, clamped to maxListLimit.
func limitParam(r *http.Request, fallback int) int {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
