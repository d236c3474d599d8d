package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Freshness returns the freshness report for all configured categories.
func (h *Handlers) Freshness(w http.ResponseWriter, r *http.Request) {
	report, err := h.freshness.Report(r.Context())
	if err != nil {
		h.writeError(w, h.storeStatus(err), "freshness report failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// FreshnessCategory returns the freshness entry for one category.
func (h *Handlers) FreshnessCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if h.cfg.Category(category) == nil {
		h.writeError(w, http.StatusNotFound, "unknown category", nil)
		return
	}
	entry, err := h.freshness.Check(r.Context(), category)
	if err != nil {
		h.writeError(w, h.storeStatus(err), "freshness check failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}
