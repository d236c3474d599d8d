package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetValue returns the cached value for a category. Values are served even
// when stale; consumers check freshness separately.
func (h *Handlers) GetValue(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if h.cfg.Category(category) == nil {
		h.writeError(w, http.StatusNotFound, "unknown category", nil)
		return
	}

	value, err := h.store.GetValue(r.Context(), category)
	if err != nil {
		h.writeError(w, h.storeStatus(err), "reading value failed", err)
		return
	}
	if value == nil {
		h.writeError(w, http.StatusNotFound, "no cached value", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, value)
}
