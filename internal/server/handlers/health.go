package handlers

import (
	"net/http"
)

// Health returns the server health status. The store being unreachable
// degrades health but still answers 200; orchestration is the part that
// cannot proceed, not the API.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
