package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// circuitView is a breaker state with its read-time effective state.
type circuitView struct {
	types.BreakerState
	EffectiveState types.CircuitState `json:"effectiveState"`
}

// ListCircuits returns all recorded breaker states. EffectiveState reflects
// lazily derived HALF_OPEN for breakers whose cooldown has elapsed.
func (h *Handlers) ListCircuits(w http.ResponseWriter, r *http.Request) {
	states, err := h.breaker.States(r.Context())
	if err != nil {
		h.writeError(w, h.storeStatus(err), "listing circuits failed", err)
		return
	}

	now := time.Now()
	views := make([]circuitView, 0, len(states))
	for _, st := range states {
		views = append(views, circuitView{
			BreakerState:   st,
			EffectiveState: st.EffectiveState(now),
		})
	}
	h.writeJSON(w, http.StatusOK, views)
}

// ResetCircuit forces a breaker CLOSED. Privileged; routed behind the admin
// key middleware.
func (h *Handlers) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	provider := chi.URLParam(r, "provider")

	if err := h.breaker.Reset(r.Context(), category, provider); err != nil {
		h.writeError(w, h.storeStatus(err), "circuit reset failed", err)
		return
	}

	h.logger.Info("circuit reset requested",
		"category", category, "provider", provider,
		"requestId", w.Header().Get("X-Request-ID"))
	h.writeJSON(w, http.StatusOK, map[string]string{
		"category": category,
		"provider": provider,
		"state":    string(types.CircuitClosed),
	})
}
