package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/stratus-analytics/pulse/internal/server/handlers"
	"github.com/stratus-analytics/pulse/pkg/types"
)

func (s *Server) registerRoutes(r chi.Router, cfg *types.ServerConfig) {
	h := handlers.New(s.deps.Config, s.deps.Store, s.deps.Orchestrator, s.deps.Freshness, s.deps.Breaker)

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Freshness
		r.Get("/freshness", h.Freshness)
		r.Get("/freshness/{category}", h.FreshnessCategory)

		// Circuits
		r.Get("/circuits", h.ListCircuits)
		r.With(AdminKeyMiddleware(cfg.AdminAPIKey, cfg.APIKey)).
			Post("/circuits/{category}/{provider}/reset", h.ResetCircuit)

		// Pipelines
		r.Get("/pipelines", h.ListPipelines)
		r.Get("/pipelines/{name}", h.GetPipeline)
		r.Post("/pipelines/{name}/refresh", h.RefreshPipeline)
		r.Get("/pipelines/{name}/runs", h.ListRuns)
		r.Get("/pipelines/{name}/events", h.ListEvents)

		// Values
		r.Get("/values/{category}", h.GetValue)

		// Metrics
		r.Handle("/metrics", metricsHandler())
	})
}
