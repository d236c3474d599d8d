// Package server implements the Pulse HTTP API server.
package server

import (
	"context"
	"expvar"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stratus-analytics/pulse/internal/breaker"
	"github.com/stratus-analytics/pulse/internal/freshness"
	"github.com/stratus-analytics/pulse/internal/orchestrator"
	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

const defaultMaxRequestBody = 1 << 20

// Deps bundles the subsystems the API exposes.
type Deps struct {
	Config       *types.ProjectConfig
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Freshness    *freshness.Monitor
	Breaker      *breaker.Breaker
}

// Server is the Pulse HTTP API server.
type Server struct {
	deps   Deps
	router chi.Router
	addr   string
	logger *slog.Logger
	srv    *http.Server
}

// New creates a new HTTP server.
func New(cfg *types.ServerConfig, deps Deps) *Server {
	s := &Server{
		deps:   deps,
		addr:   cfg.Addr,
		logger: slog.Default(),
	}

	maxBody := cfg.MaxRequestBody
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBody
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(MaxBodyMiddleware(maxBody))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))
	r.Use(APIKeyMiddleware(cfg.APIKey))

	s.router = r
	s.registerRoutes(r, cfg)
	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// metricsHandler serves the expvar counters without the default mux.
func metricsHandler() http.Handler {
	return expvar.Handler()
}
