// Package commands implements the pulse CLI subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stratus-analytics/pulse/internal/alert"
	"github.com/stratus-analytics/pulse/internal/breaker"
	"github.com/stratus-analytics/pulse/internal/chain"
	"github.com/stratus-analytics/pulse/internal/config"
	"github.com/stratus-analytics/pulse/internal/freshness"
	"github.com/stratus-analytics/pulse/internal/orchestrator"
	"github.com/stratus-analytics/pulse/internal/source"
	redisstore "github.com/stratus-analytics/pulse/internal/store/redis"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// app wires the subsystems from a loaded project config.
type app struct {
	cfg       *types.ProjectConfig
	store     *redisstore.RedisStore
	breaker   *breaker.Breaker
	orch      *orchestrator.Orchestrator
	freshness *freshness.Monitor
	alerts    *alert.Dispatcher
	logger    *slog.Logger
}

// buildApp loads pulse.yaml from the current directory and assembles the
// refresh stack. The store is not yet connected; callers Start it.
func buildApp() (*app, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()

	st := redisstore.New(cfg.Redis)
	st.SetLogger(logger)

	reg, err := source.Build(cfg.Categories)
	if err != nil {
		return nil, fmt.Errorf("building source registry: %w", err)
	}

	br := breaker.New(st, breakerConfig(cfg.Breaker))
	br.SetLogger(logger)

	ch := chain.New(st, br)
	ch.SetLogger(logger)

	var alerts *alert.Dispatcher
	if len(cfg.Alerts) > 0 {
		alerts, err = alert.NewDispatcher(cfg.Alerts)
		if err != nil {
			return nil, fmt.Errorf("creating alert dispatcher: %w", err)
		}
		alerts.SetLogger(logger)
	}

	orch := orchestrator.New(cfg, st, ch, reg, alerts)
	orch.SetLogger(logger)

	return &app{
		cfg:       cfg,
		store:     st,
		breaker:   br,
		orch:      orch,
		freshness: freshness.New(cfg, st),
		alerts:    alerts,
		logger:    logger,
	}, nil
}

func breakerConfig(bc *types.BreakerConfig) breaker.Config {
	cfg := breaker.DefaultConfig()
	if bc == nil {
		return cfg
	}
	if bc.BackoffFactor >= 1 {
		cfg.BackoffFactor = bc.BackoffFactor
	}
	if bc.MaxCooldown != "" {
		if d, err := time.ParseDuration(bc.MaxCooldown); err == nil && d > 0 {
			cfg.MaxCooldown = d
		}
	}
	return cfg
}
