// Package refresher implements the built-in background refresh loop.
// Deployments driven by an external scheduler leave it disabled and use the
// refresh endpoint; single-binary deployments enable it to run pipelines on
// their configured cadence.
package refresher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/stratus-analytics/pulse/internal/orchestrator"
	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

const defaultInterval = 6 * time.Hour

// Refresher periodically runs every configured pipeline.
type Refresher struct {
	cfg    *types.ProjectConfig
	store  store.Store
	orch   *orchestrator.Orchestrator
	logger *slog.Logger

	nextDue map[string]time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new Refresher.
func New(cfg *types.ProjectConfig, st store.Store, orch *orchestrator.Orchestrator, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		cfg:     cfg,
		store:   st,
		orch:    orch,
		logger:  logger,
		nextDue: make(map[string]time.Time),
	}
}

// Start begins the refresh polling loop. The first pass runs immediately.
func (r *Refresher) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	tick := r.tickInterval()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.logger.Info("refresher started", "tick", tick)

		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		r.poll(ctx)

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("refresher stopping")
				return
			case <-ticker.C:
				r.poll(ctx)
			}
		}
	}()
}

// Stop gracefully shuts down the refresher, waiting for any in-flight run
// up to the context deadline.
func (r *Refresher) Stop(ctx context.Context) {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("refresher stopped")
	case <-ctx.Done():
		r.logger.Warn("refresher stop timed out")
	}
}

// tickInterval is the polling granularity: the shortest configured pipeline
// interval, so no pipeline's due time is overshot by more than one tick.
func (r *Refresher) tickInterval() time.Duration {
	tick := r.defaultInterval()
	for i := range r.cfg.Pipelines {
		if d := r.pipelineInterval(&r.cfg.Pipelines[i]); d < tick {
			tick = d
		}
	}
	return tick
}

func (r *Refresher) defaultInterval() time.Duration {
	if r.cfg.Refresher == nil || r.cfg.Refresher.DefaultInterval == "" {
		return defaultInterval
	}
	d, err := time.ParseDuration(r.cfg.Refresher.DefaultInterval)
	if err != nil || d <= 0 {
		return defaultInterval
	}
	return d
}

func (r *Refresher) pipelineInterval(p *types.PipelineConfig) time.Duration {
	if p.Interval == "" {
		return r.defaultInterval()
	}
	d, err := time.ParseDuration(p.Interval)
	if err != nil || d <= 0 {
		return r.defaultInterval()
	}
	return d
}

func (r *Refresher) poll(ctx context.Context) {
	now := time.Now()
	for i := range r.cfg.Pipelines {
		if ctx.Err() != nil {
			return
		}
		p := &r.cfg.Pipelines[i]
		if due, ok := r.nextDue[p.Name]; ok && now.Before(due) {
			continue
		}

		interval := r.pipelineInterval(p)
		r.nextDue[p.Name] = now.Add(interval)
		r.run(ctx, p, interval)
	}
}

// run executes one pipeline pass behind a cross-process lock so that only
// one instance refreshes a pipeline per cadence window.
func (r *Refresher) run(ctx context.Context, p *types.PipelineConfig, interval time.Duration) {
	lockKey := "refresh:" + p.Name
	acquired, err := r.store.AcquireLock(ctx, lockKey, interval)
	if err != nil {
		r.logger.Error("refresh lock failed", "pipeline", p.Name, "error", err)
		return
	}
	if !acquired {
		// Another instance owns this cadence window.
		return
	}
	defer func() {
		if err := r.store.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
			r.logger.Error("refresh lock release failed", "pipeline", p.Name, "error", err)
		}
	}()

	result, err := r.orch.Run(ctx, p.Name)
	if err != nil {
		if errors.Is(err, orchestrator.ErrRunInProgress) {
			return
		}
		r.logger.Error("scheduled refresh failed", "pipeline", p.Name, "error", err)
		return
	}
	r.logger.Info("scheduled refresh finished",
		"pipeline", p.Name, "runId", result.RunID, "status", result.Status)
}
