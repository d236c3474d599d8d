// Package orchestrator runs refresh pipelines: a bounded-concurrency pass of
// fallback chains over a pipeline's categories, producing one persisted run
// result per invocation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stratus-analytics/pulse/internal/alert"
	"github.com/stratus-analytics/pulse/internal/breaker"
	"github.com/stratus-analytics/pulse/internal/chain"
	"github.com/stratus-analytics/pulse/internal/metrics"
	"github.com/stratus-analytics/pulse/internal/source"
	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// ErrRunInProgress is returned when a pipeline's distributed run lock is
// already held by another instance.
var ErrRunInProgress = errors.New("pipeline run already in progress")

const (
	defaultMaxConcurrency = 4
	defaultStepTimeout    = 30 * time.Second
	runLockTTL            = 5 * time.Minute
)

// Orchestrator executes configured pipelines.
type Orchestrator struct {
	cfg      *types.ProjectConfig
	store    store.Store
	chain    *chain.Chain
	registry *source.Registry
	alerts   *alert.Dispatcher
	logger   *slog.Logger
}

// New creates an Orchestrator. alerts may be nil when no sinks are configured.
func New(cfg *types.ProjectConfig, st store.Store, ch *chain.Chain, reg *source.Registry, alerts *alert.Dispatcher) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    st,
		chain:    ch,
		registry: reg,
		alerts:   alerts,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l != nil {
		o.logger = l
	}
}

// Run executes one pass of the named pipeline. Category failures are data in
// the returned run result; the error return is reserved for unknown
// pipelines, a held run lock, and shared store faults.
func (o *Orchestrator) Run(ctx context.Context, pipelineName string) (*types.PipelineRunResult, error) {
	p := o.cfg.Pipeline(pipelineName)
	if p == nil {
		return nil, fmt.Errorf("unknown pipeline %q", pipelineName)
	}

	if p.Lock {
		key := "run:" + p.Name
		acquired, err := o.store.AcquireLock(ctx, key, runLockTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := o.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
				o.logger.Warn("run lock release failed", "pipeline", p.Name, "error", err)
			}
		}()
	}

	plans, err := o.plans(p)
	if err != nil {
		return nil, err
	}

	maxConcurrency := p.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	stepTimeout := parseDuration(p.StepTimeout, defaultStepTimeout)

	result := &types.PipelineRunResult{
		RunID:     fmt.Sprintf("%s-%d", p.Name, time.Now().UnixNano()),
		Pipeline:  p.Name,
		StartedAt: time.Now(),
		Steps:     make([]types.StepResult, len(plans)),
	}
	o.logger.Info("pipeline run started",
		"pipeline", p.Name, "runId", result.RunID,
		"categories", len(plans), "maxConcurrency", maxConcurrency)

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	stepErrs := make([]error, len(plans))
	var wg sync.WaitGroup
	for i, pl := range plans {
		if err := sem.Acquire(ctx, 1); err != nil {
			stepErrs[i] = err
			break
		}
		wg.Add(1)
		go func(i int, pl chain.Plan) {
			defer wg.Done()
			defer sem.Release(1)

			stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
			defer cancel()
			stepStart := time.Now()
			res, err := o.chain.Refresh(stepCtx, pl)
			if err != nil && stepCtx.Err() != nil && ctx.Err() == nil {
				// The step overran its own budget. That is a category
				// failure, not a run failure; sibling steps keep their
				// results and the run is still persisted.
				res.Status = types.StepFailedAllSources
				res.Error = "step deadline exceeded"
				res.DurationMS = time.Since(stepStart).Milliseconds()
				metrics.RefreshesFailed.Add(1)
				o.logger.Warn("step deadline exceeded",
					"pipeline", p.Name, "category", pl.Category, "timeout", stepTimeout)
				err = nil
			}
			result.Steps[i], stepErrs[i] = res, err
		}(i, pl)
	}
	wg.Wait()

	for _, err := range stepErrs {
		if err != nil {
			metrics.PipelineRunsFailed.Add(1)
			return nil, fmt.Errorf("pipeline %s aborted: %w", p.Name, err)
		}
	}

	result.FinishedAt = time.Now()
	result.Status = aggregate(result.Steps)
	metrics.PipelineRunsTotal.Add(1)
	if result.Status == types.RunFailed {
		metrics.PipelineRunsFailed.Add(1)
	}

	if err := o.store.PutRunResult(ctx, *result); err != nil {
		return nil, err
	}
	if err := o.store.AppendEvent(ctx, types.Event{
		Kind:      types.EventPipelineCompleted,
		Pipeline:  p.Name,
		Status:    string(result.Status),
		Message:   result.RunID,
		Timestamp: time.Now(),
	}); err != nil {
		o.logger.Warn("event append failed", "pipeline", p.Name, "error", err)
	}

	o.alertFailedSteps(ctx, result)
	o.logger.Info("pipeline run finished",
		"pipeline", p.Name, "runId", result.RunID, "status", result.Status,
		"durationMs", result.FinishedAt.Sub(result.StartedAt).Milliseconds())
	return result, nil
}

// plans resolves the pipeline's categories into refresh plans, validating
// that each category is configured and registered.
func (o *Orchestrator) plans(p *types.PipelineConfig) ([]chain.Plan, error) {
	plans := make([]chain.Plan, 0, len(p.Categories))
	for _, name := range p.Categories {
		cat := o.cfg.Category(name)
		if cat == nil {
			return nil, fmt.Errorf("pipeline %s references unknown category %q", p.Name, name)
		}
		sources := o.registry.Sources(name)
		if len(sources) == 0 {
			return nil, fmt.Errorf("category %q has no registered sources", name)
		}
		threshold := cat.FailureThreshold
		if threshold <= 0 {
			threshold = 3
		}
		plans = append(plans, chain.Plan{
			Category: name,
			Sources:  sources,
			Policy: breaker.Policy{
				Threshold: threshold,
				Cooldown:  parseDuration(cat.Cooldown, 5*time.Minute),
			},
			TTL: parseDuration(cat.CacheTTL, 6*time.Hour),
		})
	}
	return plans, nil
}

func (o *Orchestrator) alertFailedSteps(ctx context.Context, result *types.PipelineRunResult) {
	if o.alerts == nil {
		return
	}
	for _, step := range result.Steps {
		switch step.Status {
		case types.StepFailedAllSources:
			o.alerts.Dispatch(ctx, types.Alert{
				Level:     types.AlertLevelError,
				Pipeline:  result.Pipeline,
				Category:  step.Category,
				Message:   fmt.Sprintf("category %s exhausted: every provider failed", step.Category),
				Details:   map[string]interface{}{"runId": result.RunID},
				Timestamp: time.Now(),
			})
		case types.StepSkippedCircuitOpen:
			o.alerts.Dispatch(ctx, types.Alert{
				Level:     types.AlertLevelWarning,
				Pipeline:  result.Pipeline,
				Category:  step.Category,
				Message:   fmt.Sprintf("category %s skipped: all circuits open", step.Category),
				Details:   map[string]interface{}{"runId": result.RunID},
				Timestamp: time.Now(),
			})
		}
	}
}

// aggregate reduces step outcomes to a run status: every step succeeded is
// COMPLETED, a mix is DEGRADED, no successes at all is FAILED.
func aggregate(steps []types.StepResult) types.RunStatus {
	successes := 0
	for _, s := range steps {
		if s.Status == types.StepSuccess {
			successes++
		}
	}
	switch {
	case successes == len(steps):
		return types.RunCompleted
	case successes > 0:
		return types.RunDegraded
	default:
		return types.RunFailed
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
