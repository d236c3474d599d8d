// Package chain implements the per-category fallback chain: providers are
// tried in priority order behind their circuit breakers and the first
// success wins.
package chain

import (
	"context"
	"log/slog"
	"time"

	"github.com/stratus-analytics/pulse/internal/breaker"
	"github.com/stratus-analytics/pulse/internal/metrics"
	"github.com/stratus-analytics/pulse/internal/source"
	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// Plan is one category's resolved refresh plan: the ordered adapter chain
// plus the breaker policy and cache TTL that apply to it.
type Plan struct {
	Category string
	Sources  []source.Source
	Policy   breaker.Policy
	TTL      time.Duration
}

// Chain executes refresh plans against the shared store.
type Chain struct {
	store   store.Store
	breaker *breaker.Breaker
	logger  *slog.Logger
}

// New creates a Chain over the given store and breaker.
func New(st store.Store, br *breaker.Breaker) *Chain {
	return &Chain{
		store:   st,
		breaker: br,
		logger:  slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (c *Chain) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Refresh runs one pass over the plan's providers. Provider failures are
// recorded in the result, not returned; the error return is reserved for
// shared store faults, which make the whole pass meaningless. On success the
// fetched value is cached before the result is returned, so a SUCCESS status
// always implies a visible cached value.
func (c *Chain) Refresh(ctx context.Context, plan Plan) (types.StepResult, error) {
	start := time.Now()
	result := types.StepResult{Category: plan.Category}

	attempted := false
	for _, src := range plan.Sources {
		if err := ctx.Err(); err != nil {
			// Step budget exhausted. The caller turns this into a failed
			// step; attempts recorded so far stay in the result.
			return result, err
		}
		allowed, err := c.breaker.Allow(ctx, plan.Category, src.Name())
		if err != nil {
			return result, err
		}
		if !allowed {
			metrics.BreakerSkips.Add(1)
			result.Attempts = append(result.Attempts, types.AttemptResult{
				Provider: src.Name(),
				Skipped:  true,
			})
			c.logger.Debug("provider skipped, circuit open",
				"category", plan.Category, "provider", src.Name())
			continue
		}

		attempted = true
		attemptStart := time.Now()
		metrics.FetchAttemptsTotal.Add(1)
		data, fetchErr := src.Fetch(ctx)

		if fetchErr != nil {
			metrics.FetchFailuresTotal.Add(1)
			reason := source.Classify(fetchErr)
			result.Attempts = append(result.Attempts, types.AttemptResult{
				Provider:   src.Name(),
				Reason:     reason,
				Error:      fetchErr.Error(),
				DurationMS: time.Since(attemptStart).Milliseconds(),
			})
			c.logger.Warn("provider fetch failed",
				"category", plan.Category, "provider", src.Name(),
				"reason", reason, "error", fetchErr)
			// Detached context: a fetch that consumed the whole step
			// budget still counts against the provider's breaker.
			if err := c.breaker.RecordFailure(context.WithoutCancel(ctx), plan.Category, src.Name(), plan.Policy); err != nil {
				return result, err
			}
			continue
		}

		result.Attempts = append(result.Attempts, types.AttemptResult{
			Provider:   src.Name(),
			DurationMS: time.Since(attemptStart).Milliseconds(),
		})
		// Detached context for the same reason as the failure path: a
		// value fetched at the deadline boundary must still be cached,
		// or SUCCESS would no longer imply a visible cached value.
		wctx := context.WithoutCancel(ctx)
		if err := c.breaker.RecordSuccess(wctx, plan.Category, src.Name()); err != nil {
			return result, err
		}

		value := types.CachedValue{
			Category:   plan.Category,
			Value:      data,
			FetchedAt:  time.Now(),
			Source:     src.Name(),
			TTLSeconds: int(plan.TTL.Seconds()),
		}
		if err := c.store.PutValue(wctx, value); err != nil {
			return result, err
		}
		if err := c.store.PublishValue(wctx, value); err != nil {
			c.logger.Warn("publish failed", "category", plan.Category, "error", err)
		}
		c.appendEvent(wctx, types.Event{
			Kind:      types.EventValueRefreshed,
			Category:  plan.Category,
			Provider:  src.Name(),
			Status:    string(types.StepSuccess),
			Timestamp: time.Now(),
		})

		metrics.RefreshesTotal.Add(1)
		result.Status = types.StepSuccess
		result.WinningSource = src.Name()
		result.DurationMS = time.Since(start).Milliseconds()
		c.logger.Info("category refreshed",
			"category", plan.Category, "source", src.Name(),
			"durationMs", result.DurationMS)
		return result, nil
	}

	result.DurationMS = time.Since(start).Milliseconds()
	if !attempted {
		// Every breaker was open. Nothing was even tried, which is a
		// stronger outage signal than failed attempts.
		metrics.RefreshesSkipped.Add(1)
		result.Status = types.StepSkippedCircuitOpen
		result.Error = "all providers skipped, circuits open"
		c.logger.Warn("category skipped, all circuits open", "category", plan.Category)
		return result, nil
	}

	metrics.RefreshesFailed.Add(1)
	result.Status = types.StepFailedAllSources
	result.Error = "all providers failed"
	c.appendEvent(context.WithoutCancel(ctx), types.Event{
		Kind:      types.EventCategoryExhausted,
		Category:  plan.Category,
		Status:    string(types.StepFailedAllSources),
		Timestamp: time.Now(),
	})
	c.logger.Error("category exhausted, all providers failed", "category", plan.Category)
	return result, nil
}

// appendEvent records an audit event; the refresh outcome does not depend
// on the audit trail being writable.
func (c *Chain) appendEvent(ctx context.Context, event types.Event) {
	if err := c.store.AppendEvent(ctx, event); err != nil {
		c.logger.Warn("event append failed", "kind", event.Kind, "error", err)
	}
}
