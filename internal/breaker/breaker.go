// Package breaker implements the per-provider circuit breaker state machine
// over the shared state store.
package breaker

import (
	"context"
	"log/slog"
	"time"

	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// casAttempts bounds the read-modify-write retry loop. Losing an update after
// exhausting retries is tolerable (worst case one extra failing call gets
// through); returning a corrupted state is not.
const casAttempts = 3

// Config holds global breaker tuning. Per-category threshold and base
// cooldown arrive per call via Policy.
type Config struct {
	BackoffFactor float64       // cooldown multiplier after a failed half-open trial (default 2.0)
	MaxCooldown   time.Duration // cap for extended cooldowns (default 1h)
}

// DefaultConfig returns the default breaker tuning.
func DefaultConfig() Config {
	return Config{
		BackoffFactor: 2.0,
		MaxCooldown:   time.Hour,
	}
}

// Policy carries the per-category failure threshold and base cooldown.
type Policy struct {
	Threshold int
	Cooldown  time.Duration
}

// Breaker tracks per-(category, provider) failure state through the shared
// store so every orchestrator worker observes the same breaker decisions.
type Breaker struct {
	store  store.Store
	config Config
	logger *slog.Logger
}

// New creates a Breaker over the given store.
func New(st store.Store, config Config) *Breaker {
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 2.0
	}
	if config.MaxCooldown <= 0 {
		config.MaxCooldown = time.Hour
	}
	return &Breaker{
		store:  st,
		config: config,
		logger: slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (b *Breaker) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Allow reports whether a call to the provider may proceed. CLOSED (or no
// recorded state) allows immediately. OPEN allows only once the cooldown has
// elapsed — the caller receiving true in that edge is implicitly running the
// HALF_OPEN trial; no stored transition is needed, which avoids a race where
// two concurrent trials both think they are "the" trial.
func (b *Breaker) Allow(ctx context.Context, category, provider string) (bool, error) {
	st, err := b.store.GetBreaker(ctx, category, provider)
	if err != nil {
		return false, err
	}
	if st == nil || st.State == types.CircuitClosed {
		return true, nil
	}
	if st.OpenedAt == nil {
		// Open without a timestamp should not happen; fail open to the trial.
		return true, nil
	}
	return time.Since(*st.OpenedAt) >= st.Cooldown(), nil
}

// RecordSuccess resets the breaker to CLOSED with zero failures. Idempotent;
// a success with no recorded state is a no-op.
func (b *Breaker) RecordSuccess(ctx context.Context, category, provider string) error {
	return b.mutate(ctx, category, provider, func(st *types.BreakerState) *types.BreakerState {
		if st == nil || (st.State == types.CircuitClosed && st.ConsecutiveFailures == 0) {
			return nil
		}
		next := *st
		next.State = types.CircuitClosed
		next.ConsecutiveFailures = 0
		next.OpenedAt = nil
		return &next
	})
}

// RecordFailure increments the consecutive failure count and opens the
// breaker once the policy threshold is reached. A failure during a HALF_OPEN
// trial extends the cooldown by the backoff factor (capped) instead of
// resetting it, so a provider that recovers briefly and fails again does not
// cause flapping.
func (b *Breaker) RecordFailure(ctx context.Context, category, provider string, policy Policy) error {
	if policy.Threshold <= 0 {
		policy.Threshold = 3
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = 5 * time.Minute
	}

	var opened bool
	err := b.mutate(ctx, category, provider, func(st *types.BreakerState) *types.BreakerState {
		now := time.Now()
		var next types.BreakerState
		if st == nil {
			next = types.BreakerState{Category: category, Provider: provider, State: types.CircuitClosed}
		} else {
			next = *st
		}
		next.ConsecutiveFailures++

		switch {
		case next.State != types.CircuitOpen:
			if next.ConsecutiveFailures >= policy.Threshold {
				next.State = types.CircuitOpen
				next.OpenedAt = &now
				next.CooldownSeconds = int(policy.Cooldown.Seconds())
				opened = true
			}
		case next.OpenedAt == nil || now.Sub(*next.OpenedAt) >= next.Cooldown():
			// Failed half-open trial: extend cooldown and re-arm.
			extended := time.Duration(float64(next.Cooldown()) * b.config.BackoffFactor)
			if extended > b.config.MaxCooldown {
				extended = b.config.MaxCooldown
			}
			if extended < policy.Cooldown {
				extended = policy.Cooldown
			}
			next.CooldownSeconds = int(extended.Seconds())
			next.OpenedAt = &now
		default:
			// Concurrent failure recorded while within cooldown; count it
			// without re-arming the open window.
		}
		return &next
	})
	if err != nil {
		return err
	}

	if opened {
		b.logger.Warn("circuit opened", "category", category, "provider", provider, "threshold", policy.Threshold)
		_ = b.store.AppendEvent(ctx, types.Event{
			Kind:      types.EventBreakerOpened,
			Category:  category,
			Provider:  provider,
			Status:    string(types.CircuitOpen),
			Timestamp: time.Now(),
		})
	}
	return nil
}

// Reset forces the breaker CLOSED, bypassing the failure-threshold
// protection. Administrative override; calling it on an already-CLOSED
// breaker is a no-op.
func (b *Breaker) Reset(ctx context.Context, category, provider string) error {
	var changed bool
	err := b.mutate(ctx, category, provider, func(st *types.BreakerState) *types.BreakerState {
		if st == nil || (st.State == types.CircuitClosed && st.ConsecutiveFailures == 0) {
			return nil
		}
		next := *st
		next.State = types.CircuitClosed
		next.ConsecutiveFailures = 0
		next.OpenedAt = nil
		changed = true
		return &next
	})
	if err != nil {
		return err
	}

	if changed {
		b.logger.Info("circuit reset", "category", category, "provider", provider)
		_ = b.store.AppendEvent(ctx, types.Event{
			Kind:      types.EventBreakerReset,
			Category:  category,
			Provider:  provider,
			Status:    string(types.CircuitClosed),
			Timestamp: time.Now(),
		})
	}
	return nil
}

// States returns all recorded breaker states.
func (b *Breaker) States(ctx context.Context) ([]types.BreakerState, error) {
	return b.store.ListBreakers(ctx)
}

// mutate runs a bounded compare-and-swap loop. fn receives the current state
// (nil if none) and returns the desired next state, or nil for no-op.
func (b *Breaker) mutate(ctx context.Context, category, provider string, fn func(*types.BreakerState) *types.BreakerState) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		st, err := b.store.GetBreaker(ctx, category, provider)
		if err != nil {
			return err
		}

		next := fn(st)
		if next == nil {
			return nil
		}

		expected := 0
		if st != nil {
			expected = st.Version
		}
		next.Version = expected + 1
		next.UpdatedAt = time.Now()

		ok, err := b.store.PutBreaker(ctx, *next, expected)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	b.logger.Warn("breaker update lost after CAS retries", "category", category, "provider", provider)
	return nil
}
