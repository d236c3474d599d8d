// Package store defines the shared state store interface for Pulse.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/stratus-analytics/pulse/pkg/types"
)

// ErrUnavailable marks shared state store infrastructure failures. Callers
// use errors.Is to distinguish "the store is down" from "provider X is down":
// the former is the only condition that aborts a pipeline run.
var ErrUnavailable = errors.New("state store unavailable")

// Store is the shared state backend. One production implementation
// (Redis/Valkey) and one in-memory implementation for tests — breaker state
// must never live in a package-level singleton, since multiple orchestrator
// workers share it.
type Store interface {
	// Breaker state, compare-and-swap by version. PutBreaker writes only if
	// the stored version equals expectedVersion (0 = create-if-absent) and
	// reports whether the write happened.
	GetBreaker(ctx context.Context, category, provider string) (*types.BreakerState, error)
	PutBreaker(ctx context.Context, state types.BreakerState, expectedVersion int) (bool, error)
	ListBreakers(ctx context.Context) ([]types.BreakerState, error)

	// Cached values. Values are overwritten, never deleted; staleness is a
	// derived read-time judgment. PublishValue notifies pub/sub subscribers
	// of a fresh value and is best-effort.
	PutValue(ctx context.Context, value types.CachedValue) error
	GetValue(ctx context.Context, category string) (*types.CachedValue, error)
	PublishValue(ctx context.Context, value types.CachedValue) error

	// Run results — last-N history per pipeline for the API.
	PutRunResult(ctx context.Context, result types.PipelineRunResult) error
	ListRunResults(ctx context.Context, pipeline string, limit int) ([]types.PipelineRunResult, error)

	// Event log — append-only audit trail of refreshes and breaker transitions.
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, limit int) ([]types.Event, error)

	// Distributed locking for run coordination.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
