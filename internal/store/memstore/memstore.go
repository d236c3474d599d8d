// Package memstore implements the Store interface in memory. It backs unit
// tests and single-process development runs; production deployments use the
// Redis store so breaker state is shared across workers.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*MemStore)(nil)

const defaultEventMax = 1000

type lockEntry struct {
	expiresAt time.Time
}

// MemStore is an in-memory Store implementation.
type MemStore struct {
	mu       sync.Mutex
	breakers map[string]types.BreakerState // key: category + "\x00" + provider
	values   map[string]types.CachedValue
	runs     map[string][]types.PipelineRunResult
	events   []types.Event
	locks    map[string]lockEntry

	runLimit int
	eventMax int

	// published records values passed to PublishValue, for tests.
	published []types.CachedValue
}

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{
		breakers: make(map[string]types.BreakerState),
		values:   make(map[string]types.CachedValue),
		runs:     make(map[string][]types.PipelineRunResult),
		locks:    make(map[string]lockEntry),
		runLimit: 100,
		eventMax: defaultEventMax,
	}
}

func breakerKey(category, provider string) string {
	return category + "\x00" + provider
}

func (m *MemStore) GetBreaker(_ context.Context, category, provider string) (*types.BreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.breakers[breakerKey(category, provider)]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemStore) PutBreaker(_ context.Context, state types.BreakerState, expectedVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := breakerKey(state.Category, state.Provider)
	current, ok := m.breakers[key]
	if !ok {
		if expectedVersion != 0 {
			return false, nil
		}
		m.breakers[key] = state
		return true, nil
	}
	if current.Version != expectedVersion {
		return false, nil
	}
	m.breakers[key] = state
	return true, nil
}

func (m *MemStore) ListBreakers(_ context.Context) ([]types.BreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.BreakerState
	for _, st := range m.breakers {
		result = append(result, st)
	}
	return result, nil
}

func (m *MemStore) PutValue(_ context.Context, value types.CachedValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[value.Category] = value
	return nil
}

func (m *MemStore) GetValue(_ context.Context, category string) (*types.CachedValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[category]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *MemStore) PublishValue(_ context.Context, value types.CachedValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, value)
	return nil
}

// Published returns the values passed to PublishValue so far.
func (m *MemStore) Published() []types.CachedValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.CachedValue, len(m.published))
	copy(out, m.published)
	return out
}

func (m *MemStore) PutRunResult(_ context.Context, result types.PipelineRunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := append([]types.PipelineRunResult{result}, m.runs[result.Pipeline]...)
	if len(runs) > m.runLimit {
		runs = runs[:m.runLimit]
	}
	m.runs[result.Pipeline] = runs
	return nil
}

func (m *MemStore) ListRunResults(_ context.Context, pipeline string, limit int) ([]types.PipelineRunResult, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := m.runs[pipeline]
	if len(runs) > limit {
		runs = runs[:limit]
	}
	out := make([]types.PipelineRunResult, len(runs))
	copy(out, runs)
	return out, nil
}

func (m *MemStore) AppendEvent(_ context.Context, event types.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if len(m.events) > m.eventMax {
		m.events = m.events[len(m.events)-m.eventMax:]
	}
	return nil
}

func (m *MemStore) ListEvents(_ context.Context, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]types.Event, len(events))
	copy(out, events)
	return out, nil
}

func (m *MemStore) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if entry, ok := m.locks[key]; ok && entry.expiresAt.After(now) {
		return false, nil
	}
	m.locks[key] = lockEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *MemStore) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *MemStore) Start(_ context.Context) error { return nil }
func (m *MemStore) Stop(_ context.Context) error  { return nil }
func (m *MemStore) Ping(_ context.Context) error  { return nil }
