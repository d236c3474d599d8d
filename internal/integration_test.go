package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-analytics/pulse/internal/breaker"
	"github.com/stratus-analytics/pulse/internal/chain"
	"github.com/stratus-analytics/pulse/internal/freshness"
	"github.com/stratus-analytics/pulse/internal/orchestrator"
	"github.com/stratus-analytics/pulse/internal/source"
	"github.com/stratus-analytics/pulse/internal/store/memstore"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// flakyUpstream fails until healed, then serves rates.
type flakyUpstream struct {
	healthy atomic.Bool
	hits    atomic.Int64
	srv     *httptest.Server
}

func newFlakyUpstream(t *testing.T) *flakyUpstream {
	t.Helper()
	u := &flakyUpstream{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		if !u.healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"base":"USD","date":"2026-08-28","rates":{"EUR":0.92}}`))
	}))
	t.Cleanup(u.srv.Close)
	return u
}

type stack struct {
	cfg       *types.ProjectConfig
	store     *memstore.MemStore
	breaker   *breaker.Breaker
	orch      *orchestrator.Orchestrator
	freshness *freshness.Monitor
}

func buildStack(t *testing.T, primaryURL, secondaryURL string) *stack {
	t.Helper()
	cfg := &types.ProjectConfig{
		Categories: []types.CategoryConfig{
			{
				Name:             "fx:USD_EUR",
				FailureThreshold: 2,
				Cooldown:         "150ms",
				Providers: []types.ProviderConfig{
					{
						Name:     "exchangerate_api",
						Priority: 1,
						URL:      primaryURL,
						Params:   map[string]string{"base": "USD", "quote": "EUR"},
					},
					{
						Name:     "ecb",
						Priority: 2,
						URL:      secondaryURL,
						Params:   map[string]string{"base": "USD", "quote": "EUR"},
					},
				},
			},
		},
		Pipelines: []types.PipelineConfig{
			{Name: "market-data", Categories: []string{"fx:USD_EUR"}},
		},
	}

	st := memstore.New()
	reg, err := source.Build(cfg.Categories)
	require.NoError(t, err)
	br := breaker.New(st, breaker.Config{BackoffFactor: 2.0, MaxCooldown: time.Second})
	return &stack{
		cfg:       cfg,
		store:     st,
		breaker:   br,
		orch:      orchestrator.New(cfg, st, chain.New(st, br), reg, nil),
		freshness: freshness.New(cfg, st),
	}
}

const ecbFeed = `<?xml version="1.0" encoding="UTF-8"?>
<gesmes:Envelope xmlns:gesmes="http://www.gesmes.org/xml/2002-08-01" xmlns="http://www.ecb.int/vocabulary/2002-08-01/eurofxref">
  <Cube>
    <Cube time="2026-08-28">
      <Cube currency="USD" rate="1.0850"/>
    </Cube>
  </Cube>
</gesmes:Envelope>`

// TestBreakerLifecycle drives a provider outage end to end: the primary
// fails and trips its breaker, later runs skip it and win through the
// fallback, and once the cooldown elapses a half-open trial against the
// recovered primary closes the circuit again.
func TestBreakerLifecycle(t *testing.T) {
	primary := newFlakyUpstream(t)

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ecbFeed))
	}))
	defer secondary.Close()

	s := buildStack(t, primary.srv.URL, secondary.URL)
	ctx := context.Background()

	// Two failing runs trip the primary's breaker (threshold 2); each run
	// still succeeds via the fallback.
	for i := 0; i < 2; i++ {
		result, err := s.orch.Run(ctx, "market-data")
		require.NoError(t, err)
		assert.Equal(t, types.RunCompleted, result.Status)
		assert.Equal(t, "ecb", result.Steps[0].WinningSource)
	}

	state, err := s.store.GetBreaker(ctx, "fx:USD_EUR", "exchangerate_api")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.CircuitOpen, state.State)

	// Within the cooldown the open primary is skipped outright.
	hitsBefore := primary.hits.Load()
	result, err := s.orch.Run(ctx, "market-data")
	require.NoError(t, err)
	assert.Equal(t, "ecb", result.Steps[0].WinningSource)
	assert.True(t, result.Steps[0].Attempts[0].Skipped)
	assert.Equal(t, hitsBefore, primary.hits.Load())

	// After the cooldown the recovered primary gets a half-open trial and
	// wins, closing its circuit.
	primary.healthy.Store(true)
	time.Sleep(200 * time.Millisecond)

	result, err = s.orch.Run(ctx, "market-data")
	require.NoError(t, err)
	assert.Equal(t, "exchangerate_api", result.Steps[0].WinningSource)

	state, err = s.store.GetBreaker(ctx, "fx:USD_EUR", "exchangerate_api")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.CircuitClosed, state.State)
	assert.Equal(t, 0, state.ConsecutiveFailures)

	// The audit trail holds the breaker transitions and refreshes.
	events, err := s.store.ListEvents(ctx, 100)
	require.NoError(t, err)
	kinds := make(map[types.EventKind]int)
	for _, e := range events {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[types.EventBreakerOpened])
	assert.Equal(t, 4, kinds[types.EventValueRefreshed])
	assert.Equal(t, 4, kinds[types.EventPipelineCompleted])
}

// TestStaleValueSurvivesOutage verifies the availability invariant: when
// every provider is down, the last-known-good value stays readable and is
// reported stale rather than deleted.
func TestStaleValueSurvivesOutage(t *testing.T) {
	primary := newFlakyUpstream(t)
	secondary := newFlakyUpstream(t)
	primary.healthy.Store(true)
	secondary.healthy.Store(true)

	s := buildStack(t, primary.srv.URL, secondary.srv.URL)
	s.cfg.Categories[0].StalenessThreshold = "50ms"
	ctx := context.Background()

	result, err := s.orch.Run(ctx, "market-data")
	require.NoError(t, err)
	require.Equal(t, types.RunCompleted, result.Status)

	var payload source.RatePayload
	value, err := s.store.GetValue(ctx, "fx:USD_EUR")
	require.NoError(t, err)
	require.NotNil(t, value)
	require.NoError(t, json.Unmarshal(value.Value, &payload))
	assert.Equal(t, "USD_EUR", payload.Pair)

	// Total outage: the next run fails, but the cached value survives and
	// ages into staleness instead of disappearing.
	primary.healthy.Store(false)
	secondary.healthy.Store(false)
	time.Sleep(60 * time.Millisecond)

	result, err = s.orch.Run(ctx, "market-data")
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, result.Status)
	assert.Equal(t, types.StepFailedAllSources, result.Steps[0].Status)

	value, err = s.store.GetValue(ctx, "fx:USD_EUR")
	require.NoError(t, err)
	require.NotNil(t, value)

	entry, err := s.freshness.Check(ctx, "fx:USD_EUR")
	require.NoError(t, err)
	assert.Equal(t, types.FreshnessStale, entry.Status)
	assert.True(t, entry.Stale)
}
