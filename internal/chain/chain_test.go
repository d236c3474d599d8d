package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-analytics/pulse/internal/breaker"
	"github.com/stratus-analytics/pulse/internal/source"
	"github.com/stratus-analytics/pulse/internal/store/memstore"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// stubSource is a scripted provider adapter for chain tests.
type stubSource struct {
	name    string
	payload []byte
	err     error
	calls   int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(_ context.Context) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func newTestChain(t *testing.T) (*Chain, *memstore.MemStore, *breaker.Breaker) {
	t.Helper()
	st := memstore.New()
	br := breaker.New(st, breaker.DefaultConfig())
	return New(st, br), st, br
}

func plan(sources ...source.Source) Plan {
	return Plan{
		Category: "fx:USD_EUR",
		Sources:  sources,
		Policy:   breaker.Policy{Threshold: 3, Cooldown: 5 * time.Minute},
		TTL:      6 * time.Hour,
	}
}

func TestRefresh_FirstSourceWins(t *testing.T) {
	c, st, _ := newTestChain(t)
	primary := &stubSource{name: "ecb", payload: []byte(`{"rate":"0.92"}`)}
	secondary := &stubSource{name: "exchangerate_api", payload: []byte(`{"rate":"0.93"}`)}

	result, err := c.Refresh(context.Background(), plan(primary, secondary))
	require.NoError(t, err)

	assert.Equal(t, types.StepSuccess, result.Status)
	assert.Equal(t, "ecb", result.WinningSource)
	assert.Equal(t, 0, secondary.calls)

	cached, err := st.GetValue(context.Background(), "fx:USD_EUR")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "ecb", cached.Source)
	assert.JSONEq(t, `{"rate":"0.92"}`, string(cached.Value))
	assert.Equal(t, int(6*time.Hour.Seconds()), cached.TTLSeconds)
}

func TestRefresh_FallsBackOnFailure(t *testing.T) {
	c, st, _ := newTestChain(t)
	primary := &stubSource{name: "ecb", err: errors.New("connection refused")}
	secondary := &stubSource{name: "exchangerate_api", payload: []byte(`{"rate":"0.93"}`)}

	result, err := c.Refresh(context.Background(), plan(primary, secondary))
	require.NoError(t, err)

	assert.Equal(t, types.StepSuccess, result.Status)
	assert.Equal(t, "exchangerate_api", result.WinningSource)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "ecb", result.Attempts[0].Provider)
	assert.NotEmpty(t, result.Attempts[0].Error)
	assert.False(t, result.Attempts[0].Skipped)

	// The primary's failure is counted against its breaker.
	bs, err := st.GetBreaker(context.Background(), "fx:USD_EUR", "ecb")
	require.NoError(t, err)
	require.NotNil(t, bs)
	assert.Equal(t, 1, bs.ConsecutiveFailures)
}

func TestRefresh_SkipsOpenPrimary(t *testing.T) {
	c, st, br := newTestChain(t)
	primary := &stubSource{name: "ecb", payload: []byte(`{"rate":"0.92"}`)}
	secondary := &stubSource{name: "exchangerate_api", payload: []byte(`{"rate":"0.93"}`)}

	p := breaker.Policy{Threshold: 3, Cooldown: 5 * time.Minute}
	for i := 0; i < 3; i++ {
		require.NoError(t, br.RecordFailure(context.Background(), "fx:USD_EUR", "ecb", p))
	}

	result, err := c.Refresh(context.Background(), plan(primary, secondary))
	require.NoError(t, err)

	assert.Equal(t, types.StepSuccess, result.Status)
	assert.Equal(t, "exchangerate_api", result.WinningSource)
	assert.Equal(t, 0, primary.calls)
	require.Len(t, result.Attempts, 2)
	assert.True(t, result.Attempts[0].Skipped)

	cached, err := st.GetValue(context.Background(), "fx:USD_EUR")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "exchangerate_api", cached.Source)
}

func TestRefresh_AllFail(t *testing.T) {
	c, st, _ := newTestChain(t)
	primary := &stubSource{name: "ecb", err: errors.New("boom")}
	secondary := &stubSource{name: "exchangerate_api", err: errors.New("boom")}

	result, err := c.Refresh(context.Background(), plan(primary, secondary))
	require.NoError(t, err)

	assert.Equal(t, types.StepFailedAllSources, result.Status)
	assert.Empty(t, result.WinningSource)
	require.Len(t, result.Attempts, 2)

	// No cached value was written.
	cached, err := st.GetValue(context.Background(), "fx:USD_EUR")
	require.NoError(t, err)
	assert.Nil(t, cached)

	// Both breakers counted a failure.
	for _, provider := range []string{"ecb", "exchangerate_api"} {
		bs, err := st.GetBreaker(context.Background(), "fx:USD_EUR", provider)
		require.NoError(t, err)
		require.NotNil(t, bs)
		assert.Equal(t, 1, bs.ConsecutiveFailures)
	}

	events, err := st.ListEvents(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventCategoryExhausted, events[len(events)-1].Kind)
}

func TestRefresh_AllSkipped(t *testing.T) {
	c, _, br := newTestChain(t)
	primary := &stubSource{name: "ecb"}
	secondary := &stubSource{name: "exchangerate_api"}

	p := breaker.Policy{Threshold: 1, Cooldown: 5 * time.Minute}
	require.NoError(t, br.RecordFailure(context.Background(), "fx:USD_EUR", "ecb", p))
	require.NoError(t, br.RecordFailure(context.Background(), "fx:USD_EUR", "exchangerate_api", p))

	result, err := c.Refresh(context.Background(), plan(primary, secondary))
	require.NoError(t, err)

	assert.Equal(t, types.StepSkippedCircuitOpen, result.Status)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestRefresh_FailureStillFallsThroughAfterSkip(t *testing.T) {
	// Open primary, failing middle, healthy last: the skip must not mask the
	// middle failure and the last must still win.
	c, _, br := newTestChain(t)
	primary := &stubSource{name: "ecb"}
	middle := &stubSource{name: "exchangerate_api", err: errors.New("boom")}
	last := &stubSource{name: "commodities_api", payload: []byte(`{"ok":true}`)}

	p := breaker.Policy{Threshold: 1, Cooldown: 5 * time.Minute}
	require.NoError(t, br.RecordFailure(context.Background(), "fx:USD_EUR", "ecb", p))

	result, err := c.Refresh(context.Background(), plan(primary, middle, last))
	require.NoError(t, err)

	assert.Equal(t, types.StepSuccess, result.Status)
	assert.Equal(t, "commodities_api", result.WinningSource)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 1, middle.calls)
}

func TestRefresh_SuccessResetsBreaker(t *testing.T) {
	c, st, br := newTestChain(t)
	src := &stubSource{name: "ecb", payload: []byte(`{"ok":true}`)}

	p := breaker.Policy{Threshold: 5, Cooldown: 5 * time.Minute}
	require.NoError(t, br.RecordFailure(context.Background(), "fx:USD_EUR", "ecb", p))
	require.NoError(t, br.RecordFailure(context.Background(), "fx:USD_EUR", "ecb", p))

	_, err := c.Refresh(context.Background(), plan(src))
	require.NoError(t, err)

	bs, err := st.GetBreaker(context.Background(), "fx:USD_EUR", "ecb")
	require.NoError(t, err)
	require.NotNil(t, bs)
	assert.Equal(t, types.CircuitClosed, bs.State)
	assert.Equal(t, 0, bs.ConsecutiveFailures)
}

func TestRefresh_PublishesValue(t *testing.T) {
	c, st, _ := newTestChain(t)
	src := &stubSource{name: "ecb", payload: []byte(`{"ok":true}`)}

	_, err := c.Refresh(context.Background(), plan(src))
	require.NoError(t, err)

	published := st.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "fx:USD_EUR", published[0].Category)
}
