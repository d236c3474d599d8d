//go:build integration

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-analytics/pulse/pkg/types"
)

func setupTestStore(t *testing.T) *RedisStore {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	prefix := fmt.Sprintf("pulse-test-%d:", time.Now().UnixNano())
	s := NewFromClient(client, prefix)

	t.Cleanup(func() {
		var cursor uint64
		for {
			keys, next, err := client.Scan(ctx, cursor, prefix+"*", 100).Result()
			if err != nil {
				break
			}
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
			cursor = next
			if cursor == 0 {
				break
			}
		}
		client.Close()
	})

	return s
}

func TestBreakerCAS(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	st := types.BreakerState{
		Category:        "fx:USD_EUR",
		Provider:        "ecb",
		State:           types.CircuitClosed,
		CooldownSeconds: 300,
		Version:         1,
		UpdatedAt:       time.Now(),
	}

	ok, err := s.PutBreaker(ctx, st, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// Create again must conflict.
	ok, err = s.PutBreaker(ctx, st, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Update with matching version succeeds.
	st.Version = 2
	st.ConsecutiveFailures = 1
	ok, err = s.PutBreaker(ctx, st, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// Update with stale version fails and leaves state intact.
	st.Version = 3
	st.ConsecutiveFailures = 9
	ok, err = s.PutBreaker(ctx, st, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetBreaker(ctx, "fx:USD_EUR", "ecb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 1, got.ConsecutiveFailures)
}

func TestBreakerAbsent(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.GetBreaker(context.Background(), "fx:USD_EUR", "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListBreakers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, provider := range []string{"ecb", "exchangerate_api"} {
		ok, err := s.PutBreaker(ctx, types.BreakerState{
			Category: "fx:USD_EUR",
			Provider: provider,
			State:    types.CircuitClosed,
			Version:  1,
		}, 0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	states, err := s.ListBreakers(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 2)

	// Index membership is idempotent; an update does not duplicate entries.
	ok, err := s.PutBreaker(ctx, types.BreakerState{
		Category:            "fx:USD_EUR",
		Provider:            "ecb",
		State:               types.CircuitClosed,
		ConsecutiveFailures: 1,
		Version:             2,
	}, 1)
	require.NoError(t, err)
	require.True(t, ok)

	states, err = s.ListBreakers(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 2)
}

func TestValueRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	missing, err := s.GetValue(ctx, "weather:berlin")
	require.NoError(t, err)
	assert.Nil(t, missing)

	v := types.CachedValue{
		Category:   "weather:berlin",
		Value:      json.RawMessage(`{"tempC":18.4}`),
		FetchedAt:  time.Now().UTC().Truncate(time.Second),
		Source:     "open_meteo",
		TTLSeconds: 21600,
	}
	require.NoError(t, s.PutValue(ctx, v))

	got, err := s.GetValue(ctx, "weather:berlin")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "open_meteo", got.Source)
	assert.JSONEq(t, `{"tempC":18.4}`, string(got.Value))
}

func TestRunResultHistory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.PutRunResult(ctx, types.PipelineRunResult{
			RunID:    fmt.Sprintf("market-%d", i),
			Pipeline: "market",
			Status:   types.RunCompleted,
		}))
	}

	runs, err := s.ListRunResults(ctx, "market", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "market-2", runs[0].RunID)
}

func TestEventStream(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, types.Event{
		Kind:      types.EventBreakerOpened,
		Category:  "fx:USD_EUR",
		Provider:  "ecb",
		Timestamp: time.Now(),
	}))
	require.NoError(t, s.AppendEvent(ctx, types.Event{
		Kind:      types.EventValueRefreshed,
		Category:  "fx:USD_EUR",
		Provider:  "exchangerate_api",
		Timestamp: time.Now(),
	}))

	events, err := s.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventBreakerOpened, events[0].Kind)
	assert.Equal(t, types.EventValueRefreshed, events[1].Kind)
}

func TestDistributedLock(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "run:market", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "run:market", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "run:market"))

	ok, err = s.AcquireLock(ctx, "run:market", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublishValue(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sub := s.Subscribe(ctx, "fx:USD_EUR")
	defer sub.Close()

	// Wait for the subscription to be established before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, s.PublishValue(ctx, types.CachedValue{
		Category: "fx:USD_EUR",
		Value:    json.RawMessage(`{"rate":"0.92"}`),
		Source:   "ecb",
	}))

	select {
	case msg := <-sub.Channel():
		var v types.CachedValue
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &v))
		assert.Equal(t, "ecb", v.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published value")
	}
}
