package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stratus-analytics/pulse/pkg/types"
)

func (s *RedisStore) breakerKey(category, provider string) string {
	return s.prefix + "breaker:" + category + ":" + provider
}

func (s *RedisStore) breakerIndexKey() string {
	return s.prefix + "breakers"
}

func (s *RedisStore) valueKey(category string) string {
	return s.prefix + "value:" + category
}

func (s *RedisStore) valueChannel(category string) string {
	return s.prefix + "updates:" + category
}

func (s *RedisStore) runKey(pipeline string) string {
	return s.prefix + "runs:" + pipeline
}

func (s *RedisStore) eventStreamKey() string {
	return s.prefix + "events"
}

func (s *RedisStore) lockKey(key string) string {
	return s.prefix + "lock:" + key
}

// GetBreaker retrieves the breaker state for a (category, provider) pair.
// Returns nil when no state has been recorded yet.
func (s *RedisStore) GetBreaker(ctx context.Context, category, provider string) (*types.BreakerState, error) {
	data, err := s.client.Get(ctx, s.breakerKey(category, provider)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("reading breaker state", err)
	}

	var st types.BreakerState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding breaker state for %s/%s: %w", category, provider, err)
	}
	return &st, nil
}

// PutBreaker atomically writes a breaker state if the stored version matches
// expectedVersion. Breaker keys carry no TTL: a breaker is a perpetual health
// indicator and is reset, never deleted.
func (s *RedisStore) PutBreaker(ctx context.Context, state types.BreakerState, expectedVersion int) (bool, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("encoding breaker state: %w", err)
	}

	key := s.breakerKey(state.Category, state.Provider)
	result, err := s.casScript.Run(ctx, s.client, []string{key}, expectedVersion, string(data)).Int()
	if err != nil {
		return false, wrapErr("writing breaker state", err)
	}
	if result != 1 {
		return false, nil
	}
	// Index membership is idempotent; losing the race here is harmless.
	if err := s.client.SAdd(ctx, s.breakerIndexKey(), state.Category+":"+state.Provider).Err(); err != nil {
		s.logger.Warn("failed to index breaker key", "category", state.Category, "provider", state.Provider, "error", err)
	}
	return true, nil
}

// ListBreakers returns all recorded breaker states. The index set maintained
// by PutBreaker makes this a two-command read rather than a keyspace scan.
func (s *RedisStore) ListBreakers(ctx context.Context) ([]types.BreakerState, error) {
	members, err := s.client.SMembers(ctx, s.breakerIndexKey()).Result()
	if err != nil {
		return nil, wrapErr("reading breaker index", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, len(members))
	for i, member := range members {
		keys[i] = s.prefix + "breaker:" + member
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr("reading breaker states", err)
	}

	states := make([]types.BreakerState, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("skipping indexed breaker with no state", "member", members[i])
			continue
		}
		var st types.BreakerState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			s.logger.Warn("skipping corrupt breaker data", "member", members[i], "error", err)
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

// PutValue stores the last-known-good value for a category. No key TTL:
// expiry is a read-time judgment and stale data is still served with its age.
func (s *RedisStore) PutValue(ctx context.Context, value types.CachedValue) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cached value: %w", err)
	}
	if err := s.client.Set(ctx, s.valueKey(value.Category), data, 0).Err(); err != nil {
		return wrapErr("writing cached value", err)
	}
	return nil
}

// GetValue retrieves the cached value for a category, or nil if never fetched.
func (s *RedisStore) GetValue(ctx context.Context, category string) (*types.CachedValue, error) {
	data, err := s.client.Get(ctx, s.valueKey(category)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("reading cached value", err)
	}

	var v types.CachedValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding cached value for %s: %w", category, err)
	}
	return &v, nil
}

// PublishValue notifies pub/sub subscribers of a fresh value. Disabled
// deployments make this a no-op.
func (s *RedisStore) PublishValue(ctx context.Context, value types.CachedValue) error {
	if !s.publishUpdates {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cached value: %w", err)
	}
	if err := s.client.Publish(ctx, s.valueChannel(value.Category), data).Err(); err != nil {
		return wrapErr("publishing value update", err)
	}
	return nil
}

// PutRunResult stores a pipeline run result in the per-pipeline history list.
func (s *RedisStore) PutRunResult(ctx context.Context, result types.PipelineRunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding run result: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.runKey(result.Pipeline), data)
	pipe.LTrim(ctx, s.runKey(result.Pipeline), 0, int64(s.runIndexLimit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapErr("writing run result", err)
	}
	return nil
}

// ListRunResults returns recent run results for a pipeline, newest first.
func (s *RedisStore) ListRunResults(ctx context.Context, pipeline string, limit int) ([]types.PipelineRunResult, error) {
	if limit <= 0 {
		limit = 10
	}
	entries, err := s.client.LRange(ctx, s.runKey(pipeline), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, wrapErr("reading run results", err)
	}

	var results []types.PipelineRunResult
	for _, entry := range entries {
		var r types.PipelineRunResult
		if err := json.Unmarshal([]byte(entry), &r); err != nil {
			s.logger.Warn("skipping corrupt run result", "pipeline", pipeline, "error", err)
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// AppendEvent writes an event to the audit stream.
func (s *RedisStore) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	err = s.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.eventStreamKey(),
		MaxLen: s.eventStreamMax,
		Approx: true,
		Values: map[string]interface{}{
			"kind": string(event.Kind),
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return wrapErr("appending event", err)
	}
	return nil
}

// ListEvents returns recent events, oldest first.
func (s *RedisStore) ListEvents(ctx context.Context, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := s.client.XRevRangeN(ctx, s.eventStreamKey(), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, wrapErr("reading events", err)
	}

	events := make([]types.Event, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			s.logger.Warn("skipping event with missing data field", "streamID", msgs[i].ID)
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			s.logger.Warn("skipping corrupt event data", "streamID", msgs[i].ID, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// AcquireLock attempts to acquire a distributed lock with the given key and TTL.
// The TTL bounds how long a crashed holder can wedge the lock.
func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(key), "1", ttl).Result()
	if err != nil {
		return false, wrapErr("acquiring lock", err)
	}
	return ok, nil
}

// ReleaseLock releases a distributed lock.
func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.lockKey(key)).Err(); err != nil {
		return wrapErr("releasing lock", err)
	}
	return nil
}
