// Package redis implements the Store interface using Redis/Valkey.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stratus-analytics/pulse/internal/store"
	"github.com/stratus-analytics/pulse/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*RedisStore)(nil)

// casScript writes a breaker state only if the stored version matches the
// expected version. Expected version 0 means create-if-absent. Returns 1 on
// write, 0 on conflict.
const casScript = `
local current = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[1])
if not current then
  if expected == 0 then
    redis.call('SET', KEYS[1], ARGV[2])
    return 1
  end
  return 0
end
local decoded = cjson.decode(current)
local version = tonumber(decoded['version']) or 0
if version ~= expected then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`

const (
	defaultKeyPrefix      = "pulse:"
	defaultRunIndexLimit  = 100
	defaultEventStreamMax = 1000
)

// RedisStore implements the Store interface backed by Redis/Valkey.
type RedisStore struct {
	client         *goredis.Client
	prefix         string
	casScript      *goredis.Script
	runIndexLimit  int
	eventStreamMax int64
	publishUpdates bool
	logger         *slog.Logger
}

// New creates a new RedisStore from configuration.
func New(cfg *types.RedisConfig) *RedisStore {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	s := NewFromClient(client, cfg.KeyPrefix)
	if cfg.RunIndexLimit > 0 {
		s.runIndexLimit = cfg.RunIndexLimit
	}
	if cfg.EventStreamMax > 0 {
		s.eventStreamMax = cfg.EventStreamMax
	}
	s.publishUpdates = cfg.PublishUpdates
	return s
}

// NewFromClient creates a RedisStore from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:         client,
		prefix:         prefix,
		casScript:      goredis.NewScript(casScript),
		runIndexLimit:  defaultRunIndexLimit,
		eventStreamMax: defaultEventStreamMax,
		publishUpdates: true,
		logger:         slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (s *RedisStore) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Start initializes the store connection.
func (s *RedisStore) Start(ctx context.Context) error {
	return s.Ping(ctx)
}

// Stop closes the store connection.
func (s *RedisStore) Stop(_ context.Context) error {
	return s.client.Close()
}

// Ping checks connectivity to the Redis server.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (s *RedisStore) Client() *goredis.Client {
	return s.client
}

// Subscribe returns a pub/sub subscription for value updates on the given
// categories. Callers must Close the returned subscription.
func (s *RedisStore) Subscribe(ctx context.Context, categories ...string) *goredis.PubSub {
	channels := make([]string, len(categories))
	for i, c := range categories {
		channels[i] = s.valueChannel(c)
	}
	return s.client.Subscribe(ctx, channels...)
}

// wrapErr marks any Redis transport error as a store infrastructure fault.
func wrapErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", store.ErrUnavailable, op, err)
}
