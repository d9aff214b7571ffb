package counter

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"tollgate/internal/ratelimit/models"
	"tollgate/pkg/platform/sentinel"
)

// incrementScript bumps the counter and starts its window on the first hit.
// A key that somehow lost its expiry is given one again.
var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// DistributedStore counts hits in Redis so every instance shares a window.
// The connection is verified lazily; concurrent first callers share a
// single connection attempt.
type DistributedStore struct {
	client    redis.UniversalClient
	logger    *slog.Logger
	clock     Clock
	connected atomic.Bool
	connect   singleflight.Group
}

type DistributedOption func(*DistributedStore)

func WithLogger(logger *slog.Logger) DistributedOption {
	return func(s *DistributedStore) { s.logger = logger }
}

func WithDistributedClock(clock Clock) DistributedOption {
	return func(s *DistributedStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewDistributed(client redis.UniversalClient, opts ...DistributedOption) *DistributedStore {
	s := &DistributedStore{
		client: client,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDistributedFromURL builds a store for a redis:// or rediss:// URL.
// No connection is made until the first Increment.
func NewDistributedFromURL(url string, opts ...DistributedOption) (*DistributedStore, error) {
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewDistributed(redis.NewClient(parsed), opts...), nil
}

func (s *DistributedStore) Increment(ctx context.Context, key string, window time.Duration) (models.Count, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return models.Count{}, err
	}
	vals, err := incrementScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return models.Count{}, fmt.Errorf("increment %s: %w", key, err)
	}
	if len(vals) != 2 {
		return models.Count{}, fmt.Errorf("increment %s: unexpected reply of %d values", key, len(vals))
	}
	return models.Count{
		Hits:    int(vals[0]),
		ResetAt: s.clock().Add(time.Duration(vals[1]) * time.Millisecond),
	}, nil
}

func (s *DistributedStore) Reset(ctx context.Context, key string) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	return s.client.Del(ctx, key).Err()
}

// Connected reports whether a connection has been verified.
func (s *DistributedStore) Connected() bool { return s.connected.Load() }

func (s *DistributedStore) Close() error { return s.client.Close() }

func (s *DistributedStore) ensureConnected(ctx context.Context) error {
	if s.connected.Load() {
		return nil
	}
	_, err, _ := s.connect.Do("connect", func() (any, error) {
		if s.connected.Load() {
			return nil, nil
		}
		if err := s.client.Ping(context.WithoutCancel(ctx)).Err(); err != nil {
			s.logger.ErrorContext(ctx, fmt.Sprintf("Could not connect to redisURL in rate limit: %v", err))
			return nil, err
		}
		s.connected.Store(true)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("redis rate limit store: %w", sentinel.ErrUnavailable)
	}
	return nil
}
