package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tollgate/internal/idempotency/models"
	"tollgate/pkg/platform/sentinel"
	platformstrings "tollgate/pkg/platform/strings"
)

const redisKeyPrefix = "idempotency:"

// RedisStore claims with SET NX and lets Redis expire the key.
type RedisStore struct {
	client redis.UniversalClient
	clock  Clock
}

type RedisOption func(*RedisStore)

func WithRedisClock(clock Clock) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Kind() string { return models.KindRedis }

func (s *RedisStore) Create(ctx context.Context, rec models.Record) error {
	ttl := rec.ExpireAt.Sub(s.clock())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	ok, err := s.client.SetNX(ctx, redisKey(rec), rec.ExpireAt.UnixMilli(), ttl).Result()
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func redisKey(rec models.Record) string {
	return redisKeyPrefix + platformstrings.EscapeKeySegment(rec.AppID) + ":" + rec.RequestID
}
