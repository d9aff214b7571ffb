package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tollgate/internal/auth/models"
	"tollgate/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "session:"
	legacyKeyPrefix  = "legacy_session:"
)

// RedisStore maps session tokens to user ids with Redis-side expiry.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores a session. A zero ttl keeps the key until deleted.
func (s *RedisStore) Put(ctx context.Context, token, userID string, legacy bool, ttl time.Duration) error {
	if err := s.client.Set(ctx, key(token, legacy), userID, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, key(token, false), key(token, true)).Err()
}

func (s *RedisStore) UserForSessionToken(ctx context.Context, token string) (*models.User, error) {
	return s.find(ctx, token, false)
}

func (s *RedisStore) UserForLegacySessionToken(ctx context.Context, token string) (*models.User, error) {
	return s.find(ctx, token, true)
}

func (s *RedisStore) find(ctx context.Context, token string, legacy bool) (*models.User, error) {
	userID, err := s.client.Get(ctx, key(token, legacy)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &models.User{ID: userID, SessionToken: token}, nil
}

func key(token string, legacy bool) string {
	if legacy {
		return legacyKeyPrefix + token
	}
	return sessionKeyPrefix + token
}
