package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"tollgate/pkg/platform/sentinel"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client), mr
}

func TestRedisStore_Lookup(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "r:tok", "u1", false, time.Minute))
	require.NoError(t, store.Put(ctx, "legacy", "u2", true, 0))

	user, err := store.UserForSessionToken(ctx, "r:tok")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)

	user, err = store.UserForLegacySessionToken(ctx, "legacy")
	require.NoError(t, err)
	require.Equal(t, "u2", user.ID)

	_, err = store.UserForSessionToken(ctx, "legacy")
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	mr.FastForward(time.Minute)
	_, err = store.UserForSessionToken(ctx, "r:tok")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisStore_Revoke(t *testing.T) {
	store, _ := newMiniRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "r:tok", "u1", false, 0))
	require.NoError(t, store.Revoke(ctx, "r:tok"))

	_, err := store.UserForSessionToken(ctx, "r:tok")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisStore_ConnectionErrorIsNotNotFound(t *testing.T) {
	store, mr := newMiniRedisStore(t)
	mr.Close()

	_, err := store.UserForSessionToken(context.Background(), "r:tok")
	require.Error(t, err)
	require.NotErrorIs(t, err, sentinel.ErrNotFound)
}
