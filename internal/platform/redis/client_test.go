package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tollgate/internal/platform/config"
)

func TestNew(t *testing.T) {
	t.Run("empty url disables redis", func(t *testing.T) {
		c, err := New(context.Background(), config.Redis{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := New(context.Background(), config.Redis{URL: "http://nope"})
		assert.Error(t, err)
	})

	t.Run("connects and reports health", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := New(context.Background(), config.Redis{URL: "redis://" + mr.Addr(), PoolSize: 2})
		require.NoError(t, err)
		defer c.Close()

		assert.NoError(t, c.Health(context.Background()))
		mr.Close()
		assert.Error(t, c.Health(context.Background()))
	})
}
