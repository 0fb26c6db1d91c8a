//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Fresh-Docs/RusTokio/internal/platform/config"
	platformredis "github.com/AI-Fresh-Docs/RusTokio/internal/platform/redis"
	"github.com/AI-Fresh-Docs/RusTokio/pkg/testutil/containers"
)

func TestNew(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	t.Run("empty URL disables redis", func(t *testing.T) {
		client, err := platformredis.New(ctx, config.RedisConfig{})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("connects and reports health", func(t *testing.T) {
		rc := containers.GetManager().GetRedis(t)
		client, err := platformredis.New(ctx, config.RedisConfig{
			URL:         rc.URL,
			PoolSize:    2,
			DialTimeout: 2 * time.Second,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		assert.NoError(t, client.Health(ctx))
	})

	t.Run("malformed URL", func(t *testing.T) {
		_, err := platformredis.New(ctx, config.RedisConfig{URL: "://nope"})
		assert.Error(t, err)
	})
}
