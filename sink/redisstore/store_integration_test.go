//go:build integration

package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/sink/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	store, err := redisstore.New(
		ctx, redisstore.Config{Addr: opts.Addr, KeyPrefix: "fs:", TTL: time.Hour}, logger.NewNoopLogger(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	t.Run("put is an upsert by dedup key", func(t *testing.T) {
		first := map[string]string{"customer_id": "C1", "order_amount": "1.00", "order_status": "pending"}
		second := map[string]string{"customer_id": "C1", "order_amount": "2.00"}

		require.NoError(t, store.PutRecord(ctx, "orders", "key-1", first))
		require.NoError(t, store.PutRecord(ctx, "orders", "key-1", second))

		got, err := store.Fetch(ctx, "orders", "key-1")
		require.NoError(t, err)
		require.Equal(t, second, got)
	})

	t.Run("fetch miss", func(t *testing.T) {
		_, err := store.Fetch(ctx, "orders", "missing")
		require.ErrorIs(t, err, redis.Nil)
	})
}
