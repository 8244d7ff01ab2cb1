package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	rediscache "github.com/davidbz/soundgraph/internal/cache/redis"
	"github.com/davidbz/soundgraph/internal/domain"
)

// These tests need a live server: REDIS_TEST_ADDR=localhost:6379 go test ./internal/cache/redis/...
func newStore(t *testing.T) *rediscache.Store {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client, err := rediscache.NewClient(context.Background(), rediscache.Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return rediscache.NewStore(client, "soundgraph-test:"+uuid.NewString()+":")
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should map missing keys to cache misses", func(t *testing.T) {
		_, err := newStore(t).Get(ctx, "absent")
		require.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	t.Run("should set and get", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

		value, err := store.Get(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("v"), value)
	})

	t.Run("should honor SetNX and TTL", func(t *testing.T) {
		store := newStore(t)

		ok, err := store.SetNX(ctx, "k", []byte("pending"), 100*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.SetNX(ctx, "k", []byte("other"), time.Minute)
		require.NoError(t, err)
		require.False(t, ok)

		require.Eventually(t, func() bool {
			ok, err := store.SetNX(ctx, "k", []byte("retry"), time.Minute)
			return err == nil && ok
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := rediscache.NewClient(ctx, rediscache.Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
