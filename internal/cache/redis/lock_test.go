package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rocketarb/rocketarb/internal/domain"
)

// Runs against a real server when ROCKETARB_TEST_REDIS_ADDR is set.
func TestLockManager(t *testing.T) {
	addr := os.Getenv("ROCKETARB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROCKETARB_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	lm := NewLockManager(c)
	key := "test-" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	require.Contains(t, err.Error(), lm.owner)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	again()
}

func TestLockKey(t *testing.T) {
	require.Equal(t, "rocketarb:lock:/data/bundle.json", LockKey("/data/bundle.json"))
}

func TestOptions(t *testing.T) {
	opts := options(ClientConfig{Addr: "cache.internal:6380", DB: 2, TLSEnabled: true})
	require.Equal(t, 2, opts.DB)
	require.Equal(t, dialTimeout, opts.DialTimeout)
	require.NotNil(t, opts.TLSConfig)
	require.Equal(t, "cache.internal", opts.TLSConfig.ServerName)

	require.Nil(t, options(ClientConfig{Addr: "localhost:6379"}).TLSConfig)
}
