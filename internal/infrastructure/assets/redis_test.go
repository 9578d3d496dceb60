//go:build integration

package assets

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
	"github.com/kbcanvas/kbcanvas/test/testutils"
)

func TestRedisStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	redis := testutils.SetupTestRedis(t)
	store := NewRedisStore(redis.Client, "kbcanvas:test:asset:", time.Minute, zap.NewNop())

	asset, err := store.Put(ctx, []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)

	got, err := store.Get(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, got.Data)
	assert.Equal(t, "image/jpeg", got.ContentType)
	assert.WithinDuration(t, asset.CreatedAt, got.CreatedAt, time.Millisecond)

	ttl, err := redis.Client.TTL(ctx, "kbcanvas:test:asset:"+asset.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Release(ctx, asset.ID))
	_, err = store.Get(ctx, asset.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err = store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRedisStore_UnknownAndExpired(t *testing.T) {
	ctx := context.Background()
	redis := testutils.SetupTestRedis(t)
	store := NewRedisStore(redis.Client, "kbcanvas:test:asset:", time.Second, zap.NewNop())

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Release(ctx, "missing"))

	asset, err := store.Put(ctx, []byte("png"), "image/png")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := store.Get(ctx, asset.ID)
		return errors.Is(err, ErrNotFound)
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewRedisClient(t *testing.T) {
	redis := testutils.SetupTestRedis(t)
	host, portStr, err := net.SplitHostPort(redis.Addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := &config.Config{Redis: config.RedisConfig{
		Host:        host,
		Port:        port,
		DialTimeout: 5 * time.Second,
	}}

	client, err := NewRedisClient(cfg, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	cfg.Redis.Port = 1
	cfg.Redis.DialTimeout = 500 * time.Millisecond
	_, err = NewRedisClient(cfg, zap.NewNop())
	assert.Error(t, err)
}
