package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container tests are skipped in -short mode")
	}

	ctx := context.Background()
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start the redis container")
	t.Cleanup(func() { _ = redisC.Terminate(context.Background()) })

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return host + ":" + port.Port()
}

func TestRedisCache(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	c, err := New(ctx, Options{Addr: addr, Prefix: "test"})
	require.NoError(t, err)
	defer c.Close()

	_, ok, err := c.Get(ctx, "index_page:anonymous:page=1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "index_page:anonymous:page=1", []byte("<html>"), time.Minute))
	got, ok, err := c.Get(ctx, "index_page:anonymous:page=1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("<html>"), got)

	// A key outside the prefix must survive Clear.
	raw := goredis.NewClient(&goredis.Options{Addr: addr})
	defer raw.Close()
	require.NoError(t, raw.Set(ctx, "foreign", "keep", 0).Err())

	require.NoError(t, c.Clear(ctx))

	_, ok, err = c.Get(ctx, "index_page:anonymous:page=1")
	require.NoError(t, err)
	assert.False(t, ok)

	val, err := raw.Get(ctx, "foreign").Result()
	require.NoError(t, err)
	assert.Equal(t, "keep", val)
}

func TestRedisCacheExpiry(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	c, err := New(ctx, Options{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Second))
	require.Eventually(t, func() bool {
		_, ok, err := c.Get(ctx, "short")
		return err == nil && !ok
	}, 5*time.Second, 100*time.Millisecond)
}

func TestNewUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := New(ctx, Options{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
