package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("page"), time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("page"), got)

	require.NoError(t, c.Clear(ctx))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "clear drops everything")
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("page"), 20*time.Second))

	now = now.Add(19 * time.Second)
	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "entry expires at its ttl")
}

func TestCacheCopiesValue(t *testing.T) {
	ctx := context.Background()
	c, err := New(8)
	require.NoError(t, err)

	buf := []byte("page")
	require.NoError(t, c.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'X'

	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "page", string(got))
}

func TestCacheEvicts(t *testing.T) {
	ctx := context.Background()
	c, err := New(2)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}
