package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := NewLRU(0)
	require.NoError(t, err)

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, "User:one", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "User:many", []byte("b"), 0))
	require.NoError(t, c.Set(ctx, "Post:many", []byte("c"), 0))
	v, err = c.Get(ctx, "User:one")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	require.NoError(t, c.DeletePrefix(ctx, "User:"))
	assert.Equal(t, 1, c.Len())
	v, _ = c.Get(ctx, "Post:many")
	assert.Equal(t, []byte("c"), v)

	require.NoError(t, c.Delete(ctx, "Post:many"))
	assert.Zero(t, c.Len())

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
}

func TestLRUExpiration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := NewLRU(8)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("2"), 0))
	now = now.Add(2 * time.Minute)

	v, err := c.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, c.Len(), "expired entry is removed on access")
	v, _ = c.Get(ctx, "forever")
	assert.Equal(t, []byte("2"), v)
}

func TestLRUEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := NewLRU(2)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "a", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("b"), 0))
	_, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "c", []byte("c"), 0))

	v, _ := c.Get(ctx, "b")
	assert.Nil(t, v, "least recently used entry is evicted")
	v, _ = c.Get(ctx, "a")
	assert.Equal(t, []byte("a"), v)
}
