package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheSetThenGet(t *testing.T) {
	t.Parallel()

	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp-1", []byte(`{"events":[]}`), 30*time.Second))

	val, ok, err := c.Get(ctx, "fp-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"events":[]}`), val)
}

func TestCacheMissForUnknownKey(t *testing.T) {
	t.Parallel()

	c := New()
	_, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := NewWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp-2", []byte("page"), 30*time.Second))

	now = now.Add(29 * time.Second)
	_, ok, err := c.Get(ctx, "fp-2")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = c.Get(ctx, "fp-2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCacheSetOverwritesWithinTTL(t *testing.T) {
	t.Parallel()

	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp-3", []byte("old"), time.Minute))
	require.NoError(t, c.Set(ctx, "fp-3", []byte("new"), time.Minute))

	val, ok, err := c.Get(ctx, "fp-3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), val)
}
