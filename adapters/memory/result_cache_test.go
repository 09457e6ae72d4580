package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
)

func TestResultCache(t *testing.T) {
	ctx := context.Background()
	cache := NewResultCache(8, time.Minute)

	key := core.NewSignatureHash("sig")
	resp := &pivot.ComputeResponse{Data: []pivot.ResultRow{{"Region": "East"}}}

	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, key, resp))
	got, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, resp, got)

	require.NoError(t, cache.Invalidate(ctx, key))
	_, ok, _ = cache.Get(ctx, key)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
	assert.NoError(t, cache.Ping(ctx))
}

func TestResultCache_ExpiredEntriesAreDropped(t *testing.T) {
	ctx := context.Background()
	cache := NewResultCache(2000, 50*time.Millisecond)

	for i := 0; i < 1000; i++ {
		require.NoError(t, cache.Put(ctx, core.NewSignatureHash(fmt.Sprintf("sig-%d", i)), &pivot.ComputeResponse{}))
	}
	assert.Equal(t, 1000, cache.Len())

	// nothing reads the stale keys; they must still leave the cache
	require.Eventually(t, func() bool { return cache.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, ok, _ := cache.Get(ctx, core.NewSignatureHash("sig-0"))
	assert.False(t, ok)
}

func TestResultCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewResultCache(2, time.Minute)
	first := core.NewSignatureHash("first")
	second := core.NewSignatureHash("second")
	third := core.NewSignatureHash("third")

	require.NoError(t, cache.Put(ctx, first, &pivot.ComputeResponse{}))
	require.NoError(t, cache.Put(ctx, second, &pivot.ComputeResponse{}))
	_, ok, _ := cache.Get(ctx, first)
	require.True(t, ok)
	require.NoError(t, cache.Put(ctx, third, &pivot.ComputeResponse{}))

	assert.Equal(t, 2, cache.Len())
	_, ok, _ = cache.Get(ctx, second)
	assert.False(t, ok)
	_, ok, _ = cache.Get(ctx, first)
	assert.True(t, ok)
}

func TestResultCache_NoTTL(t *testing.T) {
	ctx := context.Background()
	cache := NewResultCache(4, 0)
	key := core.NewSignatureHash("sig")
	require.NoError(t, cache.Put(ctx, key, &pivot.ComputeResponse{}))
	require.NoError(t, cache.Put(ctx, core.NewSignatureHash("nil"), nil))

	_, ok, _ := cache.Get(ctx, key)
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Len())
}
