package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-risk-fusion/internal/domain"
)

func TestMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Minute)

	_, found, err := c.GetAdvice(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	advice := &domain.Advice{Recommendations: []string{"Eat more fiber"}, Source: "llm"}
	require.NoError(t, c.SetAdvice(ctx, "k", advice, 0))

	got, found, err := c.GetAdvice(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Same(t, advice, got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-12)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.SetAdvice(ctx, fmt.Sprintf("k%d", i), &domain.Advice{}, 0))
	}

	_, found, _ := c.GetAdvice(ctx, "k0")
	assert.False(t, found)
	_, found, _ = c.GetAdvice(ctx, "k2")
	assert.True(t, found)
	assert.Equal(t, 2, c.Stats().Entries)
}

func TestMemoryCache_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 20*time.Millisecond)

	require.NoError(t, c.SetAdvice(ctx, "k", &domain.Advice{}, time.Hour))
	assert.Eventually(t, func() bool {
		_, found, _ := c.GetAdvice(ctx, "k")
		return !found
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryCache_Defaults(t *testing.T) {
	c := NewMemoryCache(0, 0)
	assert.Equal(t, DefaultTTL, c.Stats().TTL)

	c.Purge()
	assert.Equal(t, Stats{TTL: DefaultTTL}, c.Stats())
}

func TestMemoryCache_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, time.Hour)

	require.NoError(t, c.SetAdvice(ctx, "a", &domain.Advice{}, 0))
	require.NoError(t, c.SetAdvice(ctx, "b", &domain.Advice{}, 0))
	_, _, _ = c.GetAdvice(ctx, "a")

	removed, err := c.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
}
