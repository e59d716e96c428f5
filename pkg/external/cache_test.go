package external

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-risk-fusion/internal/domain"
)

func cachedJSON(t *testing.T, advice *domain.Advice, expiresAt time.Time) string {
	t.Helper()
	data, err := json.Marshal(CachedAdvice{Data: advice, CachedAt: time.Now(), ExpiresAt: expiresAt})
	require.NoError(t, err)
	return string(data)
}

func TestCacheClient_GetAdvice(t *testing.T) {
	ctx := context.Background()
	advice := &domain.Advice{
		Recommendations: []string{"Walk 30 minutes a day"},
		PriorityActions: []string{},
		PreventiveTips:  []string{},
		Explanation:     "Activity improves insulin sensitivity.",
		Source:          "llm",
	}

	t.Run("hit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewCacheClientFromRedis(db, time.Hour)

		mock.ExpectGet("advice:k1").SetVal(cachedJSON(t, advice, time.Now().Add(time.Hour)))

		got, found, err := cache.GetAdvice(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, advice, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewCacheClientFromRedis(db, time.Hour)

		mock.ExpectGet("advice:missing").RedisNil()

		got, found, err := cache.GetAdvice(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt entry is removed", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewCacheClientFromRedis(db, time.Hour)

		mock.ExpectGet("advice:bad").SetVal("{not json")
		mock.ExpectDel("advice:bad").SetVal(1)

		_, found, err := cache.GetAdvice(ctx, "bad")
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired entry is removed", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewCacheClientFromRedis(db, time.Hour)

		mock.ExpectGet("advice:old").SetVal(cachedJSON(t, advice, time.Now().Add(-time.Minute)))
		mock.ExpectDel("advice:old").SetVal(1)

		_, found, err := cache.GetAdvice(ctx, "old")
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewCacheClientFromRedis(db, time.Hour)

		mock.ExpectGet("advice:err").SetErr(errors.New("connection reset"))

		_, _, err := cache.GetAdvice(ctx, "err")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestCacheClient_SetAdvice(t *testing.T) {
	ctx := context.Background()
	advice := &domain.Advice{Recommendations: []string{"Sleep seven hours"}, Source: "llm"}

	db, mock := redismock.NewClientMock()
	cache := NewCacheClientFromRedis(db, 2*time.Hour)

	mock.Regexp().ExpectSet("advice:k2", `"source":"llm"`, 2*time.Hour).SetVal("OK")

	require.NoError(t, cache.SetAdvice(ctx, "k2", advice, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheClient_InvalidateAll(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes advice keys", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewCacheClientFromRedis(db, time.Hour)

		mock.ExpectScan(0, "advice:*", 100).SetVal([]string{"advice:a", "advice:b"}, 0)
		mock.ExpectDel("advice:a").SetVal(1)
		mock.ExpectDel("advice:b").SetVal(1)

		removed, err := cache.InvalidateAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("scan error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		cache := NewCacheClientFromRedis(db, time.Hour)

		mock.ExpectScan(0, "advice:*", 100).SetErr(errors.New("connection reset"))

		removed, err := cache.InvalidateAll(ctx)
		require.Error(t, err)
		assert.Zero(t, removed)
		assert.Contains(t, err.Error(), "connection reset")
	})
}
