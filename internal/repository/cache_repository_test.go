package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/lessonbook-api/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client), mr
}

func TestCacheRepositorySetGet(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "lessons:list:a", map[string]int{"total": 3}, time.Minute))
	assert.True(t, mr.Exists("lessonbook:lessons:list:a"))

	var got map[string]int
	require.NoError(t, repo.Get(ctx, "lessons:list:a", &got))
	assert.Equal(t, 3, got["total"])

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "lessons:list:a", &got), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "lessons:list:a", 1, time.Minute))
	require.NoError(t, repo.Set(ctx, "lessons:list:b", 2, time.Minute))
	require.NoError(t, repo.Set(ctx, "other:c", 3, time.Minute))

	require.NoError(t, repo.DeleteByPattern(ctx, "lessons:*"))
	assert.False(t, mr.Exists("lessonbook:lessons:list:a"))
	assert.False(t, mr.Exists("lessonbook:lessons:list:b"))
	assert.True(t, mr.Exists("lessonbook:other:c"))
}

func TestCacheRepositoryNilClient(t *testing.T) {
	repo := NewCacheRepository(nil)
	ctx := context.Background()

	var dest int
	assert.ErrorIs(t, repo.Get(ctx, "k", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "k", 1, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "*"))
	assert.NoError(t, repo.Ping(ctx))
}
