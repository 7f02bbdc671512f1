package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/review-service/internal/domain"
)

func setupStore(t *testing.T) (*Store[domain.Review], *miniredis.Miniredis, *Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m := NewMetrics(prometheus.NewRegistry())
	return New[domain.Review](client, "review", time.Minute, m), mr, m
}

func TestStore_MissThenHit(t *testing.T) {
	s, _, m := setupStore(t)
	ctx := context.Background()

	got, err := s.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	rev := &domain.Review{ID: "r-1", Content: "tasty", Rating: 5, Upvote: []string{"u1"}}
	require.NoError(t, s.Set(ctx, "r-1", rev))

	got, err = s.Get(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tasty", got.Content)
	assert.Equal(t, []string{"u1"}, got.Upvote)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("review", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("review", "hit")))
}

func TestStore_SetAppliesTTL(t *testing.T) {
	s, mr, _ := setupStore(t)
	require.NoError(t, s.Set(context.Background(), "r-1", &domain.Review{ID: "r-1"}))

	assert.True(t, mr.Exists("review:r-1"))
	assert.Equal(t, time.Minute, mr.TTL("review:r-1"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("review:r-1"))
}

func TestStore_Invalidate(t *testing.T) {
	s, mr, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "r-1", &domain.Review{ID: "r-1"}))

	require.NoError(t, s.Invalidate(ctx, "r-1"))
	assert.False(t, mr.Exists("review:r-1"))
	assert.Equal(t, DefaultFence, mr.TTL("review:r-1:fence"))

	// invalidating a missing key is not an error
	require.NoError(t, s.Invalidate(ctx, "r-2"))
}

func TestStore_StaleFillAfterInvalidateIsDropped(t *testing.T) {
	s, mr, _ := setupStore(t)
	s.WithFence(10 * time.Second)
	ctx := context.Background()

	// a reader loaded version 1, then a writer saved version 2 and invalidated
	stale := &domain.Review{ID: "r-1", Content: "before"}
	require.NoError(t, s.Invalidate(ctx, "r-1"))
	require.NoError(t, s.Set(ctx, "r-1", stale))

	got, err := s.Get(ctx, "r-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	mr.FastForward(11 * time.Second)
	fresh := &domain.Review{ID: "r-1", Content: "after"}
	require.NoError(t, s.Set(ctx, "r-1", fresh))

	got, err = s.Get(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "after", got.Content)
}

func TestStore_SetDoesNotOverwrite(t *testing.T) {
	s, _, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "r-1", &domain.Review{ID: "r-1", Content: "first"}))
	require.NoError(t, s.Set(ctx, "r-1", &domain.Review{ID: "r-1", Content: "second"}))

	got, err := s.Get(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Content)
}

func TestStore_CorruptEntry(t *testing.T) {
	s, mr, m := setupStore(t)
	require.NoError(t, mr.Set("review:r-1", "{not json"))

	_, err := s.Get(context.Background(), "r-1")
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("review", "error")))
}

func TestStore_RedisDown(t *testing.T) {
	s, mr, _ := setupStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "r-1")
	assert.Error(t, err)
}

func TestStore_NilMetrics(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := New[domain.Comment](client, "comment", time.Minute, nil)
	got, err := s.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
