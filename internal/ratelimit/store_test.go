package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(&RedisStoreConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestRedisStore_RequiresConfig(t *testing.T) {
	_, err := NewRedisStore(nil)
	assert.Error(t, err)
}

func TestRedisStore_SaveLoadRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	future := time.Now().Add(2 * time.Minute).Truncate(time.Millisecond)
	err := store.Save(ctx, map[Category]time.Time{
		CategoryError: future,
		CategoryAll:   future.Add(30 * time.Second),
	})
	require.NoError(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, future.UnixMilli(), loaded[CategoryError].UnixMilli())
	assert.Equal(t, future.Add(30*time.Second).UnixMilli(), loaded[CategoryAll].UnixMilli())
}

func TestRedisStore_LoadDropsExpired(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	err := store.Save(ctx, map[Category]time.Time{
		CategoryError:       time.Now().Add(-time.Minute),
		CategoryTransaction: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, loaded, CategoryError)
	assert.Contains(t, loaded, CategoryTransaction)
}

func TestRedisStore_SaveEmptyIsNoop(t *testing.T) {
	store, _ := setupTestStore(t)
	require.NoError(t, store.Save(context.Background(), nil))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLimiter_WriteThroughAndSync(t *testing.T) {
	store, _ := setupTestStore(t)

	// First process hits a throttle; its limiter writes through.
	first := New(nil)
	first.AttachStore(store)
	header := http.Header{}
	header.Set("X-Sentry-Rate-Limits", "120:transaction")
	first.UpdateFromResponse(http.StatusOK, header)

	// Second process starts clean and pulls the shared state.
	second := New(nil)
	second.AttachStore(store)
	require.NoError(t, second.SyncFromStore(context.Background()))

	assert.True(t, second.Disabled(CategoryTransaction))
	assert.False(t, second.Disabled(CategoryError))
}

func TestLimiter_SyncKeepsLaterLocalDeadline(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	near := time.Now().Add(10 * time.Second)
	require.NoError(t, store.Save(ctx, map[Category]time.Time{CategoryError: near}))

	now := time.Now()
	l := NewWithClock(nil, func() time.Time { return now })
	l.AttachStore(store)

	far := http.Header{}
	far.Set("X-Sentry-Rate-Limits", "600:error")
	l.UpdateFromResponse(http.StatusOK, far)

	require.NoError(t, l.SyncFromStore(ctx))
	assert.Equal(t, now.Add(600*time.Second), l.Deadline(CategoryError))
}

func TestLimiter_SyncWithoutStoreIsNoop(t *testing.T) {
	l := New(nil)
	assert.NoError(t, l.SyncFromStore(context.Background()))
}
