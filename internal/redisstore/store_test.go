package redisstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/news-mcp/internal/redisstore"
)

func setupStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewWithClient(client), mr
}

func TestIncrSetsExpiryOnFirstIncrementOnly(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	count, err := store.Incr(ctx, "ratelimit:1.2.3.4:100", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, time.Minute, mr.TTL("ratelimit:1.2.3.4:100"))

	mr.FastForward(30 * time.Second)

	count, err = store.Incr(ctx, "ratelimit:1.2.3.4:100", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.Equal(t, 30*time.Second, mr.TTL("ratelimit:1.2.3.4:100"))

	mr.FastForward(31 * time.Second)
	require.False(t, mr.Exists("ratelimit:1.2.3.4:100"))

	count, err = store.Incr(ctx, "ratelimit:1.2.3.4:100", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestIncrIsAtomicUnderConcurrency(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Incr(ctx, "k", time.Minute); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	count, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(51), count)
}

func TestIncrSurfacesConnectionErrors(t *testing.T) {
	store, mr := setupStore(t)
	mr.Close()

	_, err := store.Incr(context.Background(), "k", time.Minute)
	require.Error(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	data, err := store.LoadSession(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, data)

	require.NoError(t, store.SaveSession(ctx, "abc", map[string]any{"requests": 3}, time.Hour))
	require.Equal(t, time.Hour, mr.TTL("session:abc"))

	data, err = store.LoadSession(ctx, "abc")
	require.NoError(t, err)
	require.EqualValues(t, 3, data["requests"])

	mr.FastForward(2 * time.Hour)
	data, err = store.LoadSession(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestLoadSessionRejectsCorruptData(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set("session:bad", "{not json"))

	_, err := store.LoadSession(context.Background(), "bad")
	require.Error(t, err)
}
