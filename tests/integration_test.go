// Package tests exercises the public cache API end to end against an
// in-memory remote backend: tier walks, promotion, refresh, prefetch, and
// metrics, the way an embedding service would use the library.
package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stratacache/stratacache"
	"github.com/stratacache/stratacache/internal/remote"
)

func newIntegrationCache(t *testing.T, opts ...stratacache.Option) (*stratacache.Cache, *remote.Mock) {
	t.Helper()

	cfg := stratacache.DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.L1.MaxSize = "1MB"
	cfg.L2.MaxSize = "4MB"
	cfg.DefaultTTL = 10 * time.Minute

	mock := remote.NewMock()
	base := []stratacache.Option{
		stratacache.WithRemoteStore(mock),
		stratacache.WithLogger(zap.NewNop()),
	}
	c, err := stratacache.New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mock
}

func TestEndToEndReadPath(t *testing.T) {
	c, mock := newIntegrationCache(t)
	ctx := context.Background()

	profile := map[string]interface{}{
		"id":    float64(42),
		"name":  "ada",
		"roles": []interface{}{"admin", "ops"},
	}
	require.True(t, c.Set(ctx, "user:42", profile))
	require.True(t, mock.Has("user:42"), "first write of an unknown key lands remotely")

	// The first read comes from the remote tier.
	got, ok := c.Get(ctx, "user:42")
	require.True(t, ok)
	assert.Equal(t, profile, got)
	require.Equal(t, 1, mock.GetCalls)

	// Once the background promotion lands, reads stop touching the
	// backend.
	require.Eventually(t, func() bool {
		before := mock.GetCalls
		got, ok := c.Get(ctx, "user:42")
		return ok && assert.ObjectsAreEqual(profile, got) && mock.GetCalls == before
	}, 2*time.Second, 10*time.Millisecond, "reads must be served locally after promotion")

	snap := c.Metrics()
	assert.GreaterOrEqual(t, snap.Tiers["L3"].Hits, uint64(1))
	assert.Greater(t, snap.Tiers["L1"].Hits+snap.Tiers["L2"].Hits, uint64(0))
}

func TestTTLHonoredAcrossTiers(t *testing.T) {
	clock := struct {
		sync.Mutex
		now time.Time
	}{now: time.Now()}
	nowFunc := func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		return clock.now
	}

	// Promotion restarts an entry's clock with the default TTL, so the
	// default must match the write TTL for expiry to hold across tiers.
	cfg := stratacache.DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.L1.MaxSize = "1MB"
	cfg.L2.MaxSize = "4MB"
	cfg.DefaultTTL = time.Minute

	mock := remote.NewMock()
	mock.SetClock(nowFunc)
	c, err := stratacache.New(cfg,
		stratacache.WithRemoteStore(mock),
		stratacache.WithLogger(zap.NewNop()),
		stratacache.WithClock(nowFunc))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.True(t, c.Set(ctx, "session", "token"))
	_, ok := c.Get(ctx, "session")
	require.True(t, ok)

	clock.Lock()
	clock.now = clock.now.Add(2 * time.Minute)
	clock.Unlock()

	_, ok = c.Get(ctx, "session")
	assert.False(t, ok, "entry must expire everywhere after its TTL")
}

func TestRefreshKeepsHotEntryFresh(t *testing.T) {
	version := 0
	var mu sync.Mutex
	fetch := func(ctx context.Context, key string) (interface{}, bool, error) {
		mu.Lock()
		defer mu.Unlock()
		version++
		return map[string]interface{}{"version": float64(version)}, true, nil
	}

	clock := struct {
		sync.Mutex
		now time.Time
	}{now: time.Now()}
	nowFunc := func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		return clock.now
	}

	c, mock := newIntegrationCache(t,
		stratacache.WithClock(nowFunc),
		stratacache.WithFetchFunc(fetch))
	ctx := context.Background()

	require.True(t, c.Set(ctx, "feed", "initial"))
	_, ok := c.Get(ctx, "feed")
	require.True(t, ok)

	// Wait until the entry is promoted into the local tiers.
	require.Eventually(t, func() bool {
		before := mock.GetCalls
		_, ok := c.Get(ctx, "feed")
		return ok && mock.GetCalls == before
	}, 2*time.Second, 10*time.Millisecond)

	// Move past the near-expiry fraction; the next read serves the old
	// value and reloads in the background.
	clock.Lock()
	clock.now = clock.now.Add(9 * time.Minute)
	clock.Unlock()

	_, _ = c.Get(ctx, "feed")
	require.Eventually(t, func() bool {
		got, ok := c.Get(ctx, "feed")
		if !ok {
			return false
		}
		m, isMap := got.(map[string]interface{})
		return isMap && m["version"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond, "refreshed value must replace the aging one")
}

func TestDeleteAndClear(t *testing.T) {
	c, mock := newIntegrationCache(t)
	ctx := context.Background()

	require.True(t, c.Set(ctx, "a", "1"))
	require.True(t, c.Set(ctx, "b", "2"))

	assert.True(t, c.Delete(ctx, "a"))
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx))
	_, ok = c.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, 0, mock.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newIntegrationCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	keys := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7"}
	for _, key := range keys {
		require.True(t, c.Set(ctx, key, key+"-value"))
	}

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := keys[(w+i)%len(keys)]
				if got, ok := c.Get(ctx, key); ok {
					if got != key+"-value" {
						t.Errorf("Get(%s) = %v", key, got)
						return
					}
				}
				if i%20 == 0 {
					c.Set(ctx, key, key+"-value")
				}
			}
		}(w)
	}
	wg.Wait()

	snap := c.Metrics()
	total := snap.Tiers["L1"].Hits + snap.Tiers["L2"].Hits + snap.Tiers["L3"].Hits
	assert.Greater(t, total, uint64(0))
}

func TestLoadConfigValidates(t *testing.T) {
	cfg, err := stratacache.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "intelligent", cfg.EvictionPolicy)

	_, err = stratacache.LoadConfig("/nonexistent/cache.yaml")
	require.Error(t, err)
}
