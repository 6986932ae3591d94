package tenant

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustok/internal/config"
	"rustok/internal/logger"
	apperrors "rustok/pkg/errors"
)

type fakeStore struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
	fetches   atomic.Int64
	delay     time.Duration
}

func newFakeStore(snaps ...Snapshot) *fakeStore {
	s := &fakeStore{snapshots: make(map[string]*Snapshot)}
	for i := range snaps {
		for _, key := range snaps[i].Keys() {
			s.snapshots[key.String()] = &snaps[i]
		}
	}
	return s
}

func (s *fakeStore) FetchByKey(ctx context.Context, key LookupKey) (*Snapshot, error) {
	s.fetches.Add(1)

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snapshots[key.String()]; ok {
		copied := *snap
		return &copied, nil
	}
	return nil, apperrors.ErrNotFound.WithDetail("key", key.String())
}

func testSnapshot() Snapshot {
	return Snapshot{
		ID:     uuid.New(),
		Slug:   "acme",
		Host:   "acme.example.com",
		Name:   "Acme Corp",
		Status: "active",
	}
}

func cacheConfig() config.TenantCacheConfig {
	return config.TenantCacheConfig{
		Backend:            config.CacheBackendInMemory,
		TTLSeconds:         300,
		NegativeTTLSeconds: 60,
		FetchTimeout:       time.Second,
	}
}

func newTestResolver(t *testing.T, store Store, cfg config.TenantCacheConfig) (*Resolver, *MemoryCache) {
	t.Helper()
	cache := NewMemoryCache(
		time.Duration(cfg.TTLSeconds)*time.Second,
		time.Duration(cfg.NegativeTTLSeconds)*time.Second,
	)
	t.Cleanup(func() { cache.Close() })
	return NewResolver(cache, store, cfg, logger.NopLogger()), cache
}

func TestResolveCachesPositive(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore(snap)
	r, _ := newTestResolver(t, store, cacheConfig())

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), BySlug("acme"))
		require.NoError(t, err)
		assert.Equal(t, snap.ID, got.ID)
	}

	assert.Equal(t, int64(1), store.fetches.Load(), "repeat resolutions must come from cache")
}

func TestResolveNegativeCaching(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestResolver(t, store, cacheConfig())

	_, err := r.Resolve(context.Background(), BySlug("ghost"))
	require.True(t, apperrors.IsNotFound(err))

	_, err = r.Resolve(context.Background(), BySlug("ghost"))
	require.True(t, apperrors.IsNotFound(err))

	assert.Equal(t, int64(1), store.fetches.Load(), "second miss must be served by the negative cache")
}

func TestResolveCoalescesConcurrentFetches(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore(snap)
	store.delay = 50 * time.Millisecond
	r, _ := newTestResolver(t, store, cacheConfig())

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*Snapshot, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), BySlug("acme"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, snap.ID, results[i].ID)
	}
	assert.Equal(t, int64(1), store.fetches.Load(), "all callers must share one fetch")
}

func TestResolveTimeoutDoesNotPoisonCache(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore(snap)
	store.delay = 200 * time.Millisecond

	cfg := cacheConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	r, _ := newTestResolver(t, store, cfg)

	_, err := r.Resolve(context.Background(), BySlug("acme"))
	require.True(t, apperrors.IsTimeout(err))

	// A recovered store serves the next resolution; the timeout left
	// nothing cached.
	store.delay = 0
	got, err := r.Resolve(context.Background(), BySlug("acme"))
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, int64(2), store.fetches.Load())
}

func TestResolveRejectsUnsanitaryInput(t *testing.T) {
	store := newFakeStore()
	r, _ := newTestResolver(t, store, cacheConfig())

	_, err := r.Resolve(context.Background(), BySlug("admin"))
	require.True(t, apperrors.IsValidation(err))
	assert.Zero(t, store.fetches.Load(), "rejected input must never reach the store")
}

func TestInvalidateEvictsAllKeys(t *testing.T) {
	snap := testSnapshot()
	store := newFakeStore(snap)
	r, _ := newTestResolver(t, store, cacheConfig())

	ctx := context.Background()
	_, err := r.Resolve(ctx, BySlug("acme"))
	require.NoError(t, err)
	_, err = r.Resolve(ctx, ByHost("acme.example.com"))
	require.NoError(t, err)
	require.Equal(t, int64(2), store.fetches.Load())

	require.NoError(t, r.Invalidate(ctx, snap))

	_, err = r.Resolve(ctx, BySlug("acme"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), store.fetches.Load(), "invalidation must force a fresh fetch")
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(20*time.Millisecond, 20*time.Millisecond)
	defer cache.Close()

	ctx := context.Background()
	snap := testSnapshot()
	key := BySlug("acme")

	require.NoError(t, cache.SetSnapshot(ctx, key, snap))
	_, result, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, result)

	time.Sleep(40 * time.Millisecond)
	_, result, err = cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, result)
}

func TestMemoryCacheLayersAreExclusive(t *testing.T) {
	cache := NewMemoryCache(time.Minute, time.Minute)
	defer cache.Close()

	ctx := context.Background()
	key := BySlug("acme")

	require.NoError(t, cache.SetNegative(ctx, key))
	require.NoError(t, cache.SetSnapshot(ctx, key, testSnapshot()))

	_, result, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, result, "a positive write must replace the negative entry")
}
