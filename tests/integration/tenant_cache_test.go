package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustok/internal/config"
	"rustok/internal/logger"
	"rustok/internal/tenant"
	"rustok/pkg/errors"
)

func cacheConfig() config.TenantCacheConfig {
	return config.TenantCacheConfig{
		Backend:             config.CacheBackendRedis,
		TTLSeconds:          300,
		NegativeTTLSeconds:  60,
		FetchTimeout:        2 * time.Second,
		InvalidationChannel: "tenant.cache.invalidate",
	}
}

func insertTenant(t *testing.T, infra *TestInfra, slug, host, name string) tenant.Snapshot {
	t.Helper()
	snap := tenant.Snapshot{ID: uuid.New(), Slug: slug, Host: host, Name: name, Status: "active"}
	err := infra.PostgresDB.QueryRow(
		`INSERT INTO tenants (id, slug, host, name, status) VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 RETURNING created_at, updated_at`,
		snap.ID, snap.Slug, snap.Host, snap.Name, snap.Status,
	).Scan(&snap.CreatedAt, &snap.UpdatedAt)
	require.NoError(t, err)
	return snap
}

func newResolver(infra *TestInfra) *tenant.Resolver {
	cfg := cacheConfig()
	cache := tenant.NewRedisCache(infra.RedisClient,
		time.Duration(cfg.TTLSeconds)*time.Second,
		time.Duration(cfg.NegativeTTLSeconds)*time.Second,
	)
	store := tenant.NewPostgresStore(infra.PostgresDB)
	return tenant.NewResolver(cache, store, cfg, logger.NopLogger())
}

func TestResolverServesRepeatLookupsFromCache(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	seeded := insertTenant(t, infra, "acme", "acme.example.com", "Acme Inc")
	resolver := newResolver(infra)

	snap, err := resolver.Resolve(ctx, tenant.BySlug("acme"))
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, snap.ID)
	assert.Equal(t, "Acme Inc", snap.Name)

	// Remove the row; a cached resolution must not notice.
	_, err = infra.PostgresDB.Exec(`DELETE FROM tenants WHERE id = $1`, seeded.ID)
	require.NoError(t, err)

	snap, err = resolver.Resolve(ctx, tenant.BySlug("acme"))
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, snap.ID)
}

func TestResolverCachesMisses(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	resolver := newResolver(infra)

	_, err := resolver.Resolve(ctx, tenant.BySlug("ghost"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	// The row appearing afterwards is masked until the negative entry
	// expires or an invalidation arrives.
	insertTenant(t, infra, "ghost", "", "Ghost")

	_, err = resolver.Resolve(ctx, tenant.BySlug("ghost"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestResolverLookupKindsShareOneTenant(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	seeded := insertTenant(t, infra, "globex", "globex.example.com", "Globex")
	resolver := newResolver(infra)

	byID, err := resolver.Resolve(ctx, tenant.ByID(seeded.ID))
	require.NoError(t, err)
	bySlug, err := resolver.Resolve(ctx, tenant.BySlug("globex"))
	require.NoError(t, err)
	byHost, err := resolver.Resolve(ctx, tenant.ByHost("globex.example.com:8443"))
	require.NoError(t, err)

	assert.Equal(t, seeded.ID, byID.ID)
	assert.Equal(t, seeded.ID, bySlug.ID)
	assert.Equal(t, seeded.ID, byHost.ID, "port must be stripped before lookup")
}

func TestInvalidationEvictsAcrossInstances(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	snap := insertTenant(t, infra, "initech", "initech.example.com", "Initech")

	// Two instances, each with a private in-process cache, sharing the
	// redis broadcast channel.
	cacheA := tenant.NewMemoryCache(5*time.Minute, time.Minute)
	cacheB := tenant.NewMemoryCache(5*time.Minute, time.Minute)
	t.Cleanup(func() {
		cacheA.Close()
		cacheB.Close()
	})

	channel := cacheConfig().InvalidationChannel
	broadcasterA := tenant.NewBroadcaster(infra.RedisClient, channel, cacheA, logger.NopLogger())
	broadcasterB := tenant.NewBroadcaster(infra.RedisClient, channel, cacheB, logger.NopLogger())
	broadcasterA.Start(ctx)
	broadcasterB.Start(ctx)
	t.Cleanup(func() {
		broadcasterA.Stop()
		broadcasterB.Stop()
	})

	key := tenant.BySlug("initech")
	require.NoError(t, cacheA.SetSnapshot(ctx, key, snap))
	require.NoError(t, cacheB.SetSnapshot(ctx, key, snap))

	// Instance A mutated the tenant: evict locally, then broadcast.
	require.NoError(t, cacheA.Delete(ctx, snap.Keys()...))
	require.NoError(t, broadcasterA.Publish(ctx, snap))

	require.Eventually(t, func() bool {
		_, result, err := cacheB.Get(ctx, key)
		return err == nil && result == tenant.CacheMiss
	}, 5*time.Second, 20*time.Millisecond, "instance B must drop the entry on broadcast")
}

func TestInvalidationRestoresFreshReads(t *testing.T) {
	infra := SetupTestInfra(t)
	ctx := context.Background()

	seeded := insertTenant(t, infra, "umbrella", "", "Umbrella")
	resolver := newResolver(infra)

	snap, err := resolver.Resolve(ctx, tenant.BySlug("umbrella"))
	require.NoError(t, err)
	assert.Equal(t, "Umbrella", snap.Name)

	_, err = infra.PostgresDB.Exec(
		`UPDATE tenants SET name = 'Umbrella Corp', updated_at = NOW() WHERE id = $1`, seeded.ID)
	require.NoError(t, err)

	// Stale until invalidated.
	snap, err = resolver.Resolve(ctx, tenant.BySlug("umbrella"))
	require.NoError(t, err)
	assert.Equal(t, "Umbrella", snap.Name)

	require.NoError(t, resolver.Invalidate(ctx, *snap))

	snap, err = resolver.Resolve(ctx, tenant.BySlug("umbrella"))
	require.NoError(t, err)
	assert.Equal(t, "Umbrella Corp", snap.Name)
}
