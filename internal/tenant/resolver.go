package tenant

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"rustok/internal/config"
	"rustok/internal/logger"
	"rustok/pkg/errors"
	"rustok/pkg/metrics"
)

// Resolver is the single entry point for tenant resolution. Lookup
// order: positive cache, negative cache, then one coalesced fetch from
// the source of truth shared by every concurrent caller of the same
// key.
type Resolver struct {
	cache        Cache
	store        Store
	group        singleflight.Group
	fetchTimeout time.Duration
	log          logger.Logger
}

func NewResolver(cache Cache, store Store, cfg config.TenantCacheConfig, log logger.Logger) *Resolver {
	return &Resolver{
		cache:        cache,
		store:        store,
		fetchTimeout: cfg.FetchTimeout,
		log:          log,
	}
}

func (r *Resolver) Resolve(ctx context.Context, key LookupKey) (*Snapshot, error) {
	key, err := Sanitize(key)
	if err != nil {
		return nil, err
	}
	kind := string(key.Kind)

	snap, result, err := r.cache.Get(ctx, key)
	if err != nil {
		// Cache trouble degrades to a source-of-truth fetch.
		r.log.WarnwCtx(ctx, "tenant cache read failed", "key", key.String(), "error", err)
	} else {
		switch result {
		case CacheHit:
			metrics.IncCacheLookup(kind, "hit")
			return snap, nil
		case CacheNegativeHit:
			metrics.IncCacheLookup(kind, "negative_hit")
			return nil, errors.ErrNotFound.
				WithMessage("tenant not found").
				WithDetail("key", key.String())
		}
	}
	metrics.IncCacheLookup(kind, "miss")

	v, err, shared := r.group.Do(key.String(), func() (interface{}, error) {
		return r.fetch(key)
	})
	if shared {
		metrics.TenantCacheSharedFlightsTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// fetch runs detached from any single caller's context: one caller
// cancelling must not fail every waiter sharing the flight. The fetch
// timeout bounds it instead; on expiry all waiters get Timeout and the
// next resolution starts a fresh flight.
func (r *Resolver) fetch(key LookupKey) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.fetchTimeout)
	defer cancel()

	start := time.Now()
	snap, err := r.store.FetchByKey(ctx, key)
	metrics.ObserveCacheFetchDuration(string(key.Kind), time.Since(start))

	if err != nil {
		if errors.IsNotFound(err) {
			if cacheErr := r.cache.SetNegative(ctx, key); cacheErr != nil {
				r.log.Warnw("failed to write negative cache entry", "key", key.String(), "error", cacheErr)
			}
			return nil, err
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.ErrTimeout.
				WithMessage("tenant fetch timed out").
				WithDetail("key", key.String())
		}
		// Transient store failures are surfaced, never cached.
		return nil, err
	}

	if cacheErr := r.cache.SetSnapshot(ctx, key, *snap); cacheErr != nil {
		r.log.Warnw("failed to write tenant cache entry", "key", key.String(), "error", cacheErr)
	}
	return snap, nil
}

// Invalidate evicts every key the snapshot is reachable under from the
// local backend. Cross-instance eviction is the broadcaster's job.
func (r *Resolver) Invalidate(ctx context.Context, snap Snapshot) error {
	if err := r.cache.Delete(ctx, snap.Keys()...); err != nil {
		return err
	}
	metrics.TenantCacheInvalidationsTotal.WithLabelValues("local").Inc()
	return nil
}
