package tenant

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	snapshot  *Snapshot
	negative  bool
	expiresAt time.Time
}

// MemoryCache is the in-process fallback backend, used when no shared
// cache is configured. Behavior matches RedisCache: fixed TTLs, one
// entry per key holding either layer.
type MemoryCache struct {
	ttl         time.Duration
	negativeTTL time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry
	stop    chan struct{}
	once    sync.Once
}

func NewMemoryCache(ttl, negativeTTL time.Duration) *MemoryCache {
	c := &MemoryCache{
		ttl:         ttl,
		negativeTTL: negativeTTL,
		entries:     make(map[string]memoryEntry),
		stop:        make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *MemoryCache) Get(ctx context.Context, key LookupKey) (*Snapshot, CacheResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[key.String()]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, CacheMiss, nil
	}
	if entry.negative {
		return nil, CacheNegativeHit, nil
	}

	snap := *entry.snapshot
	return &snap, CacheHit, nil
}

func (c *MemoryCache) SetSnapshot(ctx context.Context, key LookupKey, snap Snapshot) error {
	c.mu.Lock()
	c.entries[key.String()] = memoryEntry{
		snapshot:  &snap,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) SetNegative(ctx context.Context, key LookupKey) error {
	c.mu.Lock()
	c.entries[key.String()] = memoryEntry{
		negative:  true,
		expiresAt: time.Now().Add(c.negativeTTL),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...LookupKey) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k.String())
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
