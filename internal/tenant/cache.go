package tenant

import (
	"context"
)

type CacheResult int

const (
	CacheMiss CacheResult = iota
	CacheHit
	CacheNegativeHit
)

func (r CacheResult) String() string {
	switch r {
	case CacheHit:
		return "hit"
	case CacheNegativeHit:
		return "negative_hit"
	default:
		return "miss"
	}
}

// Cache is the two-layer lookup cache. One storage key per lookup key
// holds either a snapshot (positive) or the not-found sentinel
// (negative), so the two layers can never disagree for a key: writing
// one overwrites the other.
type Cache interface {
	Get(ctx context.Context, key LookupKey) (*Snapshot, CacheResult, error)
	SetSnapshot(ctx context.Context, key LookupKey, snap Snapshot) error
	SetNegative(ctx context.Context, key LookupKey) error
	Delete(ctx context.Context, keys ...LookupKey) error
	Close() error
}
