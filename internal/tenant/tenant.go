// Package tenant resolves site tenants from uuid, slug or host lookups
// through a two-layer positive/negative cache with singleflight
// coalescing and cross-instance invalidation.
package tenant

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"rustok/internal/constants"
)

// Snapshot is the immutable projection of a tenant row that callers
// receive. Mutating a snapshot never writes through to storage.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Host      string    `json:"host"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Kind string

const (
	KindUUID Kind = "uuid"
	KindSlug Kind = "slug"
	KindHost Kind = "host"
)

type LookupKey struct {
	Kind  Kind
	Value string
}

func ByID(id uuid.UUID) LookupKey {
	return LookupKey{Kind: KindUUID, Value: id.String()}
}

func BySlug(slug string) LookupKey {
	return LookupKey{Kind: KindSlug, Value: slug}
}

func ByHost(host string) LookupKey {
	return LookupKey{Kind: KindHost, Value: host}
}

// String renders the versioned cache key, e.g. "v1:slug:acme".
func (k LookupKey) String() string {
	return fmt.Sprintf("%s:%s:%s", constants.CacheKeyVersion, k.Kind, k.Value)
}

// Keys enumerates every cache key under which this snapshot may live.
// Invalidation must evict all of them.
func (s Snapshot) Keys() []LookupKey {
	keys := []LookupKey{ByID(s.ID)}
	if s.Slug != "" {
		keys = append(keys, BySlug(s.Slug))
	}
	if s.Host != "" {
		keys = append(keys, ByHost(s.Host))
	}
	return keys
}
