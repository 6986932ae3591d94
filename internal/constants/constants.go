package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaDialTimeout  = 5 * time.Second

	// In-call backoff for transient write failures; must stay well
	// inside the relay's per-record timeout.
	KafkaRetryInitialInterval = 100 * time.Millisecond
	KafkaRetryMaxInterval     = 1 * time.Second
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// CacheKeyVersion prefixes every tenant cache key; bumping it rolls
	// out a new entry format without a manual flush.
	CacheKeyVersion = "v1"

	// NegativeCacheSentinel marks a cached "known not to exist" entry.
	NegativeCacheSentinel = "__not_found__"
)

const (
	// MaxEventPayloadBytes bounds a serialized domain event payload.
	MaxEventPayloadBytes = 64 * 1024

	// MaxLookupValueLength bounds tenant lookup identifiers (DNS name bound).
	MaxLookupValueLength = 253
)

const (
	DefaultInvalidationChannel = "tenant.cache.invalidate"
)

const (
	DeadLetterCollection = "outbox_dead_letter"
)
