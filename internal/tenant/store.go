package tenant

import (
	"context"
	"database/sql"

	"github.com/sony/gobreaker"

	"rustok/internal/config"
	"rustok/pkg/circuitbreaker"
	"rustok/pkg/errors"
)

// Store is the source of truth behind the cache.
type Store interface {
	FetchByKey(ctx context.Context, key LookupKey) (*Snapshot, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantSelect = `SELECT id, slug, COALESCE(host, ''), name, status, created_at, updated_at FROM tenants`

func (s *PostgresStore) FetchByKey(ctx context.Context, key LookupKey) (*Snapshot, error) {
	var query string
	switch key.Kind {
	case KindUUID:
		query = tenantSelect + ` WHERE id = $1`
	case KindSlug:
		query = tenantSelect + ` WHERE slug = $1`
	case KindHost:
		query = tenantSelect + ` WHERE host = $1`
	default:
		return nil, errors.ErrValidation.WithMessage("unknown lookup kind")
	}

	var snap Snapshot
	err := s.db.QueryRowContext(ctx, query, key.Value).Scan(
		&snap.ID, &snap.Slug, &snap.Host, &snap.Name, &snap.Status,
		&snap.CreatedAt, &snap.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound.WithDetail("key", key.String())
	}
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err).WithDetail("key", key.String())
	}
	return &snap, nil
}

type fetchOutcome struct {
	snap     *Snapshot
	notFound bool
}

// BreakerStore guards the source of truth with a circuit breaker so a
// struggling database sheds load fast instead of queueing resolutions.
// A not-found row is a legitimate answer and never counts as a failure.
type BreakerStore struct {
	inner Store
	cb    *circuitbreaker.Wrapper
}

func NewBreakerStore(inner Store, cfg config.CircuitBreakerConfig) *BreakerStore {
	cbCfg := circuitbreaker.DefaultConfig("tenant-store")
	if cfg.MaxRequests > 0 {
		cbCfg.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbCfg.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbCfg.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		ratio := cfg.FailureRatio
		minRequests := cfg.MinRequests
		cbCfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		}
	}

	return &BreakerStore{inner: inner, cb: circuitbreaker.NewWrapper(cbCfg)}
}

func (s *BreakerStore) FetchByKey(ctx context.Context, key LookupKey) (*Snapshot, error) {
	result, err := s.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		snap, err := s.inner.FetchByKey(ctx, key)
		if err != nil {
			if errors.IsNotFound(err) {
				return fetchOutcome{notFound: true}, nil
			}
			return nil, err
		}
		return fetchOutcome{snap: snap}, nil
	})
	s.cb.RecordRequest(err == nil)

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, errors.ErrServiceUnavailable.
				WithMessage("tenant store circuit breaker open").
				WithCause(err)
		}
		return nil, err
	}

	outcome := result.(fetchOutcome)
	if outcome.notFound {
		return nil, errors.ErrNotFound.WithDetail("key", key.String())
	}
	return outcome.snap, nil
}
