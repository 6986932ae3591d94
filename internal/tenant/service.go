package tenant

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/internal/outbox"
	"rustok/pkg/errors"
)

// UpdateParams is the mutable surface of a tenant.
type UpdateParams struct {
	Slug   string `json:"slug" binding:"required"`
	Host   string `json:"host"`
	Name   string `json:"name" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// Service couples tenant mutations to the event pipeline: the row
// update and the TenantUpdated outbox record commit or roll back as
// one transaction, then cache eviction follows the commit.
type Service struct {
	db          *sql.DB
	publisher   *outbox.Publisher
	resolver    *Resolver
	broadcaster *Broadcaster
	advisory    outbox.Dispatcher
	log         logger.Logger
}

type ServiceOption func(*Service)

// WithBroadcaster enables cross-instance cache invalidation.
func WithBroadcaster(b *Broadcaster) ServiceOption {
	return func(s *Service) { s.broadcaster = b }
}

// WithAdvisoryBus fans committed tenant mutations out on the local bus
// so in-process subscribers react without waiting for the relay.
func WithAdvisoryBus(d outbox.Dispatcher) ServiceOption {
	return func(s *Service) { s.advisory = d }
}

func NewService(db *sql.DB, publisher *outbox.Publisher, resolver *Resolver, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		db:        db,
		publisher: publisher,
		resolver:  resolver,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Resolve(ctx context.Context, key LookupKey) (*Snapshot, error) {
	return s.resolver.Resolve(ctx, key)
}

// Update mutates a tenant and stages the TenantUpdated event on the
// same transaction. Only after commit does it evict cache entries,
// locally and across instances, for both the old and new identifiers.
func (s *Service) Update(ctx context.Context, id uuid.UUID, actorID *uuid.UUID, params UpdateParams) (*Snapshot, error) {
	slugKey, err := Sanitize(BySlug(params.Slug))
	if err != nil {
		return nil, err
	}
	params.Slug = slugKey.Value
	if params.Host != "" {
		hostKey, err := Sanitize(ByHost(params.Host))
		if err != nil {
			return nil, err
		}
		params.Host = hostKey.Value
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	defer tx.Rollback()

	var oldSlug, oldHost string
	err = tx.QueryRowContext(ctx,
		`SELECT slug, COALESCE(host, '') FROM tenants WHERE id = $1 FOR UPDATE`, id).
		Scan(&oldSlug, &oldHost)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound.WithDetail("tenant_id", id.String())
	}
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}

	var snap Snapshot
	err = tx.QueryRowContext(ctx, `
		UPDATE tenants
		SET slug = $2, host = NULLIF($3, ''), name = $4, status = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING id, slug, COALESCE(host, ''), name, status, created_at, updated_at`,
		id, params.Slug, params.Host, params.Name, params.Status).
		Scan(&snap.ID, &snap.Slug, &snap.Host, &snap.Name, &snap.Status,
			&snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}

	evt := event.TenantUpdated{
		TenantID: id,
		Slug:     snap.Slug,
		Host:     snap.Host,
		Status:   snap.Status,
	}
	if err := s.publisher.PublishInTx(ctx, tx, id, actorID, evt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}

	s.invalidateAfterCommit(ctx, id, oldSlug, oldHost, snap)

	if s.advisory != nil {
		// Advisory only: the durable copy is already committed in the
		// outbox, so a dropped local dispatch loses nothing.
		if err := s.publisher.PublishDirect(ctx, s.advisory, id, evt); err != nil {
			s.log.WarnwCtx(ctx, "advisory dispatch failed", "tenant_id", id.String(), "error", err)
		}
	}
	return &snap, nil
}

// invalidateAfterCommit evicts the tenant under its previous and new
// identifiers. Eviction failure only shortens freshness, never
// correctness of the committed write, so it is logged and swallowed.
func (s *Service) invalidateAfterCommit(ctx context.Context, id uuid.UUID, oldSlug, oldHost string, snap Snapshot) {
	old := Snapshot{ID: id, Slug: oldSlug, Host: oldHost}

	for _, target := range []Snapshot{old, snap} {
		if err := s.resolver.Invalidate(ctx, target); err != nil {
			s.log.WarnwCtx(ctx, "local cache eviction failed", "tenant_id", id.String(), "error", err)
		}
		if s.broadcaster != nil {
			if err := s.broadcaster.Publish(ctx, target); err != nil {
				s.log.WarnwCtx(ctx, "invalidation broadcast failed", "tenant_id", id.String(), "error", err)
			}
		}
	}
}
