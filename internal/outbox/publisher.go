package outbox

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"rustok/internal/bus"
	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/pkg/errors"
	"rustok/pkg/logging"
	"rustok/pkg/metrics"
)

// Execer is the slice of *sql.Tx the publisher needs. Accepting the
// interface keeps the caller in charge of the transaction boundary.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertRecordSQL = `
	INSERT INTO outbox_records
		(event_id, tenant_id, actor_id, event_type, correlation_id, payload, status, next_attempt_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, 'pending', NOW(), NOW())`

type Publisher struct {
	log logger.Logger
}

func NewPublisher(log logger.Logger) *Publisher {
	return &Publisher{log: log}
}

// PublishInTx validates the event, serializes the envelope and inserts
// an outbox record on the caller's transaction handle. No independent
// transaction is opened: the record becomes visible only if the caller
// commits, and a rollback leaves no trace.
func (p *Publisher) PublishInTx(ctx context.Context, tx Execer, tenantID uuid.UUID, actorID *uuid.UUID, evt event.DomainEvent) error {
	opts := make([]event.EnvelopeOption, 0, 2)
	if actorID != nil {
		opts = append(opts, event.WithActor(*actorID))
	}
	if correlationID := logging.GetCorrelationID(ctx); correlationID != "" {
		opts = append(opts, event.WithCorrelationID(correlationID))
	}

	env, err := event.NewEnvelope(tenantID, evt, opts...)
	if err != nil {
		return errors.ErrValidation.WithCause(err).WithDetail("event_type", evt.EventType())
	}

	_, err = tx.ExecContext(ctx, insertRecordSQL,
		env.EventID, env.TenantID, env.ActorID, env.EventType, env.CorrelationID, []byte(env.Payload))
	if err != nil {
		return errors.ErrOutboxStorage.WithCause(err).WithDetail("event_type", env.EventType)
	}

	metrics.OutboxRecordsTotal.WithLabelValues("staged").Inc()
	p.log.DebugwCtx(ctx, "event staged in outbox",
		"event_type", env.EventType,
		"event_id", env.EventID.String(),
	)
	return nil
}

// Dispatcher is the in-process bus surface the advisory path needs.
type Dispatcher interface {
	Publish(ctx context.Context, env event.Envelope, opts ...bus.PublishOption) error
}

// PublishDirect is the advisory, non-durable path: the envelope goes
// straight to the in-process dispatcher with no storage. Never use it
// where losing the event on a crash matters.
func (p *Publisher) PublishDirect(ctx context.Context, dispatcher Dispatcher, tenantID uuid.UUID, evt event.DomainEvent) error {
	env, err := event.NewEnvelope(tenantID, evt)
	if err != nil {
		return errors.ErrValidation.WithCause(err)
	}
	return dispatcher.Publish(ctx, env)
}
