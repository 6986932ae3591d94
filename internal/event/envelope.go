package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rustok/internal/constants"
)

// Envelope carries a validated, serialized domain event through the
// outbox and onto a transport. Treat it as immutable once built;
// Sequence is assigned by outbox storage when the record is staged.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	ActorID       *uuid.UUID      `json:"actor_id,omitempty"`
	EventType     string          `json:"event_type"`
	Sequence      int64           `json:"sequence"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Payload       json.RawMessage `json:"payload"`
}

type EnvelopeOption func(*Envelope)

func WithCorrelationID(correlationID string) EnvelopeOption {
	return func(e *Envelope) {
		e.CorrelationID = correlationID
	}
}

func WithActor(actorID uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		e.ActorID = &actorID
	}
}

// NewEnvelope validates and serializes the event exactly once. A nil
// tenant id or a failing Validate() aborts with no partial effects.
func NewEnvelope(tenantID uuid.UUID, evt DomainEvent, opts ...EnvelopeOption) (Envelope, error) {
	if tenantID == uuid.Nil {
		return Envelope{}, missingField("tenant_id")
	}

	if err := evt.Validate(); err != nil {
		return Envelope{}, err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to serialize event payload: %w", err)
	}

	if len(payload) > constants.MaxEventPayloadBytes {
		return Envelope{}, &ValidationError{
			Code:    CodePayloadTooLarge,
			Message: fmt.Sprintf("payload is %d bytes, ceiling is %d", len(payload), constants.MaxEventPayloadBytes),
		}
	}

	env := Envelope{
		EventID:   uuid.New(),
		TenantID:  tenantID,
		EventType: evt.EventType(),
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}

	for _, opt := range opts {
		opt(&env)
	}

	if env.CorrelationID == "" {
		env.CorrelationID = uuid.NewString()
	}

	return env, nil
}

// PartitionKey routes envelopes of one tenant and event type to the same
// transport partition, preserving per-tenant ordering.
func (e Envelope) PartitionKey() string {
	return e.TenantID.String() + ":" + e.EventType
}
