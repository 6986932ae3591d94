// Package outbox implements durable event staging tied to the caller's
// database transaction, and the storage operations the relay worker
// drains records with.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"rustok/internal/event"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

// Record is one staged event row. ID doubles as the per-outbox sequence
// number; created_at ordering within a tenant is the relay's FIFO
// guarantee.
type Record struct {
	ID            int64
	EventID       uuid.UUID
	TenantID      uuid.UUID
	ActorID       *uuid.UUID
	EventType     string
	CorrelationID string
	Payload       json.RawMessage
	Status        Status
	AttemptCount  int
	LastError     string
	NextAttemptAt time.Time
	ClaimedAt     *time.Time
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// Envelope rebuilds the wire envelope from the stored row, assigning
// the storage sequence.
func (r Record) Envelope() event.Envelope {
	return event.Envelope{
		EventID:       r.EventID,
		TenantID:      r.TenantID,
		ActorID:       r.ActorID,
		EventType:     r.EventType,
		Sequence:      r.ID,
		CorrelationID: r.CorrelationID,
		CreatedAt:     r.CreatedAt,
		Payload:       r.Payload,
	}
}
