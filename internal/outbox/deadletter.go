package outbox

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"rustok/internal/constants"
	"rustok/internal/logger"
)

// DeadLetterArchive keeps a copy of records that exhausted their retry
// ceiling, outside the active relay path, for replay tooling. The
// archive is optional: with no MongoDB configured the relay still
// parks records as failed in Postgres and only the copy is skipped.
type DeadLetterArchive struct {
	collection *mongo.Collection
	log        logger.Logger
}

func NewDeadLetterArchive(db *mongo.Database, log logger.Logger) *DeadLetterArchive {
	if db == nil {
		return &DeadLetterArchive{log: log}
	}
	return &DeadLetterArchive{
		collection: db.Collection(constants.DeadLetterCollection),
		log:        log,
	}
}

type deadLetterDocument struct {
	RecordID      int64     `bson:"record_id"`
	EventID       string    `bson:"event_id"`
	TenantID      string    `bson:"tenant_id"`
	EventType     string    `bson:"event_type"`
	CorrelationID string    `bson:"correlation_id"`
	Payload       string    `bson:"payload"`
	AttemptCount  int       `bson:"attempt_count"`
	LastError     string    `bson:"last_error"`
	CreatedAt     time.Time `bson:"created_at"`
	ArchivedAt    time.Time `bson:"archived_at"`
}

// Archive is best-effort: a failed insert is logged, never surfaced,
// so archive unavailability cannot wedge the relay loop.
func (a *DeadLetterArchive) Archive(ctx context.Context, rec Record, lastError string) {
	if a.collection == nil {
		return
	}

	doc := deadLetterDocument{
		RecordID:      rec.ID,
		EventID:       rec.EventID.String(),
		TenantID:      rec.TenantID.String(),
		EventType:     rec.EventType,
		CorrelationID: rec.CorrelationID,
		Payload:       string(rec.Payload),
		AttemptCount:  rec.AttemptCount,
		LastError:     lastError,
		CreatedAt:     rec.CreatedAt,
		ArchivedAt:    time.Now().UTC(),
	}

	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		a.log.ErrorwCtx(ctx, "failed to archive dead-lettered record",
			"record_id", rec.ID,
			"event_type", rec.EventType,
			"error", err,
		)
	}
}
