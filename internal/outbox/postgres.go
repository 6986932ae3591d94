package outbox

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"rustok/pkg/errors"
)

// PostgresRepository owns the outbox_records table. Expected schema:
//
//	CREATE TABLE outbox_records (
//	    id              BIGSERIAL PRIMARY KEY,
//	    event_id        UUID NOT NULL UNIQUE,
//	    tenant_id       UUID NOT NULL,
//	    actor_id        UUID,
//	    event_type      TEXT NOT NULL,
//	    correlation_id  TEXT NOT NULL,
//	    payload         JSONB NOT NULL,
//	    status          TEXT NOT NULL DEFAULT 'pending',
//	    attempt_count   INT  NOT NULL DEFAULT 0,
//	    last_error      TEXT,
//	    next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    claimed_at      TIMESTAMPTZ,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    dispatched_at   TIMESTAMPTZ
//	);
//	CREATE INDEX outbox_records_pending_idx
//	    ON outbox_records (status, next_attempt_at, created_at);
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const claimPendingSQL = `
	UPDATE outbox_records
	SET claimed_at = NOW()
	WHERE id IN (
		SELECT id FROM outbox_records
		WHERE status = 'pending'
		  AND next_attempt_at <= NOW()
		  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id, event_id, tenant_id, actor_id, event_type, correlation_id, payload,
	          status, attempt_count, COALESCE(last_error, ''), next_attempt_at,
	          claimed_at, created_at, dispatched_at`

// ClaimPending atomically claims up to batchSize due records. SKIP
// LOCKED keeps concurrent relay instances from blocking each other,
// and the claimed_at lease lets a record claimed by a crashed worker
// be re-claimed after leaseTTL. Double-dispatch during a lease overlap
// is tolerated; consumers are expected to be idempotent on event_id.
func (r *PostgresRepository) ClaimPending(ctx context.Context, batchSize int, leaseTTL time.Duration) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, claimPendingSQL, batchSize, leaseTTL.Seconds())
	if err != nil {
		return nil, errors.ErrOutboxStorage.WithCause(err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var actorID uuid.NullUUID
		if err := rows.Scan(
			&rec.ID, &rec.EventID, &rec.TenantID, &actorID, &rec.EventType,
			&rec.CorrelationID, &rec.Payload, &rec.Status, &rec.AttemptCount,
			&rec.LastError, &rec.NextAttemptAt, &rec.ClaimedAt, &rec.CreatedAt,
			&rec.DispatchedAt,
		); err != nil {
			return nil, errors.ErrOutboxStorage.WithCause(err)
		}
		if actorID.Valid {
			rec.ActorID = &actorID.UUID
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ErrOutboxStorage.WithCause(err)
	}

	// RETURNING does not preserve the subquery's ordering.
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func (r *PostgresRepository) MarkDispatched(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_records
		SET status = 'dispatched', dispatched_at = NOW(), claimed_at = NULL
		WHERE id = $1`, id)
	if err != nil {
		return errors.ErrOutboxStorage.WithCause(err)
	}
	return nil
}

// MarkFailed records a failed attempt and schedules the retry. The
// record stays pending until the relay's ceiling moves it to failed.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, attemptCount int, lastError string, retryAfter time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_records
		SET attempt_count = $2, last_error = $3,
		    next_attempt_at = NOW() + make_interval(secs => $4),
		    claimed_at = NULL
		WHERE id = $1`, id, attemptCount, lastError, retryAfter.Seconds())
	if err != nil {
		return errors.ErrOutboxStorage.WithCause(err)
	}
	return nil
}

// MarkDead parks a record that exhausted its retries. It leaves the
// active relay path for good; the dead-letter archive keeps the copy
// used for replay tooling.
func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, attemptCount int, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_records
		SET status = 'failed', attempt_count = $2, last_error = $3, claimed_at = NULL
		WHERE id = $1`, id, attemptCount, lastError)
	if err != nil {
		return errors.ErrOutboxStorage.WithCause(err)
	}
	return nil
}

// Release returns claimed records to the pool untouched. The relay uses
// it for records it skipped to preserve per-tenant ordering after an
// earlier record of the same tenant failed.
func (r *PostgresRepository) Release(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_records SET claimed_at = NULL WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return errors.ErrOutboxStorage.WithCause(err)
	}
	return nil
}

func (r *PostgresRepository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outbox_records GROUP BY status`)
	if err != nil {
		return nil, errors.ErrOutboxStorage.WithCause(err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var status Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.ErrOutboxStorage.WithCause(err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
