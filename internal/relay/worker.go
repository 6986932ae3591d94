// Package relay drains staged outbox records to the configured
// transport in the background: Idle, Polling, Dispatching, back to
// Idle, looping at the poll interval. One logical consumer owns a
// partition; a brief overlap during failover is tolerated through the
// claim lease and idempotent consumers.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rustok/internal/config"
	"rustok/internal/logger"
	"rustok/internal/outbox"
	"rustok/internal/transport"
	"rustok/pkg/logging"
	"rustok/pkg/metrics"
	"rustok/pkg/retry"
)

// Repository is the outbox storage surface the worker drains.
type Repository interface {
	ClaimPending(ctx context.Context, batchSize int, leaseTTL time.Duration) ([]outbox.Record, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attemptCount int, lastError string, retryAfter time.Duration) error
	MarkDead(ctx context.Context, id int64, attemptCount int, lastError string) error
	Release(ctx context.Context, ids []int64) error
	CountByStatus(ctx context.Context) (map[outbox.Status]int64, error)
}

// Archiver receives dead-lettered records. Best-effort only.
type Archiver interface {
	Archive(ctx context.Context, rec outbox.Record, lastError string)
}

type Worker struct {
	cfg       config.RelayConfig
	repo      Repository
	transport transport.Transport
	archive   Archiver
	log       logger.Logger

	stop chan struct{}
	done chan struct{}
}

func NewWorker(cfg config.RelayConfig, repo Repository, tr transport.Transport, archive Archiver, log logger.Logger) *Worker {
	return &Worker{
		cfg:       cfg,
		repo:      repo,
		transport: tr,
		archive:   archive,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	interval := time.Duration(w.cfg.PollIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.Infow("relay worker started",
		"poll_interval", interval.String(),
		"batch_size", w.cfg.BatchSize,
		"max_attempts", w.cfg.MaxAttempts,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Errorw("relay batch failed", "error", err)
			}
		}
	}
}

// Stop blocks until the loop exits. An in-flight batch finishes first.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// RunOnce claims and dispatches one batch. Exported for one-shot
// tooling and tests; the ticker loop calls it on every tick.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	batchCtx, cancel := context.WithTimeout(ctx, w.cfg.BatchTimeout)
	defer cancel()

	start := time.Now()
	records, err := w.repo.ClaimPending(batchCtx, w.cfg.BatchSize, w.cfg.LeaseTTL)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	dispatched := 0
	failedTenants := make(map[uuid.UUID]bool)
	var skipped []int64

	for _, rec := range records {
		if batchCtx.Err() != nil || failedTenants[rec.TenantID] {
			// Preserve per-tenant FIFO: once a record fails, later
			// records of that tenant wait for the retry.
			skipped = append(skipped, rec.ID)
			continue
		}

		if err := w.dispatch(batchCtx, rec); err != nil {
			failedTenants[rec.TenantID] = true
			continue
		}
		dispatched++
	}

	if len(skipped) > 0 {
		if err := w.repo.Release(ctx, skipped); err != nil {
			w.log.Errorw("failed to release skipped records", "error", err)
		}
	}

	metrics.ObserveRelayBatch(len(records), time.Since(start))
	w.updatePendingGauge(ctx)
	return dispatched, nil
}

func (w *Worker) dispatch(ctx context.Context, rec outbox.Record) error {
	ctx = logging.WithTenantID(ctx, rec.TenantID.String())
	ctx = logging.WithEventID(ctx, rec.EventID.String())
	ctx = logging.WithCorrelationID(ctx, rec.CorrelationID)

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.RecordTimeout)
	err := w.transport.Send(sendCtx, rec.Envelope())
	cancel()

	if err == nil {
		if err := w.repo.MarkDispatched(ctx, rec.ID); err != nil {
			return err
		}
		metrics.OutboxRecordsTotal.WithLabelValues("dispatched").Inc()
		return nil
	}

	attempt := rec.AttemptCount + 1
	if attempt >= w.cfg.MaxAttempts {
		if markErr := w.repo.MarkDead(ctx, rec.ID, attempt, err.Error()); markErr != nil {
			return markErr
		}
		if w.archive != nil {
			w.archive.Archive(ctx, rec, err.Error())
		}
		metrics.OutboxRecordsTotal.WithLabelValues("dead_lettered").Inc()
		w.log.ErrorwCtx(ctx, "outbox record dead-lettered after exhausting retries",
			"record_id", rec.ID,
			"event_type", rec.EventType,
			"attempts", attempt,
			"error", err,
		)
		// The record left the active path; later records of this
		// tenant are free to go.
		return nil
	}

	delay := retry.BackoffDelay(attempt, w.cfg.InitialInterval, w.cfg.Multiplier, w.cfg.MaxInterval)
	if markErr := w.repo.MarkFailed(ctx, rec.ID, attempt, err.Error(), delay); markErr != nil {
		return markErr
	}
	metrics.OutboxRecordsTotal.WithLabelValues("failed").Inc()
	w.log.WarnwCtx(ctx, "transport send failed, will retry",
		"record_id", rec.ID,
		"event_type", rec.EventType,
		"attempt", attempt,
		"retry_in", delay.String(),
		"error", err,
	)
	return err
}

func (w *Worker) updatePendingGauge(ctx context.Context) {
	counts, err := w.repo.CountByStatus(ctx)
	if err != nil {
		w.log.Debugw("failed to refresh outbox status counts", "error", err)
		return
	}
	metrics.OutboxPendingRecords.Set(float64(counts[outbox.StatusPending]))
}
