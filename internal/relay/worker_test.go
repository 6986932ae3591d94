package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustok/internal/config"
	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/internal/outbox"
)

type fakeRepo struct {
	mu       sync.Mutex
	pending  []outbox.Record
	marked   map[int64]outbox.Status
	failed   map[int64]int
	released []int64
}

func newFakeRepo(records ...outbox.Record) *fakeRepo {
	return &fakeRepo{
		pending: records,
		marked:  make(map[int64]outbox.Status),
		failed:  make(map[int64]int),
	}
}

func (r *fakeRepo) ClaimPending(ctx context.Context, batchSize int, leaseTTL time.Duration) ([]outbox.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > batchSize {
		return r.pending[:batchSize], nil
	}
	return r.pending, nil
}

func (r *fakeRepo) MarkDispatched(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marked[id] = outbox.StatusDispatched
	return nil
}

func (r *fakeRepo) MarkFailed(ctx context.Context, id int64, attemptCount int, lastError string, retryAfter time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = attemptCount
	return nil
}

func (r *fakeRepo) MarkDead(ctx context.Context, id int64, attemptCount int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marked[id] = outbox.StatusFailed
	return nil
}

func (r *fakeRepo) Release(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, ids...)
	return nil
}

func (r *fakeRepo) CountByStatus(ctx context.Context) (map[outbox.Status]int64, error) {
	return map[outbox.Status]int64{}, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []event.Envelope
	failOn map[uuid.UUID]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failOn: make(map[uuid.UUID]error)}
}

func (t *fakeTransport) Send(ctx context.Context, env event.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.failOn[env.EventID]; ok {
		return err
	}
	t.sent = append(t.sent, env)
	return nil
}

func (t *fakeTransport) IsConnected() bool                 { return true }
func (t *fakeTransport) Shutdown(ctx context.Context) error { return nil }
func (t *fakeTransport) Name() string                       { return "fake" }

type fakeArchive struct {
	mu       sync.Mutex
	archived []outbox.Record
}

func (a *fakeArchive) Archive(ctx context.Context, rec outbox.Record, lastError string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, rec)
}

func relayConfig() config.RelayConfig {
	return config.RelayConfig{
		PollIntervalMs:  50,
		BatchSize:       100,
		MaxAttempts:     3,
		BatchTimeout:    5 * time.Second,
		RecordTimeout:   time.Second,
		LeaseTTL:        30 * time.Second,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}
}

func record(id int64, tenantID uuid.UUID, attempts int) outbox.Record {
	return outbox.Record{
		ID:            id,
		EventID:       uuid.New(),
		TenantID:      tenantID,
		EventType:     event.TypeNodeCreated,
		CorrelationID: "corr",
		Payload:       []byte(`{}`),
		Status:        outbox.StatusPending,
		AttemptCount:  attempts,
		CreatedAt:     time.Now().Add(time.Duration(id) * time.Millisecond),
	}
}

func TestRunOnceDispatchesInOrder(t *testing.T) {
	tenantID := uuid.New()
	records := []outbox.Record{
		record(1, tenantID, 0),
		record(2, tenantID, 0),
		record(3, tenantID, 0),
	}
	repo := newFakeRepo(records...)
	tr := newFakeTransport()

	w := NewWorker(relayConfig(), repo, tr, nil, logger.NopLogger())
	dispatched, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, dispatched)

	require.Len(t, tr.sent, 3)
	for i, env := range tr.sent {
		assert.Equal(t, int64(i+1), env.Sequence, "per-tenant FIFO order")
		assert.Equal(t, outbox.StatusDispatched, repo.marked[env.Sequence])
	}
}

func TestRunOnceFailureSkipsRestOfTenant(t *testing.T) {
	failingTenant := uuid.New()
	healthyTenant := uuid.New()
	records := []outbox.Record{
		record(1, failingTenant, 0),
		record(2, failingTenant, 0),
		record(3, healthyTenant, 0),
	}
	repo := newFakeRepo(records...)
	tr := newFakeTransport()
	tr.failOn[records[0].EventID] = errors.New("broker unavailable")

	w := NewWorker(relayConfig(), repo, tr, nil, logger.NopLogger())
	dispatched, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, dispatched, "healthy tenant still drains")
	assert.Equal(t, 1, repo.failed[1], "failed record schedules attempt 1")
	assert.Equal(t, []int64{2}, repo.released, "later record of failing tenant is released untouched")
	require.Len(t, tr.sent, 1)
	assert.Equal(t, healthyTenant, tr.sent[0].TenantID)
}

func TestRunOnceDeadLettersAtCeiling(t *testing.T) {
	tenantID := uuid.New()
	// Two prior attempts; the next failure crosses max_attempts=3.
	rec := record(7, tenantID, 2)
	repo := newFakeRepo(rec)
	tr := newFakeTransport()
	tr.failOn[rec.EventID] = errors.New("still down")
	archive := &fakeArchive{}

	w := NewWorker(relayConfig(), repo, tr, archive, logger.NopLogger())
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, outbox.StatusFailed, repo.marked[7])
	require.Len(t, archive.archived, 1)
	assert.Equal(t, rec.EventID, archive.archived[0].EventID)
	assert.Empty(t, repo.failed, "dead-lettered record must not be rescheduled")
}

func TestRunOnceEmptyBatch(t *testing.T) {
	repo := newFakeRepo()
	w := NewWorker(relayConfig(), repo, newFakeTransport(), nil, logger.NopLogger())

	dispatched, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, dispatched)
}

func TestStartStopLoop(t *testing.T) {
	tenantID := uuid.New()
	repo := newFakeRepo(record(1, tenantID, 0))
	tr := newFakeTransport()

	w := NewWorker(relayConfig(), repo, tr, nil, logger.NopLogger())
	w.Start(context.Background())

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.sent) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
}
