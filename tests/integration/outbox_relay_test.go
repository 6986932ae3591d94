package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rustok/internal/bus"
	"rustok/internal/config"
	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/internal/outbox"
	"rustok/internal/relay"
	"rustok/internal/transport"
)

func busConfig() config.BusConfig {
	return config.BusConfig{
		MaxQueueDepth:  64,
		WarningRatio:   0.7,
		CriticalRatio:  0.9,
		DispatchPolicy: config.DispatchBestEffort,
	}
}

func relayConfig() config.RelayConfig {
	return config.RelayConfig{
		PollIntervalMs:  50,
		BatchSize:       100,
		MaxAttempts:     3,
		BatchTimeout:    10 * time.Second,
		RecordTimeout:   2 * time.Second,
		LeaseTTL:        30 * time.Second,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		Multiplier:      2.0,
	}
}

type capture struct {
	envelopes []event.Envelope
}

func (c *capture) handler(ctx context.Context, env event.Envelope) error {
	c.envelopes = append(c.envelopes, env)
	return nil
}

type failingTransport struct{}

func (failingTransport) Send(ctx context.Context, env event.Envelope) error {
	return errors.New("broker unreachable")
}
func (failingTransport) IsConnected() bool                  { return false }
func (failingTransport) Shutdown(ctx context.Context) error { return nil }
func (failingTransport) Name() string                       { return "failing" }

func countRecords(t *testing.T, infra *TestInfra, status string) int {
	t.Helper()
	var count int
	err := infra.PostgresDB.QueryRow(
		`SELECT COUNT(*) FROM outbox_records WHERE status = $1`, status).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestOutboxRollbackLeavesNoTrace(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	ctx := context.Background()

	publisher := outbox.NewPublisher(logger.NopLogger())
	tenantID := uuid.New()

	tx, err := infra.PostgresDB.BeginTx(ctx, nil)
	require.NoError(t, err)

	err = publisher.PublishInTx(ctx, tx, tenantID, nil, event.NodeDeleted{NodeID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	assert.Zero(t, countRecords(t, infra, "pending"), "rollback must leave no outbox record")
}

func TestOutboxCommitThenRelayDispatchesExactlyOnce(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	ctx := context.Background()

	publisher := outbox.NewPublisher(logger.NopLogger())
	tenantID := uuid.New()
	nodeID := uuid.New()

	tx, err := infra.PostgresDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	err = publisher.PublishInTx(ctx, tx, tenantID, nil, event.NodeCreated{
		NodeID:   nodeID,
		Kind:     "article",
		Title:    "hello",
		AuthorID: uuid.New(),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	require.Equal(t, 1, countRecords(t, infra, "pending"))

	b := bus.New(busConfig(), logger.NopLogger())
	sink := &capture{}
	b.Subscribe(event.TypeNodeCreated, sink.handler)

	repo := outbox.NewPostgresRepository(infra.PostgresDB)
	worker := relay.NewWorker(relayConfig(), repo, transport.NewInMemory(b), nil, logger.NopLogger())

	dispatched, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, dispatched)

	require.Len(t, sink.envelopes, 1)
	env := sink.envelopes[0]
	assert.Equal(t, event.TypeNodeCreated, env.EventType)
	assert.Equal(t, tenantID, env.TenantID)

	var payload event.NodeCreated
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, nodeID, payload.NodeID)

	assert.Equal(t, 1, countRecords(t, infra, "dispatched"))

	// A second run finds nothing to claim.
	dispatched, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	require.Len(t, sink.envelopes, 1, "record must not be dispatched twice")
}

func TestRelayPreservesPerTenantOrder(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	ctx := context.Background()

	publisher := outbox.NewPublisher(logger.NopLogger())
	tenantID := uuid.New()

	titles := []string{"first", "second", "third"}
	for _, title := range titles {
		tx, err := infra.PostgresDB.BeginTx(ctx, nil)
		require.NoError(t, err)
		err = publisher.PublishInTx(ctx, tx, tenantID, nil, event.NodeCreated{
			NodeID:   uuid.New(),
			Kind:     "page",
			Title:    title,
			AuthorID: uuid.New(),
		})
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
	}

	b := bus.New(busConfig(), logger.NopLogger())
	sink := &capture{}
	b.Subscribe(event.TypeNodeCreated, sink.handler)

	repo := outbox.NewPostgresRepository(infra.PostgresDB)
	worker := relay.NewWorker(relayConfig(), repo, transport.NewInMemory(b), nil, logger.NopLogger())

	dispatched, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, dispatched)

	require.Len(t, sink.envelopes, 3)
	for i, env := range sink.envelopes {
		var payload event.NodeCreated
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, titles[i], payload.Title, "commit order must survive the relay")
	}
}

func TestRelayDeadLettersAfterRetryCeiling(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, true, false)
	ctx := context.Background()

	publisher := outbox.NewPublisher(logger.NopLogger())
	tx, err := infra.PostgresDB.BeginTx(ctx, nil)
	require.NoError(t, err)
	err = publisher.PublishInTx(ctx, tx, uuid.New(), nil, event.NodeDeleted{NodeID: uuid.New()})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	cfg := relayConfig()
	cfg.MaxAttempts = 2
	repo := outbox.NewPostgresRepository(infra.PostgresDB)
	worker := relay.NewWorker(cfg, repo, failingTransport{}, nil, logger.NopLogger())

	// First attempt fails and reschedules.
	_, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, countRecords(t, infra, "pending"))

	// Wait out the backoff so the record becomes claimable again.
	require.Eventually(t, func() bool {
		if _, err := worker.RunOnce(ctx); err != nil {
			return false
		}
		var failed int
		if err := infra.PostgresDB.QueryRow(
			`SELECT COUNT(*) FROM outbox_records WHERE status = 'failed'`).Scan(&failed); err != nil {
			return false
		}
		return failed == 1
	}, 5*time.Second, 50*time.Millisecond)

	assert.Zero(t, countRecords(t, infra, "pending"))
}
