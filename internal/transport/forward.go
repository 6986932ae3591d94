package transport

import (
	"context"
	"time"

	"rustok/internal/config"
	"rustok/internal/event"
	"rustok/pkg/metrics"
)

// Forward is the relay target for the outbox_forward transport: drained
// records are handed to a delegate sink (the local bus, or an external
// broker when one is configured). Durability comes from the outbox
// table, not from the delegate.
type Forward struct {
	delegate Transport
}

func NewForward(delegate Transport) *Forward {
	return &Forward{delegate: delegate}
}

func (t *Forward) Send(ctx context.Context, env event.Envelope) error {
	start := time.Now()
	err := t.delegate.Send(ctx, env)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveTransportSend(t.Name(), status, time.Since(start))
	return err
}

func (t *Forward) IsConnected() bool { return t.delegate.IsConnected() }

func (t *Forward) Shutdown(ctx context.Context) error { return t.delegate.Shutdown(ctx) }

func (t *Forward) Name() string { return config.TransportOutboxForward }
