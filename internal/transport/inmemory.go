package transport

import (
	"context"
	"time"

	"rustok/internal/bus"
	"rustok/internal/config"
	"rustok/internal/event"
	"rustok/pkg/metrics"
)

// InMemory fans envelopes straight out onto the local bus. Single
// process scope only; nothing survives a restart.
type InMemory struct {
	bus *bus.Bus
}

func NewInMemory(b *bus.Bus) *InMemory {
	return &InMemory{bus: b}
}

func (t *InMemory) Send(ctx context.Context, env event.Envelope) error {
	start := time.Now()
	err := t.bus.Dispatch(ctx, env)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveTransportSend(t.Name(), status, time.Since(start))
	return err
}

func (t *InMemory) IsConnected() bool { return true }

func (t *InMemory) Shutdown(ctx context.Context) error { return nil }

func (t *InMemory) Name() string { return config.TransportInMemory }
