// Package transport provides the pluggable envelope sink the relay and
// the advisory publish path deliver into, selected by configuration.
package transport

import (
	"context"

	"rustok/internal/event"
)

type Transport interface {
	// Send delivers one envelope. At-least-once: callers retry on
	// error, so implementations must tolerate duplicate sends.
	Send(ctx context.Context, env event.Envelope) error
	IsConnected() bool
	Shutdown(ctx context.Context) error
	Name() string
}
