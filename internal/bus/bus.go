// Package bus implements the in-process event dispatcher: typed
// subscriptions with optional CEL filters, synchronous fan-out under a
// configurable failure policy, and backpressure admission control.
package bus

import (
	"context"
	"fmt"
	"sync"

	"rustok/internal/config"
	"rustok/internal/event"
	"rustok/internal/logger"
	"rustok/pkg/errors"
	"rustok/pkg/metrics"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

type Handler func(ctx context.Context, env event.Envelope) error

type subscription struct {
	id      int64
	handler Handler
	filter  *Filter
}

type Bus struct {
	log    logger.Logger
	policy string
	bp     *BackpressureController

	mu     sync.RWMutex
	nextID int64
	subs   map[string][]*subscription
}

func New(cfg config.BusConfig, log logger.Logger) *Bus {
	return &Bus{
		log:    log,
		policy: cfg.DispatchPolicy,
		bp:     NewBackpressureController(cfg.MaxQueueDepth, cfg.WarningRatio, cfg.CriticalRatio),
		subs:   make(map[string][]*subscription),
	}
}

func (b *Bus) Backpressure() *BackpressureController {
	return b.bp
}

// Subscribe registers a handler for one event type, or for every type
// via the "*" wildcard. The returned function removes the subscription.
func (b *Bus) Subscribe(eventType string, handler Handler) func() {
	return b.add(eventType, &subscription{handler: handler})
}

// SubscribeFiltered compiles the CEL expression once, at subscribe
// time; a bad expression is reported here rather than per event.
func (b *Bus) SubscribeFiltered(eventType, expression string, handler Handler) (func(), error) {
	filter, err := CompileFilter(expression)
	if err != nil {
		return nil, err
	}
	return b.add(eventType, &subscription{handler: handler, filter: filter}), nil
}

func (b *Bus) add(eventType string, sub *subscription) func() {
	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[eventType]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[eventType] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

type publishOptions struct {
	guaranteed bool
}

type PublishOption func(*publishOptions)

// WithGuaranteedDelivery marks a publish that must not be dropped; it
// is rejected outright under critical backpressure so the caller can
// back off, instead of being accepted and then shed.
func WithGuaranteedDelivery() PublishOption {
	return func(o *publishOptions) {
		o.guaranteed = true
	}
}

// Publish admits the envelope through the backpressure controller and
// fans it out to matching handlers. The slot is held for the full
// dispatch and released on every exit path.
func (b *Bus) Publish(ctx context.Context, env event.Envelope, opts ...PublishOption) error {
	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}

	if err := b.bp.Acquire(options.guaranteed); err != nil {
		b.log.WarnwCtx(ctx, "publish rejected under backpressure",
			"event_type", env.EventType,
			"zone", b.bp.Zone().String(),
		)
		return err
	}
	defer b.bp.Release()

	if zone := b.bp.Zone(); zone == ZoneWarning {
		b.log.WarnwCtx(ctx, "bus accepting events in warning zone",
			"in_flight", b.bp.InFlight(),
		)
	}

	metrics.BusPublishedTotal.WithLabelValues(env.EventType).Inc()
	return b.Dispatch(ctx, env)
}

// Dispatch fans the envelope out to every handler subscribed to its
// type or to the wildcard. Under fail_fast handlers run sequentially
// and the first error aborts the rest; under best_effort handlers run
// concurrently and failures are logged only. Either way Dispatch
// returns after every started handler has finished, so the caller's
// backpressure slot covers the whole fan-out.
func (b *Bus) Dispatch(ctx context.Context, env event.Envelope) error {
	subs := b.eligible(ctx, env)
	if len(subs) == 0 {
		return nil
	}

	if b.policy == config.DispatchFailFast {
		for _, sub := range subs {
			if err := b.invoke(ctx, sub, env); err != nil {
				metrics.BusHandlerFailuresTotal.WithLabelValues(env.EventType).Inc()
				return fmt.Errorf("handler failed for %s: %w", env.EventType, err)
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *subscription) {
			defer wg.Done()
			if err := b.invoke(ctx, sub, env); err != nil {
				metrics.BusHandlerFailuresTotal.WithLabelValues(env.EventType).Inc()
				b.log.ErrorwCtx(ctx, "event handler failed",
					"event_type", env.EventType,
					"event_id", env.EventID.String(),
					"error", err,
				)
			}
		}(sub)
	}
	wg.Wait()

	return nil
}

// eligible narrows the matching subscriptions through their filters. A
// failing filter skips its handler only.
func (b *Bus) eligible(ctx context.Context, env event.Envelope) []*subscription {
	subs := b.matching(env)
	if len(subs) == 0 {
		return nil
	}

	eligible := make([]*subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.filter != nil {
			matched, err := sub.filter.Match(env)
			if err != nil {
				b.log.ErrorwCtx(ctx, "subscription filter failed, skipping handler",
					"event_type", env.EventType,
					"error", err,
				)
				continue
			}
			if !matched {
				continue
			}
		}
		eligible = append(eligible, sub)
	}
	return eligible
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, env event.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return sub.handler(ctx, env)
}

func (b *Bus) matching(env event.Envelope) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := b.subs[env.EventType]
	wild := b.subs[Wildcard]
	if len(typed) == 0 && len(wild) == 0 {
		return nil
	}

	subs := make([]*subscription, 0, len(typed)+len(wild))
	subs = append(subs, typed...)
	subs = append(subs, wild...)
	return subs
}
