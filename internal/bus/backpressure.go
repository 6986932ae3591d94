package bus

import (
	"math"
	"sync/atomic"

	"rustok/pkg/errors"
	"rustok/pkg/metrics"
)

type Zone int32

const (
	ZoneNormal Zone = iota
	ZoneWarning
	ZoneCritical
)

func (z Zone) String() string {
	switch z {
	case ZoneWarning:
		return "warning"
	case ZoneCritical:
		return "critical"
	default:
		return "normal"
	}
}

// BackpressureController tracks in-flight events with a process-wide
// atomic counter. Producers acquire a slot per envelope; the slot is
// released once every handler for that envelope has completed.
type BackpressureController struct {
	maxDepth   int64
	warningAt  int64
	criticalAt int64

	inFlight atomic.Int64
	zone     atomic.Int32
}

func NewBackpressureController(maxDepth int, warningRatio, criticalRatio float64) *BackpressureController {
	return &BackpressureController{
		maxDepth:   int64(maxDepth),
		warningAt:  int64(math.Ceil(float64(maxDepth) * warningRatio)),
		criticalAt: int64(math.Ceil(float64(maxDepth) * criticalRatio)),
	}
}

// Acquire claims one slot. A guaranteed-delivery publish is rejected
// once the counter is inside the critical zone; advisory publishes are
// admitted until the hard ceiling.
func (c *BackpressureController) Acquire(guaranteed bool) error {
	count := c.inFlight.Add(1)

	if guaranteed && count > c.criticalAt {
		c.inFlight.Add(-1)
		metrics.BusRejectedTotal.Inc()
		return errors.ErrBackpressure.
			WithDetail("in_flight", count-1).
			WithDetail("max_queue_depth", c.maxDepth)
	}

	if count > c.maxDepth {
		c.inFlight.Add(-1)
		metrics.BusRejectedTotal.Inc()
		return errors.ErrBackpressure.
			WithDetail("in_flight", count-1).
			WithDetail("max_queue_depth", c.maxDepth)
	}

	c.updateZone(count)
	metrics.BackpressureInFlight.Set(float64(count))
	return nil
}

// Release frees one slot. Callers defer this so handler panics cannot
// leak slots.
func (c *BackpressureController) Release() {
	count := c.inFlight.Add(-1)
	if count < 0 {
		// A double release is a programming error; clamp rather than
		// let the counter drift negative.
		c.inFlight.CompareAndSwap(count, 0)
		count = 0
	}
	c.updateZone(count)
	metrics.BackpressureInFlight.Set(float64(count))
}

func (c *BackpressureController) InFlight() int64 {
	return c.inFlight.Load()
}

func (c *BackpressureController) Zone() Zone {
	return Zone(c.zone.Load())
}

func (c *BackpressureController) zoneFor(count int64) Zone {
	switch {
	case count > c.criticalAt:
		return ZoneCritical
	case count > c.warningAt:
		return ZoneWarning
	default:
		return ZoneNormal
	}
}

func (c *BackpressureController) updateZone(count int64) {
	next := c.zoneFor(count)
	prev := Zone(c.zone.Swap(int32(next)))
	if prev != next {
		metrics.BackpressureZoneTransitionsTotal.WithLabelValues(prev.String(), next.String()).Inc()
		metrics.BackpressureZone.Set(float64(next))
	}
}
