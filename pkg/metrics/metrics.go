package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TenantCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_cache_lookups_total",
			Help: "Total tenant cache lookups by outcome (hit, miss, negative_hit) (count)",
		},
		[]string{"kind", "outcome"},
	)

	TenantCacheFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenant_cache_fetch_duration_ms",
			Help:    "Duration of source-of-truth tenant fetches in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"kind"},
	)

	TenantCacheSharedFlightsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_cache_shared_flights_total",
			Help: "Total resolutions that waited on another caller's in-flight fetch (count)",
		},
	)

	TenantCacheInvalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_cache_invalidations_total",
			Help: "Total cache invalidations by origin (local, broadcast) (count)",
		},
		[]string{"origin"},
	)

	BusPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total events accepted by the in-process bus (count)",
		},
		[]string{"event_type"},
	)

	BusRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_events_rejected_total",
			Help: "Total guaranteed publishes rejected under critical backpressure (count)",
		},
	)

	BusHandlerFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_handler_failures_total",
			Help: "Total handler invocation failures (count)",
		},
		[]string{"event_type"},
	)

	BackpressureZone = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backpressure_zone",
			Help: "Current backpressure zone (0=normal, 1=warning, 2=critical) (zone code)",
		},
	)

	BackpressureZoneTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backpressure_zone_transitions_total",
			Help: "Total backpressure zone transitions (count)",
		},
		[]string{"from", "to"},
	)

	BackpressureInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backpressure_in_flight_events",
			Help: "Events currently queued or being handled (count)",
		},
	)

	OutboxRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_records_total",
			Help: "Total outbox records by terminal disposition (staged, dispatched, failed, dead_lettered) (count)",
		},
		[]string{"disposition"},
	)

	OutboxPendingRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_records",
			Help: "Outbox records awaiting relay (count)",
		},
	)

	RelayBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_batch_size",
			Help:    "Number of records claimed per relay batch (count)",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	RelayBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_batch_duration_ms",
			Help:    "Duration of relay batch processing in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	TransportSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_sends_total",
			Help: "Total envelope sends by transport and status (count)",
		},
		[]string{"transport", "status"},
	)

	TransportSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transport_send_duration_ms",
			Help:    "Duration of transport sends in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"transport"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterTenantCacheMetrics() {
	prometheus.MustRegister(TenantCacheLookupsTotal)
	prometheus.MustRegister(TenantCacheFetchDuration)
	prometheus.MustRegister(TenantCacheSharedFlightsTotal)
	prometheus.MustRegister(TenantCacheInvalidationsTotal)
}

func RegisterBusMetrics() {
	prometheus.MustRegister(BusPublishedTotal)
	prometheus.MustRegister(BusRejectedTotal)
	prometheus.MustRegister(BusHandlerFailuresTotal)
	prometheus.MustRegister(BackpressureZone)
	prometheus.MustRegister(BackpressureZoneTransitionsTotal)
	prometheus.MustRegister(BackpressureInFlight)
}

func RegisterOutboxMetrics() {
	prometheus.MustRegister(OutboxRecordsTotal)
	prometheus.MustRegister(OutboxPendingRecords)
}

func RegisterRelayMetrics() {
	prometheus.MustRegister(RelayBatchSize)
	prometheus.MustRegister(RelayBatchDuration)
	prometheus.MustRegister(TransportSendsTotal)
	prometheus.MustRegister(TransportSendDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func IncCacheLookup(kind, outcome string) {
	TenantCacheLookupsTotal.WithLabelValues(kind, outcome).Inc()
}

func ObserveCacheFetchDuration(kind string, duration time.Duration) {
	TenantCacheFetchDuration.WithLabelValues(kind).Observe(float64(duration.Milliseconds()))
}

func ObserveRelayBatch(size int, duration time.Duration) {
	RelayBatchSize.Observe(float64(size))
	RelayBatchDuration.Observe(float64(duration.Milliseconds()))
}

func ObserveTransportSend(transport, status string, duration time.Duration) {
	TransportSendsTotal.WithLabelValues(transport, status).Inc()
	TransportSendDuration.WithLabelValues(transport).Observe(float64(duration.Milliseconds()))
}
