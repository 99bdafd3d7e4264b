// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	owiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_openwebif_requests_total",
		Help: "OpenWebIF requests by operation and status",
	}, []string{"operation", "status"}) // status=success|not_found|forbidden|upstream_error|bad_response|timeout|unavailable|circuit_open

	owiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xg2g_epg_openwebif_request_duration_seconds",
		Help:    "OpenWebIF request latency by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	owiEventsFetched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xg2g_epg_openwebif_events_fetched",
		Help: "EPG events fetched from the receiver in the last run",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xg2g_epg_breaker_state",
		Help: "Receiver circuit state by breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_breaker_trips_total",
		Help: "Transitions to open by breaker and the failure that caused them",
	}, []string{"breaker", "reason"})
)

var breakerLevels = map[string]float64{"closed": 0, "half-open": 1, "open": 2}

// ObserveOpenWebIF records one request.
func ObserveOpenWebIF(operation, status string, d time.Duration) {
	owiRequestsTotal.WithLabelValues(operation, status).Inc()
	owiRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordOpenWebIFEvents(n int) { owiEventsFetched.Set(float64(n)) }

// SetCircuitBreakerState publishes the state of the named breaker. Unknown
// states are ignored.
func SetCircuitBreakerState(breaker, state string) {
	if v, ok := breakerLevels[state]; ok {
		breakerState.WithLabelValues(breaker).Set(v)
	}
}

// RecordCircuitBreakerTrip counts one transition to open.
func RecordCircuitBreakerTrip(breaker, reason string) {
	breakerTrips.WithLabelValues(breaker, reason).Inc()
}
