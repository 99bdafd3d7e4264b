// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the guide engine.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Kept low-cardinality: op names are a fixed set chosen by the store.

var (
	storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xg2g_epg_store_op_duration_seconds",
		Help:    "Duration of store operations, including busy retries",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"op"})

	storeOpErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_store_op_errors_total",
		Help: "Store operations that failed, by op and kind",
	}, []string{"op", "kind"}) // kind=canceled|other

	schemaOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_schema_open_total",
		Help: "Schema manager open outcomes by detected state",
	}, []string{"state"}) // state=missing|current|stale|corrupt|unknown

	aggregatesGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xg2g_epg_aggregates_generation",
		Help: "Generation of the currently loaded aggregates",
	})

	guidePrograms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xg2g_epg_programs",
		Help: "Number of stored programs (last aggregate recompute)",
	})

	guideChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xg2g_epg_channels",
		Help: "Number of channels in the registry (last sync)",
	})

	tunerConflicts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xg2g_epg_tuner_conflicts",
		Help: "Tuner id claims rejected during the last registry sync",
	})
)

// ObserveStoreOp records one store operation.
func ObserveStoreOp(op string, d time.Duration, err error) {
	storeOpDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		storeOpErrors.WithLabelValues(op, errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// RecordSchemaOpen counts one schema manager open by state.
func RecordSchemaOpen(state string) { schemaOutcomes.WithLabelValues(state).Inc() }

// RecordAggregates publishes the loaded aggregates.
func RecordAggregates(generation, programs int64) {
	aggregatesGeneration.Set(float64(generation))
	guidePrograms.Set(float64(programs))
}

// RecordRegistry publishes registry sizes after a sync.
func RecordRegistry(channels, conflicts int) {
	guideChannels.Set(float64(channels))
	tunerConflicts.Set(float64(conflicts))
}
