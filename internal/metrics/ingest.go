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
	ingestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_ingest_runs_total",
		Help: "Ingestion runs by source and outcome",
	}, []string{"source", "outcome"}) // outcome=success|partial|failed|cancelled

	ingestRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_ingest_rejected_total",
		Help: "Ingestion runs rejected because another run was in progress",
	}, []string{"source"})

	ingestRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xg2g_epg_ingest_records",
		Help: "Records handled by the last run of a source, by kind",
	}, []string{"source", "kind"}) // kind=channels|programs|orphans|discarded|invalid

	ingestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xg2g_epg_ingest_duration_seconds",
		Help:    "Wall time of ingestion runs, prepare included",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"source"})

	ingestSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_ingest_steps_total",
		Help: "Apply task steps executed",
	}, []string{"source"})

	ingestLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xg2g_epg_ingest_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per source",
	}, []string{"source"})

	ingestInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xg2g_epg_ingest_in_progress",
		Help: "Whether an ingestion run is active (1) or not (0)",
	})
)

// IngestCounts are the per-run record counts.
type IngestCounts struct {
	Channels, Programs, Orphans, Discarded, Invalid int
}

// RecordIngestRun records a finished run.
func RecordIngestRun(source, outcome string, c IngestCounts, d time.Duration, finished time.Time) {
	ingestRunsTotal.WithLabelValues(source, outcome).Inc()
	ingestDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
	for kind, n := range map[string]int{
		"channels":  c.Channels,
		"programs":  c.Programs,
		"orphans":   c.Orphans,
		"discarded": c.Discarded,
		"invalid":   c.Invalid,
	} {
		ingestRecords.WithLabelValues(source, kind).Set(float64(n))
	}
	if outcome == "success" {
		ingestLastSuccess.WithLabelValues(source).Set(float64(finished.Unix()))
	}
}

func IncIngestRejected(source string) { ingestRejectedTotal.WithLabelValues(source).Inc() }
func IncIngestStep(source string)     { ingestSteps.WithLabelValues(source).Inc() }

// SetIngestInProgress flips the in-progress gauge.
func SetIngestInProgress(active bool) {
	if active {
		ingestInProgress.Set(1)
		return
	}
	ingestInProgress.Set(0)
}
