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
	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xg2g_epg_search_duration_seconds",
		Help:    "Guide query latency by kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"}) // kind=search|rows|grid|terms

	searchResults = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xg2g_epg_search_results",
		Help:    "Number of programs returned per query",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"kind"})

	searchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xg2g_epg_search_dropped_rows_total",
		Help: "Rows dropped because their channel is not in the registry",
	})

	termCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xg2g_epg_term_cache_total",
		Help: "Term list cache lookups by result",
	}, []string{"result"}) // result=hit|miss|error
)

// ObserveSearch records one guide query.
func ObserveSearch(kind string, d time.Duration, results int) {
	searchDuration.WithLabelValues(kind).Observe(d.Seconds())
	searchResults.WithLabelValues(kind).Observe(float64(results))
}

func AddSearchDropped(n int) {
	if n > 0 {
		searchDropped.Add(float64(n))
	}
}

func IncTermCache(result string) { termCacheTotal.WithLabelValues(result).Inc() }
