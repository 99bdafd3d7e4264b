// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func getHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, o.(prometheus.Metric).Write(metric))
	return metric.GetHistogram().GetSampleCount()
}

func TestObserveStoreOp(t *testing.T) {
	before := getHistogramCount(t, storeOpDuration.WithLabelValues("test_op"))
	errBefore := testutil.ToFloat64(storeOpErrors.WithLabelValues("test_op", "canceled"))
	otherBefore := testutil.ToFloat64(storeOpErrors.WithLabelValues("test_op", "other"))

	ObserveStoreOp("test_op", 3*time.Millisecond, nil)
	ObserveStoreOp("test_op", time.Millisecond, context.Canceled)
	ObserveStoreOp("test_op", time.Millisecond, errors.New("disk I/O error"))

	assert.Equal(t, before+3, getHistogramCount(t, storeOpDuration.WithLabelValues("test_op")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(storeOpErrors.WithLabelValues("test_op", "canceled")))
	assert.Equal(t, otherBefore+1, testutil.ToFloat64(storeOpErrors.WithLabelValues("test_op", "other")))
}

func TestRecordIngestRun(t *testing.T) {
	finished := time.Unix(1_700_000_000, 0)
	before := testutil.ToFloat64(ingestRunsTotal.WithLabelValues("unit", "success"))

	RecordIngestRun("unit", "success", IngestCounts{Channels: 2, Programs: 10, Orphans: 1}, time.Second, finished)

	assert.Equal(t, before+1, testutil.ToFloat64(ingestRunsTotal.WithLabelValues("unit", "success")))
	assert.Equal(t, 10.0, getGaugeValue(t, ingestRecords.WithLabelValues("unit", "programs")))
	assert.Equal(t, 1.0, getGaugeValue(t, ingestRecords.WithLabelValues("unit", "orphans")))
	assert.Equal(t, 0.0, getGaugeValue(t, ingestRecords.WithLabelValues("unit", "invalid")))
	assert.Equal(t, float64(finished.Unix()), getGaugeValue(t, ingestLastSuccess.WithLabelValues("unit")))

	// failed runs leave the last-success timestamp alone
	RecordIngestRun("unit", "failed", IngestCounts{}, time.Second, finished.Add(time.Hour))
	assert.Equal(t, float64(finished.Unix()), getGaugeValue(t, ingestLastSuccess.WithLabelValues("unit")))
}

func TestSetIngestInProgress(t *testing.T) {
	SetIngestInProgress(true)
	assert.Equal(t, 1.0, getGaugeValue(t, ingestInProgress))
	SetIngestInProgress(false)
	assert.Equal(t, 0.0, getGaugeValue(t, ingestInProgress))
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("unit", "open")
	assert.Equal(t, 2.0, getGaugeValue(t, breakerState.WithLabelValues("unit")))

	SetCircuitBreakerState("unit", "bogus")
	assert.Equal(t, 2.0, getGaugeValue(t, breakerState.WithLabelValues("unit")))

	SetCircuitBreakerState("unit", "closed")
	assert.Equal(t, 0.0, getGaugeValue(t, breakerState.WithLabelValues("unit")))

	RecordCircuitBreakerTrip("unit", "timeout")
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerTrips.WithLabelValues("unit", "timeout")))
}

func TestAddSearchDroppedIgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(searchDropped)
	AddSearchDropped(0)
	AddSearchDropped(-1)
	AddSearchDropped(2)
	assert.Equal(t, before+2, testutil.ToFloat64(searchDropped))
}

func TestPromhttpExposure(t *testing.T) {
	RecordAggregates(7, 42)
	RecordRegistry(3, 1)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	body := recorder.Body.String()
	for _, name := range []string{
		"xg2g_epg_aggregates_generation 7",
		"xg2g_epg_programs 42",
		"xg2g_epg_channels 3",
		"xg2g_epg_tuner_conflicts 1",
	} {
		assert.True(t, strings.Contains(body, name), "missing %q", name)
	}
}
