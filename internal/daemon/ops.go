// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/health"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/openwebif"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const pingTimeout = 2 * time.Second

// Health builds the checks behind /healthz and /readyz. Only the store makes
// the service unready; stale sources, a missing data file and an open
// receiver circuit report degraded.
func (rt *Runtime) Health() *health.Manager {
	m := health.NewManager(rt.Config.Version)
	m.RegisterChecker(health.NewPingChecker("store", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return rt.Store.DB().PingContext(ctx)
	}))

	// a source is stale once it missed two refreshes
	maxAge := 2 * rt.Config.Ingest.RefreshInterval
	for _, src := range rt.Sources() {
		m.RegisterChecker(health.NewLastRunChecker("ingest_"+src.Name(), maxAge, rt.runs.lastRun(src.Name())))
	}
	if rt.XMLTV != nil && rt.Config.XMLTV.Grabber == "" {
		m.RegisterChecker(health.NewFileChecker("xmltv_data", rt.XMLTV.Path(), health.StatusDegraded))
	}
	if rt.Receiver != nil {
		breaker := rt.Receiver.Breaker()
		m.RegisterChecker(health.NewChecker("openwebif", func(context.Context) health.CheckResult {
			if st := breaker.State(); st != openwebif.StateClosed {
				return health.CheckResult{Status: health.StatusDegraded, Message: "circuit " + st.String()}
			}
			return health.CheckResult{Status: health.StatusHealthy}
		}))
	}

	m.SetDetails(func(context.Context) map[string]any {
		agg := rt.Guide.Aggregates()
		return map[string]any{
			"channels":   rt.Guide.Registry().Len(),
			"programs":   agg.NumPrograms,
			"generation": agg.Generation,
			"max_length": agg.MaxProgramLength,
			"ingesting":  rt.Guide.Ingesting(),
		}
	})
	return m
}

// NewOpsHandler serves liveness, readiness and Prometheus metrics.
// rateLimit is requests per minute per client IP; zero disables limiting.
func NewOpsHandler(hm *health.Manager, rateLimit int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := xglog.ContextWithRequestID(req.Context(), middleware.GetReqID(req.Context()))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Use(middleware.Recoverer)
	if rateLimit > 0 {
		r.Use(httprate.Limit(
			rateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprint(w, `{"error":"rate_limit_exceeded"}`)
			}),
		))
	}

	r.Get("/healthz", hm.ServeHealth)
	r.Get("/readyz", hm.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, "ops",
		otelhttp.WithFilter(func(req *http.Request) bool { return req.URL.Path != "/metrics" }),
	)
}
