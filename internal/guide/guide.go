// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package guide is the query side of the program guide: time-range search,
// grid composition, term listings, and the entry point for ingestion runs.
package guide

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/cache"
	"github.com/ManuGH/xg2g-epg/internal/channels"
	"github.com/ManuGH/xg2g-epg/internal/ingest"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/store"
	"github.com/ManuGH/xg2g-epg/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// ErrIngestInProgress rejects an ingestion run while another one is active.
var ErrIngestInProgress = errors.New("guide: ingestion already in progress")

// DefaultTermCacheTTL bounds how long a term listing is served from cache.
const DefaultTermCacheTTL = 10 * time.Minute

// Guide ties the store, the channel registry and the cached aggregates together.
type Guide struct {
	store *store.Store
	reg   *channels.Registry

	mu         sync.RWMutex
	agg        store.Aggregates
	annotators []annotatorEntry
	nextAnnID  AnnotatorID

	ingesting  atomic.Bool
	stepBudget time.Duration
	onProgress func(source string, p ingest.Progress)
	onComplete func(ingest.Result)

	cache    cache.Cache
	cacheTTL time.Duration
	tracer   trace.Tracer
}

// Option configures a Guide.
type Option func(*Guide)

// WithCache serves term listings from c. A zero ttl means DefaultTermCacheTTL.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(g *Guide) {
		if c != nil {
			g.cache = c
		}
		if ttl > 0 {
			g.cacheTTL = ttl
		}
	}
}

// WithStepBudget sets the time budget of one ingestion step.
func WithStepBudget(d time.Duration) Option {
	return func(g *Guide) { g.stepBudget = d }
}

// WithIngestHooks installs progress and completion callbacks for Update.
func WithIngestHooks(onProgress func(source string, p ingest.Progress), onComplete func(ingest.Result)) Option {
	return func(g *Guide) {
		g.onProgress = onProgress
		g.onComplete = onComplete
	}
}

// New returns a Guide over st. Call Sync before querying.
func New(st *store.Store, opts ...Option) *Guide {
	g := &Guide{
		store:    st,
		reg:      channels.NewRegistry(),
		cache:    cache.NewNoOpCache(),
		cacheTTL: DefaultTermCacheTTL,
		tracer:   telemetry.Tracer("guide"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the underlying store.
func (g *Guide) Store() *store.Store { return g.store }

// Registry returns the channel registry.
func (g *Guide) Registry() *channels.Registry { return g.reg }

// Sync reloads the channel registry and the aggregates from the store and
// drops cached term listings.
func (g *Guide) Sync(ctx context.Context) error {
	if err := g.reg.Sync(ctx, g.store); err != nil {
		return err
	}
	agg, err := g.store.Aggregates(ctx)
	if err != nil {
		return fmt.Errorf("load aggregates: %w", err)
	}

	g.mu.Lock()
	g.agg = agg
	g.mu.Unlock()

	metrics.RecordAggregates(agg.Generation, agg.NumPrograms)
	g.cache.Clear(ctx)

	xglog.FromContext(ctx).Debug().
		Str(xglog.FieldEvent, "guide.sync").
		Int("channels", g.reg.Len()).
		Int64("programs", agg.NumPrograms).
		Int64("max_length", agg.MaxProgramLength).
		Int64("generation", agg.Generation).
		Msg("guide synced")
	return nil
}

// Aggregates returns the aggregates loaded by the last Sync.
func (g *Guide) Aggregates() store.Aggregates {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.agg
}

// NumPrograms is the number of stored programs as of the last Sync.
func (g *Guide) NumPrograms() int64 { return g.Aggregates().NumPrograms }

// MaxProgramLength is the longest program duration in seconds as of the last Sync.
func (g *Guide) MaxProgramLength() int64 { return g.Aggregates().MaxProgramLength }
