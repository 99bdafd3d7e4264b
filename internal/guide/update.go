// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guide

import (
	"context"

	"github.com/ManuGH/xg2g-epg/internal/ingest"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
)

// Ingesting reports whether an Update is running.
func (g *Guide) Ingesting() bool { return g.ingesting.Load() }

// Update imports src and re-syncs the guide afterwards. Only one run may be
// active; a concurrent call fails with ErrIngestInProgress without touching
// the store. The returned error is Result.Err.
func (g *Guide) Update(ctx context.Context, src ingest.Source) (ingest.Result, error) {
	if !g.ingesting.CompareAndSwap(false, true) {
		metrics.IncIngestRejected(src.Name())
		xglog.FromContext(ctx).Warn().
			Str(xglog.FieldEvent, "ingest.rejected").
			Str(xglog.FieldSource, src.Name()).
			Msg("ingestion already in progress")
		return ingest.Result{}, ErrIngestInProgress
	}
	defer g.ingesting.Store(false)

	p := &ingest.Pipeline{
		Store:      g.store,
		StepBudget: g.stepBudget,
		OnComplete: g.onComplete,
		OnSynced:   g.Sync,
	}
	if g.onProgress != nil {
		name := src.Name()
		p.OnProgress = func(pr ingest.Progress) { g.onProgress(name, pr) }
	}
	res := p.Run(ctx, src)
	return res, res.Err
}
