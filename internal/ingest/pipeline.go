// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/store"
	"github.com/ManuGH/xg2g-epg/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// finalizeTimeout bounds the aggregate recompute and sync hook after a run,
// which run even when the run's context was cancelled.
const finalizeTimeout = 30 * time.Second

// Pipeline runs sources against a store.
type Pipeline struct {
	Store      *store.Store
	StepBudget time.Duration
	// OnProgress is called from the pipeline goroutine.
	OnProgress func(Progress)
	// OnComplete receives exactly one Result per Run.
	OnComplete func(Result)
	// OnSynced runs after aggregates were recomputed, typically to re-sync
	// the guide's registry.
	OnSynced func(ctx context.Context) error
	// Yield is called between apply steps; nil means runtime.Gosched.
	Yield func()
}

type prepared struct {
	feed *Feed
	err  error
}

// Run imports src. It always returns the Result it hands to OnComplete.
func (p *Pipeline) Run(ctx context.Context, src Source) Result {
	res := Result{
		RunID:   uuid.NewString(),
		Source:  src.Name(),
		Started: time.Now(),
	}
	ctx = xglog.ContextWithRunID(ctx, res.RunID)
	logger := xglog.WithComponentFromContext(ctx, "ingest").With().Str(xglog.FieldSource, res.Source).Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := telemetry.Tracer("ingest").Start(ctx, "ingest.run",
		trace.WithAttributes(telemetry.IngestAttributes(res.Source, res.RunID)...))

	metrics.SetIngestInProgress(true)
	defer metrics.SetIngestInProgress(false)

	logger.Info().Str(xglog.FieldEvent, "ingest.start").Msg("ingestion started")

	committed := false
	feed, err := p.prepare(ctx, src)
	if err == nil {
		logger.Info().
			Str(xglog.FieldEvent, "ingest.prepared").
			Int("events", len(feed.Events)).
			Int(xglog.FieldTotal, feed.Total).
			Msg("feed prepared")
		task := NewApplyTask(ctx, p.Store, res.Source, feed, p.StepBudget, p.OnProgress)
		err = Drive(ctx, task, p.Yield)
		res.Counts = task.Counts()
		committed = task.Committed() > 0
	}

	switch {
	case err == nil && res.Skipped() > 0:
		res.Outcome = OutcomePartial
	case err == nil:
		res.Outcome = OutcomeSuccess
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		res.Outcome = OutcomeCancelled
		res.Err = err
	default:
		res.Outcome = OutcomeFailed
		res.Err = err
	}

	// Committed steps change maxLen and may add channels, so the derived
	// state is refreshed even for runs that did not finish.
	if committed {
		if err := p.finalize(ctx); err != nil {
			logger.Error().Err(err).Str(xglog.FieldEvent, "ingest.finalize").Msg("post-ingest sync failed")
			if res.Err == nil {
				res.Outcome = OutcomeFailed
				res.Err = err
			}
		}
	}

	res.Finished = time.Now()
	metrics.RecordIngestRun(res.Source, string(res.Outcome), metrics.IngestCounts{
		Channels:  res.Channels,
		Programs:  res.Programs,
		Orphans:   res.Orphans,
		Discarded: res.Discarded,
		Invalid:   res.Invalid,
	}, res.Duration(), res.Finished)

	span.SetAttributes(
		attribute.String(telemetry.IngestOutcomeKey, string(res.Outcome)),
		attribute.Int(telemetry.IngestProgramsKey, res.Programs),
		attribute.Int(telemetry.IngestOrphansKey, res.Orphans),
	)
	telemetry.EndSpan(span, res.Err)

	ev := logger.Info()
	if res.Err != nil {
		ev = logger.Error().Err(res.Err)
	}
	ev.Str(xglog.FieldEvent, "ingest.complete").
		Str(xglog.FieldOutcome, string(res.Outcome)).
		Int("channels", res.Channels).
		Int("programs", res.Programs).
		Int("orphans", res.Orphans).
		Int("discarded", res.Discarded).
		Int("invalid", res.Invalid).
		Dur("duration", res.Duration()).
		Msg("ingestion finished")

	if p.OnComplete != nil {
		p.OnComplete(res)
	}
	return res
}

// prepare runs src.Prepare on its own goroutine and waits for it or ctx.
func (p *Pipeline) prepare(ctx context.Context, src Source) (*Feed, error) {
	done := make(chan prepared, 1)
	go func() {
		feed, err := src.Prepare(ctx)
		done <- prepared{feed: feed, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(r.err, ErrSourceUnavailable) {
				r.err = fmt.Errorf("%w: %w", ErrSourceUnavailable, r.err)
			}
			return nil, r.err
		}
		if r.feed == nil {
			r.feed = &Feed{}
		}
		return r.feed, nil
	}
}

func (p *Pipeline) finalize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	agg, err := p.Store.RecomputeAggregates(ctx)
	if err != nil {
		return fmt.Errorf("recompute aggregates: %w", err)
	}
	xglog.FromContext(ctx).Debug().
		Int64("generation", agg.Generation).
		Int64("programs", agg.NumPrograms).
		Int64("max_length", agg.MaxProgramLength).
		Msg("aggregates recomputed")

	if p.OnSynced != nil {
		if err := p.OnSynced(ctx); err != nil {
			return fmt.Errorf("sync: %w", err)
		}
	}
	return nil
}
