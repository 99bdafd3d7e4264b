// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guide

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Annotator contributes grid-time metadata for a program. Implementations
// must not modify the guide.
type Annotator interface {
	Annotate(ctx context.Context, programID int64) map[string]any
}

// AnnotatorFunc adapts a function to Annotator.
type AnnotatorFunc func(ctx context.Context, programID int64) map[string]any

func (f AnnotatorFunc) Annotate(ctx context.Context, programID int64) map[string]any {
	return f(ctx, programID)
}

// AnnotatorID identifies a registration.
type AnnotatorID uint64

type annotatorEntry struct {
	id AnnotatorID
	a  Annotator
}

// RegisterAnnotator adds a to the grid annotators. Annotators run in
// registration order and later ones win on key collisions.
func (g *Guide) RegisterAnnotator(a Annotator) AnnotatorID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextAnnID++
	g.annotators = append(g.annotators, annotatorEntry{id: g.nextAnnID, a: a})
	return g.nextAnnID
}

// UnregisterAnnotator removes a registration. It reports whether id was registered.
func (g *Guide) UnregisterAnnotator(id AnnotatorID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := slices.IndexFunc(g.annotators, func(e annotatorEntry) bool { return e.id == id })
	if i < 0 {
		return false
	}
	g.annotators = slices.Delete(g.annotators, i, i+1)
	return true
}

func (g *Guide) annotatorSnapshot() []Annotator {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Annotator, len(g.annotators))
	for i, e := range g.annotators {
		out[i] = e.a
	}
	return out
}

// Grid returns one bucket per entry of chans holding the programs that overlap
// [start, stop), in start order, each with its Meta filled by the annotators.
// Buckets are never nil.
func (g *Guide) Grid(ctx context.Context, chans []*epg.Channel, start, stop time.Time) ([][]*epg.Program, error) {
	ctx, span := g.tracer.Start(ctx, "guide.grid")
	span.SetAttributes(telemetry.RangeAttributes(len(chans), start, stop)...)
	begin := time.Now()

	out := make([][]*epg.Program, len(chans))
	for i := range out {
		out[i] = []*epg.Program{}
	}
	if len(chans) == 0 {
		telemetry.EndSpan(span, nil)
		return out, nil
	}

	progs, err := g.search(ctx, Query{Channels: chans, Time: Between(start, stop)})
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}

	anns := g.annotatorSnapshot()
	idx := 0
	placed := 0
	for _, p := range progs {
		p.Meta = epg.Meta{}
		for _, a := range anns {
			maps.Copy(p.Meta, a.Annotate(ctx, p.ID))
		}

		// Programs arrive grouped by channel, so the last bucket usually matches.
		if chans[idx] == nil || chans[idx].ID != p.Channel.ID {
			i := slices.IndexFunc(chans, func(c *epg.Channel) bool { return c != nil && c.ID == p.Channel.ID })
			if i < 0 {
				continue
			}
			idx = i
		}
		out[idx] = append(out[idx], p)
		placed++
	}

	span.SetAttributes(attribute.Int(telemetry.GuideResultsKey, placed))
	telemetry.EndSpan(span, nil)
	metrics.ObserveSearch("grid", time.Since(begin), placed)
	return out, nil
}
