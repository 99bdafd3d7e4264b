// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guide

import (
	"context"
	"slices"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/store"
	"github.com/ManuGH/xg2g-epg/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TimeFilter restricts a search to programs running at an instant or
// overlapping a range. Build one with At or Between.
type TimeFilter struct {
	start, stop time.Time
	instant     bool
}

// At matches programs running at t.
func At(t time.Time) *TimeFilter { return &TimeFilter{start: t, instant: true} }

// Between matches programs overlapping [start, stop). A zero stop leaves the
// range open-ended.
func Between(start, stop time.Time) *TimeFilter { return &TimeFilter{start: start, stop: stop} }

func (f *TimeFilter) kind() string {
	switch {
	case f == nil:
		return "none"
	case f.instant:
		return "instant"
	default:
		return "range"
	}
}

// conds turns the filter into bounded predicates on start and stop. Boundaries
// move one second inward so that back-to-back programs do not both match at
// their shared edge. maxLen is the longest stored program; no program can
// start earlier than qs-maxLen and still overlap.
func (f *TimeFilter) conds(maxLen int64) []store.Cond {
	var qs, qe int64
	if f.instant {
		qs = f.start.Unix() + 1
		qe = qs
	} else {
		qs = f.start.Unix() + 1
		if !f.stop.IsZero() {
			qe = f.stop.Unix() - 1
		}
	}
	if qe > 0 {
		return []store.Cond{
			{Attr: "start", Expr: store.Range(qs-maxLen, qe)},
			{Attr: "stop", Expr: store.GE(qs)},
		}
	}
	return []store.Cond{{Attr: "start", Expr: store.GE(qs - maxLen)}}
}

// Query describes a search. Zero fields do not filter.
type Query struct {
	// Channels restricts results to these channels. nil searches all; a
	// non-nil slice without bound channels matches nothing.
	Channels []*epg.Channel
	Time     *TimeFilter
	// Where filters searchable program attributes by name.
	Where map[string]store.Expr
	// Genres and Keywords must all match their inverted index.
	Genres   []string
	Keywords []string
	Limit    int
}

func (g *Guide) storeQuery(q Query) store.Query {
	sq := store.Query{Limit: q.Limit}
	if q.Channels != nil {
		sq.Parents = make([]int64, 0, len(q.Channels))
		for _, ch := range q.Channels {
			if ch.Bound() {
				sq.Parents = append(sq.Parents, ch.ID)
			}
		}
	}
	if q.Time != nil {
		sq.Where = append(sq.Where, q.Time.conds(g.MaxProgramLength())...)
	}
	keys := make([]string, 0, len(q.Where))
	for k := range q.Where {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		sq.Where = append(sq.Where, store.Cond{Attr: k, Expr: q.Where[k]})
	}
	if len(q.Genres) > 0 || len(q.Keywords) > 0 {
		sq.Terms = map[string][]string{}
		if len(q.Genres) > 0 {
			sq.Terms[store.IndexGenres] = q.Genres
		}
		if len(q.Keywords) > 0 {
			sq.Terms[store.IndexKeywords] = q.Keywords
		}
	}
	return sq
}

func (g *Guide) startSpan(ctx context.Context, name string, q Query) (context.Context, trace.Span) {
	var start, stop time.Time
	if q.Time != nil {
		start, stop = q.Time.start, q.Time.stop
	}
	return g.tracer.Start(ctx, name, trace.WithAttributes(telemetry.RangeAttributes(len(q.Channels), start, stop)...))
}

// SearchRows runs q and returns the raw store rows, ordered by channel id,
// start and id, without resolving channels.
func (g *Guide) SearchRows(ctx context.Context, q Query) ([]store.Row, error) {
	ctx, span := g.startSpan(ctx, "guide.search_rows", q)
	begin := time.Now()
	rows, err := g.store.Query(ctx, g.storeQuery(q))
	span.SetAttributes(attribute.Int(telemetry.GuideResultsKey, len(rows)))
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSearch("rows", time.Since(begin), len(rows))
	return rows, nil
}

// Search runs q and returns programs bound to their registered channel.
// Rows of channels missing from the registry are dropped.
func (g *Guide) Search(ctx context.Context, q Query) ([]*epg.Program, error) {
	ctx, span := g.startSpan(ctx, "guide.search", q)
	begin := time.Now()
	progs, err := g.search(ctx, q)
	span.SetAttributes(attribute.Int(telemetry.GuideResultsKey, len(progs)))
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSearch(q.Time.kind(), time.Since(begin), len(progs))
	return progs, nil
}

func (g *Guide) search(ctx context.Context, q Query) ([]*epg.Program, error) {
	rows, err := g.store.Query(ctx, g.storeQuery(q))
	if err != nil {
		return nil, err
	}

	out := make([]*epg.Program, 0, len(rows))
	var (
		parent  int64 = -1
		ch      *epg.Channel
		dropped int
	)
	// Rows arrive grouped by parent, so the channel is resolved once per group.
	for i := range rows {
		r := &rows[i]
		if r.ParentID != parent {
			parent = r.ParentID
			ch, _ = g.reg.ByID(parent)
		}
		if ch == nil {
			dropped++
			continue
		}
		out = append(out, r.Program(ch))
	}
	metrics.AddSearchDropped(dropped)
	return out, nil
}
