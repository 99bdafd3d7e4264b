// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guide

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/store"
)

// Keywords lists keyword index terms starting with prefix that occur on
// programs carrying every associated term, most frequent first.
func (g *Guide) Keywords(ctx context.Context, prefix string, associated ...string) ([]store.TermCount, error) {
	return g.terms(ctx, store.IndexKeywords, prefix, associated)
}

// Genres is Keywords for the genre index.
func (g *Guide) Genres(ctx context.Context, prefix string, associated ...string) ([]store.TermCount, error) {
	return g.terms(ctx, store.IndexGenres, prefix, associated)
}

// termKey includes the aggregates generation, so an entry written before an
// ingestion run is never read after it even if Clear did not reach it.
func termKey(generation int64, index, prefix string, associated []string) string {
	var b strings.Builder
	b.WriteString("terms:")
	b.WriteString(strconv.FormatInt(generation, 10))
	b.WriteByte(':')
	b.WriteString(index)
	b.WriteByte(':')
	b.WriteString(strconv.Quote(prefix))
	for _, a := range associated {
		b.WriteByte(':')
		b.WriteString(strconv.Quote(a))
	}
	return b.String()
}

func (g *Guide) terms(ctx context.Context, index, prefix string, associated []string) ([]store.TermCount, error) {
	key := termKey(g.Aggregates().Generation, index, prefix, associated)
	logger := xglog.FromContext(ctx)

	if raw, ok := g.cache.Get(ctx, key); ok {
		var out []store.TermCount
		err := json.Unmarshal(raw, &out)
		if err == nil {
			metrics.IncTermCache("hit")
			return out, nil
		}
		metrics.IncTermCache("error")
		logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable term cache entry")
		g.cache.Delete(ctx, key)
	} else {
		metrics.IncTermCache("miss")
	}

	out, err := g.store.TermList(ctx, index, prefix, associated)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []store.TermCount{}
	}
	if raw, err := json.Marshal(out); err == nil {
		g.cache.Set(ctx, key, raw, g.cacheTTL)
	}
	return out, nil
}
