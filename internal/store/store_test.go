// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/persistence/sqlite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "epg.db"), sqlite.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range CreateStatements {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return New(db, sqlite.RetryPolicy{Retries: 2, Initial: time.Millisecond, Max: 5 * time.Millisecond})
}

func mustChannel(t *testing.T, s *Store, id ChannelIdentity) *epg.Channel {
	t.Helper()
	var ch *epg.Channel
	require.NoError(t, s.Batch(context.Background(), func(ctx context.Context, tx *Tx) error {
		var err error
		ch, _, err = tx.EnsureChannel(ctx, id)
		return err
	}))
	return ch
}

func mustProgram(t *testing.T, s *Store, p *epg.Program) int64 {
	t.Helper()
	var id int64
	require.NoError(t, s.Batch(context.Background(), func(ctx context.Context, tx *Tx) error {
		var err error
		id, _, err = tx.AddProgram(ctx, p)
		return err
	}))
	return id
}

func TestEnsureChannelMatchesAndMerges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var first, byTuner, byName *epg.Channel
	var created [3]bool
	require.NoError(t, s.Batch(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		if first, created[0], err = tx.EnsureChannel(ctx, ChannelIdentity{TunerIDs: []string{"7"}, Name: "ARD"}); err != nil {
			return err
		}
		if byTuner, created[1], err = tx.EnsureChannel(ctx, ChannelIdentity{TunerIDs: []string{"7", "107"}, Name: "Das Erste", LongName: "Das Erste HD"}); err != nil {
			return err
		}
		byName, created[2], err = tx.EnsureChannel(ctx, ChannelIdentity{Name: "ARD"})
		return err
	}))

	assert.Equal(t, [3]bool{true, false, false}, created)
	assert.Equal(t, first.ID, byTuner.ID)
	assert.Equal(t, first.ID, byName.ID)
	assert.Equal(t, []string{"7", "107"}, byTuner.TunerIDs)
	assert.Equal(t, "Das Erste HD", byTuner.LongName)
	// the name is the registry key and is never rewritten
	assert.Equal(t, "ARD", byTuner.Name)

	chans, err := s.Channels(ctx)
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, []string{"7", "107"}, chans[0].TunerIDs)
}

func TestEnsureChannelEmptyTunerIDsStoredAsList(t *testing.T) {
	s := newTestStore(t)
	ch := mustChannel(t, s, ChannelIdentity{Name: "Radio"})
	assert.NotNil(t, ch.TunerIDs)

	chans, err := s.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Empty(t, chans[0].TunerIDs)
}

func TestAddProgramRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := mustChannel(t, s, ChannelIdentity{Name: "A"})

	for name, p := range map[string]*epg.Program{
		"unbound":     {Channel: &epg.Channel{Name: "x"}, Start: 1, Stop: 2, Title: "t"},
		"nil channel": {Start: 1, Stop: 2, Title: "t"},
		"empty":       {Channel: ch, Start: 5, Stop: 5, Title: "t"},
		"reversed":    {Channel: ch, Start: 6, Stop: 5, Title: "t"},
	} {
		t.Run(name, func(t *testing.T) {
			err := s.Batch(ctx, func(ctx context.Context, tx *Tx) error {
				_, _, err := tx.AddProgram(ctx, p)
				return err
			})
			assert.ErrorIs(t, err, ErrBadProgram)
		})
	}
}

func TestAddProgramReplacesOverlap(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := mustChannel(t, s, ChannelIdentity{Name: "A"})
	b := mustChannel(t, s, ChannelIdentity{Name: "B"})

	mustProgram(t, s, &epg.Program{Channel: a, Start: 100, Stop: 200, Title: "Old News"})
	mustProgram(t, s, &epg.Program{Channel: a, Start: 200, Stop: 300, Title: "Adjacent"})
	mustProgram(t, s, &epg.Program{Channel: b, Start: 100, Stop: 200, Title: "Other Channel"})

	var replaced int64
	require.NoError(t, s.Batch(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		_, replaced, err = tx.AddProgram(ctx, &epg.Program{Channel: a, Start: 150, Stop: 200, Title: "New News"})
		return err
	}))
	assert.Equal(t, int64(1), replaced)

	rows, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	var titles []string
	for _, r := range rows {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"New News", "Adjacent", "Other Channel"}, titles)

	// terms of the replaced program went with it
	terms, err := s.TermList(ctx, IndexKeywords, "old", nil)
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := mustChannel(t, s, ChannelIdentity{Name: "A"})
	b := mustChannel(t, s, ChannelIdentity{Name: "B"})

	mustProgram(t, s, &epg.Program{Channel: b, Start: 10, Stop: 20, Title: "Tatort", Genres: []string{"Crime"}, Year: 2020})
	mustProgram(t, s, &epg.Program{Channel: a, Start: 30, Stop: 40, Title: "Tagesschau", Description: "Nachrichten des Tages"})
	mustProgram(t, s, &epg.Program{Channel: a, Start: 10, Stop: 20, Title: "Sportschau", Genres: []string{"Sport", "Football"}})

	t.Run("ordered by parent then start", func(t *testing.T) {
		rows, err := s.Query(ctx, Query{})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []int64{a.ID, a.ID, b.ID}, []int64{rows[0].ParentID, rows[1].ParentID, rows[2].ParentID})
		assert.Equal(t, "Sportschau", rows[0].Title)
	})

	t.Run("empty parents match nothing", func(t *testing.T) {
		rows, err := s.Query(ctx, Query{Parents: []int64{}})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("parent filter", func(t *testing.T) {
		rows, err := s.Query(ctx, Query{Parents: []int64{b.ID}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Tatort", rows[0].Title)
		assert.Equal(t, []string{"Crime"}, rows[0].Genres)
	})

	t.Run("attribute expressions", func(t *testing.T) {
		rows, err := s.Query(ctx, Query{Where: []Cond{
			{Attr: "start", Expr: Range(5, 15)},
			{Attr: "year", Expr: GE(2000)},
		}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Tatort", rows[0].Title)

		rows, err = s.Query(ctx, Query{Where: []Cond{{Attr: "title", Expr: Like("%schau")}}})
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		rows, err = s.Query(ctx, Query{Where: []Cond{{Attr: "title", Expr: In()}}})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("inverted terms all match", func(t *testing.T) {
		rows, err := s.Query(ctx, Query{Terms: map[string][]string{IndexKeywords: {"NACHRICHTEN tages"}}})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Tagesschau", rows[0].Title)

		rows, err = s.Query(ctx, Query{Terms: map[string][]string{IndexGenres: {"sport", "crime"}}})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := s.Query(ctx, Query{Where: []Cond{{Attr: "nope", Expr: Eq(1)}}})
		assert.ErrorIs(t, err, ErrUnknownAttr)
		_, err = s.Query(ctx, Query{Where: []Cond{{Attr: "episode", Expr: Eq("1")}}})
		assert.ErrorIs(t, err, ErrNotSearchable)
		_, err = s.Query(ctx, Query{Where: []Cond{{Attr: "start", Expr: Expr{Op: OpRange, Values: []any{1}}}}})
		assert.ErrorIs(t, err, ErrInvalidExpr)
		_, err = s.Query(ctx, Query{Terms: map[string][]string{"actors": {"x"}}})
		assert.ErrorIs(t, err, ErrUnknownIndex)
	})
}

func TestRowProgramAndAttrs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := mustChannel(t, s, ChannelIdentity{Name: "A"})
	in := &epg.Program{
		Channel: ch, Start: 100, Stop: 200, Title: "Film", Rating: "FSK 12",
		Advisories: []string{"violence"}, Score: 3, Flags: epg.FlagHDTV | epg.FlagRerun,
		Credits: []epg.Credit{{Role: "director", Name: "Someone"}},
	}
	id := mustProgram(t, s, in)

	rows, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0].Program(ch)
	assert.Equal(t, id, got.ID)
	assert.Same(t, ch, got.Channel)
	assert.Equal(t, in.Credits, got.Credits)
	assert.True(t, got.Flags.Has(epg.FlagRerun))
	assert.Equal(t, []any{"Film", int64(100), nil}, rows[0].Attrs("title", "start", "bogus"))
}

func TestTermList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := mustChannel(t, s, ChannelIdentity{Name: "A"})
	mustProgram(t, s, &epg.Program{Channel: ch, Start: 0, Stop: 10, Title: "Star Trek", Genres: []string{"Science Fiction"}})
	mustProgram(t, s, &epg.Program{Channel: ch, Start: 10, Stop: 20, Title: "Star Wars", Genres: []string{"Science Fiction", "Action"}})
	mustProgram(t, s, &epg.Program{Channel: ch, Start: 20, Stop: 30, Title: "Stargate 100%"})

	all, err := s.TermList(ctx, IndexKeywords, "sta", nil)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{"star", 2}, {"stargate", 1}}, all)

	assoc, err := s.TermList(ctx, IndexKeywords, "", []string{"star"})
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{"trek", 1}, {"wars", 1}}, assoc)

	genres, err := s.TermList(ctx, IndexGenres, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{"fiction", 2}, {"science", 2}, {"action", 1}}, genres)

	// LIKE wildcards in the prefix are literal
	none, err := s.TermList(ctx, IndexKeywords, "%", nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.TermList(ctx, "actors", "", nil)
	assert.ErrorIs(t, err, ErrUnknownIndex)
}

func TestTokenize(t *testing.T) {
	kw, _ := GuideSchema.Index(IndexKeywords)
	assert.Equal(t, []string{"déjà", "vu", "x2"}, Tokenize("Déjà-vu a X2 DÉJÀ", kw))
	assert.Empty(t, Tokenize("a b c", kw))
}

func TestRecomputeAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	agg, err := s.Aggregates(ctx)
	require.NoError(t, err)
	assert.Equal(t, Aggregates{}, agg)

	ch := mustChannel(t, s, ChannelIdentity{Name: "A"})
	mustProgram(t, s, &epg.Program{Channel: ch, Start: 0, Stop: 100, Title: "short"})
	mustProgram(t, s, &epg.Program{Channel: ch, Start: 100, Stop: 3700, Title: "long"})

	first, err := s.RecomputeAggregates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), first.MaxProgramLength)
	assert.Equal(t, int64(2), first.NumPrograms)
	assert.Equal(t, int64(1), first.Generation)

	second, err := s.RecomputeAggregates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Generation)

	stored, err := s.Aggregates(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, stored)

	v, ok, err := s.Metadata(ctx, MetaNumPrograms)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok, err = s.Metadata(ctx, "epg::nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReindexTerms(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ch := mustChannel(t, s, ChannelIdentity{Name: "A"})
	mustProgram(t, s, &epg.Program{Channel: ch, Start: 0, Stop: 10, Title: "Quiz Night", Genres: []string{"Show"}})

	_, err := s.DB().ExecContext(ctx, "DELETE FROM inverted_terms")
	require.NoError(t, err)

	require.NoError(t, sqlite.RunTx(ctx, s.DB(), sqlite.DefaultRetryPolicy(), func(tx *sql.Tx) error {
		return ReindexTerms(ctx, tx)
	}))

	kw, err := s.TermList(ctx, IndexKeywords, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{"night", 1}, {"quiz", 1}}, kw)
	g, err := s.TermList(ctx, IndexGenres, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{"show", 1}}, g)
}

// failingCursor stops at once and reports a dropped connection.
type failingCursor struct{ closed bool }

func (c *failingCursor) Next() bool        { return false }
func (c *failingCursor) Scan(...any) error { return nil }
func (c *failingCursor) Err() error        { return sql.ErrConnDone }
func (c *failingCursor) Close() error      { c.closed = true; return nil }

func TestCollectRowsReportsIterationError(t *testing.T) {
	cur := &failingCursor{}
	rows, err := collectRows(cur)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Empty(t, rows)
	assert.True(t, cur.closed)
}
