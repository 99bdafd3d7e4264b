// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmltv

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/ingest"
	"github.com/ManuGH/xg2g-epg/internal/store"
	"github.com/ManuGH/xg2g-epg/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listings = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="tv_grab_test">
  <channel id="ard.de">
    <display-name>1</display-name>
    <display-name>ARD</display-name>
    <display-name>Das Erste</display-name>
  </channel>
  <channel id="zdf.de">
    <display-name>2</display-name>
    <display-name>ZDF</display-name>
  </channel>
  <channel id="shop.de">
    <display-name>99</display-name>
    <display-name>Shop</display-name>
  </channel>
  <programme start="20250101201500 +0000" channel="ard.de">
    <title>Wetter</title>
  </programme>
  <programme start="20250101200000 +0000" stop="20250101201500 +0000" channel="ard.de">
    <title>Tagesschau</title>
    <category>News</category>
  </programme>
  <programme start="20250101190000 +0100" stop="20250101194500 +0100" channel="zdf.de">
    <title>heute</title>
  </programme>
  <programme start="20250101203000 +0000" stop="20250101220000 +0000" channel="ard.de">
    <title>Tatort</title>
  </programme>
  <programme start="20250101200000 +0000" channel="zdf.de">
    <desc>No title here</desc>
  </programme>
  <programme start="tomorrow" channel="zdf.de">
    <title>Broken</title>
  </programme>
  <programme start="20250101200000 +0000" stop="20250101210000 +0000" channel="shop.de">
    <title>Offers</title>
  </programme>
  <programme start="20250101200000 +0000" stop="20250101210000 +0000" channel="nowhere">
    <title>Lost</title>
  </programme>
</tv>`

const t2000 = 1735761600 // 2025-01-01T20:00:00Z

type rec struct {
	Kind    string
	Key     string
	Title   string
	Start   int64
	Open    bool
	TunerID string
}

func flatten(feed *ingest.Feed) []rec {
	var out []rec
	for _, e := range feed.Events {
		switch e.Kind {
		case ingest.EventChannel:
			r := rec{Kind: "channel", Key: e.Channel.Key, Title: e.Channel.LongName}
			if len(e.Channel.TunerIDs) > 0 {
				r.TunerID = e.Channel.TunerIDs[0]
			}
			out = append(out, r)
		case ingest.EventProgram:
			p := e.Program
			out = append(out, rec{Kind: "program", Key: p.ChannelKey, Title: p.Program.Title, Start: p.Program.Start, Open: p.Open})
		}
	}
	return out
}

func TestParse(t *testing.T) {
	exclude, err := ingest.NewPolicy("", "", []string{"99"})
	require.NoError(t, err)

	feed, err := Parse(context.Background(), strings.NewReader(listings), ParseOptions{
		Location: time.UTC,
		Exclude:  exclude,
	})
	require.NoError(t, err)

	// Programmes are stably sorted by start; "heute" starts at 18:00Z.
	want := []rec{
		{Kind: "channel", Key: "ard.de", Title: "Das Erste", TunerID: "1"},
		{Kind: "channel", Key: "zdf.de", Title: "ZDF", TunerID: "2"},
		{Kind: "program", Key: "zdf.de", Title: "heute", Start: t2000 - 7200},
		{Kind: "program", Key: "ard.de", Title: "Tagesschau", Start: t2000},
		{Kind: "program", Key: "nowhere", Title: "Lost", Start: t2000},
		{Kind: "program", Key: "ard.de", Title: "Wetter", Start: t2000 + 900, Open: true},
		{Kind: "program", Key: "ard.de", Title: "Tatort", Start: t2000 + 1800},
	}
	if diff := cmp.Diff(want, flatten(feed)); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, feed.Total)
	assert.Equal(t, 1, feed.Invalid)
}

func TestParseBackfillsChannelNames(t *testing.T) {
	doc := `<tv>
  <channel id="zdfhd.de"><display-name>12</display-name><display-name>ZDF HD</display-name></channel>
  <channel id="3sat.de"><display-name>3sat</display-name></channel>
  <channel id="bare.de"></channel>
</tv>`
	feed, err := Parse(context.Background(), strings.NewReader(doc), ParseOptions{Location: time.UTC})
	require.NoError(t, err)

	var names []string
	for _, e := range feed.Events {
		names = append(names, e.Channel.Name)
	}
	assert.Equal(t, []string{"ZDF HD", "3sat", "bare.de"}, names)
}

func TestParseRejectsMalformedDocument(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader("<tv><channel id='x'>"), ParseOptions{})
	assert.Error(t, err)
}

func TestParseHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, strings.NewReader(listings), ParseOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRequiresDataFile(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPrepareMissingFile(t *testing.T) {
	src, err := New(Config{DataFile: filepath.Join(t.TempDir(), "missing.xml")})
	require.NoError(t, err)

	_, err = src.Prepare(context.Background())
	assert.ErrorIs(t, err, ingest.ErrSourceUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImportIntoStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tv.xml")
	require.NoError(t, os.WriteFile(path, []byte(listings), 0o600))
	src, err := New(Config{DataFile: path, Exclude: []string{"shop.de"}, Location: time.UTC})
	require.NoError(t, err)
	s := testutil.NewStore(t)

	res := (&ingest.Pipeline{Store: s}).Run(context.Background(), src)

	require.NoError(t, res.Err)
	assert.Equal(t, ingest.OutcomePartial, res.Outcome)
	assert.Equal(t, 2, res.Channels)
	assert.Equal(t, 4, res.Programs)
	assert.Equal(t, 1, res.Orphans)
	assert.Equal(t, 1, res.Invalid)

	rows, err := s.Query(context.Background(), store.Query{})
	require.NoError(t, err)
	got := map[string][2]int64{}
	for _, r := range rows {
		got[r.Title] = [2]int64{r.Start, r.Stop}
	}
	assert.Equal(t, [2]int64{t2000 + 900, t2000 + 1800}, got["Wetter"], "open record closes at the next start")
	assert.Equal(t, [2]int64{t2000 - 7200, t2000 - 4500}, got["heute"])
}
