// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channels

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xg2g-epg/internal/epg"
)

type fakeSource struct {
	chans []*epg.Channel
	err   error
}

func (f fakeSource) Channels(context.Context) ([]*epg.Channel, error) { return f.chans, f.err }

func names(chans []*epg.Channel) []string {
	out := make([]string, len(chans))
	for i, ch := range chans {
		out[i] = ch.Name
	}
	return out
}

func TestSyncLookups(t *testing.T) {
	r := NewRegistry()
	ard := &epg.Channel{ID: 1, TunerIDs: []string{"1", "101"}, Name: "ARD", LongName: "Das Erste"}
	zdf := &epg.Channel{ID: 2, TunerIDs: []string{"2"}, Name: "ZDF"}
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{ard, zdf}}))

	ch, ok := r.Get("ARD")
	require.True(t, ok)
	assert.Same(t, ard, ch)

	ch, ok = r.ByID(2)
	require.True(t, ok)
	assert.Same(t, zdf, ch)

	ch, ok = r.ByTunerID("101")
	require.True(t, ok)
	assert.Same(t, ard, ch)

	_, ok = r.ByTunerID("3")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
	assert.Empty(t, r.Conflicts())
}

func TestSyncTunerConflictFirstWins(t *testing.T) {
	r := NewRegistry()
	first := &epg.Channel{ID: 1, TunerIDs: []string{"7"}, Name: "First"}
	second := &epg.Channel{ID: 2, TunerIDs: []string{"8", "7"}, Name: "Second"}
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{first, second}}))

	owner, ok := r.ByTunerID("7")
	require.True(t, ok)
	assert.Same(t, first, owner)

	// the loser keeps its other ids
	owner, ok = r.ByTunerID("8")
	require.True(t, ok)
	assert.Same(t, second, owner)

	conflicts := r.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "7", conflicts[0].TunerID)
	assert.Same(t, first, conflicts[0].Owner)
	assert.Same(t, second, conflicts[0].Rejected)
}

func TestSyncNameCollisionLastWins(t *testing.T) {
	r := NewRegistry()
	a := &epg.Channel{ID: 1, Name: "Dup"}
	b := &epg.Channel{ID: 2, Name: "Dup"}
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{a, b}}))

	ch, ok := r.Get("Dup")
	require.True(t, ok)
	assert.Same(t, b, ch)
	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.List(false), 1)

	// both stay reachable by id
	_, ok = r.ByID(1)
	assert.True(t, ok)
}

func TestSyncErrorKeepsPrevious(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{{ID: 1, Name: "Keep"}}}))

	err := r.Sync(context.Background(), fakeSource{err: errors.New("boom")})
	require.Error(t, err)
	_, ok := r.Get("Keep")
	assert.True(t, ok)
}

func TestSyncReplacesContents(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{{ID: 1, Name: "Old", TunerIDs: []string{"1"}}}}))
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{{ID: 2, Name: "New"}}}))

	_, ok := r.Get("Old")
	assert.False(t, ok)
	_, ok = r.ByTunerID("1")
	assert.False(t, ok)
	assert.Equal(t, []string{"New"}, names(r.List(false)))
}

func TestListSortedNumericAware(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{
		{ID: 1, Name: "Channel 10"},
		{ID: 2, Name: "Channel 2"},
		{ID: 3, Name: "arte"},
		{ID: 4, Name: "BBC One"},
		{ID: 5, Name: "Channel 1"},
	}}))

	assert.Equal(t, []string{"Channel 10", "Channel 2", "arte", "BBC One", "Channel 1"}, names(r.List(false)))
	assert.Equal(t, []string{"arte", "BBC One", "Channel 1", "Channel 2", "Channel 10"}, names(r.List(true)))
}

func TestFind(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Sync(context.Background(), fakeSource{chans: []*epg.Channel{
		{ID: 1, Name: "Das Erste HD"},
		{ID: 2, Name: "ProSieben"},
	}}))

	ch, ok := r.Find("Das Erste HD", 0)
	require.True(t, ok)
	assert.Equal(t, int64(1), ch.ID)

	ch, ok = r.Find("das erste", 0)
	require.True(t, ok)
	assert.Equal(t, int64(1), ch.ID)

	ch, ok = r.Find("Pro Sieben", 2)
	require.True(t, ok)
	assert.Equal(t, int64(2), ch.ID)

	_, ok = r.Find("Kabel Eins", 2)
	assert.False(t, ok)
}

func TestNewUnbound(t *testing.T) {
	tests := []struct {
		name               string
		tuner              []string
		chName, long       string
		wantName, wantLong string
	}{
		{name: "all set", tuner: []string{"5"}, chName: "n", long: "l", wantName: "n", wantLong: "l"},
		{name: "name from tuner", tuner: []string{"5", "6"}, long: "l", wantName: "5", wantLong: "l"},
		{name: "name from long", long: "Long", wantName: "Long", wantLong: "Long"},
		{name: "long from name", chName: "n", wantName: "n", wantLong: "n"},
		{name: "only tuner", tuner: []string{"9"}, wantName: "9", wantLong: "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := NewUnbound(tt.tuner, tt.chName, tt.long)
			require.NoError(t, err)
			assert.False(t, ch.Bound())
			assert.Equal(t, tt.wantName, ch.Name)
			assert.Equal(t, tt.wantLong, ch.LongName)
		})
	}

	_, err := NewUnbound(nil, "", "")
	assert.ErrorIs(t, err, ErrEmptyChannel)
	_, err = NewUnbound([]string{""}, "", "")
	assert.ErrorIs(t, err, ErrEmptyChannel)
}
