// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestGenerateXMLTV_RoundTrip(t *testing.T) {
	ard := &Channel{ID: 7, TunerIDs: []string{"1"}, Name: "ARD", LongName: "Das Erste"}
	orphan := &Channel{ID: 99, Name: "Gone"}
	want := &Program{
		Channel:     ard,
		Start:       1735761600,
		Stop:        1735762500,
		Title:       "Tagesschau",
		Description: "Nachrichten",
		Subtitle:    "Ausgabe 20 Uhr",
		Episode:     "S1E2",
		Genres:      []string{"News", "Info"},
		Category:    "News",
		Date:        1735689600,
		Year:        2025,
		Rating:      "0",
		Advisories:  []string{"language"},
		Score:       3,
		Flags:       FlagHDTV | FlagSubtitled | FlagRerun | FlagPremiere,
		Credits:     []Credit{{Role: "director", Name: "A"}, {Role: "actor", Name: "B"}},
	}

	tv := GenerateXMLTV([]*Channel{ard}, []*Program{want, {Channel: orphan, Title: "x"}})
	require.Len(t, tv.Programmes, 1, "programs of unexported channels are dropped")

	var buf bytes.Buffer
	require.NoError(t, WriteXMLTV(&buf, tv))

	chans, progs := decodeAll(t, &buf)
	require.Len(t, chans, 1)
	require.Len(t, progs, 1)

	tuners, name, long := chans[0].ChannelIdentity()
	require.Equal(t, ard.TunerIDs, tuners)
	require.Equal(t, ard.Name, name)
	require.Equal(t, ard.LongName, long)

	got, open, err := progs[0].ToProgram(nil)
	require.NoError(t, err)
	require.False(t, open)
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Program{}, "Channel")); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFile_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guide.xml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	tv := GenerateXMLTV([]*Channel{{ID: 1, Name: "ZDF"}}, nil)
	require.NoError(t, WriteFile(context.Background(), path, tv))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `<channel id="1.xg2g-epg">`)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
}
