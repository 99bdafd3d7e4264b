// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package schema

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/xg2g-epg/internal/persistence/sqlite"
	"github.com/ManuGH/xg2g-epg/internal/store"
)

// legacyLayout is the 0.0.0 layout: no rating/advisory/score/flags/credits
// columns and no inverted term table.
var legacyLayout = []string{
	`CREATE TABLE versioning (thing TEXT PRIMARY KEY, version TEXT NOT NULL)`,
	`CREATE TABLE metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	`CREATE TABLE channels (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		tuner_id  TEXT NOT NULL DEFAULT '[]',
		name      TEXT NOT NULL DEFAULT '',
		long_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE programs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id   INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
		start       INTEGER NOT NULL,
		stop        INTEGER NOT NULL,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		subtitle    TEXT NOT NULL DEFAULT '',
		episode     TEXT NOT NULL DEFAULT '',
		genres      TEXT NOT NULL DEFAULT '[]',
		category    TEXT NOT NULL DEFAULT '',
		date        INTEGER NOT NULL DEFAULT 0,
		year        INTEGER NOT NULL DEFAULT 0
	)`,
	`INSERT INTO versioning (thing, version) VALUES ('sql', '0.0.0')`,
	`INSERT INTO channels (tuner_id, name, long_name) VALUES ('["1"]', 'ARD', 'Das Erste')`,
	`INSERT INTO programs (parent_id, start, stop, title, description, genres)
		VALUES (1, 1000, 2000, 'Tagesschau', 'Nachrichten', '["News"]')`,
}

func testConfig() sqlite.Config {
	cfg := sqlite.DefaultConfig()
	cfg.Retry = sqlite.RetryPolicy{Retries: 2, Initial: time.Millisecond, Max: 5 * time.Millisecond}
	return cfg
}

func writeLegacy(t *testing.T, path string, version string) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), path, testConfig())
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range legacyLayout {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	_, err = db.Exec("UPDATE versioning SET version = ?", version)
	require.NoError(t, err)
}

func openOK(t *testing.T, m *Manager) (*Outcome, *sql.DB) {
	t.Helper()
	out, db, err := m.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return out, db
}

func version(t *testing.T, db *sql.DB) string {
	t.Helper()
	var v string
	require.NoError(t, db.QueryRow("SELECT version FROM versioning WHERE thing = 'sql'").Scan(&v))
	return v
}

func TestOpenMissingCreatesLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	m := NewManager(path, testConfig())

	out, db := openOK(t, m)
	assert.Equal(t, &Outcome{State: StateMissing, To: Latest}, out)
	assert.Equal(t, Latest, version(t, db))
	require.NoError(t, db.Close())

	out, db = openOK(t, m)
	assert.Equal(t, StateCurrent, out.State)
	assert.Empty(t, out.Applied)
	assert.Equal(t, Latest, version(t, db))
}

func TestOpenZeroSizeFileIsMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	out, db := openOK(t, NewManager(path, testConfig()))
	assert.Equal(t, StateMissing, out.State)
	assert.Equal(t, Latest, version(t, db))
}

func TestOpenCorrupt(t *testing.T) {
	t.Run("not a database", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "epg.db")
		garbage := []byte("this is definitely not an sqlite database file, just text padding it out")
		require.NoError(t, os.WriteFile(path, garbage, 0o600))

		out, db, err := NewManager(path, testConfig()).Open(context.Background())
		require.ErrorIs(t, err, ErrStoreCorrupt)
		assert.Nil(t, db)
		assert.Equal(t, StateCorrupt, out.State)

		// nothing is deleted
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, garbage, got)
	})

	t.Run("no versioning table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "epg.db")
		db, err := sqlite.Open(context.Background(), path, testConfig())
		require.NoError(t, err)
		_, err = db.Exec("CREATE TABLE something (x INTEGER)")
		require.NoError(t, err)
		require.NoError(t, db.Close())

		out, _, err := NewManager(path, testConfig()).Open(context.Background())
		require.ErrorIs(t, err, ErrStoreCorrupt)
		assert.Equal(t, StateCorrupt, out.State)
	})
}

func TestRecreateBacksUpCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	require.NoError(t, os.WriteFile(path, []byte("garbage garbage garbage garbage garbage garbage"), 0o600))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0o600))

	m := NewManager(path, testConfig())
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	out, db, err := m.Recreate(context.Background())
	require.NoError(t, err)
	defer db.Close()

	backup := path + ".corrupt-1700000000"
	assert.Equal(t, &Outcome{State: StateMissing, To: Latest, Backup: backup}, out)
	assert.FileExists(t, backup)
	assert.FileExists(t, backup+"-wal")
	assert.Equal(t, Latest, version(t, db))
}

func TestMigrateLegacyToLatest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "epg.db")
	writeLegacy(t, path, "0.0.0")

	m := NewManager(path, testConfig())
	out, db := openOK(t, m)
	assert.Equal(t, &Outcome{State: StateStale, From: "0.0.0", To: Latest, Applied: []string{"0.0.0->0.1.1"}}, out)
	assert.Equal(t, Latest, version(t, db))

	// existing rows survive with defaults for the new columns and are searchable
	s := store.New(db, testConfig().Retry)
	rows, err := s.Query(ctx, store.Query{Terms: map[string][]string{store.IndexKeywords: {"nachrichten"}}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Tagesschau", rows[0].Title)
	assert.Equal(t, []string{}, rows[0].Advisories)
	assert.Zero(t, rows[0].Flags)

	genres, err := s.TermList(ctx, store.IndexGenres, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []store.TermCount{{Term: "news", Count: 1}}, genres)
	require.NoError(t, db.Close())

	// a second open is a no-op: the hop is never applied twice
	out, db = openOK(t, m)
	assert.Equal(t, &Outcome{State: StateCurrent, From: Latest, To: Latest}, out)
	assert.Equal(t, Latest, version(t, db))
}

func TestOpenUnknownVersion(t *testing.T) {
	for _, v := range []string{"9.9.9", "0.0.5", "banana"} {
		t.Run(v, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "epg.db")
			writeLegacy(t, path, v)

			out, db, err := NewManager(path, testConfig()).Open(context.Background())
			require.ErrorIs(t, err, ErrUnknownSchemaVersion)
			assert.Nil(t, db)
			assert.Equal(t, StateUnknown, out.State)
			assert.Equal(t, v, out.From)
		})
	}
}

func TestFailedHopRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epg.db")
	writeLegacy(t, path, "0.0.0")

	hops := []Hop{
		{From: "0.0.0", To: "0.0.1", Statements: []string{`ALTER TABLE programs ADD COLUMN extra TEXT`}},
		{From: "0.0.1", To: "0.0.2", Statements: []string{`ALTER TABLE nope ADD COLUMN x TEXT`}},
	}
	out, _, err := NewManager(path, testConfig()).WithHops("0.0.2", hops).Open(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"0.0.0->0.0.1"}, out.Applied)

	// the first hop committed, the failing one left no trace
	db, err := sqlite.Open(context.Background(), path, testConfig())
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, "0.0.1", version(t, db))
}

func TestPlanOrdersHopsBySemver(t *testing.T) {
	hops := []Hop{
		{From: "0.10.0", To: "0.11.0"},
		{From: "0.2.0", To: "0.10.0"},
		{From: "0.1.0", To: "0.2.0"},
		{From: "0.1.0", To: "0.1.5"},
	}
	path, ok := plan(hops, "0.1.0", "0.11.0")
	require.True(t, ok)

	var names []string
	for _, h := range path {
		names = append(names, h.Name())
	}
	if diff := cmp.Diff([]string{"0.1.0->0.2.0", "0.2.0->0.10.0", "0.10.0->0.11.0"}, names); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}

	_, ok = plan(hops, "0.1.5", "0.11.0")
	assert.False(t, ok)
	_, ok = plan(hops, "0.12.0", "0.11.0")
	assert.False(t, ok)
}
