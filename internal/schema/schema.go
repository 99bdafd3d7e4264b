// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package schema detects the state of the guide database on open and brings
// it to the latest layout: create when missing, migrate when stale, refuse
// when corrupt or of an unknown version.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"golang.org/x/mod/semver"

	"github.com/ManuGH/xg2g-epg/internal/store"
)

// Latest is the schema version this binary creates and migrates to.
const Latest = "0.1.1"

var (
	ErrStoreCorrupt         = errors.New("schema: store is corrupt")
	ErrUnknownSchemaVersion = errors.New("schema: unknown schema version")
)

// State is what Open found on disk.
type State string

const (
	StateMissing State = "missing"
	StateCorrupt State = "corrupt"
	StateStale   State = "stale"
	StateCurrent State = "current"
	StateUnknown State = "unknown"
)

// Outcome reports what Open or Recreate did.
type Outcome struct {
	State State
	From  string
	To    string
	// Applied lists the hops run, in order.
	Applied []string
	// Backup is where Recreate moved the previous file, if anywhere.
	Backup string
}

// Hop upgrades the layout from one version to the next. Statements and Post
// run in one transaction together with the version stamp.
type Hop struct {
	From, To   string
	Statements []string
	Post       func(ctx context.Context, tx *sql.Tx) error
}

// Name is the hop's identifier in Outcome.Applied.
func (h Hop) Name() string { return h.From + "->" + h.To }

// DefaultHops are the migrations shipped with this binary.
var DefaultHops = []Hop{
	{
		From: "0.0.0",
		To:   "0.1.1",
		Statements: []string{
			`ALTER TABLE programs ADD COLUMN rating TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE programs ADD COLUMN advisories TEXT NOT NULL DEFAULT '[]'`,
			`ALTER TABLE programs ADD COLUMN score REAL NOT NULL DEFAULT 0`,
			`ALTER TABLE programs ADD COLUMN flags INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE programs ADD COLUMN credits TEXT NOT NULL DEFAULT '[]'`,
			`CREATE INDEX programs_score ON programs(score)`,
			`CREATE TABLE inverted_terms (
				index_name TEXT NOT NULL,
				term       TEXT NOT NULL,
				program_id INTEGER NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
				PRIMARY KEY (index_name, term, program_id)
			) WITHOUT ROWID`,
			`CREATE INDEX inverted_terms_program ON inverted_terms(program_id)`,
		},
		Post: store.ReindexTerms,
	},
}

func semv(v string) string { return "v" + v }

// plan returns the hops leading from "from" to latest, in order. ok is false
// when no chain of hops connects them.
func plan(hops []Hop, from, latest string) (path []Hop, ok bool) {
	if !semver.IsValid(semv(from)) || semver.Compare(semv(from), semv(latest)) > 0 {
		return nil, false
	}
	sorted := append([]Hop(nil), hops...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := semver.Compare(semv(sorted[i].From), semv(sorted[j].From)); c != 0 {
			return c < 0
		}
		return semver.Compare(semv(sorted[i].To), semv(sorted[j].To)) > 0
	})

	cur := from
	for cur != latest {
		next := -1
		for i, h := range sorted {
			if h.From == cur && semver.Compare(semv(h.To), semv(latest)) <= 0 &&
				semver.Compare(semv(h.To), semv(cur)) > 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, false
		}
		path = append(path, sorted[next])
		cur = sorted[next].To
	}
	return path, true
}
