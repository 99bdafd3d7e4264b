// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

// VersionThing is the versioning row holding the schema version.
const VersionThing = "sql"

// Metadata keys.
const (
	MetaMaxProgramLength = "epg::max_program_length"
	MetaNumPrograms      = "epg::num_programs"
	MetaGeneration       = "epg::aggregates_generation"
	MetaComputedAt       = "epg::aggregates_computed_at"
)

// CreateStatements create the full, latest layout on an empty database.
var CreateStatements = []string{
	`CREATE TABLE versioning (
		thing   TEXT PRIMARY KEY,
		version TEXT NOT NULL
	)`,
	`CREATE TABLE metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE channels (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		tuner_id  TEXT NOT NULL DEFAULT '[]',
		name      TEXT NOT NULL DEFAULT '',
		long_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX channels_name ON channels(name)`,
	`CREATE INDEX channels_long_name ON channels(long_name)`,
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
		year        INTEGER NOT NULL DEFAULT 0,
		rating      TEXT NOT NULL DEFAULT '',
		advisories  TEXT NOT NULL DEFAULT '[]',
		score       REAL NOT NULL DEFAULT 0,
		flags       INTEGER NOT NULL DEFAULT 0,
		credits     TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX programs_parent_start ON programs(parent_id, start)`,
	`CREATE INDEX programs_start ON programs(start)`,
	`CREATE INDEX programs_stop ON programs(stop)`,
	`CREATE INDEX programs_title ON programs(title)`,
	`CREATE INDEX programs_category ON programs(category)`,
	`CREATE INDEX programs_year ON programs(year)`,
	`CREATE INDEX programs_score ON programs(score)`,
	`CREATE TABLE inverted_terms (
		index_name TEXT NOT NULL,
		term       TEXT NOT NULL,
		program_id INTEGER NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
		PRIMARY KEY (index_name, term, program_id)
	) WITHOUT ROWID`,
	`CREATE INDEX inverted_terms_program ON inverted_terms(program_id)`,
}
