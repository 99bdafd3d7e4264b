// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/persistence/sqlite"
	"github.com/ManuGH/xg2g-epg/internal/store"
)

// Manager owns the lifecycle of one database file.
type Manager struct {
	path   string
	cfg    sqlite.Config
	hops   []Hop
	latest string
	now    func() time.Time
}

// NewManager returns a manager for the database at path using DefaultHops.
func NewManager(path string, cfg sqlite.Config) *Manager {
	return &Manager{path: path, cfg: cfg, hops: DefaultHops, latest: Latest, now: time.Now}
}

// WithHops replaces the migration set and target version.
func (m *Manager) WithHops(latest string, hops []Hop) *Manager {
	m.latest = latest
	m.hops = hops
	return m
}

// Path returns the database path.
func (m *Manager) Path() string { return m.path }

// Open detects the state of the database and brings it to the latest
// version. The returned handle is open only when err is nil.
func (m *Manager) Open(ctx context.Context) (*Outcome, *sql.DB, error) {
	logger := xglog.WithComponentFromContext(ctx, "schema")

	out, db, err := m.open(ctx)
	if out != nil {
		metrics.RecordSchemaOpen(string(out.State))
		ev := logger.Info()
		switch {
		case errors.Is(err, ErrStoreCorrupt), errors.Is(err, ErrUnknownSchemaVersion):
			ev = logger.Error().Err(err)
		case out.State == StateStale, out.State == StateMissing:
			ev = logger.Warn()
		}
		ev.Str(xglog.FieldEvent, "schema.open").
			Str(xglog.FieldPath, m.path).
			Str(xglog.FieldState, string(out.State)).
			Str(xglog.FieldFromVersion, out.From).
			Str(xglog.FieldToVersion, out.To).
			Strs("applied", out.Applied).
			Msg("guide database opened")
	}
	return out, db, err
}

func (m *Manager) open(ctx context.Context) (*Outcome, *sql.DB, error) {
	missing, err := m.checkFile(ctx)
	if err != nil {
		return nil, nil, err
	}

	db, err := sqlite.Open(ctx, m.path, m.cfg)
	if err != nil {
		if !missing && isCorrupt(err) {
			return &Outcome{State: StateCorrupt}, nil, fmt.Errorf("%w: %s: %w", ErrStoreCorrupt, m.path, err)
		}
		return nil, nil, err
	}

	if missing {
		if err := m.create(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return &Outcome{State: StateMissing, To: m.latest}, db, nil
	}

	out, err := m.upgrade(ctx, db)
	if err != nil {
		_ = db.Close()
		return out, nil, err
	}
	return out, db, nil
}

// checkFile reports whether the database must be created. A zero-size file
// is removed.
func (m *Manager) checkFile(ctx context.Context) (missing bool, err error) {
	fi, err := os.Stat(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		xglog.FromContext(ctx).Warn().Str(xglog.FieldPath, m.path).Msg("guide database missing, creating it")
		return true, nil
	case err != nil:
		return false, fmt.Errorf("stat %s: %w", m.path, err)
	case fi.IsDir():
		return false, fmt.Errorf("%w: %s is a directory", ErrStoreCorrupt, m.path)
	case fi.Size() == 0:
		xglog.FromContext(ctx).Error().Str(xglog.FieldPath, m.path).Msg("guide database is zero size, removing it")
		if err := os.Remove(m.path); err != nil {
			return false, fmt.Errorf("remove empty database: %w", err)
		}
		return true, nil
	}
	return false, nil
}

func (m *Manager) create(ctx context.Context, db *sql.DB) error {
	err := sqlite.RunTx(ctx, db, m.cfg.Retry, func(tx *sql.Tx) error {
		for _, stmt := range store.CreateStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO versioning (thing, version) VALUES (?, ?)", store.VersionThing, m.latest)
		return err
	})
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (m *Manager) readVersion(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	err := sqlite.Retry(ctx, m.cfg.Retry, func(ctx context.Context) error {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'versioning'").Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return errNoVersioning
		}
		if err != nil {
			return err
		}
		return db.QueryRowContext(ctx, "SELECT version FROM versioning WHERE thing = ?", store.VersionThing).Scan(&version)
	})
	return version, err
}

var errNoVersioning = errors.New("no versioning table")

func (m *Manager) upgrade(ctx context.Context, db *sql.DB) (*Outcome, error) {
	version, err := m.readVersion(ctx, db)
	switch {
	case errors.Is(err, sqlite.ErrStoreUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case err != nil:
		return &Outcome{State: StateCorrupt}, fmt.Errorf("%w: %s: %w", ErrStoreCorrupt, m.path, err)
	}

	out := &Outcome{From: version, To: version}
	if version == m.latest {
		out.State = StateCurrent
		return out, nil
	}

	hops, ok := plan(m.hops, version, m.latest)
	if !ok {
		out.State = StateUnknown
		return out, fmt.Errorf("%w: %q (latest %s)", ErrUnknownSchemaVersion, version, m.latest)
	}

	out.State = StateStale
	for _, h := range hops {
		if err := m.apply(ctx, db, h); err != nil {
			return out, fmt.Errorf("migrate %s: %w", h.Name(), err)
		}
		out.Applied = append(out.Applied, h.Name())
		out.To = h.To
	}
	return out, nil
}

func (m *Manager) apply(ctx context.Context, db *sql.DB, h Hop) error {
	xglog.FromContext(ctx).Info().
		Str(xglog.FieldEvent, "schema.migrate").
		Str(xglog.FieldFromVersion, h.From).
		Str(xglog.FieldToVersion, h.To).
		Msg("applying schema migration")

	return sqlite.RunTx(ctx, db, m.cfg.Retry, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, "SELECT version FROM versioning WHERE thing = ?", store.VersionThing).Scan(&current); err != nil {
			return err
		}
		if current != h.From {
			return fmt.Errorf("version changed underneath migration: %q", current)
		}
		for _, stmt := range h.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if h.Post != nil {
			if err := h.Post(ctx, tx); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "UPDATE versioning SET version = ? WHERE thing = ?", h.To, store.VersionThing)
		return err
	})
}

// Recreate moves the current file (and its WAL and shared-memory siblings)
// aside to <path>.corrupt-<unix> and creates a fresh database.
func (m *Manager) Recreate(ctx context.Context) (*Outcome, *sql.DB, error) {
	backup := fmt.Sprintf("%s.corrupt-%d", m.path, m.now().Unix())
	moved := false
	for _, suffix := range []string{"", "-wal", "-shm"} {
		err := os.Rename(m.path+suffix, backup+suffix)
		switch {
		case err == nil:
			moved = moved || suffix == ""
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, nil, fmt.Errorf("back up %s: %w", m.path+suffix, err)
		}
	}

	logger := xglog.WithComponentFromContext(ctx, "schema")
	if moved {
		logger.Warn().Str(xglog.FieldEvent, "schema.recreate").Str(xglog.FieldPath, m.path).
			Str("backup", backup).Msg("previous guide database moved aside")
	} else {
		backup = ""
	}

	db, err := sqlite.Open(ctx, m.path, m.cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := m.create(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	metrics.RecordSchemaOpen(string(StateMissing))
	return &Outcome{State: StateMissing, To: m.latest, Backup: backup}, db, nil
}

func isCorrupt(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "SQLITE_NOTADB") ||
		strings.Contains(msg, "SQLITE_CORRUPT")
}
