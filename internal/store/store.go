// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store is the typed object store behind the guide: channels and
// programs in SQLite, searchable attributes, inverted term indices and the
// cached aggregates.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/persistence/sqlite"
)

var (
	ErrUnknownAttr   = errors.New("store: unknown attribute")
	ErrNotSearchable = errors.New("store: attribute is not searchable")
	ErrUnknownIndex  = errors.New("store: unknown inverted index")
	ErrInvalidExpr   = errors.New("store: invalid expression")
	ErrBadProgram    = errors.New("store: program must have a channel and start < stop")
)

// Store wraps an open guide database.
type Store struct {
	db     *sql.DB
	retry  sqlite.RetryPolicy
	schema Schema
}

// New returns a Store over db. The schema must already be current.
func New(db *sql.DB, retry sqlite.RetryPolicy) *Store {
	return &Store{db: db, retry: retry, schema: GuideSchema}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Schema returns the declared schema.
func (s *Store) Schema() Schema { return s.schema }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := sqlite.Retry(ctx, s.retry, fn)
	metrics.ObserveStoreOp(op, time.Since(start), err)
	return err
}

// Channels returns every stored channel ordered by id.
func (s *Store) Channels(ctx context.Context) ([]*epg.Channel, error) {
	var out []*epg.Channel
	err := s.read(ctx, "channels", func(ctx context.Context) error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, "SELECT id, tuner_id, name, long_name FROM channels ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			ch, err := scanChannel(rows)
			if err != nil {
				return err
			}
			out = append(out, ch)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("scan channels: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(sc scanner) (*epg.Channel, error) {
	var (
		ch    epg.Channel
		tuner string
	)
	if err := sc.Scan(&ch.ID, &tuner, &ch.Name, &ch.LongName); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tuner), &ch.TunerIDs); err != nil {
		return nil, fmt.Errorf("channel %d tuner_id: %w", ch.ID, err)
	}
	return &ch, nil
}

// Aggregates are the denormalized scalars kept alongside the data. They are
// recomputed as a unit; Generation increments on every recompute.
type Aggregates struct {
	MaxProgramLength int64
	NumPrograms      int64
	Generation       int64
	ComputedAt       time.Time
}

// Aggregates reads the persisted aggregates. Missing keys read as zero.
func (s *Store) Aggregates(ctx context.Context) (Aggregates, error) {
	var agg Aggregates
	err := s.read(ctx, "aggregates", func(ctx context.Context) error {
		m, err := readMetadata(ctx, s.db)
		if err != nil {
			return err
		}
		agg = aggregatesFromMeta(m)
		return nil
	})
	if err != nil {
		return Aggregates{}, fmt.Errorf("read aggregates: %w", err)
	}
	return agg, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readMetadata(ctx context.Context, q querier) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	m := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, rows.Err()
}

func aggregatesFromMeta(m map[string]string) Aggregates {
	num := func(k string) int64 {
		n, _ := strconv.ParseInt(m[k], 10, 64)
		return n
	}
	agg := Aggregates{
		MaxProgramLength: num(MetaMaxProgramLength),
		NumPrograms:      num(MetaNumPrograms),
		Generation:       num(MetaGeneration),
	}
	if ts := num(MetaComputedAt); ts > 0 {
		agg.ComputedAt = time.Unix(ts, 0).UTC()
	}
	return agg
}

// Metadata returns a single metadata value.
func (s *Store) Metadata(ctx context.Context, key string) (string, bool, error) {
	var (
		v     string
		found bool
	)
	err := s.read(ctx, "metadata", func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			found = false
			return nil
		case err != nil:
			return err
		}
		found = true
		return nil
	})
	return v, found, err
}
