// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

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

// Tx is a write transaction. fn passed to Batch may run more than once when
// the database is busy, so it must not leak side effects outside the Tx.
type Tx struct {
	s  *Store
	tx *sql.Tx
}

// Batch runs fn in one transaction, retrying the whole transaction on busy
// errors within the store's retry policy.
func (s *Store) Batch(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	start := time.Now()
	err := sqlite.RunTx(ctx, s.db, s.retry, func(tx *sql.Tx) error {
		return fn(ctx, &Tx{s: s, tx: tx})
	})
	metrics.ObserveStoreOp("batch", time.Since(start), err)
	return err
}

// ChannelIdentity is what a feed knows about a channel.
type ChannelIdentity struct {
	TunerIDs []string
	Name     string
	LongName string
}

// EnsureChannel returns the stored channel matching id, creating it when
// absent. A channel matches on its first tuner id, otherwise on name, otherwise
// on long name. Long name and new tuner ids are merged into an existing record.
func (t *Tx) EnsureChannel(ctx context.Context, id ChannelIdentity) (ch *epg.Channel, created bool, err error) {
	ch, err = t.findChannel(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if ch == nil {
		tuner, err := json.Marshal(nonNil(id.TunerIDs))
		if err != nil {
			return nil, false, err
		}
		res, err := t.tx.ExecContext(ctx,
			"INSERT INTO channels (tuner_id, name, long_name) VALUES (?, ?, ?)",
			string(tuner), id.Name, id.LongName)
		if err != nil {
			return nil, false, fmt.Errorf("insert channel: %w", err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return nil, false, err
		}
		return &epg.Channel{ID: newID, TunerIDs: nonNil(id.TunerIDs), Name: id.Name, LongName: id.LongName}, true, nil
	}

	changed := false
	for _, tid := range id.TunerIDs {
		if !ch.HasTunerID(tid) {
			ch.TunerIDs = append(ch.TunerIDs, tid)
			changed = true
		}
	}
	if id.LongName != "" && id.LongName != ch.LongName {
		ch.LongName = id.LongName
		changed = true
	}
	if changed {
		tuner, err := json.Marshal(ch.TunerIDs)
		if err != nil {
			return nil, false, err
		}
		if _, err := t.tx.ExecContext(ctx,
			"UPDATE channels SET tuner_id = ?, long_name = ? WHERE id = ?",
			string(tuner), ch.LongName, ch.ID); err != nil {
			return nil, false, fmt.Errorf("update channel: %w", err)
		}
	}
	return ch, false, nil
}

func (t *Tx) findChannel(ctx context.Context, id ChannelIdentity) (*epg.Channel, error) {
	const sel = "SELECT id, tuner_id, name, long_name FROM channels "
	type probe struct{ q, arg string }
	var probes []probe
	if len(id.TunerIDs) > 0 {
		probes = append(probes, probe{
			sel + "WHERE EXISTS (SELECT 1 FROM json_each(channels.tuner_id) WHERE value = ?) ORDER BY id LIMIT 1",
			id.TunerIDs[0]})
	}
	if id.Name != "" {
		probes = append(probes, probe{sel + "WHERE name = ? ORDER BY id LIMIT 1", id.Name})
	}
	if id.LongName != "" {
		probes = append(probes, probe{sel + "WHERE long_name = ? ORDER BY id LIMIT 1", id.LongName})
	}
	for _, p := range probes {
		ch, err := scanChannel(t.tx.QueryRowContext(ctx, p.q, p.arg))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find channel: %w", err)
		}
		return ch, nil
	}
	return nil, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// AddProgram stores p under p.Channel. Existing programs on the same channel
// overlapping [p.Start, p.Stop) are deleted first; replaced is their count.
func (t *Tx) AddProgram(ctx context.Context, p *epg.Program) (id int64, replaced int64, err error) {
	if !p.Channel.Bound() || p.Start >= p.Stop {
		return 0, 0, ErrBadProgram
	}

	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM programs WHERE parent_id = ? AND start < ? AND stop > ?",
		p.Channel.ID, p.Stop, p.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("replace overlapping programs: %w", err)
	}
	replaced, _ = res.RowsAffected()

	genres, _ := json.Marshal(nonNil(p.Genres))
	advisories, _ := json.Marshal(nonNil(p.Advisories))
	credits, _ := json.Marshal(p.Credits)
	if p.Credits == nil {
		credits = []byte("[]")
	}

	res, err = t.tx.ExecContext(ctx,
		`INSERT INTO programs (parent_id, start, stop, title, description, subtitle, episode, genres,
			category, date, year, rating, advisories, score, flags, credits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Channel.ID, p.Start, p.Stop, p.Title, p.Description, p.Subtitle, p.Episode, string(genres),
		p.Category, p.Date, p.Year, p.Rating, string(advisories), p.Score, int64(p.Flags), string(credits))
	if err != nil {
		return 0, 0, fmt.Errorf("insert program: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, 0, err
	}

	row := Row{ID: id, Title: p.Title, Description: p.Description, Subtitle: p.Subtitle, Genres: p.Genres}
	if err := t.s.indexProgram(ctx, t.tx, id, t.s.invertedValues(&row)); err != nil {
		return 0, 0, err
	}
	return id, replaced, nil
}

// invertedValues collects, per inverted index, the texts of the attributes
// feeding it.
func (s *Store) invertedValues(r *Row) map[string][]string {
	t, _ := s.schema.Type("program")
	out := make(map[string][]string)
	for index, attrs := range t.InvertedSources() {
		for _, v := range r.Attrs(attrs...) {
			switch v := v.(type) {
			case string:
				out[index] = append(out[index], v)
			case []string:
				out[index] = append(out[index], v...)
			}
		}
	}
	return out
}

// RecomputeAggregates recomputes the aggregates from the programs table and
// persists them with Generation incremented.
func (t *Tx) RecomputeAggregates(ctx context.Context) (Aggregates, error) {
	return recomputeAggregates(ctx, t.tx)
}

// RecomputeAggregates runs the recompute in its own transaction.
func (s *Store) RecomputeAggregates(ctx context.Context) (Aggregates, error) {
	var agg Aggregates
	err := s.Batch(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		agg, err = tx.RecomputeAggregates(ctx)
		return err
	})
	return agg, err
}

func recomputeAggregates(ctx context.Context, tx *sql.Tx) (Aggregates, error) {
	m, err := readMetadata(ctx, tx)
	if err != nil {
		return Aggregates{}, fmt.Errorf("read metadata: %w", err)
	}
	prev := aggregatesFromMeta(m)

	agg := Aggregates{Generation: prev.Generation + 1, ComputedAt: time.Now().UTC().Truncate(time.Second)}
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(stop - start), 0), COUNT(*) FROM programs").
		Scan(&agg.MaxProgramLength, &agg.NumPrograms); err != nil {
		return Aggregates{}, fmt.Errorf("compute aggregates: %w", err)
	}

	for k, v := range map[string]int64{
		MetaMaxProgramLength: agg.MaxProgramLength,
		MetaNumPrograms:      agg.NumPrograms,
		MetaGeneration:       agg.Generation,
		MetaComputedAt:       agg.ComputedAt.Unix(),
	} {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			k, strconv.FormatInt(v, 10)); err != nil {
			return Aggregates{}, fmt.Errorf("write %s: %w", k, err)
		}
	}
	return agg, nil
}

// ReindexTerms rebuilds every inverted index from the programs table.
func ReindexTerms(ctx context.Context, tx *sql.Tx) error {
	s := &Store{schema: GuideSchema}
	if _, err := tx.ExecContext(ctx, "DELETE FROM inverted_terms"); err != nil {
		return fmt.Errorf("clear inverted terms: %w", err)
	}
	rows, err := tx.QueryContext(ctx, "SELECT "+programColumns+" FROM programs ORDER BY id")
	if err != nil {
		return fmt.Errorf("scan programs: %w", err)
	}
	all, err := collectRows(rows)
	if err != nil {
		return fmt.Errorf("scan programs: %w", err)
	}
	for i := range all {
		if err := s.indexProgram(ctx, tx, all[i].ID, s.invertedValues(&all[i])); err != nil {
			return err
		}
	}
	return nil
}
