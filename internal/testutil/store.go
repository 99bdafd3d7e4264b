// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/persistence/sqlite"
	"github.com/ManuGH/xg2g-epg/internal/schema"
	"github.com/ManuGH/xg2g-epg/internal/store"
)

// SQLiteConfig is sqlite.DefaultConfig with a retry policy short enough for tests.
func SQLiteConfig() sqlite.Config {
	cfg := sqlite.DefaultConfig()
	cfg.Retry = sqlite.RetryPolicy{Retries: 2, Initial: time.Millisecond, Max: 5 * time.Millisecond}
	return cfg
}

// NewStore opens a fresh guide database in t's temp dir at the latest schema.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	cfg := SQLiteConfig()
	m := schema.NewManager(filepath.Join(t.TempDir(), "epg.db"), cfg)
	out, db, err := m.Open(context.Background())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	if out.State != schema.StateMissing {
		t.Fatalf("open test store: unexpected state %s", out.State)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db, cfg.Retry)
}

// AddChannel stores a channel with the given identity.
func AddChannel(t testing.TB, s *store.Store, tunerID, name string) *epg.Channel {
	t.Helper()
	id := store.ChannelIdentity{Name: name, LongName: name}
	if tunerID != "" {
		id.TunerIDs = []string{tunerID}
	}
	var ch *epg.Channel
	err := s.Batch(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		var err error
		ch, _, err = tx.EnsureChannel(ctx, id)
		return err
	})
	if err != nil {
		t.Fatalf("add channel %q: %v", name, err)
	}
	return ch
}

// AddProgram stores a program on ch spanning [start, stop).
func AddProgram(t testing.TB, s *store.Store, ch *epg.Channel, start, stop int64, title string) *epg.Program {
	t.Helper()
	p := &epg.Program{Channel: ch, Start: start, Stop: stop, Title: title}
	err := s.Batch(context.Background(), func(ctx context.Context, tx *store.Tx) error {
		id, _, err := tx.AddProgram(ctx, p)
		p.ID = id
		return err
	})
	if err != nil {
		t.Fatalf("add program %q: %v", title, err)
	}
	return p
}
