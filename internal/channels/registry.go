// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package channels keeps the in-memory channel registry: lookups by name, by
// store id and by tuner id, rebuilt from the store on every sync.
package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
)

// ErrEmptyChannel is returned by NewUnbound when no identifying field is set.
var ErrEmptyChannel = errors.New("channels: tuner id, name or long name required")

// Source lists the stored channels. *store.Store implements it.
type Source interface {
	Channels(ctx context.Context) ([]*epg.Channel, error)
}

// TunerConflict records a tuner id claimed by more than one channel. The first
// channel scanned keeps it.
type TunerConflict struct {
	TunerID  string
	Owner    *epg.Channel
	Rejected *epg.Channel
}

// Registry is safe for concurrent use. Channels handed out are shared and
// must be treated as read-only.
type Registry struct {
	mu        sync.RWMutex
	ordered   []*epg.Channel
	byName    map[string]*epg.Channel
	byID      map[int64]*epg.Channel
	byTuner   map[string]*epg.Channel
	byKey     map[string]*epg.Channel
	conflicts []TunerConflict
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  map[string]*epg.Channel{},
		byID:    map[int64]*epg.Channel{},
		byTuner: map[string]*epg.Channel{},
		byKey:   map[string]*epg.Channel{},
	}
}

// Sync discards the registry contents and rebuilds them from src. On error
// the previous contents stay in place.
func (r *Registry) Sync(ctx context.Context, src Source) error {
	chans, err := src.Channels(ctx)
	if err != nil {
		return fmt.Errorf("sync channels: %w", err)
	}
	logger := xglog.WithComponentFromContext(ctx, "channels")

	next := NewRegistry()
	for _, ch := range chans {
		if prev, ok := next.byName[ch.Name]; ok {
			logger.Warn().
				Str(xglog.FieldChannel, ch.Name).
				Int64("kept_id", ch.ID).
				Int64("dropped_id", prev.ID).
				Msg("duplicate channel name, last scanned wins")
		}
		next.byName[ch.Name] = ch
		next.byID[ch.ID] = ch
		if k := epg.NameKey(ch.Name); k != "" {
			next.byKey[k] = ch
		}
		for _, tid := range ch.TunerIDs {
			if owner, ok := next.byTuner[tid]; ok && owner.ID != ch.ID {
				next.conflicts = append(next.conflicts, TunerConflict{TunerID: tid, Owner: owner, Rejected: ch})
				logger.Warn().
					Str(xglog.FieldTunerID, tid).
					Str("owner", owner.Name).
					Str("rejected", ch.Name).
					Msg("tuner id claimed twice, first claim wins")
				continue
			}
			next.byTuner[tid] = ch
		}
		next.ordered = append(next.ordered, ch)
	}

	r.mu.Lock()
	r.ordered, r.byName, r.byID, r.byTuner, r.byKey, r.conflicts =
		next.ordered, next.byName, next.byID, next.byTuner, next.byKey, next.conflicts
	r.mu.Unlock()

	metrics.RecordRegistry(len(next.byName), len(next.conflicts))
	logger.Debug().Int("channels", len(next.byName)).Int("conflicts", len(next.conflicts)).Msg("registry synced")
	return nil
}

// Get returns the channel registered under name.
func (r *Registry) Get(name string) (*epg.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byName[name]
	return ch, ok
}

// ByID returns the channel with the given store id.
func (r *Registry) ByID(id int64) (*epg.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byID[id]
	return ch, ok
}

// ByTunerID returns the channel owning tuner id.
func (r *Registry) ByTunerID(id string) (*epg.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byTuner[id]
	return ch, ok
}

// Len returns the number of registered names.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Conflicts returns the tuner id conflicts found by the last sync.
func (r *Registry) Conflicts() []TunerConflict {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TunerConflict(nil), r.conflicts...)
}

// List returns the registered channels. Unsorted lists are in store order;
// sorted lists use numeric-aware collation of the name, then byte order of
// the name, then id.
func (r *Registry) List(sorted bool) []*epg.Channel {
	r.mu.RLock()
	out := make([]*epg.Channel, 0, len(r.byName))
	for _, ch := range r.ordered {
		if r.byName[ch.Name] == ch {
			out = append(out, ch)
		}
	}
	r.mu.RUnlock()

	if sorted {
		c := collate.New(language.Und, collate.Numeric)
		sort.SliceStable(out, func(i, j int) bool {
			if n := c.CompareString(out[i].Name, out[j].Name); n != 0 {
				return n < 0
			}
			if out[i].Name != out[j].Name {
				return out[i].Name < out[j].Name
			}
			return out[i].ID < out[j].ID
		})
	}
	return out
}

// Find looks a channel up by exact name, then by normalized name, then by
// the closest normalized name within maxDist edits.
func (r *Registry) Find(name string, maxDist int) (*epg.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ch, ok := r.byName[name]; ok {
		return ch, true
	}
	return epg.FindBest(name, r.byKey, maxDist)
}

// NewUnbound builds a channel without a store record. Missing names are
// back-filled: name from the first tuner id, then the long name; long name
// from the name, then the first tuner id.
func NewUnbound(tunerIDs []string, name, longName string) (*epg.Channel, error) {
	first := ""
	if len(tunerIDs) > 0 {
		first = tunerIDs[0]
	}
	if first == "" && name == "" && longName == "" {
		return nil, ErrEmptyChannel
	}
	if name == "" {
		name = first
		if name == "" {
			name = longName
		}
	}
	if longName == "" {
		longName = name
		if longName == "" {
			longName = first
		}
	}
	ids := append([]string{}, tunerIDs...)
	return &epg.Channel{TunerIDs: ids, Name: name, LongName: longName}, nil
}
