// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"sync"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/ingest"
)

type runState struct {
	ok  time.Time
	err error
}

// runTracker remembers the latest ingestion outcome per source.
type runTracker struct {
	mu   sync.Mutex
	last map[string]runState
}

func newRunTracker() *runTracker {
	return &runTracker{last: map[string]runState{}}
}

func (t *runTracker) record(res ingest.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.last[res.Source]
	if res.Err != nil {
		st.err = res.Err
	} else {
		st = runState{ok: res.Finished}
	}
	t.last[res.Source] = st
}

// lastRun returns the time of the last successful run of source and the
// error of its latest run, if that failed.
func (t *runTracker) lastRun(source string) func() (time.Time, error) {
	return func() (time.Time, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		st := t.last[source]
		return st.ok, st.err
	}
}
