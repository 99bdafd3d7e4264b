// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"maps"
	"runtime"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/store"
	"github.com/rs/zerolog"
)

// DefaultStepBudget is how long one apply step may run before yielding.
const DefaultStepBudget = 100 * time.Millisecond

// StepResult is what a Task step reports. Done with a nil Err means finished.
type StepResult struct {
	Done bool
	Err  error
}

var (
	StepContinue = StepResult{}
	StepDone     = StepResult{Done: true}
)

// StepFailed ends a task with err.
func StepFailed(err error) StepResult { return StepResult{Done: true, Err: err} }

// Task is resumable work driven one step at a time.
type Task interface {
	Step(ctx context.Context) StepResult
}

// Drive steps task until it is done, checking ctx before every step and
// calling yield between steps. A nil yield gives up the processor.
func Drive(ctx context.Context, task Task, yield func()) error {
	if yield == nil {
		yield = runtime.Gosched
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := task.Step(ctx)
		if r.Done {
			return r.Err
		}
		yield()
	}
}

// applyState is everything an apply step mutates. A step works on a clone
// and the clone is adopted only after the transaction commits, so a retried
// transaction starts from the same state.
type applyState struct {
	pos      int
	seen     int
	channels map[string]*epg.Channel
	pending  map[string]epg.Program
	counts   Counts
}

func (s *applyState) clone() *applyState {
	c := *s
	c.channels = maps.Clone(s.channels)
	c.pending = maps.Clone(s.pending)
	return &c
}

// ApplyTask writes a feed to the store.
type ApplyTask struct {
	store      *store.Store
	source     string
	events     []Event
	total      int
	budget     time.Duration
	onProgress func(Progress)
	logger     zerolog.Logger
	now        func() time.Time

	state     *applyState
	bucket    int
	committed int
	finished  bool
}

// NewApplyTask returns a task applying feed. A zero budget means
// DefaultStepBudget. onProgress may be nil.
func NewApplyTask(ctx context.Context, st *store.Store, source string, feed *Feed, budget time.Duration, onProgress func(Progress)) *ApplyTask {
	if budget <= 0 {
		budget = DefaultStepBudget
	}
	return &ApplyTask{
		store:      st,
		source:     source,
		events:     feed.Events,
		total:      feed.Total,
		budget:     budget,
		onProgress: onProgress,
		logger:     xglog.WithComponentFromContext(ctx, "ingest").With().Str(xglog.FieldSource, source).Logger(),
		now:        time.Now,
		state: &applyState{
			channels: make(map[string]*epg.Channel),
			pending:  make(map[string]epg.Program),
			counts:   Counts{Invalid: feed.Invalid},
		},
		bucket: -1,
	}
}

// Counts returns the tallies of everything committed so far.
func (t *ApplyTask) Counts() Counts { return t.state.counts }

// Committed is the number of steps whose transaction committed.
func (t *ApplyTask) Committed() int { return t.committed }

// Step applies events until the budget is spent. At least one event is
// applied per step.
func (t *ApplyTask) Step(ctx context.Context) StepResult {
	if t.finished {
		return StepDone
	}
	if t.state.pos >= len(t.events) {
		t.finish()
		return StepDone
	}

	var next *applyState
	err := t.store.Batch(ctx, func(ctx context.Context, tx *store.Tx) error {
		next = t.state.clone()
		deadline := t.now().Add(t.budget)
		for next.pos < len(t.events) {
			if err := t.apply(ctx, tx, next, t.events[next.pos]); err != nil {
				return err
			}
			next.pos++
			if !t.now().Before(deadline) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return StepFailed(err)
	}
	t.state = next
	t.committed++
	metrics.IncIngestStep(t.source)
	t.progress(false)

	if t.state.pos >= len(t.events) {
		t.finish()
		return StepDone
	}
	return StepContinue
}

func (t *ApplyTask) apply(ctx context.Context, tx *store.Tx, s *applyState, e Event) error {
	switch e.Kind {
	case EventChannel:
		return t.applyChannel(ctx, tx, s, e.Channel)
	case EventProgram:
		s.seen++
		return t.applyProgram(ctx, tx, s, e.Program)
	default:
		s.counts.Invalid++
		return nil
	}
}

func (t *ApplyTask) applyChannel(ctx context.Context, tx *store.Tx, s *applyState, r *ChannelRecord) error {
	if r == nil || (len(r.TunerIDs) == 0 && r.Name == "" && r.LongName == "") {
		s.counts.Invalid++
		t.logger.Warn().Str(xglog.FieldEvent, "ingest.channel_empty").Msg("channel record without identity skipped")
		return nil
	}
	ch, created, err := tx.EnsureChannel(ctx, store.ChannelIdentity{
		TunerIDs: r.TunerIDs,
		Name:     r.Name,
		LongName: r.LongName,
	})
	if err != nil {
		return err
	}
	if created {
		t.logger.Debug().Int64(xglog.FieldChannelID, ch.ID).Str(xglog.FieldChannel, ch.Name).Msg("channel added")
	}
	s.channels[r.Key] = ch
	s.counts.Channels++
	return nil
}

func (t *ApplyTask) applyProgram(ctx context.Context, tx *store.Tx, s *applyState, r *ProgramRecord) error {
	if r == nil {
		s.counts.Invalid++
		return nil
	}
	ch, ok := s.channels[r.ChannelKey]
	if !ok {
		s.counts.Orphans++
		t.logger.Warn().
			Str(xglog.FieldEvent, "ingest.orphan").
			Str(xglog.FieldChannel, r.ChannelKey).
			Str("title", r.Program.Title).
			Msg("program for unknown channel skipped")
		return nil
	}

	// An open program ends where the next one on its channel begins.
	if prev, ok := s.pending[r.ChannelKey]; ok {
		delete(s.pending, r.ChannelKey)
		prev.Stop = r.Program.Start
		if err := t.commit(ctx, tx, s, prev); err != nil {
			return err
		}
	}

	p := r.Program
	p.ID = 0
	p.Channel = ch
	p.Meta = nil
	if r.Open {
		p.Stop = 0
		s.pending[r.ChannelKey] = p
		return nil
	}
	return t.commit(ctx, tx, s, p)
}

func (t *ApplyTask) commit(ctx context.Context, tx *store.Tx, s *applyState, p epg.Program) error {
	if p.Stop <= p.Start {
		s.counts.Invalid++
		t.logger.Debug().
			Str(xglog.FieldChannel, p.Channel.Name).
			Int64("start", p.Start).
			Int64("stop", p.Stop).
			Msg("program with stop before start skipped")
		return nil
	}
	if _, _, err := tx.AddProgram(ctx, &p); err != nil {
		return err
	}
	s.counts.Programs++
	return nil
}

func (t *ApplyTask) finish() {
	if t.finished {
		return
	}
	t.finished = true
	if n := len(t.state.pending); n > 0 {
		t.state.counts.Discarded += n
		t.logger.Debug().Int("discarded", n).Msg("open programs without successor discarded")
		t.state.pending = map[string]epg.Program{}
	}
	t.progress(true)
}

// progress reports when a percent boundary was crossed since the last report,
// and always when final.
func (t *ApplyTask) progress(final bool) {
	if t.onProgress == nil {
		return
	}
	cur := t.state.seen
	if !final {
		b := cur / max(t.total/100, 1)
		if b <= t.bucket {
			return
		}
		t.bucket = b
	}
	t.onProgress(Progress{Current: cur, Total: t.total})
}
