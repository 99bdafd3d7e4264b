// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest feeds external listings into the guide store.
//
// A Source fetches and parses a feed into an ordered list of events. The
// pipeline then applies the events in short steps, one store transaction per
// step, so that readers keep making progress during large imports and a run
// can be cancelled between steps.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/epg"
)

// ErrSourceUnavailable reports that a source could not produce a feed.
var ErrSourceUnavailable = errors.New("ingest: source unavailable")

// EventKind discriminates Event.
type EventKind int

const (
	EventChannel EventKind = iota + 1
	EventProgram
)

func (k EventKind) String() string {
	switch k {
	case EventChannel:
		return "channel"
	case EventProgram:
		return "program"
	default:
		return "unknown"
	}
}

// ChannelRecord announces a channel. Key is the source-local id that program
// records refer to.
type ChannelRecord struct {
	Key      string
	TunerIDs []string
	Name     string
	LongName string
}

// ProgramRecord is a program on the channel announced under ChannelKey.
// Open records have no stop time yet; Program.Stop is ignored for them.
type ProgramRecord struct {
	ChannelKey string
	Program    epg.Program
	Open       bool
}

// Event is one entry of a feed.
type Event struct {
	Kind    EventKind
	Channel *ChannelRecord
	Program *ProgramRecord
}

// ChannelEvent wraps r.
func ChannelEvent(r ChannelRecord) Event { return Event{Kind: EventChannel, Channel: &r} }

// ProgramEvent wraps r.
func ProgramEvent(r ProgramRecord) Event { return Event{Kind: EventProgram, Program: &r} }

// Feed is a parsed source. Programs must follow the channel they refer to;
// per channel they are expected in start order.
type Feed struct {
	Events []Event
	// Total is the number of program events, used for progress.
	Total int
	// Invalid counts records the source rejected while parsing.
	Invalid int
}

// Add appends e and keeps Total current.
func (f *Feed) Add(e Event) {
	f.Events = append(f.Events, e)
	if e.Kind == EventProgram {
		f.Total++
	}
}

// Source produces feeds.
type Source interface {
	Name() string
	// Prepare fetches and parses the feed. It blocks and must honor ctx.
	Prepare(ctx context.Context) (*Feed, error)
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Counts tallies the records of a run.
type Counts struct {
	Channels  int
	Programs  int
	Orphans   int
	Discarded int
	Invalid   int
}

// Skipped is the number of records that were dropped because they were
// malformed or referenced an unknown channel.
func (c Counts) Skipped() int { return c.Orphans + c.Invalid }

// Progress is reported about every percent of the feed and once at the end.
type Progress struct {
	Current int
	Total   int
}

// Result describes a finished run.
type Result struct {
	RunID   string
	Source  string
	Outcome Outcome
	Err     error
	Counts
	Started  time.Time
	Finished time.Time
}

// Duration is the wall time of the run.
func (r Result) Duration() time.Duration { return r.Finished.Sub(r.Started) }
