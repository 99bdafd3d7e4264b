// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package epg holds the guide domain types and the XMLTV codec.
package epg

import (
	"strings"
	"time"
)

// Channel is a broadcast channel. ID is assigned by the store; it is 0 for
// channels that only exist in a registry (unbound).
type Channel struct {
	ID       int64
	TunerIDs []string
	Name     string
	LongName string
}

// Bound reports whether the channel has a store record.
func (c *Channel) Bound() bool { return c != nil && c.ID != 0 }

// HasTunerID reports whether id is one of the channel's tuner identifiers.
func (c *Channel) HasTunerID(id string) bool {
	for _, t := range c.TunerIDs {
		if t == id {
			return true
		}
	}
	return false
}

func (c *Channel) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.Name
}

// Flag is a bitmask of program properties.
type Flag int64

const (
	FlagBW Flag = 1 << iota
	FlagSubtitled
	FlagHDTV
	FlagCC
	FlagPremiere
	FlagRerun
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{FlagBW, "bw"},
	{FlagSubtitled, "subtitled"},
	{FlagHDTV, "hdtv"},
	{FlagCC, "cc"},
	{FlagPremiere, "premiere"},
	{FlagRerun, "rerun"},
}

// Has reports whether all bits of o are set.
func (f Flag) Has(o Flag) bool { return f&o == o }

func (f Flag) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.f) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Credit is one person credited on a program.
type Credit struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// Meta holds grid-time annotations. It is never persisted.
type Meta map[string]any

// Program is a scheduled broadcast. Start and Stop are UTC unix seconds and
// Start < Stop once committed.
type Program struct {
	ID          int64
	Channel     *Channel
	Start       int64
	Stop        int64
	Title       string
	Description string
	Subtitle    string
	Episode     string
	Genres      []string
	Category    string
	Date        int64
	Year        int64
	Rating      string
	Advisories  []string
	Score       float64
	Flags       Flag
	Credits     []Credit

	Meta Meta
}

// StartTime returns Start as a UTC time.
func (p *Program) StartTime() time.Time { return time.Unix(p.Start, 0).UTC() }

// StopTime returns Stop as a UTC time.
func (p *Program) StopTime() time.Time { return time.Unix(p.Stop, 0).UTC() }

// Duration returns Stop-Start.
func (p *Program) Duration() time.Duration {
	return time.Duration(p.Stop-p.Start) * time.Second
}

// Contains reports whether the instant t (unix seconds) lies in [Start, Stop).
func (p *Program) Contains(t int64) bool { return p.Start <= t && t < p.Stop }
