// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"fmt"
	"strings"
)

// AccessBy selects which identifier of a receiver service becomes the
// channel's tuner id.
type AccessBy string

const (
	AccessBySID  AccessBy = "sid"
	AccessBySRef AccessBy = "sref"
	AccessByName AccessBy = "name"
)

// Pick returns the identifier selected by a.
func (a AccessBy) Pick(sid, sref, name string) string {
	switch a {
	case AccessBySRef:
		return sref
	case AccessByName:
		return name
	default:
		return sid
	}
}

// Limit restricts which channels are imported.
type Limit string

const (
	LimitAll  Limit = ""
	LimitEPG  Limit = "epg"  // only channels with guide data
	LimitConf Limit = "conf" // only configured channels
	LimitBoth Limit = "both" // configured and with guide data
)

// Policy decides which source channels are imported.
type Policy struct {
	AccessBy AccessBy
	Limit    Limit
	Exclude  map[string]struct{}
}

// NewPolicy validates and normalises the textual settings.
func NewPolicy(accessBy, limit string, exclude []string) (Policy, error) {
	p := Policy{Exclude: make(map[string]struct{}, len(exclude))}

	switch a := AccessBy(strings.ToLower(strings.TrimSpace(accessBy))); a {
	case "":
		p.AccessBy = AccessBySID
	case AccessBySID, AccessBySRef, AccessByName:
		p.AccessBy = a
	default:
		return Policy{}, fmt.Errorf("ingest: unknown accessBy %q (want sid, sref or name)", accessBy)
	}

	switch l := Limit(strings.ToLower(strings.TrimSpace(limit))); l {
	case LimitAll, "all":
		p.Limit = LimitAll
	case LimitEPG, LimitConf, LimitBoth:
		p.Limit = l
	default:
		return Policy{}, fmt.Errorf("ingest: unknown limit %q (want all, epg, conf or both)", limit)
	}

	for _, id := range exclude {
		if id = strings.TrimSpace(id); id != "" {
			p.Exclude[id] = struct{}{}
		}
	}
	return p, nil
}

// Excluded reports whether id is on the exclude list.
func (p Policy) Excluded(id string) bool {
	_, ok := p.Exclude[id]
	return ok
}

// Include reports whether the channel id is imported given whether it is
// configured (inConf) and has guide data (inEPG).
func (p Policy) Include(id string, inConf, inEPG bool) bool {
	if p.Excluded(id) {
		return false
	}
	switch p.Limit {
	case LimitEPG:
		return inEPG
	case LimitConf:
		return inConf
	case LimitBoth:
		return inConf && inEPG
	default:
		return true
	}
}
