// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package enigma2 imports the guide held by an Enigma2 receiver through its
// OpenWebIF API.
package enigma2

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/ingest"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/metrics"
	"github.com/ManuGH/xg2g-epg/internal/openwebif"
	"golang.org/x/sync/errgroup"
)

const (
	// Name is the source name used in results and metrics.
	Name = "enigma2"

	DefaultMaxConcurrency = 4
)

// Receiver is the subset of the OpenWebIF client the source needs.
type Receiver interface {
	Bouquets(ctx context.Context) ([]openwebif.Bouquet, error)
	Services(ctx context.Context, bouquetRef string) ([]openwebif.Service, error)
	EPG(ctx context.Context, serviceRef string) ([]openwebif.EPGEvent, error)
}

// Options selects what is imported.
type Options struct {
	// Bouquets names the configured bouquets; empty configures all.
	Bouquets       []string
	Policy         ingest.Policy
	MaxConcurrency int
}

// Source is an ingest.Source over one receiver.
type Source struct {
	rx   Receiver
	opts Options
}

// New returns a source reading from rx.
func New(rx Receiver, opts Options) *Source {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Policy.AccessBy == "" {
		opts.Policy.AccessBy = ingest.AccessBySID
	}
	return &Source{rx: rx, opts: opts}
}

func (s *Source) Name() string { return Name }

type candidate struct {
	svc    openwebif.Service
	id     string
	inConf bool
	events []openwebif.EPGEvent
}

// Prepare lists every bouquet's services, fetches the guide of each service
// that is not excluded and builds the feed the policy admits.
func (s *Source) Prepare(ctx context.Context) (*ingest.Feed, error) {
	logger := xglog.FromContext(ctx)

	bouquets, err := s.rx.Bouquets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list bouquets: %w", ingest.ErrSourceUnavailable, err)
	}

	configured := make(map[string]bool, len(s.opts.Bouquets))
	for _, name := range s.opts.Bouquets {
		configured[strings.ToLower(strings.TrimSpace(name))] = true
	}

	var (
		cands []*candidate
		byRef = map[string]*candidate{}
	)
	for _, b := range bouquets {
		inConf := len(configured) == 0 || configured[strings.ToLower(b.Name)]
		svcs, err := s.rx.Services(ctx, b.Ref)
		if errors.Is(err, openwebif.ErrNotFound) {
			logger.Warn().Str("bouquet", b.Name).Msg("bouquet vanished while listing, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: list services of %q: %w", ingest.ErrSourceUnavailable, b.Name, err)
		}
		for _, svc := range svcs {
			if c, ok := byRef[svc.Ref]; ok {
				c.inConf = c.inConf || inConf
				continue
			}
			id := s.opts.Policy.AccessBy.Pick(ServiceID(svc.Ref), svc.Ref, svc.Name)
			if id == "" {
				id = svc.Ref
			}
			if s.opts.Policy.Excluded(id) || s.opts.Policy.Excluded(svc.Ref) {
				logger.Debug().Str(xglog.FieldTunerID, id).Msg("service excluded")
				continue
			}
			c := &candidate{svc: svc, id: id, inConf: inConf}
			byRef[svc.Ref] = c
			cands = append(cands, c)
		}
	}

	if err := s.fetchEPG(ctx, cands); err != nil {
		return nil, err
	}

	feed := &ingest.Feed{}
	events := 0
	for _, c := range cands {
		events += len(c.events)
		if !s.opts.Policy.Include(c.id, c.inConf, len(c.events) > 0) {
			continue
		}
		logger.Debug().
			Str(xglog.FieldChannel, c.svc.Name).
			Str(xglog.FieldTunerID, c.id).
			Msg("adding channel")
		feed.Add(ingest.ChannelEvent(ingest.ChannelRecord{
			Key:      c.svc.Ref,
			TunerIDs: []string{c.id},
			Name:     c.svc.Name,
		}))
		for _, ev := range c.events {
			feed.Add(ingest.ProgramEvent(programRecord(c.svc.Ref, ev)))
		}
	}
	metrics.RecordOpenWebIFEvents(events)
	return feed, nil
}

// fetchEPG loads the events of every candidate with bounded concurrency.
func (s *Source) fetchEPG(ctx context.Context, cands []*candidate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)
	for _, c := range cands {
		g.Go(func() error {
			events, err := s.rx.EPG(gctx, c.svc.Ref)
			if errors.Is(err, openwebif.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: epg of %q: %w", ingest.ErrSourceUnavailable, c.svc.Name, err)
			}
			slices.SortStableFunc(events, func(a, b openwebif.EPGEvent) int {
				return cmp.Compare(a.Begin, b.Begin)
			})
			c.events = events
			return nil
		})
	}
	return g.Wait()
}

func programRecord(ref string, ev openwebif.EPGEvent) ingest.ProgramRecord {
	p := epg.Program{
		Start:       ev.Begin,
		Stop:        ev.Begin + ev.Duration,
		Title:       strings.TrimSpace(ev.Title),
		Description: strings.TrimSpace(ev.LongDesc),
		Subtitle:    strings.TrimSpace(ev.Description),
	}
	if p.Description == "" {
		p.Description, p.Subtitle = p.Subtitle, ""
	}
	if g := strings.TrimSpace(ev.Genre); g != "" {
		p.Genres = []string{g}
		p.Category = g
	}
	return ingest.ProgramRecord{ChannelKey: ref, Program: p, Open: ev.Duration <= 0}
}

// ServiceID returns the decimal service id encoded in an Enigma2 service
// reference, or "" when ref is malformed.
func ServiceID(ref string) string {
	parts := strings.Split(ref, ":")
	if len(parts) < 4 {
		return ""
	}
	sid, err := strconv.ParseUint(parts[3], 16, 32)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(sid, 10)
}
