// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package xmltv imports XMLTV listings, optionally running a grabber and a
// sort program first.
package xmltv

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/ingest"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/procgroup"
)

// Name is the source name used in results and metrics.
const Name = "xmltv"

var ErrNotConfigured = errors.New("xmltv: no data file configured")

// Config describes where listings come from.
type Config struct {
	// DataFile is read after the grabber, if any, wrote it.
	DataFile string
	// Grabber is the grabber command line; it is called with
	// --output <DataFile> --days <Days> appended.
	Grabber string
	Args    []string
	Days    int
	// Sort is the path of tv_sort or a compatible program.
	Sort    string
	Exclude []string
	// Location interprets times without a zone; nil means time.Local.
	Location *time.Location
	// Grace is how long a cancelled helper gets before SIGKILL.
	Grace time.Duration
}

// Source is an ingest.Source over an XMLTV file.
type Source struct {
	cfg     Config
	exclude ingest.Policy
}

// New validates cfg.
func New(cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.DataFile) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Days <= 0 {
		cfg.Days = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p, err := ingest.NewPolicy("", "", cfg.Exclude)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: cfg, exclude: p}, nil
}

func (s *Source) Name() string { return Name }

// Path returns the data file.
func (s *Source) Path() string { return s.cfg.DataFile }

// Prepare runs the grabber and sort step when configured and parses the data
// file.
func (s *Source) Prepare(ctx context.Context) (*ingest.Feed, error) {
	if s.cfg.Grabber != "" {
		if err := s.grab(ctx); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(s.cfg.DataFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ingest.ErrSourceUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	feed, err := Parse(ctx, f, ParseOptions{Location: s.cfg.Location, Exclude: s.exclude})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ingest.ErrSourceUnavailable, s.cfg.DataFile, err)
	}
	return feed, nil
}

func (s *Source) logPath() string { return s.cfg.DataFile + ".log" }

func (s *Source) grab(ctx context.Context) error {
	logger := xglog.FromContext(ctx)
	logFile, err := os.Create(s.logPath())
	if err != nil {
		return fmt.Errorf("%w: grabber log: %w", ingest.ErrSourceUnavailable, err)
	}
	defer func() { _ = logFile.Close() }()

	argv := append(strings.Fields(s.cfg.Grabber), s.cfg.Args...)
	argv = append(argv, "--output", s.cfg.DataFile, "--days", strconv.Itoa(s.cfg.Days))
	logger.Info().Str(xglog.FieldPath, argv[0]).Str(xglog.FieldEvent, "xmltv.grab").Msg("grabbing listings")
	if err := s.run(ctx, argv, logFile); err != nil {
		return fmt.Errorf("%w: grabber failed, see %s: %w", ingest.ErrSourceUnavailable, s.logPath(), err)
	}
	if _, err := os.Stat(s.cfg.DataFile); err != nil {
		return fmt.Errorf("%w: grabber wrote no output, see %s: %w", ingest.ErrSourceUnavailable, s.logPath(), err)
	}

	if s.cfg.Sort == "" {
		logger.Debug().Msg("no sort program configured, skipping")
		return nil
	}
	logger.Info().Str(xglog.FieldEvent, "xmltv.sort").Msg("sorting listings")
	tmp := s.cfg.DataFile + ".tmp"
	if err := os.Rename(s.cfg.DataFile, tmp); err != nil {
		return fmt.Errorf("%w: %w", ingest.ErrSourceUnavailable, err)
	}
	defer func() { _ = os.Remove(tmp) }()
	if err := s.run(ctx, []string{s.cfg.Sort, "--output", s.cfg.DataFile, tmp}, logFile); err != nil {
		return fmt.Errorf("%w: sort failed, see %s: %w", ingest.ErrSourceUnavailable, s.logPath(), err)
	}
	if _, err := os.Stat(s.cfg.DataFile); err != nil {
		return fmt.Errorf("%w: sort wrote no output, see %s: %w", ingest.ErrSourceUnavailable, s.logPath(), err)
	}
	return nil
}

func (s *Source) run(ctx context.Context, argv []string, out io.Writer) error {
	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- operator-configured helper
	cmd.Stdout = out
	cmd.Stderr = out
	return procgroup.Run(ctx, cmd, s.cfg.Grace)
}

// ParseOptions tunes Parse.
type ParseOptions struct {
	Location *time.Location
	// Exclude drops channels by XMLTV id or tuner id, with their programmes.
	Exclude ingest.Policy
}

// Parse streams an XMLTV document into a feed. Channels keep document order;
// each run of consecutive programmes is stably sorted by start so that open
// records close against their true successor. Programmes without a title are
// skipped, programmes with unreadable times are counted invalid.
func Parse(ctx context.Context, r io.Reader, opts ParseOptions) (*ingest.Feed, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	logger := xglog.FromContext(ctx)
	dec := epg.NewDecoder(r)
	feed := &ingest.Feed{}
	excluded := map[string]bool{}
	runStart := -1

	flush := func() {
		if runStart >= 0 {
			sortPrograms(feed.Events[runStart:])
			runStart = -1
		}
	}

	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		el, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch x := el.(type) {
		case *epg.XMLChannel:
			flush()
			tunerIDs, name, longName := x.ChannelIdentity()
			// "ZDF HD" or "3sat" never classify as a station name
			if name == "" {
				name = longName
			}
			if name == "" {
				name = x.ID
			}
			if opts.Exclude.Excluded(x.ID) || (len(tunerIDs) > 0 && opts.Exclude.Excluded(tunerIDs[0])) {
				excluded[x.ID] = true
				logger.Debug().Str(xglog.FieldChannel, x.ID).Msg("channel excluded")
				continue
			}
			feed.Add(ingest.ChannelEvent(ingest.ChannelRecord{
				Key:      x.ID,
				TunerIDs: tunerIDs,
				Name:     name,
				LongName: longName,
			}))

		case *epg.XMLProgramme:
			if excluded[x.Channel] {
				continue
			}
			p, open, err := x.ToProgram(opts.Location)
			if errors.Is(err, epg.ErrNoTitle) {
				continue
			}
			if err != nil {
				feed.Invalid++
				logger.Warn().Err(err).Str(xglog.FieldChannel, x.Channel).Msg("programme skipped")
				continue
			}
			if runStart < 0 {
				runStart = len(feed.Events)
			}
			feed.Add(ingest.ProgramEvent(ingest.ProgramRecord{ChannelKey: x.Channel, Program: *p, Open: open}))
		}
	}
	flush()
	return feed, nil
}

func sortPrograms(events []ingest.Event) {
	slices.SortStableFunc(events, func(a, b ingest.Event) int {
		return cmp.Compare(a.Program.Program.Start, b.Program.Program.Start)
	})
}
