// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/daemon"
	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/guide"
	"github.com/ManuGH/xg2g-epg/internal/store"
	"github.com/spf13/cobra"
)

// maxChannelDistance is the edit distance allowed when resolving --channel.
const maxChannelDistance = 2

var errUnknownChannel = errors.New("unknown channel")

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search programs by channel, time, title, genre and keyword",
		Example: `  xg2g-epg search --at now
  xg2g-epg search --channel ARD --from 2025-01-01T20:00:00Z --to 2025-01-01T23:00:00Z
  xg2g-epg search --title '%tatort%' --genre Krimi`,
		Args: cobra.NoArgs,
		RunE: runSearch,
	}
	f := cmd.Flags()
	f.StringSlice("channel", nil, "channel name or tuner id (repeatable)")
	f.String("at", "", "programs running at this instant")
	f.String("from", "", "start of a time range")
	f.String("to", "", "end of a time range")
	f.String("title", "", "SQL LIKE pattern matched against the title")
	f.StringSlice("genre", nil, "required genre (repeatable)")
	f.StringSlice("keyword", nil, "required title keyword (repeatable)")
	f.Int("limit", 0, "maximum number of results")
	cmd.MarkFlagsMutuallyExclusive("at", "from")
	cmd.MarkFlagsMutuallyExclusive("at", "to")
	return cmd
}

func runSearch(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	q, err := searchQuery(cmd, rt, time.Now())
	if err != nil {
		return err
	}
	progs, err := rt.Guide.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, p := range progs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			formatTime(p.StartTime()), formatTime(p.StopTime()), p.Channel, p.Title)
	}
	return w.Flush()
}

func searchQuery(cmd *cobra.Command, rt *daemon.Runtime, now time.Time) (guide.Query, error) {
	f := cmd.Flags()
	var q guide.Query

	names, _ := f.GetStringSlice("channel")
	if len(names) > 0 {
		chans, err := resolveChannels(rt, names)
		if err != nil {
			return q, err
		}
		q.Channels = chans
	}

	at, _ := f.GetString("at")
	from, _ := f.GetString("from")
	to, _ := f.GetString("to")
	switch {
	case at != "":
		t, err := parseTime(at, now)
		if err != nil {
			return q, fmt.Errorf("--at: %w", err)
		}
		q.Time = guide.At(t)
	case from != "" || to != "":
		start, err := parseTime(from, now)
		if err != nil {
			return q, fmt.Errorf("--from: %w", err)
		}
		var stop time.Time
		if to != "" {
			if stop, err = parseTime(to, now); err != nil {
				return q, fmt.Errorf("--to: %w", err)
			}
		}
		q.Time = guide.Between(start, stop)
	}

	if title, _ := f.GetString("title"); title != "" {
		q.Where = map[string]store.Expr{"title": store.Like(title)}
	}
	q.Genres, _ = f.GetStringSlice("genre")
	q.Keywords, _ = f.GetStringSlice("keyword")
	q.Limit, _ = f.GetInt("limit")
	return q, nil
}

func newGridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Show the programs of each channel over a time window",
		Args:  cobra.NoArgs,
		RunE:  runGrid,
	}
	f := cmd.Flags()
	f.StringSlice("channel", nil, "channel name or tuner id (repeatable); all channels when omitted")
	f.String("from", "now", "start of the window")
	f.Duration("span", 3*time.Hour, "length of the window")
	return cmd
}

func runGrid(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	f := cmd.Flags()
	fromArg, _ := f.GetString("from")
	start, err := parseTime(fromArg, time.Now())
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	span, _ := f.GetDuration("span")
	if span <= 0 {
		return errors.New("--span must be positive")
	}

	chans := rt.Guide.Registry().List(true)
	if names, _ := f.GetStringSlice("channel"); len(names) > 0 {
		if chans, err = resolveChannels(rt, names); err != nil {
			return err
		}
	}

	grid, err := rt.Guide.Grid(cmd.Context(), chans, start, start.Add(span))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, ch := range chans {
		_, _ = fmt.Fprintf(out, "%s\n", ch)
		for _, p := range grid[i] {
			_, _ = fmt.Fprintf(out, "  %s-%s  %s\n", formatTime(p.StartTime()), p.StopTime().Local().Format("15:04"), p.Title)
		}
	}
	return nil
}

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List the stored channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			return printChannels(cmd.OutOrStdout(), rt.Guide.Registry().List(true))
		},
	}
}

func printChannels(out io.Writer, chans []*epg.Channel) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTUNER IDS\tNAME\tLONG NAME")
	for _, ch := range chans {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ch.ID, strings.Join(ch.TunerIDs, ","), ch.Name, ch.LongName)
	}
	return w.Flush()
}

func newTermsCmd(index, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   index + " [prefix]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			with, _ := cmd.Flags().GetStringSlice("with")

			list := rt.Guide.Keywords
			if index == "genres" {
				list = rt.Guide.Genres
			}
			terms, err := list(cmd.Context(), prefix, with...)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range terms {
				_, _ = fmt.Fprintf(w, "%s\t%d\n", t.Term, t.Count)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringSlice("with", nil, "only count programs that also carry these terms")
	return cmd
}

// resolveChannels maps names or tuner ids onto registry channels.
func resolveChannels(rt *daemon.Runtime, names []string) ([]*epg.Channel, error) {
	reg := rt.Guide.Registry()
	out := make([]*epg.Channel, 0, len(names))
	for _, name := range names {
		if ch, ok := reg.ByTunerID(name); ok {
			out = append(out, ch)
			continue
		}
		ch, ok := reg.Find(name, maxChannelDistance)
		if !ok {
			return nil, fmt.Errorf("%w: %q", errUnknownChannel, name)
		}
		out = append(out, ch)
	}
	return out, nil
}

// parseTime accepts "now", unix seconds, RFC 3339 and local "2006-01-02 15:04".
func parseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return now, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func formatTime(t time.Time) string { return t.Local().Format("2006-01-02 15:04") }
