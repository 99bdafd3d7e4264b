// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrNoTitle marks a programme element without a title; such programmes are skipped.
var ErrNoTitle = errors.New("epg: programme has no title")

// ChannelIdentity extracts tuner id, name and long name from the display
// names. The first all-digit name is the tuner id, the first all-letter name
// is the station name, and the first name after both is the long name. When
// no long name is found the last unclassified name (or the station) is used.
func (c *XMLChannel) ChannelIdentity() (tunerIDs []string, name, longName string) {
	var tuner, station, display string
	for _, dn := range c.DisplayName {
		v := strings.TrimSpace(dn.Value)
		switch {
		case tuner == "" && isAll(v, unicode.IsDigit):
			tuner = v
		case station == "" && isAll(v, unicode.IsLetter):
			station = v
		case tuner != "" && station != "" && longName == "":
			longName = v
		default:
			if v != "" {
				display = v
			}
		}
	}
	if longName == "" {
		longName = display
		if longName == "" {
			longName = station
		}
	}
	if tuner != "" {
		tunerIDs = []string{tuner}
	}
	return tunerIDs, station, longName
}

func isAll(s string, pred func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// ToProgram converts the element into a Program without a channel. open is
// true when the element has no stop time; Stop is then 0. Times without a
// zone are read in loc.
func (x *XMLProgramme) ToProgram(loc *time.Location) (p *Program, open bool, err error) {
	title := strings.TrimSpace(First(x.Title))
	if title == "" {
		return nil, false, ErrNoTitle
	}
	start, err := ParseTime(x.Start, loc)
	if err != nil {
		return nil, false, fmt.Errorf("start: %w", err)
	}

	p = &Program{
		Start:       start.Unix(),
		Title:       title,
		Description: First(x.Desc),
		Subtitle:    First(x.SubTitle),
		Episode:     x.episode(),
	}
	if x.Stop == "" {
		open = true
	} else {
		stop, err := ParseTime(x.Stop, loc)
		if err != nil {
			return nil, false, fmt.Errorf("stop: %w", err)
		}
		p.Stop = stop.Unix()
	}

	for _, c := range x.Category {
		if v := strings.TrimSpace(c.Value); v != "" {
			p.Genres = append(p.Genres, v)
		}
	}
	if len(p.Genres) > 0 {
		p.Category = p.Genres[0]
	}

	if x.Date != "" {
		if d, year, err := ParseDate(x.Date); err == nil {
			p.Date = d.Unix()
			p.Year = int64(year)
		}
	}

	p.Credits = x.Credits.list()

	for _, r := range x.Rating {
		v := strings.TrimSpace(r.Value)
		switch {
		case v == "":
		case strings.EqualFold(r.System, "advisory"):
			p.Advisories = append(p.Advisories, v)
		case p.Rating == "":
			p.Rating = v
		}
	}
	if len(x.StarRating) > 0 {
		p.Score = parseStars(x.StarRating[0].Value)
	}

	p.Flags = x.flags()
	return p, open, nil
}

func (x *XMLProgramme) episode() string {
	for _, e := range x.EpisodeNum {
		if e.System == "onscreen" && e.Value != "" {
			return strings.TrimSpace(e.Value)
		}
	}
	for _, e := range x.EpisodeNum {
		if e.Value != "" {
			return strings.TrimSpace(e.Value)
		}
	}
	return ""
}

func (x *XMLProgramme) flags() Flag {
	var f Flag
	if v := x.Video; v != nil {
		if strings.Contains(strings.ToUpper(v.Quality), "HD") {
			f |= FlagHDTV
		}
		if strings.EqualFold(v.Colour, "no") {
			f |= FlagBW
		}
	}
	for _, s := range x.Subtitles {
		f |= FlagSubtitled
		if s.Type == "deaf-signed" {
			f |= FlagCC
		}
	}
	if x.PreviouslyShown != nil {
		f |= FlagRerun
	}
	if x.Premiere != nil {
		f |= FlagPremiere
	}
	return f
}

// parseStars turns "3/4" or "7.5/10" into a score out of 4.
func parseStars(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0
	}
	n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
	d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err1 != nil || err2 != nil || d <= 0 {
		return 0
	}
	return n / d * 4.0
}

var creditRoles = []string{"director", "actor", "writer", "adapter", "producer", "composer", "editor", "presenter", "commentator", "guest"}

func (c *XMLCredits) byRole() [][]string {
	return [][]string{c.Director, c.Actor, c.Writer, c.Adapter, c.Producer, c.Composer, c.Editor, c.Presenter, c.Commentator, c.Guest}
}

func (c *XMLCredits) list() []Credit {
	if c == nil {
		return nil
	}
	var out []Credit
	for i, names := range c.byRole() {
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, Credit{Role: creditRoles[i], Name: n})
			}
		}
	}
	return out
}

func creditsXML(credits []Credit) *XMLCredits {
	if len(credits) == 0 {
		return nil
	}
	c := &XMLCredits{}
	slots := map[string]*[]string{
		"director": &c.Director, "actor": &c.Actor, "writer": &c.Writer, "adapter": &c.Adapter,
		"producer": &c.Producer, "composer": &c.Composer, "editor": &c.Editor,
		"presenter": &c.Presenter, "commentator": &c.Commentator, "guest": &c.Guest,
	}
	for _, cr := range credits {
		if s, ok := slots[cr.Role]; ok {
			*s = append(*s, cr.Name)
		}
	}
	return c
}
