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
)

// ErrBadTime is returned for timestamps that match none of the XMLTV layouts.
var ErrBadTime = errors.New("epg: malformed xmltv time")

const xmltvLayout = "20060102150405 -0700"

// zone abbreviations seen in the wild; anything else must be numeric
var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0, "Z": 0,
	"WET": 0, "WEST": 1 * 3600, "BST": 1 * 3600,
	"CET": 1 * 3600, "CEST": 2 * 3600,
	"EET": 2 * 3600, "EEST": 3 * 3600,
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
}

// FormatTime renders t in XMLTV form, e.g. "20250101200000 +0000".
func FormatTime(t time.Time) string { return t.Format(xmltvLayout) }

// ParseTime parses an XMLTV timestamp: "YYYYMMDDhhmmss +hhmm". Seconds,
// minutes and the zone are optional. The zone may also be "+h", "+hh:mm" or
// a common abbreviation. A missing zone means loc (time.Local when nil).
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	value, zone, _ := strings.Cut(strings.TrimSpace(s), " ")
	zone = strings.TrimSpace(zone)

	if len(value) < 8 || !allDigits(value) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}
	// YYYYMMDD[hh[mm[ss]]]
	fields := [6]int{0, 1, 1, 0, 0, 0}
	widths := [6]int{4, 2, 2, 2, 2, 2}
	pos := 0
	for i, w := range widths {
		if pos+w > len(value) {
			break
		}
		n, _ := strconv.Atoi(value[pos : pos+w])
		fields[i] = n
		pos += w
	}
	if pos != len(value) && len(value) <= 14 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadTime, s)
	}

	if zone != "" {
		off, err := parseZone(zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: %v", ErrBadTime, s, err)
		}
		loc = time.FixedZone(zone, off)
	} else if loc == nil {
		loc = time.Local
	}

	t := time.Date(fields[0], time.Month(fields[1]), fields[2], fields[3], fields[4], fields[5], 0, loc)
	if t.Month() != time.Month(fields[1]) || t.Day() != fields[2] || fields[3] > 23 || fields[4] > 59 || fields[5] > 60 {
		return time.Time{}, fmt.Errorf("%w: %q: out of range", ErrBadTime, s)
	}
	return t, nil
}

func parseZone(zone string) (int, error) {
	if off, ok := zoneOffsets[strings.ToUpper(zone)]; ok {
		return off, nil
	}
	if zone[0] != '+' && zone[0] != '-' {
		return 0, fmt.Errorf("unknown zone %q", zone)
	}
	sign := 1
	if zone[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(zone[1:], ":", "")
	if digits == "" || len(digits) > 4 || !allDigits(digits) {
		return 0, fmt.Errorf("bad offset %q", zone)
	}
	var h, m int
	switch len(digits) {
	case 1, 2:
		h, _ = strconv.Atoi(digits)
	case 3:
		h, _ = strconv.Atoi(digits[:1])
		m, _ = strconv.Atoi(digits[1:])
	default:
		h, _ = strconv.Atoi(digits[:2])
		m, _ = strconv.Atoi(digits[2:])
	}
	if h > 14 || m > 59 {
		return 0, fmt.Errorf("bad offset %q", zone)
	}
	return sign * (h*3600 + m*60), nil
}

// ParseDate parses an original-air-date: "YYYY", "YYYYMMDD" or "YYYY-MM-DD",
// optionally followed by more characters. Dates are taken as UTC midnight.
func ParseDate(s string) (date time.Time, year int, err error) {
	s = strings.TrimSpace(s)
	compact := strings.ReplaceAll(s, "-", "")
	switch {
	case len(compact) >= 8 && allDigits(compact[:8]):
		date, err = time.Parse("20060102", compact[:8])
	case len(compact) >= 4 && allDigits(compact[:4]) && (len(compact) == 4 || !isDigit(compact[4])):
		date, err = time.Parse("2006", compact[:4])
	default:
		err = fmt.Errorf("%w: date %q", ErrBadTime, s)
	}
	if err != nil {
		return time.Time{}, 0, err
	}
	return date, date.Year(), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
