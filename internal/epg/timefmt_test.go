// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"errors"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	berlin := time.FixedZone("test", 2*3600)
	tests := []struct {
		in   string
		want int64
	}{
		{"20250101200000 +0000", time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC).Unix()},
		{"20250101200000 +0100", time.Date(2025, 1, 1, 19, 0, 0, 0, time.UTC).Unix()},
		{"202501012000 -0500", time.Date(2025, 1, 2, 1, 0, 0, 0, time.UTC).Unix()},
		{"20250101200000 +1", time.Date(2025, 1, 1, 19, 0, 0, 0, time.UTC).Unix()},
		{"20250101200000 +01:30", time.Date(2025, 1, 1, 18, 30, 0, 0, time.UTC).Unix()},
		{"20250101200000 CET", time.Date(2025, 1, 1, 19, 0, 0, 0, time.UTC).Unix()},
		{"20250101200000 GMT", time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC).Unix()},
		{"20020702100000 CDT", time.Date(2002, 7, 2, 15, 0, 0, 0, time.UTC).Unix()},
		// no zone: read in the supplied location
		{"20250101200000", time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC).Unix()},
		{"20250101", time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC).Unix()},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in, berlin)
		if err != nil {
			t.Errorf("ParseTime(%q): %v", tt.in, err)
			continue
		}
		if got.Unix() != tt.want {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got.UTC(), time.Unix(tt.want, 0).UTC())
		}
	}
}

func TestParseTime_Rejects(t *testing.T) {
	for _, in := range []string{"", "2025", "202501012", "20251301000000 +0000", "20250101250000 +0000", "20250101200000 XYZ", "20250101200000 +99"} {
		if _, err := ParseTime(in, time.UTC); !errors.Is(err, ErrBadTime) {
			t.Errorf("ParseTime(%q) err = %v, want ErrBadTime", in, err)
		}
	}
	// hour precision is accepted
	if _, err := ParseTime("2025010120", time.UTC); err != nil {
		t.Errorf("hour precision: %v", err)
	}
}

func TestFormatTime_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	got, err := ParseTime(FormatTime(ts), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(ts) {
		t.Fatalf("round trip: got %v want %v", got, ts)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		year int
	}{
		{"1999", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), 1999},
		{"20020702", time.Date(2002, 7, 2, 0, 0, 0, 0, time.UTC), 2002},
		{"2002-07-02", time.Date(2002, 7, 2, 0, 0, 0, 0, time.UTC), 2002},
		{"2002 (DE)", time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC), 2002},
	}
	for _, tt := range tests {
		got, year, err := ParseDate(tt.in)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) || year != tt.year {
			t.Errorf("ParseDate(%q) = %v/%d, want %v/%d", tt.in, got, year, tt.want, tt.year)
		}
	}
	if _, _, err := ParseDate("soon"); err == nil {
		t.Error("ParseDate accepted garbage")
	}
}
