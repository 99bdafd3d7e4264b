// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"regexp"
	"strings"

	unorm "golang.org/x/text/unicode/norm"
)

var (
	suffix = regexp.MustCompile(`\s+(hd|uhd|4k|sd)$`)
	space  = regexp.MustCompile(`\s+`)
)

func normalize(s string) string {
	s = unorm.NFC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	// lowercasing may create new combining sequences
	s = unorm.NFC.String(s)

	// "Ch HD" and "Ch UHD 4K" both reduce to "ch"
	for {
		before := s
		s = suffix.ReplaceAllString(s, "")
		if s == before {
			break
		}
	}

	s = space.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NameKey generates a normalized key from a channel name for matching.
func NameKey(s string) string { return normalize(s) }

// FoldTerm normalizes a search term for the inverted indices: NFKC, lower case.
func FoldTerm(s string) string {
	return strings.ToLower(unorm.NFKC.String(strings.TrimSpace(s)))
}
