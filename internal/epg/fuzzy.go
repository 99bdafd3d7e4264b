// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

// FindBest looks up name in index, first by exact NameKey and then by the
// closest key within maxDist edits. Ties resolve to the lexically smallest key.
func FindBest[V any](name string, index map[string]V, maxDist int) (V, bool) {
	var zero V
	key := NameKey(name)
	if key == "" {
		return zero, false
	}

	if v, ok := index[key]; ok {
		return v, true
	}

	bestKey := ""
	bestDist := maxDist + 1
	for k := range index {
		dist := levenshtein(key, k)
		if dist < bestDist || (dist == bestDist && k < bestKey) {
			bestDist = dist
			bestKey = k
		}
	}

	if bestDist <= maxDist {
		return index[bestKey], true
	}
	return zero, false
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
