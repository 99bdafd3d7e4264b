// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Tokenize splits text into folded terms for ix. Terms outside the index's
// length bounds are dropped; duplicates are removed, first occurrence wins.
func Tokenize(text string, ix InvertedIndex) []string {
	fold := cases.Fold()
	words := strings.FieldsFunc(norm.NFKC.String(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = fold.String(w)
		n := utf8.RuneCountInString(w)
		if n < ix.MinToken || (ix.MaxToken > 0 && n > ix.MaxToken) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// TermCount is one inverted index term and the number of programs carrying it.
type TermCount struct {
	Term  string
	Count int
}

// TermList lists the terms of index, optionally restricted to terms starting
// with prefix and to programs that also carry every associated term. Terms are
// ordered by descending count, then term.
func (s *Store) TermList(ctx context.Context, index, prefix string, associated []string) ([]TermCount, error) {
	ix, ok := s.schema.Index(index)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, index)
	}

	var (
		where = []string{"t.index_name = ?"}
		args  = []any{ix.Name}
	)
	if prefix != "" {
		where = append(where, `t.term LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(cases.Fold().String(prefix))+"%")
	}
	var assoc []string
	for _, a := range associated {
		assoc = append(assoc, Tokenize(a, ix)...)
	}
	for _, a := range assoc {
		where = append(where,
			"t.program_id IN (SELECT program_id FROM inverted_terms WHERE index_name = ? AND term = ?)",
			"t.term <> ?")
		args = append(args, ix.Name, a, a)
	}

	q := "SELECT t.term, COUNT(*) AS n FROM inverted_terms t WHERE " +
		strings.Join(where, " AND ") +
		" GROUP BY t.term ORDER BY n DESC, t.term"

	var out []TermCount
	err := s.read(ctx, "term_list", func(ctx context.Context) error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var tc TermCount
			if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
				return err
			}
			out = append(out, tc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("term list %s: %w", index, err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// indexProgram writes the inverted terms for one program.
func (s *Store) indexProgram(ctx context.Context, tx *sql.Tx, id int64, values map[string][]string) error {
	for index, texts := range values {
		ix, ok := s.schema.Index(index)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownIndex, index)
		}
		seen := map[string]struct{}{}
		for _, text := range texts {
			for _, term := range Tokenize(text, ix) {
				if _, dup := seen[term]; dup {
					continue
				}
				seen[term] = struct{}{}
				if _, err := tx.ExecContext(ctx,
					"INSERT OR IGNORE INTO inverted_terms (index_name, term, program_id) VALUES (?, ?, ?)",
					ix.Name, term, id); err != nil {
					return fmt.Errorf("index term: %w", err)
				}
			}
		}
	}
	return nil
}
