// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ManuGH/xg2g-epg/internal/epg"
)

// Op is a comparison operator.
type Op string

const (
	OpEq    Op = "="
	OpGE    Op = ">="
	OpLE    Op = "<="
	OpGT    Op = ">"
	OpLT    Op = "<"
	OpRange Op = "range"
	OpIn    Op = "in"
	OpLike  Op = "like"
)

// Expr is a comparison against one attribute.
type Expr struct {
	Op     Op
	Values []any
}

func Eq(v any) Expr { return Expr{Op: OpEq, Values: []any{v}} }
func GE(v any) Expr { return Expr{Op: OpGE, Values: []any{v}} }
func LE(v any) Expr { return Expr{Op: OpLE, Values: []any{v}} }
func GT(v any) Expr { return Expr{Op: OpGT, Values: []any{v}} }
func LT(v any) Expr { return Expr{Op: OpLT, Values: []any{v}} }
func Range(lo, hi any) Expr { return Expr{Op: OpRange, Values: []any{lo, hi}} }
func In(vs ...any) Expr { return Expr{Op: OpIn, Values: vs} }
func Like(pattern string) Expr { return Expr{Op: OpLike, Values: []any{pattern}} }

func (e Expr) sql(col string) (string, []any, error) {
	switch e.Op {
	case OpEq, OpGE, OpLE, OpGT, OpLT:
		if len(e.Values) != 1 {
			return "", nil, fmt.Errorf("%w: %s wants one value", ErrInvalidExpr, e.Op)
		}
		return col + " " + string(e.Op) + " ?", e.Values, nil
	case OpRange:
		if len(e.Values) != 2 {
			return "", nil, fmt.Errorf("%w: range wants two values", ErrInvalidExpr)
		}
		return col + " BETWEEN ? AND ?", e.Values, nil
	case OpIn:
		if len(e.Values) == 0 {
			return "0", nil, nil
		}
		return col + " IN (" + placeholders(len(e.Values)) + ")", e.Values, nil
	case OpLike:
		if len(e.Values) != 1 {
			return "", nil, fmt.Errorf("%w: like wants one value", ErrInvalidExpr)
		}
		return col + " LIKE ?", e.Values, nil
	default:
		return "", nil, fmt.Errorf("%w: operator %q", ErrInvalidExpr, e.Op)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Cond binds an expression to a program attribute.
type Cond struct {
	Attr string
	Expr Expr
}

// Query selects programs.
type Query struct {
	// Parents restricts results to these channel ids. nil means all channels;
	// an empty non-nil slice matches nothing.
	Parents []int64
	Where   []Cond
	// Terms maps an inverted index name to terms that must all match.
	Terms map[string][]string
	Limit int
}

// Row is a raw program record.
type Row struct {
	ID          int64
	ParentID    int64
	Start       int64
	Stop        int64
	Title       string
	Description string
	Subtitle    string
	Episode     string
	Genres      []string
	Category    string
	Date        int64
	Year        int64
	Rating      string
	Advisories  []string
	Score       float64
	Flags       int64
	Credits     []epg.Credit
}

// Attrs projects the row onto the named attributes. Unknown names map to nil.
func (r *Row) Attrs(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		switch n {
		case "id":
			out[i] = r.ID
		case "parent_id":
			out[i] = r.ParentID
		case "start":
			out[i] = r.Start
		case "stop":
			out[i] = r.Stop
		case "title":
			out[i] = r.Title
		case "description":
			out[i] = r.Description
		case "subtitle":
			out[i] = r.Subtitle
		case "episode":
			out[i] = r.Episode
		case "genres":
			out[i] = r.Genres
		case "category":
			out[i] = r.Category
		case "date":
			out[i] = r.Date
		case "year":
			out[i] = r.Year
		case "rating":
			out[i] = r.Rating
		case "advisories":
			out[i] = r.Advisories
		case "score":
			out[i] = r.Score
		case "flags":
			out[i] = r.Flags
		case "credits":
			out[i] = r.Credits
		}
	}
	return out
}

// Program converts the row into a Program bound to ch.
func (r *Row) Program(ch *epg.Channel) *epg.Program {
	return &epg.Program{
		ID:          r.ID,
		Channel:     ch,
		Start:       r.Start,
		Stop:        r.Stop,
		Title:       r.Title,
		Description: r.Description,
		Subtitle:    r.Subtitle,
		Episode:     r.Episode,
		Genres:      r.Genres,
		Category:    r.Category,
		Date:        r.Date,
		Year:        r.Year,
		Rating:      r.Rating,
		Advisories:  r.Advisories,
		Score:       r.Score,
		Flags:       epg.Flag(r.Flags),
		Credits:     r.Credits,
	}
}

const programColumns = "id, parent_id, start, stop, title, description, subtitle, episode, genres, category, date, year, rating, advisories, score, flags, credits"

// rowCursor is the part of *sql.Rows that collectRows reads.
type rowCursor interface {
	scanner
	Next() bool
	Err() error
	Close() error
}

// collectRows drains and closes rows. An iteration error is reported even
// when Next simply stopped.
func collectRows(rows rowCursor) (all []Row, err error) {
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = cerr
		}
	}()
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, r)
	}
	return all, rows.Err()
}

func scanRow(sc scanner) (Row, error) {
	var (
		r                          Row
		genres, advisories, credit string
	)
	if err := sc.Scan(&r.ID, &r.ParentID, &r.Start, &r.Stop, &r.Title, &r.Description, &r.Subtitle,
		&r.Episode, &genres, &r.Category, &r.Date, &r.Year, &r.Rating, &advisories, &r.Score,
		&r.Flags, &credit); err != nil {
		return Row{}, err
	}
	for _, f := range []struct {
		raw string
		dst any
	}{{genres, &r.Genres}, {advisories, &r.Advisories}, {credit, &r.Credits}} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return Row{}, fmt.Errorf("program %d: %w", r.ID, err)
		}
	}
	return r, nil
}

func (s *Store) buildQuery(q Query) (string, []any, error) {
	t, _ := s.schema.Type("program")
	var (
		where []string
		args  []any
	)
	if q.Parents != nil {
		if len(q.Parents) == 0 {
			where = append(where, "0")
		} else {
			where = append(where, "parent_id IN ("+placeholders(len(q.Parents))+")")
			for _, id := range q.Parents {
				args = append(args, id)
			}
		}
	}
	for _, c := range q.Where {
		col, err := t.searchableColumn(c.Attr)
		if err != nil {
			return "", nil, err
		}
		clause, a, err := c.Expr.sql(col)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", c.Attr, err)
		}
		where = append(where, clause)
		args = append(args, a...)
	}
	for index, terms := range q.Terms {
		ix, ok := s.schema.Index(index)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrUnknownIndex, index)
		}
		var toks []string
		for _, term := range terms {
			toks = append(toks, Tokenize(term, ix)...)
		}
		if len(toks) == 0 && len(terms) > 0 {
			// every term was filtered out by length bounds
			where = append(where, "0")
		}
		for _, tok := range toks {
			where = append(where, "id IN (SELECT program_id FROM inverted_terms WHERE index_name = ? AND term = ?)")
			args = append(args, ix.Name, tok)
		}
	}

	sqlText := "SELECT " + programColumns + " FROM programs"
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY parent_id, start, id"
	if q.Limit > 0 {
		sqlText += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return sqlText, args, nil
}

// Query runs q and returns rows ordered by (parent_id, start, id).
func (s *Store) Query(ctx context.Context, q Query) ([]Row, error) {
	sqlText, args, err := s.buildQuery(q)
	if err != nil {
		return nil, err
	}
	var out []Row
	err = s.read(ctx, "query", func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		out, err = collectRows(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query programs: %w", err)
	}
	return out, nil
}
