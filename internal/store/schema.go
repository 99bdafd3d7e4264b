// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import "fmt"

// AttrKind describes how an attribute is stored.
type AttrKind int

const (
	// AttrSimple is stored but not queryable.
	AttrSimple AttrKind = 1 << iota
	// AttrSearchable is indexed for equality and range queries.
	AttrSearchable
	// AttrInverted is tokenized into a named inverted index.
	AttrInverted
)

// Attr declares one attribute of an object type.
type Attr struct {
	Name   string
	Column string
	Kind   AttrKind
	// Index names the inverted index fed by this attribute (AttrInverted only).
	Index string
}

// InvertedIndex declares a named token index with token length bounds in runes.
type InvertedIndex struct {
	Name     string
	MinToken int
	MaxToken int
}

// ObjectType declares a stored type.
type ObjectType struct {
	Name  string
	Table string
	Attrs []Attr
}

// Schema is the set of object types and inverted indices known to the store.
type Schema struct {
	Types   []ObjectType
	Indices []InvertedIndex
}

const (
	IndexKeywords = "keywords"
	IndexGenres   = "genres"
)

// GuideSchema is the schema of the guide database.
var GuideSchema = Schema{
	Indices: []InvertedIndex{
		{Name: IndexKeywords, MinToken: 2, MaxToken: 30},
		{Name: IndexGenres, MinToken: 3, MaxToken: 30},
	},
	Types: []ObjectType{
		{
			Name:  "channel",
			Table: "channels",
			Attrs: []Attr{
				{Name: "tuner_id", Column: "tuner_id", Kind: AttrSimple},
				{Name: "name", Column: "name", Kind: AttrSearchable},
				{Name: "long_name", Column: "long_name", Kind: AttrSearchable},
			},
		},
		{
			Name:  "program",
			Table: "programs",
			Attrs: []Attr{
				{Name: "title", Column: "title", Kind: AttrSearchable | AttrInverted, Index: IndexKeywords},
				{Name: "description", Column: "description", Kind: AttrSearchable | AttrInverted, Index: IndexKeywords},
				{Name: "start", Column: "start", Kind: AttrSearchable},
				{Name: "stop", Column: "stop", Kind: AttrSearchable},
				{Name: "episode", Column: "episode", Kind: AttrSimple},
				{Name: "subtitle", Column: "subtitle", Kind: AttrSimple | AttrInverted, Index: IndexKeywords},
				{Name: "genres", Column: "genres", Kind: AttrSimple | AttrInverted, Index: IndexGenres},
				{Name: "category", Column: "category", Kind: AttrSearchable},
				{Name: "date", Column: "date", Kind: AttrSearchable},
				{Name: "year", Column: "year", Kind: AttrSearchable},
				{Name: "rating", Column: "rating", Kind: AttrSimple},
				{Name: "advisories", Column: "advisories", Kind: AttrSimple},
				{Name: "score", Column: "score", Kind: AttrSearchable},
				{Name: "flags", Column: "flags", Kind: AttrSearchable},
				{Name: "credits", Column: "credits", Kind: AttrSimple},
			},
		},
	},
}

// Type returns the named object type.
func (s Schema) Type(name string) (ObjectType, bool) {
	for _, t := range s.Types {
		if t.Name == name {
			return t, true
		}
	}
	return ObjectType{}, false
}

// Index returns the named inverted index.
func (s Schema) Index(name string) (InvertedIndex, bool) {
	for _, ix := range s.Indices {
		if ix.Name == name {
			return ix, true
		}
	}
	return InvertedIndex{}, false
}

// Attr returns the named attribute.
func (t ObjectType) Attr(name string) (Attr, bool) {
	for _, a := range t.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// searchableColumn resolves a queryable attribute to its column.
func (t ObjectType) searchableColumn(name string) (string, error) {
	a, ok := t.Attr(name)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownAttr, t.Name, name)
	}
	if a.Kind&AttrSearchable == 0 {
		return "", fmt.Errorf("%w: %s.%s", ErrNotSearchable, t.Name, name)
	}
	return a.Column, nil
}

// InvertedSources returns, per index, the attributes feeding it.
func (t ObjectType) InvertedSources() map[string][]string {
	out := make(map[string][]string)
	for _, a := range t.Attrs {
		if a.Kind&AttrInverted != 0 {
			out[a.Index] = append(out[a.Index], a.Name)
		}
	}
	return out
}
