// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// MaxXMLTVSize caps how much of a feed the decoder will read.
const MaxXMLTVSize = 256 << 20

// TV is the XMLTV document root.
type TV struct {
	XMLName    xml.Name       `xml:"tv"`
	Generator  string         `xml:"generator-info-name,attr,omitempty"`
	SourceInfo string         `xml:"source-info-name,attr,omitempty"`
	Channels   []XMLChannel   `xml:"channel"`
	Programmes []XMLProgramme `xml:"programme"`
}

type XMLChannel struct {
	ID          string     `xml:"id,attr"`
	DisplayName []LangText `xml:"display-name"`
	Icon        *Icon      `xml:"icon,omitempty"`
}

type Icon struct {
	Src string `xml:"src,attr"`
}

// LangText is character data with an optional lang attribute.
type LangText struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type XMLProgramme struct {
	Start           string        `xml:"start,attr"`
	Stop            string        `xml:"stop,attr,omitempty"`
	Channel         string        `xml:"channel,attr"`
	Title           []LangText    `xml:"title"`
	SubTitle        []LangText    `xml:"sub-title,omitempty"`
	Desc            []LangText    `xml:"desc,omitempty"`
	Credits         *XMLCredits   `xml:"credits,omitempty"`
	Date            string        `xml:"date,omitempty"`
	Category        []LangText    `xml:"category,omitempty"`
	EpisodeNum      []EpisodeNum  `xml:"episode-num,omitempty"`
	Video           *Video        `xml:"video,omitempty"`
	PreviouslyShown *Presence     `xml:"previously-shown,omitempty"`
	Premiere        *LangText     `xml:"premiere,omitempty"`
	Subtitles       []Subtitles   `xml:"subtitles,omitempty"`
	Rating          []Rating      `xml:"rating,omitempty"`
	StarRating      []Rating      `xml:"star-rating,omitempty"`
}

type XMLCredits struct {
	Director    []string `xml:"director,omitempty"`
	Actor       []string `xml:"actor,omitempty"`
	Writer      []string `xml:"writer,omitempty"`
	Adapter     []string `xml:"adapter,omitempty"`
	Producer    []string `xml:"producer,omitempty"`
	Composer    []string `xml:"composer,omitempty"`
	Editor      []string `xml:"editor,omitempty"`
	Presenter   []string `xml:"presenter,omitempty"`
	Commentator []string `xml:"commentator,omitempty"`
	Guest       []string `xml:"guest,omitempty"`
}

type EpisodeNum struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:",chardata"`
}

type Video struct {
	Colour  string `xml:"colour,omitempty"`
	Quality string `xml:"quality,omitempty"`
}

// Presence marks an empty element whose existence is the information.
type Presence struct {
	Start string `xml:"start,attr,omitempty"`
}

type Subtitles struct {
	Type string `xml:"type,attr,omitempty"`
}

type Rating struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:"value"`
}

// First returns the first non-empty value, or "".
func First(texts []LangText) string {
	for _, t := range texts {
		if t.Value != "" {
			return t.Value
		}
	}
	return ""
}

// Decoder streams <channel> and <programme> elements from an XMLTV document
// without loading it whole. It is strict and performs no entity expansion.
type Decoder struct {
	dec *xml.Decoder
}

// NewDecoder returns a Decoder reading at most MaxXMLTVSize bytes from r.
func NewDecoder(r io.Reader) *Decoder {
	dec := xml.NewDecoder(io.LimitReader(r, MaxXMLTVSize))
	dec.Strict = true
	dec.Entity = map[string]string{}
	return &Decoder{dec: dec}
}

// Next returns the next *XMLChannel or *XMLProgramme. It returns io.EOF at
// the end of the document. Other elements are skipped.
func (d *Decoder) Next() (any, error) {
	for {
		tok, err := d.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("decode xmltv: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "tv":
			continue
		case "channel":
			var ch XMLChannel
			if err := d.dec.DecodeElement(&ch, &se); err != nil {
				return nil, fmt.Errorf("decode xmltv channel: %w", err)
			}
			return &ch, nil
		case "programme":
			var p XMLProgramme
			if err := d.dec.DecodeElement(&p, &se); err != nil {
				return nil, fmt.Errorf("decode xmltv programme: %w", err)
			}
			return &p, nil
		default:
			if err := d.dec.Skip(); err != nil {
				return nil, fmt.Errorf("decode xmltv: %w", err)
			}
		}
	}
}
