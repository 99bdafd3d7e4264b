// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/google/renameio/v2"
)

// ChannelXMLID is the XMLTV id used when exporting ch.
func ChannelXMLID(ch *Channel) string {
	return strconv.FormatInt(ch.ID, 10) + ".xg2g-epg"
}

// GenerateXMLTV builds an XMLTV document from stored channels and programs.
// Programs whose channel is not in channels are left out.
func GenerateXMLTV(channels []*Channel, programs []*Program) *TV {
	tv := &TV{Generator: "xg2g-epg"}
	ids := make(map[int64]string, len(channels))
	for _, ch := range channels {
		id := ChannelXMLID(ch)
		ids[ch.ID] = id
		xc := XMLChannel{ID: id}
		for _, t := range ch.TunerIDs {
			xc.DisplayName = append(xc.DisplayName, LangText{Value: t})
		}
		if ch.Name != "" {
			xc.DisplayName = append(xc.DisplayName, LangText{Value: ch.Name})
		}
		if ch.LongName != "" && ch.LongName != ch.Name {
			xc.DisplayName = append(xc.DisplayName, LangText{Value: ch.LongName})
		}
		tv.Channels = append(tv.Channels, xc)
	}

	for _, p := range programs {
		if p.Channel == nil {
			continue
		}
		id, ok := ids[p.Channel.ID]
		if !ok {
			continue
		}
		tv.Programmes = append(tv.Programmes, programmeXML(p, id))
	}
	return tv
}

func programmeXML(p *Program, channelID string) XMLProgramme {
	x := XMLProgramme{
		Start:   FormatTime(p.StartTime()),
		Stop:    FormatTime(p.StopTime()),
		Channel: channelID,
		Title:   []LangText{{Value: p.Title}},
		Credits: creditsXML(p.Credits),
	}
	if p.Subtitle != "" {
		x.SubTitle = []LangText{{Value: p.Subtitle}}
	}
	if p.Description != "" {
		x.Desc = []LangText{{Value: p.Description}}
	}
	if p.Date != 0 {
		x.Date = time.Unix(p.Date, 0).UTC().Format("20060102")
	}
	for _, g := range p.Genres {
		x.Category = append(x.Category, LangText{Value: g})
	}
	if p.Episode != "" {
		x.EpisodeNum = []EpisodeNum{{System: "onscreen", Value: p.Episode}}
	}
	if p.Flags.Has(FlagHDTV) || p.Flags.Has(FlagBW) {
		x.Video = &Video{}
		if p.Flags.Has(FlagHDTV) {
			x.Video.Quality = "HDTV"
		}
		if p.Flags.Has(FlagBW) {
			x.Video.Colour = "no"
		}
	}
	if p.Flags.Has(FlagRerun) {
		x.PreviouslyShown = &Presence{}
	}
	if p.Flags.Has(FlagPremiere) {
		x.Premiere = &LangText{}
	}
	switch {
	case p.Flags.Has(FlagCC):
		x.Subtitles = []Subtitles{{Type: "deaf-signed"}}
	case p.Flags.Has(FlagSubtitled):
		x.Subtitles = []Subtitles{{Type: "teletext"}}
	}
	if p.Rating != "" {
		x.Rating = append(x.Rating, Rating{Value: p.Rating})
	}
	for _, a := range p.Advisories {
		x.Rating = append(x.Rating, Rating{System: "advisory", Value: a})
	}
	if p.Score > 0 {
		x.StarRating = []Rating{{Value: strconv.FormatFloat(p.Score, 'f', -1, 64) + "/4"}}
	}
	return x
}

// WriteXMLTV encodes tv with the XML header.
func WriteXMLTV(w io.Writer, tv *TV) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteFile writes tv to path atomically: fsync before rename.
func WriteFile(ctx context.Context, path string, tv *TV) error {
	logger := xglog.FromContext(ctx)

	pendingFile, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending XMLTV file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending XMLTV file")
		}
	}()

	if err := WriteXMLTV(pendingFile, tv); err != nil {
		return fmt.Errorf("write XMLTV data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit XMLTV file: %w", err)
	}
	return nil
}
