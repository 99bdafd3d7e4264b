// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/daemon"
	"github.com/ManuGH/xg2g-epg/internal/ingest"
	"github.com/ManuGH/xg2g-epg/internal/ingest/xmltv"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "import [xmltv|enigma2]...",
		Short:     "Import listings from the named sources, or from every enabled one",
		ValidArgs: []string{xmltv.Name, "enigma2"},
		Args:      cobra.OnlyValidArgs,
		RunE:      runImport,
	}
	cmd.Flags().String("file", "", "import this XMLTV file instead of the configured source")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	sources, err := importSources(cmd, rt, args)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no sources enabled; configure one or pass --file")
	}

	out := cmd.OutOrStdout()
	var failed []error
	for _, src := range sources {
		res, err := rt.Guide.Update(cmd.Context(), src)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", src.Name(), err))
		}
		_, _ = fmt.Fprintf(out, "%s: %s, %d channels, %d programs, %d orphans, %d invalid, %d discarded in %s\n",
			src.Name(), res.Outcome, res.Channels, res.Programs, res.Orphans, res.Invalid, res.Discarded,
			res.Duration().Round(time.Millisecond))
	}
	return errors.Join(failed...)
}

func importSources(cmd *cobra.Command, rt *daemon.Runtime, names []string) ([]ingest.Source, error) {
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		src, err := xmltv.New(xmltv.Config{DataFile: file, Exclude: rt.Config.XMLTV.Exclude})
		if err != nil {
			return nil, err
		}
		return []ingest.Source{src}, nil
	}
	if len(names) == 0 {
		return rt.Sources(), nil
	}
	out := make([]ingest.Source, 0, len(names))
	for _, name := range names {
		src, err := rt.Source(name)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
