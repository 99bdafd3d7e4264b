// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/daemon"
	"github.com/ManuGH/xg2g-epg/internal/epg"
	"github.com/ManuGH/xg2g-epg/internal/guide"
	"github.com/ManuGH/xg2g-epg/internal/persistence/sqlite"
	"github.com/ManuGH/xg2g-epg/internal/schema"
	"github.com/spf13/cobra"
)

var errCorrupt = errors.New("integrity check failed")

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored guide as an XMLTV file",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "", "destination file, replaced atomically")
	cmd.Flags().String("from", "", "only programs still running at or after this time")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var q guide.Query
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		t, err := parseTime(from, time.Now())
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		q.Time = guide.Between(t, time.Time{})
	}

	ctx := cmd.Context()
	chans, err := rt.Store.Channels(ctx)
	if err != nil {
		return err
	}
	progs, err := rt.Guide.Search(ctx, q)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("output")
	if err := epg.WriteFile(ctx, out, epg.GenerateXMLTV(chans, progs)); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d channels and %d programs to %s\n", len(chans), len(progs), out)
	return nil
}

func newRecreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recreate",
		Short: "Move the guide database aside and create an empty one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to recreate the guide database without --yes")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, db, err := schema.NewManager(cfg.DBPath, daemon.SQLiteConfig(cfg.Store)).Recreate(cmd.Context())
			if err != nil {
				return err
			}
			_ = db.Close()

			w := cmd.OutOrStdout()
			if out.Backup != "" {
				_, _ = fmt.Fprintf(w, "previous database kept at %s\n", out.Backup)
			}
			_, _ = fmt.Fprintf(w, "created %s at schema %s\n", cfg.DBPath, out.To)
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "confirm that the stored guide is discarded")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the guide database for corruption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			mode := sqlite.VerifyQuick
			if full, _ := cmd.Flags().GetBool("full"); full {
				mode = sqlite.VerifyFull
			}
			issues, err := sqlite.VerifyIntegrity(cmd.Context(), cfg.DBPath, mode)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(issues) == 0 {
				_, _ = fmt.Fprintf(w, "%s: ok\n", cfg.DBPath)
				return nil
			}
			for _, issue := range issues {
				_, _ = fmt.Fprintln(w, issue)
			}
			return fmt.Errorf("%w: %d issues in %s", errCorrupt, len(issues), cfg.DBPath)
		},
	}
	cmd.Flags().Bool("full", false, "run the full integrity check instead of the quick one")
	return cmd
}
