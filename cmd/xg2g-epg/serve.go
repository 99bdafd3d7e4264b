// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ManuGH/xg2g-epg/internal/daemon"
	"github.com/ManuGH/xg2g-epg/internal/health"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh daemon and the ops listener",
		Long: "Opens the guide, refreshes it from every enabled source on the configured interval, " +
			"watches the XMLTV data file and serves /healthz, /readyz and /metrics until interrupted.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := xglog.WithComponent("daemon")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return err
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	rt, err := daemon.Open(ctx, cfg)
	if err != nil {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
		return fmt.Errorf("open guide: %w", err)
	}

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.Ops.Listen), daemon.NewOpsHandler(rt.Health(), cfg.Ops.RateLimit))
	if err != nil {
		_ = rt.Close()
		return err
	}
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)

	app, err := daemon.NewApp(rt, mgr)
	if err != nil {
		_ = rt.Close()
		return err
	}

	logger.Info().
		Str(xglog.FieldEvent, "daemon.start").
		Str(xglog.FieldPath, cfg.DBPath).
		Str("listen", cfg.Ops.Listen).
		Int("sources", len(rt.Sources())).
		Msg("starting")
	if err := app.Run(ctx); err != nil {
		return err
	}
	logger.Info().Str(xglog.FieldEvent, "daemon.stop").Msg("stopped")
	return nil
}
