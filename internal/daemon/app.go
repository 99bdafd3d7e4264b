// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the guide, its sources and the ops listener into a
// long-running process.
package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/xg2g-epg/internal/guide"
	"github.com/ManuGH/xg2g-epg/internal/ingest"
	"github.com/ManuGH/xg2g-epg/internal/ingest/xmltv"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// App refreshes the guide from its sources while the manager serves the ops
// endpoints.
type App struct {
	rt      *Runtime
	manager Manager
	logger  zerolog.Logger
}

// NewApp returns an App over rt. A nil manager runs no ops listener.
func NewApp(rt *Runtime, manager Manager) (*App, error) {
	if rt == nil {
		return nil, ErrMissingRuntime
	}
	if manager == nil {
		var err error
		manager, err = NewManager(ServerConfig{}, nil)
		if err != nil {
			return nil, err
		}
	}
	return &App{rt: rt, manager: manager, logger: xglog.WithComponent("daemon")}, nil
}

// Run blocks until ctx is cancelled or the manager fails. The runtime is
// closed once every refresh has returned.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.manager.Start(gctx) })

	if sources := a.rt.Sources(); len(sources) > 0 {
		g.Go(func() error {
			a.refreshLoop(gctx, sources, a.rt.Config.Ingest.RefreshInterval)
			return nil
		})
	} else {
		a.logger.Warn().Msg("no sources enabled, serving the stored guide only")
	}

	if src := a.rt.XMLTV; src != nil && a.rt.Config.XMLTV.Watch {
		if a.rt.Config.XMLTV.Grabber != "" {
			// the grabber rewrites the file on every refresh
			a.logger.Info().Msg("xmltv grabber configured, file watching disabled")
		} else {
			g.Go(func() error {
				return xmltv.Watch(gctx, src.Path(), a.rt.Config.XMLTV.WatchDebounce, func(ctx context.Context) {
					a.update(ctx, src)
				})
			})
		}
	}

	err := g.Wait()
	return errors.Join(err, a.rt.Close())
}

// refreshLoop updates every source once and then on each tick. A non-positive
// interval runs the initial pass only.
func (a *App) refreshLoop(ctx context.Context, sources []ingest.Source, interval time.Duration) {
	a.updateAll(ctx, sources)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.updateAll(ctx, sources)
		}
	}
}

func (a *App) updateAll(ctx context.Context, sources []ingest.Source) {
	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		a.update(ctx, src)
	}
}

// update runs one ingestion. Failures are logged by the pipeline; here they
// only decide the log level.
func (a *App) update(ctx context.Context, src ingest.Source) {
	res, err := a.rt.Guide.Update(ctx, src)
	switch {
	case errors.Is(err, guide.ErrIngestInProgress):
		a.logger.Debug().Str(xglog.FieldSource, src.Name()).Msg("refresh skipped, ingestion running")
	case err != nil:
		a.logger.Warn().Err(err).Str(xglog.FieldSource, src.Name()).Msg("refresh failed")
	default:
		a.logger.Info().
			Str(xglog.FieldSource, src.Name()).
			Str("outcome", string(res.Outcome)).
			Int("programs", res.Programs).
			Dur("duration", res.Duration()).
			Msg("refresh complete")
	}
}
