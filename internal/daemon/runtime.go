// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/xg2g-epg/internal/cache"
	"github.com/ManuGH/xg2g-epg/internal/config"
	"github.com/ManuGH/xg2g-epg/internal/guide"
	"github.com/ManuGH/xg2g-epg/internal/ingest"
	"github.com/ManuGH/xg2g-epg/internal/ingest/enigma2"
	"github.com/ManuGH/xg2g-epg/internal/ingest/xmltv"
	xglog "github.com/ManuGH/xg2g-epg/internal/log"
	"github.com/ManuGH/xg2g-epg/internal/openwebif"
	"github.com/ManuGH/xg2g-epg/internal/persistence/sqlite"
	"github.com/ManuGH/xg2g-epg/internal/schema"
	"github.com/ManuGH/xg2g-epg/internal/store"
	"golang.org/x/time/rate"
)

// Runtime holds everything opened from one configuration.
type Runtime struct {
	Config config.AppConfig
	Schema *schema.Outcome
	Store  *store.Store
	Cache  cache.Cache
	Guide  *guide.Guide

	XMLTV    *xmltv.Source
	Enigma2  *enigma2.Source
	Receiver *openwebif.Client

	runs *runTracker
}

// SQLiteConfig maps the store section onto the SQLite settings.
func SQLiteConfig(cfg config.StoreConfig) sqlite.Config {
	c := sqlite.DefaultConfig()
	if cfg.BusyRetries > 0 {
		c.Retry.Retries = cfg.BusyRetries
	}
	if cfg.BusyInitialBackoff > 0 {
		c.Retry.Initial = cfg.BusyInitialBackoff
	}
	if cfg.BusyMaxBackoff > 0 {
		c.Retry.Max = cfg.BusyMaxBackoff
	}
	return c
}

// Open opens the store, migrating or recreating it as configured, and builds
// the guide and the enabled sources. The guide is synced before returning.
func Open(ctx context.Context, cfg config.AppConfig, opts ...guide.Option) (*Runtime, error) {
	logger := xglog.WithComponent("daemon")
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	sqlCfg := SQLiteConfig(cfg.Store)
	mgr := schema.NewManager(cfg.DBPath, sqlCfg)
	outcome, db, err := mgr.Open(ctx)
	if errors.Is(err, schema.ErrStoreCorrupt) && cfg.Store.RecreateOnCorrupt {
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "store.recreate").
			Str(xglog.FieldPath, cfg.DBPath).
			Msg("store is corrupt, recreating")
		outcome, db, err = mgr.Recreate(ctx)
	}
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str(xglog.FieldEvent, "store.opened").
		Str(xglog.FieldPath, cfg.DBPath).
		Str("state", string(outcome.State)).
		Str("version", outcome.To).
		Strs("applied", outcome.Applied).
		Msg("store ready")

	rt := &Runtime{Config: cfg, Schema: outcome, Store: store.New(db, sqlCfg.Retry), runs: newRunTracker()}

	rt.Cache, err = cache.New(ctx, cache.Options{
		Backend: cfg.Cache.Backend,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		},
	}, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	// Options passed by the caller come last; an own WithIngestHooks
	// replaces the run tracking behind the freshness checks.
	gopts := []guide.Option{
		guide.WithCache(rt.Cache, cfg.Cache.TTL),
		guide.WithStepBudget(cfg.Ingest.StepBudget),
		guide.WithIngestHooks(nil, rt.runs.record),
	}
	rt.Guide = guide.New(rt.Store, append(gopts, opts...)...)
	if err := rt.Guide.Sync(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	if err := rt.buildSources(); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) buildSources() error {
	cfg := rt.Config
	if cfg.XMLTV.Enabled {
		src, err := xmltv.New(xmltv.Config{
			DataFile: cfg.XMLTV.DataFile,
			Grabber:  cfg.XMLTV.Grabber,
			Args:     cfg.XMLTV.GrabberArgs,
			Days:     cfg.XMLTV.Days,
			Sort:     cfg.XMLTV.Sort,
			Exclude:  cfg.XMLTV.Exclude,
		})
		if err != nil {
			return fmt.Errorf("xmltv source: %w", err)
		}
		rt.XMLTV = src
	}

	if cfg.Enigma2.Enabled {
		policy, err := ingest.NewPolicy(cfg.Enigma2.AccessBy, cfg.Enigma2.LimitChannels, cfg.Enigma2.Exclude)
		if err != nil {
			return fmt.Errorf("enigma2 source: %w", err)
		}
		retries := cfg.Enigma2.Retries
		if retries == 0 {
			retries = -1
		}
		rt.Receiver = openwebif.NewWithOptions(cfg.Enigma2.BaseURL, openwebif.Options{
			Timeout:        cfg.Enigma2.Timeout,
			MaxRetries:     retries,
			Username:       cfg.Enigma2.Username,
			Password:       cfg.Enigma2.Password,
			UserAgent:      "xg2g-epg/" + cfg.Version,
			RateLimit:      rate.Limit(cfg.Enigma2.RateLimit),
			RateLimitBurst: cfg.Enigma2.RateBurst,
		})
		rt.Enigma2 = enigma2.New(rt.Receiver, enigma2.Options{
			Bouquets:       cfg.Enigma2.Bouquets,
			Policy:         policy,
			MaxConcurrency: cfg.Enigma2.MaxConcurrency,
		})
	}
	return nil
}

// Sources returns the enabled sources in refresh order.
func (rt *Runtime) Sources() []ingest.Source {
	var out []ingest.Source
	if rt.XMLTV != nil {
		out = append(out, rt.XMLTV)
	}
	if rt.Enigma2 != nil {
		out = append(out, rt.Enigma2)
	}
	return out
}

// Source looks up an enabled source by name.
func (rt *Runtime) Source(name string) (ingest.Source, error) {
	for _, s := range rt.Sources() {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
}

// Close releases the cache and the store.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Cache != nil {
		errs = append(errs, rt.Cache.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}
