// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/xg2g-epg/internal/validate"
)

// Validate validates the effective configuration. It reports every rejected
// field at once; the result matches validate.ErrInvalid.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir)
	v.NotEmpty("dbPath", cfg.DBPath)
	v.LogLevel("logLevel", cfg.LogLevel)

	validate.Between(v, "store.busyRetries", cfg.Store.BusyRetries, 0, 100)
	validate.Between(v, "store.busyInitialBackoff", cfg.Store.BusyInitialBackoff, time.Millisecond, time.Minute)
	validate.Between(v, "store.busyMaxBackoff", cfg.Store.BusyMaxBackoff, cfg.Store.BusyInitialBackoff, 10*time.Minute)

	validate.Between(v, "ingest.stepBudget", cfg.Ingest.StepBudget, time.Millisecond, 10*time.Second)
	if cfg.Ingest.RefreshInterval != 0 {
		validate.Between(v, "ingest.refreshInterval", cfg.Ingest.RefreshInterval, time.Minute, 7*24*time.Hour)
	}

	if cfg.XMLTV.Enabled {
		v.NotEmpty("xmltv.dataFile", cfg.XMLTV.DataFile)
		validate.Between(v, "xmltv.days", cfg.XMLTV.Days, 1, 14)
		if cfg.XMLTV.Grabber == "" && cfg.XMLTV.DataFile != "" {
			v.File("xmltv.dataFile", cfg.XMLTV.DataFile)
		}
		if cfg.XMLTV.Watch {
			validate.Between(v, "xmltv.watchDebounce", cfg.XMLTV.WatchDebounce, 0, time.Minute)
		}
	}

	if cfg.Enigma2.Enabled {
		v.URL("enigma2.baseUrl", cfg.Enigma2.BaseURL, "http", "https")
		v.OneOf("enigma2.accessBy", cfg.Enigma2.AccessBy, "sid", "sref", "name")
		v.OneOf("enigma2.limitChannels", cfg.Enigma2.LimitChannels, "", "all", "epg", "conf", "both")
		validate.Between(v, "enigma2.maxConcurrency", cfg.Enigma2.MaxConcurrency, 1, 32)
		validate.AtLeast(v, "enigma2.retries", cfg.Enigma2.Retries, 0)
		validate.Between(v, "enigma2.timeout", cfg.Enigma2.Timeout, 100*time.Millisecond, 5*time.Minute)
	}

	v.OneOf("cache.backend", cfg.Cache.Backend, "memory", "redis", "none")
	if cfg.Cache.Backend == "redis" {
		v.NotEmpty("cache.redisAddr", cfg.Cache.RedisAddr)
		validate.Between(v, "cache.redisDB", cfg.Cache.RedisDB, 0, 15)
	}

	if cfg.Ops.Listen != "" {
		v.ListenAddr("ops.listen", cfg.Ops.Listen)
		validate.AtLeast(v, "ops.rateLimit", cfg.Ops.RateLimit, 1)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, "grpc", "http")
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		validate.Between(v, "telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
