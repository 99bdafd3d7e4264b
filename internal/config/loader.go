// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // every ENV key the loader looked at
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) envString(name, def string) string { return ParseString(l.key(name), def) }
func (l *Loader) envBool(name string, def bool) bool  { return ParseBool(l.key(name), def) }
func (l *Loader) envInt(name string, def int) int     { return ParseInt(l.key(name), def) }
func (l *Loader) envFloat(name string, def float64) float64 {
	return ParseFloat(l.key(name), def)
}
func (l *Loader) envDuration(name string, def time.Duration) time.Duration {
	return ParseDuration(l.key(name), def)
}
func (l *Loader) envList(name string, def []string) []string { return ParseList(l.key(name), def) }

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "epg.db")
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:    "data",
		LogLevel:   "info",
		LogService: "xg2g-epg",
		Store: StoreConfig{
			BusyRetries:        8,
			BusyInitialBackoff: 50 * time.Millisecond,
			BusyMaxBackoff:     2 * time.Second,
		},
		Ingest: IngestConfig{
			StepBudget:      100 * time.Millisecond,
			RefreshInterval: 6 * time.Hour,
		},
		XMLTV: XMLTVConfig{
			Days:          5,
			WatchDebounce: 2 * time.Second,
		},
		Enigma2: Enigma2Config{
			AccessBy:       "sid",
			MaxConcurrency: 4,
			Timeout:        10 * time.Second,
			Retries:        2,
			RateLimit:      10,
			RateBurst:      20,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			TTL:       10 * time.Minute,
		},
		Ops: OpsConfig{
			Listen:    "127.0.0.1:9465",
			RateLimit: 120,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: unsupported config format %s", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrMultipleDocuments
	}

	return &fileCfg, nil
}

type durationField struct {
	name string
	raw  string
	dst  *time.Duration
}

func applyDurations(fields ...durationField) error {
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setList(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.DBPath, f.DBPath)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogService, f.LogService)

	if s := f.Store; s != nil {
		setPtr(&cfg.Store.BusyRetries, s.BusyRetries)
		setPtr(&cfg.Store.RecreateOnCorrupt, s.RecreateOnCorrupt)
		if err := applyDurations(
			durationField{"store.busyInitialBackoff", s.BusyInitialBackoff, &cfg.Store.BusyInitialBackoff},
			durationField{"store.busyMaxBackoff", s.BusyMaxBackoff, &cfg.Store.BusyMaxBackoff},
		); err != nil {
			return err
		}
	}

	if in := f.Ingest; in != nil {
		if err := applyDurations(
			durationField{"ingest.stepBudget", in.StepBudget, &cfg.Ingest.StepBudget},
			durationField{"ingest.refreshInterval", in.RefreshInterval, &cfg.Ingest.RefreshInterval},
		); err != nil {
			return err
		}
	}

	if x := f.XMLTV; x != nil {
		setPtr(&cfg.XMLTV.Enabled, x.Enabled)
		setString(&cfg.XMLTV.DataFile, x.DataFile)
		setString(&cfg.XMLTV.Grabber, x.Grabber)
		setList(&cfg.XMLTV.GrabberArgs, x.GrabberArgs)
		setPtr(&cfg.XMLTV.Days, x.Days)
		setString(&cfg.XMLTV.Sort, x.Sort)
		setList(&cfg.XMLTV.Exclude, x.Exclude)
		setPtr(&cfg.XMLTV.Watch, x.Watch)
		if err := applyDurations(
			durationField{"xmltv.watchDebounce", x.WatchDebounce, &cfg.XMLTV.WatchDebounce},
		); err != nil {
			return err
		}
	}

	if e := f.Enigma2; e != nil {
		setPtr(&cfg.Enigma2.Enabled, e.Enabled)
		setString(&cfg.Enigma2.BaseURL, e.BaseURL)
		setString(&cfg.Enigma2.Username, e.Username)
		setString(&cfg.Enigma2.Password, e.Password)
		setList(&cfg.Enigma2.Bouquets, e.Bouquets)
		setString(&cfg.Enigma2.AccessBy, e.AccessBy)
		setPtr(&cfg.Enigma2.LimitChannels, e.LimitChannels)
		setList(&cfg.Enigma2.Exclude, e.Exclude)
		setPtr(&cfg.Enigma2.MaxConcurrency, e.MaxConcurrency)
		setPtr(&cfg.Enigma2.Retries, e.Retries)
		setPtr(&cfg.Enigma2.RateLimit, e.RateLimit)
		setPtr(&cfg.Enigma2.RateBurst, e.RateBurst)
		if err := applyDurations(
			durationField{"enigma2.timeout", e.Timeout, &cfg.Enigma2.Timeout},
		); err != nil {
			return err
		}
	}

	if c := f.Cache; c != nil {
		setString(&cfg.Cache.Backend, c.Backend)
		setString(&cfg.Cache.RedisAddr, c.RedisAddr)
		setString(&cfg.Cache.RedisPassword, c.RedisPassword)
		setPtr(&cfg.Cache.RedisDB, c.RedisDB)
		if err := applyDurations(durationField{"cache.ttl", c.TTL, &cfg.Cache.TTL}); err != nil {
			return err
		}
	}

	if o := f.Ops; o != nil {
		setString(&cfg.Ops.Listen, o.Listen)
		setPtr(&cfg.Ops.RateLimit, o.RateLimit)
	}

	if t := f.Telemetry; t != nil {
		setPtr(&cfg.Telemetry.Enabled, t.Enabled)
		setString(&cfg.Telemetry.Exporter, t.Exporter)
		setString(&cfg.Telemetry.Endpoint, t.Endpoint)
		setString(&cfg.Telemetry.Environment, t.Environment)
		setPtr(&cfg.Telemetry.SamplingRate, t.SamplingRate)
	}
	return nil
}

// mergeEnvConfig applies XG2G_EPG_* overrides (highest priority).
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.DBPath = l.envString("DB_PATH", cfg.DBPath)
	cfg.LogLevel = l.envString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString("LOG_SERVICE", cfg.LogService)

	cfg.Store.BusyRetries = l.envInt("STORE_BUSY_RETRIES", cfg.Store.BusyRetries)
	cfg.Store.BusyInitialBackoff = l.envDuration("STORE_BUSY_INITIAL_BACKOFF", cfg.Store.BusyInitialBackoff)
	cfg.Store.BusyMaxBackoff = l.envDuration("STORE_BUSY_MAX_BACKOFF", cfg.Store.BusyMaxBackoff)
	cfg.Store.RecreateOnCorrupt = l.envBool("STORE_RECREATE_ON_CORRUPT", cfg.Store.RecreateOnCorrupt)

	cfg.Ingest.StepBudget = l.envDuration("INGEST_STEP_BUDGET", cfg.Ingest.StepBudget)
	cfg.Ingest.RefreshInterval = l.envDuration("INGEST_REFRESH_INTERVAL", cfg.Ingest.RefreshInterval)

	cfg.XMLTV.Enabled = l.envBool("XMLTV_ENABLED", cfg.XMLTV.Enabled)
	cfg.XMLTV.DataFile = l.envString("XMLTV_DATA_FILE", cfg.XMLTV.DataFile)
	cfg.XMLTV.Grabber = l.envString("XMLTV_GRABBER", cfg.XMLTV.Grabber)
	cfg.XMLTV.GrabberArgs = l.envList("XMLTV_GRABBER_ARGS", cfg.XMLTV.GrabberArgs)
	cfg.XMLTV.Days = l.envInt("XMLTV_DAYS", cfg.XMLTV.Days)
	cfg.XMLTV.Sort = l.envString("XMLTV_SORT", cfg.XMLTV.Sort)
	cfg.XMLTV.Exclude = l.envList("XMLTV_EXCLUDE", cfg.XMLTV.Exclude)
	cfg.XMLTV.Watch = l.envBool("XMLTV_WATCH", cfg.XMLTV.Watch)
	cfg.XMLTV.WatchDebounce = l.envDuration("XMLTV_WATCH_DEBOUNCE", cfg.XMLTV.WatchDebounce)

	cfg.Enigma2.Enabled = l.envBool("E2_ENABLED", cfg.Enigma2.Enabled)
	cfg.Enigma2.BaseURL = l.envString("E2_BASE_URL", cfg.Enigma2.BaseURL)
	cfg.Enigma2.Username = l.envString("E2_USER", cfg.Enigma2.Username)
	cfg.Enigma2.Password = l.envString("E2_PASSWORD", cfg.Enigma2.Password)
	cfg.Enigma2.Bouquets = l.envList("E2_BOUQUETS", cfg.Enigma2.Bouquets)
	cfg.Enigma2.AccessBy = l.envString("E2_ACCESS_BY", cfg.Enigma2.AccessBy)
	cfg.Enigma2.LimitChannels = l.envString("E2_LIMIT_CHANNELS", cfg.Enigma2.LimitChannels)
	cfg.Enigma2.Exclude = l.envList("E2_EXCLUDE", cfg.Enigma2.Exclude)
	cfg.Enigma2.MaxConcurrency = l.envInt("E2_MAX_CONCURRENCY", cfg.Enigma2.MaxConcurrency)
	cfg.Enigma2.Timeout = l.envDuration("E2_TIMEOUT", cfg.Enigma2.Timeout)
	cfg.Enigma2.Retries = l.envInt("E2_RETRIES", cfg.Enigma2.Retries)
	cfg.Enigma2.RateLimit = l.envFloat("E2_RATE_LIMIT", cfg.Enigma2.RateLimit)
	cfg.Enigma2.RateBurst = l.envInt("E2_RATE_BURST", cfg.Enigma2.RateBurst)

	cfg.Cache.Backend = l.envString("CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.RedisAddr = l.envString("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = l.envString("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = l.envInt("REDIS_DB", cfg.Cache.RedisDB)
	cfg.Cache.TTL = l.envDuration("CACHE_TTL", cfg.Cache.TTL)

	cfg.Ops.Listen = l.envString("OPS_LISTEN", cfg.Ops.Listen)
	cfg.Ops.RateLimit = l.envInt("OPS_RATE_LIMIT", cfg.Ops.RateLimit)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
