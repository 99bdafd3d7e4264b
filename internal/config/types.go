// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the effective, validated configuration.
type AppConfig struct {
	DataDir    string
	DBPath     string
	LogLevel   string
	LogService string

	Store     StoreConfig
	Ingest    IngestConfig
	XMLTV     XMLTVConfig
	Enigma2   Enigma2Config
	Cache     CacheConfig
	Ops       OpsConfig
	Telemetry TelemetryConfig

	// Version is injected from the binary, never from file or ENV.
	Version string
}

// StoreConfig tunes the SQLite store.
type StoreConfig struct {
	BusyRetries        int
	BusyInitialBackoff time.Duration
	BusyMaxBackoff     time.Duration
	// RecreateOnCorrupt lets the daemon move a corrupt store aside and start
	// fresh. The old file is always kept as a backup.
	RecreateOnCorrupt bool
}

// IngestConfig tunes the ingestion driver.
type IngestConfig struct {
	StepBudget      time.Duration
	RefreshInterval time.Duration
}

// XMLTVConfig configures the XMLTV listing source.
type XMLTVConfig struct {
	Enabled       bool
	DataFile      string
	Grabber       string
	GrabberArgs   []string
	Days          int
	Sort          string
	Exclude       []string
	Watch         bool
	WatchDebounce time.Duration
}

// Enigma2Config configures the OpenWebIF receiver source.
type Enigma2Config struct {
	Enabled        bool
	BaseURL        string
	Username       string
	Password       string
	Bouquets       []string
	AccessBy       string
	LimitChannels  string
	Exclude        []string
	MaxConcurrency int
	Timeout        time.Duration
	Retries        int
	RateLimit      float64
	RateBurst      int
}

// CacheConfig selects the term-list cache backend.
type CacheConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

// OpsConfig configures the health/metrics listener.
type OpsConfig struct {
	Listen string
	// RateLimit is requests per minute per client IP.
	RateLimit int
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	Environment  string
	SamplingRate float64
}

// FileConfig is the YAML file shape. Pointer fields distinguish "unset" from zero.
type FileConfig struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	DBPath     string `yaml:"dbPath,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`

	Store     *StoreFile     `yaml:"store,omitempty"`
	Ingest    *IngestFile    `yaml:"ingest,omitempty"`
	XMLTV     *XMLTVFile     `yaml:"xmltv,omitempty"`
	Enigma2   *Enigma2File   `yaml:"enigma2,omitempty"`
	Cache     *CacheFile     `yaml:"cache,omitempty"`
	Ops       *OpsFile       `yaml:"ops,omitempty"`
	Telemetry *TelemetryFile `yaml:"telemetry,omitempty"`
}

type StoreFile struct {
	BusyRetries        *int   `yaml:"busyRetries,omitempty"`
	BusyInitialBackoff string `yaml:"busyInitialBackoff,omitempty"`
	BusyMaxBackoff     string `yaml:"busyMaxBackoff,omitempty"`
	RecreateOnCorrupt  *bool  `yaml:"recreateOnCorrupt,omitempty"`
}

type IngestFile struct {
	StepBudget      string `yaml:"stepBudget,omitempty"`
	RefreshInterval string `yaml:"refreshInterval,omitempty"`
}

type XMLTVFile struct {
	Enabled       *bool    `yaml:"enabled,omitempty"`
	DataFile      string   `yaml:"dataFile,omitempty"`
	Grabber       string   `yaml:"grabber,omitempty"`
	GrabberArgs   []string `yaml:"grabberArgs,omitempty"`
	Days          *int     `yaml:"days,omitempty"`
	Sort          string   `yaml:"sort,omitempty"`
	Exclude       []string `yaml:"exclude,omitempty"`
	Watch         *bool    `yaml:"watch,omitempty"`
	WatchDebounce string   `yaml:"watchDebounce,omitempty"`
}

type Enigma2File struct {
	Enabled        *bool    `yaml:"enabled,omitempty"`
	BaseURL        string   `yaml:"baseUrl,omitempty"`
	Username       string   `yaml:"username,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	Bouquets       []string `yaml:"bouquets,omitempty"`
	AccessBy       string   `yaml:"accessBy,omitempty"`
	LimitChannels  *string  `yaml:"limitChannels,omitempty"`
	Exclude        []string `yaml:"exclude,omitempty"`
	MaxConcurrency *int     `yaml:"maxConcurrency,omitempty"`
	Timeout        string   `yaml:"timeout,omitempty"`
	Retries        *int     `yaml:"retries,omitempty"`
	RateLimit      *float64 `yaml:"rateLimit,omitempty"`
	RateBurst      *int     `yaml:"rateBurst,omitempty"`
}

type CacheFile struct {
	Backend       string `yaml:"backend,omitempty"`
	RedisAddr     string `yaml:"redisAddr,omitempty"`
	RedisPassword string `yaml:"redisPassword,omitempty"`
	RedisDB       *int   `yaml:"redisDB,omitempty"`
	TTL           string `yaml:"ttl,omitempty"`
}

type OpsFile struct {
	Listen    string `yaml:"listen,omitempty"`
	RateLimit *int   `yaml:"rateLimit,omitempty"`
}

type TelemetryFile struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}
