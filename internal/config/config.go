// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and NUDGE_ environment variables over the defaults.
// - Errors returned from this package wrap ErrInvalidConfig or ErrLoadConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Storage backends accepted by StorageBackend.
const (
	BackendMemory      = "memory"
	BackendGCS         = "gcs"
	BackendGCSEmulator = "gcs_emulator"
	BackendPostgres    = "postgres"
	BackendSQLite      = "sqlite"
	BackendMongo       = "mongo"
)

const defaultMaxUploadBytes = 10 << 20

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log records.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StorageBackend picks the blob store implementation.
	StorageBackend string `koanf:"storage_backend"`

	// GCS settings.
	StorageBucket          string `koanf:"storage_bucket"`
	StorageEmulatorHost    string `koanf:"storage_emulator_host"`
	StorageCredentialsFile string `koanf:"storage_credentials_file"`
	StoragePublicBaseURL   string `koanf:"storage_public_base_url"`

	// SQL settings, shared by postgres and sqlite.
	StorageDSN   string `koanf:"storage_dsn"`
	StorageTable string `koanf:"storage_table"`

	// MongoDB settings.
	MongoURI        string `koanf:"mongo_uri"`
	MongoDatabase   string `koanf:"mongo_database"`
	MongoCollection string `koanf:"mongo_collection"`

	// RedisAddr enables the read-through cache when non-empty.
	RedisAddr       string   `koanf:"redis_addr"`
	RedisPassword   string   `koanf:"redis_password"`
	RedisDB         int      `koanf:"redis_db"`
	CacheTTLSeconds int      `koanf:"cache_ttl_seconds"`
	CachePrefixes   []string `koanf:"cache_prefixes"`

	// Timezone is the location the upload clock is read in to derive week IDs.
	Timezone string `koanf:"timezone"`

	// HistoryMaxAttempts bounds compare-and-swap attempts on the history index.
	HistoryMaxAttempts int `koanf:"history_max_attempts"`

	// FetchConcurrency bounds parallel snapshot reads; 0 means unbounded.
	FetchConcurrency int `koanf:"fetch_concurrency"`

	// LegacyLatestMirror also writes snapshots/latest.json on every upload.
	LegacyLatestMirror bool `koanf:"legacy_latest_mirror"`

	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// MaxLeaderboardLimit caps GET /api/leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// MetricsEnabled turns Prometheus recording on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsRefreshSeconds is the period of the background gauge updaters.
	MetricsRefreshSeconds int `koanf:"metrics_refresh_seconds"`

	// Tracing.
	TracingEnabled     bool    `koanf:"tracing_enabled"`
	TracingSampleRatio float64 `koanf:"tracing_sample_ratio"`
	OTLPEndpoint       string  `koanf:"otlp_endpoint"`
	OTLPInsecure       bool    `koanf:"otlp_insecure"`
	ServiceName        string  `koanf:"service_name"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		StorageBackend:        BackendMemory,
		StorageTable:          "blobs",
		MongoDatabase:         "nudge",
		MongoCollection:       "blobs",
		CacheTTLSeconds:       300,
		CachePrefixes:         []string{"snapshots/", "master/"},
		Timezone:              "UTC",
		HistoryMaxAttempts:    3,
		MaxUploadBytes:        defaultMaxUploadBytes,
		MaxLeaderboardLimit:   500,
		MetricsEnabled:        true,
		MetricsRefreshSeconds: 30,
		TracingSampleRatio:    0.1,
		ServiceName:           "nudge",
	}
}

// CacheTTL returns the redis entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// MetricsRefresh returns the gauge updater period.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshSeconds) * time.Second
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.StorageBackend {
	case BackendMemory:
	case BackendGCS, BackendGCSEmulator:
		if c.StorageBucket == "" {
			return fmt.Errorf("%w: storage_bucket is required for %s", ErrInvalidConfig, c.StorageBackend)
		}
		if c.StorageBackend == BackendGCSEmulator && c.StorageEmulatorHost == "" {
			return fmt.Errorf("%w: storage_emulator_host is required for %s", ErrInvalidConfig, c.StorageBackend)
		}
	case BackendPostgres, BackendSQLite:
		if c.StorageDSN == "" {
			return fmt.Errorf("%w: storage_dsn is required for %s", ErrInvalidConfig, c.StorageBackend)
		}
		if c.StorageTable == "" {
			return fmt.Errorf("%w: storage_table must not be empty", ErrInvalidConfig)
		}
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: mongo_uri is required for %s", ErrInvalidConfig, c.StorageBackend)
		}
	default:
		return fmt.Errorf("%w: unknown storage_backend %q", ErrInvalidConfig, c.StorageBackend)
	}
	if c.HistoryMaxAttempts < 1 {
		return fmt.Errorf("%w: history_max_attempts must be >= 1", ErrInvalidConfig)
	}
	if c.FetchConcurrency < 0 {
		return fmt.Errorf("%w: fetch_concurrency must be >= 0", ErrInvalidConfig)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	}
	if c.MaxLeaderboardLimit <= 0 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	if c.MetricsRefreshSeconds <= 0 {
		return fmt.Errorf("%w: metrics_refresh_seconds must be positive", ErrInvalidConfig)
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return fmt.Errorf("%w: tracing_sample_ratio must be within [0,1]", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
