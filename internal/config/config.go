package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// DATABASE_URL is optional. When empty the translation memory runs
	// in-memory only and nothing touches Postgres.
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMinConns  int32  `envconfig:"LINGO_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"LINGO_DB_MAX_CONNS" default:"8"`

	// Rate limiter defaults applied to providers without an explicit
	// limits document entry.
	RequestLimit int           `envconfig:"LINGO_REQUEST_LIMIT" default:"60"`
	TokenLimit   int64         `envconfig:"LINGO_TOKEN_LIMIT" default:"100000"`
	Window       time.Duration `envconfig:"LINGO_WINDOW" default:"60s"`
	MaxQueueSize int           `envconfig:"LINGO_MAX_QUEUE_SIZE" default:"1000"`

	// ProviderLimitsFile points to an optional JSON document with
	// per-provider overrides, validated against an embedded schema.
	ProviderLimitsFile string `envconfig:"LINGO_PROVIDER_LIMITS_FILE" default:""`

	CacheMaxEntries int           `envconfig:"LINGO_CACHE_MAX_ENTRIES" default:"1000"`
	CacheMaxBytes   int64         `envconfig:"LINGO_CACHE_MAX_BYTES" default:"10485760"`
	CacheDefaultTTL time.Duration `envconfig:"LINGO_CACHE_DEFAULT_TTL" default:"5m"`

	TMMaxEntries int           `envconfig:"LINGO_TM_MAX_ENTRIES" default:"5000"`
	TMDefaultTTL time.Duration `envconfig:"LINGO_TM_DEFAULT_TTL" default:"168h"`

	PingInterval          time.Duration `envconfig:"LINGO_PING_INTERVAL" default:"30s"`
	ProbeTimeout          time.Duration `envconfig:"LINGO_PROBE_TIMEOUT" default:"5s"`
	ProbeEndpoints        string        `envconfig:"LINGO_PROBE_ENDPOINTS" default:""`
	ConnectivityThreshold int           `envconfig:"LINGO_CONNECTIVITY_THRESHOLD" default:"3"`
	RecoveryThreshold     int           `envconfig:"LINGO_RECOVERY_THRESHOLD" default:"2"`

	RetryDelayBase time.Duration `envconfig:"LINGO_RETRY_DELAY_BASE" default:"1s"`
	RetryDelayMax  time.Duration `envconfig:"LINGO_RETRY_DELAY_MAX" default:"5m"`
	MaxRetries     int           `envconfig:"LINGO_MAX_RETRIES" default:"5"`
	RetryQueueSize int           `envconfig:"LINGO_RETRY_QUEUE_SIZE" default:"1000"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBMinConns < 0 {
		return fmt.Errorf("LINGO_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("LINGO_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("LINGO_DB_MIN_CONNS (%d) cannot exceed LINGO_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RequestLimit < 1 {
		return fmt.Errorf("LINGO_REQUEST_LIMIT must be >= 1")
	}
	if c.TokenLimit < 1 {
		return fmt.Errorf("LINGO_TOKEN_LIMIT must be >= 1")
	}
	if c.Window <= 0 {
		return fmt.Errorf("LINGO_WINDOW must be positive")
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("LINGO_MAX_QUEUE_SIZE must be >= 0")
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("LINGO_CACHE_MAX_ENTRIES must be >= 1")
	}
	if c.CacheMaxBytes < 1 {
		return fmt.Errorf("LINGO_CACHE_MAX_BYTES must be >= 1")
	}
	if c.TMMaxEntries < 1 {
		return fmt.Errorf("LINGO_TM_MAX_ENTRIES must be >= 1")
	}
	if c.TMDefaultTTL <= 0 {
		return fmt.Errorf("LINGO_TM_DEFAULT_TTL must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("LINGO_PING_INTERVAL must be positive")
	}
	if c.ConnectivityThreshold < 1 {
		return fmt.Errorf("LINGO_CONNECTIVITY_THRESHOLD must be >= 1")
	}
	if c.RecoveryThreshold < 1 {
		return fmt.Errorf("LINGO_RECOVERY_THRESHOLD must be >= 1")
	}
	if c.RetryDelayBase <= 0 {
		return fmt.Errorf("LINGO_RETRY_DELAY_BASE must be positive")
	}
	if c.RetryDelayMax < c.RetryDelayBase {
		return fmt.Errorf("LINGO_RETRY_DELAY_MAX must be >= LINGO_RETRY_DELAY_BASE")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("LINGO_MAX_RETRIES must be >= 0")
	}
	return nil
}

// ProbeEndpointsList splits LINGO_PROBE_ENDPOINTS into unique trimmed URLs.
func (c *Config) ProbeEndpointsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.ProbeEndpoints, ",")
	endpoints := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		endpoint := strings.TrimSpace(part)
		if endpoint == "" {
			continue
		}
		if _, exists := seen[endpoint]; exists {
			continue
		}
		seen[endpoint] = struct{}{}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints
}
