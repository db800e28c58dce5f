package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/cache"
	"horse.fit/lingo/internal/config"
	"horse.fit/lingo/internal/connectivity"
	"horse.fit/lingo/internal/db"
	"horse.fit/lingo/internal/limits"
	"horse.fit/lingo/internal/memory"
	"horse.fit/lingo/internal/ratelimit"
	"horse.fit/lingo/internal/translation"
)

// stack holds everything a command needs to serve translations.
type stack struct {
	cfg     *config.Config
	logger  zerolog.Logger
	manager *translation.Manager
	monitor *connectivity.Monitor
	pool    *db.Pool
}

// Close releases the stack's external resources.
func (s *stack) Close() {
	if s == nil {
		return
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// buildStack wires the limiter, cache, translation memory, connectivity
// monitor, and provider registry into a manager. The database pool is
// optional; without DATABASE_URL the translation memory stays in-process.
func buildStack(cfg *config.Config, logger zerolog.Logger, withMonitor bool) (*stack, error) {
	limiter := ratelimit.New(cfg.MaxQueueSize, logger)
	if cfg.ProviderLimitsFile != "" {
		entries, err := limits.LoadFile(cfg.ProviderLimitsFile)
		if err != nil {
			return nil, fmt.Errorf("provider limits: %w", err)
		}
		if err := limits.Apply(limiter, entries); err != nil {
			return nil, fmt.Errorf("provider limits: %w", err)
		}
		logger.Info().Int("providers", len(entries)).Str("file", cfg.ProviderLimitsFile).Msg("provider limits applied")
	}

	responseCache := cache.New(cfg.CacheMaxEntries, cfg.CacheMaxBytes, cfg.CacheDefaultTTL, logger)

	var pool *db.Pool
	var store memory.Store
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dbCancel()

		var err error
		pool, err = db.NewPool(dbCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		gormStore, err := memory.NewGormStore(pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("translation memory store: %w", err)
		}
		store = gormStore
	}
	translationMemory := memory.New(cfg.TMMaxEntries, cfg.TMDefaultTTL, store, logger)

	var monitor *connectivity.Monitor
	if withMonitor {
		prober, err := connectivity.NewHTTPProber(probeEndpoints(cfg), cfg.ProbeTimeout)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("connectivity prober: %w", err)
		}
		monitor, err = connectivity.NewMonitor(connectivity.Config{
			PingInterval:      cfg.PingInterval,
			ProbeTimeout:      cfg.ProbeTimeout,
			FailureThreshold:  cfg.ConnectivityThreshold,
			RecoveryThreshold: cfg.RecoveryThreshold,
		}, prober, logger)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, fmt.Errorf("connectivity monitor: %w", err)
		}
	}

	registry := translation.NewRegistryFromEnv()
	manager, err := translation.NewManager(registry, limiter, responseCache, translationMemory, monitor, translation.ManagerConfig{
		DefaultLimits: ratelimit.Limits{
			RequestLimit: cfg.RequestLimit,
			TokenLimit:   cfg.TokenLimit,
			Window:       cfg.Window,
		},
		RetryQueue: connectivity.QueueConfig{
			MaxSize:    cfg.RetryQueueSize,
			MaxRetries: cfg.MaxRetries,
			DelayBase:  cfg.RetryDelayBase,
			DelayMax:   cfg.RetryDelayMax,
		},
	}, logger)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("translation manager: %w", err)
	}

	return &stack{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		monitor: monitor,
		pool:    pool,
	}, nil
}

// probeEndpoints falls back to the translation endpoint itself when no
// explicit probe targets are configured; reachability of the provider is
// what the monitor is really after.
func probeEndpoints(cfg *config.Config) []string {
	endpoints := cfg.ProbeEndpointsList()
	if len(endpoints) > 0 {
		return endpoints
	}
	if endpoint := strings.TrimSpace(os.Getenv("TRANSLATION_ENDPOINT")); endpoint != "" {
		return []string{endpoint}
	}
	return []string{translation.DefaultLocalEndpoint}
}
