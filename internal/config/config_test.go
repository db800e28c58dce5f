package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		DBMinConns:            1,
		DBMaxConns:            8,
		RequestLimit:          60,
		TokenLimit:            100000,
		Window:                time.Minute,
		MaxQueueSize:          1000,
		CacheMaxEntries:       1000,
		CacheMaxBytes:         10 << 20,
		TMMaxEntries:          5000,
		TMDefaultTTL:          168 * time.Hour,
		PingInterval:          30 * time.Second,
		ConnectivityThreshold: 3,
		RecoveryThreshold:     2,
		RetryDelayBase:        time.Second,
		RetryDelayMax:         5 * time.Minute,
		MaxRetries:            5,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsNonPositiveWindow(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Window = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestValidateRejectsBackoffInversion(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.RetryDelayMax = cfg.RetryDelayBase / 2
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when max delay < base delay")
	}
}

func TestProbeEndpointsList(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.ProbeEndpoints = " https://a.example/health , ,https://b.example,https://a.example/health"
	got := cfg.ProbeEndpointsList()
	if len(got) != 2 {
		t.Fatalf("unexpected endpoint count: %d (%v)", len(got), got)
	}
	if got[0] != "https://a.example/health" || got[1] != "https://b.example" {
		t.Fatalf("unexpected endpoints: %v", got)
	}
}
