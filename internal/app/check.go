package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/lingo/internal/cli"
	"horse.fit/lingo/internal/config"
	"horse.fit/lingo/internal/connectivity"
	"horse.fit/lingo/internal/logging"
)

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	prober, err := connectivity.NewHTTPProber(probeEndpoints(cfg), cfg.ProbeTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build prober: %v\n", err)
		return 1
	}
	// A one-shot check flips state on the first probe; the serve command
	// uses the configured thresholds instead.
	monitor, err := connectivity.NewMonitor(connectivity.Config{
		PingInterval:      cfg.PingInterval,
		ProbeTimeout:      cfg.ProbeTimeout,
		FailureThreshold:  1,
		RecoveryThreshold: 1,
	}, prober, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build monitor: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	status := monitor.ForceCheck(ctx)
	fmt.Printf(
		"online=%t quality=%s score=%d latency=%s endpoints=%v\n",
		status.Online,
		status.Quality,
		status.QualityScore,
		status.LastLatency,
		probeEndpoints(cfg),
	)
	if !status.Online {
		return 1
	}
	return 0
}
