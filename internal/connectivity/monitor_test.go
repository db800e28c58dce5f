package connectivity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type scriptedProber struct {
	failing bool
	latency time.Duration
}

func (p *scriptedProber) Probe(_ context.Context) (time.Duration, error) {
	if p.failing {
		return 0, fmt.Errorf("probe failed")
	}
	return p.latency, nil
}

func newTestMonitor(t *testing.T, prober Prober) *Monitor {
	t.Helper()
	m, err := NewMonitor(Config{
		PingInterval:      time.Hour, // tests drive probes via ForceCheck
		ProbeTimeout:      time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}, prober, zerolog.Nop())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return m
}

func TestGoesOfflineExactlyAtThreshold(t *testing.T) {
	t.Parallel()

	prober := &scriptedProber{failing: true}
	m := newTestMonitor(t, prober)

	offlineEvents := 0
	m.OnOffline(func() { offlineEvents++ })

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		status := m.ForceCheck(ctx)
		if !status.Online {
			t.Fatalf("offline after %d failures, before threshold", i)
		}
	}

	status := m.ForceCheck(ctx)
	if status.Online {
		t.Fatalf("expected offline after third consecutive failure")
	}
	if offlineEvents != 1 {
		t.Fatalf("expected exactly one offline event, got %d", offlineEvents)
	}

	// Further failures must not re-fire the transition.
	m.ForceCheck(ctx)
	if offlineEvents != 1 {
		t.Fatalf("offline event fired again: %d", offlineEvents)
	}
}

func TestRecoversAfterRecoveryThreshold(t *testing.T) {
	t.Parallel()

	prober := &scriptedProber{failing: true}
	m := newTestMonitor(t, prober)

	onlineEvents := 0
	m.OnOnline(func() { onlineEvents++ })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.ForceCheck(ctx)
	}
	if m.Online() {
		t.Fatalf("expected offline")
	}

	prober.failing = false
	prober.latency = 50 * time.Millisecond

	if status := m.ForceCheck(ctx); status.Online {
		t.Fatalf("one success must not recover yet")
	}
	if status := m.ForceCheck(ctx); !status.Online {
		t.Fatalf("expected recovery after two consecutive successes")
	}
	if onlineEvents != 1 {
		t.Fatalf("expected exactly one online event, got %d", onlineEvents)
	}
}

func TestQualityScoreAndLabel(t *testing.T) {
	t.Parallel()

	prober := &scriptedProber{latency: 50 * time.Millisecond}
	m := newTestMonitor(t, prober)

	var labels []Quality
	m.OnQualityChange(func(q Quality) { labels = append(labels, q) })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.ForceCheck(ctx)
	}

	status := m.Status()
	if status.Quality != QualityGood {
		t.Fatalf("expected good quality from fast successful probes, got %s (%d)", status.Quality, status.QualityScore)
	}
	if status.QualityScore < 80 {
		t.Fatalf("unexpected score: %d", status.QualityScore)
	}

	// A burst of failures drags quality down while the monitor can still be
	// online: the label is independent of the binary flag.
	prober.failing = true
	m.ForceCheck(ctx)
	m.ForceCheck(ctx)

	status = m.Status()
	if status.Online != true {
		t.Fatalf("two failures must not flip the online flag")
	}
	if status.Quality == QualityGood {
		t.Fatalf("expected degraded quality, got %s (%d)", status.Quality, status.QualityScore)
	}
	if len(labels) == 0 {
		t.Fatalf("expected quality change callbacks")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()

	prober := &scriptedProber{latency: time.Millisecond}
	m, err := NewMonitor(Config{
		PingInterval:      5 * time.Millisecond,
		ProbeTimeout:      time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
	}, prober, zerolog.Nop())
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}

	deadline := time.Now().Add(time.Second)
	for m.Status().LastProbeAt.IsZero() {
		if time.Now().After(deadline) {
			t.Fatalf("probe loop never ran")
		}
		time.Sleep(time.Millisecond)
	}

	m.Stop()
	// Stop must be idempotent.
	m.Stop()
}
