// Package connectivity tracks whether the remote side of the world is
// reachable and how healthy the link is. The monitor owns the only probe
// timer in the module; the retry queue piggybacks on its online transition.
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/globaltime"
)

// Quality is a coarse link-health label derived from recent probes. It is
// independent of the binary online flag: "online but poor" is a valid state
// callers may use to prefer cached results.
type Quality string

const (
	QualityUnknown Quality = "unknown"
	QualityGood    Quality = "good"
	QualityFair    Quality = "fair"
	QualityPoor    Quality = "poor"
)

const qualitySampleWindow = 10

// Status is a read-only snapshot of the monitor.
type Status struct {
	Online               bool          `json:"online"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	Quality              Quality       `json:"quality"`
	QualityScore         int           `json:"quality_score"`
	LastProbeAt          time.Time     `json:"last_probe_at,omitempty"`
	LastLatency          time.Duration `json:"last_latency,omitempty"`
}

// Prober performs one bounded reachability check and reports its latency.
type Prober interface {
	Probe(ctx context.Context) (time.Duration, error)
}

// Config controls probe cadence and state-machine thresholds.
type Config struct {
	PingInterval      time.Duration
	ProbeTimeout      time.Duration
	FailureThreshold  int // consecutive failed probes before going offline
	RecoveryThreshold int // consecutive successful probes before going back online
}

type probeSample struct {
	ok      bool
	latency time.Duration
}

// Monitor is the online/offline state machine. Probes run outside the
// mutex; only bookkeeping is locked. Callbacks fire synchronously from the
// probe path, after the lock is released.
type Monitor struct {
	cfg    Config
	prober Prober
	logger zerolog.Logger

	mu                   sync.Mutex
	online               bool
	consecutiveFailures  int
	consecutiveSuccesses int
	samples              []probeSample
	quality              Quality
	qualityScore         int
	lastProbeAt          time.Time
	lastLatency          time.Duration

	onOnline        []func()
	onOffline       []func()
	onQualityChange []func(Quality)

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

func NewMonitor(cfg Config, prober Prober, logger zerolog.Logger) (*Monitor, error) {
	if prober == nil {
		return nil, fmt.Errorf("prober is required")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 3
	}
	if cfg.RecoveryThreshold < 1 {
		cfg.RecoveryThreshold = 2
	}

	return &Monitor{
		cfg:     cfg,
		prober:  prober,
		logger:  logger,
		online:  true, // optimistic until probes prove otherwise
		quality: QualityUnknown,
	}, nil
}

// OnOnline registers a callback fired on every offline-to-online transition.
func (m *Monitor) OnOnline(fn func()) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.onOnline = append(m.onOnline, fn)
	m.mu.Unlock()
}

// OnOffline registers a callback fired on every online-to-offline transition.
func (m *Monitor) OnOffline(fn func()) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.onOffline = append(m.onOffline, fn)
	m.mu.Unlock()
}

// OnQualityChange registers a callback fired whenever the quality label moves.
func (m *Monitor) OnQualityChange(fn func(Quality)) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.onQualityChange = append(m.onQualityChange, fn)
	m.mu.Unlock()
}

// Start launches the probe loop. It is an error to start twice without Stop.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("monitor is not initialized")
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("monitor already started")
	}
	m.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.loop(loopCtx)
	return nil
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.started = false
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneChan())

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	m.probeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) doneChan() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		m.done = make(chan struct{})
	}
	return m.done
}

// ForceCheck runs one probe immediately and returns the resulting status.
func (m *Monitor) ForceCheck(ctx context.Context) Status {
	if m == nil {
		return Status{Quality: QualityUnknown}
	}
	m.probeOnce(ctx)
	return m.Status()
}

// Online reports the binary reachability flag.
func (m *Monitor) Online() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Status returns a snapshot of the state machine.
func (m *Monitor) Status() Status {
	if m == nil {
		return Status{Quality: QualityUnknown}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Online:               m.online,
		ConsecutiveFailures:  m.consecutiveFailures,
		ConsecutiveSuccesses: m.consecutiveSuccesses,
		Quality:              m.quality,
		QualityScore:         m.qualityScore,
		LastProbeAt:          m.lastProbeAt,
		LastLatency:          m.lastLatency,
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	latency, err := m.prober.Probe(probeCtx)
	cancel()
	m.recordResult(latency, err)
}

// recordResult applies one probe outcome to the state machine and fires any
// transition callbacks after releasing the lock.
func (m *Monitor) recordResult(latency time.Duration, probeErr error) {
	var fire []func()

	m.mu.Lock()
	m.lastProbeAt = globaltime.Now()
	m.lastLatency = latency

	if probeErr != nil {
		m.consecutiveSuccesses = 0
		m.consecutiveFailures++
		m.pushSample(probeSample{ok: false})
		if m.online && m.consecutiveFailures >= m.cfg.FailureThreshold {
			m.online = false
			m.logger.Warn().Int("failures", m.consecutiveFailures).Msg("connectivity lost")
			for _, fn := range m.onOffline {
				fire = append(fire, fn)
			}
		}
	} else {
		m.consecutiveFailures = 0
		m.consecutiveSuccesses++
		m.pushSample(probeSample{ok: true, latency: latency})
		if !m.online && m.consecutiveSuccesses >= m.cfg.RecoveryThreshold {
			m.online = true
			m.logger.Info().Int("successes", m.consecutiveSuccesses).Msg("connectivity recovered")
			for _, fn := range m.onOnline {
				fire = append(fire, fn)
			}
		}
	}

	previousQuality := m.quality
	m.qualityScore = scoreSamples(m.samples)
	m.quality = labelForScore(m.qualityScore, len(m.samples))
	if m.quality != previousQuality {
		quality := m.quality
		for _, fn := range m.onQualityChange {
			callback := fn
			fire = append(fire, func() { callback(quality) })
		}
	}
	m.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

func (m *Monitor) pushSample(sample probeSample) {
	m.samples = append(m.samples, sample)
	if len(m.samples) > qualitySampleWindow {
		m.samples = m.samples[len(m.samples)-qualitySampleWindow:]
	}
}

// scoreSamples blends success rate (70%) with latency (30%) over the recent
// probe window into a 0-100 score.
func scoreSamples(samples []probeSample) int {
	if len(samples) == 0 {
		return 0
	}

	successes := 0
	var totalLatency time.Duration
	for _, sample := range samples {
		if sample.ok {
			successes++
			totalLatency += sample.latency
		}
	}
	successRate := float64(successes) / float64(len(samples))

	latencyScore := 0.0
	if successes > 0 {
		avg := totalLatency / time.Duration(successes)
		switch {
		case avg <= 200*time.Millisecond:
			latencyScore = 1.0
		case avg >= 2*time.Second:
			latencyScore = 0.0
		default:
			latencyScore = 1.0 - float64(avg-200*time.Millisecond)/float64(1800*time.Millisecond)
		}
	}

	return int(successRate*70 + latencyScore*30)
}

func labelForScore(score, sampleCount int) Quality {
	if sampleCount == 0 {
		return QualityUnknown
	}
	switch {
	case score >= 80:
		return QualityGood
	case score >= 50:
		return QualityFair
	default:
		return QualityPoor
	}
}
