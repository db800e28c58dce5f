package translation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/cache"
	"horse.fit/lingo/internal/connectivity"
	"horse.fit/lingo/internal/langdetect"
	"horse.fit/lingo/internal/language"
	"horse.fit/lingo/internal/memory"
	"horse.fit/lingo/internal/ratelimit"
	"horse.fit/lingo/internal/splitter"
)

// ErrQueuedForRetry is returned when a request could not reach its provider
// and was parked on the retry queue instead of failing outright.
var ErrQueuedForRetry = errors.New("translation queued for retry")

// ManagerConfig tunes the orchestration around provider calls.
type ManagerConfig struct {
	// DefaultLimits apply to providers the limiter has no explicit
	// configuration for.
	DefaultLimits ratelimit.Limits
	RetryQueue    connectivity.QueueConfig
}

// ManagerStats counts request outcomes since startup.
type ManagerStats struct {
	Requests     int64 `json:"requests"`
	MemoryHits   int64 `json:"memory_hits"`
	CacheHits    int64 `json:"cache_hits"`
	Translated   int64 `json:"translated"`
	SplitRescued int64 `json:"split_rescued"`
	Passthrough  int64 `json:"passthrough"`
	Queued       int64 `json:"queued"`
	Replayed     int64 `json:"replayed"`
	Failed       int64 `json:"failed"`
}

// Manager fronts every provider call with the resilience layers:
// translation memory first, then the response cache, then rate limiting,
// and on failure the splitter or the offline retry queue.
type Manager struct {
	registry *Registry
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	memory   *memory.Memory
	monitor  *connectivity.Monitor
	retries  *connectivity.RetryQueue
	split    *splitter.Splitter
	defaults ratelimit.Limits
	logger   zerolog.Logger

	mu    sync.Mutex
	stats ManagerStats
}

func NewManager(
	registry *Registry,
	limiter *ratelimit.Limiter,
	responseCache *cache.Cache,
	translationMemory *memory.Memory,
	monitor *connectivity.Monitor,
	cfg ManagerConfig,
	logger zerolog.Logger,
) (*Manager, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}

	m := &Manager{
		registry: registry,
		limiter:  limiter,
		cache:    responseCache,
		memory:   translationMemory,
		monitor:  monitor,
		split:    splitter.New(logger),
		defaults: cfg.DefaultLimits,
		logger:   logger,
	}
	m.retries = connectivity.NewRetryQueue(cfg.RetryQueue, m.replay, logger)
	m.retries.OnSuccess(func(entry connectivity.RetryEntry) {
		m.mu.Lock()
		m.stats.Replayed++
		m.mu.Unlock()
	})
	m.retries.OnExhausted(func(entry connectivity.RetryEntry, err error) {
		m.mu.Lock()
		m.stats.Failed++
		m.mu.Unlock()
		m.logger.Warn().Err(err).Int("attempts", entry.Attempt).Msg("retry attempts exhausted; dropping translation")
	})
	if monitor != nil {
		monitor.OnOnline(func() {
			processed := m.retries.Process(context.Background())
			if processed > 0 {
				m.logger.Info().Int("processed", processed).Msg("replayed queued translations after reconnect")
			}
		})
	}
	return m, nil
}

// Translate runs one request through the full pipeline.
func (m *Manager) Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error) {
	if m == nil {
		return nil, fmt.Errorf("translation manager is nil")
	}
	return m.translate(ctx, req, true)
}

func (m *Manager) translate(ctx context.Context, req TranslateRequest, allowQueue bool) (*TranslateResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required")
	}
	req.SourceLang = normalizeLangCode(req.SourceLang)
	req.TargetLang = normalizeLangCode(req.TargetLang)
	if req.TargetLang == "" {
		return nil, fmt.Errorf("target language is required")
	}

	m.count(func(s *ManagerStats) { s.Requests++ })

	if req.SourceLang == "" {
		if detected := langdetect.DetectISO6391(req.Text); detected != "" {
			req.SourceLang = normalizeLangCode(detected)
		}
	}
	if req.SourceLang != "" && language.SameLanguage(req.SourceLang, req.TargetLang) {
		m.count(func(s *ManagerStats) { s.Passthrough++ })
		return &TranslateResponse{
			Text:       req.Text,
			SourceLang: req.SourceLang,
			TargetLang: req.TargetLang,
			Origin:     OriginPassthrough,
		}, nil
	}

	if m.memory != nil {
		if record, ok := m.memory.Get(ctx, req.SourceLang, req.TargetLang, req.Text); ok {
			m.count(func(s *ManagerStats) { s.MemoryHits++ })
			return &TranslateResponse{
				Text:         record.TranslatedText,
				SourceLang:   req.SourceLang,
				TargetLang:   req.TargetLang,
				ProviderName: record.Provider,
				Origin:       OriginMemory,
			}, nil
		}
	}

	provider, err := m.registry.Provider(req.Provider)
	if err != nil {
		m.count(func(s *ManagerStats) { s.Failed++ })
		return nil, err
	}

	key := m.cacheKey(provider.Name(), req)
	if m.cache != nil && key != "" {
		if cached, ok := m.cache.Get(key); ok {
			if resp, isResp := cached.(*TranslateResponse); isResp {
				hit := *resp
				hit.Origin = OriginCache
				m.count(func(s *ManagerStats) { s.CacheHits++ })
				return &hit, nil
			}
		}
	}

	if err := m.acquire(ctx, provider.Name(), req.Text); err != nil {
		m.count(func(s *ManagerStats) { s.Failed++ })
		return nil, err
	}

	resp, err := provider.Translate(ctx, req)
	if err == nil {
		m.remember(ctx, key, req, resp)
		m.count(func(s *ManagerStats) { s.Translated++ })
		return resp, nil
	}

	if splitter.IsSplittable(err) {
		rescued, splitErr := m.split.Translate(ctx, req.Text, req.TargetLang, m.pieceFunc(provider, req))
		if splitErr == nil {
			resp = &TranslateResponse{
				Text:         rescued,
				SourceLang:   req.SourceLang,
				TargetLang:   req.TargetLang,
				ProviderName: provider.Name(),
				Origin:       OriginSplit,
			}
			m.remember(ctx, key, req, resp)
			m.count(func(s *ManagerStats) { s.SplitRescued++ })
			return resp, nil
		}
		err = splitErr
	}

	if allowQueue && m.shouldQueue(err) {
		if m.retries.Enqueue(req, err) {
			m.count(func(s *ManagerStats) { s.Queued++ })
			m.logger.Info().Str("provider", provider.Name()).Err(err).Msg("provider unreachable; translation queued for retry")
			return nil, fmt.Errorf("%w: %s", ErrQueuedForRetry, err)
		}
		m.logger.Warn().Str("provider", provider.Name()).Msg("retry queue full; failing translation")
	}

	m.count(func(s *ManagerStats) { s.Failed++ })
	return nil, err
}

// pieceFunc binds provider and language pair for the splitter. Leading and
// trailing whitespace of every piece is carried around the provider call
// because providers trim their input.
func (m *Manager) pieceFunc(provider Provider, req TranslateRequest) splitter.TranslateFunc {
	return func(ctx context.Context, piece string) (string, error) {
		core := strings.TrimSpace(piece)
		if core == "" {
			return piece, nil
		}
		lead := piece[:strings.Index(piece, core)]
		trail := piece[len(lead)+len(core):]

		if err := m.acquire(ctx, provider.Name(), core); err != nil {
			return "", err
		}
		resp, err := provider.Translate(ctx, TranslateRequest{
			Text:       core,
			SourceLang: req.SourceLang,
			TargetLang: req.TargetLang,
		})
		if err != nil {
			return "", err
		}
		return lead + resp.Text + trail, nil
	}
}

// acquire waits for rate-limit capacity, configuring default limits for
// providers seen for the first time.
func (m *Manager) acquire(ctx context.Context, providerName, text string) error {
	err := m.limiter.AcquireText(ctx, providerName, text)
	if !errors.Is(err, ratelimit.ErrInvalidProvider) {
		return err
	}
	if cfgErr := m.limiter.Configure(providerName, m.defaults); cfgErr != nil {
		return cfgErr
	}
	return m.limiter.AcquireText(ctx, providerName, text)
}

func (m *Manager) remember(ctx context.Context, key string, req TranslateRequest, resp *TranslateResponse) {
	if m.cache != nil && key != "" {
		m.cache.Set(key, resp)
	}
	if m.memory != nil {
		if err := m.memory.Set(ctx, req.SourceLang, req.TargetLang, req.Text, resp.Text, resp.ProviderName); err != nil {
			m.logger.Debug().Err(err).Msg("translation memory rejected entry")
		}
	}
}

func (m *Manager) cacheKey(providerName string, req TranslateRequest) string {
	key, err := memory.Key(req.SourceLang, req.TargetLang, req.Text)
	if err != nil {
		return ""
	}
	return providerName + "|" + key
}

// shouldQueue reports whether the failure looks like a connectivity
// problem worth retrying later rather than a permanent refusal.
func (m *Manager) shouldQueue(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if m.monitor != nil && !m.monitor.Online() {
		return true
	}
	return isNetworkError(err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"client.timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// replay is the retry queue's callback for parked requests.
func (m *Manager) replay(ctx context.Context, payload any) error {
	req, ok := payload.(TranslateRequest)
	if !ok {
		m.logger.Warn().Msg("retry queue held unexpected payload type; dropping")
		return nil
	}
	_, err := m.translate(ctx, req, false)
	return err
}

// ProcessRetries replays queued requests that are due. The connectivity
// monitor calls this automatically on reconnect; it is exposed for manual
// drains.
func (m *Manager) ProcessRetries(ctx context.Context) int {
	if m == nil {
		return 0
	}
	return m.retries.Process(ctx)
}

func (m *Manager) Stats() ManagerStats {
	if m == nil {
		return ManagerStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *Manager) count(apply func(*ManagerStats)) {
	m.mu.Lock()
	apply(&m.stats)
	m.mu.Unlock()
}

func (m *Manager) Registry() *Registry { return m.registry }
func (m *Manager) Limiter() *ratelimit.Limiter { return m.limiter }
func (m *Manager) Cache() *cache.Cache { return m.cache }
func (m *Manager) Memory() *memory.Memory { return m.memory }
func (m *Manager) Monitor() *connectivity.Monitor { return m.monitor }
func (m *Manager) Retries() *connectivity.RetryQueue { return m.retries }
