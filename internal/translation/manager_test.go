package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/cache"
	"horse.fit/lingo/internal/connectivity"
	"horse.fit/lingo/internal/globaltime"
	"horse.fit/lingo/internal/memory"
	"horse.fit/lingo/internal/ratelimit"
	"horse.fit/lingo/internal/splitter"
)

type stubProvider struct {
	name  string
	calls int
	fn    func(req TranslateRequest) (string, error)
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) SupportedLanguages() []string {
	return []string{"en", "es"}
}

func (p *stubProvider) Translate(_ context.Context, req TranslateRequest) (*TranslateResponse, error) {
	p.calls++
	text, err := p.fn(req)
	if err != nil {
		return nil, err
	}
	return &TranslateResponse{
		Text:         text,
		SourceLang:   req.SourceLang,
		TargetLang:   req.TargetLang,
		ProviderName: p.name,
		Origin:       OriginProvider,
	}, nil
}

func newTestManager(t *testing.T, provider Provider, withMemory bool) *Manager {
	t.Helper()

	registry := NewRegistry(provider.Name())
	if err := registry.Register(provider); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	var translationMemory *memory.Memory
	if withMemory {
		translationMemory = memory.New(32, time.Hour, nil, zerolog.Nop())
	}

	manager, err := NewManager(
		registry,
		ratelimit.New(10, zerolog.Nop()),
		cache.New(32, 1<<20, time.Minute, zerolog.Nop()),
		translationMemory,
		nil,
		ManagerConfig{
			DefaultLimits: ratelimit.Limits{
				RequestLimit: 100,
				TokenLimit:   100000,
				Window:       time.Minute,
			},
			RetryQueue: connectivity.QueueConfig{
				MaxSize:    4,
				MaxRetries: 2,
				DelayBase:  time.Second,
				DelayMax:   time.Minute,
			},
		},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return manager
}

func TestManagerTranslateAndMemoryHit(t *testing.T) {
	provider := &stubProvider{name: "stub", fn: func(req TranslateRequest) (string, error) {
		return strings.ToUpper(req.Text), nil
	}}
	manager := newTestManager(t, provider, true)
	req := TranslateRequest{Text: "hello there friend", SourceLang: "en", TargetLang: "es"}

	first, err := manager.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if first.Origin != OriginProvider || first.Text != "HELLO THERE FRIEND" {
		t.Fatalf("first response = %+v, want provider origin with translated text", first)
	}

	second, err := manager.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("second Translate returned error: %v", err)
	}
	if second.Origin != OriginMemory {
		t.Fatalf("second response origin = %q, want %q", second.Origin, OriginMemory)
	}
	if provider.calls != 1 {
		t.Fatalf("provider called %d times, want 1", provider.calls)
	}

	stats := manager.Stats()
	if stats.Translated != 1 || stats.MemoryHits != 1 {
		t.Fatalf("stats = %+v, want one translation and one memory hit", stats)
	}
}

func TestManagerCacheHitWithoutMemory(t *testing.T) {
	provider := &stubProvider{name: "stub", fn: func(req TranslateRequest) (string, error) {
		return strings.ToUpper(req.Text), nil
	}}
	manager := newTestManager(t, provider, false)
	req := TranslateRequest{Text: "good morning", SourceLang: "en", TargetLang: "es"}

	if _, err := manager.Translate(context.Background(), req); err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	second, err := manager.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("second Translate returned error: %v", err)
	}
	if second.Origin != OriginCache {
		t.Fatalf("second response origin = %q, want %q", second.Origin, OriginCache)
	}
	if provider.calls != 1 {
		t.Fatalf("provider called %d times, want 1", provider.calls)
	}
}

func TestManagerPassthroughSameLanguage(t *testing.T) {
	provider := &stubProvider{name: "stub", fn: func(req TranslateRequest) (string, error) {
		return "", errors.New("should not be called")
	}}
	manager := newTestManager(t, provider, true)

	resp, err := manager.Translate(context.Background(), TranslateRequest{
		Text:       "already in target",
		SourceLang: "es",
		TargetLang: "es-MX",
	})
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if resp.Origin != OriginPassthrough || resp.Text != "already in target" {
		t.Fatalf("response = %+v, want passthrough with original text", resp)
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times, want 0", provider.calls)
	}
}

func TestManagerSplitRescue(t *testing.T) {
	provider := &stubProvider{name: "stub", fn: func(req TranslateRequest) (string, error) {
		if strings.Contains(req.Text, " ") {
			return "", fmt.Errorf("%w: maximum context length", splitter.ErrPayloadTooLarge)
		}
		return strings.ToUpper(req.Text), nil
	}}
	manager := newTestManager(t, provider, true)

	resp, err := manager.Translate(context.Background(), TranslateRequest{
		Text:       "uno dos tres",
		SourceLang: "es",
		TargetLang: "en",
	})
	if err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}
	if resp.Origin != OriginSplit {
		t.Fatalf("response origin = %q, want %q", resp.Origin, OriginSplit)
	}
	if resp.Text != "UNO DOS TRES" {
		t.Fatalf("response text = %q, want %q", resp.Text, "UNO DOS TRES")
	}
	if manager.Stats().SplitRescued != 1 {
		t.Fatalf("SplitRescued = %d, want 1", manager.Stats().SplitRescued)
	}
}

func TestManagerQueuesNetworkFailuresAndReplays(t *testing.T) {
	globaltime.SetMockTime(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	online := false
	provider := &stubProvider{name: "stub", fn: func(req TranslateRequest) (string, error) {
		if !online {
			return "", errors.New("dial tcp 127.0.0.1:8845: connection refused")
		}
		return strings.ToUpper(req.Text), nil
	}}
	manager := newTestManager(t, provider, true)
	req := TranslateRequest{Text: "store and forward", SourceLang: "en", TargetLang: "es"}

	_, err := manager.Translate(context.Background(), req)
	if !errors.Is(err, ErrQueuedForRetry) {
		t.Fatalf("Translate error = %v, want ErrQueuedForRetry", err)
	}
	if got := manager.Retries().Len(); got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}

	online = true
	globaltime.AdvanceMockTime(2 * time.Second)
	if processed := manager.ProcessRetries(context.Background()); processed != 1 {
		t.Fatalf("ProcessRetries = %d, want 1", processed)
	}
	if got := manager.Retries().Len(); got != 0 {
		t.Fatalf("queue length after replay = %d, want 0", got)
	}
	if manager.Stats().Replayed != 1 {
		t.Fatalf("Replayed = %d, want 1", manager.Stats().Replayed)
	}

	resp, err := manager.Translate(context.Background(), req)
	if err != nil {
		t.Fatalf("Translate after replay returned error: %v", err)
	}
	if resp.Origin != OriginMemory {
		t.Fatalf("response origin = %q, want replayed result served from memory", resp.Origin)
	}
}

func TestManagerNonRetryableFailure(t *testing.T) {
	boom := errors.New("translation endpoint status 500: internal error")
	provider := &stubProvider{name: "stub", fn: func(TranslateRequest) (string, error) {
		return "", boom
	}}
	manager := newTestManager(t, provider, true)

	_, err := manager.Translate(context.Background(), TranslateRequest{
		Text:       "hello",
		SourceLang: "en",
		TargetLang: "es",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Translate error = %v, want %v", err, boom)
	}
	if got := manager.Retries().Len(); got != 0 {
		t.Fatalf("queue length = %d, want 0 for non-network failure", got)
	}
}

func TestManagerUnknownProvider(t *testing.T) {
	provider := &stubProvider{name: "stub", fn: func(req TranslateRequest) (string, error) {
		return req.Text, nil
	}}
	manager := newTestManager(t, provider, true)

	_, err := manager.Translate(context.Background(), TranslateRequest{
		Text:       "hello",
		SourceLang: "en",
		TargetLang: "es",
		Provider:   "missing",
	})
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("Translate error = %v, want unknown provider error", err)
	}
}

func TestManagerConfiguresDefaultLimits(t *testing.T) {
	provider := &stubProvider{name: "stub", fn: func(req TranslateRequest) (string, error) {
		return strings.ToUpper(req.Text), nil
	}}
	manager := newTestManager(t, provider, true)

	if _, err := manager.Translate(context.Background(), TranslateRequest{
		Text:       "measure my usage",
		SourceLang: "en",
		TargetLang: "es",
	}); err != nil {
		t.Fatalf("Translate returned error: %v", err)
	}

	usage, err := manager.Limiter().Usage("stub")
	if err != nil {
		t.Fatalf("Usage returned error: %v", err)
	}
	if usage.RequestCount != 1 {
		t.Fatalf("RequestCount = %d, want 1", usage.RequestCount)
	}
}
