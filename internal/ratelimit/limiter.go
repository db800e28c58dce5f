// Package ratelimit implements per-provider token-bucket admission control
// with a FIFO wait queue. Each provider has its own window counters, so one
// saturated provider never stalls admissions for another.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/globaltime"
)

// Limits configures one provider's admission window.
type Limits struct {
	RequestLimit int
	TokenLimit   int64
	Window       time.Duration
}

// Usage is a read-only snapshot of one provider's current window.
type Usage struct {
	RequestCount  int           `json:"request_count"`
	RequestLimit  int           `json:"request_limit"`
	TokenCount    int64         `json:"token_count"`
	TokenLimit    int64         `json:"token_limit"`
	QueueLength   int           `json:"queue_length"`
	TotalRequests int64         `json:"total_requests"`
	TotalTokens   int64         `json:"total_tokens"`
	WindowStart   time.Time     `json:"window_start"`
	Window        time.Duration `json:"window"`
}

type waiter struct {
	cost       int64
	enqueuedAt time.Time
	ready      chan error
}

type providerState struct {
	mu           sync.Mutex
	limits       Limits
	windowStart  time.Time
	requestCount int
	tokenCount   int64

	totalRequests int64
	totalTokens   int64

	queue []*waiter
	timer *time.Timer
}

// Limiter is the provider registry. Cross-provider operations only hold the
// registry lock long enough to resolve the state record; all window math is
// serialized per provider.
type Limiter struct {
	mu           sync.RWMutex
	providers    map[string]*providerState
	maxQueueSize int
	logger       zerolog.Logger
}

func New(maxQueueSize int, logger zerolog.Logger) *Limiter {
	if maxQueueSize < 0 {
		maxQueueSize = 0
	}
	return &Limiter{
		providers:    make(map[string]*providerState),
		maxQueueSize: maxQueueSize,
		logger:       logger,
	}
}

// Configure registers or updates a provider. Updating keeps the current
// window counters and re-evaluates the wait queue against the new limits.
func (l *Limiter) Configure(providerID string, limits Limits) error {
	if l == nil {
		return fmt.Errorf("limiter is not initialized")
	}
	id := normalizeProviderID(providerID)
	if id == "" {
		return fmt.Errorf("%w: provider id is required", ErrInvalidProvider)
	}
	if limits.RequestLimit < 1 {
		return fmt.Errorf("%w: request limit must be >= 1", ErrInvalidConfig)
	}
	if limits.TokenLimit < 1 {
		return fmt.Errorf("%w: token limit must be >= 1", ErrInvalidConfig)
	}
	if limits.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrInvalidConfig)
	}

	l.mu.Lock()
	state, exists := l.providers[id]
	if !exists {
		state = &providerState{
			limits:      limits,
			windowStart: globaltime.Now(),
		}
		l.providers[id] = state
		l.mu.Unlock()
		l.logger.Debug().
			Str("provider", id).
			Int("request_limit", limits.RequestLimit).
			Int64("token_limit", limits.TokenLimit).
			Dur("window", limits.Window).
			Msg("rate limiter provider configured")
		return nil
	}
	l.mu.Unlock()

	state.mu.Lock()
	state.limits = limits
	l.drainLocked(state)
	state.mu.Unlock()
	return nil
}

// RemoveProvider drops one provider. Queued waiters fail with
// ErrInvalidProvider.
func (l *Limiter) RemoveProvider(providerID string) error {
	if l == nil {
		return fmt.Errorf("limiter is not initialized")
	}
	id := normalizeProviderID(providerID)
	if id == "" {
		return fmt.Errorf("%w: provider id is required", ErrInvalidProvider)
	}

	l.mu.Lock()
	state, exists := l.providers[id]
	delete(l.providers, id)
	l.mu.Unlock()
	if !exists {
		return fmt.Errorf("%w: %q", ErrInvalidProvider, id)
	}

	state.mu.Lock()
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
	pending := state.queue
	state.queue = nil
	state.mu.Unlock()

	for _, w := range pending {
		w.ready <- fmt.Errorf("%w: %q was removed", ErrInvalidProvider, id)
	}
	return nil
}

// AcquireText estimates the token cost of text and acquires admission for it.
func (l *Limiter) AcquireText(ctx context.Context, providerID, text string) error {
	return l.Acquire(ctx, providerID, EstimateTokens(text))
}

// Acquire grants admission for one request costing cost tokens. It returns
// immediately when the current window has capacity, queues FIFO otherwise,
// and fails fast when the cost is unsatisfiable or the queue is full.
// Cancelling ctx withdraws a queued waiter without side effects.
func (l *Limiter) Acquire(ctx context.Context, providerID string, cost int64) error {
	if l == nil {
		return fmt.Errorf("limiter is not initialized")
	}
	if cost < 0 {
		cost = 0
	}
	state, err := l.state(providerID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	l.rollWindowLocked(state, globaltime.Now())

	if cost > state.limits.TokenLimit {
		state.mu.Unlock()
		return fmt.Errorf("%w: cost %d > limit %d", ErrCostExceedsLimit, cost, state.limits.TokenLimit)
	}

	if len(state.queue) == 0 && hasCapacityLocked(state, cost) {
		grantLocked(state, cost)
		state.mu.Unlock()
		return nil
	}

	if len(state.queue) >= l.maxQueueSize {
		state.mu.Unlock()
		return fmt.Errorf("%w: provider %q (%d waiting)", ErrQueueFull, normalizeProviderID(providerID), l.maxQueueSize)
	}

	w := &waiter{
		cost:       cost,
		enqueuedAt: globaltime.Now(),
		ready:      make(chan error, 1),
	}
	state.queue = append(state.queue, w)
	l.armTimerLocked(state)
	state.mu.Unlock()

	select {
	case err := <-w.ready:
		return err
	case <-ctx.Done():
		state.mu.Lock()
		removed := removeWaiterLocked(state, w)
		if removed {
			// A later, cheaper waiter may fit in the freed slot.
			l.drainLocked(state)
		}
		state.mu.Unlock()
		if !removed {
			// The grant raced the cancellation; the admission already
			// counted, so report it.
			return <-w.ready
		}
		return ctx.Err()
	}
}

// Usage returns a snapshot of the provider's current window.
func (l *Limiter) Usage(providerID string) (Usage, error) {
	if l == nil {
		return Usage{}, fmt.Errorf("limiter is not initialized")
	}
	state, err := l.state(providerID)
	if err != nil {
		return Usage{}, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	l.rollWindowLocked(state, globaltime.Now())
	return Usage{
		RequestCount:  state.requestCount,
		RequestLimit:  state.limits.RequestLimit,
		TokenCount:    state.tokenCount,
		TokenLimit:    state.limits.TokenLimit,
		QueueLength:   len(state.queue),
		TotalRequests: state.totalRequests,
		TotalTokens:   state.totalTokens,
		WindowStart:   state.windowStart,
		Window:        state.limits.Window,
	}, nil
}

// Providers lists the configured provider ids.
func (l *Limiter) Providers() []string {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.providers))
	for id := range l.providers {
		ids = append(ids, id)
	}
	return ids
}

// Reset zeroes the current window counters for one provider, or for all
// providers when providerID is blank. Configured limits and cumulative
// totals are untouched.
func (l *Limiter) Reset(providerID string) error {
	if l == nil {
		return fmt.Errorf("limiter is not initialized")
	}

	id := normalizeProviderID(providerID)
	if id == "" {
		l.mu.RLock()
		states := make([]*providerState, 0, len(l.providers))
		for _, state := range l.providers {
			states = append(states, state)
		}
		l.mu.RUnlock()
		for _, state := range states {
			l.resetState(state)
		}
		return nil
	}

	state, err := l.state(id)
	if err != nil {
		return err
	}
	l.resetState(state)
	return nil
}

func (l *Limiter) resetState(state *providerState) {
	state.mu.Lock()
	state.requestCount = 0
	state.tokenCount = 0
	state.windowStart = globaltime.Now()
	l.drainLocked(state)
	state.mu.Unlock()
}

func (l *Limiter) state(providerID string) (*providerState, error) {
	id := normalizeProviderID(providerID)
	if id == "" {
		return nil, fmt.Errorf("%w: provider id is required", ErrInvalidProvider)
	}
	l.mu.RLock()
	state, exists := l.providers[id]
	l.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, id)
	}
	return state, nil
}

// rollWindowLocked resets the counters when the window elapsed and lets any
// queued waiters that now fit through, oldest first.
func (l *Limiter) rollWindowLocked(state *providerState, now time.Time) {
	if now.Sub(state.windowStart) < state.limits.Window {
		return
	}
	state.windowStart = now
	state.requestCount = 0
	state.tokenCount = 0
	l.drainLocked(state)
}

// drainLocked grants queued waiters in FIFO order while capacity lasts.
func (l *Limiter) drainLocked(state *providerState) {
	for len(state.queue) > 0 {
		head := state.queue[0]
		if head.cost > state.limits.TokenLimit {
			// Limits shrank after enqueue; this waiter can never fit.
			state.queue = state.queue[1:]
			head.ready <- fmt.Errorf("%w: cost %d > limit %d", ErrCostExceedsLimit, head.cost, state.limits.TokenLimit)
			continue
		}
		if !hasCapacityLocked(state, head.cost) {
			break
		}
		state.queue = state.queue[1:]
		grantLocked(state, head.cost)
		head.ready <- nil
	}
	if len(state.queue) > 0 {
		l.armTimerLocked(state)
	}
}

// armTimerLocked schedules a wake-up at the end of the current window so
// queued waiters resolve without requiring new Acquire traffic.
func (l *Limiter) armTimerLocked(state *providerState) {
	remaining := state.windowStart.Add(state.limits.Window).Sub(globaltime.Now())
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = time.AfterFunc(remaining, func() {
		state.mu.Lock()
		state.timer = nil
		l.rollWindowLocked(state, globaltime.Now())
		state.mu.Unlock()
	})
}

func hasCapacityLocked(state *providerState, cost int64) bool {
	return state.requestCount+1 <= state.limits.RequestLimit &&
		state.tokenCount+cost <= state.limits.TokenLimit
}

func grantLocked(state *providerState, cost int64) {
	state.requestCount++
	state.tokenCount += cost
	state.totalRequests++
	state.totalTokens += cost
}

func removeWaiterLocked(state *providerState, target *waiter) bool {
	for i, w := range state.queue {
		if w == target {
			state.queue = append(state.queue[:i], state.queue[i+1:]...)
			return true
		}
	}
	return false
}

func normalizeProviderID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
