package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/globaltime"
)

// RetryEntry is one failed request parked for replay. Payload is opaque to
// the queue; the replay function knows what to do with it.
type RetryEntry struct {
	ID            int64     `json:"id"`
	Payload       any       `json:"payload"`
	LastError     string    `json:"last_error"`
	Attempt       int       `json:"attempt"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// RetryFunc replays one parked payload.
type RetryFunc func(ctx context.Context, payload any) error

// QueueConfig bounds the retry queue and its backoff schedule.
type QueueConfig struct {
	MaxSize    int
	MaxRetries int
	DelayBase  time.Duration
	DelayMax   time.Duration
}

// RetryQueue holds failed requests for later replay with exponential
// backoff. Entries that exhaust MaxRetries are dropped and reported through
// the exhausted callback; they never surface as errors to the original
// caller, which has long since returned.
type RetryQueue struct {
	cfg    QueueConfig
	replay RetryFunc
	logger zerolog.Logger

	mu      sync.Mutex
	entries []*RetryEntry
	nextID  int64

	onSuccess   []func(RetryEntry)
	onExhausted []func(RetryEntry, error)
}

func NewRetryQueue(cfg QueueConfig, replay RetryFunc, logger zerolog.Logger) *RetryQueue {
	if cfg.MaxSize < 1 {
		cfg.MaxSize = 1000
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.DelayBase <= 0 {
		cfg.DelayBase = time.Second
	}
	if cfg.DelayMax < cfg.DelayBase {
		cfg.DelayMax = cfg.DelayBase
	}
	return &RetryQueue{
		cfg:    cfg,
		replay: replay,
		logger: logger,
	}
}

// OnSuccess registers a callback fired when a parked entry finally replays.
func (q *RetryQueue) OnSuccess(fn func(RetryEntry)) {
	if q == nil || fn == nil {
		return
	}
	q.mu.Lock()
	q.onSuccess = append(q.onSuccess, fn)
	q.mu.Unlock()
}

// OnExhausted registers a callback fired when an entry runs out of retries.
func (q *RetryQueue) OnExhausted(fn func(RetryEntry, error)) {
	if q == nil || fn == nil {
		return
	}
	q.mu.Lock()
	q.onExhausted = append(q.onExhausted, fn)
	q.mu.Unlock()
}

// Enqueue parks a failed payload. It returns false when the queue is at
// capacity; the caller is responsible for surfacing the loss.
func (q *RetryQueue) Enqueue(payload any, cause error) bool {
	if q == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.cfg.MaxSize {
		q.logger.Warn().Int("size", len(q.entries)).Msg("retry queue full; dropping request")
		return false
	}

	q.nextID++
	now := globaltime.Now()
	entry := &RetryEntry{
		ID:            q.nextID,
		Payload:       payload,
		Attempt:       0,
		NextAttemptAt: now.Add(q.backoffDelay(0)),
		EnqueuedAt:    now,
	}
	if cause != nil {
		entry.LastError = cause.Error()
	}
	q.entries = append(q.entries, entry)
	return true
}

// Process replays due entries in queue order. Failures re-enqueue at the
// tail with the next backoff delay until MaxRetries is exceeded. It returns
// the number of successful replays.
func (q *RetryQueue) Process(ctx context.Context) int {
	if q == nil || q.replay == nil {
		return 0
	}

	now := globaltime.Now()

	q.mu.Lock()
	due := make([]*RetryEntry, 0, len(q.entries))
	remaining := q.entries[:0]
	for _, entry := range q.entries {
		if !entry.NextAttemptAt.After(now) {
			due = append(due, entry)
		} else {
			remaining = append(remaining, entry)
		}
	}
	q.entries = remaining
	q.mu.Unlock()

	succeeded := 0
	for i, entry := range due {
		if ctx.Err() != nil {
			// Put the untried remainder back untouched.
			q.requeue(due[i:])
			break
		}

		err := q.replay(ctx, entry.Payload)
		if err == nil {
			succeeded++
			q.fireSuccess(*entry)
			continue
		}

		entry.Attempt++
		entry.LastError = err.Error()
		if entry.Attempt > q.cfg.MaxRetries {
			q.logger.Warn().
				Int64("entry_id", entry.ID).
				Int("attempts", entry.Attempt).
				Str("error", entry.LastError).
				Msg("retry entry exhausted")
			q.fireExhausted(*entry, err)
			continue
		}
		entry.NextAttemptAt = globaltime.Now().Add(q.backoffDelay(entry.Attempt))
		q.requeue([]*RetryEntry{entry})
	}
	return succeeded
}

// Clear drops all parked entries and returns how many were dropped.
func (q *RetryQueue) Clear() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := len(q.entries)
	q.entries = nil
	return dropped
}

func (q *RetryQueue) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot copies the parked entries for inspection.
func (q *RetryQueue) Snapshot() []RetryEntry {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := make([]RetryEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		entries = append(entries, *entry)
	}
	return entries
}

// backoffDelay is min(base * 2^attempt, max).
func (q *RetryQueue) backoffDelay(attempt int) time.Duration {
	delay := q.cfg.DelayBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= q.cfg.DelayMax {
			return q.cfg.DelayMax
		}
	}
	if delay > q.cfg.DelayMax {
		return q.cfg.DelayMax
	}
	return delay
}

func (q *RetryQueue) requeue(entries []*RetryEntry) {
	if len(entries) == 0 {
		return
	}
	q.mu.Lock()
	q.entries = append(q.entries, entries...)
	q.mu.Unlock()
}

func (q *RetryQueue) fireSuccess(entry RetryEntry) {
	q.mu.Lock()
	callbacks := append([]func(RetryEntry){}, q.onSuccess...)
	q.mu.Unlock()
	for _, fn := range callbacks {
		fn(entry)
	}
}

func (q *RetryQueue) fireExhausted(entry RetryEntry, err error) {
	q.mu.Lock()
	callbacks := append([]func(RetryEntry, error){}, q.onExhausted...)
	q.mu.Unlock()
	for _, fn := range callbacks {
		fn(entry, err)
	}
}
