package connectivity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/globaltime"
)

func TestEnqueueRespectsCapacity(t *testing.T) {
	t.Parallel()

	q := NewRetryQueue(QueueConfig{
		MaxSize:    2,
		MaxRetries: 3,
		DelayBase:  time.Second,
		DelayMax:   time.Minute,
	}, func(context.Context, any) error { return nil }, zerolog.Nop())

	if !q.Enqueue("a", errors.New("boom")) {
		t.Fatalf("first enqueue failed")
	}
	if !q.Enqueue("b", errors.New("boom")) {
		t.Fatalf("second enqueue failed")
	}
	if q.Enqueue("c", errors.New("boom")) {
		t.Fatalf("enqueue beyond capacity must fail")
	}
	if got := q.Len(); got != 2 {
		t.Fatalf("queue grew beyond capacity: %d", got)
	}
}

func TestProcessReplaysDueEntriesInOrder(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(base)
	defer globaltime.ResetTime()

	var replayed []string
	q := NewRetryQueue(QueueConfig{
		MaxSize:    10,
		MaxRetries: 3,
		DelayBase:  time.Second,
		DelayMax:   time.Minute,
	}, func(_ context.Context, payload any) error {
		replayed = append(replayed, payload.(string))
		return nil
	}, zerolog.Nop())

	var successes []RetryEntry
	q.OnSuccess(func(entry RetryEntry) { successes = append(successes, entry) })

	q.Enqueue("first", errors.New("offline"))
	q.Enqueue("second", errors.New("offline"))

	// Nothing is due yet.
	if got := q.Process(context.Background()); got != 0 {
		t.Fatalf("expected nothing due, replayed %d", got)
	}

	globaltime.SetMockTime(base.Add(2 * time.Second))
	if got := q.Process(context.Background()); got != 2 {
		t.Fatalf("expected two replays, got %d", got)
	}
	if len(replayed) != 2 || replayed[0] != "first" || replayed[1] != "second" {
		t.Fatalf("unexpected replay order: %v", replayed)
	}
	if len(successes) != 2 {
		t.Fatalf("expected success callbacks, got %d", len(successes))
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained: %d", q.Len())
	}
}

func TestProcessBacksOffAndExhausts(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(base)
	defer globaltime.ResetTime()

	attempts := 0
	q := NewRetryQueue(QueueConfig{
		MaxSize:    10,
		MaxRetries: 2,
		DelayBase:  time.Second,
		DelayMax:   time.Minute,
	}, func(context.Context, any) error {
		attempts++
		return errors.New("still down")
	}, zerolog.Nop())

	var exhausted []RetryEntry
	q.OnExhausted(func(entry RetryEntry, _ error) { exhausted = append(exhausted, entry) })

	q.Enqueue("doomed", errors.New("offline"))

	// Attempt 1 fails and re-parks with a doubled delay.
	globaltime.SetMockTime(base.Add(2 * time.Second))
	q.Process(context.Background())
	if attempts != 1 {
		t.Fatalf("unexpected attempts: %d", attempts)
	}
	entries := q.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected entry re-parked, queue: %d", len(entries))
	}
	if entries[0].Attempt != 1 {
		t.Fatalf("unexpected attempt count: %d", entries[0].Attempt)
	}
	wantNext := globaltime.Now().Add(2 * time.Second)
	if !entries[0].NextAttemptAt.Equal(wantNext) {
		t.Fatalf("unexpected backoff: got %v want %v", entries[0].NextAttemptAt, wantNext)
	}

	// Attempt 2 fails again, attempt 3 would exceed MaxRetries=2: dropped.
	globaltime.SetMockTime(base.Add(10 * time.Second))
	q.Process(context.Background())
	globaltime.SetMockTime(base.Add(30 * time.Second))
	q.Process(context.Background())

	if attempts != 3 {
		t.Fatalf("unexpected total attempts: %d", attempts)
	}
	if len(exhausted) != 1 {
		t.Fatalf("expected one exhausted entry, got %d", len(exhausted))
	}
	if q.Len() != 0 {
		t.Fatalf("exhausted entry still parked")
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	t.Parallel()

	q := NewRetryQueue(QueueConfig{
		MaxSize:    10,
		MaxRetries: 10,
		DelayBase:  time.Second,
		DelayMax:   5 * time.Second,
	}, nil, zerolog.Nop())

	if got := q.backoffDelay(0); got != time.Second {
		t.Fatalf("unexpected base delay: %v", got)
	}
	if got := q.backoffDelay(2); got != 4*time.Second {
		t.Fatalf("unexpected doubled delay: %v", got)
	}
	if got := q.backoffDelay(10); got != 5*time.Second {
		t.Fatalf("delay not capped: %v", got)
	}
}

func TestClearReturnsDroppedCount(t *testing.T) {
	t.Parallel()

	q := NewRetryQueue(QueueConfig{
		MaxSize:    10,
		MaxRetries: 3,
		DelayBase:  time.Second,
		DelayMax:   time.Minute,
	}, nil, zerolog.Nop())

	q.Enqueue("a", nil)
	q.Enqueue("b", nil)
	if got := q.Clear(); got != 2 {
		t.Fatalf("unexpected cleared count: %d", got)
	}
	if q.Len() != 0 {
		t.Fatalf("clear left entries")
	}
}

func TestMonitorOnlineTransitionDrainsQueue(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(base)
	defer globaltime.ResetTime()

	replayed := 0
	q := NewRetryQueue(QueueConfig{
		MaxSize:    10,
		MaxRetries: 3,
		DelayBase:  time.Second,
		DelayMax:   time.Minute,
	}, func(context.Context, any) error {
		replayed++
		return nil
	}, zerolog.Nop())

	prober := &scriptedProber{failing: true}
	m := newTestMonitor(t, prober)
	m.OnOnline(func() { q.Process(context.Background()) })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.ForceCheck(ctx)
	}
	q.Enqueue("parked while offline", errors.New("offline"))

	globaltime.SetMockTime(base.Add(time.Minute))
	prober.failing = false
	m.ForceCheck(ctx)
	m.ForceCheck(ctx)

	if !m.Online() {
		t.Fatalf("expected monitor online")
	}
	if replayed != 1 {
		t.Fatalf("online transition did not drain the queue: %d", replayed)
	}
}
