// Package globaltime is the process-wide clock. Components that do TTL or
// window arithmetic read time through Now so tests can pin a mock instant.
package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Since reports the elapsed time relative to the mockable clock.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

// AdvanceMockTime moves a pinned clock forward by d. It has no effect on
// the real clock; call SetMockTime first.
func AdvanceMockTime(d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	current := nowFunc()
	nowFunc = func() time.Time { return current.Add(d) }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
