// Package cache is the bounded fast-path store for recent translation
// results. It enforces both an entry-count and a byte-size budget, expires
// entries lazily on read, and evicts least-recently-accessed entries first.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/globaltime"
)

// NoExpiry makes an entry live until it is evicted or deleted.
const NoExpiry time.Duration = 0

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
	HitRate   float64 `json:"hit_rate"`
}

type entry struct {
	key       string
	value     any
	size      int64
	createdAt time.Time
	expiresAt time.Time // zero = no expiry
}

// Cache is safe for concurrent use. Reads update recency, so every
// operation takes the same mutex; all critical sections are map/list
// mutations only.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	defaultTTL time.Duration

	index map[string]*list.Element
	order *list.List // front = most recently accessed
	size  int64

	hits      int64
	misses    int64
	evictions int64

	logger zerolog.Logger
}

func New(maxEntries int, maxBytes int64, defaultTTL time.Duration, logger zerolog.Logger) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if maxBytes < 1 {
		maxBytes = 1
	}
	return &Cache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		defaultTTL: defaultTTL,
		index:      make(map[string]*list.Element),
		order:      list.New(),
		logger:     logger,
	}
}

// Get returns the cached value for key. Expired entries are removed here
// and reported as absent. Missing and blank keys count as misses.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil || key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}

	ent := elem.Value.(*entry)
	if isExpired(ent, globaltime.Now()) {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return ent.value, true
}

// Set stores value under key with the cache's default TTL.
func (c *Cache) Set(key string, value any) bool {
	if c == nil {
		return false
	}
	return c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key. A zero ttl means no expiry; a negative
// ttl, a blank key, an unserializable value, or a value larger than the
// whole byte budget all fail with a false return instead of an error.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) bool {
	if c == nil || key == "" || ttl < 0 {
		return false
	}

	size, ok := estimateSize(value)
	if !ok {
		c.logger.Debug().Str("key", key).Msg("cache rejected unserializable value")
		return false
	}
	if size > c.maxBytes {
		c.logger.Debug().Str("key", key).Int64("size", size).Msg("cache rejected oversized value")
		return false
	}

	now := globaltime.Now()
	ent := &entry{
		key:       key,
		value:     value,
		size:      size,
		createdAt: now,
	}
	if ttl > 0 {
		ent.expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, found := c.index[key]; found {
		c.size -= existing.Value.(*entry).size
		existing.Value = ent
		c.size += size
		c.order.MoveToFront(existing)
	} else {
		c.index[key] = c.order.PushFront(ent)
		c.size += size
	}

	c.evictOverflowLocked()
	return true
}

// Delete removes one entry and reports whether it existed.
func (c *Cache) Delete(key string) bool {
	if c == nil || key == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// Clear drops every entry and zeroes the size accounting. Hit/miss counters
// survive a clear.
func (c *Cache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
}

func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.index),
		SizeBytes: c.size,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// evictOverflowLocked removes least-recently-accessed entries until both
// the count and byte budgets hold again.
func (c *Cache) evictOverflowLocked() {
	for len(c.index) > c.maxEntries || c.size > c.maxBytes {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	ent := elem.Value.(*entry)
	c.order.Remove(elem)
	delete(c.index, ent.key)
	c.size -= ent.size
}

func isExpired(ent *entry, now time.Time) bool {
	return !ent.expiresAt.IsZero() && now.After(ent.expiresAt)
}

// estimateSize approximates the serialized footprint of value. Values JSON
// cannot encode (channels, cycles) are rejected rather than stored blind.
func estimateSize(value any) (int64, bool) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return 0, false
	}
	return int64(len(encoded)), true
}
