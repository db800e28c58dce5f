// Package memory is the translation memory: a longer-lived store of
// finished translations keyed by the normalized (source, target, text)
// triple. It outlives the fast-path cache and can optionally write through
// to a persistent store; losing the store degrades it to in-memory only.
package memory

import (
	"container/list"
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"horse.fit/lingo/internal/globaltime"
	"horse.fit/lingo/internal/language"
)

// Record is one remembered translation.
type Record struct {
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	TranslatedText string    `json:"translated_text"`
	Provider       string    `json:"provider"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Stats reports hits, misses, and evictions split by cause.
type Stats struct {
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
	Sets              int64 `json:"sets"`
	TTLEvictions      int64 `json:"ttl_evictions"`
	CapacityEvictions int64 `json:"capacity_evictions"`
	Entries           int   `json:"entries"`
}

type memoryEntry struct {
	key    string
	record Record
}

// Memory is safe for concurrent use. Store reads and writes happen outside
// the mutex; only map and recency-list mutations are locked.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration

	index map[string]*list.Element
	order *list.List // front = most recently touched by read or write

	hits              int64
	misses            int64
	sets              int64
	ttlEvictions      int64
	capacityEvictions int64

	store  Store
	logger zerolog.Logger
}

// New builds a translation memory. store may be nil for in-memory-only use.
func New(maxEntries int, defaultTTL time.Duration, store Store, logger zerolog.Logger) *Memory {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if defaultTTL <= 0 {
		defaultTTL = 168 * time.Hour
	}
	return &Memory{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		index:      make(map[string]*list.Element),
		order:      list.New(),
		store:      store,
		logger:     logger,
	}
}

// Get looks up a remembered translation. Expired entries are purged and
// counted as TTL evictions. A miss falls through to the persistent store
// when one is configured.
func (m *Memory) Get(ctx context.Context, source, target, text string) (*Record, bool) {
	if m == nil {
		return nil, false
	}
	key, err := Key(source, target, text)
	if err != nil {
		m.countMiss()
		return nil, false
	}

	if record, ok := m.lookup(key); ok {
		return record, true
	}

	if m.store != nil {
		if record := m.readThrough(ctx, key); record != nil {
			return record, true
		}
	}

	m.countMiss()
	return nil, false
}

// Set upserts a translation with the memory's default TTL and refreshes its
// recency. A persistent store failure is logged and absorbed: the in-memory
// entry stands either way.
func (m *Memory) Set(ctx context.Context, source, target, originalText, translatedText, provider string) error {
	if m == nil {
		return fmt.Errorf("translation memory is not initialized")
	}
	if strings.TrimSpace(translatedText) == "" {
		return fmt.Errorf("translated text is required")
	}
	key, err := Key(source, target, originalText)
	if err != nil {
		return err
	}

	now := globaltime.Now()
	record := Record{
		SourceLang:     language.NormalizeCode(source),
		TargetLang:     language.NormalizeCode(target),
		TranslatedText: translatedText,
		Provider:       strings.TrimSpace(provider),
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.defaultTTL),
	}

	m.insert(key, record)

	if m.store != nil {
		if writeErr := m.store.Write(ctx, key, record); writeErr != nil {
			m.logger.Warn().Err(writeErr).Msg("translation memory store write failed; continuing in-memory")
		}
	}
	return nil
}

// SearchSimilar tries an exact normalized-key match, then a variant with
// all whitespace stripped. It performs no fuzzy matching; the threshold
// argument exists for callers that plug in their own matcher and is not
// interpreted here.
func (m *Memory) SearchSimilar(ctx context.Context, text, source, target string, _ float64) (*Record, bool) {
	if record, ok := m.Get(ctx, source, target, text); ok {
		return record, true
	}

	stripped := strings.Join(strings.Fields(text), "")
	if stripped == "" || stripped == text {
		return nil, false
	}
	return m.Get(ctx, source, target, stripped)
}

func (m *Memory) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Hits:              m.hits,
		Misses:            m.misses,
		Sets:              m.sets,
		TTLEvictions:      m.ttlEvictions,
		CapacityEvictions: m.capacityEvictions,
		Entries:           len(m.index),
	}
}

func (m *Memory) lookup(key string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.index[key]
	if !ok {
		return nil, false
	}

	ent := elem.Value.(*memoryEntry)
	if globaltime.Now().After(ent.record.ExpiresAt) {
		m.order.Remove(elem)
		delete(m.index, key)
		m.ttlEvictions++
		return nil, false
	}

	m.order.MoveToFront(elem)
	m.hits++
	record := ent.record
	return &record, true
}

func (m *Memory) readThrough(ctx context.Context, key string) *Record {
	record, err := m.store.Read(ctx, key)
	if err != nil {
		m.logger.Warn().Err(err).Msg("translation memory store read failed")
		return nil
	}
	if record == nil {
		return nil
	}
	if globaltime.Now().After(record.ExpiresAt) {
		m.mu.Lock()
		m.ttlEvictions++
		m.mu.Unlock()
		return nil
	}

	m.insert(key, *record)
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
	result := *record
	return &result
}

func (m *Memory) insert(key string, record Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.index[key]; exists {
		elem.Value = &memoryEntry{key: key, record: record}
		m.order.MoveToFront(elem)
	} else {
		m.index[key] = m.order.PushFront(&memoryEntry{key: key, record: record})
	}
	m.sets++

	for len(m.index) > m.maxEntries {
		oldest := m.order.Back()
		if oldest == nil {
			break
		}
		ent := oldest.Value.(*memoryEntry)
		m.order.Remove(oldest)
		delete(m.index, ent.key)
		m.capacityEvictions++
	}
}

func (m *Memory) countMiss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

// Key derives the normalized lookup key for a (source, target, text)
// triple: language codes normalized, text case-folded, whitespace-collapsed,
// Unicode NFC-normalized, then hashed to bound key size.
func Key(source, target, text string) (string, error) {
	sourceCode := language.NormalizeCode(source)
	targetCode := language.NormalizeCode(target)
	if sourceCode == "" || targetCode == "" {
		return "", fmt.Errorf("source and target languages are required")
	}
	normalized := NormalizeText(text)
	if normalized == "" {
		return "", fmt.Errorf("text is required")
	}

	digest := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s|%s|%x", sourceCode, targetCode, digest), nil
}

// NormalizeText folds case, collapses whitespace runs to single spaces, and
// applies Unicode NFC so visually identical strings share one key.
func NormalizeText(text string) string {
	folded := strings.ToLower(strings.TrimSpace(text))
	if folded == "" {
		return ""
	}
	collapsed := strings.Join(strings.Fields(folded), " ")
	return norm.NFC.String(collapsed)
}
