package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryCache is a Backend held in process memory. Expired entries are swept
// periodically; when the cache grows past maxSize the entries closest to
// expiry are evicted first.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	maxSize int

	stopOnce sync.Once
	stopCh   chan struct{}
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache returns a MemoryCache and starts its sweeper. maxSize <= 0
// means unbounded.
func NewMemoryCache(maxSize int, cleanupInterval time.Duration) *MemoryCache {
	mc := &MemoryCache{
		entries: make(map[string]memoryEntry),
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}
	go mc.cleanupLoop(cleanupInterval)
	return mc
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	over := m.maxSize > 0 && len(m.entries) > m.maxSize
	m.mu.Unlock()
	if over {
		m.cleanup()
	}
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of entries, including expired ones not yet swept.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryCache) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCache) cleanup() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	type live struct {
		key       string
		expiresAt time.Time
	}
	var remaining []live
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
			continue
		}
		remaining = append(remaining, live{k, e.expiresAt})
	}

	if m.maxSize <= 0 || len(remaining) <= m.maxSize {
		return
	}
	slices.SortFunc(remaining, func(a, b live) int { return a.expiresAt.Compare(b.expiresAt) })
	for _, e := range remaining[:len(remaining)-m.maxSize] {
		delete(m.entries, e.key)
	}
}
