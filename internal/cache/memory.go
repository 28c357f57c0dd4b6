package cache

import (
	"sync"
	"time"

	"github.com/sells-group/insight-engine/internal/model"
)

// memoryStore is the exact tier: cache entries keyed by fingerprint with
// TTL expiry. Expired entries are invisible to readers immediately and
// physically removed by the janitor sweep.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*model.CacheEntry
	max     int
	nowFunc func() time.Time
}

func newMemoryStore(max int, nowFunc func() time.Time) *memoryStore {
	if max <= 0 {
		max = 10000
	}
	return &memoryStore{
		entries: make(map[string]*model.CacheEntry),
		max:     max,
		nowFunc: nowFunc,
	}
}

func (m *memoryStore) get(fingerprint string) (*model.CacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[fingerprint]
	if !ok || entry.Expired(m.nowFunc()) {
		return nil, false
	}
	return entry, true
}

func (m *memoryStore) put(entry *model.CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.Fingerprint]; !exists && len(m.entries) >= m.max {
		m.evictOldestLocked()
	}
	m.entries[entry.Fingerprint] = entry
}

func (m *memoryStore) delete(fingerprint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[fingerprint]
	delete(m.entries, fingerprint)
	return ok
}

func (m *memoryStore) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*model.CacheEntry)
}

func (m *memoryStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// sweep removes expired entries and returns their fingerprints so the
// caller can purge the similarity index to match.
func (m *memoryStore) sweep() []string {
	now := m.nowFunc()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for fp, entry := range m.entries {
		if entry.Expired(now) {
			delete(m.entries, fp)
			removed = append(removed, fp)
		}
	}
	return removed
}

// evictOldestLocked drops the entry closest to expiry. Caller holds mu.
func (m *memoryStore) evictOldestLocked() {
	var oldest string
	var oldestAt time.Time
	for fp, entry := range m.entries {
		if oldest == "" || entry.ExpiresAt.Before(oldestAt) {
			oldest = fp
			oldestAt = entry.ExpiresAt
		}
	}
	if oldest != "" {
		delete(m.entries, oldest)
	}
}
