// Package cache provides the TTL-keyed store shared across concurrent
// audit runs. Keys are composed as {type}:{cacheKey}:{normalizedUrl};
// writes are last-writer-wins and expired entries are dropped lazily on
// read plus by a periodic sweep.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// EntryType namespaces what stage of the pipeline a value belongs to.
type EntryType string

const (
	TypeRawSnapshot  EntryType = "rawSnapshot"
	TypeSiteSnapshot EntryType = "siteSnapshot"
	TypePublicReport EntryType = "publicReport"
	TypePrivateFlags EntryType = "privateFlags"
)

// Default per-stage TTLs.
const (
	TTLRawSnapshot  = 6 * time.Hour
	TTLSiteSnapshot = 12 * time.Hour
	TTLPublicReport = 24 * time.Hour
	TTLPrivateFlags = 1 * time.Hour
)

// Key builds the composite cache key.
func Key(t EntryType, cacheKey, normalizedURL string) string {
	return fmt.Sprintf("%s:%s:%s", t, cacheKey, normalizedURL)
}

// Store is the cache abstraction the orchestrator consumes. The default
// implementation is in-memory; any TTL store with last-writer-wins
// semantics can back it.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Memory is the in-process Store implementation.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries:   make(map[string]entry),
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}
}

// Get returns the live value for key. A value read after its TTL is
// treated as absent and removed.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; another writer may have
		// refreshed the entry.
		if cur, still := m.entries[key]; still && m.now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl. Last writer wins.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
}

// Delete removes key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// StartSweeper launches the periodic cleanup goroutine. Safe to call once;
// Stop terminates it.
func (m *Memory) StartSweeper(interval time.Duration) {
	m.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.sweep()
				case <-m.sweepStop:
					return
				}
			}
		}()
	})
}

// Stop terminates the sweeper goroutine.
func (m *Memory) Stop() {
	select {
	case <-m.sweepStop:
	default:
		close(m.sweepStop)
	}
}

func (m *Memory) sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
