package resolver

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/llm-access-gate/internal/policy"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	tenantID   uuid.UUID
	gate       *policy.Gate
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) > ttl
}

// GateCache is an in-memory LRU cache with TTL for merged policy gates,
// keyed by tenant. The user layer does not participate in the key: this
// core has no per-user policy narrowing.
// Thread-safe implementation using sync.Mutex.
type GateCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	lruList *list.List // Doubly linked list for LRU tracking
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewGateCache creates a new GateCache with specified max size and TTL
func NewGateCache(maxSize int, ttl time.Duration) *GateCache {
	return &GateCache{
		entries: make(map[uuid.UUID]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get retrieves a gate from cache. Returns nil if not found or expired.
func (c *GateCache) Get(tenantID uuid.UUID) *policy.Gate {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[tenantID]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(tenantID)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.gate
}

// Set stores a gate in cache
func (c *GateCache) Set(tenantID uuid.UUID, gate *policy.Gate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[tenantID]; exists {
		entry.gate = gate
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		tenantID:   tenantID,
		gate:       gate,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(tenantID)
	c.entries[tenantID] = entry
}

// Invalidate removes the entry for a tenant
func (c *GateCache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeEntry(tenantID)
}

// Clear removes all entries from the cache
func (c *GateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[uuid.UUID]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *GateCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// StartCleanupWorker starts a background worker that removes expired
// entries until stopCh closes.
func (c *GateCache) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.removeExpired()
			case <-stopCh:
				return
			}
		}
	}()
}

// removeExpired removes all expired entries
func (c *GateCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tenantID, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			c.removeEntry(tenantID)
		}
	}
}

// removeEntry removes an entry; caller must hold the lock
func (c *GateCache) removeEntry(tenantID uuid.UUID) {
	entry, exists := c.entries[tenantID]
	if !exists {
		return
	}
	c.lruList.Remove(entry.element)
	delete(c.entries, tenantID)
}

// evictLRU removes the least recently used entry; caller must hold the lock
func (c *GateCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	tenantID := back.Value.(uuid.UUID)
	c.removeEntry(tenantID)
}
