// Sessionlens - Agent Session Log Analytics
// Copyright 2026 The Sessionlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/sessionlens/sessionlens

// Package cache provides the mtime-keyed result cache.
//
// Session logs are append-only files; a computed result is valid exactly as
// long as the file it was computed from has not changed. Each entry records
// the source path and mtime it was derived from, and Get revalidates with a
// stat before returning it. There is no TTL: freshness is a property of the
// file, not of wall-clock time.
package cache

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/sessionlens/sessionlens/internal/metrics"
)

// Entry is one cached result bound to a source file state.
type Entry struct {
	Data     interface{}
	Path     string
	ModTime  time.Time
	StoredAt time.Time
}

// Cache is a thread-safe result cache with stat-based invalidation and a
// bounded size. When the entry count exceeds MaxEntries, the oldest
// EvictBatch entries are dropped in one pass.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	order      []string // insertion order, oldest first
	maxEntries int
	evictBatch int
	resource   string
	stats      Stats

	// locks holds one mutex per key so concurrent misses for the same
	// key compute once instead of racing the engine.
	locks sync.Map
}

// Stats tracks cache performance counters.
type Stats struct {
	mu        sync.RWMutex
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// New creates a result cache. resource labels the Prometheus counters
// (e.g. "metrics", "tools", "messages").
func New(resource string, maxEntries, evictBatch int) *Cache {
	if maxEntries < 1 {
		maxEntries = 200
	}
	if evictBatch < 1 || evictBatch > maxEntries {
		evictBatch = maxEntries / 4
		if evictBatch < 1 {
			evictBatch = 1
		}
	}
	return &Cache{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		evictBatch: evictBatch,
		resource:   resource,
	}
}

// Get returns the cached value for key if its source file still has the
// mtime recorded at Set time. A missing file, a stat error, or a moved
// mtime all count as a miss; stale entries are evicted on the spot.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil, false
	}

	info, err := os.Stat(entry.Path)
	if err != nil || !info.ModTime().Equal(entry.ModTime) {
		c.mu.Lock()
		// Re-check under the write lock: a concurrent Set may have
		// already refreshed this key for the new mtime.
		if cur, ok := c.entries[key]; ok && cur.ModTime.Equal(entry.ModTime) {
			c.deleteLocked(key)
		}
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.recordHit()
	return entry.Data, true
}

// Set stores a value computed from the file at path as it existed at
// modTime. A later Set for the same key replaces the previous entry.
func (c *Cache) Set(key, path string, modTime time.Time, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = Entry{
		Data:     value,
		Path:     path,
		ModTime:  modTime,
		StoredAt: time.Now(),
	}

	if len(c.entries) > c.maxEntries {
		c.evictOldestLocked(c.evictBatch)
	}

	c.stats.mu.Lock()
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.mu.Unlock()
}

// GetOrCompute returns the cached value for key, or runs compute and
// stores its result bound to (path, modTime). Concurrent callers for the
// same key serialize on a per-key lock so the computation runs once.
func (c *Cache) GetOrCompute(key, path string, compute func() (interface{}, time.Time, error)) (interface{}, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	// A concurrent caller may have filled the entry while we waited.
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	v, modTime, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.Set(key, path, modTime, v)
	return v, false, nil
}

// InvalidatePath removes every entry computed from the given file.
func (c *Cache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.Path == path {
			c.deleteLocked(key)
		}
	}
	c.stats.mu.Lock()
	c.stats.TotalKeys = int64(len(c.entries))
	c.stats.mu.Unlock()
}

// Delete removes a specific entry by key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	c.deleteLocked(key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	evicted := int64(len(c.entries))
	c.entries = make(map[string]Entry)
	c.order = nil
	c.mu.Unlock()

	c.stats.mu.Lock()
	c.stats.Evictions += evicted
	c.stats.TotalKeys = 0
	c.stats.mu.Unlock()
	metrics.CacheEvictions.Add(float64(evicted))
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return Stats{
		Hits:      c.stats.Hits,
		Misses:    c.stats.Misses,
		Evictions: c.stats.Evictions,
		TotalKeys: c.stats.TotalKeys,
	}
}

// HitRate returns the hit rate as a percentage.
func (c *Cache) HitRate() float64 {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	if total == 0 {
		return 0.0
	}
	return float64(stats.Hits) / float64(total) * 100.0
}

// deleteLocked removes key from the map and the order slice. Caller holds mu.
func (c *Cache) deleteLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.recordEviction()
}

// evictOldestLocked drops the n oldest entries. Caller holds mu.
func (c *Cache) evictOldestLocked(n int) {
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = c.order[n:]

	c.stats.mu.Lock()
	c.stats.Evictions += int64(n)
	c.stats.mu.Unlock()
	metrics.CacheEvictions.Add(float64(n))
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	actual, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (c *Cache) recordHit() {
	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	metrics.CacheHits.WithLabelValues(c.resource).Inc()
}

func (c *Cache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
	metrics.CacheMisses.WithLabelValues(c.resource).Inc()
}

func (c *Cache) recordEviction() {
	c.stats.mu.Lock()
	c.stats.Evictions++
	c.stats.mu.Unlock()
	metrics.CacheEvictions.Inc()
}

// GenerateKey builds a stable cache key from a method name and its
// parameters.
func GenerateKey(method string, params interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", method, params)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", method, hash[:16])
}
