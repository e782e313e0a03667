package cache

import (
	"container/list"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/kangae/internal/store"
)

// Entry is one cached response.
type Entry struct {
	Key        string    `json:"key"`
	Namespace  string    `json:"namespace"`
	Value      string    `json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Size       int       `json:"size"`
	lastAccess time.Time
	element    *list.Element
}

// Stats summarizes one namespace (or the whole cache).
type Stats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"sizeBytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type namespaceShard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	lru     *list.List // front = most recently used
	stats   Stats
}

// Cache is a content-hash keyed store with TTL, expired-first eviction, and
// per-namespace write serialization. Reads are safe concurrently.
type Cache struct {
	mu          sync.RWMutex
	shards      map[string]*namespaceShard
	maxEntries  int
	targetRatio float64
	snapshotDir string
	now         func() time.Time
}

type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSnapshotDir enables best-effort JSON snapshots during maintenance.
func WithSnapshotDir(dir string) Option {
	return func(c *Cache) { c.snapshotDir = dir }
}

func New(maxEntries int, targetRatio float64, opts ...Option) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if targetRatio <= 0 || targetRatio > 1 {
		targetRatio = 0.8
	}

	c := &Cache{
		shards:      make(map[string]*namespaceShard),
		maxEntries:  maxEntries,
		targetRatio: targetRatio,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key, or nil when absent or expired. Expired
// entries are never returned, even before maintenance removes them.
func (c *Cache) Get(namespace, key string) *Entry {
	shard := c.shard(namespace, false)
	if shard == nil {
		return nil
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		shard.stats.Misses++
		return nil
	}
	if c.now().After(entry.ExpiresAt) {
		shard.stats.Misses++
		return nil
	}

	entry.lastAccess = c.now()
	shard.lru.MoveToFront(entry.element)
	shard.stats.Hits++

	copied := *entry
	copied.element = nil
	return &copied
}

// Put stores value under key with the given TTL. The write is atomic: a
// reader sees either the full new entry or the prior state.
func (c *Cache) Put(namespace, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	shard := c.shard(namespace, true)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := c.now()
	if existing, ok := shard.entries[key]; ok {
		shard.lru.Remove(existing.element)
		shard.stats.SizeBytes -= int64(existing.Size)
	}

	entry := &Entry{
		Key:        key,
		Namespace:  namespace,
		Value:      value,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Size:       len(value),
		lastAccess: now,
	}
	entry.element = shard.lru.PushFront(entry)
	shard.entries[key] = entry
	shard.stats.SizeBytes += int64(entry.Size)
}

// Stats returns counters for one namespace, or aggregated totals when
// namespace is empty.
func (c *Cache) Stats(namespace string) Stats {
	if namespace != "" {
		shard := c.shard(namespace, false)
		if shard == nil {
			return Stats{}
		}
		shard.mu.RLock()
		defer shard.mu.RUnlock()
		stats := shard.stats
		stats.Entries = len(shard.entries)
		return stats
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var total Stats
	for _, shard := range c.shards {
		shard.mu.RLock()
		total.Entries += len(shard.entries)
		total.SizeBytes += shard.stats.SizeBytes
		total.Hits += shard.stats.Hits
		total.Misses += shard.stats.Misses
		total.Evictions += shard.stats.Evictions
		shard.mu.RUnlock()
	}
	return total
}

// Maintenance evicts expired entries first, then least-recently-used
// entries until the cache is at or below its size target. Returns the
// number of removed entries.
func (c *Cache) Maintenance() int {
	c.mu.RLock()
	shards := make([]*namespaceShard, 0, len(c.shards))
	names := make([]string, 0, len(c.shards))
	for name, shard := range c.shards {
		shards = append(shards, shard)
		names = append(names, name)
	}
	c.mu.RUnlock()

	removed := 0
	total := 0
	for _, shard := range shards {
		removed += c.evictExpired(shard)
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}

	target := int(float64(c.maxEntries) * c.targetRatio)
	for total > target {
		victim := c.oldestShard(shards)
		if victim == nil {
			break
		}
		removed += c.evictLRU(victim, 1)
		total--
	}

	if c.snapshotDir != "" {
		for i, shard := range shards {
			c.snapshot(names[i], shard)
		}
	}

	if removed > 0 {
		slog.Debug("Cache maintenance complete", "removed", removed, "remaining", total)
	}
	return removed
}

func (c *Cache) evictExpired(shard *namespaceShard) int {
	shard.mu.Lock()
	defer shard.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range shard.entries {
		if now.After(entry.ExpiresAt) {
			shard.lru.Remove(entry.element)
			delete(shard.entries, key)
			shard.stats.SizeBytes -= int64(entry.Size)
			shard.stats.Evictions++
			removed++
		}
	}
	return removed
}

// oldestShard returns the shard whose tail entry was accessed longest
// ago, so the trim phase is least-recently-used across all namespaces
// rather than within whichever shard map iteration visits first.
func (c *Cache) oldestShard(shards []*namespaceShard) *namespaceShard {
	var victim *namespaceShard
	var oldest time.Time
	for _, shard := range shards {
		shard.mu.RLock()
		back := shard.lru.Back()
		var access time.Time
		if back != nil {
			access = back.Value.(*Entry).lastAccess
		}
		shard.mu.RUnlock()

		if back == nil {
			continue
		}
		if victim == nil || access.Before(oldest) {
			victim = shard
			oldest = access
		}
	}
	return victim
}

func (c *Cache) evictLRU(shard *namespaceShard, max int) int {
	shard.mu.Lock()
	defer shard.mu.Unlock()

	removed := 0
	for removed < max {
		back := shard.lru.Back()
		if back == nil {
			break
		}
		entry := back.Value.(*Entry)
		shard.lru.Remove(back)
		delete(shard.entries, entry.Key)
		shard.stats.SizeBytes -= int64(entry.Size)
		shard.stats.Evictions++
		removed++
	}
	return removed
}

func (c *Cache) snapshot(namespace string, shard *namespaceShard) {
	shard.mu.RLock()
	entries := make([]Entry, 0, len(shard.entries))
	for _, entry := range shard.entries {
		copied := *entry
		copied.element = nil
		entries = append(entries, copied)
	}
	shard.mu.RUnlock()

	path := filepath.Join(c.snapshotDir, namespace+".json")
	if err := store.WriteSnapshot(path, entries); err != nil {
		slog.Warn("Cache snapshot failed", "namespace", namespace, "error", err)
	}
}

func (c *Cache) shard(namespace string, create bool) *namespaceShard {
	c.mu.RLock()
	shard, ok := c.shards[namespace]
	c.mu.RUnlock()
	if ok || !create {
		return shard
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if shard, ok = c.shards[namespace]; ok {
		return shard
	}
	shard = &namespaceShard{
		entries: make(map[string]*Entry),
		lru:     list.New(),
	}
	c.shards[namespace] = shard
	return shard
}
