// Package cache implements the engine's shared cache: an LRU- and
// TTL-bounded key/value store with independent copy-in/copy-out semantics,
// so a caller mutating a key or value it passed in or received back can
// never corrupt the cache's own state.
package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls cache sizing and expiry.
type Config struct {
	Enabled         bool
	MaxItems        int
	TTL             time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig mirrors the defaults the rest of the codebase's runnable
// demo ships with.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxItems:        2000,
		TTL:             15 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

type entry struct {
	key        string
	value      []byte
	createdAt  time.Time
	expiresAt  time.Time // zero means "never expires"
	prev, next *entry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats tracks cache activity. It owns its own mutex so a snapshot can be
// taken without holding the cache's main lock.
type Stats struct {
	mu          sync.RWMutex
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Sets        int64
}

func (s *Stats) recordHit()        { s.mu.Lock(); s.Hits++; s.mu.Unlock() }
func (s *Stats) recordMiss()       { s.mu.Lock(); s.Misses++; s.mu.Unlock() }
func (s *Stats) recordEviction()   { s.mu.Lock(); s.Evictions++; s.mu.Unlock() }
func (s *Stats) recordExpiration() { s.mu.Lock(); s.Expirations++; s.mu.Unlock() }
func (s *Stats) recordSet()        { s.mu.Lock(); s.Sets++; s.mu.Unlock() }

// Snapshot returns a copy of the stats counters.
func (s *Stats) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Hits:        s.Hits,
		Misses:      s.Misses,
		Evictions:   s.Evictions,
		Expirations: s.Expirations,
		Sets:        s.Sets,
	}
}

// Cache is a fixed-capacity, TTL-expiring, LRU-evicting byte cache.
// Eviction happens synchronously inside Set once MaxItems is exceeded,
// never on a separate sweep — a Set that pushes the cache over capacity
// evicts the least-recently-used entry before returning.
type Cache struct {
	mu       sync.RWMutex
	cfg      Config
	entries  map[string]*entry
	head     *entry // most recently used
	tail     *entry // least recently used
	stats    Stats
	lastSweep time.Time
	log      *zap.SugaredLogger
}

// SetLogger attaches a structured logger used to report sweep activity.
// A Cache with no logger attached stays silent.
func (c *Cache) SetLogger(l *zap.SugaredLogger) {
	if l == nil {
		return
	}
	c.log = l.With("component", "cache")
}

// New constructs a Cache from cfg.
func New(cfg Config) *Cache {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 2000
	}
	return &Cache{
		cfg:      cfg,
		entries:  make(map[string]*entry),
		lastSweep: time.Now(),
	}
}

// Get returns a fresh copy of the cached value for key, or (nil, false) if
// absent or expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.stats.recordMiss()
		return nil, false
	}
	if e.expired(time.Now()) {
		c.removeLocked(e)
		c.mu.Unlock()
		c.stats.recordExpiration()
		c.stats.recordMiss()
		return nil, false
	}
	c.moveToFrontLocked(e)
	out := append([]byte(nil), e.value...)
	c.mu.Unlock()
	c.stats.recordHit()
	return out, true
}

// Set stores an independent copy of key and value, evicting the
// least-recently-used entry if this insertion pushes the cache past
// MaxItems, and opportunistically sweeping expired entries if
// CleanupInterval has elapsed since the last sweep. ttl overrides
// Config.TTL for this entry only; a ttl of 0 falls back to Config.TTL
// (and if that is also 0, the entry never expires on its own and is only
// removed by Del/DelByPrefix/eviction) — spec §4.6's `set(key, value,
// ttl?)`.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if !c.cfg.Enabled {
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}

	storedKey := key
	storedValue := append([]byte(nil), value...)
	now := time.Now()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	if e, ok := c.entries[storedKey]; ok {
		e.value = storedValue
		e.createdAt = now
		e.expiresAt = expiresAt
		c.moveToFrontLocked(e)
		c.mu.Unlock()
		c.stats.recordSet()
		return
	}

	e := &entry{key: storedKey, value: storedValue, createdAt: now, expiresAt: expiresAt}
	c.entries[storedKey] = e
	c.pushFrontLocked(e)

	if len(c.entries) > c.cfg.MaxItems {
		c.evictLRULocked()
	}

	shouldSweep := c.cfg.CleanupInterval > 0 && time.Since(c.lastSweep) > c.cfg.CleanupInterval
	if shouldSweep {
		c.lastSweep = time.Now()
	}
	c.mu.Unlock()

	c.stats.recordSet()
	if shouldSweep {
		go c.cleanupExpired()
	}
}

// Del removes key from the cache if present.
func (c *Cache) Del(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// DelByPrefix removes every key with the given prefix.
func (c *Cache) DelByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.removeLocked(e)
		}
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.head, c.tail = nil, nil
}

// Len reports the current number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache's activity counters.
func (c *Cache) Stats() Stats {
	return c.stats.Snapshot()
}

// CleanupExpired scans every entry, collects the ones past their
// per-entry expiry, then removes and frees them — collect-then-remove
// under one lock acquisition, never mutating the map while ranging over
// it. Returns the number removed (spec §4.6, §8 invariant 8).
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.cleanupExpiredLocked()
	if n > 0 && c.log != nil {
		c.log.Debugw("cleanup swept expired entries", "removed", n)
	}
	return n
}

func (c *Cache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupExpiredLocked()
}

func (c *Cache) cleanupExpiredLocked() int {
	var expired []*entry
	now := time.Now()
	for _, e := range c.entries {
		if e.expired(now) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		c.removeLocked(e)
		c.stats.recordExpiration()
	}
	return len(expired)
}

func (c *Cache) pushFrontLocked(e *entry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) moveToFrontLocked(e *entry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushFrontLocked(e)
}

func (c *Cache) unlinkLocked(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else if c.head == e {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else if c.tail == e {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (c *Cache) removeLocked(e *entry) {
	c.unlinkLocked(e)
	delete(c.entries, e.key)
}

func (c *Cache) evictLRULocked() {
	if c.tail == nil {
		return
	}
	victim := c.tail
	c.removeLocked(victim)
	c.stats.recordEviction()
}
