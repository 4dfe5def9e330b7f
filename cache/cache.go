// Package cache holds resolved registries with bounded capacity and bounded
// age. Reads never return entries past their TTL, and writes carrying older
// ledger state than the resident record are refused, so concurrent refreshes
// cannot roll the cache backwards.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rs/zerolog"

	"github.com/jet-lab/lookup-table-registry-go/metrics"
	"github.com/jet-lab/lookup-table-registry-go/registry"
	"github.com/jet-lab/lookup-table-registry-go/solana"
)

// DefaultCapacity bounds the number of cached registries.
const DefaultCapacity = 128

// DefaultTTL bounds how long a cached registry may keep being served.
const DefaultTTL = time.Hour

// entry wraps a resolved registry with its insertion time.
type entry struct {
	record     *registry.Registry
	insertedAt time.Time
}

// Cache is an LRU cache of resolved registries keyed by authority. All
// operations run under one lock, so compound operations observe a consistent
// state. A TTL of zero disables expiry.
type Cache struct {
	log     zerolog.Logger
	metrics metrics.Collector

	mu  sync.Mutex
	lru *simplelru.LRU[solana.PublicKey, *entry]
	ttl time.Duration
	now func() time.Time
}

type Option func(*Cache)

// WithClock replaces the cache's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a cache holding at most capacity registries for at most
// ttl each.
func NewCache(log zerolog.Logger, collector metrics.Collector, capacity int, ttl time.Duration, opts ...Option) (*Cache, error) {
	lru, err := simplelru.NewLRU[solana.PublicKey, *entry](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create lru store: %w", err)
	}

	c := &Cache{
		log:     log.With().Str("component", "resolution_cache").Logger(),
		metrics: collector,
		lru:     lru,
		ttl:     ttl,
		now:     time.Now,
	}
	for _, apply := range opts {
		apply(c)
	}
	return c, nil
}

// Get returns the live record for the authority. An entry past its TTL is
// dropped, never returned. Returning a record refreshes the key's recency.
func (c *Cache) Get(authority solana.PublicKey) (*registry.Registry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.lru.Get(authority)
	if !ok {
		c.metrics.CacheMiss()
		return nil, false
	}
	if c.expired(ent) {
		c.lru.Remove(authority)
		c.metrics.CacheExpired()
		c.metrics.CacheMiss()
		c.metrics.CacheEntries(uint(c.lru.Len()))
		return nil, false
	}

	c.metrics.CacheHit()
	return ent.record, true
}

// Peek returns the resident record even when expired, without refreshing
// recency. The resolver uses it to compare fresh reads against previously
// observed state.
func (c *Cache) Peek(authority solana.PublicKey) (*registry.Registry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.lru.Peek(authority)
	if !ok {
		return nil, false
	}
	return ent.record, true
}

// Put stores a record under its authority and restarts the TTL. It returns
// false, leaving the resident entry in place, when the record reads older
// ledger state than what is already cached.
func (c *Cache) Put(authority solana.PublicKey, record *registry.Registry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if resident, ok := c.lru.Peek(authority); ok && resident.record.Slot > record.Slot {
		c.log.Warn().
			Str("authority", authority.String()).
			Uint64("resident_slot", resident.record.Slot).
			Uint64("incoming_slot", record.Slot).
			Msg("refusing cache write carrying older ledger state")
		return false
	}

	if evicted := c.lru.Add(authority, &entry{record: record, insertedAt: c.now()}); evicted {
		c.metrics.CacheEvicted()
	}
	c.metrics.CacheEntries(uint(c.lru.Len()))
	return true
}

// Invalidate removes the authority's record, reporting whether one was
// resident.
func (c *Cache) Invalidate(authority solana.PublicKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	present := c.lru.Remove(authority)
	if present {
		c.metrics.CacheInvalidated()
		c.metrics.CacheEntries(uint(c.lru.Len()))
	}
	return present
}

// Len returns the number of resident entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.metrics.CacheEntries(0)
}

func (c *Cache) expired(ent *entry) bool {
	return c.ttl > 0 && c.now().Sub(ent.insertedAt) > c.ttl
}
