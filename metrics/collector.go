// Package metrics defines the collector interface the registry client
// reports into, along with a no-op implementation and a prometheus-backed
// one.
package metrics

import "time"

// Collector records cache, fetch and resolution events. Implementations must
// be safe for concurrent use.
type Collector interface {
	// CacheHit is called when a lookup is served from the resolution cache.
	CacheHit()
	// CacheMiss is called when the cache holds no live entry for a key.
	CacheMiss()
	// CacheExpired is called when a resident entry is dropped because its
	// TTL elapsed.
	CacheExpired()
	// CacheEvicted is called when an insert pushes out the least recently
	// used entry.
	CacheEvicted()
	// CacheInvalidated is called when an entry is removed explicitly.
	CacheInvalidated()
	// CacheEntries reports the number of resident entries after a change.
	CacheEntries(entries uint)

	// FetchStarted is called before a ledger read begins.
	FetchStarted()
	// FetchFinished reports the duration and outcome of a ledger read. An
	// authoritative answer, including "no such account", counts as success.
	FetchFinished(duration time.Duration, success bool)
	// FetchRetried is called for every retry of a failed read.
	FetchRetried()

	// LookupDeduplicated is called when a lookup attaches to an already
	// running resolution instead of starting its own.
	LookupDeduplicated()
	// RegistryResolved reports the size of a freshly resolved registry.
	RegistryResolved(tables int, addresses int)
}
