package client

import (
	"time"

	"github.com/jet-lab/lookup-table-registry-go/cache"
	"github.com/jet-lab/lookup-table-registry-go/ledger"
)

// Config collects the client's tunables. DefaultConfig returns the
// production values; options override individual fields.
type Config struct {
	// CacheCapacity bounds the number of cached registries.
	CacheCapacity int
	// CacheTTL bounds how long a cached registry may keep being served.
	// Zero disables expiry.
	CacheTTL time.Duration
	// RefreshConcurrency bounds how many registries UpdateRegistries
	// refreshes at once.
	RefreshConcurrency int
	// Fetcher configures retries and circuit breaking for ledger reads.
	Fetcher ledger.FetcherConfig
}

func DefaultConfig() Config {
	return Config{
		CacheCapacity:      cache.DefaultCapacity,
		CacheTTL:           cache.DefaultTTL,
		RefreshConcurrency: 4,
		Fetcher:            ledger.DefaultFetcherConfig(),
	}
}

type Option func(*Config)

// WithCacheCapacity bounds the number of cached registries.
func WithCacheCapacity(capacity int) Option {
	return func(cfg *Config) {
		cfg.CacheCapacity = capacity
	}
}

// WithCacheTTL bounds how long cached registries keep being served. Zero
// disables expiry.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *Config) {
		cfg.CacheTTL = ttl
	}
}

// WithRefreshConcurrency bounds how many registries UpdateRegistries
// refreshes at once.
func WithRefreshConcurrency(concurrency int) Option {
	return func(cfg *Config) {
		cfg.RefreshConcurrency = concurrency
	}
}

// WithFetcherConfig replaces the ledger fetcher's retry and circuit breaker
// settings.
func WithFetcherConfig(fetcher ledger.FetcherConfig) Option {
	return func(cfg *Config) {
		cfg.Fetcher = fetcher
	}
}
