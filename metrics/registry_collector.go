package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceRegistry = "lookup_registry"

	subsystemCache    = "cache"
	subsystemFetcher  = "fetcher"
	subsystemResolver = "resolver"
)

// RegistryCollector reports client events to prometheus. Construct it once
// per process; metrics register on the default registerer.
type RegistryCollector struct {
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheExpirations   prometheus.Counter
	cacheEvictions     prometheus.Counter
	cacheInvalidations prometheus.Counter
	cacheEntries       prometheus.Gauge

	fetches       prometheus.Counter
	fetchFailures prometheus.Counter
	fetchRetries  prometheus.Counter
	fetchDuration prometheus.Histogram

	dedupedLookups    prometheus.Counter
	resolvedTables    prometheus.Histogram
	resolvedAddresses prometheus.Histogram
}

var _ Collector = (*RegistryCollector)(nil)

func NewRegistryCollector() *RegistryCollector {
	return &RegistryCollector{
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemCache,
			Name:      "hits_total",
			Help:      "number of lookups served from the resolution cache",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemCache,
			Name:      "misses_total",
			Help:      "number of lookups that found no live cache entry",
		}),
		cacheExpirations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemCache,
			Name:      "expirations_total",
			Help:      "number of cache entries dropped after their TTL elapsed",
		}),
		cacheEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemCache,
			Name:      "evictions_total",
			Help:      "number of cache entries evicted to make room",
		}),
		cacheInvalidations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemCache,
			Name:      "invalidations_total",
			Help:      "number of cache entries removed explicitly",
		}),
		cacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemCache,
			Name:      "entries",
			Help:      "number of resident cache entries",
		}),
		fetches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemFetcher,
			Name:      "reads_total",
			Help:      "number of ledger reads started",
		}),
		fetchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemFetcher,
			Name:      "read_failures_total",
			Help:      "number of ledger reads that failed after all retries",
		}),
		fetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemFetcher,
			Name:      "read_retries_total",
			Help:      "number of ledger read retry attempts",
		}),
		fetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemFetcher,
			Name:      "read_duration_seconds",
			Help:      "time spent serving a ledger read, retries included",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		dedupedLookups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemResolver,
			Name:      "deduplicated_lookups_total",
			Help:      "number of lookups that attached to an in-flight resolution",
		}),
		resolvedTables: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemResolver,
			Name:      "resolved_tables",
			Help:      "number of lookup tables per resolved registry",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		resolvedAddresses: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespaceRegistry,
			Subsystem: subsystemResolver,
			Name:      "resolved_addresses",
			Help:      "number of stored addresses per resolved registry",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

func (rc *RegistryCollector) CacheHit() {
	rc.cacheHits.Inc()
}

func (rc *RegistryCollector) CacheMiss() {
	rc.cacheMisses.Inc()
}

func (rc *RegistryCollector) CacheExpired() {
	rc.cacheExpirations.Inc()
}

func (rc *RegistryCollector) CacheEvicted() {
	rc.cacheEvictions.Inc()
}

func (rc *RegistryCollector) CacheInvalidated() {
	rc.cacheInvalidations.Inc()
}

func (rc *RegistryCollector) CacheEntries(entries uint) {
	rc.cacheEntries.Set(float64(entries))
}

func (rc *RegistryCollector) FetchStarted() {
	rc.fetches.Inc()
}

func (rc *RegistryCollector) FetchFinished(duration time.Duration, success bool) {
	rc.fetchDuration.Observe(duration.Seconds())
	if !success {
		rc.fetchFailures.Inc()
	}
}

func (rc *RegistryCollector) FetchRetried() {
	rc.fetchRetries.Inc()
}

func (rc *RegistryCollector) LookupDeduplicated() {
	rc.dedupedLookups.Inc()
}

func (rc *RegistryCollector) RegistryResolved(tables int, addresses int) {
	rc.resolvedTables.Observe(float64(tables))
	rc.resolvedAddresses.Observe(float64(addresses))
}
