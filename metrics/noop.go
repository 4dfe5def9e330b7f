package metrics

import "time"

// NoopCollector discards all metrics. Tests and callers that do not care
// about metrics use it.
type NoopCollector struct{}

var _ Collector = (*NoopCollector)(nil)

func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (nc *NoopCollector) CacheHit()                         {}
func (nc *NoopCollector) CacheMiss()                        {}
func (nc *NoopCollector) CacheExpired()                     {}
func (nc *NoopCollector) CacheEvicted()                     {}
func (nc *NoopCollector) CacheInvalidated()                 {}
func (nc *NoopCollector) CacheEntries(uint)                 {}
func (nc *NoopCollector) FetchStarted()                     {}
func (nc *NoopCollector) FetchFinished(time.Duration, bool) {}
func (nc *NoopCollector) FetchRetried()                     {}
func (nc *NoopCollector) LookupDeduplicated()               {}
func (nc *NoopCollector) RegistryResolved(int, int)         {}
