package flightcache

// MetricsHook is the cache's hookable-but-unspecified metrics emission
// point (spec §1 Non-goals). The Orchestrator calls it inline with the
// state transitions it names; implementations must not block materially,
// since hits and misses call through it synchronously on the hot path.
type MetricsHook interface {
	OnHit(key string)
	OnStale(key string)
	OnRefresh(key string)
	OnRefreshError(key string, err error)
	OnTimeout(key string)
	OnEviction(key string)
}

// NoOpMetricsHook implements MetricsHook with no effect; it is the
// default when WithMetricsHook is not supplied.
type NoOpMetricsHook struct{}

func (NoOpMetricsHook) OnHit(string)                 {}
func (NoOpMetricsHook) OnStale(string)               {}
func (NoOpMetricsHook) OnRefresh(string)              {}
func (NoOpMetricsHook) OnRefreshError(string, error) {}
func (NoOpMetricsHook) OnTimeout(string)             {}
func (NoOpMetricsHook) OnEviction(string)            {}
