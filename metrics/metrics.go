// Package metrics provides a Prometheus-backed flightcache.MetricsHook.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics that back a flightcache.MetricsHook.
type Metrics struct {
	HitsTotal          *prometheus.CounterVec
	StaleHitsTotal     *prometheus.CounterVec
	RefreshesTotal     *prometheus.CounterVec
	RefreshErrorsTotal *prometheus.CounterVec
	TimeoutsTotal      *prometheus.CounterVec
	EvictionsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all cache metrics under a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightcache_hits_total",
				Help: "Total number of fresh-entry cache hits by key.",
			},
			[]string{"key"},
		),
		StaleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightcache_stale_hits_total",
				Help: "Total number of update-due hits that returned a stale value.",
			},
			[]string{"key"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightcache_refreshes_total",
				Help: "Total number of producer invocations that completed successfully.",
			},
			[]string{"key"},
		),
		RefreshErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightcache_refresh_errors_total",
				Help: "Total number of producer invocations that returned an error.",
			},
			[]string{"key"},
		),
		TimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightcache_timeouts_total",
				Help: "Total number of producer invocations that exceeded the producer timeout.",
			},
			[]string{"key"},
		),
		EvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightcache_evictions_total",
				Help: "Total number of keys released by the eviction policy.",
			},
			[]string{"key"},
		),
		registry: reg,
	}

	reg.MustRegister(m.HitsTotal)
	reg.MustRegister(m.StaleHitsTotal)
	reg.MustRegister(m.RefreshesTotal)
	reg.MustRegister(m.RefreshErrorsTotal)
	reg.MustRegister(m.TimeoutsTotal)
	reg.MustRegister(m.EvictionsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnHit implements flightcache.MetricsHook.
func (m *Metrics) OnHit(key string) { m.HitsTotal.WithLabelValues(key).Inc() }

// OnStale implements flightcache.MetricsHook.
func (m *Metrics) OnStale(key string) { m.StaleHitsTotal.WithLabelValues(key).Inc() }

// OnRefresh implements flightcache.MetricsHook.
func (m *Metrics) OnRefresh(key string) { m.RefreshesTotal.WithLabelValues(key).Inc() }

// OnRefreshError implements flightcache.MetricsHook.
func (m *Metrics) OnRefreshError(key string, _ error) { m.RefreshErrorsTotal.WithLabelValues(key).Inc() }

// OnTimeout implements flightcache.MetricsHook.
func (m *Metrics) OnTimeout(key string) { m.TimeoutsTotal.WithLabelValues(key).Inc() }

// OnEviction implements flightcache.MetricsHook.
func (m *Metrics) OnEviction(key string) { m.EvictionsTotal.WithLabelValues(key).Inc() }
