// Package metrics wires the driver's internal counters into a Prometheus
// registry, in the shape rclone's lib/metrics package exposes its own
// standalone handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge/histogram the driver publishes. A nil
// *Metrics is safe to call methods on (they become no-ops), so components
// can be built without a registry in tests.
type Metrics struct {
	BusExchanges       *prometheus.CounterVec
	BusExchangeLatency *prometheus.HistogramVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheOccupancy     prometheus.Gauge
	FSOperations       *prometheus.CounterVec
	BytesTransferred   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers the driver's metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		BusExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartfs_bus_exchanges_total",
			Help: "Number of bus exchanges issued to the controller, by opcode and result.",
		}, []string{"opcode", "result"}),
		BusExchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cartfs_bus_exchange_duration_seconds",
			Help:    "Latency of bus exchanges with the controller.",
			Buckets: prometheus.DefBuckets,
		}, []string{"opcode"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartfs_cache_hits_total",
			Help: "Number of frame cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cartfs_cache_misses_total",
			Help: "Number of frame cache misses.",
		}),
		CacheOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cartfs_cache_occupied_entries",
			Help: "Current number of occupied frame cache entries.",
		}),
		FSOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartfs_fs_operations_total",
			Help: "Filesystem operations, by operation and result.",
		}, []string{"op", "result"}),
		BytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartfs_bytes_transferred_total",
			Help: "Bytes moved through the filesystem, by direction.",
		}, []string{"direction"}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		m.BusExchanges,
		m.BusExchangeLatency,
		m.CacheHits,
		m.CacheMisses,
		m.CacheOccupancy,
		m.FSOperations,
		m.BytesTransferred,
	)
	m.registry = reg
	return m
}

// Handler returns an http.Handler serving this Metrics' collectors in the
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) busExchange(opcode, result string) {
	if m == nil {
		return
	}
	m.BusExchanges.WithLabelValues(opcode, result).Inc()
}

func (m *Metrics) busExchangeLatency(opcode string, seconds float64) {
	if m == nil {
		return
	}
	m.BusExchangeLatency.WithLabelValues(opcode).Observe(seconds)
}

// ObserveBusExchange records the outcome and latency of one bus exchange.
func (m *Metrics) ObserveBusExchange(opcode string, result string, seconds float64) {
	m.busExchange(opcode, result)
	m.busExchangeLatency(opcode, seconds)
}

// ObserveCacheHit records a frame cache hit.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// ObserveCacheMiss records a frame cache miss.
func (m *Metrics) ObserveCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// SetCacheOccupancy reports the current number of occupied cache entries.
func (m *Metrics) SetCacheOccupancy(n int) {
	if m == nil {
		return
	}
	m.CacheOccupancy.Set(float64(n))
}

// ObserveFSOperation records a filesystem operation outcome.
func (m *Metrics) ObserveFSOperation(op, result string) {
	if m == nil {
		return
	}
	m.FSOperations.WithLabelValues(op, result).Inc()
}

// AddBytesTransferred adds n bytes to the counter for the given direction
// ("read" or "write").
func (m *Metrics) AddBytesTransferred(direction string, n int) {
	if m == nil {
		return
	}
	m.BytesTransferred.WithLabelValues(direction).Add(float64(n))
}
