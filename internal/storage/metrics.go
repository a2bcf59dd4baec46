package storage

// Metrics, grounded on the teacher's prometheus wiring in
// core/system_health_logging.go: a private registry plus named
// counters/gauges constructed at startup and updated in-line with the
// operations they describe.

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks façade-wide and per-backend operation counters
// (spec.md §4.4 Metrics).
type Metrics struct {
	registry *prometheus.Registry

	totalOps   prometheus.Counter
	totalErrs  prometheus.Counter
	cacheHits  prometheus.Counter
	cacheMiss  prometheus.Counter
	errorsMu   sync.Mutex
	backendErr map[string]prometheus.Counter

	opsCount atomic.Uint64
	errCount atomic.Uint64
}

// NewMetrics constructs a façade metrics collector registered against a
// private prometheus registry (the caller is responsible for exposing it
// on a /metrics endpoint if desired).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		totalOps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentnode_storage_operations_total",
			Help: "Total storage façade operations across all backends.",
		}),
		totalErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentnode_storage_errors_total",
			Help: "Total storage façade operation errors across all backends.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentnode_storage_cache_hits_total",
			Help: "Cache backend hits.",
		}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentnode_storage_cache_misses_total",
			Help: "Cache backend misses.",
		}),
		backendErr: make(map[string]prometheus.Counter),
	}
	reg.MustRegister(m.totalOps, m.totalErrs, m.cacheHits, m.cacheMiss)
	return m
}

// Registry exposes the private prometheus registry for mounting behind
// an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) recordOp() {
	m.totalOps.Inc()
	m.opsCount.Add(1)
}

func (m *Metrics) recordError(backend string) {
	m.totalErrs.Inc()
	m.errCount.Add(1)

	m.errorsMu.Lock()
	defer m.errorsMu.Unlock()
	c, ok := m.backendErr[backend]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "agentnode_storage_backend_errors_total",
			Help:        "Per-backend storage operation errors.",
			ConstLabels: prometheus.Labels{"backend": backend},
		})
		m.registry.MustRegister(c)
		m.backendErr[backend] = c
	}
	c.Inc()
}

// RecordCacheHit and RecordCacheMiss let a Cache backend report lookups
// through the façade's shared metrics instance.
func (m *Metrics) RecordCacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) RecordCacheMiss() { m.cacheMiss.Inc() }

// SuccessRate returns (ops - errors) / ops, or 1.0 if no ops recorded yet.
func (m *Metrics) SuccessRate() float64 {
	ops := m.opsCount.Load()
	if ops == 0 {
		return 1.0
	}
	errs := m.errCount.Load()
	return (float64(ops) - float64(errs)) / float64(ops)
}
