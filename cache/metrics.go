package cache

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives cache events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Hit(function string)
	Miss(function string)
	Populated(function string, entities int)
	Degraded(operation string)
	Invalidated(scope string, keys int)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string) {}
func (NoopMetrics) Miss(string) {}
func (NoopMetrics) Populated(string, int) {}
func (NoopMetrics) Degraded(string) {}
func (NoopMetrics) Invalidated(string, int) {}

// PrometheusMetrics exports cache events as Prometheus counters.
type PrometheusMetrics struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	populations *prometheus.CounterVec
	indexed     *prometheus.CounterVec
	degraded    *prometheus.CounterVec
	invalidated *prometheus.CounterVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the counters and registers them with reg.
// Counters already registered by another instance are reused.
func NewPrometheusMetrics(reg prometheus.Registerer, namespace string) (*PrometheusMetrics, error) {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entity_cache",
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &PrometheusMetrics{
		hits:        counter("hits_total", "Cached calls served from the backend.", "function"),
		misses:      counter("misses_total", "Cached calls that ran the wrapped function.", "function"),
		populations: counter("populations_total", "Results written to the backend.", "function"),
		indexed:     counter("indexed_entities_total", "Entity references registered for written results.", "function"),
		degraded:    counter("degraded_total", "Backend or codec failures absorbed by the cache.", "operation"),
		invalidated: counter("invalidated_keys_total", "Cache keys removed by invalidation.", "scope"),
	}

	vecs := []**prometheus.CounterVec{&m.hits, &m.misses, &m.populations, &m.indexed, &m.degraded, &m.invalidated}
	for _, vec := range vecs {
		if err := reg.Register(*vec); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
			existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, err
			}
			*vec = existing
		}
	}

	return m, nil
}

func (m *PrometheusMetrics) Hit(function string) {
	m.hits.WithLabelValues(function).Inc()
}

func (m *PrometheusMetrics) Miss(function string) {
	m.misses.WithLabelValues(function).Inc()
}

func (m *PrometheusMetrics) Populated(function string, entities int) {
	m.populations.WithLabelValues(function).Inc()
	m.indexed.WithLabelValues(function).Add(float64(entities))
}

func (m *PrometheusMetrics) Degraded(operation string) {
	m.degraded.WithLabelValues(operation).Inc()
}

func (m *PrometheusMetrics) Invalidated(scope string, keys int) {
	m.invalidated.WithLabelValues(scope).Add(float64(keys))
}
