package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendMemory = "memory"
	backendSQL    = "sql"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the prompt cache.
type Metrics struct {
	HitsTotal   *prometheus.CounterVec
	MissesTotal *prometheus.CounterVec
	Entries     *prometheus.GaugeVec
}

// NewMetrics returns the process-wide cache metrics, registering them on
// first use.
//
// Metrics:
//   - stackadvisor_cache_hits_total{backend}
//   - stackadvisor_cache_misses_total{backend}
//   - stackadvisor_cache_entries{backend}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackadvisor_cache_hits_total",
					Help: "Total number of prompt cache hits",
				},
				[]string{"backend"},
			),
			MissesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackadvisor_cache_misses_total",
					Help: "Total number of prompt cache misses",
				},
				[]string{"backend"},
			),
			Entries: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "stackadvisor_cache_entries",
					Help: "Current number of in-memory cache entries",
				},
				[]string{"backend"},
			),
		}
	})
	return globalMetrics
}

func (m *Metrics) hit(backend string) {
	if m != nil {
		m.HitsTotal.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) miss(backend string) {
	if m != nil {
		m.MissesTotal.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) size(backend string, n int) {
	if m != nil {
		m.Entries.WithLabelValues(backend).Set(float64(n))
	}
}
