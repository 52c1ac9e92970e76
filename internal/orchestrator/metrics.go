package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the pipeline.
type Metrics struct {
	StageDuration  *prometheus.HistogramVec
	StageFallbacks *prometheus.CounterVec
	GateDecisions  *prometheus.CounterVec
	Sessions       *prometheus.CounterVec
}

// NewMetrics returns the process-wide pipeline metrics, registering them
// with the default registry on first use.
//
// Metrics:
//   - stackadvisor_pipeline_stage_duration_seconds{stage}
//   - stackadvisor_pipeline_stage_fallbacks_total{stage,reason}
//   - stackadvisor_pipeline_gate_decisions_total{decision}
//   - stackadvisor_pipeline_sessions_total{outcome}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			StageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "stackadvisor_pipeline_stage_duration_seconds",
					Help:    "Duration of pipeline stage invocations in seconds",
					Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
				},
				[]string{"stage"},
			),
			StageFallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackadvisor_pipeline_stage_fallbacks_total",
					Help: "Total number of stage invocations that used fallback data",
				},
				[]string{"stage", "reason"}, // "timeout", "error", "invalid_update", "panic"
			),
			GateDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackadvisor_pipeline_gate_decisions_total",
					Help: "Total number of quality gate decisions",
				},
				[]string{"decision"},
			),
			Sessions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackadvisor_pipeline_sessions_total",
					Help: "Total number of session runs by outcome",
				},
				[]string{"outcome"}, // "completed", "cap_reached", "suspended", "aborted"
			),
		}
	})
	return globalMetrics
}
