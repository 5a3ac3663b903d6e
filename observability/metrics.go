package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type settlementMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	rejections   *prometheus.CounterVec
}

var (
	settlementMetricsOnce sync.Once
	settlementRegistry    *settlementMetrics
)

// Settlement returns the lazily-initialised registry recording settlement
// engine activity.
func Settlement() *settlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendsettle",
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendsettle",
				Subsystem: "settlement",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for settlement operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendsettle",
				Subsystem: "settlement",
				Name:      "step_failures_total",
				Help:      "Pipeline step failures segmented by step.",
			}, []string{"step"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendsettle",
				Subsystem: "settlement",
				Name:      "borrow_rejections_total",
				Help:      "Borrow requests rejected segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			settlementRegistry.operations,
			settlementRegistry.latency,
			settlementRegistry.stepFailures,
			settlementRegistry.rejections,
		)
	})
	return settlementRegistry
}

// Observe records the outcome and latency of one settlement operation.
func (m *settlementMetrics) Observe(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	operation = normalizeLabel(operation)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStepFailure increments the failure counter for a pipeline step.
func (m *settlementMetrics) RecordStepFailure(step string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(normalizeLabel(step)).Inc()
}

// RecordBorrowRejection counts a rejected borrow. Reasons should be stable
// strings such as "insufficient_collateral" or "asset_mismatch".
func (m *settlementMetrics) RecordBorrowRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
