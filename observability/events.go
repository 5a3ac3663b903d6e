package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted settlement events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendsettle",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of settlement events segmented by type and asset keyword.",
			}, []string{"type", "asset"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type and asset
// keyword. Keywords are case-sensitive and kept as given.
func (m *eventMetrics) RecordEvent(eventType, asset string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	asset = strings.TrimSpace(asset)
	if asset == "" {
		asset = "none"
	}
	m.emitted.WithLabelValues(eventType, asset).Inc()
}
