package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsCaptured counts frames decoded into events, per interface and type.
	EventsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piguard",
			Name:      "events_captured_total",
			Help:      "Total number of events decoded from captured frames",
		},
		[]string{"interface", "type"},
	)

	// EventsDropped counts events lost to insert failures, labelled by reason.
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piguard",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped before being persisted",
		},
		[]string{"interface", "reason"},
	)

	// BatchFlushSeconds observes the latency of each batch flush to storage.
	BatchFlushSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "piguard",
			Name:      "batch_flush_seconds",
			Help:      "Latency of event batch flushes to storage",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"interface"},
	)

	// HopsTotal counts channel changes performed by the hopper.
	HopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piguard",
			Name:      "hops_total",
			Help:      "Total number of channel hops performed",
		},
		[]string{"interface", "band"},
	)

	// AlertsTotal counts alerts raised, by kind and severity.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piguard",
			Name:      "alerts_total",
			Help:      "Total number of alerts raised",
		},
		[]string{"kind", "severity"},
	)

	// CaptureErrorsTotal counts capture read/backoff errors per interface.
	CaptureErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piguard",
			Name:      "capture_errors_total",
			Help:      "Total number of capture read errors",
		},
		[]string{"interface"},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the default Prometheus registry.
// Safe to call more than once.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(EventsCaptured)
		prometheus.DefaultRegisterer.Register(EventsDropped)
		prometheus.DefaultRegisterer.Register(BatchFlushSeconds)
		prometheus.DefaultRegisterer.Register(HopsTotal)
		prometheus.DefaultRegisterer.Register(AlertsTotal)
		prometheus.DefaultRegisterer.Register(CaptureErrorsTotal)
	})
}
