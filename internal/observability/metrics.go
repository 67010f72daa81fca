package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks pipeline throughput. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	filesTotal    *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
}

// NewMetrics creates a registry with the pipeline collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screenshot_wizard",
			Subsystem: "pipeline",
			Name:      "files_processed_total",
			Help:      "Total files handled by the pipeline by status.",
		},
		[]string{"status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "screenshot_wizard",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "screenshot_wizard",
			Subsystem: "watcher",
			Name:      "queue_depth",
			Help:      "Paths discovered by the watcher and not yet processed.",
		},
	)

	registry.MustRegister(filesTotal, stageDuration, queueDepth)

	return &Metrics{
		registry:      registry,
		filesTotal:    filesTotal,
		stageDuration: stageDuration,
		queueDepth:    queueDepth,
	}
}

// Handler exposes the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FileDone counts a finished outcome.
func (m *Metrics) FileDone(status string) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(status).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetQueueDepth reports the number of pending paths.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
