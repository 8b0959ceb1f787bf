package hooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Skryldev/photo-compressor/core"
)

const namespace = "photocompressor"

// PrometheusMetrics is a MetricsCollector exporting to its own Prometheus
// registry, which the HTTP server exposes on /metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	stepDuration *prometheus.HistogramVec
	stepErrors   *prometheus.CounterVec
	outcomes     *prometheus.CounterVec
	bytesIn      prometheus.Counter
	bytesOut     prometheus.Counter
}

// NewPrometheusMetrics registers the compressor metrics, plus the Go runtime
// and process collectors, on a fresh registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		stepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of pipeline steps in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"step"},
		),
		stepErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_errors_total",
				Help:      "Total number of failed pipeline steps",
			},
			[]string{"step", "category"},
		),
		outcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Total number of compressions by resulting status",
			},
			[]string{"status"},
		),
		bytesIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_bytes_total",
			Help:      "Total bytes handed to the compressor",
		}),
		bytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "Total bytes returned by the compressor",
		}),
	}
}

// Registry returns the registry to expose over HTTP.
func (p *PrometheusMetrics) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusMetrics) RecordProcessingTime(stepName string, d interface{ Seconds() float64 }) {
	p.stepDuration.WithLabelValues(stepName).Observe(d.Seconds())
}

func (p *PrometheusMetrics) RecordError(stepName string, category string) {
	p.stepErrors.WithLabelValues(stepName, category).Inc()
}

func (p *PrometheusMetrics) RecordOutcome(status core.Status, inBytes, outBytes int64) {
	p.outcomes.WithLabelValues(string(status)).Inc()
	p.bytesIn.Add(float64(inBytes))
	p.bytesOut.Add(float64(outBytes))
}

// Multi fans observations out to several collectors.
type Multi []core.MetricsCollector

func (m Multi) RecordProcessingTime(stepName string, d interface{ Seconds() float64 }) {
	for _, c := range m {
		c.RecordProcessingTime(stepName, d)
	}
}

func (m Multi) RecordError(stepName string, category string) {
	for _, c := range m {
		c.RecordError(stepName, category)
	}
}

func (m Multi) RecordOutcome(status core.Status, inBytes, outBytes int64) {
	for _, c := range m {
		c.RecordOutcome(status, inBytes, outBytes)
	}
}

var (
	_ core.MetricsCollector = (*PrometheusMetrics)(nil)
	_ core.MetricsCollector = Multi(nil)
)
