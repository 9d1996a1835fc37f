package detect

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the Prometheus collectors for detector discovery.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	DetectorsTotal prometheus.Counter
	FragmentCount  prometheus.Histogram
	WarningsTotal  prometheus.Counter
	CoversTotal    *prometheus.CounterVec
}

// NewMetrics registers the collectors with the default registry once per
// process and returns them.
//
// Metrics:
//   - detectd_runs_total{operation,outcome}
//   - detectd_run_duration_seconds{operation}
//   - detectd_detectors_total
//   - detectd_fragments
//   - detectd_warnings_total
//   - detectd_cover_searches_total{mode,found}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "detectd_runs_total",
					Help: "Total number of operations run, by outcome",
				},
				[]string{"operation", "outcome"}, // outcome: "ok", "user_error", "error"
			),
			RunDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "detectd_run_duration_seconds",
					Help:    "Duration of operations in seconds",
					Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
				},
				[]string{"operation"},
			),
			DetectorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "detectd_detectors_total",
				Help: "Total number of detectors emitted by annotation",
			}),
			FragmentCount: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "detectd_fragments",
				Help:    "Number of fragments per split circuit",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			}),
			WarningsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "detectd_warnings_total",
				Help: "Total number of splitting warnings (ignored trailing resets)",
			}),
			CoversTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "detectd_cover_searches_total",
					Help: "Total number of cover searches, by mode and result",
				},
				[]string{"mode", "found"},
			),
		}
	})
	return globalMetrics
}
