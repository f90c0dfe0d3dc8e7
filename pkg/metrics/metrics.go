package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics espone i contatori Prometheus della pipeline di triage
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	StepFailures     *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderFallback *prometheus.CounterVec
	CacheHits        *prometheus.CounterVec
	RetrievalResults prometheus.Histogram
}

// New registra le metriche sul registry di default
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vettriage"
	}

	return &Metrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of triage runs by final status",
			},
			[]string{"status"},
		),
		StepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_milliseconds",
				Help:      "Pipeline step duration in milliseconds",
				Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
			},
			[]string{"step"},
		),
		StepFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_failures_total",
				Help:      "Total number of step failures by step and failure kind",
			},
			[]string{"step", "kind"},
		),
		ProviderCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Total number of provider calls by provider, capability and status",
			},
			[]string{"provider", "capability", "status"},
		),
		ProviderFallback: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_fallbacks_total",
				Help:      "Total number of fallbacks to a lower-priority provider",
			},
			[]string{"capability"},
		),
		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_cache_total",
				Help:      "Report cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		RetrievalResults: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_results",
				Help:      "Number of knowledge passages returned per retrieval",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
	}
}
