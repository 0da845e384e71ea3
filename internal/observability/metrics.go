package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trajcluster"

// Metrics holds the Prometheus counters, histograms, and gauges for the clustering service.
type Metrics struct {
	SamplesConsumed      prometheus.Counter
	SamplesSkipped       prometheus.Counter
	SamplesProduced      prometheus.Counter
	TrajectoriesExcluded prometheus.Counter
	PipelineRunning      prometheus.Gauge

	Runs            *prometheus.CounterVec // labels: outcome={success,partial,error}
	StratumFailures *prometheus.CounterVec // labels: stage={normalize,distance,partition}
	NaNSanitized    prometheus.Counter

	DistanceMatrixDuration *prometheus.HistogramVec // labels: metric={Euclid,Angle}
	RunDuration            prometheus.Histogram
}

func newMetrics() *Metrics {
	return &Metrics{
		SamplesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_consumed_total",
			Help:      "Total trajectory samples read from the source.",
		}),
		SamplesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_skipped_total",
			Help:      "Total source records that could not be decoded.",
		}),
		SamplesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_produced_total",
			Help:      "Total labeled samples written to the sink.",
		}),
		TrajectoriesExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trajectories_excluded_total",
			Help:      "Trajectories dropped for having the wrong number of samples.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Clustering runs by outcome.",
		}, []string{"outcome"}),
		StratumFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stratum_failures_total",
			Help:      "Strata that failed to cluster, by failing stage.",
		}, []string{"stage"}),
		NaNSanitized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nan_cells_sanitized_total",
			Help:      "Dissimilarity matrix cells replaced with zero because they were NaN.",
		}),
		DistanceMatrixDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "distance_matrix_seconds",
			Help:      "Time to build one dissimilarity matrix.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"metric"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-cluster-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all pipeline metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.SamplesConsumed,
		m.SamplesSkipped,
		m.SamplesProduced,
		m.TrajectoriesExcluded,
		m.PipelineRunning,
		m.Runs,
		m.StratumFailures,
		m.NaNSanitized,
		m.DistanceMatrixDuration,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
