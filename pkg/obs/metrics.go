package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the engine records to.
type Metrics struct {
	// QGWJobsTotal counts cell pairs by outcome: "computed" for pairs
	// dispatched in the controller's steady-state rounds, "estimated" for
	// pairs filled by the estimator on termination. Seed-round and
	// dense-mode jobs are not counted.
	QGWJobsTotal *prometheus.CounterVec
	// RoundDuration observes wall-clock time per steady-state controller
	// round.
	RoundDuration prometheus.Histogram
	// QGWMinusSLB observes the (qgw-slb) error of each pair computed in a
	// steady-state round; seed-round pairs, which also feed the
	// controller's statistical model, are not observed.
	QGWMinusSLB prometheus.Histogram
	// ClustersDegenerateTotal counts cells whose requested clustering
	// collapsed to fewer clusters than requested.
	ClustersDegenerateTotal prometheus.Counter
	// DispatchPanicsTotal counts jobs aborted by a worker panic.
	DispatchPanicsTotal prometheus.Counter
}

// NewMetrics creates and registers the engine's Prometheus instruments
// against the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		QGWJobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shapedist_qgw_jobs_total",
				Help: "Total number of qGW pair computations dispatched, by outcome",
			},
			[]string{"outcome"},
		),
		RoundDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shapedist_round_duration_seconds",
				Help:    "Wall-clock duration of one refinement controller round",
				Buckets: prometheus.DefBuckets,
			},
		),
		QGWMinusSLB: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shapedist_qgw_minus_slb",
				Help:    "Observed qGW minus SLB values feeding the controller's error model",
				Buckets: prometheus.LinearBuckets(0, 0.05, 20),
			},
		),
		ClustersDegenerateTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shapedist_clusters_degenerate_total",
				Help: "Total number of cells whose clustering collapsed below the requested cluster count",
			},
		),
		DispatchPanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shapedist_dispatch_panics_total",
				Help: "Total number of dispatched jobs aborted by a worker panic",
			},
		),
	}
}
