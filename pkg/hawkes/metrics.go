package hawkes

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evaluationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hawkes_evaluations_total",
		Help: "Number of log-likelihood evaluations, by method",
	}, []string{"method"})

var rejectedEvaluationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "hawkes_nonpositive_intensity_total",
		Help: "Number of evaluations rejected because the coefficients drive an intensity to zero or below",
	}, []string{"method"})

var evaluationDurationSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "hawkes_evaluation_duration_seconds",
		Help:    "Wall time of a full evaluation across all realizations",
		Buckets: prometheus.ExponentialBuckets(1e-5, 4, 12),
	}, []string{"method"})

var attachedJumps = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "hawkes_attached_jumps",
		Help: "Total number of events of the last attached data set",
	})

func observeEvaluation(method string, startTime time.Time, err error) {
	evaluationsTotal.WithLabelValues(method).Inc()
	evaluationDurationSeconds.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	if IsNonPositiveIntensity(err) {
		rejectedEvaluationsTotal.WithLabelValues(method).Inc()
	}
}
