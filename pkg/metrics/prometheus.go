package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	observations *prometheus.CounterVec
	scores       *prometheus.CounterVec
	missing      *prometheus.CounterVec
	splits       *prometheus.CounterVec
	capRows      *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder's collectors on reg; nil means the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "macropanel_observations_ingested_total",
			Help: "Observations stored from the ingest stream",
		}, []string{"category"}),
		scores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "macropanel_scores_computed_total",
			Help: "Score rows produced",
		}, []string{"category"}),
		missing: f.NewCounterVec(prometheus.CounterOpts{
			Name: "macropanel_score_missing_total",
			Help: "Score rows left missing by the history floor or degenerate dispersion",
		}, []string{"category"}),
		splits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "macropanel_splits_generated_total",
			Help: "Train/test folds generated",
		}, []string{"mode"}),
		capRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "macropanel_weight_cap_rows_total",
			Help: "Weight rows processed by the capper",
		}, []string{"outcome"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "macropanel_errors_total",
			Help: "Errors by component and kind",
		}, []string{"component", "kind"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "macropanel_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (r *Recorder) RecordObservations(category string, n int) {
	r.observations.WithLabelValues(category).Add(float64(n))
}

// RecordScores counts total rows and, separately, the missing ones among them.
func (r *Recorder) RecordScores(category string, total, missing int) {
	r.scores.WithLabelValues(category).Add(float64(total))
	r.missing.WithLabelValues(category).Add(float64(missing))
}

func (r *Recorder) RecordSplits(mode string, n int) {
	r.splits.WithLabelValues(mode).Add(float64(n))
}

// RecordCapRows takes outcome "capped" or "unchanged".
func (r *Recorder) RecordCapRows(outcome string, n int) {
	r.capRows.WithLabelValues(outcome).Add(float64(n))
}

func (r *Recorder) RecordError(component, kind string) {
	r.errors.WithLabelValues(component, kind).Inc()
}

func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}
