package kfrp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	frames            prometheus.Counter
	recomputes        prometheus.Counter
	dirtyMarks        prometheus.Counter
	snapshotsRetained prometheus.Gauge
	logErrors         prometheus.Counter
	propagation       prometheus.Histogram
}

// newMetrics registers the timeline collectors with reg. A nil reg yields
// unregistered collectors.
func newMetrics(reg prometheus.Registerer, timeline string) *metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"timeline": timeline}

	return &metrics{
		frames: factory.NewCounter(prometheus.CounterOpts{
			Name:        "kfrp_frames_total",
			Help:        "External frames produced.",
			ConstLabels: labels,
		}),
		recomputes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "kfrp_recomputes_total",
			Help:        "Node recomputations.",
			ConstLabels: labels,
		}),
		dirtyMarks: factory.NewCounter(prometheus.CounterOpts{
			Name:        "kfrp_dirty_marks_total",
			Help:        "Unobserved nodes marked dirty instead of recomputed.",
			ConstLabels: labels,
		}),
		snapshotsRetained: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "kfrp_snapshots_retained",
			Help:        "Frames held by the time-travel debugger.",
			ConstLabels: labels,
		}),
		logErrors: factory.NewCounter(prometheus.CounterOpts{
			Name:        "kfrp_event_log_errors_total",
			Help:        "Failed event log writes.",
			ConstLabels: labels,
		}),
		propagation: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "kfrp_propagation_seconds",
			Help:        "Duration of synchronous propagation per external frame.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}
