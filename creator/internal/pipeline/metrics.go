package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the tick loop's Prometheus collectors.
type Metrics struct {
	QueueDepth         prometheus.Gauge
	Dropped            prometheus.Counter
	Ticks              prometheus.Counter
	IdleTicks          prometheus.Counter
	MissingObserver    prometheus.Counter
	TransformFailures  prometheus.Counter
	ClassifierFailures prometheus.Counter
	Windows            prometheus.Gauge
	Entities           prometheus.Gauge
	Published          prometheus.Counter
	Suppressed         prometheus.Counter
	Decayed            prometheus.Counter
	SinkErrors         *prometheus.CounterVec
	TickDuration       prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "qtc_ingest_queue_depth",
			Help: "Entity batches waiting for the tick loop.",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_ingest_dropped_total",
			Help: "Entity batches evicted because the queue limit was reached.",
		}),
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_ticks_total",
			Help: "Tick loop iterations.",
		}),
		IdleTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_idle_ticks_total",
			Help: "Ticks that found the queue empty.",
		}),
		MissingObserver: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_missing_observer_total",
			Help: "Entity batches skipped because no observer pose was known.",
		}),
		TransformFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_transform_failures_total",
			Help: "Detections skipped because the frame transform failed.",
		}),
		ClassifierFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_classifier_failures_total",
			Help: "Entity results omitted because classification failed.",
		}),
		Windows: f.NewGauge(prometheus.GaugeOpts{
			Name: "qtc_smoothing_windows",
			Help: "Open smoothing windows.",
		}),
		Entities: f.NewGauge(prometheus.GaugeOpts{
			Name: "qtc_active_entities",
			Help: "Entities with a history buffer.",
		}),
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_batches_published_total",
			Help: "Result batches handed to the sinks.",
		}),
		Suppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_batches_suppressed_total",
			Help: "Non-empty result batches withheld as repeats of the last one.",
		}),
		Decayed: f.NewCounter(prometheus.CounterOpts{
			Name: "qtc_entities_decayed_total",
			Help: "Entity histories removed after the decay time.",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "qtc_sink_errors_total",
			Help: "Failed result publishes by sink.",
		}, []string{"sink"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "qtc_tick_duration_seconds",
			Help:    "Time spent processing one tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}
