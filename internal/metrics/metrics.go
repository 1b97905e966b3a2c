// Package metrics holds the Prometheus instruments for digest runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every anansi metric.
const Namespace = "anansi"

// Metrics groups the counters and histograms updated by the pipeline. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	SourceFetchTotal    *prometheus.CounterVec
	SourceItemsTotal    *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec
	StageItems          *prometheus.GaugeVec
	PublishTotal        *prometheus.CounterVec
	RunsTotal           *prometheus.CounterVec
	RunDuration         prometheus.Histogram
	LastSuccess         prometheus.Gauge
}

// NewMetrics creates and registers the instruments on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SourceFetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "source",
			Name:      "fetch_total",
			Help:      "Connector fetches by source and result",
		}, []string{"source", "result"}),
		SourceItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "source",
			Name:      "items_total",
			Help:      "Raw records returned per source",
		}, []string{"source"}),
		SourceFetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Connector fetch duration",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"source"}),
		StageItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "stage_items",
			Help:      "Records leaving each stage in the last run",
		}, []string{"stage"}),
		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "digest",
			Name:      "publish_total",
			Help:      "Digest deliveries by result",
		}, []string{"result"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end run duration",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without error",
		}),
	}
}

func (m *Metrics) ObserveSource(source string, err error, items int, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SourceFetchTotal.WithLabelValues(source, result).Inc()
	m.SourceItemsTotal.WithLabelValues(source).Add(float64(items))
	m.SourceFetchDuration.WithLabelValues(source).Observe(took.Seconds())
}

func (m *Metrics) SetStage(stage string, n int) {
	if m == nil {
		return
	}
	m.StageItems.WithLabelValues(stage).Set(float64(n))
}

func (m *Metrics) ObservePublish(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PublishTotal.WithLabelValues("error").Inc()
		return
	}
	m.PublishTotal.WithLabelValues("ok").Inc()
}

// ObserveRun records the outcome label and duration. failed runs do not move
// LastSuccess.
func (m *Metrics) ObserveRun(outcome string, failed bool, took time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(took.Seconds())
	if !failed {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}
