// Package observability provides Prometheus metrics for pipeline runs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	RecordsExtracted  *prometheus.CounterVec
	RecordsMerged     prometheus.Counter
	RecordsSkipped    prometheus.Counter

	// Discount metrics
	DiscountEvents    prometheus.Counter
	IntegrityWarnings *prometheus.CounterVec

	// Model metrics
	ModelDuration *prometheus.HistogramVec

	// Source metrics
	SourceQueryDuration *prometheus.HistogramVec
	SourceQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "retail_signal_lab"
	}
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by mode and status",
		}, []string{"mode", "status"}),
		PipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Pipeline execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"mode"}),
		RecordsExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_extracted_total",
			Help:      "Total number of records written to working store collections",
		}, []string{"collection"}),
		RecordsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_merged_total",
			Help:      "Total number of input records enriched with all features",
		}),
		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "records_skipped_total",
			Help:      "Total number of input records dropped for missing features",
		}),

		DiscountEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discount",
			Name:      "events_total",
			Help:      "Total number of detected discount events",
		}),
		IntegrityWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discount",
			Name:      "integrity_warnings_total",
			Help:      "Total number of rejected price readings by kind",
		}, []string{"kind"}),

		ModelDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "duration_seconds",
			Help:      "Model fit and predict duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		SourceQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "query_duration_seconds",
			Help:      "Record source query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		SourceQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source",
			Name:      "query_errors_total",
			Help:      "Total number of record source query errors",
		}, []string{"source"}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordPipelineRun records a finished pipeline run.
func (m *Metrics) RecordPipelineRun(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineRunsTotal.WithLabelValues(mode, status).Inc()
	m.PipelineDuration.WithLabelValues(mode).Observe(d.Seconds())
	if status == StatusSuccess {
		m.LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordExtracted records n records written to collection.
func (m *Metrics) RecordExtracted(collection string, n int) {
	if m == nil {
		return
	}
	m.RecordsExtracted.WithLabelValues(collection).Add(float64(n))
}

// RecordMerge records feature merge counts.
func (m *Metrics) RecordMerge(merged, skipped int) {
	if m == nil {
		return
	}
	m.RecordsMerged.Add(float64(merged))
	m.RecordsSkipped.Add(float64(skipped))
}

// RecordDiscounts records detected events and rejected readings by kind.
func (m *Metrics) RecordDiscounts(events int, warnings map[string]int) {
	if m == nil {
		return
	}
	m.DiscountEvents.Add(float64(events))
	for kind, n := range warnings {
		m.IntegrityWarnings.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveModel records the duration of a model operation ("fit" or "predict").
func (m *Metrics) ObserveModel(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.ModelDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordSourceQuery records a record source query.
func (m *Metrics) RecordSourceQuery(source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SourceQueryDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		m.SourceQueryErrors.WithLabelValues(source).Inc()
	}
}

// Run statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
