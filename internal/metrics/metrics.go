// Package metrics exposes recovery counters through a Prometheus registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metrics of a recovery run.
type Registry struct {
	PagesScanned  *prometheus.CounterVec
	RowsRecovered *prometheus.CounterVec
	TaskFailures  *prometheus.CounterVec
	Anomalies     *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	CarvedBytes   prometheus.Counter
	LogFrames     *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	f := promauto.With(r.registry)

	r.PagesScanned = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlforensic_pages_scanned_total",
			Help: "Pages processed, by recovery phase",
		},
		[]string{"phase"},
	)
	r.RowsRecovered = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlforensic_rows_recovered_total",
			Help: "Rows recovered, by table and record type",
		},
		[]string{"table", "type"},
	)
	r.TaskFailures = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlforensic_task_failures_total",
			Help: "Recovery tasks that failed or panicked",
		},
		[]string{"phase"},
	)
	r.Anomalies = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlforensic_anomalies_total",
			Help: "Structural anomalies such as cyclic freelists",
		},
		[]string{"kind"},
	)
	r.PhaseDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlforensic_phase_duration_seconds",
			Help:    "Recovery phase duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"phase"},
	)
	r.CarvedBytes = f.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlforensic_carved_bytes_total",
			Help: "Bytes attributed to carved records",
		},
	)
	r.LogFrames = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlforensic_log_frames_total",
			Help: "WAL and journal frames read, by source and checksum validity",
		},
		[]string{"source", "valid"},
	)
	return r
}

// RecordPage counts one processed page.
func (r *Registry) RecordPage(phase string) {
	r.PagesScanned.WithLabelValues(phase).Inc()
}

// RecordRows counts n recovered rows.
func (r *Registry) RecordRows(table, recordType string, n int) {
	r.RowsRecovered.WithLabelValues(table, recordType).Add(float64(n))
}

// RecordFailure counts a failed task.
func (r *Registry) RecordFailure(phase string) {
	r.TaskFailures.WithLabelValues(phase).Inc()
}

// RecordAnomaly counts a structural anomaly.
func (r *Registry) RecordAnomaly(kind string) {
	r.Anomalies.WithLabelValues(kind).Inc()
}

// RecordPhase observes a phase duration.
func (r *Registry) RecordPhase(phase string, d time.Duration) {
	r.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordCarved adds bytes attributed to carved records.
func (r *Registry) RecordCarved(n int) {
	r.CarvedBytes.Add(float64(n))
}

// RecordFrame counts one log frame.
func (r *Registry) RecordFrame(source string, valid bool) {
	v := "false"
	if valid {
		v = "true"
	}
	r.LogFrames.WithLabelValues(source, v).Inc()
}

// Gatherer returns the underlying registry for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
