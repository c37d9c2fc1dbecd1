// Package metrics exposes Prometheus instrumentation for cohort queries.
//
// Collectors live on a Recorder bound to a caller-supplied registry rather
// than the global default registry, so tests and embedded callers can keep
// separate counts. A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the cohort collectors.
type Recorder struct {
	IdentifierRejections *prometheus.CounterVec
	FiltersDropped       *prometheus.CounterVec
	CountQueriesTotal    *prometheus.CounterVec
	QueryDuration        *prometheus.HistogramVec
	RowsLoaded           *prometheus.CounterVec
}

// NewRecorder registers the cohort collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		IdentifierRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_identifier_rejections_total",
				Help: "Total number of table or column names rejected by the whitelist",
			},
			[]string{"kind"},
		),
		FiltersDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_filters_dropped_total",
				Help: "Total number of filters skipped while building a query",
			},
			[]string{"reason"},
		),
		CountQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_count_queries_total",
				Help: "Total number of participant count queries executed",
			},
			[]string{"status"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cohort_query_duration_seconds",
				Help:    "Duration of executed queries",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 0.001s to ~4.1s
			},
			[]string{"engine", "kind"},
		),
		RowsLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cohort_rows_loaded_total",
				Help: "Total number of rows loaded from data files",
			},
			[]string{"table"},
		),
	}
}

// RejectIdentifier counts a whitelist rejection. kind is "table" or "column".
func (r *Recorder) RejectIdentifier(kind string) {
	if r == nil {
		return
	}
	r.IdentifierRejections.WithLabelValues(kind).Inc()
}

// DropFilter counts a skipped filter.
func (r *Recorder) DropFilter(reason string) {
	if r == nil {
		return
	}
	r.FiltersDropped.WithLabelValues(reason).Inc()
}

// ObserveCount records the outcome of a count query.
func (r *Recorder) ObserveCount(engine string, start time.Time, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.CountQueriesTotal.WithLabelValues(status).Inc()
	r.QueryDuration.WithLabelValues(engine, "count").Observe(time.Since(start).Seconds())
}

// ObserveQuery records the duration of a data query.
func (r *Recorder) ObserveQuery(engine string, start time.Time) {
	if r == nil {
		return
	}
	r.QueryDuration.WithLabelValues(engine, "data").Observe(time.Since(start).Seconds())
}

// AddRows counts rows loaded into a table.
func (r *Recorder) AddRows(table string, n int) {
	if r == nil {
		return
	}
	r.RowsLoaded.WithLabelValues(table).Add(float64(n))
}

// WriteTextfile writes every metric gathered by g to path in the Prometheus
// text exposition format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
