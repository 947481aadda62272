package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// RunsTotal tracks the total number of flatten runs
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlbdfs_runs_total",
			Help: "Total number of flatten runs",
		},
		[]string{"trigger", "status"}, // trigger: cli, schedule; status: success, failed
	)

	// RunDuration measures flatten run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlbdfs_run_duration_seconds",
			Help:    "Flatten run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"trigger", "status"},
	)

	// RunsRunning tracks whether a run is in progress
	RunsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlbdfs_runs_running",
			Help: "Number of flatten runs in progress",
		},
	)

	// SchedulerLeader is 1 while this instance holds the scheduler lease
	SchedulerLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlbdfs_scheduler_leader",
			Help: "Whether this instance is the scheduler leader",
		},
	)

	// LastSuccess records when the last run succeeded
	LastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlbdfs_last_success_timestamp",
			Help: "Last successful run (unix timestamp)",
		},
	)

	// StepRows records the row count after each pipeline step of the last run
	StepRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mlbdfs_step_rows",
			Help: "Rows after each pipeline step in the last run",
		},
		[]string{"step"},
	)

	// StepDuration measures pipeline step duration
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mlbdfs_step_duration_seconds",
			Help:    "Pipeline step duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"step"},
	)

	// RowsDropped counts rows removed by filtering joins
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlbdfs_rows_dropped_total",
			Help: "Rows removed by filtering joins",
		},
		[]string{"reason"}, // reason: park_factor, result_date
	)

	// OutputRows records the rows written per output table in the last run
	OutputRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mlbdfs_output_rows",
			Help: "Rows in each output table of the last run",
		},
		[]string{"table"},
	)

	// TablesLoaded counts raw tables loaded
	TablesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlbdfs_tables_loaded_total",
			Help: "Total number of raw tables loaded",
		},
		[]string{"table", "source"}, // source: store, cache
	)

	// TableRows records the row count of each raw table at its last load
	TableRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mlbdfs_table_rows",
			Help: "Rows in each raw table at its last load",
		},
		[]string{"table"},
	)

	// UnlinkedPlayers records players without an identity link
	UnlinkedPlayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlbdfs_unlinked_players",
			Help: "Players without an identity link at the last check",
		},
	)

	// ErrorsTotal counts total number of errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlbdfs_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// CacheHits tracks raw table cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mlbdfs_cache_hits_total",
			Help: "Total number of raw table cache hits",
		},
	)

	// CacheMisses tracks raw table cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mlbdfs_cache_misses_total",
			Help: "Total number of raw table cache misses",
		},
	)
)

// RecordRunStart records the start of a run
func RecordRunStart() {
	RunsRunning.Inc()
}

// RecordRunComplete records run completion
func RecordRunComplete(trigger, status string, duration float64) {
	RunsRunning.Dec()
	RunsTotal.WithLabelValues(trigger, status).Inc()
	RunDuration.WithLabelValues(trigger, status).Observe(duration)
}

// RecordStep records the outcome of a pipeline step
func RecordStep(step string, rows int, duration float64) {
	StepRows.WithLabelValues(step).Set(float64(rows))
	StepDuration.WithLabelValues(step).Observe(duration)
}

// RecordDropped records rows removed by a filtering join
func RecordDropped(reason string, count int) {
	RowsDropped.WithLabelValues(reason).Add(float64(count))
}

// RecordOutput records rows written to an output table
func RecordOutput(table string, rows int) {
	OutputRows.WithLabelValues(table).Set(float64(rows))
}

// RecordTableLoaded records a raw table load
func RecordTableLoaded(table, source string, rows int) {
	TablesLoaded.WithLabelValues(table, source).Inc()
	TableRows.WithLabelValues(table).Set(float64(rows))
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordCacheHit records a raw table cache hit
func RecordCacheHit() {
	CacheHits.Inc()
}

// RecordCacheMiss records a raw table cache miss
func RecordCacheMiss() {
	CacheMisses.Inc()
}
