package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_db_rows_affected",
			Help:    "Rows affected by database write operations",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_assistant_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_indexer_last_run_timestamp",
			Help: "Timestamp of the last indexer run",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_assistant_indexer_files_processed_total",
			Help: "Total number of files processed by the indexer",
		},
	)

	IndexerItemsAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_assistant_indexer_items_added_total",
			Help: "Total number of items added to the index",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_assistant_indexer_errors_total",
			Help: "Total number of indexer errors",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_indexer_running",
			Help: "Whether the indexer is currently running (1 = running, 0 = idle)",
		},
	)
)

// Selection metrics
var (
	SelectionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_selection_runs_total",
			Help: "Total number of work selections",
		},
		[]string{"pipeline", "mode", "status"},
	)

	SelectionCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_assistant_selection_items",
			Help: "Number of items returned by the last selection",
		},
		[]string{"pipeline", "mode"},
	)

	SelectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_selection_duration_seconds",
			Help:    "Work selection duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"pipeline", "mode"},
	)

	ScopePathPrefixes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_assistant_scope_path_prefixes",
			Help: "Number of library path prefixes in the published scope",
		},
		[]string{"pipeline"},
	)
)

// Pipeline metrics
var (
	PipelineItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_pipeline_items_total",
			Help: "Total number of items processed by background pipelines",
		},
		[]string{"pipeline", "status"},
	)

	PipelineItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_pipeline_item_duration_seconds",
			Help:    "Per-item processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
		[]string{"pipeline"},
	)

	SeasonRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_fingerprint_seasons_total",
			Help: "Total number of season fingerprint sequences",
		},
		[]string{"status"},
	)

	FingerprintTimeoutSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_fingerprint_timeout_seconds",
			Help: "Timeout applied to the fingerprint engine",
		},
	)

	TaskRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_assistant_task_running",
			Help: "Whether a task is currently running (1 = running, 0 = idle)",
		},
		[]string{"task"},
	)

	TaskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_task_runs_total",
			Help: "Total number of task runs",
		},
		[]string{"task", "status"},
	)

	TaskLastRunDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_assistant_task_last_run_duration_seconds",
			Help: "Duration of the last task run in seconds",
		},
		[]string{"task"},
	)

	ThumbnailFFmpegDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_assistant_thumbnail_ffmpeg_duration_seconds",
			Help:    "Duration of ffmpeg frame extraction in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Library metrics
var (
	LibraryItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_assistant_library_items",
			Help: "Number of indexed items by type",
		},
		[]string{"type"},
	)

	LibraryFavoritesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_favorites",
			Help: "Number of favorites over all users",
		},
	)

	LibraryMarkersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_intro_markers",
			Help: "Number of items with an intro marker",
		},
	)

	LibraryFailuresTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_intro_detection_failures",
			Help: "Number of items with a recorded intro detection failure",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_filesystem_operation_errors_total",
			Help: "Total number of filesystem operation errors",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_assistant_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_assistant_filesystem_retry_duration_seconds",
			Help:    "Total duration of filesystem operations including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_assistant_memory_paused",
			Help: "Whether pipeline queues are paused for memory pressure (1 = paused)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_assistant_memory_pauses_total",
			Help: "Total number of times pipeline queues were paused for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_assistant_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
