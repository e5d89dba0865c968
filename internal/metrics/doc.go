// Package metrics provides Prometheus instrumentation for media-assistant.
//
// All metrics are prefixed with "media_assistant_" and registered with the
// default registry through promauto.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of requests currently being served
//
// ## Database Metrics
//
//   - DBQueryTotal / DBQueryDuration: per-operation query counts and latency
//   - DBTransactionDuration: batch transaction duration by outcome
//   - DBRowsAffected: rows written per operation
//
// ## Indexer Metrics
//
//   - IndexerRunsTotal, IndexerLastRunTimestamp, IndexerLastRunDuration
//   - IndexerFilesProcessed, IndexerItemsAdded, IndexerErrors, IndexerIsRunning
//
// ## Selection and Pipeline Metrics
//
// Work selection is labeled by pipeline name and mode (scheduled, catchup,
// ondemand):
//   - SelectionRunsTotal: selections by status (success/error/disabled)
//   - SelectionCandidates: size of the last selected work list
//   - ScopePathPrefixes: path prefixes in each published scope
//   - PipelineItemsTotal / PipelineItemDuration: per-item processing
//   - SeasonRunsTotal: fingerprint season sequences by status
//   - FingerprintTimeoutSeconds: timeout currently applied to the engine
//
// ## Task Metrics
//
//   - TaskRunning, TaskRunsTotal, TaskLastRunDuration: per scheduled task
//
// ## Memory Metrics
//
//   - MemoryUsageRatio: heap usage as a fraction of the configured limit
//   - MemoryPaused / MemoryPausesTotal: queue backpressure state
//
// ## Library Metrics
//
// Refreshed by the [Collector] from a [StatsProvider]:
//   - LibraryItemsTotal by item type
//   - LibraryFavoritesTotal, LibraryMarkersTotal, LibraryFailuresTotal
//
// ## Filesystem Metrics
//
// Recorded through the observer returned by NewFilesystemObserver, which
// startup installs with filesystem.SetObserver.
//
// # Usage
//
//	collector := metrics.NewCollector(db, time.Minute)
//	collector.Start()
//	defer collector.Stop()
//
// # Prometheus Queries
//
// Fingerprint failures per hour:
//
//	increase(media_assistant_fingerprint_seasons_total{status="failed"}[1h])
//
// P95 selection latency by pipeline:
//
//	histogram_quantile(0.95, sum(rate(media_assistant_selection_duration_seconds_bucket[5m])) by (le, pipeline))
package metrics
