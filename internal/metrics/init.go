package metrics

// Pipelines and selection modes pre-populated by InitializeMetrics.
var (
	pipelineLabels = []string{"IntroFingerprintExtract", "IntroPreExtract", "VideoThumbnailExtract", "ExternalSubtitle", "MediaInfoExtract"}
	modeLabels     = []string{"scheduled", "catchup", "ondemand"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"media", "cache", "data", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open", "readdir"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- Selection and pipeline metrics ---
	for _, p := range pipelineLabels {
		ScopePathPrefixes.WithLabelValues(p)
		PipelineItemDuration.WithLabelValues(p)
		for _, status := range []string{"success", "error", "cancelled"} {
			PipelineItemsTotal.WithLabelValues(p, status)
		}
		for _, m := range modeLabels {
			SelectionCandidates.WithLabelValues(p, m)
			SelectionDuration.WithLabelValues(p, m)
			for _, status := range []string{"success", "error", "disabled"} {
				SelectionRunsTotal.WithLabelValues(p, m, status)
			}
		}
	}

	for _, status := range []string{"success", "failed", "cancelled"} {
		SeasonRunsTotal.WithLabelValues(status)
	}

	// --- Library item counts ---
	for _, t := range []string{"series", "season", "episode", "movie", "video"} {
		LibraryItemsTotal.WithLabelValues(t)
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "upsert_item", "delete_missing_items", "query_items",
		"get_item", "sync_libraries", "set_favorite", "add_marker", "clear_markers", "record_failure",
		"update_media_info", "replace_streams", "vacuum"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}
