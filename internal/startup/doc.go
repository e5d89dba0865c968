// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - DATA_DIR: database, options file and lock (default: /config)
//   - CACHE_DIR: chapter images (default: /cache)
//   - OPTIONS_FILE: options document (default: $DATA_DIR/options.toml)
//   - PORT: HTTP API port (default: 8096)
//   - METRICS_PORT: Prometheus metrics port (default: 9090)
//   - METRICS_ENABLED: enable the metrics server (default: true)
//   - INDEX_INTERVAL: full library re-index interval (default: 30m)
//   - MEDIAINFO_INTERVAL, FINGERPRINT_INTERVAL, THUMBNAIL_INTERVAL,
//     SUBTITLE_INTERVAL: scheduled pipeline runs (defaults: 24h, 24h, 24h, 6h);
//     "0" leaves the task manual
//   - SHORTCUT_RESOLUTION: process .strm shortcuts through their target (default: false)
//   - FINGERPRINT_ENGINE: path of the fingerprint engine executable (default: none)
//   - FFMPEG_PATH, FFPROBE_PATH: tool names or paths (defaults: ffmpeg, ffprobe)
//   - LOG_HTTP: log HTTP requests (default: true)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - TASK_WORKERS: override the default worker count (see package workers)
//   - MEMORY_LIMIT, MEMORY_RATIO: derive GOMEMLIMIT when it is unset (see package memory)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
// [LogDatabaseInit], [LogToolsInit], [LogIndexerInit], [LogTasksInit],
// [LogHTTPRoutes], [LogServerStarted] and the shutdown helpers print the
// sectioned startup log.
package startup
