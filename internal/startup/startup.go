package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-assistant/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Intervals holds the periodic schedules. Zero disables a schedule.
type Intervals struct {
	Index       time.Duration
	MediaInfo   time.Duration
	Fingerprint time.Duration
	Thumbnail   time.Duration
	Subtitle    time.Duration
}

// Config holds all application configuration
type Config struct {
	DataDir        string
	CacheDir       string
	Port           string
	MetricsPort    string
	MetricsEnabled bool
	LogHTTP        bool

	Intervals Intervals

	// ShortcutResolution makes .strm items processable through their target.
	ShortcutResolution bool

	FFmpegPath        string
	FFprobePath       string
	FingerprintEngine string

	// Derived paths
	OptionsFile  string
	DatabasePath string
	LockPath     string
	ThumbnailDir string

	// Feature flags based on directory availability
	ThumbnailsEnabled bool
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")

	dataDir := getEnv("DATA_DIR", "/config")
	cacheDir := getEnv("CACHE_DIR", "/cache")
	cfg := &Config{
		Port:               getEnv("PORT", "8096"),
		MetricsPort:        getEnv("METRICS_PORT", "9090"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		LogHTTP:            getEnvBool("LOG_HTTP", true),
		ShortcutResolution: getEnvBool("SHORTCUT_RESOLUTION", false),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		FingerprintEngine:  getEnv("FINGERPRINT_ENGINE", ""),
		Intervals: Intervals{
			Index:       getEnvDuration("INDEX_INTERVAL", 30*time.Minute),
			MediaInfo:   getEnvDuration("MEDIAINFO_INTERVAL", 24*time.Hour),
			Fingerprint: getEnvDuration("FINGERPRINT_INTERVAL", 24*time.Hour),
			Thumbnail:   getEnvDuration("THUMBNAIL_INTERVAL", 24*time.Hour),
			Subtitle:    getEnvDuration("SUBTITLE_INTERVAL", 6*time.Hour),
		},
	}

	var err error
	if dataDir, err = filepath.Abs(dataDir); err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if cacheDir, err = filepath.Abs(cacheDir); err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	cfg.DataDir = dataDir
	cfg.CacheDir = cacheDir
	cfg.OptionsFile = getEnv("OPTIONS_FILE", filepath.Join(dataDir, "options.toml"))
	cfg.DatabasePath = filepath.Join(dataDir, "assistant.db")
	cfg.LockPath = filepath.Join(dataDir, ".lock")
	cfg.ThumbnailDir = filepath.Join(cacheDir, "thumbnails")

	logging.Info("  DATA_DIR:             %s", cfg.DataDir)
	logging.Info("  CACHE_DIR:            %s", cfg.CacheDir)
	logging.Info("  OPTIONS_FILE:         %s", cfg.OptionsFile)
	logging.Info("  PORT:                 %s", cfg.Port)
	logging.Info("  METRICS_PORT:         %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:      %v", cfg.MetricsEnabled)
	logging.Info("  INDEX_INTERVAL:       %v", cfg.Intervals.Index)
	logging.Info("  MEDIAINFO_INTERVAL:   %v", cfg.Intervals.MediaInfo)
	logging.Info("  FINGERPRINT_INTERVAL: %v", cfg.Intervals.Fingerprint)
	logging.Info("  THUMBNAIL_INTERVAL:   %v", cfg.Intervals.Thumbnail)
	logging.Info("  SUBTITLE_INTERVAL:    %v", cfg.Intervals.Subtitle)
	logging.Info("  SHORTCUT_RESOLUTION:  %v", cfg.ShortcutResolution)
	logging.Info("  FINGERPRINT_ENGINE:   %s", valueOrNone(cfg.FingerprintEngine))
	logging.Info("  LOG_HTTP:             %v", cfg.LogHTTP)
	logging.Info("  LOG_LEVEL:            %s", logging.GetLevel())

	logging.Info("")
	section("DIRECTORY SETUP")

	if err := ensureDirectory(cfg.DataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	logging.Debug("  Testing data directory write access...")
	if err := testWriteAccess(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable (required for database and options): %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	cfg.ThumbnailsEnabled = setupOptionalDir(cfg.ThumbnailDir, "thumbnails")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Database:    ENABLED (required)")
	logging.Info("    Thumbnails:  %s", enabledString(cfg.ThumbnailsEnabled))
	logging.Info("    Metrics:     %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func section(title string) {
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}
	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// Tools reports which external executables were found.
type Tools struct {
	FFmpeg            string
	FFprobe           string
	FingerprintEngine string
}

// LogToolsInit checks ffmpeg and ffprobe and logs which pipelines they
// enable. Empty paths in tools mean the executable was not found.
func LogToolsInit(tools Tools) {
	logging.Info("")
	section("EXTERNAL TOOLS")

	if tools.FFprobe == "" {
		logging.Warn("  ffprobe not found, media info and subtitle probing disabled")
	} else if err := checkTool(tools.FFprobe); err != nil {
		logging.Warn("  ffprobe check failed: %v", err)
	} else {
		logging.Info("  [OK] ffprobe is available")
	}

	if tools.FFmpeg == "" {
		logging.Warn("  ffmpeg not found, video thumbnails disabled")
	} else if err := checkTool(tools.FFmpeg); err != nil {
		logging.Warn("  ffmpeg check failed: %v", err)
	} else {
		logging.Info("  [OK] ffmpeg is available")
	}

	if tools.FingerprintEngine == "" {
		logging.Warn("  No fingerprint engine configured, intro detection disabled")
	} else {
		logging.Info("  [OK] Fingerprint engine: %s", tools.FingerprintEngine)
	}
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(interval time.Duration) {
	logging.Info("")
	section("INDEXER INITIALIZATION")
	logging.Info("  Index interval: %v", interval)
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// LogTasksInit logs the registered tasks and their schedules.
func LogTasksInit(names []string, schedules map[string]time.Duration) {
	logging.Info("")
	section("TASKS")
	for _, name := range names {
		if d := schedules[name]; d > 0 {
			logging.Info("  %-24s every %v", name, d)
		} else {
			logging.Info("  %-24s manual", name)
		}
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHTTP bool) {
	logging.Info("")
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}
		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}
		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			label := group
			if label == "" {
				label = "root"
			}
			logging.Debug("  [%s]", label)
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHTTP {
		logging.Info("  HTTP logging enabled")
	} else {
		logging.Info("  HTTP logging disabled (set LOG_HTTP=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
   __  ___         ___         ___            _      __            __
  /  |/  /__  ___/ (_)__ _   / _ | ___ ___ (_)__ _/ /____ ____  / /_
 / /|_/ / -_)/ _  / / _ '/  / __ |(_-<(_-</ (_-</ __/ _ '/ _ \/ __/
/_/  /_/\__/ \_,_/_/\_,_/  /_/ |_/___/___/_/___/\__/\_,_/_//_/\__/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))
	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}
	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// checkTool runs "<path> -version" and logs the first line of its output.
func checkTool(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", filepath.Base(path), err)
	}
	if first, _, _ := strings.Cut(string(output), "\n"); first != "" {
		logging.Debug("  %s", strings.TrimSpace(first))
	}
	return nil
}

// LookupTool resolves an executable name or path. It returns "" when the
// executable cannot be found.
func LookupTool(name string) string {
	if name == "" {
		return ""
	}
	path, err := exec.LookPath(name)
	if err != nil {
		logging.Debug("  %s not found: %v", name, err)
		return ""
	}
	return path
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvDuration parses a duration variable. "0" disables the schedule it
// configures.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "0" {
		return 0
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		logging.Warn("  Invalid %s %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
