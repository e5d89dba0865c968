package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"media-assistant/internal/filesystem"
	"media-assistant/internal/handlers"
	"media-assistant/internal/logging"
	"media-assistant/internal/memory"
	"media-assistant/internal/metrics"
	"media-assistant/internal/middleware"
	"media-assistant/internal/startup"
	"media-assistant/internal/tasks"
)

// schedulerDelay postpones the first scheduled runs until the initial
// index had a chance to finish.
const schedulerDelay = 2 * time.Minute

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, indexer and task scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	startTime := time.Now()
	memory.ConfigureFromEnv()

	cfg, err := startup.LoadConfig()
	if err != nil {
		return err
	}

	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"data":  cfg.DataDir,
		"cache": cfg.CacheDir,
	}))

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	metrics.InitializeMetrics()
	info := startup.GetBuildInfo()
	metrics.SetAppInfo(info.Version, info.Commit, info.GoVersion)

	a.monitor.Start()

	collector := metrics.NewCollector(a.db, time.Minute)
	collector.Start()

	dispatcher := tasks.NewDispatcher(a.opts, a.jobs.CatchUp)
	dispatcher.Start()
	a.indexer.SetOnItemsAdded(dispatcher.OnItemsAdded)

	startup.LogIndexerInit(cfg.Intervals.Index)
	a.indexer.Start()
	startup.LogIndexerStarted()

	startup.LogTasksInit(a.tasks.Names(), a.schedules())
	a.tasks.StartScheduler(schedulerDelay)

	deps := handlers.Deps{
		Options:   a.opts,
		Selection: a.selection,
		Tasks:     a.tasks,
		Jobs:      a.jobs,
		Index:     a.db,
		Favorites: a.db,
		Markers:   a.db,
		Expander:  a.expander,
		Indexer:   a.indexer,
	}
	if a.thumbs != nil {
		deps.Images = a.thumbs
	}
	h := handlers.New(deps)
	router := h.Router()
	startup.LogHTTPRoutes(router, cfg.LogHTTP)

	var handler http.Handler = router
	if cfg.LogHTTP {
		handler = middleware.Logger(middleware.DefaultLoggingConfig())(handler)
	}
	if cfg.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		metricsSrv = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           h.MetricsRouter(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	serveErr := make(chan error, 2)
	listen := func(s *http.Server) {
		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}
	go listen(srv)
	if metricsSrv != nil {
		go listen(metricsSrv)
	}

	startup.LogServerStarted(startup.ServerConfig{
		Port:            cfg.Port,
		MetricsPort:     cfg.MetricsPort,
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case runErr = <-serveErr:
		logging.Error("Server error: %v", runErr)
		startup.LogShutdownInitiated("server error")
	case <-ctx.Done():
		startup.LogShutdownInitiated(ctx.Err().Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownStep("Stopping indexer")
	a.indexer.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	startup.LogShutdownStep("Stopping catch-up dispatcher")
	dispatcher.Stop()
	startup.LogShutdownStepComplete("Catch-up dispatcher stopped")

	startup.LogShutdownStep("Cancelling running tasks")
	if err := a.tasks.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Task shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Tasks stopped")
	}

	collector.Stop()
	a.monitor.Stop()

	startup.LogShutdownComplete()
	return runErr
}
