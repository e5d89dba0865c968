package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"media-assistant/internal/database"
	"media-assistant/internal/favorites"
	"media-assistant/internal/fingerprint"
	"media-assistant/internal/indexer"
	"media-assistant/internal/logging"
	"media-assistant/internal/mediainfo"
	"media-assistant/internal/memory"
	"media-assistant/internal/options"
	"media-assistant/internal/scope"
	"media-assistant/internal/selection"
	"media-assistant/internal/startup"
	"media-assistant/internal/subtitle"
	"media-assistant/internal/tasks"
	"media-assistant/internal/thumbnail"
)

// errLocked is returned when another process owns the data directory.
var errLocked = errors.New("data directory is locked by another media-assistant process")

// app holds the components shared by every command.
type app struct {
	cfg  *startup.Config
	lock *flock.Flock

	db        *database.Database
	opts      *options.Store
	expander  *favorites.Expander
	selection *selection.Service
	jobs      *tasks.Jobs
	tasks     *tasks.Manager
	indexer   *indexer.Indexer
	thumbs    *thumbnail.Generator
	monitor   *memory.Monitor
}

// openApp locks the data directory, opens the database and options and
// builds the pipelines. The caller must Close the app.
func openApp(ctx context.Context, cfg *startup.Config) (_ *app, err error) {
	a := &app{cfg: cfg, lock: flock.New(cfg.LockPath)}

	ok, err := a.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", cfg.LockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errLocked, cfg.DataDir)
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	dbStart := time.Now()
	if a.db, err = database.New(ctx, cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	if a.opts, err = options.Open(cfg.OptionsFile); err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}

	resolver := mediainfo.NewInputResolver(cfg.ShortcutResolution)
	tools := startup.Tools{}

	prober, err := mediainfo.NewProber(cfg.FFprobePath)
	if err != nil {
		logging.Debug("ffprobe unavailable: %v", err)
	} else {
		tools.FFprobe = prober.Path()
	}
	if cfg.ThumbnailsEnabled {
		if a.thumbs, err = thumbnail.NewGenerator(cfg.FFmpegPath, cfg.CacheDir, a.db, resolver); err != nil {
			logging.Debug("ffmpeg unavailable: %v", err)
		} else {
			tools.FFmpeg = startup.LookupTool(cfg.FFmpegPath)
		}
	}
	engine, err := fingerprint.NewExecEngine(cfg.FingerprintEngine)
	if err != nil {
		logging.Debug("Fingerprint engine unavailable: %v", err)
	} else {
		tools.FingerprintEngine = engine.Path()
	}
	startup.LogToolsInit(tools)

	a.expander = favorites.New(a.db, a.db)
	a.indexer = indexer.New(a.db, cfg.Intervals.Index)
	a.monitor = memory.NewMonitor(memory.DefaultConfig())

	var refresher *subtitle.Refresher
	var subtitleChanged selection.Predicate
	if prober != nil {
		refresher = subtitle.NewRefresher(a.db, prober)
		subtitleChanged = refresher.HasExternalSubtitleChanged
	}

	a.selection = selection.NewService(
		selection.New(selection.Config{
			Index:              a.db,
			Resolver:           scope.NewResolver(a.db),
			Expander:           a.expander,
			Options:            a.opts,
			ShortcutsSupported: cfg.ShortcutResolution,
		}),
		selection.NewFingerprintPipeline(a.db, func() bool { return engine != nil }),
		selection.NewIntroPreExtractPipeline(),
		selection.NewThumbnailPipeline(a.thumbs.Available),
		selection.NewSubtitlePipeline(subtitleChanged),
		selection.NewMediaInfoPipeline(),
	)

	a.jobs = &tasks.Jobs{
		Selector: a.selection,
		Index:    a.db,
		Options:  a.opts,
		Scanner:  a.indexer,
		Markers:  a.db,
		Expander: a.expander,
		Gate:     a.monitor,
		Intervals: tasks.Intervals{
			MediaInfo:   cfg.Intervals.MediaInfo,
			Fingerprint: cfg.Intervals.Fingerprint,
			Thumbnail:   cfg.Intervals.Thumbnail,
			Subtitle:    cfg.Intervals.Subtitle,
		},
	}
	if prober != nil {
		a.jobs.MediaInfo = mediainfo.NewExtractor(prober, a.db, resolver)
		a.jobs.Subtitles = refresher
	}
	if a.thumbs != nil {
		a.jobs.Thumbnails = a.thumbs
	}
	if engine != nil {
		seq := fingerprint.NewSequencer(engine, a.db, a.opts)
		a.jobs.Fingerprints = tasks.ProcessorFunc(seq.CreateTitleFingerprint)
		a.jobs.Seasons = fingerprint.NewRunner(seq, a.db, a.opts)
	}

	a.opts.Subscribe(func(ctx context.Context, _, next *options.Options) error {
		return a.db.SyncLibraries(ctx, next.Libraries)
	})
	a.opts.Subscribe(func(ctx context.Context, _, _ *options.Options) error {
		return a.selection.UpdateScopeFromConfiguration(ctx)
	})
	if engine != nil {
		a.opts.Subscribe(fingerprint.NewTimeoutPolicy(engine).OnOptionsChanged)
	}
	a.opts.Subscribe(fingerprint.FingerprintLengthListener(a.db))
	if err := a.opts.Apply(ctx); err != nil {
		logging.Warn("Options not fully applied: %v", err)
	}

	a.tasks = tasks.NewManager(a.db)
	for _, t := range a.jobs.Tasks() {
		a.tasks.Register(t)
	}
	if err := a.tasks.LoadHistory(ctx); err != nil {
		logging.Warn("Failed to load task history: %v", err)
	}
	return a, nil
}

// schedules returns the interval of every registered task.
func (a *app) schedules() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for _, t := range a.jobs.Tasks() {
		out[t.Name] = t.Interval
	}
	return out
}

// Close releases the database and the data directory lock.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Warn("Database close error: %v", err)
		}
	}
	if err := a.lock.Unlock(); err != nil {
		logging.Warn("Failed to release lock %s: %v", a.cfg.LockPath, err)
	}
}
