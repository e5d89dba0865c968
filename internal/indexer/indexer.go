package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"media-assistant/internal/database"
	"media-assistant/internal/filesystem"
	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
)

const (
	// Delay between batches to allow other operations
	batchDelay = 10 * time.Millisecond

	// Default polling interval for change detection
	defaultPollInterval = 30 * time.Second
)

// ItemsAddedFunc receives the playable items that a scan added to the index.
type ItemsAddedFunc func(ctx context.Context, items []library.Item)

// Indexer scans library locations into the database.
type Indexer struct {
	db                   *database.Database
	indexInterval        time.Duration
	pollInterval         time.Duration
	ctx                  context.Context
	cancel               context.CancelFunc
	indexMu              sync.Mutex
	isIndexing           bool
	lastIndexTime        time.Time
	initialIndexComplete bool
	initialIndexError    error
	startTime            time.Time

	// Progress tracking
	itemsIndexed  atomic.Int64
	indexProgress atomic.Value

	parallelConfig ParallelWalkerConfig

	onItemsAdded    ItemsAddedFunc
	onIndexComplete func()

	// Last known location modification times for change detection
	stateMu       sync.RWMutex
	locationMtime map[string]time.Time
}

// IndexProgress tracks the current indexing progress
type IndexProgress struct {
	ItemsIndexed int64     `json:"itemsIndexed"`
	IsIndexing   bool      `json:"isIndexing"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool           `json:"ready"`
	Indexing          bool           `json:"indexing"`
	StartTime         time.Time      `json:"startTime"`
	Uptime            string         `json:"uptime"`
	LastIndexed       time.Time      `json:"lastIndexed,omitempty"`
	InitialIndexError string         `json:"initialIndexError,omitempty"`
	ItemsIndexed      int64          `json:"itemsIndexed"`
	IndexProgress     *IndexProgress `json:"indexProgress,omitempty"`
}

// New creates a new Indexer instance.
func New(db *database.Database, indexInterval time.Duration) *Indexer {
	ctx, cancel := context.WithCancel(context.Background())
	idx := &Indexer{
		db:             db,
		indexInterval:  indexInterval,
		pollInterval:   defaultPollInterval,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		parallelConfig: DefaultParallelWalkerConfig(),
		locationMtime:  make(map[string]time.Time),
	}
	idx.indexProgress.Store(IndexProgress{})
	return idx
}

// SetPollInterval sets the interval for polling-based change detection.
func (idx *Indexer) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		idx.pollInterval = interval
	}
}

// SetParallelConfig sets the parallel walker configuration.
func (idx *Indexer) SetParallelConfig(config ParallelWalkerConfig) {
	idx.parallelConfig = config
}

// SetOnItemsAdded sets the callback invoked with newly indexed items.
func (idx *Indexer) SetOnItemsAdded(fn ItemsAddedFunc) {
	idx.onItemsAdded = fn
}

// SetOnIndexComplete sets a callback to be invoked when indexing completes.
func (idx *Indexer) SetOnIndexComplete(callback func()) {
	idx.onIndexComplete = callback
}

// Start begins the indexing process.
func (idx *Indexer) Start() {
	go func() {
		logging.Info("Starting initial index in background...")
		if err := idx.Index(idx.ctx); err != nil {
			logging.Error("Initial index error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}
	}()

	go idx.pollForChanges()
	go idx.periodicIndex()
}

// Stop stops background indexing and cancels a running scan.
func (idx *Indexer) Stop() {
	idx.cancel()
}

// IsReady returns true once the first index has completed.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialIndexComplete
}

func (idx *Indexer) getProgress() IndexProgress {
	if progress, ok := idx.indexProgress.Load().(IndexProgress); ok {
		return progress
	}
	return IndexProgress{}
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	progress := idx.getProgress()

	status := HealthStatus{
		Ready:        idx.initialIndexComplete,
		Indexing:     idx.isIndexing,
		StartTime:    idx.startTime,
		Uptime:       time.Since(idx.startTime).String(),
		LastIndexed:  idx.lastIndexTime,
		ItemsIndexed: idx.itemsIndexed.Load(),
	}

	if idx.isIndexing {
		status.IndexProgress = &progress
	}

	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}

	return status
}

// pollForChanges re-indexes when a library location's modification time
// moves.
func (idx *Indexer) pollForChanges() {
	for !idx.IsReady() {
		select {
		case <-time.After(1 * time.Second):
		case <-idx.ctx.Done():
			return
		}
	}

	logging.Info("Starting change detection polling (interval: %v)", idx.pollInterval)

	ticker := time.NewTicker(idx.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			changed, err := idx.detectChanges(idx.ctx)
			if err != nil {
				logging.Error("Error detecting changes: %v", err)
				continue
			}
			if changed {
				logging.Info("Library changes detected, triggering re-index")
				if err := idx.Index(idx.ctx); err != nil {
					logging.Error("Re-index after change detection failed: %v", err)
				}
			}
		case <-idx.ctx.Done():
			logging.Info("Change detection polling stopped")
			return
		}
	}
}

// detectChanges compares each location's modification time against the
// value recorded after the last index.
func (idx *Indexer) detectChanges(ctx context.Context) (bool, error) {
	libs, err := idx.db.Libraries(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load libraries: %w", err)
	}

	idx.stateMu.RLock()
	defer idx.stateMu.RUnlock()

	for _, lib := range libs {
		for _, loc := range lib.Locations {
			info, err := filesystem.StatWithRetry(loc, idx.parallelConfig.Retry)
			if err != nil {
				logging.Debug("Cannot stat location %s: %v", loc, err)
				continue
			}
			last, known := idx.locationMtime[loc]
			if !known || info.ModTime().After(last) {
				logging.Debug("Location %s modified: %v > %v", loc, info.ModTime(), last)
				return true, nil
			}
		}
	}
	return false, nil
}

func (idx *Indexer) recordLocationState(loc string) {
	info, err := filesystem.StatWithRetry(loc, idx.parallelConfig.Retry)
	if err != nil {
		return
	}
	idx.stateMu.Lock()
	idx.locationMtime[loc] = info.ModTime()
	idx.stateMu.Unlock()
}

// Index scans every library location, upserts the items found and removes
// items that disappeared. Items that were not in the index before are passed
// to the items-added callback. Missing items are only removed when every
// location could be read.
func (idx *Indexer) Index(ctx context.Context) error {
	if !idx.tryStartIndexing() {
		logging.Info("Index already in progress, skipping...")
		return nil
	}
	defer idx.finishIndexing()

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	startTime := time.Now()
	logging.Info("Starting library indexing...")
	idx.resetCounters(startTime)

	// Rows touched by this run carry updated_at >= indexTime.
	indexTime := startTime.Truncate(time.Second)

	libs, err := idx.db.Libraries(ctx)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return fmt.Errorf("failed to load libraries: %w", err)
	}

	var (
		added      []library.Item
		totalFiles int64
		complete   = true
	)
	for _, lib := range libs {
		for _, loc := range lib.Locations {
			files, locAdded, err := idx.indexLocation(ctx, lib, loc, startTime)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logging.Error("Error indexing %s (library %s): %v", loc, lib.Name, err)
				metrics.IndexerErrors.Inc()
				complete = false
				continue
			}
			totalFiles += files
			added = append(added, locAdded...)
			idx.recordLocationState(loc)
		}
	}

	if complete {
		if err := idx.cleanupMissingItems(indexTime); err != nil {
			logging.Error("Error cleaning up missing items: %v", err)
			metrics.IndexerErrors.Inc()
		}
	} else {
		logging.Warn("Skipping removal of missing items: not every location was readable")
	}

	idx.finalizeIndex(ctx, startTime, totalFiles, len(added))

	duration := time.Since(startTime).Seconds()
	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.IndexerLastRunDuration.Set(duration)
	metrics.IndexerFilesProcessed.Add(float64(totalFiles))
	metrics.IndexerItemsAdded.Add(float64(len(added)))

	if len(added) > 0 && idx.onItemsAdded != nil {
		idx.onItemsAdded(ctx, added)
	}
	return nil
}

func (idx *Indexer) indexLocation(ctx context.Context, lib library.Library, loc string, startTime time.Time) (int64, []library.Item, error) {
	walker := NewParallelWalker(loc, idx.parallelConfig)
	files, err := walker.Walk(ctx)
	if err != nil {
		return 0, nil, err
	}

	prefix := filepath.Clean(loc) + string(filepath.Separator)
	known, err := idx.db.QueryItems(ctx, library.ItemQuery{PathPrefixes: []string{prefix}, IncludeExtras: true})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to load indexed items: %w", err)
	}
	existing := make(map[string]struct{}, len(known))
	for _, item := range known {
		existing[item.Path] = struct{}{}
	}

	b := newBuilder(idx.db, lib, existing)

	var regular, extras []entryFile
	for _, f := range files {
		e, ok := Classify(lib, loc, f.Path)
		if !ok {
			continue
		}
		if e.ExtraType != library.ExtraNone {
			extras = append(extras, entryFile{e, f})
		} else {
			regular = append(regular, entryFile{e, f})
		}
	}

	// Extras go last so their owners already have ids.
	all := append(regular, extras...)
	batchSize := max(idx.parallelConfig.BatchSize, 1)
	for i := 0; i < len(all); i += batchSize {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		end := min(i+batchSize, len(all))
		if err := b.writeBatch(all[i:end]); err != nil {
			return 0, nil, err
		}
		idx.itemsIndexed.Add(int64(end - i))
		idx.updateProgress(startTime)
		time.Sleep(batchDelay)
	}

	logging.Info("Indexed %s (%s): %d files, %d new", loc, lib.Name, len(all), len(b.added))
	return int64(len(all)), b.added, nil
}

type entryFile struct {
	entry Entry
	file  WalkedFile
}

// builder writes classified files and the folder items they imply.
type builder struct {
	db       *database.Database
	lib      library.Library
	existing map[string]struct{}
	dirIDs   map[string]int64
	added    []library.Item
}

func newBuilder(db *database.Database, lib library.Library, existing map[string]struct{}) *builder {
	return &builder{
		db:       db,
		lib:      lib,
		existing: existing,
		dirIDs:   make(map[string]int64),
	}
}

func (b *builder) writeBatch(batch []entryFile) error {
	tx, err := b.db.BeginBatch()
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}

	var pending []library.Item
	for _, ef := range batch {
		item, err := b.write(tx, ef)
		if err != nil {
			logging.Warn("Error upserting %s: %v", ef.file.Path, err)
			continue
		}
		if _, ok := b.existing[item.Path]; !ok {
			pending = append(pending, item)
		}
	}

	if err := b.db.EndBatch(tx, nil); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	b.added = append(b.added, pending...)
	return nil
}

func (b *builder) write(tx *sql.Tx, ef entryFile) (library.Item, error) {
	e := ef.entry
	item := library.Item{
		LibraryID:        b.lib.ID,
		Type:             e.Type,
		Name:             e.Name(),
		Path:             e.Path,
		ContainingFolder: filepath.Dir(e.Path),
		ExtraType:        e.ExtraType,
		IsShortcut:       e.IsShortcut,
	}

	switch {
	case e.Type == library.TypeEpisode:
		seriesID, err := b.folder(tx, library.Item{
			Type: library.TypeSeries, Path: e.SeriesDir,
		})
		if err != nil {
			return item, err
		}
		seasonID, err := b.folder(tx, library.Item{
			Type: library.TypeSeason, Path: e.SeasonDir, ParentID: seriesID, SeriesID: seriesID,
			IndexNumber: e.SeasonNumber,
		})
		if err != nil {
			return item, err
		}
		item.ParentID = seasonID
		item.SeriesID = seriesID
		item.IndexNumber = e.EpisodeNumber
		item.ParentIndexNumber = e.SeasonNumber
	case e.ExtraType != library.ExtraNone:
		item.OwnerID = b.dirIDs[e.OwnerDir]
	}

	if _, err := b.db.UpsertItem(tx, &item, ef.file.Size, ef.file.ModTime); err != nil {
		return item, err
	}
	if item.Type == library.TypeMovie {
		if _, ok := b.dirIDs[item.ContainingFolder]; !ok {
			b.dirIDs[item.ContainingFolder] = item.ID
		}
	}
	return item, nil
}

// folder upserts a series or season item once per scan and returns its id.
func (b *builder) folder(tx *sql.Tx, item library.Item) (int64, error) {
	if id, ok := b.dirIDs[item.Path]; ok {
		return id, nil
	}
	item.LibraryID = b.lib.ID
	item.Name = filepath.Base(item.Path)
	item.ContainingFolder = filepath.Dir(item.Path)
	id, err := b.db.UpsertItem(tx, &item, 0, time.Time{})
	if err != nil {
		return 0, err
	}
	b.dirIDs[item.Path] = id
	return id, nil
}

func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	idx.isIndexing = false
	idx.initialIndexComplete = true
}

func (idx *Indexer) resetCounters(startTime time.Time) {
	idx.itemsIndexed.Store(0)
	idx.indexProgress.Store(IndexProgress{
		IsIndexing: true,
		StartedAt:  startTime,
	})
}

func (idx *Indexer) updateProgress(startTime time.Time) {
	idx.indexProgress.Store(IndexProgress{
		ItemsIndexed: idx.itemsIndexed.Load(),
		IsIndexing:   true,
		StartedAt:    startTime,
	})
}

func (idx *Indexer) finalizeIndex(ctx context.Context, startTime time.Time, totalFiles int64, added int) {
	duration := time.Since(startTime)

	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	lastIndexed := idx.lastIndexTime
	idx.indexMu.Unlock()

	idx.indexProgress.Store(IndexProgress{
		ItemsIndexed: totalFiles,
		IsIndexing:   false,
	})

	stats := database.IndexStats{LastIndexed: lastIndexed, IndexDuration: duration.String()}
	if libStats, err := idx.db.LibraryStats(ctx); err == nil {
		for kind, n := range libStats.ItemsByType {
			stats.TotalItems += n
			switch kind {
			case string(library.TypeSeries):
				stats.TotalSeries = n
			case string(library.TypeEpisode):
				stats.TotalEpisodes = n
			case string(library.TypeMovie):
				stats.TotalMovies = n
			case "extra":
				stats.TotalExtras = n
			}
		}
	} else {
		logging.Warn("Failed to calculate index stats: %v", err)
	}
	idx.db.UpdateStats(stats)

	logging.Info("Index complete: %d files, %d new items in %v", totalFiles, added, duration)

	if idx.onIndexComplete != nil {
		idx.onIndexComplete()
	}
}

func (idx *Indexer) cleanupMissingItems(indexTime time.Time) error {
	tx, err := idx.db.BeginBatch()
	if err != nil {
		return fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}

	deleted, err := idx.db.DeleteMissingItems(tx, indexTime)
	if err != nil {
		if endErr := idx.db.EndBatch(tx, err); endErr != nil {
			logging.Error("failed to end batch after cleanup error: %v", endErr)
		}
		return err
	}

	if err := idx.db.EndBatch(tx, nil); err != nil {
		return fmt.Errorf("failed to commit cleanup: %w", err)
	}

	if deleted > 0 {
		logging.Info("Removed %d missing items from index", deleted)
	}
	return nil
}

func (idx *Indexer) periodicIndex() {
	if idx.indexInterval <= 0 {
		return
	}
	ticker := time.NewTicker(idx.indexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic re-index triggered")
			if err := idx.Index(idx.ctx); err != nil && !errors.Is(err, context.Canceled) {
				logging.Error("periodic re-index failed: %v", err)
			}
		case <-idx.ctx.Done():
			return
		}
	}
}

// IsIndexing returns whether an index operation is currently in progress.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// LastIndexTime returns the time of the last completed index operation.
func (idx *Indexer) LastIndexTime() time.Time {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastIndexTime
}

// TriggerIndex manually triggers a re-index.
func (idx *Indexer) TriggerIndex() {
	go func() {
		if err := idx.Index(idx.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("manually triggered re-index failed: %v", err)
		}
	}()
}

// GetProgress returns the current indexing progress.
func (idx *Indexer) GetProgress() IndexProgress {
	return idx.getProgress()
}
