package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-assistant/internal/filesystem"
	"media-assistant/internal/logging"
	"media-assistant/internal/mediatypes"
)

// ParallelWalkerConfig configures the parallel directory walker
type ParallelWalkerConfig struct {
	// NumWorkers bounds concurrent directory reads
	NumWorkers int
	// BatchSize is the number of items written per transaction
	BatchSize int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
	// Retry configures NFS stale handle retries
	Retry filesystem.RetryConfig
}

// DefaultParallelWalkerConfig returns sensible defaults based on available resources
func DefaultParallelWalkerConfig() ParallelWalkerConfig {
	// Default to 3 workers - safe for NFS and still performant for local filesystems
	// Users can override with INDEX_WORKERS environment variable if needed
	numWorkers := 3
	if override := os.Getenv("INDEX_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			numWorkers = count
		}
	}

	return ParallelWalkerConfig{
		NumWorkers: numWorkers,
		BatchSize:  500,
		SkipHidden: true,
		Retry:      filesystem.DefaultRetryConfig(),
	}
}

// WalkedFile is a playable file found by the walker.
type WalkedFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ParallelWalker walks one library location, reading directories in parallel.
type ParallelWalker struct {
	config ParallelWalkerConfig
	root   string

	sem chan struct{}
	wg  sync.WaitGroup

	mu    sync.Mutex
	files []WalkedFile

	// Statistics
	filesProcessed   atomic.Int64
	foldersProcessed atomic.Int64
	errorsCount      atomic.Int64
}

// NewParallelWalker creates a new parallel directory walker
func NewParallelWalker(root string, config ParallelWalkerConfig) *ParallelWalker {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	return &ParallelWalker{
		config: config,
		root:   root,
		sem:    make(chan struct{}, config.NumWorkers),
	}
}

// Walk returns every playable file below the root, sorted by path. An
// unreadable root is an error; unreadable subdirectories are logged and
// skipped. Cancelling ctx stops the walk and returns ctx.Err().
func (pw *ParallelWalker) Walk(ctx context.Context) ([]WalkedFile, error) {
	startTime := time.Now()

	if _, err := filesystem.StatWithRetry(pw.root, pw.config.Retry); err != nil {
		return nil, err
	}

	pw.wg.Add(1)
	go pw.walkDir(ctx, pw.root)
	pw.wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pw.files, func(i, j int) bool { return pw.files[i].Path < pw.files[j].Path })

	logging.Debug("Walk of %s complete: %d files, %d folders in %v (errors: %d)",
		pw.root,
		pw.filesProcessed.Load(),
		pw.foldersProcessed.Load(),
		time.Since(startTime),
		pw.errorsCount.Load())

	return pw.files, nil
}

func (pw *ParallelWalker) walkDir(ctx context.Context, dir string) {
	defer pw.wg.Done()

	select {
	case pw.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	entries, err := filesystem.ReadDirWithRetry(dir, pw.config.Retry)
	var found []WalkedFile
	var subdirs []string
	if err == nil {
		found, subdirs = pw.scanEntries(dir, entries)
	}
	<-pw.sem

	if err != nil {
		pw.errorsCount.Add(1)
		logging.Warn("Error reading directory %s: %v", dir, err)
		return
	}

	pw.foldersProcessed.Add(1)
	if len(found) > 0 {
		pw.filesProcessed.Add(int64(len(found)))
		pw.mu.Lock()
		pw.files = append(pw.files, found...)
		pw.mu.Unlock()
	}

	for _, sub := range subdirs {
		if ctx.Err() != nil {
			return
		}
		pw.wg.Add(1)
		go pw.walkDir(ctx, sub)
	}
}

func (pw *ParallelWalker) scanEntries(dir string, entries []os.DirEntry) ([]WalkedFile, []string) {
	var (
		files   []WalkedFile
		subdirs []string
	)
	for _, entry := range entries {
		name := entry.Name()
		if pw.config.SkipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if entry.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}
		if !mediatypes.IsPlayable(strings.ToLower(filepath.Ext(name))) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			pw.errorsCount.Add(1)
			logging.Warn("Error getting info for %s: %v", path, err)
			continue
		}
		files = append(files, WalkedFile{Path: path, Size: info.Size(), ModTime: info.ModTime()})
	}
	return files, subdirs
}

// Stats returns current processing statistics
func (pw *ParallelWalker) Stats() (files, folders, errors int64) {
	return pw.filesProcessed.Load(), pw.foldersProcessed.Load(), pw.errorsCount.Load()
}
