package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/database"
	"media-assistant/internal/library"
)

type addedRecorder struct {
	mu    sync.Mutex
	calls [][]library.Item
}

func (r *addedRecorder) record(_ context.Context, items []library.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, items)
}

func setupIndexer(t *testing.T, libs ...library.Library) (*Indexer, *database.Database, *addedRecorder) {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SyncLibraries(context.Background(), libs))

	idx := New(db, time.Hour)
	config := DefaultParallelWalkerConfig()
	config.BatchSize = 2
	idx.SetParallelConfig(config)

	rec := &addedRecorder{}
	idx.SetOnItemsAdded(rec.record)
	return idx, db, rec
}

func TestIndexBuildsHierarchy(t *testing.T) {
	tvRoot := t.TempDir()
	movieRoot := t.TempDir()
	writeFiles(t, tvRoot,
		"Show/Season 1/Show S01E01.mkv",
		"Show/Season 1/Show S01E02.mkv",
		"Show/Show S02E01.mkv",
		"Show/Featurettes/Cast.mkv",
	)
	writeFiles(t, movieRoot,
		"Film (2020)/Film.mkv",
		"Film (2020)/Trailers/Trailer.mkv",
		"Remote/Remote.strm",
	)

	idx, db, rec := setupIndexer(t,
		library.Library{ID: 1, Name: "TV", CollectionType: library.CollectionTVShows, Locations: []string{tvRoot}},
		library.Library{ID: 2, Name: "Movies", CollectionType: library.CollectionMovies, Locations: []string{movieRoot}},
	)
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx))

	series, err := db.GetItemByPath(ctx, filepath.Join(tvRoot, "Show"))
	require.NoError(t, err)
	assert.Equal(t, library.TypeSeries, series.Type)

	season1, err := db.GetItemByPath(ctx, filepath.Join(tvRoot, "Show", "Season 1"))
	require.NoError(t, err)
	assert.Equal(t, series.ID, season1.ParentID)
	assert.Equal(t, 1, season1.IndexNumber)

	season2, err := db.GetItemByPath(ctx, filepath.Join(tvRoot, "Show", "Season 2"))
	require.NoError(t, err, "virtual season")
	assert.Equal(t, 2, season2.IndexNumber)

	ep, err := db.GetItemByPath(ctx, filepath.Join(tvRoot, "Show", "Season 1", "Show S01E02.mkv"))
	require.NoError(t, err)
	assert.Equal(t, library.TypeEpisode, ep.Type)
	assert.Equal(t, season1.ID, ep.ParentID)
	assert.Equal(t, series.ID, ep.SeriesID)
	assert.Equal(t, 2, ep.IndexNumber)
	assert.Equal(t, 1, ep.ParentIndexNumber)
	assert.Equal(t, int64(1), ep.LibraryID)

	extra, err := db.GetItemByPath(ctx, filepath.Join(tvRoot, "Show", "Featurettes", "Cast.mkv"))
	require.NoError(t, err)
	assert.Equal(t, library.ExtraFeaturette, extra.ExtraType)
	assert.Equal(t, series.ID, extra.OwnerID)

	film, err := db.GetItemByPath(ctx, filepath.Join(movieRoot, "Film (2020)", "Film.mkv"))
	require.NoError(t, err)
	assert.Equal(t, library.TypeMovie, film.Type)

	trailer, err := db.GetItemByPath(ctx, filepath.Join(movieRoot, "Film (2020)", "Trailers", "Trailer.mkv"))
	require.NoError(t, err)
	assert.Equal(t, film.ID, trailer.OwnerID)

	remote, err := db.GetItemByPath(ctx, filepath.Join(movieRoot, "Remote", "Remote.strm"))
	require.NoError(t, err)
	assert.True(t, remote.IsShortcut)

	require.Len(t, rec.calls, 1)
	assert.Len(t, rec.calls[0], 7, "every playable file is new")
	for _, item := range rec.calls[0] {
		assert.NotZero(t, item.ID)
		assert.True(t, item.Type.IsLeaf())
	}

	stats := db.GetStats()
	assert.Equal(t, 3, stats.TotalEpisodes)
	assert.Equal(t, 1, stats.TotalSeries)
	assert.Equal(t, 2, stats.TotalMovies)
	assert.Equal(t, 2, stats.TotalExtras)
	assert.True(t, idx.IsReady())
	assert.False(t, idx.IsIndexing())
}

func TestReindexReportsOnlyNewItemsAndRemovesMissing(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Show/Season 1/Show S01E01.mkv", "Show/Season 1/Show S01E02.mkv")

	idx, db, rec := setupIndexer(t,
		library.Library{ID: 1, Name: "TV", CollectionType: library.CollectionTVShows, Locations: []string{root}},
	)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx))

	first, err := db.GetItemByPath(ctx, filepath.Join(root, "Show", "Season 1", "Show S01E01.mkv"))
	require.NoError(t, err)

	// Rows are timestamped in whole seconds.
	time.Sleep(1100 * time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "Show", "Season 1", "Show S01E02.mkv")))
	writeFiles(t, root, "Show/Season 1/Show S01E03.mkv")
	require.NoError(t, idx.Index(ctx))

	require.Len(t, rec.calls, 2)
	require.Len(t, rec.calls[1], 1)
	assert.Equal(t, filepath.Join(root, "Show", "Season 1", "Show S01E03.mkv"), rec.calls[1][0].Path)

	again, err := db.GetItemByPath(ctx, first.Path)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "ids are stable across scans")

	_, err = db.GetItemByPath(ctx, filepath.Join(root, "Show", "Season 1", "Show S01E02.mkv"))
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestIndexKeepsItemsWhenLocationUnreadable(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Show/Season 1/Show S01E01.mkv")
	missing := filepath.Join(t.TempDir(), "offline")

	idx, db, _ := setupIndexer(t,
		library.Library{ID: 1, Name: "TV", CollectionType: library.CollectionTVShows, Locations: []string{root}},
	)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx))

	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, db.SyncLibraries(ctx, []library.Library{
		{ID: 1, Name: "TV", CollectionType: library.CollectionTVShows, Locations: []string{root}},
		{ID: 2, Name: "NAS", CollectionType: library.CollectionMovies, Locations: []string{missing}},
	}))
	require.NoError(t, os.RemoveAll(filepath.Join(root, "Show")))
	require.NoError(t, idx.Index(ctx))

	_, err := db.GetItemByPath(ctx, filepath.Join(root, "Show", "Season 1", "Show S01E01.mkv"))
	assert.NoError(t, err, "cleanup is skipped when a location is unreadable")
}

func TestIndexSkipsConcurrentRun(t *testing.T) {
	idx, _, _ := setupIndexer(t)
	require.True(t, idx.tryStartIndexing())
	assert.NoError(t, idx.Index(context.Background()))
	idx.finishIndexing()
	assert.True(t, idx.IsReady())
}

func TestDetectChanges(t *testing.T) {
	root := t.TempDir()
	idx, _, _ := setupIndexer(t,
		library.Library{ID: 1, Name: "TV", CollectionType: library.CollectionTVShows, Locations: []string{root}},
	)
	ctx := context.Background()

	changed, err := idx.detectChanges(ctx)
	require.NoError(t, err)
	assert.True(t, changed, "unknown locations count as changed")

	require.NoError(t, idx.Index(ctx))
	changed, err = idx.detectChanges(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(root, future, future))
	changed, err = idx.detectChanges(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestHealthStatus(t *testing.T) {
	idx, _, _ := setupIndexer(t)

	status := idx.GetHealthStatus()
	assert.False(t, status.Ready)
	assert.Nil(t, status.IndexProgress)

	require.NoError(t, idx.Index(context.Background()))
	status = idx.GetHealthStatus()
	assert.True(t, status.Ready)
	assert.False(t, status.LastIndexed.IsZero())
	assert.Empty(t, status.InitialIndexError)
}
