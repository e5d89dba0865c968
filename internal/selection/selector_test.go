package selection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/favorites"
	"media-assistant/internal/library"
	"media-assistant/internal/options"
	"media-assistant/internal/scope"
	"media-assistant/internal/testsupport"
)

type fixture struct {
	idx      *testsupport.Index
	store    *options.Store
	selector *Selector
	tv       testsupport.Series
	tv2      testsupport.Series
	anime    testsupport.Series
}

// newFixture builds two marker-enabled TV libraries (5 and 6) and a movie
// library (7) with chapter image extraction.
func newFixture(t *testing.T, mutate func(*options.Options)) *fixture {
	t.Helper()

	idx := testsupport.NewIndex()
	idx.AddLibrary(library.Library{ID: 5, Name: "TV", CollectionType: library.CollectionTVShows,
		Locations: []string{"/media/tv"}, EnableMarkerDetection: true})
	idx.AddLibrary(library.Library{ID: 6, Name: "Anime", CollectionType: library.CollectionTVShows,
		Locations: []string{"/media/anime"}, EnableMarkerDetection: true})
	idx.AddLibrary(library.Library{ID: 7, Name: "Movies", CollectionType: library.CollectionMovies,
		Locations: []string{"/media/movies"}, EnableChapterImageExtraction: true})
	idx.AddUser("alice")

	f := &fixture{idx: idx}
	f.tv = idx.AddSeries(5, "/media/tv", "Alpha", 2, 1)
	f.tv2 = idx.AddSeries(5, "/media/tv", "Beta", 1)
	f.anime = idx.AddSeries(6, "/media/anime", "Gamma", 2)

	opts := options.Default()
	opts.General.MaxConcurrentCount = 4
	if mutate != nil {
		mutate(&opts)
	}
	f.store = options.NewMemoryStore(opts)
	f.selector = New(Config{
		Index:    idx,
		Resolver: scope.NewResolver(idx),
		Expander: favorites.New(idx, idx),
		Options:  f.store,
	})
	return f
}

func (f *fixture) fingerprint() *Pipeline {
	return NewFingerprintPipeline(f.idx, nil)
}

func itemIDs(items []library.Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, i := range items {
		out = append(out, i.ID)
	}
	return out
}

func concat(groups ...[]library.Item) []int64 {
	var out []int64
	for _, g := range groups {
		out = append(out, itemIDs(g)...)
	}
	return out
}

func TestScheduledEmptyScopeCoversEligibleLibraries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	got, err := f.selector.Select(ctx, f.fingerprint(), Request{Mode: ScheduledTask})
	require.NoError(t, err)

	// Sorted by path: /media/anime before /media/tv.
	assert.Equal(t, concat(f.anime.AllEpisodes(), f.tv.AllEpisodes(), f.tv2.AllEpisodes()), itemIDs(got))
}

func TestScheduledSkipsDoneFailedAndShortEpisodes(t *testing.T) {
	f := newFixture(t, func(o *options.Options) { o.IntroSkip.MarkerEnabledLibraryScope = "5" })
	ctx := context.Background()

	eps := f.tv.AllEpisodes()
	f.idx.AddMarker(library.Marker{ItemID: eps[0].ID, Type: library.MarkerIntroStart})
	f.idx.AddFailure(eps[1].ID)
	short := eps[2]
	short.RunTime = 0
	f.idx.Put(short)

	got, err := f.selector.Select(ctx, f.fingerprint(), Request{Mode: ScheduledTask})
	require.NoError(t, err)
	assert.Equal(t, itemIDs(f.tv2.AllEpisodes()), itemIDs(got))
}

func TestScheduledSentinelOnlySelectsFavorites(t *testing.T) {
	f := newFixture(t, func(o *options.Options) { o.IntroSkip.MarkerEnabledLibraryScope = "-1" })
	ctx := context.Background()
	f.idx.Favorite("alice", f.tv.Seasons[1].ID, f.anime.Series.ID)

	got, err := f.selector.Select(ctx, f.fingerprint(), Request{Mode: ScheduledTask})
	require.NoError(t, err)

	assert.ElementsMatch(t, concat(f.tv.Episodes[1], f.anime.AllEpisodes()), itemIDs(got))
}

func TestScheduledFavoritesAndLibraryUnionWithoutDuplicates(t *testing.T) {
	f := newFixture(t, func(o *options.Options) { o.IntroSkip.MarkerEnabledLibraryScope = "-1, 5 ;bogus" })
	ctx := context.Background()
	// Alpha lives in library 5 and is also favorited.
	f.idx.Favorite("alice", f.tv.Series.ID, f.anime.Episodes[0][1].ID)

	got, err := f.selector.Select(ctx, f.fingerprint(), Request{Mode: ScheduledTask})
	require.NoError(t, err)

	want := concat(f.tv.AllEpisodes(), f.anime.Episodes[0][1:], f.tv2.AllEpisodes())
	assert.ElementsMatch(t, want, itemIDs(got))
	assert.Len(t, got, len(want))
}

func TestScheduledNoEligibleLibraryIsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p := f.fingerprint()
	p.LibraryFilter = func(library.Library) bool { return false }
	before := f.idx.Queries.Load()

	got, err := f.selector.Select(ctx, p, Request{Mode: ScheduledTask})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, before, f.idx.Queries.Load())
}

func TestScheduledThumbnailIncludesBonusExtras(t *testing.T) {
	f := newFixture(t, func(o *options.Options) { o.MediaInfoExtract.IncludeExtra = true })
	ctx := context.Background()

	movie := f.idx.Put(library.Item{LibraryID: 7, Type: library.TypeMovie, Path: "/media/movies/Film (2020)/Film.mkv",
		HasAudioStream: true, HasMediaInfo: true})
	extra := f.idx.Put(library.Item{LibraryID: 7, Type: library.TypeVideo, Path: "/media/movies/Film (2020)/featurettes/Making.mkv",
		OwnerID: movie.ID, ExtraType: library.ExtraFeaturette, HasAudioStream: true, HasMediaInfo: true})
	f.idx.Put(library.Item{LibraryID: 7, Type: library.TypeVideo, Path: "/media/movies/Film (2020)/trailers/Trailer.mkv",
		OwnerID: movie.ID, ExtraType: library.ExtraTrailer, HasAudioStream: true, HasMediaInfo: true})
	f.idx.Put(library.Item{LibraryID: 7, Type: library.TypeMovie, Path: "/media/movies/Done/Done.mkv",
		HasAudioStream: true, HasMediaInfo: true, HasChapterImages: true})

	got, err := f.selector.Select(ctx, NewThumbnailPipeline(nil), Request{Mode: ScheduledTask})
	require.NoError(t, err)
	assert.Equal(t, []int64{movie.ID, extra.ID}, itemIDs(got))
}

func TestCatchUpRequiresSelectedTask(t *testing.T) {
	f := newFixture(t, func(o *options.Options) { o.General.CatchupTaskScope = "VideoThumbnail" })
	ctx := context.Background()
	p := f.fingerprint()
	_, err := f.selector.UpdateScope(ctx, p)
	require.NoError(t, err)

	got, err := f.selector.Select(ctx, p, Request{Mode: CatchUpTask, Incoming: f.tv.AllEpisodes()})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatchUpWithoutPublishedScopeIsEmpty(t *testing.T) {
	f := newFixture(t, func(o *options.Options) { o.General.CatchupTaskScope = "Fingerprint" })
	ctx := context.Background()

	got, err := f.selector.Select(ctx, f.fingerprint(), Request{Mode: CatchUpTask, Incoming: f.tv.AllEpisodes()})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCatchUpFiltersByPublishedScope(t *testing.T) {
	f := newFixture(t, func(o *options.Options) {
		o.General.CatchupTaskScope = "Fingerprint"
		o.IntroSkip.MarkerEnabledLibraryScope = "6"
	})
	ctx := context.Background()
	p := f.fingerprint()
	_, err := f.selector.UpdateScope(ctx, p)
	require.NoError(t, err)

	incoming := append(f.tv.AllEpisodes(), f.anime.AllEpisodes()...)
	incoming = append(incoming, f.anime.Series)

	got, err := f.selector.Select(ctx, p, Request{Mode: CatchUpTask, Incoming: incoming})
	require.NoError(t, err)
	assert.Equal(t, itemIDs(f.anime.AllEpisodes()), itemIDs(got))
}

func TestCatchUpSentinelExpandsFavoritesOnly(t *testing.T) {
	f := newFixture(t, func(o *options.Options) {
		o.General.CatchupTaskScope = "Fingerprint,MediaInfo"
		o.IntroSkip.LibraryScope = "-1"
	})
	ctx := context.Background()
	p := f.fingerprint()
	_, err := f.selector.UpdateScope(ctx, p)
	require.NoError(t, err)
	f.idx.Favorite("alice", f.tv.Series.ID)

	incoming := []library.Item{f.tv.Episodes[1][0], f.tv2.Episodes[0][0]}
	got, err := f.selector.Select(ctx, p, Request{Mode: CatchUpTask, Incoming: incoming})
	require.NoError(t, err)
	assert.Equal(t, []int64{f.tv.Episodes[1][0].ID}, itemIDs(got))
}

func TestOnDemandSelectsSingleItem(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	p := f.fingerprint()

	ep := f.tv.Episodes[0][0]
	got, err := f.selector.Select(ctx, p, Request{Mode: OnDemand, Item: &ep})
	require.NoError(t, err)
	assert.Equal(t, []int64{ep.ID}, itemIDs(got))

	f.idx.AddMarker(library.Marker{ItemID: ep.ID, Type: library.MarkerIntroStart})
	got, err = f.selector.Select(ctx, p, Request{Mode: OnDemand, Item: &ep})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestShortcutsExcludedUnlessSupported(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	strm := f.idx.Put(library.Item{LibraryID: 7, Type: library.TypeMovie, Path: "/media/movies/Remote/Remote.strm",
		IsShortcut: true, HasAudioStream: true, HasMediaInfo: true})

	got, err := f.selector.Select(ctx, NewThumbnailPipeline(nil), Request{Mode: OnDemand, Item: &strm})
	require.NoError(t, err)
	assert.Empty(t, got)

	f.selector.cfg.ShortcutsSupported = true
	got, err = f.selector.Select(ctx, NewThumbnailPipeline(nil), Request{Mode: OnDemand, Item: &strm})
	require.NoError(t, err)
	assert.Equal(t, []int64{strm.ID}, itemIDs(got))
}

func TestUnavailableEngineSelectsNothing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	before := f.idx.Queries.Load()

	p := NewFingerprintPipeline(f.idx, func() bool { return false })
	got, err := f.selector.Select(ctx, p, Request{Mode: ScheduledTask})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, before, f.idx.Queries.Load())
}

func TestUpdateScopePublishes(t *testing.T) {
	f := newFixture(t, func(o *options.Options) { o.IntroSkip.MarkerEnabledLibraryScope = "5" })
	ctx := context.Background()
	p := f.fingerprint()
	require.True(t, p.Scope().Empty())

	res, err := f.selector.UpdateScope(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []string{"/media/tv/"}, res.PathPrefixes)
	assert.True(t, p.Scope().InScope("/media/tv/Alpha/Season 1"))
	assert.False(t, p.Scope().InScope("/media/anime/Gamma/Season 1"))
}

func TestFilterPreservesOrderAndSkipsDone(t *testing.T) {
	ctx := context.Background()
	var items []library.Item
	for i := int64(1); i <= 50; i++ {
		items = append(items, library.Item{ID: i})
	}
	var calls atomic.Int64
	done := func(_ context.Context, i library.Item) (bool, error) {
		calls.Add(1)
		return i.ID%3 == 0, nil
	}
	failed := func(_ context.Context, i library.Item) (bool, error) {
		return i.ID%5 == 0, nil
	}

	got, err := Filter(ctx, items, done, failed, 8)
	require.NoError(t, err)

	var want []int64
	for i := int64(1); i <= 50; i++ {
		if i%3 != 0 && i%5 != 0 {
			want = append(want, i)
		}
	}
	assert.Equal(t, want, itemIDs(got))
	assert.Equal(t, int64(50), calls.Load())

	again, err := Filter(ctx, got, done, failed, 8)
	require.NoError(t, err)
	assert.Equal(t, want, itemIDs(again))
}

func TestFilterPropagatesPredicateError(t *testing.T) {
	boom := errors.New("database is locked")
	_, err := Filter(context.Background(), []library.Item{{ID: 1}, {ID: 2}},
		func(context.Context, library.Item) (bool, error) { return false, boom }, nil, 2)
	assert.ErrorIs(t, err, boom)
}

func TestFilterNilPredicatesKeepEverything(t *testing.T) {
	items := []library.Item{{ID: 3}, {ID: 1}}
	got, err := Filter(context.Background(), items, nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1}, itemIDs(got))
}
