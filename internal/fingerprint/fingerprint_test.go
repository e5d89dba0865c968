package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/favorites"
	"media-assistant/internal/library"
	"media-assistant/internal/options"
	"media-assistant/internal/testsupport"
)

type fakeEngine struct {
	mu           sync.Mutex
	timeout      time.Duration
	contexts     map[int64]int
	contextArgs  map[int64][]int64
	derived      []int64
	contextErr   error
	deriveErr    map[int64]error
	onDerive     func(episode library.Item)
	titles       []int64
	titleMinutes int
	titleErr     error
	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		contexts:    make(map[int64]int),
		contextArgs: make(map[int64][]int64),
		deriveErr:   make(map[int64]error),
	}
}

func (f *fakeEngine) CreateTitleFingerprint(_ context.Context, episode library.Item, minutes int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, episode.ID)
	f.titleMinutes = minutes
	return false, f.titleErr
}

func (f *fakeEngine) ComputeSeasonContext(ctx context.Context, season library.Item, episodes []library.Item, _ int) (*SeasonContext, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts[season.ID]++
	for _, e := range episodes {
		f.contextArgs[season.ID] = append(f.contextArgs[season.ID], e.ID)
	}
	if f.contextErr != nil {
		return nil, f.contextErr
	}
	return &SeasonContext{SeasonID: season.ID}, ctx.Err()
}

func (f *fakeEngine) DeriveMarkers(_ context.Context, season library.Item, sc *SeasonContext, episode library.Item) ([]library.Marker, error) {
	if sc == nil || sc.SeasonID != season.ID {
		return nil, errors.New("context of another season")
	}
	f.mu.Lock()
	f.derived = append(f.derived, episode.ID)
	err := f.deriveErr[episode.ID]
	hook := f.onDerive
	f.mu.Unlock()
	if hook != nil {
		hook(episode)
	}
	if err != nil {
		return nil, err
	}
	return []library.Marker{
		{ItemID: episode.ID, Type: library.MarkerIntroStart, Position: 0},
		{ItemID: episode.ID, Type: library.MarkerIntroEnd, Position: 90 * time.Second},
	}, nil
}

func (f *fakeEngine) SetTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = d
}

func (f *fakeEngine) Timeout() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timeout
}

func (f *fakeEngine) derivedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.derived...)
}

func episodeIDs(items []library.Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, i := range items {
		out = append(out, i.ID)
	}
	return out
}

func hasMarker(idx *testsupport.Index, id int64, t library.MarkerType) bool {
	ok, _ := idx.HasMarker(context.Background(), id, t)
	return ok
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func newStore(workers int) *options.Store {
	opts := options.Default()
	opts.General.MaxConcurrentCount = workers
	return options.NewMemoryStore(opts)
}

func TestDeriveTimeout(t *testing.T) {
	tests := []struct {
		workers int
		want    time.Duration
	}{
		{1, 10 * time.Minute},
		{3, 30 * time.Minute},
		{20, 200 * time.Minute},
		{0, 10 * time.Minute},
		{-4, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := DeriveTimeout(tt.workers); got != tt.want {
			t.Errorf("DeriveTimeout(%d) = %v, want %v", tt.workers, got, tt.want)
		}
	}
}

func TestTimeoutPolicyFollowsWorkerBudget(t *testing.T) {
	engine := newFakeEngine()
	policy := NewTimeoutPolicy(engine)
	store := newStore(2)
	store.Subscribe(policy.OnOptionsChanged)

	require.NoError(t, store.Apply(context.Background()))
	assert.Equal(t, 20*time.Minute, engine.Timeout())

	next := store.Current().Clone()
	next.General.MaxConcurrentCount = 5
	require.NoError(t, store.Save(context.Background(), next))
	assert.Equal(t, 50*time.Minute, engine.Timeout())
}

func TestCreateTitleFingerprintUsesConfiguredLength(t *testing.T) {
	engine := newFakeEngine()
	store := newStore(1)
	next := store.Current().Clone()
	next.IntroSkip.IntroDetectionFingerprintMinutes = 7
	require.NoError(t, store.Save(context.Background(), next))

	seq := NewSequencer(engine, testsupport.NewIndex(), store)
	require.NoError(t, seq.CreateTitleFingerprint(context.Background(), library.Item{ID: 9}))
	assert.Equal(t, []int64{9}, engine.titles)
	assert.Equal(t, 7, engine.titleMinutes)

	engine.titleErr = errors.New("decode failed")
	assert.Error(t, seq.CreateTitleFingerprint(context.Background(), library.Item{ID: 10}))
}

func TestRunSeasonSequenceReportsProgress(t *testing.T) {
	ctx := context.Background()
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 4)
	season := show.Seasons[0]
	eps := show.Episodes[0]
	idx.AddMarker(library.Marker{ItemID: eps[1].ID, Type: library.MarkerIntroStart})

	engine := newFakeEngine()
	seq := NewSequencer(engine, idx, newStore(2))

	var got []float64
	require.NoError(t, seq.RunSeasonSequence(ctx, season, func(p float64) { got = append(got, p) }))

	assert.Equal(t, []float64{1.0 / 3, 2.0 / 3, 1.0}, got)
	assert.Equal(t, 1, engine.contexts[season.ID])
	// The context covers every episode, including those already marked.
	assert.Equal(t, episodeIDs(eps), engine.contextArgs[season.ID])
	assert.Equal(t, []int64{eps[0].ID, eps[2].ID, eps[3].ID}, engine.derivedIDs())
	assert.True(t, hasMarker(idx, eps[3].ID, library.MarkerIntroEnd))
}

func TestRunSeasonSequenceWithNothingPending(t *testing.T) {
	ctx := context.Background()
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 2)
	for _, e := range show.AllEpisodes() {
		idx.AddMarker(library.Marker{ItemID: e.ID, Type: library.MarkerIntroStart})
	}

	engine := newFakeEngine()
	seq := NewSequencer(engine, idx, newStore(1))

	var got []float64
	require.NoError(t, seq.RunSeasonSequence(ctx, show.Seasons[0], func(p float64) { got = append(got, p) }))

	assert.Equal(t, []float64{1.0}, got)
	assert.Empty(t, engine.derivedIDs())
}

func TestRunSeasonSequenceEmptySeason(t *testing.T) {
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 0)
	engine := newFakeEngine()
	seq := NewSequencer(engine, idx, newStore(1))

	var got []float64
	require.NoError(t, seq.RunSeasonSequence(context.Background(), show.Seasons[0], func(p float64) { got = append(got, p) }))
	assert.Equal(t, []float64{1.0}, got)
	assert.Zero(t, engine.contexts[show.Seasons[0].ID])
}

func TestRunSeasonSequenceStopsOnCancellation(t *testing.T) {
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 5)
	eps := show.Episodes[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := newFakeEngine()
	engine.onDerive = func(e library.Item) {
		if e.ID == eps[1].ID {
			cancel()
		}
	}
	seq := NewSequencer(engine, idx, newStore(1))

	var got []float64
	err := seq.RunSeasonSequence(ctx, show.Seasons[0], func(p float64) { got = append(got, p) })

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancellation(ctx, err))
	assert.Equal(t, []int64{eps[0].ID, eps[1].ID}, engine.derivedIDs())
	assert.Equal(t, []float64{0.2, 0.4}, got)
}

func TestRunSeasonSequenceEpisodeTimeoutContinues(t *testing.T) {
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 3)
	eps := show.Episodes[0]

	engine := newFakeEngine()
	engine.deriveErr[eps[0].ID] = context.DeadlineExceeded
	seq := NewSequencer(engine, idx, newStore(1))

	var got []float64
	err := seq.RunSeasonSequence(context.Background(), show.Seasons[0], func(p float64) { got = append(got, p) })

	require.NoError(t, err)
	assert.Equal(t, episodeIDs(eps), engine.derivedIDs())
	assert.Empty(t, idx.Markers(eps[0].ID))
	assert.Len(t, idx.Markers(eps[1].ID), 2)
	assert.Len(t, idx.Markers(eps[2].ID), 2)
	require.NotEmpty(t, got)
	assert.Equal(t, 1.0, got[len(got)-1])
}

func TestRunSeasonsCountsContextTimeoutAsFailed(t *testing.T) {
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 2)

	engine := newFakeEngine()
	engine.contextErr = fmt.Errorf("%w: season after 10m0s", ErrEngineTimeout)
	store := newStore(1)
	runner := NewRunner(NewSequencer(engine, idx, store), idx, store)

	result, err := runner.RunSeasons(context.Background(), show.Episodes[0], nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Cancelled)

	engine.contextErr = context.DeadlineExceeded
	seq := NewSequencer(engine, idx, store)
	err = seq.RunSeasonSequence(context.Background(), show.Seasons[0], nil)
	require.ErrorIs(t, err, ErrSeasonFailed)
}

func TestRunSeasonSequenceContextFailure(t *testing.T) {
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 2)
	engine := newFakeEngine()
	engine.contextErr = errors.New("no audio")
	seq := NewSequencer(engine, idx, newStore(1))

	var calls int
	err := seq.RunSeasonSequence(context.Background(), show.Seasons[0], func(float64) { calls++ })

	require.ErrorIs(t, err, ErrSeasonFailed)
	assert.False(t, IsCancellation(context.Background(), err))
	assert.Zero(t, calls)
	assert.Empty(t, engine.derivedIDs())
	assert.Empty(t, idx.Markers(show.Episodes[0][0].ID))
}

func TestRunSeasonSequenceEpisodeFailuresDoNotAbort(t *testing.T) {
	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 3)
	eps := show.Episodes[0]

	engine := newFakeEngine()
	engine.deriveErr[eps[0].ID] = errors.New("decode error")
	engine.deriveErr[eps[1].ID] = &PermanentFailure{Reason: "no intro found"}
	seq := NewSequencer(engine, idx, newStore(1))

	var got []float64
	require.NoError(t, seq.RunSeasonSequence(context.Background(), show.Seasons[0], func(p float64) { got = append(got, p) }))

	assert.Equal(t, episodeIDs(eps), engine.derivedIDs())
	assert.Len(t, got, 3)
	assert.Equal(t, 1.0, got[2])

	failed, _ := idx.HasIntroDetectionFailure(context.Background(), eps[1].ID)
	assert.True(t, failed)
	transient, _ := idx.HasIntroDetectionFailure(context.Background(), eps[0].ID)
	assert.False(t, transient, "transient errors stay eligible for retry")
	assert.True(t, hasMarker(idx, eps[2].ID, library.MarkerIntroStart))
}

func TestRunSeasonsRespectsBudgetAndIsolatesSeasons(t *testing.T) {
	idx := testsupport.NewIndex()
	a := idx.AddSeries(5, "/media/tv", "Alpha", 2, 2, 2)
	b := idx.AddSeries(5, "/media/tv", "Beta", 2, 2)

	engine := newFakeEngine()
	opts := newStore(2)
	seq := NewSequencer(engine, idx, opts)
	runner := NewRunner(seq, idx, opts)

	queue := append(a.AllEpisodes(), b.AllEpisodes()...)
	var (
		mu   sync.Mutex
		last float64
		seen []float64
	)
	res, err := runner.RunSeasons(context.Background(), queue, func(p float64) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p)
		last = p
	})
	require.NoError(t, err)

	assert.Equal(t, SeasonResult{Seasons: 5, Succeeded: 5}, res)
	assert.LessOrEqual(t, engine.maxInFlight.Load(), int32(2))
	for _, s := range append(a.Seasons, b.Seasons...) {
		assert.Equal(t, 1, engine.contexts[s.ID], "season %d", s.ID)
	}
	assert.InDelta(t, 1.0, last, 1e-9)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}
}

func TestRunSeasonsCountsFailedSeasons(t *testing.T) {
	idx := testsupport.NewIndex()
	a := idx.AddSeries(5, "/media/tv", "Alpha", 1, 1)

	engine := newFakeEngine()
	engine.contextErr = errors.New("engine crashed")
	opts := newStore(4)
	runner := NewRunner(NewSequencer(engine, idx, opts), idx, opts)

	res, err := runner.RunSeasons(context.Background(), a.AllEpisodes(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
}

func TestGroupBySeason(t *testing.T) {
	items := []library.Item{{ID: 1, ParentID: 20}, {ID: 2, ParentID: 10}, {ID: 3, ParentID: 20}, {ID: 4}}
	assert.Equal(t, []int64{20, 10}, GroupBySeason(items))
}

func TestClearIntroMarkers(t *testing.T) {
	ctx := context.Background()
	idx := testsupport.NewIndex()
	a := idx.AddSeries(5, "/media/tv", "Alpha", 2, 1)
	b := idx.AddSeries(5, "/media/tv", "Beta", 1, 1)
	movie := idx.Put(library.Item{Type: library.TypeMovie, Path: "/media/movies/Film.mkv"})

	for _, e := range append(a.AllEpisodes(), b.AllEpisodes()...) {
		idx.AddMarker(library.Marker{ItemID: e.ID, Type: library.MarkerIntroStart})
		idx.AddMarker(library.Marker{ItemID: e.ID, Type: library.MarkerCreditsStart})
	}

	var progress []float64
	raw := " " + itoa(a.Series.ID) + ";" + itoa(b.Seasons[1].ID) + ",x," + itoa(movie.ID)
	res, err := ClearIntroMarkers(ctx, idx, favorites.New(idx, idx), raw, func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Len(t, res.Shows, 2)
	assert.Equal(t, 4, res.Episodes)
	assert.Equal(t, int64(8), res.Markers)
	for _, e := range a.AllEpisodes() {
		assert.Empty(t, idx.Markers(e.ID))
	}
	assert.Empty(t, idx.Markers(b.Episodes[1][0].ID))
	assert.Len(t, idx.Markers(b.Episodes[0][0].ID), 2)

	require.Len(t, progress, 5)
	assert.Equal(t, 0.2, progress[0])
	assert.InDelta(t, 1.0, progress[4], 1e-9)
}

func TestFingerprintLengthListener(t *testing.T) {
	ctx := context.Background()
	idx := testsupport.NewIndex()
	idx.AddLibrary(library.Library{ID: 5, CollectionType: library.CollectionTVShows})
	idx.AddLibrary(library.Library{ID: 7, CollectionType: library.CollectionMovies})

	listener := FingerprintLengthListener(idx)
	next := options.Default()
	next.IntroSkip.IntroDetectionFingerprintMinutes = 12
	require.NoError(t, listener(ctx, nil, &next))

	libs, _ := idx.Libraries(ctx)
	assert.Equal(t, 12, libs[0].IntroFingerprintMinutes)
	assert.Zero(t, libs[1].IntroFingerprintMinutes)
}
