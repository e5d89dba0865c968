package testsupport

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-assistant/internal/library"
)

// Index is an in-memory library index with the query semantics of the
// SQLite store. It is safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	nextID    int64
	libraries []library.Library
	items     map[int64]library.Item
	users     []library.User
	favorites map[string]map[int64]struct{}
	markers   map[int64][]library.Marker
	failures  map[int64]library.FailureRecord

	// Queries counts QueryItems calls.
	Queries atomic.Int64
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		nextID:    1000,
		items:     make(map[int64]library.Item),
		favorites: make(map[string]map[int64]struct{}),
		markers:   make(map[int64][]library.Marker),
		failures:  make(map[int64]library.FailureRecord),
	}
}

// AddLibrary registers a library.
func (x *Index) AddLibrary(l library.Library) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.libraries = append(x.libraries, l)
}

// AddUser registers a user.
func (x *Index) AddUser(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.users = append(x.users, library.User{ID: id, Name: id})
}

// Put stores item, assigning an id when it has none, and returns it.
func (x *Index) Put(item library.Item) library.Item {
	x.mu.Lock()
	defer x.mu.Unlock()
	if item.ID == 0 {
		x.nextID++
		item.ID = x.nextID
	}
	if item.ContainingFolder == "" && item.Type.IsLeaf() {
		item.ContainingFolder = filepath.Dir(item.Path)
	}
	x.items[item.ID] = item
	return item
}

// Series is a series created by AddSeries.
type Series struct {
	Series   library.Item
	Seasons  []library.Item
	Episodes [][]library.Item
}

// AllEpisodes returns every episode of the series in season order.
func (s Series) AllEpisodes() []library.Item {
	var all []library.Item
	for _, eps := range s.Episodes {
		all = append(all, eps...)
	}
	return all
}

// AddSeries creates a series under root with the given number of episodes
// per season. Episodes have an audio stream, media info and a 45 minute
// runtime.
func (x *Index) AddSeries(libraryID int64, root, name string, episodesPerSeason ...int) Series {
	seriesPath := filepath.Join(root, name)
	s := Series{Series: x.Put(library.Item{
		LibraryID: libraryID, Type: library.TypeSeries, Name: name,
		Path: seriesPath, ContainingFolder: root,
	})}
	for si, count := range episodesPerSeason {
		seasonPath := filepath.Join(seriesPath, fmt.Sprintf("Season %d", si+1))
		season := x.Put(library.Item{
			LibraryID: libraryID, Type: library.TypeSeason, Name: fmt.Sprintf("Season %d", si+1),
			Path: seasonPath, ContainingFolder: seriesPath, ParentID: s.Series.ID, SeriesID: s.Series.ID,
			IndexNumber: si + 1,
		})
		s.Seasons = append(s.Seasons, season)

		var eps []library.Item
		for ei := 0; ei < count; ei++ {
			eps = append(eps, x.Put(library.Item{
				LibraryID: libraryID, Type: library.TypeEpisode,
				Name:              fmt.Sprintf("%s S%02dE%02d", name, si+1, ei+1),
				Path:              filepath.Join(seasonPath, fmt.Sprintf("%s S%02dE%02d.mkv", name, si+1, ei+1)),
				ParentID:          season.ID,
				SeriesID:          s.Series.ID,
				HasAudioStream:    true,
				HasMediaInfo:      true,
				RunTime:           45 * time.Minute,
				IndexNumber:       ei + 1,
				ParentIndexNumber: si + 1,
			}))
		}
		s.Episodes = append(s.Episodes, eps)
	}
	return s
}

// Favorite marks item ids as favorites of user.
func (x *Index) Favorite(user string, ids ...int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.favorites[user]
	if !ok {
		set = make(map[int64]struct{})
		x.favorites[user] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// SetFavorite sets or clears a favorite of user.
func (x *Index) SetFavorite(_ context.Context, user string, itemID int64, favorite bool) error {
	if favorite {
		x.Favorite(user, itemID)
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.favorites[user], itemID)
	return nil
}

// IsFavorite reports whether user favorited itemID.
func (x *Index) IsFavorite(user string, itemID int64) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.favorites[user][itemID]
	return ok
}

// AddMarker records a marker on an item.
func (x *Index) AddMarker(m library.Marker) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.markers[m.ItemID] = append(x.markers[m.ItemID], m)
}

// AddFailure records a permanent detection failure for an item.
func (x *Index) AddFailure(itemID int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.failures[itemID] = library.FailureRecord{ItemID: itemID, Reason: "test"}
}

// Libraries implements the library registry.
func (x *Index) Libraries(context.Context) ([]library.Library, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.libraries), nil
}

// Users implements the user registry.
func (x *Index) Users(context.Context) ([]library.User, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.users), nil
}

// GetItem returns a single item.
func (x *Index) GetItem(_ context.Context, id int64) (library.Item, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	item, ok := x.items[id]
	if !ok {
		return library.Item{}, fmt.Errorf("item %d: %w", id, library.ErrNotFound)
	}
	return item, nil
}

// HasMarker reports whether an item carries a marker of type t.
func (x *Index) HasMarker(_ context.Context, id int64, t library.MarkerType) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.hasMarker(id, t), nil
}

// Markers returns the markers of an item.
func (x *Index) Markers(id int64) []library.Marker {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.markers[id])
}

func (x *Index) hasMarker(id int64, t library.MarkerType) bool {
	for _, m := range x.markers[id] {
		if m.Type == t {
			return true
		}
	}
	return false
}

// HasIntroDetectionFailure reports whether a failure was recorded for id.
func (x *Index) HasIntroDetectionFailure(_ context.Context, id int64) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.failures[id]
	return ok, nil
}

// QueryItems returns items matching q ordered by path then id.
func (x *Index) QueryItems(_ context.Context, q library.ItemQuery) ([]library.Item, error) {
	x.Queries.Add(1)
	x.mu.RLock()
	defer x.mu.RUnlock()

	var out []library.Item
	for _, item := range x.items {
		if x.matches(item, q) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (x *Index) matches(item library.Item, q library.ItemQuery) bool {
	if len(q.IDs) > 0 && !slices.Contains(q.IDs, item.ID) {
		return false
	}
	if len(q.Types) > 0 && !slices.Contains(q.Types, item.Type) {
		return false
	}
	if len(q.PathPrefixes) > 0 && !slices.ContainsFunc(q.PathPrefixes, func(p string) bool {
		return strings.HasPrefix(item.Path, p)
	}) {
		return false
	}
	if len(q.ParentIDs) > 0 && !slices.Contains(q.ParentIDs, item.ParentID) {
		return false
	}
	if len(q.SeriesIDs) > 0 && !slices.Contains(q.SeriesIDs, item.SeriesID) {
		return false
	}
	if len(q.OwnerIDs) > 0 && !slices.Contains(q.OwnerIDs, item.OwnerID) {
		return false
	}
	if item.IsExtra() {
		if !q.IncludeExtras {
			return false
		}
		if len(q.ExtraTypes) > 0 && !slices.Contains(q.ExtraTypes, item.ExtraType) {
			return false
		}
	} else if q.ExtrasOnly {
		return false
	}
	if q.HasAudioStream != nil && item.HasAudioStream != *q.HasAudioStream {
		return false
	}
	if q.HasMediaInfo != nil && item.HasMediaInfo != *q.HasMediaInfo {
		return false
	}
	if q.HasChapterImages != nil && item.HasChapterImages != *q.HasChapterImages {
		return false
	}
	if q.WithoutMarker != "" && x.hasMarker(item.ID, q.WithoutMarker) {
		return false
	}
	if q.HasIntroDetectionFailure != nil {
		_, failed := x.failures[item.ID]
		if failed != *q.HasIntroDetectionFailure {
			return false
		}
	}
	if q.MinRunTime > 0 && item.RunTime < q.MinRunTime {
		return false
	}
	if q.FavoriteOfUser != "" {
		if _, ok := x.favorites[q.FavoriteOfUser][item.ID]; !ok {
			return false
		}
	}
	return true
}

// SaveMarkers replaces the markers of itemID whose types appear in markers.
func (x *Index) SaveMarkers(_ context.Context, itemID int64, markers []library.Marker) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	kept := x.markers[itemID][:0:0]
	for _, m := range x.markers[itemID] {
		if !slices.ContainsFunc(markers, func(n library.Marker) bool { return n.Type == m.Type }) {
			kept = append(kept, m)
		}
	}
	for _, m := range markers {
		m.ItemID = itemID
		kept = append(kept, m)
	}
	x.markers[itemID] = kept
	return nil
}

// ClearMarkers removes the markers of the given types from itemID and
// returns how many were removed.
func (x *Index) ClearMarkers(_ context.Context, itemID int64, types ...library.MarkerType) (int64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	before := len(x.markers[itemID])
	x.markers[itemID] = slices.DeleteFunc(x.markers[itemID], func(m library.Marker) bool {
		return slices.Contains(types, m.Type)
	})
	return int64(before - len(x.markers[itemID])), nil
}

// RecordFailure stores a permanent detection failure.
func (x *Index) RecordFailure(_ context.Context, rec library.FailureRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.failures[rec.ItemID] = rec
	return nil
}

// SetLibraryFingerprintMinutes updates the fingerprint length of every TV
// library whose stored value differs and returns how many changed.
func (x *Index) SetLibraryFingerprintMinutes(_ context.Context, minutes int) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	changed := 0
	for i := range x.libraries {
		l := &x.libraries[i]
		if l.IsTVShows() && l.IntroFingerprintMinutes != minutes {
			l.IntroFingerprintMinutes = minutes
			changed++
		}
	}
	return changed, nil
}
