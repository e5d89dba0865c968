package fingerprint

import (
	"context"
	"fmt"

	"media-assistant/internal/favorites"
	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/options"
	"media-assistant/internal/scope"
)

// MarkerStore removes markers from items.
type MarkerStore interface {
	QueryItems(ctx context.Context, q library.ItemQuery) ([]library.Item, error)
	ClearMarkers(ctx context.Context, itemID int64, types ...library.MarkerType) (int64, error)
}

var clearLog = logging.For("IntroSkipClear")

// IntroMarkerTypes are the markers removed by ClearIntroMarkers.
var IntroMarkerTypes = []library.MarkerType{
	library.MarkerIntroStart,
	library.MarkerIntroEnd,
	library.MarkerCreditsStart,
}

// ClearResult summarizes a ClearIntroMarkers call.
type ClearResult struct {
	Shows    []library.Item
	Episodes int
	Markers  int64
}

// ClearIntroMarkers removes intro and credits markers from every episode of
// the series and seasons listed in ids, a comma or semicolon separated list.
// Ids of other item types are ignored. Progress reaches 0.2 once the episodes
// are gathered and 1.0 when the last one is cleared.
func ClearIntroMarkers(ctx context.Context, store MarkerStore, expander *favorites.Expander, ids string, progress Progress) (ClearResult, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	var result ClearResult

	parsed := scope.ParseIDs(ids)
	if len(parsed) > 0 {
		shows, err := store.QueryItems(ctx, library.ItemQuery{
			IDs:   parsed,
			Types: []library.ItemType{library.TypeSeries, library.TypeSeason},
		})
		if err != nil {
			return result, fmt.Errorf("query shows: %w", err)
		}
		result.Shows = shows
	}

	episodes, err := expander.Expand(ctx, result.Shows, favorites.Options{})
	if err != nil {
		return result, fmt.Errorf("expand shows: %w", err)
	}
	progress(0.2)

	total := len(episodes)
	for i, episode := range episodes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := store.ClearMarkers(ctx, episode.ID, IntroMarkerTypes...)
		if err != nil {
			return result, fmt.Errorf("clear markers of %s: %w", episode.Path, err)
		}
		result.Episodes++
		result.Markers += n
		clearLog.Progress(i, total, "- %s", episode.Path)
		progress(0.2 + 0.8*float64(i+1)/float64(total))
	}
	if total == 0 {
		progress(1.0)
	}
	return result, nil
}

// LibraryLengthStore persists per-library fingerprint lengths.
type LibraryLengthStore interface {
	SetLibraryFingerprintMinutes(ctx context.Context, minutes int) (int, error)
}

// UpdateLibraryIntroDetectionFingerprintLength writes the configured
// fingerprint length to every TV library whose stored value differs.
func UpdateLibraryIntroDetectionFingerprintLength(ctx context.Context, store LibraryLengthStore, minutes int) error {
	changed, err := store.SetLibraryFingerprintMinutes(ctx, minutes)
	if err != nil {
		return fmt.Errorf("update fingerprint length: %w", err)
	}
	if changed > 0 {
		logging.Info("Intro detection fingerprint length set to %d minutes on %d libraries", minutes, changed)
	}
	return nil
}

// FingerprintLengthListener returns an options.Listener that syncs library
// fingerprint lengths when the configured length changes.
func FingerprintLengthListener(store LibraryLengthStore) options.Listener {
	return func(ctx context.Context, prev, next *options.Options) error {
		minutes := next.IntroSkip.IntroDetectionFingerprintMinutes
		if prev != nil && prev.IntroSkip.IntroDetectionFingerprintMinutes == minutes {
			return nil
		}
		return UpdateLibraryIntroDetectionFingerprintLength(ctx, store, minutes)
	}
}
