package selection

import (
	"context"
	"time"

	"media-assistant/internal/library"
	"media-assistant/internal/options"
	"media-assistant/internal/scope"
)

// Pipeline names, also used as log components and metric labels.
const (
	FingerprintPipelineName     = "IntroFingerprintExtract"
	IntroPreExtractPipelineName = "IntroPreExtract"
	ThumbnailPipelineName       = "VideoThumbnailExtract"
	SubtitlePipelineName        = "ExternalSubtitle"
	MediaInfoPipelineName       = "MediaInfoExtract"
)

// Pipeline parameterizes selection for one background pipeline.
type Pipeline struct {
	Name        string
	CatchupTask options.CatchupTask

	// LibraryFilter decides library eligibility.
	LibraryFilter scope.Filter
	// ScheduledScope returns the scope string bounding scheduled runs and
	// the published scope.
	ScheduledScope func(*options.Options) string
	// CatchUpScope returns the scope string whose sentinel enables
	// favorites expansion on catch-up.
	CatchUpScope func(*options.Options) string
	// IncludeExtras reports whether bonus content is processed. Nil means
	// never.
	IncludeExtras func(*options.Options) bool

	// FavoriteTypes are the favorited item types expanded into work.
	FavoriteTypes []library.ItemType
	// Query is the base index query of scheduled runs.
	Query func(*options.Options) library.ItemQuery
	// Accept filters incoming catch-up items. Nil accepts every playable
	// item.
	Accept func(library.Item) bool

	IsAlreadyDone       Predicate
	IsPermanentlyFailed Predicate

	// Available reports whether the pipeline's engine initialized. Nil
	// means always available.
	Available func() bool

	published scope.Published
}

// Scope returns the pipeline's published scope.
func (p *Pipeline) Scope() *scope.Published {
	return &p.published
}

func (p *Pipeline) includeExtras(opts *options.Options) bool {
	return p.IncludeExtras != nil && p.IncludeExtras(opts)
}

func (p *Pipeline) accepts(item library.Item) bool {
	if p.Accept != nil {
		return p.Accept(item)
	}
	return item.Type.IsLeaf()
}

// MarkerIndex answers the per-item readiness checks of the fingerprint
// pipeline.
type MarkerIndex interface {
	HasMarker(ctx context.Context, itemID int64, t library.MarkerType) (bool, error)
	HasIntroDetectionFailure(ctx context.Context, itemID int64) (bool, error)
}

func isEpisode(item library.Item) bool {
	return item.Type == library.TypeEpisode
}

func fingerprintMinutes(opts *options.Options) time.Duration {
	return time.Duration(opts.IntroSkip.IntroDetectionFingerprintMinutes) * time.Minute
}

// NewFingerprintPipeline selects episodes lacking an intro marker and without
// a recorded detection failure.
func NewFingerprintPipeline(markers MarkerIndex, available func() bool) *Pipeline {
	return &Pipeline{
		Name:           FingerprintPipelineName,
		CatchupTask:    options.CatchupFingerprint,
		LibraryFilter:  scope.TVShowMarkerLibraries,
		ScheduledScope: func(o *options.Options) string { return o.IntroSkip.MarkerEnabledLibraryScope },
		CatchUpScope:   func(o *options.Options) string { return o.IntroSkip.LibraryScope },
		FavoriteTypes:  []library.ItemType{library.TypeSeries, library.TypeSeason, library.TypeEpisode},
		Query: func(o *options.Options) library.ItemQuery {
			return library.ItemQuery{
				Types:                    []library.ItemType{library.TypeEpisode},
				WithoutMarker:            library.MarkerIntroStart,
				MinRunTime:               fingerprintMinutes(o),
				HasIntroDetectionFailure: library.Bool(false),
				HasAudioStream:           library.Bool(true),
			}
		},
		Accept: isEpisode,
		IsAlreadyDone: func(ctx context.Context, item library.Item) (bool, error) {
			return markers.HasMarker(ctx, item.ID, library.MarkerIntroStart)
		},
		IsPermanentlyFailed: func(ctx context.Context, item library.Item) (bool, error) {
			return markers.HasIntroDetectionFailure(ctx, item.ID)
		},
		Available: available,
	}
}

// NewIntroPreExtractPipeline selects in-scope episodes still lacking an
// audio stream, which need media info before they can be fingerprinted.
func NewIntroPreExtractPipeline() *Pipeline {
	return &Pipeline{
		Name:           IntroPreExtractPipelineName,
		CatchupTask:    options.CatchupFingerprint,
		LibraryFilter:  scope.TVShowMarkerLibraries,
		ScheduledScope: func(o *options.Options) string { return o.IntroSkip.MarkerEnabledLibraryScope },
		CatchUpScope:   func(o *options.Options) string { return o.IntroSkip.LibraryScope },
		FavoriteTypes:  []library.ItemType{library.TypeSeries, library.TypeSeason, library.TypeEpisode},
		Query: func(*options.Options) library.ItemQuery {
			return library.ItemQuery{
				Types:          []library.ItemType{library.TypeEpisode},
				HasAudioStream: library.Bool(false),
			}
		},
		Accept: isEpisode,
		IsAlreadyDone: func(_ context.Context, item library.Item) (bool, error) {
			return item.HasAudioStream, nil
		},
	}
}

// NewThumbnailPipeline selects videos with media info and an audio stream
// that have no chapter images yet.
func NewThumbnailPipeline(available func() bool) *Pipeline {
	return &Pipeline{
		Name:           ThumbnailPipelineName,
		CatchupTask:    options.CatchupVideoThumbnail,
		LibraryFilter:  scope.ChapterImageLibraries,
		ScheduledScope: func(o *options.Options) string { return o.MediaInfoExtract.LibraryScope },
		CatchUpScope:   func(o *options.Options) string { return o.MediaInfoExtract.LibraryScope },
		IncludeExtras:  func(o *options.Options) bool { return o.MediaInfoExtract.IncludeExtra },
		Query: func(*options.Options) library.ItemQuery {
			return library.ItemQuery{
				Types:            []library.ItemType{library.TypeEpisode, library.TypeMovie, library.TypeVideo},
				HasAudioStream:   library.Bool(true),
				HasMediaInfo:     library.Bool(true),
				HasChapterImages: library.Bool(false),
			}
		},
		IsAlreadyDone: func(_ context.Context, item library.Item) (bool, error) {
			return item.HasChapterImages || !item.HasMediaInfo, nil
		},
		Available: available,
	}
}

// NewSubtitlePipeline selects videos whose external subtitle files differ
// from the stored streams, as reported by changed.
func NewSubtitlePipeline(changed Predicate) *Pipeline {
	return &Pipeline{
		Name:           SubtitlePipelineName,
		CatchupTask:    options.CatchupSubtitle,
		LibraryFilter:  scope.AllLibraries,
		ScheduledScope: func(o *options.Options) string { return o.MediaInfoExtract.LibraryScope },
		CatchUpScope:   func(o *options.Options) string { return o.MediaInfoExtract.LibraryScope },
		IncludeExtras:  func(o *options.Options) bool { return o.MediaInfoExtract.IncludeExtra },
		Query: func(*options.Options) library.ItemQuery {
			return library.ItemQuery{
				Types:        []library.ItemType{library.TypeEpisode, library.TypeMovie, library.TypeVideo},
				HasMediaInfo: library.Bool(true),
			}
		},
		IsAlreadyDone: func(ctx context.Context, item library.Item) (bool, error) {
			if changed == nil {
				return true, nil
			}
			c, err := changed(ctx, item)
			return !c, err
		},
	}
}

// NewMediaInfoPipeline selects videos that were never probed.
func NewMediaInfoPipeline() *Pipeline {
	return &Pipeline{
		Name:           MediaInfoPipelineName,
		CatchupTask:    options.CatchupMediaInfo,
		LibraryFilter:  scope.AllLibraries,
		ScheduledScope: func(o *options.Options) string { return o.MediaInfoExtract.LibraryScope },
		CatchUpScope:   func(o *options.Options) string { return o.MediaInfoExtract.LibraryScope },
		IncludeExtras:  func(o *options.Options) bool { return o.MediaInfoExtract.IncludeExtra },
		Query: func(*options.Options) library.ItemQuery {
			return library.ItemQuery{
				Types:        []library.ItemType{library.TypeEpisode, library.TypeMovie, library.TypeVideo},
				HasMediaInfo: library.Bool(false),
			}
		},
		IsAlreadyDone: func(_ context.Context, item library.Item) (bool, error) {
			return item.HasMediaInfo, nil
		},
	}
}
