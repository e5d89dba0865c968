package tasks

import (
	"context"
	"fmt"
	"time"

	"media-assistant/internal/favorites"
	"media-assistant/internal/fingerprint"
	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/options"
	"media-assistant/internal/selection"
	"media-assistant/internal/workers"
)

// Tasks that are not selection pipelines.
const (
	LibraryScanTaskName    = "LibraryScan"
	IntroSkipClearTaskName = "IntroSkipClear"
)

// Processor handles one item of a pipeline queue.
type Processor interface {
	Process(ctx context.Context, item library.Item) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, item library.Item) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, item library.Item) error {
	return f(ctx, item)
}

// Selector builds pipeline queues. *selection.Service satisfies it.
type Selector interface {
	Pipeline(name string) (*selection.Pipeline, bool)
	Select(ctx context.Context, p *selection.Pipeline, req selection.Request) ([]library.Item, error)
}

// Index re-reads items after a stage changed them.
type Index interface {
	QueryItems(ctx context.Context, q library.ItemQuery) ([]library.Item, error)
}

// SeasonRunner runs the season sequences of a fingerprint queue.
type SeasonRunner interface {
	RunSeasons(ctx context.Context, episodes []library.Item, progress fingerprint.Progress) (fingerprint.SeasonResult, error)
}

// Scanner re-indexes the libraries.
type Scanner interface {
	Index(ctx context.Context) error
}

// Gate holds queue workers back, e.g. under memory pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// Jobs binds the pipelines to the processors doing their work. Nil
// processors disable their pipeline's task.
type Jobs struct {
	Selector Selector
	Index    Index
	Options  *options.Store
	Scanner  Scanner

	MediaInfo    Processor
	Thumbnails   Processor
	Subtitles    Processor
	Fingerprints Processor
	Seasons      SeasonRunner

	// Markers and Expander back the IntroSkipClear task, which clears the
	// shows listed in the clear_intro_shows option.
	Markers  fingerprint.MarkerStore
	Expander *favorites.Expander

	Intervals Intervals
	// Gate, when set, is waited on before each queued item.
	Gate Gate
}

// Intervals schedules the periodic tasks. Zero leaves a task manual.
type Intervals struct {
	Scan        time.Duration
	MediaInfo   time.Duration
	Fingerprint time.Duration
	Thumbnail   time.Duration
	Subtitle    time.Duration
}

func (j *Jobs) budget() int {
	return j.Options.Current().General.MaxConcurrentCount
}

func (j *Jobs) gated(fn ItemFunc) ItemFunc {
	if j.Gate == nil {
		return fn
	}
	return func(ctx context.Context, item library.Item) error {
		if err := j.Gate.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx, item)
	}
}

// Tasks returns the tasks backed by the configured processors.
func (j *Jobs) Tasks() []Task {
	var out []Task
	if j.Scanner != nil {
		out = append(out, Task{
			Name:        LibraryScanTaskName,
			Description: "Scan media libraries",
			Interval:    j.Intervals.Scan,
			Run: func(ctx context.Context, progress Progress) error {
				return j.Scanner.Index(ctx)
			},
		})
	}
	if j.MediaInfo != nil {
		out = append(out, Task{
			Name:        selection.MediaInfoPipelineName,
			Description: "Extract media info",
			Interval:    j.Intervals.MediaInfo,
			Run: func(ctx context.Context, progress Progress) error {
				_, err := j.stage(ctx, selection.MediaInfoPipelineName, selection.Request{Mode: selection.ScheduledTask}, j.MediaInfo, workers.Mixed, progress)
				return err
			},
		})
	}
	if j.Fingerprints != nil && j.Seasons != nil {
		out = append(out, Task{
			Name:        selection.FingerprintPipelineName,
			Description: "Detect intro and credits markers",
			Interval:    j.Intervals.Fingerprint,
			Run: func(ctx context.Context, progress Progress) error {
				_, err := j.fingerprint(ctx, selection.ScheduledTask, nil, progress)
				return err
			},
		})
	}
	if j.Markers != nil && j.Expander != nil {
		out = append(out, Task{
			Name:        IntroSkipClearTaskName,
			Description: "Clear intro markers of the configured shows",
			Run: func(ctx context.Context, progress Progress) error {
				ids := j.Options.Current().IntroSkip.ClearIntroShows
				res, err := fingerprint.ClearIntroMarkers(ctx, j.Markers, j.Expander, ids, fingerprint.Progress(progress))
				if err != nil {
					return err
				}
				logging.For(IntroSkipClearTaskName).Info("Cleared %d markers from %d episodes of %d shows",
					res.Markers, res.Episodes, len(res.Shows))
				return nil
			},
		})
	}
	if j.Thumbnails != nil {
		out = append(out, Task{
			Name:        selection.ThumbnailPipelineName,
			Description: "Extract video thumbnails",
			Interval:    j.Intervals.Thumbnail,
			Run: func(ctx context.Context, progress Progress) error {
				_, err := j.stage(ctx, selection.ThumbnailPipelineName, selection.Request{Mode: selection.ScheduledTask}, j.Thumbnails, workers.CPU, progress)
				return err
			},
		})
	}
	if j.Subtitles != nil {
		out = append(out, Task{
			Name:        selection.SubtitlePipelineName,
			Description: "Refresh external subtitles",
			Interval:    j.Intervals.Subtitle,
			Run: func(ctx context.Context, progress Progress) error {
				_, err := j.stage(ctx, selection.SubtitlePipelineName, selection.Request{Mode: selection.ScheduledTask}, j.Subtitles, workers.IO, progress)
				return err
			},
		})
	}
	return out
}

// stage selects one pipeline's queue and processes it. A pipeline that is
// not configured yields an empty queue.
func (j *Jobs) stage(ctx context.Context, pipeline string, req selection.Request, proc Processor, kind workers.Kind, progress Progress) ([]library.Item, error) {
	p, ok := j.Selector.Pipeline(pipeline)
	if !ok || proc == nil {
		if progress != nil {
			progress(1)
		}
		return nil, nil
	}
	items, err := j.Selector.Select(ctx, p, req)
	if err != nil {
		return nil, fmt.Errorf("%s: select: %w", pipeline, err)
	}
	_, err = RunQueue(ctx, pipeline, items, workers.ForQueue(kind, j.budget()), j.gated(proc.Process), progress)
	return items, err
}

// fingerprint runs the intro detection chain: probing episodes that lack an
// audio stream, extracting title fingerprints, then the season sequences.
// It returns the number of episodes selected for fingerprinting.
func (j *Jobs) fingerprint(ctx context.Context, mode selection.Mode, incoming []library.Item, progress Progress) (int, error) {
	if progress == nil {
		progress = func(float64) {}
	}

	probed, err := j.preExtract(ctx, mode, incoming, Scale(progress, 0, 0.1))
	if err != nil {
		return 0, err
	}
	if probed && len(incoming) > 0 {
		if incoming, err = j.refresh(ctx, incoming); err != nil {
			return 0, err
		}
	}

	p, ok := j.Selector.Pipeline(selection.FingerprintPipelineName)
	if !ok {
		progress(1)
		return 0, nil
	}
	req := selection.Request{Mode: mode, Incoming: incoming}
	if mode == selection.OnDemand {
		req = selection.Request{Mode: mode}
		if len(incoming) > 0 {
			req.Item = &incoming[0]
		}
	}
	episodes, err := j.Selector.Select(ctx, p, req)
	if err != nil {
		return 0, fmt.Errorf("%s: select: %w", selection.FingerprintPipelineName, err)
	}
	if len(episodes) == 0 {
		progress(1)
		return 0, nil
	}

	_, err = RunQueue(ctx, selection.FingerprintPipelineName, episodes, workers.ForQueue(workers.Mixed, j.budget()),
		j.gated(j.Fingerprints.Process), Scale(progress, 0.1, 0.5))
	if err != nil {
		return len(episodes), err
	}

	_, err = j.Seasons.RunSeasons(ctx, episodes, fingerprint.Progress(Scale(progress, 0.5, 1)))
	return len(episodes), err
}

// preExtract probes the episodes the fingerprint engine cannot read yet. An
// on-demand item is probed directly.
func (j *Jobs) preExtract(ctx context.Context, mode selection.Mode, incoming []library.Item, progress Progress) (bool, error) {
	if j.MediaInfo == nil {
		progress(1)
		return false, nil
	}
	if mode == selection.OnDemand {
		if len(incoming) == 0 || incoming[0].HasAudioStream {
			progress(1)
			return false, nil
		}
		err := j.MediaInfo.Process(ctx, incoming[0])
		progress(1)
		return err == nil, err
	}
	probed, err := j.stage(ctx, selection.IntroPreExtractPipelineName,
		selection.Request{Mode: mode, Incoming: incoming}, j.MediaInfo, workers.Mixed, progress)
	return len(probed) > 0, err
}

// ProcessItem runs one pipeline for a single item on demand. It returns the
// number of items that were selected.
func (j *Jobs) ProcessItem(ctx context.Context, pipeline string, item library.Item) (int, error) {
	var proc Processor
	switch pipeline {
	case selection.FingerprintPipelineName:
		if j.Fingerprints == nil || j.Seasons == nil {
			return 0, fmt.Errorf("%s: %w", pipeline, ErrUnknownTask)
		}
		return j.fingerprint(ctx, selection.OnDemand, []library.Item{item}, nil)
	case selection.MediaInfoPipelineName:
		proc = j.MediaInfo
	case selection.ThumbnailPipelineName:
		proc = j.Thumbnails
	case selection.SubtitlePipelineName:
		proc = j.Subtitles
	}
	if proc == nil {
		return 0, fmt.Errorf("%s: %w", pipeline, ErrUnknownTask)
	}
	selected, err := j.stage(ctx, pipeline, selection.Request{Mode: selection.OnDemand, Item: &item}, proc, workers.IO, nil)
	return len(selected), err
}

// CatchUp runs the selected catch-up pipelines over items added by a
// library scan: media info first, then subtitles and thumbnails, then intro
// detection. Items are re-read between stages so later stages see the
// results of earlier ones.
func (j *Jobs) CatchUp(ctx context.Context, incoming []library.Item) error {
	tasks := j.Options.Catchup()
	if len(tasks) == 0 || len(incoming) == 0 {
		return nil
	}
	log := logging.For("CatchUp")
	log.Info("Processing %d new items: %s", len(incoming), tasks.Description())

	items := incoming

	if tasks.Selected(options.CatchupMediaInfo) {
		probed, err := j.stage(ctx, selection.MediaInfoPipelineName, selection.Request{Mode: selection.CatchUpTask, Incoming: items}, j.MediaInfo, workers.Mixed, nil)
		if err != nil {
			return err
		}
		if len(probed) > 0 {
			if items, err = j.refresh(ctx, items); err != nil {
				return err
			}
		}
	}

	if tasks.Selected(options.CatchupSubtitle) {
		if _, err := j.stage(ctx, selection.SubtitlePipelineName, selection.Request{Mode: selection.CatchUpTask, Incoming: items}, j.Subtitles, workers.IO, nil); err != nil {
			return err
		}
	}

	if tasks.Selected(options.CatchupVideoThumbnail) {
		if _, err := j.stage(ctx, selection.ThumbnailPipelineName, selection.Request{Mode: selection.CatchUpTask, Incoming: items}, j.Thumbnails, workers.CPU, nil); err != nil {
			return err
		}
	}

	if tasks.Selected(options.CatchupFingerprint) && j.Fingerprints != nil && j.Seasons != nil {
		if _, err := j.fingerprint(ctx, selection.CatchUpTask, items, nil); err != nil {
			return err
		}
	}
	return nil
}

// refresh re-reads items from the index, dropping those that were removed.
func (j *Jobs) refresh(ctx context.Context, items []library.Item) ([]library.Item, error) {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	fresh, err := j.Index.QueryItems(ctx, library.ItemQuery{IDs: ids, IncludeExtras: true})
	if err != nil {
		return nil, fmt.Errorf("refresh items: %w", err)
	}
	byID := make(map[int64]library.Item, len(fresh))
	for _, item := range fresh {
		byID[item.ID] = item
	}
	out := make([]library.Item, 0, len(items))
	for _, item := range items {
		if f, ok := byID[item.ID]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}
