package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
	"media-assistant/internal/options"
	"media-assistant/internal/selection"
)

// Store is the part of the library index the season sequence reads and
// writes.
type Store interface {
	QueryItems(ctx context.Context, q library.ItemQuery) ([]library.Item, error)
	GetItem(ctx context.Context, id int64) (library.Item, error)
	SaveMarkers(ctx context.Context, itemID int64, markers []library.Marker) error
	RecordFailure(ctx context.Context, rec library.FailureRecord) error
}

// Progress receives a completion fraction in [0, 1].
type Progress func(float64)

// IsCancellation reports whether err is a cancellation outcome rather than
// a failure. Only the caller's ctx decides: a deadline that expired inside
// an engine call is a failure.
func IsCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Sequencer derives the intro markers of one season at a time.
type Sequencer struct {
	engine Engine
	store  Store
	opts   *options.Store
	log    *logging.Logger
}

// NewSequencer creates a Sequencer.
func NewSequencer(engine Engine, store Store, opts *options.Store) *Sequencer {
	return &Sequencer{
		engine: engine,
		store:  store,
		opts:   opts,
		log:    logging.For(selection.FingerprintPipelineName),
	}
}

func (s *Sequencer) minutes() int {
	return s.opts.Current().IntroSkip.IntroDetectionFingerprintMinutes
}

// RunSeasonSequence computes the season context once over every eligible
// episode, then derives markers for each episode still lacking an intro
// marker. Progress is reported after each episode and ends with exactly
// one 1.0. A context computation failure wraps ErrSeasonFailed; episode
// failures, engine timeouts included, are logged and skipped. Cancellation
// of ctx is checked before each episode and returned as the context's
// error.
func (s *Sequencer) RunSeasonSequence(ctx context.Context, season library.Item, progress Progress) error {
	err := s.runSeasonSequence(ctx, season, progress)
	switch {
	case err == nil:
		metrics.SeasonRunsTotal.WithLabelValues("success").Inc()
	case IsCancellation(ctx, err):
		metrics.SeasonRunsTotal.WithLabelValues("cancelled").Inc()
	default:
		metrics.SeasonRunsTotal.WithLabelValues("failed").Inc()
	}
	return err
}

func (s *Sequencer) runSeasonSequence(ctx context.Context, season library.Item, progress Progress) error {
	if progress == nil {
		progress = func(float64) {}
	}
	minutes := s.minutes()

	q := library.ItemQuery{
		Types:                    []library.ItemType{library.TypeEpisode},
		ParentIDs:                []int64{season.ID},
		MinRunTime:               time.Duration(minutes) * time.Minute,
		HasIntroDetectionFailure: library.Bool(false),
		HasAudioStream:           library.Bool(true),
	}
	all, err := s.store.QueryItems(ctx, q)
	if err != nil {
		return fmt.Errorf("%w: %s: list episodes: %v", ErrSeasonFailed, season.Path, err)
	}
	q.WithoutMarker = library.MarkerIntroStart
	pending, err := s.store.QueryItems(ctx, q)
	if err != nil {
		return fmt.Errorf("%w: %s: list episodes without markers: %v", ErrSeasonFailed, season.Path, err)
	}

	var sc *SeasonContext
	if len(all) > 0 {
		sc, err = s.engine.ComputeSeasonContext(ctx, season, all, minutes)
		if err != nil {
			if IsCancellation(ctx, err) {
				return err
			}
			return fmt.Errorf("%w: %s: %v", ErrSeasonFailed, season.Path, err)
		}
	}

	last := 0.0
	total := float64(len(pending))
	for i, episode := range pending {
		if err := ctx.Err(); err != nil {
			s.log.Info("Season %s cancelled after %d/%d episodes", season.Path, i, len(pending))
			return err
		}

		if err := s.deriveEpisode(ctx, season, sc, episode); err != nil && IsCancellation(ctx, err) {
			return err
		}

		last = float64(i+1) / total
		progress(last)
	}

	if last < 1.0 {
		progress(1.0)
	}
	return nil
}

func (s *Sequencer) deriveEpisode(ctx context.Context, season library.Item, sc *SeasonContext, episode library.Item) error {
	start := time.Now()
	defer func() {
		metrics.PipelineItemDuration.WithLabelValues(selection.FingerprintPipelineName).Observe(time.Since(start).Seconds())
	}()

	markers, err := s.engine.DeriveMarkers(ctx, season, sc, episode)
	if err == nil && len(markers) > 0 {
		err = s.store.SaveMarkers(ctx, episode.ID, markers)
	}

	var permanent *PermanentFailure
	switch {
	case err == nil:
		metrics.PipelineItemsTotal.WithLabelValues(selection.FingerprintPipelineName, "success").Inc()
		s.log.Info("Intro markers updated: %s (%d markers)", episode.Path, len(markers))
	case IsCancellation(ctx, err):
		metrics.PipelineItemsTotal.WithLabelValues(selection.FingerprintPipelineName, "cancelled").Inc()
	case errors.As(err, &permanent):
		metrics.PipelineItemsTotal.WithLabelValues(selection.FingerprintPipelineName, "error").Inc()
		s.log.Warn("Intro detection failed permanently: %s: %s", episode.Path, permanent.Reason)
		rec := library.FailureRecord{ItemID: episode.ID, Reason: permanent.Reason, CreatedAt: time.Now()}
		if recErr := s.store.RecordFailure(ctx, rec); recErr != nil {
			s.log.Error("Failed to record detection failure for %s: %v", episode.Path, recErr)
		}
	default:
		metrics.PipelineItemsTotal.WithLabelValues(selection.FingerprintPipelineName, "error").Inc()
		s.log.Error("Intro marker derivation failed: %s: %v", episode.Path, err)
	}
	return err
}

// CreateTitleFingerprint extracts the audio fingerprint of one episode. It
// is the per-item step that precedes the season sequences.
func (s *Sequencer) CreateTitleFingerprint(ctx context.Context, episode library.Item) error {
	cached, err := s.engine.CreateTitleFingerprint(ctx, episode, s.minutes())
	if err != nil {
		return err
	}
	if cached {
		s.log.Debug("Fingerprint reused: %s", episode.Path)
	} else {
		s.log.Debug("Fingerprint extracted: %s", episode.Path)
	}
	return nil
}
