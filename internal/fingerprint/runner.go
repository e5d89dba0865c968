package fingerprint

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/options"
	"media-assistant/internal/selection"
)

// SeasonResult summarizes a RunSeasons call.
type SeasonResult struct {
	Seasons   int
	Succeeded int
	Failed    int
	Cancelled int
}

// Runner fans a queue of episodes out into concurrent season sequences.
type Runner struct {
	seq   *Sequencer
	store Store
	opts  *options.Store
	log   *logging.Logger
}

// NewRunner creates a Runner.
func NewRunner(seq *Sequencer, store Store, opts *options.Store) *Runner {
	return &Runner{
		seq:   seq,
		store: store,
		opts:  opts,
		log:   logging.For(selection.FingerprintPipelineName),
	}
}

// GroupBySeason returns the distinct season ids of episodes in first-seen
// order. Items without a parent are skipped.
func GroupBySeason(episodes []library.Item) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, e := range episodes {
		if e.ParentID == 0 {
			continue
		}
		if _, ok := seen[e.ParentID]; ok {
			continue
		}
		seen[e.ParentID] = struct{}{}
		ids = append(ids, e.ParentID)
	}
	return ids
}

// RunSeasons runs one season sequence per season of episodes, up to the
// configured concurrency budget at a time. Each season has its own context
// and fails independently. Overall progress is the mean of the season
// fractions and never decreases. The returned error is non-nil only when ctx
// was cancelled.
func (r *Runner) RunSeasons(ctx context.Context, episodes []library.Item, progress Progress) (SeasonResult, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	seasonIDs := GroupBySeason(episodes)
	result := SeasonResult{Seasons: len(seasonIDs)}
	if len(seasonIDs) == 0 {
		progress(1.0)
		return result, nil
	}

	agg := newAggregate(len(seasonIDs), progress)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(max(1, r.opts.Current().General.MaxConcurrentCount))

	for i, id := range seasonIDs {
		i, id := i, id
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			season, err := r.store.GetItem(ctx, id)
			if err == nil {
				err = r.seq.RunSeasonSequence(ctx, season, func(p float64) { agg.set(i, p) })
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Succeeded++
			case IsCancellation(ctx, err):
				result.Cancelled++
			default:
				result.Failed++
				r.log.Error("%v", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		r.log.Info("Season run cancelled: %d succeeded, %d failed", result.Succeeded, result.Failed)
		return result, err
	}
	r.log.Info("Seasons processed: %d succeeded, %d failed", result.Succeeded, result.Failed)
	return result, nil
}

type aggregate struct {
	mu       sync.Mutex
	parts    []float64
	last     float64
	progress Progress
}

func newAggregate(n int, progress Progress) *aggregate {
	return &aggregate{parts: make([]float64, n), progress: progress}
}

func (a *aggregate) set(i int, p float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p <= a.parts[i] {
		return
	}
	a.parts[i] = p
	sum := 0.0
	for _, v := range a.parts {
		sum += v
	}
	mean := sum / float64(len(a.parts))
	if mean > a.last {
		a.last = mean
		a.progress(mean)
	}
}
