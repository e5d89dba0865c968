package selection

import (
	"context"

	"golang.org/x/sync/errgroup"

	"media-assistant/internal/library"
)

// Predicate evaluates a readiness check against the index.
type Predicate func(ctx context.Context, item library.Item) (bool, error)

// Filter drops candidates for which isAlreadyDone or isPermanentlyFailed
// holds, preserving the order of the remaining items. Predicates run in
// parallel on up to workers goroutines. A nil predicate never holds.
func Filter(ctx context.Context, candidates []library.Item, isAlreadyDone, isPermanentlyFailed Predicate, workers int) ([]library.Item, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if isAlreadyDone == nil && isPermanentlyFailed == nil {
		return append([]library.Item(nil), candidates...), nil
	}
	if workers < 1 {
		workers = 1
	}

	keep := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range candidates {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			skip, err := holds(gctx, isAlreadyDone, candidates[i])
			if err != nil || skip {
				return err
			}
			skip, err = holds(gctx, isPermanentlyFailed, candidates[i])
			if err != nil {
				return err
			}
			keep[i] = !skip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]library.Item, 0, len(candidates))
	for i, item := range candidates {
		if keep[i] {
			out = append(out, item)
		}
	}
	return out, nil
}

func holds(ctx context.Context, p Predicate, item library.Item) (bool, error) {
	if p == nil {
		return false, nil
	}
	return p(ctx, item)
}
