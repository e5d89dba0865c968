package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
)

// ItemFunc processes one queued item.
type ItemFunc func(ctx context.Context, item library.Item) error

// QueueResult summarizes a RunQueue call.
type QueueResult struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
}

// RunQueue processes items with up to workers goroutines. Item failures are
// logged and counted and never stop the queue. Progress is reported after
// each item and never decreases. When ctx is cancelled the remaining items
// are skipped and ctx.Err() is returned.
func RunQueue(ctx context.Context, name string, items []library.Item, workers int, fn ItemFunc, progress Progress) (QueueResult, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	result := QueueResult{Total: len(items)}
	if len(items) == 0 {
		progress(1)
		return result, nil
	}
	log := logging.For(name)

	var (
		mu        sync.Mutex
		done      atomic.Int64
		lastShown float64
		g         errgroup.Group
	)
	g.SetLimit(max(1, workers))

	report := func() {
		n := done.Add(1)
		p := float64(n) / float64(len(items))
		mu.Lock()
		if p > lastShown {
			lastShown = p
			progress(p)
		}
		mu.Unlock()
	}

	for i, item := range items {
		i, item := i, item
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			}

			start := time.Now()
			err := fn(ctx, item)
			metrics.PipelineItemDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

			mu.Lock()
			switch {
			case err == nil:
				result.Succeeded++
				metrics.PipelineItemsTotal.WithLabelValues(name, "success").Inc()
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				result.Skipped++
				metrics.PipelineItemsTotal.WithLabelValues(name, "cancelled").Inc()
			default:
				result.Failed++
				metrics.PipelineItemsTotal.WithLabelValues(name, "error").Inc()
			}
			mu.Unlock()

			if err != nil && ctx.Err() == nil {
				log.ProgressError(i, len(items), "failed - %s: %v", item.Path, err)
			} else if err == nil {
				log.Progress(i, len(items), "completed - %s", item.Path)
			}
			report()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		result.Skipped = result.Total - result.Succeeded - result.Failed
		log.Info("Queue cancelled: %d succeeded, %d failed, %d skipped", result.Succeeded, result.Failed, result.Skipped)
		return result, err
	}
	log.Info("Queue finished: %d succeeded, %d failed", result.Succeeded, result.Failed)
	return result, nil
}

// Scale maps a sub-step's progress into [from, to] of its parent.
func Scale(progress Progress, from, to float64) Progress {
	if progress == nil {
		return nil
	}
	return func(p float64) {
		progress(from + (to-from)*p)
	}
}
