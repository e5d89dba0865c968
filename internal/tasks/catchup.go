package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
	"media-assistant/internal/options"
)

// CatchUpTaskName labels catch-up runs in logs and metrics.
const CatchUpTaskName = "CatchUp"

// CatchUpFunc processes one batch of newly added items.
type CatchUpFunc func(ctx context.Context, items []library.Item) error

// Dispatcher feeds items reported by library scans to the catch-up
// pipelines. Batches are processed one at a time in arrival order.
type Dispatcher struct {
	run  CatchUpFunc
	opts *options.Store

	mu      sync.Mutex
	pending []library.Item
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher creates a Dispatcher running run for each batch.
func NewDispatcher(opts *options.Store, run CatchUpFunc) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		run:    run,
		opts:   opts,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// OnItemsAdded queues items for catch-up processing. It never blocks the
// caller. Items are dropped when no catch-up task is selected.
func (d *Dispatcher) OnItemsAdded(_ context.Context, items []library.Item) {
	if len(items) == 0 {
		return
	}
	if len(d.opts.Catchup()) == 0 {
		logging.Debug("%s - No catch-up task selected, %d new items ignored", CatchUpTaskName, len(items))
		return
	}

	d.mu.Lock()
	d.pending = append(d.pending, items...)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the dispatch loop until Stop is called.
func (d *Dispatcher) Start() {
	go d.loop()
}

// Stop cancels the batch in progress and waits for the loop to exit.
func (d *Dispatcher) Stop() {
	d.cancel()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
		}

		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()
		if len(batch) == 0 {
			continue
		}

		d.process(batch)
	}
}

func (d *Dispatcher) process(batch []library.Item) {
	start := time.Now()
	metrics.TaskRunning.WithLabelValues(CatchUpTaskName).Set(1)
	defer metrics.TaskRunning.WithLabelValues(CatchUpTaskName).Set(0)

	err := d.run(d.ctx, dedup(batch))

	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "cancelled"
	default:
		status = "error"
		logging.Error("%s - Processing %d items failed: %v", CatchUpTaskName, len(batch), err)
	}
	metrics.TaskRunsTotal.WithLabelValues(CatchUpTaskName, status).Inc()
	metrics.TaskLastRunDuration.WithLabelValues(CatchUpTaskName).Set(time.Since(start).Seconds())
}

// dedup keeps the last reported version of each item in first-seen order.
func dedup(items []library.Item) []library.Item {
	index := make(map[int64]int, len(items))
	out := make([]library.Item, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ID]; ok {
			out[i] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}
