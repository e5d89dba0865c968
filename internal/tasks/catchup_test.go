package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/library"
	"media-assistant/internal/options"
)

func catchupStore(scope string) *options.Store {
	opts := options.Default()
	opts.General.CatchupTaskScope = scope
	return options.NewMemoryStore(opts)
}

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]library.Item
}

func (b *batchRecorder) run(_ context.Context, items []library.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, items)
	return nil
}

func (b *batchRecorder) all() []library.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []library.Item
	for _, batch := range b.batches {
		out = append(out, batch...)
	}
	return out
}

func TestDispatcherProcessesAddedItems(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDispatcher(catchupStore("MediaInfo"), rec.run)
	d.Start()
	defer d.Stop()

	d.OnItemsAdded(context.Background(), []library.Item{{ID: 1}, {ID: 2}})
	d.OnItemsAdded(context.Background(), []library.Item{{ID: 3}})

	require.Eventually(t, func() bool { return len(rec.all()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	var ids []int64
	for _, item := range rec.all() {
		ids = append(ids, item.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
}

func TestDispatcherDropsItemsWithoutCatchupTasks(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDispatcher(catchupStore(""), rec.run)
	d.Start()

	d.OnItemsAdded(context.Background(), []library.Item{{ID: 1}})
	d.Stop()

	assert.Empty(t, rec.all())
}

func TestDispatcherStopCancelsBatch(t *testing.T) {
	started := make(chan struct{})
	var got error
	d := NewDispatcher(catchupStore("Subtitle"), func(ctx context.Context, _ []library.Item) error {
		close(started)
		<-ctx.Done()
		got = ctx.Err()
		return got
	})
	d.Start()

	d.OnItemsAdded(context.Background(), []library.Item{{ID: 1}})
	<-started
	d.Stop()

	assert.ErrorIs(t, got, context.Canceled)
}

func TestDedupKeepsLastVersionInFirstSeenOrder(t *testing.T) {
	items := []library.Item{
		{ID: 2, Name: "old"},
		{ID: 1},
		{ID: 2, Name: "new"},
	}
	out := dedup(items)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, "new", out[0].Name)
	assert.Equal(t, int64(1), out[1].ID)
}
