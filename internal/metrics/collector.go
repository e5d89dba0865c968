package metrics

import (
	"context"
	"sync"
	"time"

	"media-assistant/internal/logging"
)

// StatsProvider reports library-wide counts. The database implements it.
type StatsProvider interface {
	LibraryStats(ctx context.Context) (Stats, error)
}

// Stats holds the current library statistics
type Stats struct {
	ItemsByType    map[string]int
	TotalFavorites int
	TotalMarkers   int
	TotalFailures  int
}

var collectorLog = logging.For("metrics")

// Collector refreshes the Library* gauges from a StatsProvider on an
// interval. Stop may be called more than once.
type Collector struct {
	provider StatsProvider
	interval time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	// item types seen by the previous collection, zeroed when they vanish
	seenTypes map[string]struct{}
}

// NewCollector creates a collector; Start begins the loop.
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		provider:  provider,
		interval:  interval,
		done:      make(chan struct{}),
		seenTypes: make(map[string]struct{}),
	}
}

// Start collects once immediately and then on every interval.
func (c *Collector) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop(ctx)
}

// Stop ends the loop and waits for an in-flight collection to return.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel == nil {
			close(c.done)
			return
		}
		c.cancel()
		<-c.done
	})
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)
	c.collectContext(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.collectContext(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectContext(context.Background())
}

func (c *Collector) collectContext(parent context.Context) {
	if c.provider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	stats, err := c.provider.LibraryStats(ctx)
	if err != nil {
		if parent.Err() == nil {
			collectorLog.Warn("Library stats collection failed: %v", err)
		}
		return
	}

	seen := make(map[string]struct{}, len(stats.ItemsByType))
	for t, n := range stats.ItemsByType {
		LibraryItemsTotal.WithLabelValues(t).Set(float64(n))
		seen[t] = struct{}{}
	}
	for t := range c.seenTypes {
		if _, ok := seen[t]; !ok {
			LibraryItemsTotal.WithLabelValues(t).Set(0)
		}
	}
	c.seenTypes = seen

	LibraryFavoritesTotal.Set(float64(stats.TotalFavorites))
	LibraryMarkersTotal.Set(float64(stats.TotalMarkers))
	LibraryFailuresTotal.Set(float64(stats.TotalFailures))

	collectorLog.Debug("items=%v favorites=%d markers=%d failures=%d",
		stats.ItemsByType, stats.TotalFavorites, stats.TotalMarkers, stats.TotalFailures)
}
