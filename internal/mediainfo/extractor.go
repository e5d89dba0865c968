package mediainfo

import (
	"context"
	"time"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
)

// Store persists probed media info.
type Store interface {
	UpdateMediaInfo(ctx context.Context, itemID int64, info library.MediaInfo) error
}

// Extractor probes items and stores their media info.
type Extractor struct {
	prober   *Prober
	store    Store
	resolver *InputResolver
	log      *logging.Logger
}

// NewExtractor returns an Extractor. prober may be nil, in which case the
// extractor reports itself unavailable.
func NewExtractor(prober *Prober, store Store, resolver *InputResolver) *Extractor {
	return &Extractor{
		prober:   prober,
		store:    store,
		resolver: resolver,
		log:      logging.For("MediaInfoExtract"),
	}
}

// Available reports whether ffprobe was found.
func (e *Extractor) Available() bool {
	return e != nil && e.prober != nil
}

// Prober returns the underlying prober, or nil.
func (e *Extractor) Prober() *Prober {
	if e == nil {
		return nil
	}
	return e.prober
}

// Process probes one item and stores the result.
func (e *Extractor) Process(ctx context.Context, item library.Item) error {
	if !e.Available() {
		return ErrProberUnavailable
	}
	start := time.Now()

	input, err := e.resolver.Input(item)
	if err != nil {
		return err
	}
	info, err := e.prober.Probe(ctx, input)
	if err != nil {
		return err
	}
	if err := e.store.UpdateMediaInfo(ctx, item.ID, info); err != nil {
		return err
	}

	metrics.PipelineItemDuration.WithLabelValues(e.log.Component()).Observe(time.Since(start).Seconds())
	e.log.Debug("Probed %s: runtime %v, %d streams, audio %t", item.Path, info.RunTime, len(info.Streams), info.HasAudioStream)
	return nil
}
