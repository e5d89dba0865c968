package selection

import (
	"context"
	"errors"

	"media-assistant/internal/library"
)

// Service exposes the selection entry points of each pipeline.
type Service struct {
	selector *Selector

	Fingerprint     *Pipeline
	IntroPreExtract *Pipeline
	Thumbnail       *Pipeline
	Subtitle        *Pipeline
	MediaInfo       *Pipeline
}

// NewService wires pipelines to a selector. Nil pipelines are skipped.
func NewService(selector *Selector, fingerprint, introPreExtract, thumbnail, subtitle, mediaInfo *Pipeline) *Service {
	return &Service{
		selector:        selector,
		Fingerprint:     fingerprint,
		IntroPreExtract: introPreExtract,
		Thumbnail:       thumbnail,
		Subtitle:        subtitle,
		MediaInfo:       mediaInfo,
	}
}

// Pipelines returns the configured pipelines.
func (s *Service) Pipelines() []*Pipeline {
	var out []*Pipeline
	for _, p := range []*Pipeline{s.MediaInfo, s.IntroPreExtract, s.Fingerprint, s.Thumbnail, s.Subtitle} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Pipeline returns the pipeline with the given name.
func (s *Service) Pipeline(name string) (*Pipeline, bool) {
	for _, p := range s.Pipelines() {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// UpdateScopeFromConfiguration re-resolves and publishes every pipeline's
// scope. It is called on startup and after options are saved.
func (s *Service) UpdateScopeFromConfiguration(ctx context.Context) error {
	var errs []error
	for _, p := range s.Pipelines() {
		if _, err := s.selector.UpdateScope(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Select runs a selection for p.
func (s *Service) Select(ctx context.Context, p *Pipeline, req Request) ([]library.Item, error) {
	if p == nil {
		return nil, nil
	}
	return s.selector.Select(ctx, p, req)
}

// SelectFingerprintWork returns the episodes awaiting intro detection.
// incoming is used by CatchUpTask only.
func (s *Service) SelectFingerprintWork(ctx context.Context, mode Mode, incoming []library.Item) ([]library.Item, error) {
	return s.Select(ctx, s.Fingerprint, Request{Mode: mode, Incoming: incoming})
}

// SelectIntroPreExtractWork returns the in-scope episodes lacking media info.
func (s *Service) SelectIntroPreExtractWork(ctx context.Context) ([]library.Item, error) {
	return s.Select(ctx, s.IntroPreExtract, Request{Mode: ScheduledTask})
}

// SelectThumbnailWork returns the videos awaiting chapter images.
func (s *Service) SelectThumbnailWork(ctx context.Context, mode Mode, incoming []library.Item) ([]library.Item, error) {
	return s.Select(ctx, s.Thumbnail, Request{Mode: mode, Incoming: incoming})
}

// SelectSubtitleWork returns the videos whose external subtitles changed.
func (s *Service) SelectSubtitleWork(ctx context.Context, mode Mode, incoming []library.Item) ([]library.Item, error) {
	return s.Select(ctx, s.Subtitle, Request{Mode: mode, Incoming: incoming})
}

// SelectMediaInfoWork returns the videos that were never probed.
func (s *Service) SelectMediaInfoWork(ctx context.Context, mode Mode, incoming []library.Item) ([]library.Item, error) {
	return s.Select(ctx, s.MediaInfo, Request{Mode: mode, Incoming: incoming})
}

// SelectItem runs an on-demand selection for a single item.
func (s *Service) SelectItem(ctx context.Context, p *Pipeline, item library.Item) ([]library.Item, error) {
	return s.Select(ctx, p, Request{Mode: OnDemand, Item: &item})
}
