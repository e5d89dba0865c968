package subtitle

import (
	"context"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"media-assistant/internal/filesystem"
	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/mediatypes"
)

// Store reads and replaces the stored streams of an item.
type Store interface {
	Streams(ctx context.Context, itemID int64) ([]library.MediaStream, error)
	ReplaceExternalSubtitles(ctx context.Context, itemID int64, streams []library.MediaStream) error
}

// Prober describes a subtitle file. *mediainfo.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, input string) (library.MediaInfo, error)
}

// Refresher keeps the external subtitle streams of items in sync with the
// sidecar files next to them.
type Refresher struct {
	store  Store
	prober Prober
	retry  filesystem.RetryConfig
	log    *logging.Logger
}

// NewRefresher returns a Refresher. prober may be nil; probe-only formats
// then keep the codec derived from their extension.
func NewRefresher(store Store, prober Prober) *Refresher {
	return &Refresher{
		store:  store,
		prober: prober,
		retry:  filesystem.DefaultRetryConfig(),
		log:    logging.For("ExternalSubtitle"),
	}
}

// ExternalFiles lists the subtitle files belonging to a video, sorted by
// path. A file belongs to the video when its name is the video's base name,
// optionally followed by "." and language or flag tokens.
func (r *Refresher) ExternalFiles(item library.Item) ([]string, error) {
	dir := filepath.Dir(item.Path)
	base := strings.TrimSuffix(filepath.Base(item.Path), filepath.Ext(item.Path))

	entries, err := filesystem.ReadDirWithRetry(dir, r.retry)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if mediatypes.GetFileType(ext) != mediatypes.FileTypeSubtitle {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if !strings.EqualFold(stem, base) && !strings.HasPrefix(strings.ToLower(stem), strings.ToLower(base)+".") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// StoredFiles returns the paths of the stored external subtitle streams in
// stream order.
func (r *Refresher) StoredFiles(ctx context.Context, itemID int64) ([]string, error) {
	streams, err := r.store.Streams(ctx, itemID)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, s := range streams {
		if s.IsExternal && s.Type == library.StreamSubtitle {
			files = append(files, s.Path)
		}
	}
	return files, nil
}

// HasExternalSubtitleChanged reports whether the sidecar files differ from
// the stored external subtitle list. The comparison is ordinal and
// order-sensitive. Errors reading either side report no change.
func (r *Refresher) HasExternalSubtitleChanged(ctx context.Context, item library.Item) (bool, error) {
	stored, err := r.StoredFiles(ctx, item.ID)
	if err != nil {
		r.log.Debug("Reading stored subtitles of %s failed: %v", item.Path, err)
		return false, nil
	}
	current, err := r.ExternalFiles(item)
	if err != nil {
		r.log.Debug("Listing subtitles of %s failed: %v", item.Path, err)
		return false, nil
	}
	return !slices.Equal(stored, current), nil
}

// UpdateExternalSubtitles rebuilds the external subtitle streams of item from
// its sidecar files.
func (r *Refresher) UpdateExternalSubtitles(ctx context.Context, item library.Item) error {
	files, err := r.ExternalFiles(item)
	if err != nil {
		return err
	}

	streams := make([]library.MediaStream, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream := streamFromName(item, path)

		ext := strings.ToLower(filepath.Ext(path))
		if mediatypes.ProbeSubtitleExtensions[ext] {
			if !r.probe(ctx, path, &stream) {
				r.log.Warn("No result when probing external subtitle file: %s", path)
			}
		}

		r.log.Info("Subtitle Processed: %s", path)
		streams = append(streams, stream)
	}

	return r.store.ReplaceExternalSubtitles(ctx, item.ID, streams)
}

// Process implements the queue item function of the ExternalSubtitle
// pipeline.
func (r *Refresher) Process(ctx context.Context, item library.Item) error {
	return r.UpdateExternalSubtitles(ctx, item)
}

func (r *Refresher) probe(ctx context.Context, path string, stream *library.MediaStream) bool {
	if r.prober == nil {
		return false
	}
	info, err := r.prober.Probe(ctx, path)
	if err != nil {
		r.log.Debug("Probing %s failed: %v", path, err)
		return false
	}
	for _, s := range info.Streams {
		if s.Type != library.StreamSubtitle {
			continue
		}
		if s.Codec != "" {
			stream.Codec = s.Codec
		}
		if s.Language != "" {
			stream.Language = s.Language
		}
		if s.Title != "" {
			stream.Title = s.Title
		}
		return true
	}
	return false
}

// streamFromName derives codec and language from a sidecar file name such as
// "Show S01E01.en.forced.srt".
func streamFromName(item library.Item, path string) library.MediaStream {
	ext := strings.ToLower(filepath.Ext(path))
	stream := library.MediaStream{
		ItemID:     item.ID,
		Type:       library.StreamSubtitle,
		Codec:      strings.TrimPrefix(ext, "."),
		IsExternal: true,
		Path:       path,
	}

	base := strings.TrimSuffix(filepath.Base(item.Path), filepath.Ext(item.Path))
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(stem) <= len(base) {
		return stream
	}
	var flags []string
	for _, token := range strings.Split(stem[len(base)+1:], ".") {
		switch lower := strings.ToLower(token); {
		case lower == "":
		case lower == "forced" || lower == "default" || lower == "sdh" || lower == "cc":
			flags = append(flags, lower)
		case stream.Language == "":
			stream.Language = lower
		}
	}
	stream.Title = strings.Join(flags, " ")
	return stream
}
