// Package mediainfo probes playable items with ffprobe.
//
// Prober wraps the ffprobe executable and converts its JSON output into a
// library.MediaInfo (runtime, audio presence, streams). Extractor stores the
// result, which is what the thumbnail and fingerprint pipelines wait on.
// InputResolver maps shortcut (.strm) items to their target URL when
// SHORTCUT_RESOLUTION is enabled.
package mediainfo
