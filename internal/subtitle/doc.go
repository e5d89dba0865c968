// Package subtitle keeps external subtitle streams in sync with the sidecar
// files beside each video.
//
// HasExternalSubtitleChanged compares the stored external subtitle paths with
// the files on disk (ordinal, order-sensitive) and is the ExternalSubtitle
// pipeline's change predicate. UpdateExternalSubtitles rebuilds the external
// streams; .sub, .smi, .sami and .mpl files are probed with ffprobe since
// their language cannot be read from the name alone.
package subtitle
