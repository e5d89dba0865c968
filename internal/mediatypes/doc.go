// Package mediatypes provides shared file classification tables for the
// media-assistant application.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # File Types
//
//	mediatypes.FileTypeFolder   // Directories
//	mediatypes.FileTypeVideo    // Video files (mkv, mp4, ts, etc.)
//	mediatypes.FileTypeShortcut // .strm files pointing at a remote stream
//	mediatypes.FileTypeSubtitle // External subtitles (srt, ass, sub, smi, etc.)
//	mediatypes.FileTypeOther    // Everything else
//
// # Extension Detection
//
//	ext := strings.ToLower(filepath.Ext(filename))
//	if mediatypes.IsPlayable(ext) {
//	    // index as an item
//	}
//
// # Extras
//
// Bonus content lives in conventionally named folders beside the owning
// movie or series ("Featurettes", "Behind The Scenes", ...).
// ExtraFolderType maps such a folder name to its extra type.
package mediatypes
