package mediatypes

import "strings"

// FileType represents the kind of file found in a library location.
type FileType string

const (
	// FileTypeFolder represents a directory.
	FileTypeFolder FileType = "folder"
	// FileTypeVideo represents a playable video file.
	FileTypeVideo FileType = "video"
	// FileTypeShortcut represents a .strm file holding a remote URL.
	FileTypeShortcut FileType = "shortcut"
	// FileTypeSubtitle represents an external subtitle file.
	FileTypeSubtitle FileType = "subtitle"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
	".m2ts": true,
}

// ShortcutExtensions maps file extensions to whether they are shortcut files.
var ShortcutExtensions = map[string]bool{
	".strm": true,
}

// SubtitleExtensions maps file extensions to whether they are external
// subtitle formats.
var SubtitleExtensions = map[string]bool{
	".srt":  true,
	".ass":  true,
	".ssa":  true,
	".vtt":  true,
	".sub":  true,
	".smi":  true,
	".sami": true,
	".mpl":  true,
}

// ProbeSubtitleExtensions are the subtitle formats whose language and codec
// can only be learned by probing the file.
var ProbeSubtitleExtensions = map[string]bool{
	".sub":  true,
	".smi":  true,
	".sami": true,
	".mpl":  true,
}

// ExtraFolders maps folder names (lowercase) to the extra type of the
// videos inside them.
var ExtraFolders = map[string]string{
	"trailers":          "trailer",
	"behind the scenes": "behind-the-scenes",
	"deleted scenes":    "deleted-scene",
	"featurettes":       "featurette",
	"interviews":        "interview",
	"scenes":            "scene",
	"shorts":            "short",
	"clips":             "clip",
	"extras":            "extra",
	"other":             "extra",
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".mkv").
// Returns FileTypeOther if the extension is not recognized.
func GetFileType(ext string) FileType {
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	if ShortcutExtensions[ext] {
		return FileTypeShortcut
	}
	if SubtitleExtensions[ext] {
		return FileTypeSubtitle
	}
	return FileTypeOther
}

// IsPlayable returns true if the extension is a video or a shortcut.
func IsPlayable(ext string) bool {
	t := GetFileType(ext)
	return t == FileTypeVideo || t == FileTypeShortcut
}

// ExtraFolderType returns the extra type for a folder name, or "" when the
// folder holds regular content.
func ExtraFolderType(folder string) string {
	return ExtraFolders[strings.ToLower(strings.TrimSpace(folder))]
}
