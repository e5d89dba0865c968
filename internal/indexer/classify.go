package indexer

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"media-assistant/internal/library"
	"media-assistant/internal/mediatypes"
)

var (
	// S01E02, s1e2, S01.E02
	episodePattern = regexp.MustCompile(`(?i)s(\d{1,3})[ ._-]?e(\d{1,4})`)
	// 1x02
	crossPattern = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,3})\b`)
	// Season 1, Series 02, S3
	seasonFolderPattern = regexp.MustCompile(`(?i)^(?:season|series|s)[ ._-]?(\d{1,3})$`)
	// 02 - Title, E02
	leadingNumberPattern = regexp.MustCompile(`(?i)^e?(\d{1,4})\b`)
)

// Entry is the classification of one playable file.
type Entry struct {
	Path       string
	Type       library.ItemType
	ExtraType  library.ExtraType
	IsShortcut bool

	// SeriesDir and SeasonDir locate the episode's parents. SeasonDir is a
	// virtual path under SeriesDir when the episode sits in the series folder.
	SeriesDir     string
	SeasonDir     string
	SeasonNumber  int
	EpisodeNumber int

	// OwnerDir is the folder holding the item an extra belongs to.
	OwnerDir string
}

// Name returns the display name derived from the file name.
func (e Entry) Name() string {
	base := filepath.Base(e.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Classify decides how a file below a library location is indexed. It
// returns false for files that are not playable.
func Classify(lib library.Library, location, path string) (Entry, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if !mediatypes.IsPlayable(ext) {
		return Entry{}, false
	}

	rel, err := filepath.Rel(location, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Entry{}, false
	}
	dirs := strings.Split(filepath.Dir(rel), string(filepath.Separator))
	if dirs[0] == "." {
		dirs = nil
	}

	e := Entry{
		Path:       path,
		IsShortcut: mediatypes.GetFileType(ext) == mediatypes.FileTypeShortcut,
	}

	for i, d := range dirs {
		if extra := mediatypes.ExtraFolderType(d); extra != "" {
			e.Type = library.TypeVideo
			e.ExtraType = library.ExtraType(extra)
			e.OwnerDir = filepath.Join(append([]string{location}, dirs[:i]...)...)
			return e, true
		}
	}

	if lib.IsTVShows() && len(dirs) > 0 {
		if classifyEpisode(&e, location, dirs, strings.EqualFold(lib.CollectionType, library.CollectionTVShows)) {
			return e, true
		}
	}

	if strings.EqualFold(lib.CollectionType, library.CollectionMovies) {
		e.Type = library.TypeMovie
		return e, true
	}
	e.Type = library.TypeVideo
	return e, true
}

// classifyEpisode fills the episode fields of e. Files in a TV-only library
// are always episodes; mixed libraries need a season folder or an episode
// pattern in the name.
func classifyEpisode(e *Entry, location string, dirs []string, tvOnly bool) bool {
	name := filepath.Base(e.Path)
	season, episode, named := parseEpisodeName(name)

	seasonFromFolder := 0
	hasSeasonFolder := false
	if len(dirs) >= 2 {
		seasonFromFolder, hasSeasonFolder = parseSeasonFolder(dirs[1])
	}

	if !named && !hasSeasonFolder && !tvOnly {
		return false
	}

	e.Type = library.TypeEpisode
	e.SeriesDir = filepath.Join(location, dirs[0])

	switch {
	case hasSeasonFolder:
		e.SeasonNumber = seasonFromFolder
		e.SeasonDir = filepath.Join(e.SeriesDir, dirs[1])
	case named:
		e.SeasonNumber = season
		e.SeasonDir = filepath.Join(e.SeriesDir, "Season "+strconv.Itoa(season))
	default:
		e.SeasonNumber = 1
		e.SeasonDir = filepath.Join(e.SeriesDir, "Season 1")
	}

	if named {
		e.EpisodeNumber = episode
	} else if m := leadingNumberPattern.FindStringSubmatch(name); m != nil {
		e.EpisodeNumber, _ = strconv.Atoi(m[1])
	}
	return true
}

func parseEpisodeName(name string) (season, episode int, ok bool) {
	m := episodePattern.FindStringSubmatch(name)
	if m == nil {
		m = crossPattern.FindStringSubmatch(name)
	}
	if m == nil {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	return season, episode, true
}

func parseSeasonFolder(name string) (int, bool) {
	if strings.EqualFold(strings.TrimSpace(name), "specials") {
		return 0, true
	}
	m := seasonFolderPattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	return n, true
}
