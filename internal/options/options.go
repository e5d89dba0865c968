package options

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"media-assistant/internal/library"
	"media-assistant/internal/workers"
)

// ErrInvalidOptions is returned by Validate for out-of-range settings.
var ErrInvalidOptions = errors.New("invalid options")

// ErrNotApplied is returned by Store.Save when the options were saved and
// published but a listener failed to apply them.
var ErrNotApplied = errors.New("options saved but not fully applied")

// Concurrency and fingerprint length bounds.
const (
	MinConcurrentCount = 1
	MaxConcurrentCount = 20

	MinFingerprintMinutes     = 1
	MaxFingerprintMinutes     = 20
	DefaultFingerprintMinutes = 10
)

// Options is the plugin options document.
type Options struct {
	General          General           `toml:"general" json:"general"`
	MediaInfoExtract MediaInfoExtract  `toml:"media_info_extract" json:"mediaInfoExtract"`
	IntroSkip        IntroSkip         `toml:"intro_skip" json:"introSkip"`
	Libraries        []library.Library `toml:"libraries" json:"libraries"`
}

// General holds settings shared by every pipeline.
type General struct {
	MaxConcurrentCount int    `toml:"max_concurrent_count" json:"maxConcurrentCount"`
	CatchupTaskScope   string `toml:"catchup_task_scope" json:"catchupTaskScope"`
}

// MediaInfoExtract scopes the thumbnail and subtitle pipelines.
type MediaInfoExtract struct {
	LibraryScope string `toml:"library_scope" json:"libraryScope"`
	IncludeExtra bool   `toml:"include_extra" json:"includeExtra"`
}

// IntroSkip scopes the fingerprint pipeline.
type IntroSkip struct {
	// MarkerEnabledLibraryScope bounds the scheduled fingerprint task.
	MarkerEnabledLibraryScope string `toml:"marker_enabled_library_scope" json:"markerEnabledLibraryScope"`
	// LibraryScope bounds fingerprint catch-up on newly added items.
	LibraryScope                     string `toml:"library_scope" json:"libraryScope"`
	IntroDetectionFingerprintMinutes int    `toml:"intro_detection_fingerprint_minutes" json:"introDetectionFingerprintMinutes"`
	ClearIntroShows                  string `toml:"clear_intro_shows" json:"clearIntroShows"`
}

// Default returns the options used when no file exists.
func Default() Options {
	return Options{
		General: General{
			MaxConcurrentCount: workers.ForIO(MaxConcurrentCount / 2),
		},
		IntroSkip: IntroSkip{
			IntroDetectionFingerprintMinutes: DefaultFingerprintMinutes,
		},
	}
}

// Clone returns a deep copy of o.
func (o Options) Clone() Options {
	c := o
	c.Libraries = make([]library.Library, len(o.Libraries))
	for i, l := range o.Libraries {
		l.Locations = append([]string(nil), l.Locations...)
		c.Libraries[i] = l
	}
	return c
}

// normalize fills zero values with defaults.
func (o *Options) normalize() {
	if o.General.MaxConcurrentCount == 0 {
		o.General.MaxConcurrentCount = Default().General.MaxConcurrentCount
	}
	if o.IntroSkip.IntroDetectionFingerprintMinutes == 0 {
		o.IntroSkip.IntroDetectionFingerprintMinutes = DefaultFingerprintMinutes
	}
	o.General.CatchupTaskScope = strings.TrimSpace(o.General.CatchupTaskScope)
}

// Validate checks ranges and library definitions.
func (o Options) Validate() error {
	var problems []string

	if n := o.General.MaxConcurrentCount; n < MinConcurrentCount || n > MaxConcurrentCount {
		problems = append(problems, fmt.Sprintf("max_concurrent_count must be between %d and %d, got %d",
			MinConcurrentCount, MaxConcurrentCount, n))
	}
	if m := o.IntroSkip.IntroDetectionFingerprintMinutes; m < MinFingerprintMinutes || m > MaxFingerprintMinutes {
		problems = append(problems, fmt.Sprintf("intro_detection_fingerprint_minutes must be between %d and %d, got %d",
			MinFingerprintMinutes, MaxFingerprintMinutes, m))
	}
	for _, token := range splitList(o.General.CatchupTaskScope) {
		if _, ok := ParseCatchupTask(token); !ok {
			problems = append(problems, fmt.Sprintf("unknown catch-up task %q", token))
		}
	}

	if ParseCatchupSet(o.General.CatchupTaskScope).Selected(CatchupFingerprint) && !hasMarkerLibrary(o.Libraries) {
		problems = append(problems, "fingerprint catch-up requires a TV library with marker detection enabled")
	}

	seen := make(map[int64]struct{}, len(o.Libraries))
	for _, l := range o.Libraries {
		if l.ID <= 0 {
			problems = append(problems, fmt.Sprintf("library %q must have a positive id", l.Name))
			continue
		}
		if _, dup := seen[l.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate library id %d", l.ID))
		}
		seen[l.ID] = struct{}{}
		if len(l.Locations) == 0 {
			problems = append(problems, fmt.Sprintf("library %d has no locations", l.ID))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(problems, "; "))
	}
	return nil
}

func hasMarkerLibrary(libs []library.Library) bool {
	for _, l := range libs {
		if l.EnableMarkerDetection && l.IsTVShows() {
			return true
		}
	}
	return false
}

// CatchupTask names a pipeline that may run on newly added items.
type CatchupTask int

// Catch-up tasks, in display order.
const (
	CatchupMediaInfo CatchupTask = iota
	CatchupFingerprint
	CatchupVideoThumbnail
	CatchupSubtitle
)

var catchupNames = map[CatchupTask]string{
	CatchupMediaInfo:      "MediaInfo",
	CatchupFingerprint:    "Fingerprint",
	CatchupVideoThumbnail: "VideoThumbnail",
	CatchupSubtitle:       "Subtitle",
}

var catchupDescriptions = map[CatchupTask]string{
	CatchupMediaInfo:      "Media Info",
	CatchupFingerprint:    "Intro Fingerprint",
	CatchupVideoThumbnail: "Video Thumbnail",
	CatchupSubtitle:       "External Subtitle",
}

func (t CatchupTask) String() string {
	if name, ok := catchupNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CatchupTask(%d)", int(t))
}

// Description returns the display name of the task.
func (t CatchupTask) Description() string {
	return catchupDescriptions[t]
}

// ParseCatchupTask parses a task name case-insensitively.
func ParseCatchupTask(s string) (CatchupTask, bool) {
	s = strings.TrimSpace(s)
	for task, name := range catchupNames {
		if strings.EqualFold(name, s) {
			return task, true
		}
	}
	return 0, false
}

// CatchupSet is the parsed catch-up task selection.
type CatchupSet map[CatchupTask]struct{}

// ParseCatchupSet parses a comma separated task list. Unknown names are
// ignored.
func ParseCatchupSet(raw string) CatchupSet {
	set := make(CatchupSet)
	for _, token := range splitList(raw) {
		if task, ok := ParseCatchupTask(token); ok {
			set[task] = struct{}{}
		}
	}
	return set
}

// Selected reports whether any of tasks is in the set.
func (s CatchupSet) Selected(tasks ...CatchupTask) bool {
	for _, t := range tasks {
		if _, ok := s[t]; ok {
			return true
		}
	}
	return false
}

// Description lists the selected tasks in display order.
func (s CatchupSet) Description() string {
	tasks := make([]CatchupTask, 0, len(s))
	for t := range s {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i] < tasks[j] })

	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Description())
	}
	return strings.Join(names, ", ")
}

func splitList(raw string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
