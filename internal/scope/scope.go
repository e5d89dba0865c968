package scope

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"media-assistant/internal/library"
)

// FavoritesSentinel is the scope token for the user-favorites virtual scope.
const FavoritesSentinel = "-1"

// Registry enumerates the configured libraries.
type Registry interface {
	Libraries(ctx context.Context) ([]library.Library, error)
}

// Filter selects the libraries a pipeline may operate on.
type Filter func(library.Library) bool

// AllLibraries accepts every library.
func AllLibraries(library.Library) bool { return true }

// TVShowMarkerLibraries accepts TV libraries with marker detection enabled.
func TVShowMarkerLibraries(l library.Library) bool {
	return l.IsTVShows() && l.EnableMarkerDetection
}

// ChapterImageLibraries accepts libraries with chapter image extraction enabled.
func ChapterImageLibraries(l library.Library) bool {
	return l.EnableChapterImageExtraction
}

// Resolution is the outcome of resolving a scope string.
type Resolution struct {
	// PathPrefixes covers the matched libraries, or every eligible library
	// when IncludesAll is set.
	PathPrefixes []string `json:"pathPrefixes"`
	// Libraries are the libraries PathPrefixes were derived from.
	Libraries []library.Library `json:"libraries"`
	// EligiblePrefixes covers every library accepted by the filter,
	// regardless of the ids in the scope string.
	EligiblePrefixes []string `json:"eligiblePrefixes"`
	// EligibleCount is the number of libraries accepted by the filter.
	EligibleCount int `json:"eligibleCount"`
	// IncludesFavorites is set when the scope string holds the sentinel.
	IncludesFavorites bool `json:"includesFavorites"`
	// IncludesAll is set when no valid library id remained.
	IncludesAll bool `json:"includesAll"`
	// SentinelOnly is set when the sentinel is the only configured token.
	SentinelOnly bool `json:"sentinelOnly"`
	// Raw is the scope string the resolution was derived from.
	Raw string `json:"raw"`
}

// Empty reports whether the resolution covers no path.
func (r *Resolution) Empty() bool {
	return r == nil || len(r.PathPrefixes) == 0
}

// Contains reports whether path lies under one of the resolved prefixes.
// Directories match both with and without a trailing separator.
func (r *Resolution) Contains(path string) bool {
	if r == nil || path == "" {
		return false
	}
	candidate := path
	if !strings.HasSuffix(candidate, string(os.PathSeparator)) {
		candidate += string(os.PathSeparator)
	}
	for _, prefix := range r.PathPrefixes {
		if strings.HasPrefix(path, prefix) || strings.HasPrefix(candidate, prefix) {
			return true
		}
	}
	return false
}

// Description returns the human readable scope summary used in task logs:
// NONE when no library is eligible, otherwise the selected library names
// or ALL, preceded by Favorites when the sentinel is present.
func (r *Resolution) Description() string {
	if r == nil || r.EligibleCount == 0 {
		return "NONE"
	}
	var names []string
	if r.IncludesFavorites {
		names = append(names, "Favorites")
	}
	switch {
	case !r.IncludesAll:
		for _, l := range r.Libraries {
			names = append(names, l.Name)
		}
	case !r.SentinelOnly:
		names = append(names, "ALL")
	}
	return strings.Join(names, ", ")
}

// ParseTokens splits a scope string on commas and semicolons, trimming
// whitespace and dropping empty entries.
func ParseTokens(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// ParseIDs returns the numeric ids of a comma or semicolon separated list,
// in order and without duplicates. Non-numeric tokens are skipped.
func ParseIDs(raw string) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, token := range ParseTokens(raw) {
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// NormalizePrefix cleans a library location and terminates it with the path
// separator, so "/media/tv" never matches "/media/tv2".
func NormalizePrefix(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}
	cleaned := filepath.Clean(location)
	if !strings.HasSuffix(cleaned, string(os.PathSeparator)) {
		cleaned += string(os.PathSeparator)
	}
	return cleaned
}

// Resolver turns scope strings into path prefixes against a library registry.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	registry Registry
}

// NewResolver creates a Resolver over registry.
func NewResolver(registry Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve parses raw and matches it against the registry's libraries.
// Unknown ids are dropped. When no valid id remains the result covers every
// library accepted by filter.
func (r *Resolver) Resolve(ctx context.Context, raw string, filter Filter) (*Resolution, error) {
	if filter == nil {
		filter = AllLibraries
	}

	libs, err := r.registry.Libraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}

	known := make(map[int64]struct{}, len(libs))
	for _, l := range libs {
		known[l.ID] = struct{}{}
	}

	res := &Resolution{Raw: raw}
	selected := make(map[int64]struct{})
	tokens := ParseTokens(raw)
	sentinels := 0
	for _, token := range tokens {
		if token == FavoritesSentinel {
			res.IncludesFavorites = true
			sentinels++
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			continue
		}
		if _, ok := known[id]; ok {
			selected[id] = struct{}{}
		}
	}

	res.IncludesAll = len(selected) == 0
	// decided on the configured tokens, so a deleted library next to the
	// sentinel still widens the scope to every eligible library
	res.SentinelOnly = sentinels > 0 && sentinels == len(tokens)

	var eligible []library.Library
	for _, l := range libs {
		if filter(l) {
			eligible = append(eligible, l)
		}
	}
	res.EligibleCount = len(eligible)
	res.EligiblePrefixes = prefixesOf(eligible)

	if res.IncludesAll {
		res.Libraries = eligible
		res.PathPrefixes = res.EligiblePrefixes
		return res, nil
	}

	for _, l := range eligible {
		if _, ok := selected[l.ID]; ok {
			res.Libraries = append(res.Libraries, l)
		}
	}
	res.PathPrefixes = prefixesOf(res.Libraries)
	return res, nil
}

func prefixesOf(libs []library.Library) []string {
	seen := make(map[string]struct{})
	prefixes := []string{}
	for _, l := range libs {
		for _, loc := range l.Locations {
			p := NormalizePrefix(loc)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

// Published holds the process-wide current resolution of one pipeline.
// Updates replace the whole value; readers never observe a partial set.
type Published struct {
	current atomic.Pointer[Resolution]
}

// Store publishes res as the current resolution.
func (p *Published) Store(res *Resolution) {
	p.current.Store(res)
}

// Load returns the current resolution, or nil before the first Store.
func (p *Published) Load() *Resolution {
	return p.current.Load()
}

// InScope reports whether path lies under the current resolution.
func (p *Published) InScope(path string) bool {
	return p.Load().Contains(path)
}

// Empty reports whether the current resolution covers no path.
func (p *Published) Empty() bool {
	return p.Load().Empty()
}
