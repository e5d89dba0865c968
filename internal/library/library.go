package library

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested item or row does not exist.
var ErrNotFound = errors.New("not found")

// Collection types reported by a library.
const (
	CollectionTVShows = "tvshows"
	CollectionMovies  = "movies"
	CollectionMixed   = "mixed"
)

// Library is a configured media library and its per-library feature flags.
type Library struct {
	ID                           int64    `json:"id" toml:"id"`
	Name                         string   `json:"name" toml:"name"`
	CollectionType               string   `json:"collectionType" toml:"collection_type"`
	Locations                    []string `json:"locations" toml:"locations"`
	EnableMarkerDetection        bool     `json:"enableMarkerDetection" toml:"enable_marker_detection"`
	EnableChapterImageExtraction bool     `json:"enableChapterImageExtraction" toml:"enable_chapter_image_extraction"`
	IntroFingerprintMinutes      int      `json:"introFingerprintMinutes" toml:"-"`
}

// IsTVShows reports whether the library holds TV content. Libraries without a
// collection type are mixed content and qualify too.
func (l Library) IsTVShows() bool {
	return l.CollectionType == "" || strings.EqualFold(l.CollectionType, CollectionTVShows) ||
		strings.EqualFold(l.CollectionType, CollectionMixed)
}

// ItemType classifies an indexed item.
type ItemType string

// Item types
const (
	TypeSeries  ItemType = "series"
	TypeSeason  ItemType = "season"
	TypeEpisode ItemType = "episode"
	TypeMovie   ItemType = "movie"
	TypeVideo   ItemType = "video"
)

// IsLeaf reports whether items of this type are playable.
func (t ItemType) IsLeaf() bool {
	return t == TypeEpisode || t == TypeMovie || t == TypeVideo
}

// ExtraType identifies bonus content attached to an owner item.
type ExtraType string

// Extra types, named after the folder conventions the indexer recognizes.
const (
	ExtraNone            ExtraType = ""
	ExtraTrailer         ExtraType = "trailer"
	ExtraBehindTheScenes ExtraType = "behind-the-scenes"
	ExtraDeletedScene    ExtraType = "deleted-scene"
	ExtraFeaturette      ExtraType = "featurette"
	ExtraInterview       ExtraType = "interview"
	ExtraScene           ExtraType = "scene"
	ExtraShort           ExtraType = "short"
	ExtraClip            ExtraType = "clip"
	ExtraOther           ExtraType = "extra"
)

// BonusExtraTypes is the allow-list of extra types processed alongside their
// owners when bonus content is enabled. Trailers are excluded.
var BonusExtraTypes = []ExtraType{
	ExtraBehindTheScenes,
	ExtraDeletedScene,
	ExtraFeaturette,
	ExtraInterview,
	ExtraScene,
	ExtraShort,
	ExtraClip,
}

// Item is a single entry in the library index. Playable items (episodes,
// movies, videos, extras) are the work units of the background pipelines.
type Item struct {
	ID                int64         `json:"id"`
	LibraryID         int64         `json:"libraryId"`
	Type              ItemType      `json:"type"`
	Name              string        `json:"name"`
	Path              string        `json:"path"`
	ContainingFolder  string        `json:"containingFolder"`
	ParentID          int64         `json:"parentId,omitempty"`
	SeriesID          int64         `json:"seriesId,omitempty"`
	OwnerID           int64         `json:"ownerId,omitempty"`
	ExtraType         ExtraType     `json:"extraType,omitempty"`
	IsShortcut        bool          `json:"isShortcut"`
	HasAudioStream    bool          `json:"hasAudioStream"`
	HasMediaInfo      bool          `json:"hasMediaInfo"`
	HasChapterImages  bool          `json:"hasChapterImages"`
	RunTime           time.Duration `json:"runTime"`
	IndexNumber       int           `json:"indexNumber,omitempty"`
	ParentIndexNumber int           `json:"parentIndexNumber,omitempty"`
}

// IsExtra reports whether the item is bonus content.
func (i Item) IsExtra() bool {
	return i.ExtraType != ExtraNone
}

// MarkerType identifies a chapter marker written by the fingerprint engine.
type MarkerType string

// Marker types
const (
	MarkerIntroStart   MarkerType = "IntroStart"
	MarkerIntroEnd     MarkerType = "IntroEnd"
	MarkerCreditsStart MarkerType = "CreditsStart"
)

// Marker is a timestamped chapter marker on an item.
type Marker struct {
	ItemID   int64         `json:"itemId"`
	Type     MarkerType    `json:"type"`
	Position time.Duration `json:"position"`
}

// FailureRecord marks an item whose marker detection failed permanently.
type FailureRecord struct {
	ItemID    int64     `json:"itemId"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is an account whose favorites feed the favorites scope.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MediaStream is a probed stream of an item. External subtitle streams carry
// the path of the sidecar file they were read from.
type MediaStream struct {
	ItemID     int64  `json:"itemId"`
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Codec      string `json:"codec"`
	Language   string `json:"language,omitempty"`
	Title      string `json:"title,omitempty"`
	IsExternal bool   `json:"isExternal"`
	Path       string `json:"path,omitempty"`
}

// Stream types
const (
	StreamAudio    = "audio"
	StreamVideo    = "video"
	StreamSubtitle = "subtitle"
)

// ItemQuery selects items from the index. Zero-valued fields do not filter.
// Pointer predicates filter only when set. Extras are excluded unless
// IncludeExtras is set, in which case ExtraTypes (when non-empty) restricts
// the accepted extra types.
type ItemQuery struct {
	IDs                      []int64
	Types                    []ItemType
	PathPrefixes             []string
	ParentIDs                []int64
	SeriesIDs                []int64
	OwnerIDs                 []int64
	IncludeExtras            bool
	ExtrasOnly               bool
	ExtraTypes               []ExtraType
	HasAudioStream           *bool
	HasMediaInfo             *bool
	HasChapterImages         *bool
	WithoutMarker            MarkerType
	HasIntroDetectionFailure *bool
	MinRunTime               time.Duration
	FavoriteOfUser           string
}

// Bool returns a pointer to b, for ItemQuery predicates.
func Bool(b bool) *bool {
	return &b
}

// MediaInfo is the probed description of a playable item.
type MediaInfo struct {
	RunTime        time.Duration
	HasAudioStream bool
	Streams        []MediaStream
}
