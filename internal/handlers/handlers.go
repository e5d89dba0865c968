package handlers

import (
	"context"

	"media-assistant/internal/favorites"
	"media-assistant/internal/fingerprint"
	"media-assistant/internal/indexer"
	"media-assistant/internal/library"
	"media-assistant/internal/options"
	"media-assistant/internal/selection"
	"media-assistant/internal/tasks"
)

// Index reads the library index.
type Index interface {
	GetItem(ctx context.Context, id int64) (library.Item, error)
	Libraries(ctx context.Context) ([]library.Library, error)
}

// FavoriteStore records per-user favorites.
type FavoriteStore interface {
	SetFavorite(ctx context.Context, userID string, itemID int64, favorite bool) error
}

// Indexer is the library scanner.
type Indexer interface {
	TriggerIndex()
	GetHealthStatus() indexer.HealthStatus
}

// ItemProcessor runs one pipeline for a single item. *tasks.Jobs
// satisfies it.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, pipeline string, item library.Item) (int, error)
}

// ChapterImages lists and locates extracted chapter images.
type ChapterImages interface {
	Images(itemID int64) ([]string, error)
	ItemDir(itemID int64) string
}

// Deps are the components the API is served from. Images may be nil.
type Deps struct {
	Options   *options.Store
	Selection *selection.Service
	Tasks     *tasks.Manager
	Jobs      ItemProcessor
	Index     Index
	Favorites FavoriteStore
	Markers   fingerprint.MarkerStore
	Expander  *favorites.Expander
	Indexer   Indexer
	Images    ChapterImages
}

// Handlers serves the assistant API.
type Handlers struct {
	opts      *options.Store
	selection *selection.Service
	tasks     *tasks.Manager
	jobs      ItemProcessor
	index     Index
	favorites FavoriteStore
	markers   fingerprint.MarkerStore
	expander  *favorites.Expander
	indexer   Indexer
	images    ChapterImages
}

// New creates the API handlers.
func New(d Deps) *Handlers {
	return &Handlers{
		opts:      d.Options,
		selection: d.Selection,
		tasks:     d.Tasks,
		jobs:      d.Jobs,
		index:     d.Index,
		favorites: d.Favorites,
		markers:   d.Markers,
		expander:  d.Expander,
		indexer:   d.Indexer,
		images:    d.Images,
	}
}
