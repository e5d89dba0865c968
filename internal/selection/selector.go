package selection

import (
	"context"
	"fmt"
	"slices"
	"time"

	"media-assistant/internal/favorites"
	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
	"media-assistant/internal/options"
	"media-assistant/internal/scope"
)

// Mode is the kind of invocation a selection serves.
type Mode int

// Selection modes
const (
	ScheduledTask Mode = iota
	CatchUpTask
	OnDemand
)

func (m Mode) String() string {
	switch m {
	case ScheduledTask:
		return "scheduled"
	case CatchUpTask:
		return "catchup"
	case OnDemand:
		return "ondemand"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Index queries the library index.
type Index interface {
	QueryItems(ctx context.Context, q library.ItemQuery) ([]library.Item, error)
}

// Request describes one selection call.
type Request struct {
	Mode Mode
	// Incoming holds the items reported by a library scan (CatchUpTask).
	Incoming []library.Item
	// Item is the single requested item (OnDemand).
	Item *library.Item
}

// Config configures a Selector.
type Config struct {
	Index    Index
	Resolver *scope.Resolver
	Expander *favorites.Expander
	Options  *options.Store
	// ShortcutsSupported keeps shortcut items in the queue.
	ShortcutsSupported bool
	// Workers bounds parallel predicate evaluation. Zero means the
	// configured MaxConcurrentCount.
	Workers int
}

// Selector builds work queues for the background pipelines. It only reads
// shared state and is safe for concurrent use.
type Selector struct {
	cfg Config
}

// New creates a Selector.
func New(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

// UpdateScope resolves the pipeline's scheduled scope and publishes it.
func (s *Selector) UpdateScope(ctx context.Context, p *Pipeline) (*scope.Resolution, error) {
	opts := s.cfg.Options.Current()
	res, err := s.cfg.Resolver.Resolve(ctx, p.ScheduledScope(opts), p.LibraryFilter)
	if err != nil {
		return nil, fmt.Errorf("%s: resolve scope: %w", p.Name, err)
	}
	p.published.Store(res)
	metrics.ScopePathPrefixes.WithLabelValues(p.Name).Set(float64(len(res.PathPrefixes)))
	logging.Debug("%s - Scope updated: %s (%d path prefixes)", p.Name, res.Description(), len(res.PathPrefixes))
	return res, nil
}

// Select returns the ordered, deduplicated queue of unprocessed items for
// one pipeline invocation.
func (s *Selector) Select(ctx context.Context, p *Pipeline, req Request) ([]library.Item, error) {
	start := time.Now()
	log := logging.For(p.Name)

	if p.Available != nil && !p.Available() {
		log.Debug("Engine unavailable, nothing selected")
		metrics.SelectionRunsTotal.WithLabelValues(p.Name, req.Mode.String(), "disabled").Inc()
		return nil, nil
	}

	opts := s.cfg.Options.Current()

	var (
		candidates []library.Item
		err        error
	)
	switch req.Mode {
	case ScheduledTask:
		candidates, err = s.scheduled(ctx, p, opts, log)
	case CatchUpTask:
		candidates, err = s.catchUp(ctx, p, opts, req.Incoming, log)
	case OnDemand:
		if req.Item != nil {
			candidates = []library.Item{*req.Item}
		}
	default:
		err = fmt.Errorf("unknown selection mode %d", int(req.Mode))
	}
	if err != nil {
		metrics.SelectionRunsTotal.WithLabelValues(p.Name, req.Mode.String(), "error").Inc()
		return nil, err
	}

	if !s.cfg.ShortcutsSupported {
		candidates = slices.DeleteFunc(candidates, func(i library.Item) bool { return i.IsShortcut })
	}
	candidates = favorites.Dedup(candidates)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = opts.General.MaxConcurrentCount
	}
	items, err := Filter(ctx, candidates, p.IsAlreadyDone, p.IsPermanentlyFailed, workers)
	if err != nil {
		metrics.SelectionRunsTotal.WithLabelValues(p.Name, req.Mode.String(), "error").Inc()
		return nil, err
	}

	metrics.SelectionRunsTotal.WithLabelValues(p.Name, req.Mode.String(), "success").Inc()
	metrics.SelectionCandidates.WithLabelValues(p.Name, req.Mode.String()).Set(float64(len(items)))
	metrics.SelectionDuration.WithLabelValues(p.Name, req.Mode.String()).Observe(time.Since(start).Seconds())

	log.Info("Number of items: %d", len(items))
	return items, nil
}

func (s *Selector) scheduled(ctx context.Context, p *Pipeline, opts *options.Options, log *logging.Logger) ([]library.Item, error) {
	res, err := s.cfg.Resolver.Resolve(ctx, p.ScheduledScope(opts), p.LibraryFilter)
	if err != nil {
		return nil, fmt.Errorf("resolve scope: %w", err)
	}
	log.Info("LibraryScope: %s", res.Description())
	if res.EligibleCount == 0 {
		return nil, nil
	}

	includeExtras := p.includeExtras(opts)
	if p.IncludeExtras != nil {
		log.Info("Include Extra: %v", includeExtras)
	}

	base := p.Query(opts)
	var candidates []library.Item

	if res.IncludesFavorites {
		favs, err := s.favoriteWork(ctx, p, base, res.EligiblePrefixes, includeExtras)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, favs...)
	}

	if !res.SentinelOnly && len(res.PathPrefixes) > 0 {
		q := base
		q.PathPrefixes = res.PathPrefixes
		items, err := s.cfg.Index.QueryItems(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query items: %w", err)
		}
		candidates = append(candidates, items...)

		if includeExtras {
			q.IncludeExtras = true
			q.ExtrasOnly = true
			q.ExtraTypes = library.BonusExtraTypes
			q.Types = nil
			extras, err := s.cfg.Index.QueryItems(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("query extras: %w", err)
			}
			candidates = append(candidates, extras...)
		}
	}

	return candidates, nil
}

// favoriteWork expands favorites within prefixes and re-applies the base
// query to the expanded items, keeping expansion order.
func (s *Selector) favoriteWork(ctx context.Context, p *Pipeline, base library.ItemQuery, prefixes []string, includeExtras bool) ([]library.Item, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	roots, err := s.cfg.Expander.FavoriteRoots(ctx, p.FavoriteTypes, prefixes)
	if err != nil {
		return nil, err
	}
	expanded, err := s.cfg.Expander.Expand(ctx, roots, favorites.Options{IncludeExtras: includeExtras})
	if err != nil {
		return nil, err
	}
	if len(expanded) == 0 {
		return nil, nil
	}

	q := base
	q.IDs = make([]int64, 0, len(expanded))
	for _, item := range expanded {
		q.IDs = append(q.IDs, item.ID)
	}
	if includeExtras {
		q.IncludeExtras = true
		q.ExtraTypes = library.BonusExtraTypes
		q.Types = nil
	}
	matched, err := s.cfg.Index.QueryItems(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}

	byID := make(map[int64]library.Item, len(matched))
	for _, item := range matched {
		byID[item.ID] = item
	}
	out := make([]library.Item, 0, len(matched))
	for _, item := range expanded {
		if m, ok := byID[item.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Selector) catchUp(ctx context.Context, p *Pipeline, opts *options.Options, incoming []library.Item, log *logging.Logger) ([]library.Item, error) {
	if !s.cfg.Options.IsCatchupTaskSelected(p.CatchupTask) {
		log.Debug("Catch-up for %s not selected", p.CatchupTask)
		return nil, nil
	}
	published := p.published.Load()
	if published.Empty() {
		log.Debug("No library in scope, catch-up skipped")
		return nil, nil
	}

	tokens := scope.ParseTokens(p.CatchUpScope(opts))
	includeFavorites := slices.Contains(tokens, scope.FavoritesSentinel)
	pathFilter := len(tokens) == 0 || slices.ContainsFunc(tokens, func(t string) bool {
		return t != scope.FavoritesSentinel
	})

	var candidates []library.Item

	if includeFavorites {
		favored, err := s.cfg.Expander.FilterFavorited(ctx, incoming)
		if err != nil {
			return nil, err
		}
		expanded, err := s.cfg.Expander.Expand(ctx, favored, favorites.Options{IncludeExtras: p.includeExtras(opts)})
		if err != nil {
			return nil, err
		}
		for _, item := range expanded {
			if p.accepts(item) {
				candidates = append(candidates, item)
			}
		}
	}

	if pathFilter {
		for _, item := range incoming {
			if p.accepts(item) && published.Contains(item.ContainingFolder) {
				candidates = append(candidates, item)
			}
		}
	}

	return candidates, nil
}
