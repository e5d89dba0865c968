package favorites

import (
	"context"
	"fmt"

	"media-assistant/internal/library"
)

// Index queries the library index.
type Index interface {
	QueryItems(ctx context.Context, q library.ItemQuery) ([]library.Item, error)
}

// Users enumerates the accounts whose favorites are considered.
type Users interface {
	Users(ctx context.Context) ([]library.User, error)
}

// Options controls expansion.
type Options struct {
	// IncludeExtras adds bonus content owned by the expanded items.
	IncludeExtras bool
	// ExtraTypes is the allow-list of bonus content. Empty means
	// library.BonusExtraTypes.
	ExtraTypes []library.ExtraType
}

// Expander turns favorited series and seasons into playable items.
type Expander struct {
	index Index
	users Users
}

// New creates an Expander.
func New(index Index, users Users) *Expander {
	return &Expander{index: index, users: users}
}

// FavoriteRoots returns the items of the given types favorited by any user,
// restricted to prefixes when non-empty. An item favorited by several users
// appears once, at its first occurrence.
func (e *Expander) FavoriteRoots(ctx context.Context, types []library.ItemType, prefixes []string) ([]library.Item, error) {
	users, err := e.users.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var roots []library.Item
	for _, u := range users {
		items, err := e.index.QueryItems(ctx, library.ItemQuery{
			Types:          types,
			PathPrefixes:   prefixes,
			FavoriteOfUser: u.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("favorites of user %s: %w", u.ID, err)
		}
		roots = append(roots, items...)
	}
	return Dedup(roots), nil
}

// FavoritedIDs returns the ids of every item favorited by any user.
func (e *Expander) FavoritedIDs(ctx context.Context) (map[int64]struct{}, error) {
	roots, err := e.FavoriteRoots(ctx, nil, nil)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]struct{}, len(roots))
	for _, r := range roots {
		ids[r.ID] = struct{}{}
	}
	return ids, nil
}

// FilterFavorited keeps the items that are favorited themselves or through
// their season or series.
func (e *Expander) FilterFavorited(ctx context.Context, items []library.Item) ([]library.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	ids, err := e.FavoritedIDs(ctx)
	if err != nil {
		return nil, err
	}

	var kept []library.Item
	for _, item := range items {
		if isFavorited(item, ids) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func isFavorited(item library.Item, ids map[int64]struct{}) bool {
	for _, id := range []int64{item.ID, item.ParentID, item.SeriesID} {
		if id == 0 {
			continue
		}
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

// Expand resolves roots into playable items. A series expands to the
// episodes of each of its seasons, a season to its episodes, and playable
// items pass through. The result holds each item id once.
func (e *Expander) Expand(ctx context.Context, roots []library.Item, opts Options) ([]library.Item, error) {
	var out []library.Item
	owners := make([]int64, 0, len(roots))

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch root.Type {
		case library.TypeSeries:
			episodes, err := e.expandSeries(ctx, root.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, episodes...)
			owners = append(owners, root.ID)
		case library.TypeSeason:
			episodes, err := e.seasonEpisodes(ctx, root.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, episodes...)
		default:
			if root.Type.IsLeaf() {
				out = append(out, root)
			}
		}
	}

	out = Dedup(out)

	if opts.IncludeExtras {
		for _, item := range out {
			owners = append(owners, item.ID)
		}
		extras, err := e.extras(ctx, owners, opts.ExtraTypes)
		if err != nil {
			return nil, err
		}
		out = Dedup(append(out, extras...))
	}

	return out, nil
}

func (e *Expander) expandSeries(ctx context.Context, seriesID int64) ([]library.Item, error) {
	seasons, err := e.index.QueryItems(ctx, library.ItemQuery{
		Types:     []library.ItemType{library.TypeSeason},
		ParentIDs: []int64{seriesID},
	})
	if err != nil {
		return nil, fmt.Errorf("seasons of series %d: %w", seriesID, err)
	}

	var episodes []library.Item
	for _, season := range seasons {
		items, err := e.seasonEpisodes(ctx, season.ID)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, items...)
	}
	return episodes, nil
}

func (e *Expander) seasonEpisodes(ctx context.Context, seasonID int64) ([]library.Item, error) {
	items, err := e.index.QueryItems(ctx, library.ItemQuery{
		Types:     []library.ItemType{library.TypeEpisode},
		ParentIDs: []int64{seasonID},
	})
	if err != nil {
		return nil, fmt.Errorf("episodes of season %d: %w", seasonID, err)
	}
	return items, nil
}

func (e *Expander) extras(ctx context.Context, owners []int64, types []library.ExtraType) ([]library.Item, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	if len(types) == 0 {
		types = library.BonusExtraTypes
	}
	items, err := e.index.QueryItems(ctx, library.ItemQuery{
		OwnerIDs:      owners,
		IncludeExtras: true,
		ExtrasOnly:    true,
		ExtraTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("extras: %w", err)
	}
	return items, nil
}

// Dedup removes repeated item ids, keeping the first occurrence.
func Dedup(items []library.Item) []library.Item {
	if len(items) == 0 {
		return items
	}
	seen := make(map[int64]struct{}, len(items))
	out := make([]library.Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	return out
}
