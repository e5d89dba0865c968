package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"media-assistant/internal/library"
)

// SQLite limits bound parameters per statement; id lists are split.
const maxIDsPerQuery = 500

const itemColumns = `i.id, i.library_id, i.type, i.name, i.path, i.containing_folder,
	i.parent_id, i.series_id, i.owner_id, i.extra_type, i.is_shortcut,
	i.has_audio_stream, i.has_media_info, i.has_chapter_images, i.run_time_ms,
	i.index_number, i.parent_index_number`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (library.Item, error) {
	var (
		item      library.Item
		itemType  string
		extraType string
		runTimeMs int64
	)
	err := row.Scan(
		&item.ID, &item.LibraryID, &itemType, &item.Name, &item.Path, &item.ContainingFolder,
		&item.ParentID, &item.SeriesID, &item.OwnerID, &extraType, &item.IsShortcut,
		&item.HasAudioStream, &item.HasMediaInfo, &item.HasChapterImages, &runTimeMs,
		&item.IndexNumber, &item.ParentIndexNumber,
	)
	if err != nil {
		return library.Item{}, err
	}
	item.Type = library.ItemType(itemType)
	item.ExtraType = library.ExtraType(extraType)
	item.RunTime = time.Duration(runTimeMs) * time.Millisecond
	return item, nil
}

// GetItem returns a single item by id.
func (d *Database) GetItem(ctx context.Context, id int64) (library.Item, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_item", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	item, err := scanItem(d.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM items i WHERE i.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return library.Item{}, fmt.Errorf("item %d: %w", id, err)
	}
	return item, err
}

// GetItemByPath returns a single item by path.
func (d *Database) GetItemByPath(ctx context.Context, path string) (library.Item, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_item_by_path", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	item, err := scanItem(d.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM items i WHERE i.path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return library.Item{}, fmt.Errorf("item %q: %w", path, err)
	}
	return item, err
}

// QueryItems returns the items matching q ordered by path then id.
func (d *Database) QueryItems(ctx context.Context, q library.ItemQuery) ([]library.Item, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("query_items", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(q.IDs) <= maxIDsPerQuery {
		var items []library.Item
		items, err = d.queryItems(ctx, q)
		return items, err
	}

	// Chunks are disjoint, so merging needs no de-duplication.
	var all []library.Item
	ids := q.IDs
	for len(ids) > 0 {
		n := min(len(ids), maxIDsPerQuery)
		chunk := q
		chunk.IDs = ids[:n]
		ids = ids[n:]

		var items []library.Item
		items, err = d.queryItems(ctx, chunk)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Path != all[j].Path {
			return all[i].Path < all[j].Path
		}
		return all[i].ID < all[j].ID
	})
	return all, nil
}

func (d *Database) queryItems(ctx context.Context, q library.ItemQuery) ([]library.Item, error) {
	where, args := buildItemFilter(q)

	query := "SELECT " + itemColumns + " FROM items i"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.path, i.id"

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []library.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func inClause[T any](column string, values []T, args *[]any) string {
	for _, v := range values {
		*args = append(*args, v)
	}
	return fmt.Sprintf("%s IN (%s)", column, placeholders(len(values)))
}

func buildItemFilter(q library.ItemQuery) ([]string, []any) {
	var (
		where []string
		args  []any
	)

	if len(q.IDs) > 0 {
		where = append(where, inClause("i.id", q.IDs, &args))
	}
	if len(q.Types) > 0 {
		where = append(where, inClause("i.type", q.Types, &args))
	}
	if len(q.PathPrefixes) > 0 {
		// substr avoids LIKE wildcard escaping in paths; it counts
		// characters, not bytes
		var ors []string
		for _, p := range q.PathPrefixes {
			ors = append(ors, "substr(i.path, 1, ?) = ?")
			args = append(args, utf8.RuneCountInString(p), p)
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if len(q.ParentIDs) > 0 {
		where = append(where, inClause("i.parent_id", q.ParentIDs, &args))
	}
	if len(q.SeriesIDs) > 0 {
		where = append(where, inClause("i.series_id", q.SeriesIDs, &args))
	}
	if len(q.OwnerIDs) > 0 {
		where = append(where, inClause("i.owner_id", q.OwnerIDs, &args))
	}

	switch {
	case !q.IncludeExtras && q.ExtrasOnly:
		where = append(where, "0")
	case !q.IncludeExtras:
		where = append(where, "i.extra_type = ''")
	case q.ExtrasOnly && len(q.ExtraTypes) > 0:
		where = append(where, inClause("i.extra_type", q.ExtraTypes, &args))
	case q.ExtrasOnly:
		where = append(where, "i.extra_type != ''")
	case len(q.ExtraTypes) > 0:
		where = append(where, "(i.extra_type = '' OR "+inClause("i.extra_type", q.ExtraTypes, &args)+")")
	}

	if q.HasAudioStream != nil {
		where = append(where, "i.has_audio_stream = ?")
		args = append(args, *q.HasAudioStream)
	}
	if q.HasMediaInfo != nil {
		where = append(where, "i.has_media_info = ?")
		args = append(args, *q.HasMediaInfo)
	}
	if q.HasChapterImages != nil {
		where = append(where, "i.has_chapter_images = ?")
		args = append(args, *q.HasChapterImages)
	}
	if q.WithoutMarker != "" {
		where = append(where, "NOT EXISTS (SELECT 1 FROM markers m WHERE m.item_id = i.id AND m.type = ?)")
		args = append(args, string(q.WithoutMarker))
	}
	if q.HasIntroDetectionFailure != nil {
		clause := "EXISTS (SELECT 1 FROM intro_detection_failures f WHERE f.item_id = i.id)"
		if !*q.HasIntroDetectionFailure {
			clause = "NOT " + clause
		}
		where = append(where, clause)
	}
	if q.MinRunTime > 0 {
		where = append(where, "i.run_time_ms >= ?")
		args = append(args, q.MinRunTime.Milliseconds())
	}
	if q.FavoriteOfUser != "" {
		where = append(where, "EXISTS (SELECT 1 FROM user_favorites uf WHERE uf.item_id = i.id AND uf.user_id = ?)")
		args = append(args, q.FavoriteOfUser)
	}

	return where, args
}

// UpdateMediaInfo stores the probed media info of an item and replaces its
// embedded streams. External subtitle streams are kept.
func (d *Database) UpdateMediaInfo(ctx context.Context, itemID int64, info library.MediaInfo) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_media_info", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE items SET has_media_info = 1, has_audio_stream = ?, run_time_ms = ?
		WHERE id = ?
	`, info.HasAudioStream, info.RunTime.Milliseconds(), itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("item %d: %w", itemID, ErrNotFound)
		return err
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM media_streams WHERE item_id = ? AND is_external = 0", itemID); err != nil {
		return err
	}
	if err = insertStreams(ctx, tx, itemID, info.Streams, false); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// SetChapterImages records whether chapter images were extracted for an
// item.
func (d *Database) SetChapterImages(ctx context.Context, itemID int64, has bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_chapter_images", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "UPDATE items SET has_chapter_images = ? WHERE id = ?", has, itemID)
	return err
}
