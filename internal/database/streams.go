package database

import (
	"context"
	"database/sql"
	"time"

	"media-assistant/internal/library"
)

// Streams returns the media streams of an item ordered by index.
func (d *Database) Streams(ctx context.Context, itemID int64) ([]library.MediaStream, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("streams", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT stream_index, type, codec, language, title, is_external, path
		FROM media_streams WHERE item_id = ? ORDER BY stream_index
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var streams []library.MediaStream
	for rows.Next() {
		s := library.MediaStream{ItemID: itemID}
		if err = rows.Scan(&s.Index, &s.Type, &s.Codec, &s.Language, &s.Title, &s.IsExternal, &s.Path); err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	err = rows.Err()
	return streams, err
}

// ReplaceExternalSubtitles replaces the external subtitle streams of an item.
// Embedded streams are kept; external streams are renumbered after them.
func (d *Database) ReplaceExternalSubtitles(ctx context.Context, itemID int64, streams []library.MediaStream) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("replace_external_subtitles", start, err) }()

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

	if _, err = tx.ExecContext(ctx, "DELETE FROM media_streams WHERE item_id = ? AND is_external = 1", itemID); err != nil {
		return err
	}

	var next sql.NullInt64
	if err = tx.QueryRowContext(ctx,
		"SELECT MAX(stream_index) FROM media_streams WHERE item_id = ?", itemID).Scan(&next); err != nil {
		return err
	}
	base := 0
	if next.Valid {
		base = int(next.Int64) + 1
	}
	renumbered := make([]library.MediaStream, len(streams))
	for i, s := range streams {
		s.Index = base + i
		s.Type = library.StreamSubtitle
		renumbered[i] = s
	}
	if err = insertStreams(ctx, tx, itemID, renumbered, true); err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

func insertStreams(ctx context.Context, tx *sql.Tx, itemID int64, streams []library.MediaStream, external bool) error {
	for _, s := range streams {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO media_streams (item_id, stream_index, type, codec, language, title, is_external, path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(item_id, stream_index) DO UPDATE SET
				type = excluded.type, codec = excluded.codec, language = excluded.language,
				title = excluded.title, is_external = excluded.is_external, path = excluded.path
		`, itemID, s.Index, s.Type, s.Codec, s.Language, s.Title, external, s.Path)
		if err != nil {
			return err
		}
	}
	return nil
}
