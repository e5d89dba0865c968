package database

import (
	"context"
	"database/sql"
	"time"

	"media-assistant/internal/library"
)

// SyncLibraries makes the stored library registry match libs. Libraries
// missing from libs are removed with their locations. The stored fingerprint
// length is preserved.
func (d *Database) SyncLibraries(ctx context.Context, libs []library.Library) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("sync_libraries", start, err) }()

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

	ids := make([]int64, 0, len(libs))
	for _, l := range libs {
		ids = append(ids, l.ID)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO libraries (id, name, collection_type, enable_marker_detection, enable_chapter_image_extraction)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				collection_type = excluded.collection_type,
				enable_marker_detection = excluded.enable_marker_detection,
				enable_chapter_image_extraction = excluded.enable_chapter_image_extraction
		`, l.ID, l.Name, l.CollectionType, l.EnableMarkerDetection, l.EnableChapterImageExtraction)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM library_locations WHERE library_id = ?", l.ID); err != nil {
			return err
		}
		for pos, loc := range l.Locations {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO library_locations (library_id, position, path) VALUES (?, ?, ?)",
				l.ID, pos, loc)
			if err != nil {
				return err
			}
		}
	}

	if len(ids) == 0 {
		_, err = tx.ExecContext(ctx, "DELETE FROM libraries")
	} else {
		var args []any
		_, err = tx.ExecContext(ctx, "DELETE FROM libraries WHERE NOT "+inClause("id", ids, &args), args...)
	}
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// Libraries returns every library with its locations in configured order.
func (d *Database) Libraries(ctx context.Context) ([]library.Library, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("libraries", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT l.id, l.name, l.collection_type, l.enable_marker_detection,
			l.enable_chapter_image_extraction, l.intro_fingerprint_minutes, ll.path
		FROM libraries l
		LEFT JOIN library_locations ll ON ll.library_id = l.id
		ORDER BY l.id, ll.position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var libs []library.Library
	for rows.Next() {
		var (
			l   library.Library
			loc sql.NullString
		)
		if err = rows.Scan(&l.ID, &l.Name, &l.CollectionType, &l.EnableMarkerDetection,
			&l.EnableChapterImageExtraction, &l.IntroFingerprintMinutes, &loc); err != nil {
			return nil, err
		}
		if n := len(libs); n > 0 && libs[n-1].ID == l.ID {
			if loc.Valid {
				libs[n-1].Locations = append(libs[n-1].Locations, loc.String)
			}
			continue
		}
		if loc.Valid {
			l.Locations = []string{loc.String}
		}
		libs = append(libs, l)
	}
	err = rows.Err()
	return libs, err
}

// SetLibraryFingerprintMinutes stores the intro fingerprint length on every
// TV library whose value differs and returns how many changed.
func (d *Database) SetLibraryFingerprintMinutes(ctx context.Context, minutes int) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_library_fingerprint_minutes", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE libraries SET intro_fingerprint_minutes = ?
		WHERE intro_fingerprint_minutes != ?
			AND lower(collection_type) IN ('', ?, ?)
	`, minutes, minutes, library.CollectionTVShows, library.CollectionMixed)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
