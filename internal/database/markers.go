package database

import (
	"context"
	"time"

	"media-assistant/internal/library"
)

// HasMarker reports whether an item carries a marker of type t.
func (d *Database) HasMarker(ctx context.Context, itemID int64, t library.MarkerType) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("has_marker", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = d.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM markers WHERE item_id = ? AND type = ?)",
		itemID, string(t)).Scan(&exists)
	return exists, err
}

// Markers returns the markers of an item ordered by position.
func (d *Database) Markers(ctx context.Context, itemID int64) ([]library.Marker, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("markers", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT type, position_ms FROM markers WHERE item_id = ? ORDER BY position_ms, type", itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markers []library.Marker
	for rows.Next() {
		var (
			t  string
			ms int64
		)
		if err = rows.Scan(&t, &ms); err != nil {
			return nil, err
		}
		markers = append(markers, library.Marker{
			ItemID:   itemID,
			Type:     library.MarkerType(t),
			Position: time.Duration(ms) * time.Millisecond,
		})
	}
	err = rows.Err()
	return markers, err
}

// SaveMarkers stores markers on an item, replacing existing markers of the
// same types. A successful save clears any recorded detection failure.
func (d *Database) SaveMarkers(ctx context.Context, itemID int64, markers []library.Marker) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("save_markers", start, err) }()

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

	for _, m := range markers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO markers (item_id, type, position_ms) VALUES (?, ?, ?)
			ON CONFLICT(item_id, type) DO UPDATE SET position_ms = excluded.position_ms
		`, itemID, string(m.Type), m.Position.Milliseconds())
		if err != nil {
			return err
		}
	}
	if len(markers) > 0 {
		if _, err = tx.ExecContext(ctx, "DELETE FROM intro_detection_failures WHERE item_id = ?", itemID); err != nil {
			return err
		}
	}

	err = tx.Commit()
	return err
}

// ClearMarkers removes the markers of the given types from an item and
// returns how many were removed.
func (d *Database) ClearMarkers(ctx context.Context, itemID int64, types ...library.MarkerType) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("clear_markers", start, err) }()

	if len(types) == 0 {
		return 0, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	args := []any{itemID}
	res, err := d.db.ExecContext(ctx,
		"DELETE FROM markers WHERE item_id = ? AND "+inClause("type", types, &args), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if n > 0 {
		d.observeRows("clear_markers", n)
	}
	return n, err
}

// RecordFailure stores a permanent detection failure for an item.
func (d *Database) RecordFailure(ctx context.Context, rec library.FailureRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_failure", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO intro_detection_failures (item_id, reason, created_at) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET reason = excluded.reason, created_at = excluded.created_at
	`, rec.ItemID, rec.Reason, created.Unix())
	return err
}

// HasIntroDetectionFailure reports whether a failure was recorded for an
// item.
func (d *Database) HasIntroDetectionFailure(ctx context.Context, itemID int64) (bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("has_failure", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err = d.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM intro_detection_failures WHERE item_id = ?)", itemID).Scan(&exists)
	return exists, err
}

// ClearFailures removes recorded detection failures. With no ids every
// failure is removed. It returns how many were removed.
func (d *Database) ClearFailures(ctx context.Context, itemIDs ...int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("clear_failures", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := "DELETE FROM intro_detection_failures"
	var args []any
	if len(itemIDs) > 0 {
		query += " WHERE " + inClause("item_id", itemIDs, &args)
	}
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return n, err
}
