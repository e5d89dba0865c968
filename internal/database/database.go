package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = library.ErrNotFound

// Database is the SQLite library index.
type Database struct {
	db      *sql.DB
	dbPath  string
	mu      sync.RWMutex
	stats   IndexStats
	statsMu sync.RWMutex
	txStart time.Time // Track transaction start time for metrics
}

// New opens the database file at dbPath, creating the schema when needed.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS libraries (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		collection_type TEXT NOT NULL DEFAULT '',
		enable_marker_detection INTEGER NOT NULL DEFAULT 0,
		enable_chapter_image_extraction INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS library_locations (
		library_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (library_id, position),
		FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
	);

	-- Indexed items. Parents are referenced by id; 0 means none.
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		containing_folder TEXT NOT NULL DEFAULT '',
		parent_id INTEGER NOT NULL DEFAULT 0,
		series_id INTEGER NOT NULL DEFAULT 0,
		owner_id INTEGER NOT NULL DEFAULT 0,
		extra_type TEXT NOT NULL DEFAULT '',
		is_shortcut INTEGER NOT NULL DEFAULT 0,
		has_audio_stream INTEGER NOT NULL DEFAULT 0,
		has_media_info INTEGER NOT NULL DEFAULT 0,
		has_chapter_images INTEGER NOT NULL DEFAULT 0,
		run_time_ms INTEGER NOT NULL DEFAULT 0,
		index_number INTEGER NOT NULL DEFAULT 0,
		parent_index_number INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id);
	CREATE INDEX IF NOT EXISTS idx_items_series ON items(series_id);
	CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
	CREATE INDEX IF NOT EXISTS idx_items_type ON items(type);
	CREATE INDEX IF NOT EXISTS idx_items_library_type ON items(library_id, type);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS user_favorites (
		user_id TEXT NOT NULL,
		item_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (user_id, item_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_user_favorites_item ON user_favorites(item_id);

	CREATE TABLE IF NOT EXISTS markers (
		item_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		position_ms INTEGER NOT NULL,
		PRIMARY KEY (item_id, type),
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS intro_detection_failures (
		item_id INTEGER PRIMARY KEY,
		reason TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS media_streams (
		item_id INTEGER NOT NULL,
		stream_index INTEGER NOT NULL,
		type TEXT NOT NULL,
		codec TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		is_external INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (item_id, stream_index),
		FOREIGN KEY (item_id) REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err = d.db.ExecContext(ctx, schema)
	if err != nil {
		return err
	}

	err = d.runMigrations(ctx)
	return err
}

// runMigrations applies database schema migrations
func (d *Database) runMigrations(ctx context.Context) error {
	// Migration 1: per-library fingerprint length
	return d.addColumnIfMissing(ctx, "libraries", "intro_fingerprint_minutes",
		"ALTER TABLE libraries ADD COLUMN intro_fingerprint_minutes INTEGER NOT NULL DEFAULT 0")
}

func (d *Database) addColumnIfMissing(ctx context.Context, table, column, ddl string) error {
	var columnExists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?
	`, table, column).Scan(&columnExists)
	if err != nil {
		return fmt.Errorf("failed to check for %s.%s column: %w", table, column, err)
	}
	if columnExists {
		return nil
	}

	logging.Info("Migrating database: adding %s column to %s table", column, table)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to add %s column: %w", column, err)
	}
	logging.Info("Migration complete: %s column added", column)
	return nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.dbPath
}

// BeginBatch starts a transaction for batch operations.
// The caller is responsible for calling EndBatch when done.
func (d *Database) BeginBatch() (*sql.Tx, error) {
	d.mu.Lock()
	txStart := time.Now()

	// Transaction lifetime is managed by EndBatch, not a timeout.
	tx, err := d.db.BeginTx(context.Background(), nil)
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}

	d.txStart = txStart
	return tx, nil
}

// EndBatch commits or rolls back a transaction.
func (d *Database) EndBatch(tx *sql.Tx, err error) error {
	duration := time.Since(d.txStart).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		rbErr := tx.Rollback()
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	return tx.Commit()
}

// UpsertItem inserts or updates an item by path within a transaction and
// returns its id. Probe results (media info, audio, chapter images) are kept
// unless the file's size or modification time changed.
func (d *Database) UpsertItem(tx *sql.Tx, item *library.Item, size int64, modTime time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_item", start, err) }()

	query := `
	INSERT INTO items (library_id, type, name, path, containing_folder, parent_id, series_id, owner_id,
		extra_type, is_shortcut, index_number, parent_index_number, size, mod_time, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		library_id = excluded.library_id,
		type = excluded.type,
		name = excluded.name,
		containing_folder = excluded.containing_folder,
		parent_id = excluded.parent_id,
		series_id = excluded.series_id,
		owner_id = excluded.owner_id,
		extra_type = excluded.extra_type,
		is_shortcut = excluded.is_shortcut,
		index_number = excluded.index_number,
		parent_index_number = excluded.parent_index_number,
		has_media_info = CASE WHEN items.size != excluded.size OR items.mod_time != excluded.mod_time
			THEN 0 ELSE items.has_media_info END,
		has_audio_stream = CASE WHEN items.size != excluded.size OR items.mod_time != excluded.mod_time
			THEN 0 ELSE items.has_audio_stream END,
		has_chapter_images = CASE WHEN items.size != excluded.size OR items.mod_time != excluded.mod_time
			THEN 0 ELSE items.has_chapter_images END,
		size = excluded.size,
		mod_time = excluded.mod_time,
		updated_at = strftime('%s', 'now')
	RETURNING id
	`

	var modUnix int64
	if !modTime.IsZero() {
		modUnix = modTime.Unix()
	}

	var id int64
	err = tx.QueryRowContext(context.Background(), query,
		item.LibraryID, string(item.Type), item.Name, item.Path, item.ContainingFolder,
		item.ParentID, item.SeriesID, item.OwnerID, string(item.ExtraType), item.IsShortcut,
		item.IndexNumber, item.ParentIndexNumber, size, modUnix,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	item.ID = id
	metrics.DBRowsAffected.WithLabelValues("upsert_item").Observe(1)
	return id, nil
}

// DeleteMissingItems removes items that weren't seen since cutoffTime.
// Must be called within a transaction.
func (d *Database) DeleteMissingItems(tx *sql.Tx, cutoffTime time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_missing_items", start, err) }()

	result, err := tx.ExecContext(context.Background(),
		"DELETE FROM items WHERE updated_at < ?",
		cutoffTime.Unix(),
	)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected > 0 {
		metrics.DBRowsAffected.WithLabelValues("delete_missing_items").Observe(float64(rowsAffected))
	}
	return rowsAffected, err
}

// UpdateStats updates the cached index statistics.
func (d *Database) UpdateStats(stats IndexStats) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	d.stats = stats
}

// GetStats returns the cached index statistics.
func (d *Database) GetStats() IndexStats {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}

// Vacuum optimizes the database.
func (d *Database) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	logging.Debug("Database directory is writable")

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		if p == dbPath {
			logging.Warn("Database file is read-only! Mode: %v", info.Mode())
			continue
		}
		logging.Warn("%s is read-only! Mode: %v - this will cause write failures", p, info.Mode())
		if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions of %s: %v", p, chmodErr)
		} else {
			logging.Info("Fixed permissions of %s", p)
		}
	}

	return nil
}
