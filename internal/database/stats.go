package database

import (
	"context"
	"time"

	"media-assistant/internal/metrics"
)

// LibraryStats implements metrics.StatsProvider.
func (d *Database) LibraryStats(ctx context.Context) (metrics.Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("library_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := metrics.Stats{ItemsByType: make(map[string]int)}

	rows, err := d.db.QueryContext(ctx, `
		SELECT CASE WHEN extra_type != '' THEN 'extra' ELSE type END AS kind, COUNT(*)
		FROM items GROUP BY kind
	`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err = rows.Scan(&kind, &n); err != nil {
			return stats, err
		}
		stats.ItemsByType[kind] = n
	}
	if err = rows.Err(); err != nil {
		return stats, err
	}

	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM user_favorites),
			(SELECT COUNT(*) FROM markers),
			(SELECT COUNT(*) FROM intro_detection_failures)
	`).Scan(&stats.TotalFavorites, &stats.TotalMarkers, &stats.TotalFailures)
	return stats, err
}

func (d *Database) observeRows(operation string, n int64) {
	metrics.DBRowsAffected.WithLabelValues(operation).Observe(float64(n))
}
