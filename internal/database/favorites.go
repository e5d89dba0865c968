package database

import (
	"context"
	"time"

	"media-assistant/internal/library"
)

// UpsertUser adds or renames a user.
func (d *Database) UpsertUser(ctx context.Context, u library.User) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_user", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO users (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, u.ID, u.Name)
	return err
}

// Users returns every user ordered by id.
func (d *Database) Users(ctx context.Context) ([]library.User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("users", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT id, name FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []library.User
	for rows.Next() {
		var u library.User
		if err = rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	err = rows.Err()
	return users, err
}

// SetFavorite marks or unmarks an item as a favorite of a user.
func (d *Database) SetFavorite(ctx context.Context, userID string, itemID int64, favorite bool) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_favorite", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if favorite {
		_, err = d.db.ExecContext(ctx, `
			INSERT INTO user_favorites (user_id, item_id) VALUES (?, ?)
			ON CONFLICT(user_id, item_id) DO NOTHING
		`, userID, itemID)
	} else {
		_, err = d.db.ExecContext(ctx,
			"DELETE FROM user_favorites WHERE user_id = ? AND item_id = ?", userID, itemID)
	}
	return err
}
