package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ServerRecord is the persisted shape of one configured server.
// Theming style is deliberately absent: it is an ephemeral hint derived from
// the running session and never survives a restart.
type ServerRecord struct {
	URL      string
	Title    string
	LastPath string
	Username string
	Password string
	AuthURL  string
	Position int
}

const activeServerKey = "active_server_url"

// ListServers returns all server records in persisted sort order.
func (s *Store) ListServers(ctx context.Context) ([]ServerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT url, title, last_path, username, password, auth_url, position
        FROM servers ORDER BY position ASC, url ASC`)
	if err != nil {
		return nil, fmt.Errorf("config: list servers: %w", err)
	}
	defer rows.Close()

	var result []ServerRecord
	for rows.Next() {
		var rec ServerRecord
		if err := rows.Scan(&rec.URL, &rec.Title, &rec.LastPath, &rec.Username, &rec.Password, &rec.AuthURL, &rec.Position); err != nil {
			return nil, fmt.Errorf("config: scan server row: %w", err)
		}
		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: iterate server rows: %w", err)
	}

	return result, nil
}

// UpsertServer inserts or replaces a server record.
func (s *Store) UpsertServer(ctx context.Context, rec ServerRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO servers (url, title, last_path, username, password, auth_url, position, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(url) DO UPDATE SET
            title = excluded.title,
            last_path = excluded.last_path,
            username = excluded.username,
            password = excluded.password,
            auth_url = excluded.auth_url,
            position = excluded.position,
            updated_at = CURRENT_TIMESTAMP`,
		rec.URL, rec.Title, rec.LastPath, rec.Username, rec.Password, rec.AuthURL, rec.Position)
	if err != nil {
		return fmt.Errorf("config: upsert server %q: %w", rec.URL, err)
	}
	return nil
}

// DeleteServer removes a server record. Deleting an unknown url is not an error.
func (s *Store) DeleteServer(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE url = ?`, url); err != nil {
		return fmt.Errorf("config: delete server %q: %w", url, err)
	}
	return nil
}

// SaveServerOrder rewrites the position column to match the given url order.
// Urls absent from the table are skipped.
func (s *Store) SaveServerOrder(ctx context.Context, urls []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE servers SET position = ?, updated_at = CURRENT_TIMESTAMP WHERE url = ?`)
		if err != nil {
			return fmt.Errorf("config: prepare order update: %w", err)
		}
		defer stmt.Close()

		for i, url := range urls {
			if _, err := stmt.ExecContext(ctx, i, url); err != nil {
				return fmt.Errorf("config: update position for %q: %w", url, err)
			}
		}
		return nil
	})
}

// ActiveServerURL returns the persisted active server url, or "" when no
// server is active.
func (s *Store) ActiveServerURL(ctx context.Context) (string, error) {
	value, err := s.GetSetting(ctx, activeServerKey)
	if IsNotFound(err) {
		return "", nil
	}
	return value, err
}

// SetActiveServerURL persists the active server url. An empty url clears
// the activation.
func (s *Store) SetActiveServerURL(ctx context.Context, url string) error {
	if url == "" {
		return s.DeleteSetting(ctx, activeServerKey)
	}
	return s.SetSetting(ctx, activeServerKey, url)
}
