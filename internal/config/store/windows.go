package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WindowStateRecord is the persisted geometry and run state of one named window.
type WindowStateRecord struct {
	Name        string
	X           int
	Y           int
	Width       int
	Height      int
	IsMaximized bool
	IsMinimized bool
	IsHidden    bool
}

// GetWindowState returns the persisted state of a named window.
func (s *Store) GetWindowState(ctx context.Context, name string) (WindowStateRecord, error) {
	rec := WindowStateRecord{Name: name}
	err := s.db.QueryRowContext(ctx, `
        SELECT x, y, width, height, is_maximized, is_minimized, is_hidden
        FROM window_states WHERE name = ?`, name).
		Scan(&rec.X, &rec.Y, &rec.Width, &rec.Height, &rec.IsMaximized, &rec.IsMinimized, &rec.IsHidden)
	if errors.Is(err, sql.ErrNoRows) {
		return WindowStateRecord{}, NotFoundError{Entity: "window state", Key: name}
	}
	if err != nil {
		return WindowStateRecord{}, fmt.Errorf("config: get window state %q: %w", name, err)
	}
	return rec, nil
}

// SaveWindowState upserts the state of a named window.
func (s *Store) SaveWindowState(ctx context.Context, rec WindowStateRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO window_states (name, x, y, width, height, is_maximized, is_minimized, is_hidden, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(name) DO UPDATE SET
            x = excluded.x,
            y = excluded.y,
            width = excluded.width,
            height = excluded.height,
            is_maximized = excluded.is_maximized,
            is_minimized = excluded.is_minimized,
            is_hidden = excluded.is_hidden,
            updated_at = CURRENT_TIMESTAMP`,
		rec.Name, rec.X, rec.Y, rec.Width, rec.Height, rec.IsMaximized, rec.IsMinimized, rec.IsHidden)
	if err != nil {
		return fmt.Errorf("config: save window state %q: %w", rec.Name, err)
	}
	return nil
}
