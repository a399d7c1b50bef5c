package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SavedFilter is a named piece of filter text.
type SavedFilter struct {
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveFilter stores filter text under name, replacing any previous text.
func (s *Store) SaveFilter(ctx context.Context, name, text string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("save filter: empty name")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_filters (name, filter_text, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			filter_text = excluded.filter_text,
			updated_at = excluded.updated_at
	`, name, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save filter %q: %w", name, err)
	}
	return nil
}

// GetFilter returns one saved filter.
func (s *Store) GetFilter(ctx context.Context, name string) (*SavedFilter, error) {
	var f SavedFilter
	err := s.db.QueryRowContext(ctx, `
		SELECT name, filter_text, updated_at FROM saved_filters WHERE name = ?
	`, name).Scan(&f.Name, &f.Text, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("filter %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query filter: %w", err)
	}
	return &f, nil
}

// ListFilters returns saved filters ordered by name.
func (s *Store) ListFilters(ctx context.Context) ([]SavedFilter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, filter_text, updated_at FROM saved_filters ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var filters []SavedFilter
	for rows.Next() {
		var f SavedFilter
		if err := rows.Scan(&f.Name, &f.Text, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// DeleteFilter removes a saved filter.
func (s *Store) DeleteFilter(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_filters WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("filter %q: %w", name, ErrNotFound)
	}
	return nil
}
