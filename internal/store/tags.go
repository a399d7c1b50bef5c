package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/wesm/tagbox/internal/mailbox"
)

// DefaultHue is assigned to tags created without a hue.
const DefaultHue = "neutral"

// CreateTag creates a tag. It fails with ErrExists when a tag with the same
// label (case-insensitive) already exists.
func (s *Store) CreateTag(ctx context.Context, label, hue string) (*mailbox.Tag, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("create tag: empty label")
	}
	if _, err := s.TagByLabel(ctx, label); err == nil {
		return nil, fmt.Errorf("tag %q: %w", label, ErrExists)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if hue == "" {
		hue = DefaultHue
	}

	tag := &mailbox.Tag{ID: NewID(), Label: label, Hue: hue}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tags (id, label, hue) VALUES (?, ?, ?)`,
		tag.ID, tag.Label, tag.Hue)
	if err != nil {
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

// EnsureTag returns the tag with the given label, creating it if needed.
func (s *Store) EnsureTag(ctx context.Context, label, hue string) (*mailbox.Tag, error) {
	tag, err := s.TagByLabel(ctx, label)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateTag(ctx, label, hue)
}

// TagByLabel looks a tag up by label, ignoring case. When several tags
// share a label the oldest wins.
func (s *Store) TagByLabel(ctx context.Context, label string) (*mailbox.Tag, error) {
	return s.queryTag(ctx, `
		SELECT id, label, hue FROM tags
		WHERE label = ? COLLATE NOCASE
		ORDER BY rowid LIMIT 1
	`, strings.TrimSpace(label))
}

// GetTag looks a tag up by id.
func (s *Store) GetTag(ctx context.Context, id string) (*mailbox.Tag, error) {
	return s.queryTag(ctx, `SELECT id, label, hue FROM tags WHERE id = ?`, id)
}

func (s *Store) queryTag(ctx context.Context, query string, args ...any) (*mailbox.Tag, error) {
	var tag mailbox.Tag
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&tag.ID, &tag.Label, &tag.Hue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %v: %w", args[0], ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query tag: %w", err)
	}
	return &tag, nil
}

// ListTags returns every tag in creation order.
func (s *Store) ListTags(ctx context.Context) ([]mailbox.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label, hue FROM tags ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []mailbox.Tag
	for rows.Next() {
		var tag mailbox.Tag
		if err := rows.Scan(&tag.ID, &tag.Label, &tag.Hue); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ensureTagTx makes sure a literal tag exists and returns its id. A tag
// with an id is inserted as given unless the id is taken; a tag without
// an id is matched by label or created.
func ensureTagTx(ctx context.Context, tx *sql.Tx, tag mailbox.Tag) (string, error) {
	hue := tag.Hue
	if hue == "" {
		hue = DefaultHue
	}
	if tag.ID != "" {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tags (id, label, hue) VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, tag.ID, tag.Label, hue)
		if err != nil {
			return "", fmt.Errorf("ensure tag %s: %w", tag.ID, err)
		}
		return tag.ID, nil
	}

	label := strings.TrimSpace(tag.Label)
	if label == "" {
		return "", fmt.Errorf("literal tag has neither id nor label")
	}
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM tags WHERE label = ? COLLATE NOCASE ORDER BY rowid LIMIT 1
	`, label).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("look up tag %q: %w", label, err)
	}
	id = NewID()
	if _, err := tx.ExecContext(ctx, `INSERT INTO tags (id, label, hue) VALUES (?, ?, ?)`, id, label, hue); err != nil {
		return "", fmt.Errorf("insert tag %q: %w", label, err)
	}
	return id, nil
}
