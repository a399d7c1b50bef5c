package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wesm/tagbox/internal/mailbox"
)

// AddRelation stores a relation of the given kind from sourceID to
// targetURI and returns its id. Neither end is validated; readers decide
// whether the relation resolves.
func (s *Store) AddRelation(ctx context.Context, kind, sourceID, targetURI string) (string, error) {
	if kind == "" {
		kind = mailbox.RelationHasSubject
	}
	id := NewID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relations (id, kind, source_id, target_uri) VALUES (?, ?, ?, ?)
	`, id, kind, sourceID, targetURI)
	if err != nil {
		return "", fmt.Errorf("insert relation: %w", err)
	}
	return id, nil
}

// TagMessage applies the tag labelled label to a stored message through a
// has-subject relation, creating the tag if needed. The relation targets
// the message's queue URI.
func (s *Store) TagMessage(ctx context.Context, messageID, label string) (*mailbox.Relation, error) {
	mbox, err := s.MessageMailbox(ctx, messageID)
	if err != nil {
		return nil, err
	}
	tag, err := s.EnsureTag(ctx, label, "")
	if err != nil {
		return nil, err
	}
	uri := mailbox.QueueURI(mbox, messageID)
	id, err := s.AddRelation(ctx, mailbox.RelationHasSubject, tag.ID, uri)
	if err != nil {
		return nil, err
	}
	return &mailbox.Relation{
		ID:     id,
		Kind:   mailbox.RelationHasSubject,
		Source: tag,
		Target: mailbox.Ref{URI: uri},
	}, nil
}

// RemoveRelation deletes a relation.
func (s *Store) RemoveRelation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("relation %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListRelations returns every relation in insertion order. Source is set
// only when source_id names a tag. Target.Object is set when the target
// URI names a stored message.
func (s *Store) ListRelations(ctx context.Context) ([]mailbox.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.kind, r.target_uri, t.id, t.label, t.hue
		FROM relations r
		LEFT JOIN tags t ON t.id = r.source_id
		ORDER BY r.rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rels []mailbox.Relation
	targets := make(map[int]string)
	for rows.Next() {
		var rel mailbox.Relation
		var tagID, tagLabel, tagHue sql.NullString
		if err := rows.Scan(&rel.ID, &rel.Kind, &rel.Target.URI, &tagID, &tagLabel, &tagHue); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		if tagID.Valid {
			rel.Source = &mailbox.Tag{ID: tagID.String, Label: tagLabel.String, Hue: tagHue.String}
		}
		if _, objectID, err := mailbox.ParseRefURI(rel.Target.URI); err == nil {
			targets[len(rels)] = objectID
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	if len(targets) == 0 {
		return rels, nil
	}
	ids := make([]string, 0, len(targets))
	seen := make(map[string]bool, len(targets))
	for _, id := range targets {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	msgs, err := s.messagesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range targets {
		if msg, ok := msgs[id]; ok {
			rels[i].Target.Object = msg
		}
	}
	return rels, nil
}
