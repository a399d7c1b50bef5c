package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wesm/tagbox/internal/mailbox"
)

// DefaultMailbox is used when a message is stored without a mailbox name.
const DefaultMailbox = "inbox"

// UpsertMessage inserts or replaces a message in mbox and returns its id.
// A message without an id gets a new one. Literal tags are stored in order;
// tags unknown to the store are created, and a tag without an id is matched
// to an existing tag by label.
func (s *Store) UpsertMessage(ctx context.Context, mbox string, msg mailbox.Message) (string, error) {
	if mbox == "" {
		mbox = DefaultMailbox
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}

	blocks, err := json.Marshal(nonNil(msg.Blocks))
	if err != nil {
		return "", fmt.Errorf("encode blocks: %w", err)
	}
	labels, err := json.Marshal(nonNil(msg.Properties.Labels))
	if err != nil {
		return "", fmt.Errorf("encode labels: %w", err)
	}
	var created sql.NullTime
	if msg.HasCreated() {
		created = sql.NullTime{Time: msg.Created.UTC(), Valid: true}
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (
				id, mailbox, created_at, sender_name, sender_email,
				subject, blocks_json, labels_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				mailbox = excluded.mailbox,
				created_at = excluded.created_at,
				sender_name = excluded.sender_name,
				sender_email = excluded.sender_email,
				subject = excluded.subject,
				blocks_json = excluded.blocks_json,
				labels_json = excluded.labels_json
		`, msg.ID, mbox, created, msg.Sender.Name, msg.Sender.Email,
			msg.Properties.Subject, string(blocks), string(labels))
		if err != nil {
			return fmt.Errorf("upsert message %s: %w", msg.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM message_tags WHERE message_id = ?`, msg.ID); err != nil {
			return fmt.Errorf("clear message tags: %w", err)
		}
		for i, tag := range msg.Properties.Tags {
			tagID, err := ensureTagTx(ctx, tx, tag)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO message_tags (message_id, position, tag_id) VALUES (?, ?, ?)
			`, msg.ID, i, tagID)
			if err != nil {
				return fmt.Errorf("insert message tag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// ListMessages returns the messages of mbox in insertion order, with their
// literal tags. An empty mbox lists every mailbox.
func (s *Store) ListMessages(ctx context.Context, mbox string) ([]mailbox.Message, error) {
	query := `
		SELECT id, created_at, sender_name, sender_email, subject, blocks_json, labels_json
		FROM messages`
	var args []any
	if mbox != "" {
		query += ` WHERE mailbox = ?`
		args = append(args, mbox)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []mailbox.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachTags(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetMessage returns one message with its literal tags.
func (s *Store) GetMessage(ctx context.Context, id string) (*mailbox.Message, error) {
	msgs, err := s.messagesByID(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	msg, ok := msgs[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return msg, nil
}

// MessageMailbox returns the mailbox a message is stored in.
func (s *Store) MessageMailbox(ctx context.Context, id string) (string, error) {
	var mbox string
	err := s.db.QueryRowContext(ctx, `SELECT mailbox FROM messages WHERE id = ?`, id).Scan(&mbox)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("query mailbox: %w", err)
	}
	return mbox, nil
}

// DeleteMessage removes a message and its literal tags. Relations that
// target it are kept and stop resolving.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// messagesByID loads the given messages, keyed by id. Missing ids are
// absent from the result.
func (s *Store) messagesByID(ctx context.Context, ids []string) (map[string]*mailbox.Message, error) {
	var msgs []mailbox.Message
	err := queryInChunks(ctx, s.db, ids, `
		SELECT id, created_at, sender_name, sender_email, subject, blocks_json, labels_json
		FROM messages WHERE id IN (%s)`,
		func(rows *sql.Rows) error {
			msg, err := scanMessage(rows)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("query messages by id: %w", err)
	}
	if err := s.attachTags(ctx, msgs); err != nil {
		return nil, err
	}

	out := make(map[string]*mailbox.Message, len(msgs))
	for i := range msgs {
		out[msgs[i].ID] = &msgs[i]
	}
	return out, nil
}

// attachTags fills Properties.Tags of msgs from message_tags.
func (s *Store) attachTags(ctx context.Context, msgs []mailbox.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	pos := make(map[string]int, len(msgs))
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		pos[m.ID] = i
		ids[i] = m.ID
	}

	err := queryInChunks(ctx, s.db, ids, `
		SELECT mt.message_id, t.id, t.label, t.hue
		FROM message_tags mt
		JOIN tags t ON t.id = mt.tag_id
		WHERE mt.message_id IN (%s)
		ORDER BY mt.message_id, mt.position`,
		func(rows *sql.Rows) error {
			var msgID string
			var tag mailbox.Tag
			if err := rows.Scan(&msgID, &tag.ID, &tag.Label, &tag.Hue); err != nil {
				return err
			}
			if i, ok := pos[msgID]; ok {
				msgs[i].Properties.Tags = append(msgs[i].Properties.Tags, tag)
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("query message tags: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (mailbox.Message, error) {
	var msg mailbox.Message
	var created sql.NullTime
	var blocksJSON, labelsJSON string
	err := row.Scan(&msg.ID, &created, &msg.Sender.Name, &msg.Sender.Email,
		&msg.Properties.Subject, &blocksJSON, &labelsJSON)
	if err != nil {
		return msg, err
	}
	if created.Valid {
		msg.Created = created.Time
	}
	if err := decodeList(blocksJSON, &msg.Blocks); err != nil {
		return msg, fmt.Errorf("decode blocks of %s: %w", msg.ID, err)
	}
	if err := decodeList(labelsJSON, &msg.Properties.Labels); err != nil {
		return msg, fmt.Errorf("decode labels of %s: %w", msg.ID, err)
	}
	return msg, nil
}

// decodeList decodes a JSON array, leaving dst nil for an empty one.
func decodeList[T any](raw string, dst *[]T) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
