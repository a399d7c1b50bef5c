package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/wesm/tagbox/internal/mailbox"
)

// jsonMessage accepts both the flat import format and the message objects
// that `tagbox list --json` prints.
type jsonMessage struct {
	ID      string         `json:"id"`
	Created *time.Time     `json:"created"`
	Sender  mailbox.Sender `json:"sender"`
	Subject string         `json:"subject"`
	Tags    []jsonTag      `json:"tags"`
	Labels  []string       `json:"labels"`
	Blocks  []jsonBlock    `json:"blocks"`
	Body    string         `json:"body"`

	Properties *struct {
		Subject string    `json:"subject"`
		Tags    []jsonTag `json:"tags"`
		Labels  []string  `json:"labels"`
	} `json:"properties"`
}

// jsonTag is either a bare label string or a tag object.
type jsonTag mailbox.Tag

func (t *jsonTag) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		*t = jsonTag{Label: label}
		return nil
	}
	var tag mailbox.Tag
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	*t = jsonTag(tag)
	return nil
}

// jsonBlock is either a bare string or a block object.
type jsonBlock mailbox.Block

func (b *jsonBlock) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return json.Unmarshal(data, &b.Text)
	}
	var block mailbox.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return err
	}
	*b = jsonBlock(block)
	return nil
}

// ReadJSON decodes a JSON array of messages, or an object whose
// "messages" field holds that array. Tags may be given as label strings;
// the store resolves them to tag ids on write.
func ReadJSON(r io.Reader) ([]mailbox.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}

	var records []jsonMessage
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var wrapper struct {
			Messages []jsonMessage `json:"messages"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		records = wrapper.Messages
	} else if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	msgs := make([]mailbox.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, rec.toMessage())
	}
	return msgs, nil
}

func (rec jsonMessage) toMessage() mailbox.Message {
	subject, tags, labels := rec.Subject, rec.Tags, rec.Labels
	if p := rec.Properties; p != nil {
		if subject == "" {
			subject = p.Subject
		}
		tags = append(tags, p.Tags...)
		labels = append(labels, p.Labels...)
	}

	msg := mailbox.Message{
		ID:     rec.ID,
		Sender: rec.Sender,
		Properties: mailbox.Properties{
			Subject: subject,
			Labels:  labels,
		},
	}
	if rec.Created != nil {
		msg.Created = rec.Created.UTC()
	}
	for _, t := range tags {
		msg.Properties.Tags = append(msg.Properties.Tags, mailbox.Tag(t))
	}
	for _, b := range rec.Blocks {
		msg.Blocks = append(msg.Blocks, mailbox.Block(b))
	}
	if rec.Body != "" {
		msg.Blocks = append(msg.Blocks, mailbox.Block{Text: rec.Body})
	}
	return msg
}
