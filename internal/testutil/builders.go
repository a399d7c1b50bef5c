package testutil

import (
	"time"

	"github.com/wesm/tagbox/internal/mailbox"
)

// BaseTime is the default creation time of built messages.
var BaseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Day returns BaseTime plus n days.
func Day(n int) time.Time {
	return BaseTime.AddDate(0, 0, n)
}

// NewTag returns a tag whose id is derived from its label.
func NewTag(label string) mailbox.Tag {
	return mailbox.Tag{ID: "tag-" + label, Label: label, Hue: "blue"}
}

// MessageBuilder provides a fluent API for constructing mailbox.Message in tests.
type MessageBuilder struct {
	m mailbox.Message
}

// NewMessage creates a builder with sensible defaults.
func NewMessage(id string) *MessageBuilder {
	return &MessageBuilder{
		m: mailbox.Message{
			ID:         id,
			Created:    BaseTime,
			Sender:     mailbox.Sender{Name: "Sender", Email: "sender@example.com"},
			Properties: mailbox.Properties{Subject: "Test Subject"},
		},
	}
}

func (b *MessageBuilder) WithCreated(t time.Time) *MessageBuilder {
	b.m.Created = t
	return b
}

// Undated clears the creation time.
func (b *MessageBuilder) Undated() *MessageBuilder {
	b.m.Created = time.Time{}
	return b
}

func (b *MessageBuilder) WithSubject(s string) *MessageBuilder {
	b.m.Properties.Subject = s
	return b
}

func (b *MessageBuilder) WithSender(name, email string) *MessageBuilder {
	b.m.Sender = mailbox.Sender{Name: name, Email: email}
	return b
}

func (b *MessageBuilder) WithBody(blocks ...string) *MessageBuilder {
	b.m.Blocks = nil
	for _, text := range blocks {
		b.m.Blocks = append(b.m.Blocks, mailbox.Block{Text: text})
	}
	return b
}

// WithTags sets literal tags built by NewTag.
func (b *MessageBuilder) WithTags(labels ...string) *MessageBuilder {
	b.m.Properties.Tags = nil
	for _, l := range labels {
		b.m.Properties.Tags = append(b.m.Properties.Tags, NewTag(l))
	}
	return b
}

func (b *MessageBuilder) WithLabels(ids ...string) *MessageBuilder {
	b.m.Properties.Labels = ids
	return b
}

func (b *MessageBuilder) Build() mailbox.Message {
	return b.m
}

func (b *MessageBuilder) BuildPtr() *mailbox.Message {
	m := b.m
	return &m
}

// QueueRelation returns a relation applying tag to messageID through a
// queue:// URI, which resolves without the message being loaded.
func QueueRelation(id string, tag mailbox.Tag, messageID string) mailbox.Relation {
	return mailbox.Relation{
		ID:     id,
		Kind:   mailbox.RelationHasSubject,
		Source: &tag,
		Target: mailbox.Ref{URI: mailbox.QueueURI("inbox", messageID)},
	}
}

// LazyRelation returns a relation whose target is an obj:// reference.
// It resolves only once target is non-nil.
func LazyRelation(id string, tag mailbox.Tag, messageID string, target *mailbox.Message) mailbox.Relation {
	return mailbox.Relation{
		ID:     id,
		Kind:   mailbox.RelationHasSubject,
		Source: &tag,
		Target: mailbox.Ref{URI: mailbox.ObjectURI(messageID), Object: target},
	}
}
