// Package mailbox holds the message and tag value types together with the
// in-memory mailbox model that filters and sorts them.
package mailbox

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Tag is a colored label that can be attached to messages either literally
// (embedded in the message) or through a relation.
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Hue   string `json:"hue,omitempty"`
}

// Sender identifies who sent a message.
type Sender struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Block is one content block of a message body.
type Block struct {
	Text string `json:"text"`
}

// Properties holds the subject and tagging state of a message. Labels are
// label ids; MergeLabels extends them with the ids of every applied tag.
type Properties struct {
	Subject string   `json:"subject,omitempty"`
	Tags    []Tag    `json:"tags,omitempty"`
	Labels  []string `json:"labels,omitempty"`
}

// Message is a single mail item. A zero Created means the message carries
// no creation time.
type Message struct {
	ID         string     `json:"id"`
	Created    time.Time  `json:"created"`
	Sender     Sender     `json:"sender"`
	Properties Properties `json:"properties"`
	Blocks     []Block    `json:"blocks,omitempty"`
}

// BodyText joins all content blocks with newlines.
func (m *Message) BodyText() string {
	switch len(m.Blocks) {
	case 0:
		return ""
	case 1:
		return m.Blocks[0].Text
	}
	parts := make([]string, len(m.Blocks))
	for i, b := range m.Blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}

// HasCreated reports whether the message carries a creation time.
func (m *Message) HasCreated() bool {
	return !m.Created.IsZero()
}

// URI schemes understood by Ref.
const (
	SchemeQueue  = "queue"
	SchemeObject = "obj"
)

// Ref is a lazy reference to a message. Object is set once the target has
// been loaded; until then only URI is known.
type Ref struct {
	URI    string   `json:"uri,omitempty"`
	Object *Message `json:"-"`
}

// QueueURI builds the indirect identifier of a message stored in a mailbox
// queue.
func QueueURI(mailbox, objectID string) string {
	return (&url.URL{Scheme: SchemeQueue, Host: mailbox, Path: "/" + objectID}).String()
}

// ObjectURI builds a direct object reference that can only be resolved
// once the object is loaded.
func ObjectURI(objectID string) string {
	return SchemeObject + "://" + objectID
}

// ParseRefURI splits a reference URI into its scheme and object id.
func ParseRefURI(raw string) (scheme, objectID string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse ref %q: %w", raw, err)
	}
	switch u.Scheme {
	case SchemeQueue:
		objectID = strings.Trim(u.Path, "/")
		if i := strings.LastIndex(objectID, "/"); i >= 0 {
			objectID = objectID[i+1:]
		}
	case SchemeObject:
		objectID = u.Host
	default:
		return "", "", fmt.Errorf("unsupported ref scheme %q", u.Scheme)
	}
	if objectID == "" {
		return "", "", fmt.Errorf("ref %q has no object id", raw)
	}
	return u.Scheme, objectID, nil
}

// RelationHasSubject is the relation kind linking a tag to the message it
// was applied to.
const RelationHasSubject = "has-subject"

// Relation links a tag (Source) to a message (Target). Source is nil when
// the relation's source object is not a tag.
type Relation struct {
	ID     string `json:"id"`
	Kind   string `json:"kind,omitempty"`
	Source *Tag   `json:"source,omitempty"`
	Target Ref    `json:"target"`
}

// SortDirection orders messages by creation time.
type SortDirection int

const (
	SortDesc SortDirection = iota
	SortAsc
)

func (d SortDirection) String() string {
	if d == SortAsc {
		return "asc"
	}
	return "desc"
}

// Reverse returns the opposite direction.
func (d SortDirection) Reverse() SortDirection {
	if d == SortAsc {
		return SortDesc
	}
	return SortAsc
}

// ParseSortDirection accepts "asc" or "desc" (case-insensitive). An empty
// string yields SortDesc.
func ParseSortDirection(s string) (SortDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "descending":
		return SortDesc, nil
	case "asc", "ascending":
		return SortAsc, nil
	default:
		return SortDesc, fmt.Errorf("invalid sort direction %q (want asc or desc)", s)
	}
}
