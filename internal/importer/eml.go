package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/mime"
)

// ReadEML parses one RFC 5322 message. The message id is the Message-ID
// header, or a content hash when the header is missing, so re-importing a
// file replaces the earlier copy. Keywords become literal tags and the body
// is split into paragraph blocks. A missing or unparseable Date leaves the
// message undated.
func ReadEML(r io.Reader) (mailbox.Message, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return mailbox.Message{}, fmt.Errorf("read message: %w", err)
	}
	parsed, err := mime.Parse(raw)
	if err != nil {
		return mailbox.Message{}, fmt.Errorf("parse message: %w", err)
	}
	return fromMIME(parsed, raw), nil
}

func fromMIME(p *mime.Message, raw []byte) mailbox.Message {
	id := p.MessageID
	if id == "" {
		sum := sha256.Sum256(raw)
		id = "sha256-" + hex.EncodeToString(sum[:16])
	}

	from := p.GetFirstFrom()
	msg := mailbox.Message{
		ID:      id,
		Created: p.Date,
		Sender:  mailbox.Sender{Name: from.Name, Email: from.Email},
		Properties: mailbox.Properties{
			Subject: p.Subject,
		},
	}
	for _, kw := range p.Keywords {
		msg.Properties.Tags = append(msg.Properties.Tags, mailbox.Tag{Label: kw})
	}
	for _, para := range p.Paragraphs() {
		msg.Blocks = append(msg.Blocks, mailbox.Block{Text: para})
	}
	return msg
}
