// Package mime parses RFC 5322 messages into the fields tagbox keeps:
// sender, subject, date, keywords and a plain-text body.
package mime

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// Message is a parsed email message.
type Message struct {
	Subject   string
	Date      time.Time
	From      []Address
	MessageID string
	Keywords  []string // from Keywords and X-Keywords headers, in order, deduplicated
	BodyText  string
	BodyHTML  string
	Errors    []string // non-fatal parsing errors
}

// Address is an email address with optional display name.
type Address struct {
	Name  string
	Email string
}

// keywordHeaders are read in order; both carry comma-separated labels.
var keywordHeaders = []string{"Keywords", "X-Keywords"}

// Parse parses raw MIME data into a Message.
func Parse(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Subject:   EnsureUTF8(env.GetHeader("Subject")),
		MessageID: NormalizeMessageID(env.GetHeader("Message-ID")),
		BodyText:  EnsureUTF8(env.Text),
		BodyHTML:  EnsureUTF8(env.HTML),
		From:      parseAddressList(env, "From"),
	}

	if dateStr := env.GetHeader("Date"); dateStr != "" {
		msg.Date = parseDate(dateStr)
	}

	var raws []string
	for _, h := range keywordHeaders {
		raws = append(raws, env.GetHeaderValues(h)...)
	}
	msg.Keywords = parseKeywords(raws)

	for _, e := range env.Errors {
		msg.Errors = append(msg.Errors, e.Error())
	}
	return msg, nil
}

func parseAddressList(env *enmime.Envelope, header string) []Address {
	list, err := env.AddressList(header)
	if err != nil || list == nil {
		return nil
	}
	addresses := make([]Address, 0, len(list))
	for _, addr := range list {
		if addr.Address == "" {
			continue
		}
		addresses = append(addresses, Address{
			Name:  EnsureUTF8(addr.Name),
			Email: strings.ToLower(addr.Address),
		})
	}
	return addresses
}

// NormalizeMessageID strips angle brackets and whitespace from a
// Message-ID header value and repairs its encoding.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return EnsureUTF8(strings.TrimSpace(id))
}

// parseKeywords splits comma-separated keyword header values. Duplicates
// are dropped case-insensitively; the first spelling wins.
func parseKeywords(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range values {
		for _, kw := range strings.Split(v, ",") {
			kw = EnsureUTF8(strings.TrimSpace(kw))
			key := strings.ToLower(kw)
			if kw == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
		}
	}
	return out
}

var dateFormats = []string{
	time.RFC1123Z,                    // "Mon, 02 Jan 2006 15:04:05 -0700"
	time.RFC1123,                     // "Mon, 02 Jan 2006 15:04:05 MST"
	"Mon, 2 Jan 2006 15:04:05 -0700", // single-digit day
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700", // no weekday
	"2 Jan 2006 15:04:05 MST",
	"02 Jan 2006 15:04:05 -0700",
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
}

// parseDate tries the common email date layouts and returns the time in
// UTC, or the zero time when nothing matches. A trailing parenthesized zone
// name such as "(PST)" is ignored.
func parseDate(s string) time.Time {
	s = strings.Join(strings.Fields(s), " ")
	if idx := strings.LastIndex(s, "("); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var (
	blockTagRe  = regexp.MustCompile(`(?i)<(/?)(p|div|br|hr|h[1-6]|li|tr|blockquote|pre|table|ul|ol)[^>]*>`)
	scriptTagRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTagRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headTagRe   = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlTagRe   = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML removes tags, decodes entities and normalizes whitespace. Block
// elements become line breaks so paragraphs survive.
func StripHTML(rawHTML string) string {
	text := scriptTagRe.ReplaceAllString(rawHTML, "")
	text = styleTagRe.ReplaceAllString(text, "")
	text = headTagRe.ReplaceAllString(text, "")
	text = blockTagRe.ReplaceAllString(text, "\n")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	return normalizeLines(text)
}

// normalizeLines converts line endings, collapses runs of spaces within a
// line and limits blank lines to one.
func normalizeLines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}

// GetBodyText returns the plain-text body, falling back to stripped HTML.
func (m *Message) GetBodyText() string {
	if strings.TrimSpace(m.BodyText) != "" {
		return m.BodyText
	}
	if m.BodyHTML != "" {
		return StripHTML(m.BodyHTML)
	}
	return ""
}

// GetFirstFrom returns the first From address, or the zero Address.
func (m *Message) GetFirstFrom() Address {
	if len(m.From) > 0 {
		return m.From[0]
	}
	return Address{}
}

// Paragraphs splits the body text into blank-line separated paragraphs.
func (m *Message) Paragraphs() []string {
	var out []string
	for _, p := range strings.Split(normalizeLines(m.GetBodyText()), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
