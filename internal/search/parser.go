// Package search parses mailbox filter text into tag selections and
// free-text filters.
package search

import (
	"strings"

	"github.com/wesm/tagbox/internal/mailbox"
)

// Query is a parsed filter: every tag must be present on a message and every
// text term must match one of its sender, subject or body.
type Query struct {
	Tags      []string               // #tag, tag:, label:, l:
	TextTerms []string               // bare words, "quoted phrases", from:, subject:
	Sort      *mailbox.SortDirection // sort:asc or sort:desc
}

// IsEmpty returns true if the query selects nothing and sets no sort.
func (q *Query) IsEmpty() bool {
	return len(q.Tags) == 0 && len(q.TextTerms) == 0 && q.Sort == nil
}

// Filterable is the part of the mailbox model a Query drives.
type Filterable interface {
	ClearSelectedTags()
	SelectTag(label string)
	SetTextFilters(list []string)
	SetSortDirection(dir mailbox.SortDirection)
}

// Apply replaces the tag selection and text filters of m with the query's,
// and sets the sort direction when the query names one.
func (q *Query) Apply(m Filterable) {
	m.ClearSelectedTags()
	for _, tag := range q.Tags {
		m.SelectTag(tag)
	}
	m.SetTextFilters(q.TextTerms)
	if q.Sort != nil {
		m.SetSortDirection(*q.Sort)
	}
}

// String renders the query back into filter text.
func (q *Query) String() string {
	var parts []string
	for _, tag := range q.Tags {
		if strings.ContainsAny(tag, " \t\"") {
			parts = append(parts, `tag:"`+tag+`"`)
		} else {
			parts = append(parts, "#"+tag)
		}
	}
	for _, term := range q.TextTerms {
		if strings.ContainsAny(term, " \t:#") {
			parts = append(parts, `"`+term+`"`)
		} else {
			parts = append(parts, term)
		}
	}
	if q.Sort != nil {
		parts = append(parts, "sort:"+q.Sort.String())
	}
	return strings.Join(parts, " ")
}

// operatorFn applies a parsed operator:value pair to the query. It returns
// false when the value is not acceptable, in which case the whole token is
// kept as a text term.
type operatorFn func(q *Query, value string) bool

func addTag(q *Query, v string) bool {
	if v == "" {
		return false
	}
	q.Tags = appendUnique(q.Tags, v)
	return true
}

func addText(q *Query, v string) bool {
	if v == "" {
		return false
	}
	q.TextTerms = appendUnique(q.TextTerms, v)
	return true
}

// operators maps operator names to their handler functions.
var operators = map[string]operatorFn{
	"tag":     addTag,
	"label":   addTag,
	"l":       addTag,
	"from":    addText,
	"subject": addText,
	"sort": func(q *Query, v string) bool {
		dir, err := mailbox.ParseSortDirection(v)
		if err != nil || v == "" {
			return false
		}
		q.Sort = &dir
		return true
	},
}

// Parse parses filter text into a Query.
//
// Supported syntax:
//   - #label, tag:label, label:label, l:label - require a tag
//   - tag:"label with spaces", #"label with spaces"
//   - from:, subject: - text filters (matched against every field)
//   - sort:asc, sort:desc - sort direction
//   - bare words and "quoted phrases" - text filters
func Parse(text string) *Query {
	q := &Query{}
	for _, token := range tokenize(text) {
		if isQuotedPhrase(token) {
			addText(q, unquote(token))
			continue
		}

		if strings.HasPrefix(token, "#") {
			if !addTag(q, unquote(token[1:])) {
				addText(q, token)
			}
			continue
		}

		if idx := strings.Index(token, ":"); idx > 0 {
			op := strings.ToLower(token[:idx])
			value := unquote(token[idx+1:])
			if handler, ok := operators[op]; ok && handler(q, value) {
				continue
			}
		}

		addText(q, token)
	}
	return q
}

// AppendTag adds #label to the end of filter text, unless the last token
// already selects that label (case-insensitive). The result ends with a
// space so further typing starts a new token.
func AppendTag(text, label string) string {
	chip := "#" + label
	if strings.ContainsAny(label, " \t") {
		chip = `#"` + label + `"`
	}
	tokens := tokenize(text)
	if n := len(tokens); n > 0 && strings.EqualFold(tokens[n-1], chip) {
		return text
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chip + " "
	}
	return trimmed + " " + chip + " "
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits filter text on whitespace, keeping quoted phrases,
// op:"quoted value" and #"quoted label" together.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)
	// A quote right after "op:" or a leading "#" belongs to the current token.
	attach := false
	attached := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, char := range text {
		switch {
		case !inQuotes && (char == '"' || (char == '\'' && (current.Len() == 0 || attach))):
			inQuotes = true
			quoteChar = char
			attached = attach
			if attached {
				current.WriteRune('"')
			} else {
				flush()
			}
			attach = false
		case inQuotes && char == quoteChar:
			inQuotes = false
			if attached {
				current.WriteRune('"')
				flush()
			} else if current.Len() > 0 {
				tokens = append(tokens, `"`+current.String()+`"`)
				current.Reset()
			}
			quoteChar = 0
			attached = false
		case !inQuotes && (char == ' ' || char == '\t' || char == '\n'):
			flush()
			attach = false
		default:
			current.WriteRune(char)
			attach = !inQuotes && (char == ':' || (char == '#' && current.Len() == 1))
		}
	}
	flush()

	return tokens
}
