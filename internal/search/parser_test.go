package search

import (
	"testing"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/testutil"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Query
	}{
		{
			name:  "empty",
			query: "   ",
			want:  Query{},
		},
		{
			name:  "hashtag",
			query: "#urgent",
			want:  Query{Tags: []string{"urgent"}},
		},
		{
			name:  "tag operators",
			query: "tag:work label:home l:later",
			want:  Query{Tags: []string{"work", "home", "later"}},
		},
		{
			name:  "duplicate tags collapse",
			query: "#urgent tag:urgent",
			want:  Query{Tags: []string{"urgent"}},
		},
		{
			name:  "quoted tag with spaces",
			query: `#"needs reply" tag:"follow up"`,
			want:  Query{Tags: []string{"needs reply", "follow up"}},
		},
		{
			name:  "bare text",
			query: "hello world",
			want:  Query{TextTerms: []string{"hello", "world"}},
		},
		{
			name:  "quoted phrase",
			query: `"hello world"`,
			want:  Query{TextTerms: []string{"hello world"}},
		},
		{
			name:  "single quoted phrase",
			query: `'hello world'`,
			want:  Query{TextTerms: []string{"hello world"}},
		},
		{
			name:  "apostrophe inside a word",
			query: "don't panic",
			want:  Query{TextTerms: []string{"don't", "panic"}},
		},
		{
			name:  "from and subject become text filters",
			query: `from:alice subject:"quarterly report"`,
			want:  Query{TextTerms: []string{"alice", "quarterly report"}},
		},
		{
			name:  "sort operator",
			query: "#work sort:asc",
			want:  Query{Tags: []string{"work"}, Sort: sortPtr(mailbox.SortAsc)},
		},
		{
			name:  "invalid sort stays text",
			query: "sort:sideways",
			want:  Query{TextTerms: []string{"sort:sideways"}},
		},
		{
			name:  "unknown operator stays text",
			query: "foo:bar",
			want:  Query{TextTerms: []string{"foo:bar"}},
		},
		{
			name:  "empty operator value stays text",
			query: "tag:",
			want:  Query{TextTerms: []string{"tag:"}},
		},
		{
			name:  "lone hash stays text",
			query: "#",
			want:  Query{TextTerms: []string{"#"}},
		},
		{
			name:  "quoted phrase with colon",
			query: `"re: meeting" #work`,
			want:  Query{TextTerms: []string{"re: meeting"}, Tags: []string{"work"}},
		},
		{
			name:  "url-like text",
			query: "http://example.com",
			want:  Query{TextTerms: []string{"http://example.com"}},
		},
		{
			name:  "tabs and newlines separate tokens",
			query: "a\tb\nc",
			want:  Query{TextTerms: []string{"a", "b", "c"}},
		},
		{
			name:  "mixed",
			query: `#urgent invoice "acme corp" tag:work sort:desc`,
			want: Query{
				Tags:      []string{"urgent", "work"},
				TextTerms: []string{"invoice", "acme corp"},
				Sort:      sortPtr(mailbox.SortDesc),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.query)
			assertQueryEqual(t, *got, tt.want)
		})
	}
}

func TestQuery_IsEmpty(t *testing.T) {
	if !Parse("").IsEmpty() {
		t.Error("empty text should parse to an empty query")
	}
	if Parse("sort:asc").IsEmpty() {
		t.Error("sort-only query should not be empty")
	}
}

func TestQuery_StringRoundTrip(t *testing.T) {
	for _, text := range []string{
		`#urgent invoice`,
		`tag:"needs reply" "acme corp" sort:asc`,
		`"re: hello" #work`,
	} {
		q := Parse(text)
		again := Parse(q.String())
		assertQueryEqual(t, *again, *q)
	}
}

func TestQuery_Apply(t *testing.T) {
	m := &recordingModel{tags: []string{"stale"}}
	Parse("#urgent #work hello sort:asc").Apply(m)

	testutil.AssertStrings(t, m.tags, "urgent", "work")
	testutil.AssertStrings(t, m.text, "hello")
	if m.sort == nil || *m.sort != mailbox.SortAsc {
		t.Errorf("sort = %v, want asc", m.sort)
	}
	if m.clears != 1 {
		t.Errorf("ClearSelectedTags called %d times, want 1", m.clears)
	}

	// Without sort: the direction is left alone.
	m2 := &recordingModel{}
	Parse("hello").Apply(m2)
	if m2.sort != nil {
		t.Errorf("sort = %v, want untouched", *m2.sort)
	}
}

func TestAppendTag(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		label string
		want  string
	}{
		{"empty text", "", "urgent", "#urgent "},
		{"appends after text", "invoice", "urgent", "invoice #urgent "},
		{"trims trailing space", "invoice   ", "urgent", "invoice #urgent "},
		{"last token already the tag", "invoice #urgent ", "urgent", "invoice #urgent "},
		{"case-insensitive match", "#Urgent", "urgent", "#Urgent"},
		{"earlier occurrence does not count", "#urgent invoice", "urgent", "#urgent invoice #urgent "},
		{"label with spaces", "x", "needs reply", `x #"needs reply" `},
		{"quoted label already last", `x #"needs reply"`, "needs reply", `x #"needs reply"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AppendTag(tt.text, tt.label); got != tt.want {
				t.Errorf("AppendTag(%q, %q) = %q, want %q", tt.text, tt.label, got, tt.want)
			}
		})
	}
}
