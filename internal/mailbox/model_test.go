package mailbox_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/testutil"
)

// threeMessages is the m1/m2/m3 fixture: m1 untagged, m2 urgent, m3 urgent+work,
// created on consecutive days.
func threeMessages() []mailbox.Message {
	return []mailbox.Message{
		testutil.NewMessage("m1").WithCreated(testutil.Day(1)).WithSubject("Lunch plans").Build(),
		testutil.NewMessage("m2").WithCreated(testutil.Day(2)).WithSubject("Server down").WithTags("urgent").Build(),
		testutil.NewMessage("m3").WithCreated(testutil.Day(3)).WithSubject("Quarterly report").WithTags("urgent", "work").Build(),
	}
}

func newModel(msgs []mailbox.Message) *mailbox.Model {
	m := mailbox.NewModel()
	m.SetMessages(msgs)
	return m
}

func TestModel_Scenario(t *testing.T) {
	m := newModel(threeMessages())
	m.SetSortDirection(mailbox.SortDesc)
	testutil.AssertMessageIDs(t, m.Messages(), "m3", "m2", "m1")

	m.SelectTag("urgent")
	testutil.AssertMessageIDs(t, m.Messages(), "m3", "m2")

	m.SelectTag("work")
	testutil.AssertMessageIDs(t, m.Messages(), "m3")

	m.ClearSelectedTags()
	m.AddTextFilter("m1")
	testutil.AssertMessageIDs(t, m.Messages())

	m.RemoveTextFilter("m1")
	testutil.AssertMessageIDs(t, m.Messages(), "m3", "m2", "m1")
}

func TestModel_TagIntersection(t *testing.T) {
	msgs := []mailbox.Message{
		testutil.NewMessage("a").WithCreated(testutil.Day(1)).WithTags("x").Build(),
		testutil.NewMessage("b").WithCreated(testutil.Day(2)).WithTags("y").Build(),
		testutil.NewMessage("c").WithCreated(testutil.Day(3)).WithTags("x", "y").Build(),
		testutil.NewMessage("d").WithCreated(testutil.Day(4)).WithTags("y", "x", "z").Build(),
		testutil.NewMessage("e").WithCreated(testutil.Day(5)).Build(),
	}

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"single tag", []string{"x"}, []string{"d", "c", "a"}},
		{"two tags", []string{"x", "y"}, []string{"d", "c"}},
		{"order of selection is irrelevant", []string{"y", "x"}, []string{"d", "c"}},
		{"three tags", []string{"x", "y", "z"}, []string{"d"}},
		{"unknown tag empties the view", []string{"x", "nope"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModel(msgs)
			for _, tag := range tt.tags {
				m.SelectTag(tag)
			}
			testutil.AssertMessageIDs(t, m.Messages(), tt.want...)
		})
	}
}

func TestModel_SelectTagIgnoresDuplicates(t *testing.T) {
	m := newModel(threeMessages())
	m.SelectTag("urgent")
	m.SelectTag("urgent")
	testutil.AssertStrings(t, m.SelectedTags(), "urgent")

	m.DeselectTag("urgent")
	m.DeselectTag("urgent")
	if got := m.SelectedTags(); len(got) != 0 {
		t.Errorf("SelectedTags() = %q, want empty", got)
	}
}

func TestModel_TagLabelsIgnoreCase(t *testing.T) {
	msgs := threeMessages()
	msgs[0].Properties.Tags = []mailbox.Tag{{ID: "tag-Urgent", Label: "Urgent"}}
	m := newModel(msgs)

	m.SelectTag("URGENT")
	testutil.AssertMessageIDs(t, m.Messages(), "m3", "m2", "m1")

	m.SelectTag("urgent")
	testutil.AssertStrings(t, m.SelectedTags(), "URGENT")
	if !m.IsTagSelected("Urgent") {
		t.Error("IsTagSelected(Urgent) = false, want true")
	}
	if got := m.MessageCountForTag("uRgEnT"); got != 3 {
		t.Errorf("MessageCountForTag(uRgEnT) = %d, want 3", got)
	}
	if got := len(m.AvailableTags()); got != 2 {
		t.Errorf("len(AvailableTags()) = %d, want 2", got)
	}

	m.DeselectTag("Urgent")
	if got := m.SelectedTags(); len(got) != 0 {
		t.Errorf("SelectedTags() = %q, want empty", got)
	}
}

func TestModel_TextFilterFields(t *testing.T) {
	msgs := []mailbox.Message{
		testutil.NewMessage("name").WithSender("Alice Smith", "a@example.com").WithSubject("hi").Build(),
		testutil.NewMessage("email").WithSender("Bob", "alice@corp.example").WithSubject("hi").Build(),
		testutil.NewMessage("subject").WithSender("Carol", "c@example.com").WithSubject("Re: ALICE's party").Build(),
		testutil.NewMessage("body").WithSender("Dan", "d@example.com").WithSubject("hi").
			WithBody("intro", "say hello to alice").Build(),
		testutil.NewMessage("none").WithSender("Eve", "e@example.com").WithSubject("hi").WithBody("nothing").Build(),
	}
	m := newModel(msgs)
	m.SetSortDirection(mailbox.SortAsc)
	m.AddTextFilter("Alice")
	testutil.AssertMessageIDs(t, m.Messages(), "name", "email", "subject", "body")
}

func TestModel_TextFilterConjunction(t *testing.T) {
	msgs := []mailbox.Message{
		// "invoice" in the subject and "acme" in the sender: different fields, both filters match.
		testutil.NewMessage("both").WithCreated(testutil.Day(1)).
			WithSender("ACME Billing", "billing@acme.example").WithSubject("Invoice 42").Build(),
		testutil.NewMessage("only-invoice").WithCreated(testutil.Day(2)).WithSubject("Invoice 43").Build(),
		testutil.NewMessage("only-acme").WithCreated(testutil.Day(3)).
			WithSender("ACME", "news@acme.example").WithSubject("Newsletter").Build(),
	}
	m := newModel(msgs)
	m.SetSortDirection(mailbox.SortAsc)

	m.AddTextFilter("invoice")
	m.AddTextFilter("acme")
	testutil.AssertMessageIDs(t, m.Messages(), "both")

	// Removing a filter can only grow the result.
	m.RemoveTextFilter("acme")
	testutil.AssertMessageIDs(t, m.Messages(), "both", "only-invoice")

	m.SetTextFilters([]string{"acme", " ", "acme"})
	testutil.AssertStrings(t, m.SelectedTextFilters(), "acme")
	testutil.AssertMessageIDs(t, m.Messages(), "both", "only-acme")

	m.ClearTextFilters()
	testutil.AssertMessageIDs(t, m.Messages(), "both", "only-invoice", "only-acme")
}

func TestModel_TextFilterUnicodeFold(t *testing.T) {
	msgs := []mailbox.Message{
		testutil.NewMessage("de").WithSubject("STRASSE gesperrt").Build(),
		testutil.NewMessage("gr").WithSubject("ΣΟΦΙΑ").Build(),
	}
	m := newModel(msgs)
	m.AddTextFilter("σοφια")
	testutil.AssertMessageIDs(t, m.Messages(), "gr")
}

func TestModel_TagsAndTextCombined(t *testing.T) {
	m := newModel(threeMessages())
	m.SelectTag("urgent")
	m.AddTextFilter("report")
	testutil.AssertMessageIDs(t, m.Messages(), "m3")
}

func TestModel_SortStability(t *testing.T) {
	msgs := []mailbox.Message{
		testutil.NewMessage("t1-a").WithCreated(testutil.Day(1)).Build(),
		testutil.NewMessage("t2-a").WithCreated(testutil.Day(2)).Build(),
		testutil.NewMessage("t1-b").WithCreated(testutil.Day(1)).Build(),
		testutil.NewMessage("t2-b").WithCreated(testutil.Day(2)).Build(),
	}
	m := newModel(msgs)

	m.SetSortDirection(mailbox.SortDesc)
	testutil.AssertMessageIDs(t, m.Messages(), "t2-a", "t2-b", "t1-a", "t1-b")

	m.SetSortDirection(mailbox.SortAsc)
	testutil.AssertMessageIDs(t, m.Messages(), "t1-a", "t1-b", "t2-a", "t2-b")
}

// Undated messages go last in both directions and keep their input order.
func TestModel_UndatedSortLast(t *testing.T) {
	msgs := []mailbox.Message{
		testutil.NewMessage("u1").Undated().Build(),
		testutil.NewMessage("d1").WithCreated(testutil.Day(1)).Build(),
		testutil.NewMessage("u2").Undated().Build(),
		testutil.NewMessage("d2").WithCreated(testutil.Day(2)).Build(),
	}
	m := newModel(msgs)

	m.SetSortDirection(mailbox.SortDesc)
	testutil.AssertMessageIDs(t, m.Messages(), "d2", "d1", "u1", "u2")

	m.SetSortDirection(mailbox.SortAsc)
	testutil.AssertMessageIDs(t, m.Messages(), "d1", "d2", "u1", "u2")
}

func TestModel_SkipsMessagesWithoutID(t *testing.T) {
	msgs := append(threeMessages(), testutil.NewMessage("").WithTags("urgent").Build())
	m := newModel(msgs)

	testutil.AssertMessageIDs(t, m.Messages(), "m3", "m2", "m1")
	if got := m.MessageCountForTag("urgent"); got != 2 {
		t.Errorf("MessageCountForTag(urgent) = %d, want 2", got)
	}
	if got := m.Stats().Skipped; got != 1 {
		t.Errorf("Stats().Skipped = %d, want 1", got)
	}
}

func TestModel_Catalogue(t *testing.T) {
	msgs := []mailbox.Message{
		testutil.NewMessage("a").WithTags("work", "urgent").Build(),
		testutil.NewMessage("b").WithTags("urgent", "urgent").Build(),
		testutil.NewMessage("c").WithTags("home").Build(),
	}
	// Same label, different id: the first one seen wins.
	msgs[2].Properties.Tags = append(msgs[2].Properties.Tags, mailbox.Tag{ID: "other-work", Label: "work"})

	m := newModel(msgs)
	want := []mailbox.Tag{testutil.NewTag("work"), testutil.NewTag("urgent"), testutil.NewTag("home")}
	if diff := cmp.Diff(want, m.AvailableTags()); diff != "" {
		t.Errorf("AvailableTags() mismatch (-want +got):\n%s", diff)
	}

	counts := map[string]int{}
	for _, label := range []string{"work", "urgent", "home", "missing"} {
		counts[label] = m.MessageCountForTag(label)
	}
	wantCounts := map[string]int{"work": 2, "urgent": 2, "home": 1, "missing": 0}
	if diff := cmp.Diff(wantCounts, counts); diff != "" {
		t.Errorf("tag counts mismatch (-want +got):\n%s", diff)
	}

	// Filters do not affect the counts.
	m.SelectTag("home")
	if got := m.MessageCountForTag("urgent"); got != 2 {
		t.Errorf("MessageCountForTag(urgent) with filter = %d, want 2", got)
	}
}

func TestModel_Memoization(t *testing.T) {
	msgs := threeMessages()
	m := newModel(msgs)
	m.Messages()
	m.Messages()
	want := mailbox.Stats{IndexBuilds: 1, FilterPasses: 1, Sorts: 1}
	if diff := cmp.Diff(want, m.Stats()); diff != "" {
		t.Fatalf("after repeated reads (-want +got):\n%s", diff)
	}

	// Same slice again: nothing to redo.
	m.SetMessages(msgs)
	m.Messages()
	if diff := cmp.Diff(want, m.Stats()); diff != "" {
		t.Fatalf("after SetMessages(same) (-want +got):\n%s", diff)
	}

	// Direction change only re-sorts.
	m.SetSortDirection(mailbox.SortAsc)
	m.Messages()
	want.Sorts++
	if diff := cmp.Diff(want, m.Stats()); diff != "" {
		t.Fatalf("after direction change (-want +got):\n%s", diff)
	}

	// Filter change re-filters and re-sorts but keeps the index.
	m.SelectTag("urgent")
	m.Messages()
	want.FilterPasses++
	want.Sorts++
	if diff := cmp.Diff(want, m.Stats()); diff != "" {
		t.Fatalf("after SelectTag (-want +got):\n%s", diff)
	}

	// A new slice rebuilds everything.
	m.SetMessages(threeMessages())
	m.Messages()
	want.IndexBuilds++
	want.FilterPasses++
	want.Sorts++
	if diff := cmp.Diff(want, m.Stats()); diff != "" {
		t.Fatalf("after SetMessages(new) (-want +got):\n%s", diff)
	}
}

func TestModel_DoesNotMutateInput(t *testing.T) {
	msgs := threeMessages()
	m := newModel(msgs)
	m.SetSortDirection(mailbox.SortDesc)
	m.Messages()
	testutil.AssertMessageIDs(t, msgs, "m1", "m2", "m3")
}

func TestModel_Empty(t *testing.T) {
	m := mailbox.NewModel()
	if got := m.Messages(); len(got) != 0 {
		t.Errorf("Messages() = %v, want empty", got)
	}
	if got := m.AvailableTags(); len(got) != 0 {
		t.Errorf("AvailableTags() = %v, want empty", got)
	}
	m.SelectTag("urgent")
	if got := m.Messages(); len(got) != 0 {
		t.Errorf("Messages() with tag = %v, want empty", got)
	}
}

// Replaying the same operations on two models gives the same output.
func TestModel_Deterministic(t *testing.T) {
	var msgs []mailbox.Message
	for i := range 50 {
		b := testutil.NewMessage(fmt.Sprintf("m%02d", i)).WithCreated(testutil.Day(i % 7))
		if i%2 == 0 {
			b.WithTags("even")
		}
		if i%3 == 0 {
			b.WithSubject("fizz")
		}
		msgs = append(msgs, b.Build())
	}
	run := func() []string {
		m := newModel(msgs)
		m.SelectTag("even")
		m.AddTextFilter("fizz")
		m.SetSortDirection(mailbox.SortAsc)
		return testutil.MessageIDs(m.Messages())
	}
	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replay mismatch (-first +second):\n%s", diff)
	}
	if len(first) != 9 {
		t.Errorf("got %d messages, want 9: %v", len(first), first)
	}
}
