package relindex_test

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/relindex"
	"github.com/wesm/tagbox/internal/testutil"
)

func sameMap(a, b map[string][]mailbox.Tag) bool {
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}

func tagIDs(tags []mailbox.Tag) []string {
	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return ids
}

func TestIndex_LazyTargetScenario(t *testing.T) {
	urgent := testutil.NewTag("urgent")
	x := relindex.New()

	// r1 targets m2 before m2 is loaded.
	rels := []mailbox.Relation{testutil.LazyRelation("r1", urgent, "m2", nil)}
	if x.Update(rels) {
		t.Error("Update with unresolvable relation reported a change")
	}
	if _, ok := x.Get()["m2"]; ok {
		t.Fatal("m2 should have no entry before its target resolves")
	}
	if got := x.Stats().Pending; got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}

	// m2 materializes.
	rels = []mailbox.Relation{testutil.LazyRelation("r1", urgent, "m2", testutil.NewMessage("m2").BuildPtr())}
	if !x.Update(rels) {
		t.Error("Update after resolution reported no change")
	}
	testutil.AssertStrings(t, tagIDs(x.Get()["m2"]), "tag-urgent")

	before := x.Get()
	version := x.Version()
	attempts := x.Stats().ResolveAttempts
	if x.Update(rels) {
		t.Error("third Update reported a change")
	}
	if !sameMap(before, x.Get()) {
		t.Error("map reference changed on a no-op update")
	}
	if x.Version() != version {
		t.Errorf("Version changed from %d to %d", version, x.Version())
	}
	if got := x.Stats().ResolveAttempts; got != attempts {
		t.Errorf("ResolveAttempts grew from %d to %d on a no-op update", attempts, got)
	}
}

func TestIndex_QueueURIResolvesWithoutObject(t *testing.T) {
	x := relindex.New()
	x.Update([]mailbox.Relation{testutil.QueueRelation("r1", testutil.NewTag("work"), "m9")})
	testutil.AssertStrings(t, tagIDs(x.Get()["m9"]), "tag-work")
}

func TestIndex_Idempotent(t *testing.T) {
	rels := []mailbox.Relation{
		testutil.QueueRelation("r1", testutil.NewTag("a"), "m1"),
		testutil.QueueRelation("r2", testutil.NewTag("b"), "m1"),
		testutil.QueueRelation("r3", testutil.NewTag("a"), "m2"),
	}
	x := relindex.New()
	if !x.Update(rels) {
		t.Fatal("first Update reported no change")
	}
	first := x.Get()
	stats := x.Stats()

	if x.Update(rels) {
		t.Error("second Update reported a change")
	}
	if !sameMap(first, x.Get()) {
		t.Error("map reference changed")
	}
	after := x.Stats()
	after.Updates = stats.Updates
	if diff := cmp.Diff(stats, after); diff != "" {
		t.Errorf("stats changed on repeat (-first +second):\n%s", diff)
	}
}

func TestIndex_Incremental(t *testing.T) {
	const n = 5000
	rels := make([]mailbox.Relation, 0, n+1)
	for i := range n {
		rels = append(rels, testutil.QueueRelation(fmt.Sprintf("r%d", i), testutil.NewTag("bulk"), fmt.Sprintf("m%d", i)))
	}
	x := relindex.New()
	x.Update(rels)
	if got := x.Stats().ResolveAttempts; got != n {
		t.Fatalf("ResolveAttempts = %d, want %d", got, n)
	}

	rels = append(rels, testutil.QueueRelation("new", testutil.NewTag("fresh"), "m0"))
	if !x.Update(rels) {
		t.Fatal("Update with one new relation reported no change")
	}
	if got := x.Stats().ResolveAttempts; got != n+1 {
		t.Errorf("ResolveAttempts = %d, want exactly one more (%d)", got, n+1)
	}
	testutil.AssertStrings(t, tagIDs(x.Get()["m0"]), "tag-bulk", "tag-fresh")
}

func TestIndex_DeduplicatesTagsPerMessage(t *testing.T) {
	urgent := testutil.NewTag("urgent")
	rels := []mailbox.Relation{
		testutil.QueueRelation("r1", urgent, "m1"),
		testutil.QueueRelation("r2", urgent, "m1"),
		testutil.QueueRelation("r1", urgent, "m1"),
	}
	x := relindex.New()
	x.Update(rels)
	x.Update(rels)
	testutil.AssertStrings(t, tagIDs(x.Get()["m1"]), "tag-urgent")
	if got := x.Stats().Resolved; got != 2 {
		t.Errorf("Resolved = %d, want 2", got)
	}
}

func TestIndex_MalformedRelationsAreDroppedOnce(t *testing.T) {
	tag := testutil.NewTag("x")
	rels := []mailbox.Relation{
		{ID: "no-source", Target: mailbox.Ref{URI: mailbox.QueueURI("inbox", "m1")}},
		{ID: "bad-uri", Source: &tag, Target: mailbox.Ref{URI: "mailto:nobody@example.com"}},
		{ID: "object-without-id", Source: &tag, Target: mailbox.Ref{Object: &mailbox.Message{}}},
		{ID: "other-kind", Kind: "assigned-to", Source: &tag, Target: mailbox.Ref{URI: mailbox.QueueURI("inbox", "m1")}},
		{ID: "", Source: &tag, Target: mailbox.Ref{URI: mailbox.QueueURI("inbox", "m1")}},
		testutil.QueueRelation("good", tag, "m2"),
	}
	x := relindex.New()
	x.Update(rels)

	want := map[string][]string{"m2": {"tag-x"}}
	got := map[string][]string{}
	for id, tags := range x.Get() {
		got[id] = tagIDs(tags)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("map mismatch (-want +got):\n%s", diff)
	}

	stats := x.Stats()
	if stats.Dropped != 4 || stats.Processed != 5 {
		t.Errorf("Dropped=%d Processed=%d, want 4 and 5", stats.Dropped, stats.Processed)
	}

	// Broken relations are not retried.
	attempts := stats.ResolveAttempts
	x.Update(rels)
	if got := x.Stats().ResolveAttempts; got != attempts {
		t.Errorf("ResolveAttempts grew from %d to %d", attempts, got)
	}
}

func TestIndex_CustomResolver(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	x := relindex.New().WithResolver(relindex.ResolverFunc(func(rel *mailbox.Relation) (string, error) {
		calls++
		switch rel.ID {
		case "later":
			return "", fmt.Errorf("lookup: %w", relindex.ErrNotResolved)
		case "broken":
			return "", boom
		}
		return "m1", nil
	}))
	tag := testutil.NewTag("t")
	rels := []mailbox.Relation{
		{ID: "later", Source: &tag},
		{ID: "broken", Source: &tag},
		{ID: "ok", Source: &tag},
	}
	x.Update(rels)
	x.Update(rels)
	// "later" is retried, the others are not.
	if calls != 4 {
		t.Errorf("resolver called %d times, want 4", calls)
	}
	testutil.AssertStrings(t, tagIDs(x.Get()["m1"]), "tag-t")
}

func TestIndex_RemovalIsSurgical(t *testing.T) {
	urgent := testutil.NewTag("urgent")
	work := testutil.NewTag("work")
	r1 := testutil.QueueRelation("r1", urgent, "m1")
	r2 := testutil.QueueRelation("r2", urgent, "m1") // same pair as r1
	r3 := testutil.QueueRelation("r3", work, "m1")

	x := relindex.New()
	x.Update([]mailbox.Relation{r1, r2, r3})
	snapshot := x.Get()
	testutil.AssertStrings(t, tagIDs(snapshot["m1"]), "tag-urgent", "tag-work")

	// r1 gone: r2 still applies urgent.
	if x.Update([]mailbox.Relation{r2, r3}) {
		t.Error("removing a duplicate contribution reported a change")
	}
	testutil.AssertStrings(t, tagIDs(x.Get()["m1"]), "tag-urgent", "tag-work")

	// r3 gone: work is removed.
	if !x.Update([]mailbox.Relation{r2}) {
		t.Error("removing the only work relation reported no change")
	}
	testutil.AssertStrings(t, tagIDs(x.Get()["m1"]), "tag-urgent")

	// Old snapshots are untouched.
	testutil.AssertStrings(t, tagIDs(snapshot["m1"]), "tag-urgent", "tag-work")

	// Everything gone: the entry disappears.
	x.Update(nil)
	if _, ok := x.Get()["m1"]; ok {
		t.Error("m1 entry should be gone")
	}
	if got := x.Stats().Evicted; got != 3 {
		t.Errorf("Evicted = %d, want 3", got)
	}

	// Re-added id is processed again.
	if !x.Update([]mailbox.Relation{r3}) {
		t.Error("re-added relation reported no change")
	}
	testutil.AssertStrings(t, tagIDs(x.Get()["m1"]), "tag-work")
}

func TestIndex_PendingRelationVanishes(t *testing.T) {
	x := relindex.New()
	x.Update([]mailbox.Relation{testutil.LazyRelation("r1", testutil.NewTag("a"), "m1", nil)})
	if x.Update(nil) {
		t.Error("dropping a pending relation reported a change")
	}
	if got := x.Stats(); got.Pending != 0 || got.Evicted != 0 {
		t.Errorf("Pending=%d Evicted=%d, want 0 and 0", got.Pending, got.Evicted)
	}
}

func TestIndex_Rebuild(t *testing.T) {
	rels := []mailbox.Relation{
		testutil.QueueRelation("r1", testutil.NewTag("a"), "m1"),
		testutil.QueueRelation("r2", testutil.NewTag("b"), "m2"),
	}
	x := relindex.New()
	x.Update(rels)
	before, version := x.Get(), x.Version()

	x.Rebuild(rels[:1])
	if sameMap(before, x.Get()) || x.Version() == version {
		t.Error("Rebuild should hand out a new map and bump the version")
	}
	want := map[string][]string{"m1": {"tag-a"}}
	got := map[string][]string{}
	for id, tags := range x.Get() {
		got[id] = tagIDs(tags)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("map after Rebuild (-want +got):\n%s", diff)
	}
}

type recorder struct {
	resolved, dropped, evicted, pending int
}

func (r *recorder) RecordIndexUpdate(resolved, dropped, evicted, pending int) {
	r.resolved += resolved
	r.dropped += dropped
	r.evicted += evicted
	r.pending = pending
}

func TestIndex_Recorder(t *testing.T) {
	rec := &recorder{}
	x := relindex.New().WithRecorder(rec)
	x.Update([]mailbox.Relation{
		testutil.QueueRelation("r1", testutil.NewTag("a"), "m1"),
		testutil.LazyRelation("r2", testutil.NewTag("a"), "m2", nil),
		{ID: "r3"},
	})
	x.Update(nil)
	want := recorder{resolved: 1, dropped: 1, evicted: 2, pending: 0}
	if *rec != want {
		t.Errorf("recorder = %+v, want %+v", *rec, want)
	}
}
