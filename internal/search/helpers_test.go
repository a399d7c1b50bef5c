package search

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/wesm/tagbox/internal/mailbox"
)

func sortPtr(d mailbox.SortDirection) *mailbox.SortDirection { return &d }

// assertQueryEqual compares two Query structs, treating nil slices and empty
// slices as equivalent.
func assertQueryEqual(t *testing.T, got, want Query) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Query mismatch (-want +got):\n%s", diff)
	}
}

// recordingModel captures the calls Query.Apply makes.
type recordingModel struct {
	tags   []string
	text   []string
	sort   *mailbox.SortDirection
	clears int
}

func (r *recordingModel) ClearSelectedTags()        { r.tags = nil; r.clears++ }
func (r *recordingModel) SelectTag(label string)    { r.tags = append(r.tags, label) }
func (r *recordingModel) SetTextFilters(l []string) { r.text = append([]string(nil), l...) }
func (r *recordingModel) SetSortDirection(d mailbox.SortDirection) {
	r.sort = &d
}
