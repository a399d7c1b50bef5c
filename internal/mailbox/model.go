package mailbox

import (
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// Stats counts how often each derived stage of a Model was recomputed.
type Stats struct {
	IndexBuilds  int
	FilterPasses int
	Sorts        int
	Skipped      int // messages dropped from the last index build (no id)
}

// Model holds a message collection plus tag/text filter and sort controls,
// and exposes the filtered, sorted view. Derived state is recomputed lazily
// on read and only for the stages whose inputs changed.
//
// A Model is not safe for concurrent use.
type Model struct {
	logger *slog.Logger
	folder cases.Caser

	raw          []Message
	dir          SortDirection
	selectedTags []string
	textFilters  []string
	folded       []string // case-folded textFilters, same order

	indexStale  bool
	filterStale bool
	sortStale   bool

	// index stage
	valid     []Message // raw without id-less messages; aliases raw when none were skipped
	available []Tag
	catalogue map[string]Tag
	byTag     map[string][]int // folded label -> positions in valid, ascending
	haystack  [][4]string      // folded sender name, sender email, subject, body

	// filter stage; nil with identity=true means "all of valid"
	filtered []int
	identity bool

	// sort stage
	sorted []Message

	stats Stats
}

// NewModel returns an empty model sorted newest first.
func NewModel() *Model {
	return &Model{
		logger:      slog.Default(),
		folder:      cases.Fold(),
		indexStale:  true,
		filterStale: true,
		sortStale:   true,
	}
}

// WithLogger sets the logger used for indexing diagnostics.
func (m *Model) WithLogger(logger *slog.Logger) *Model {
	m.logger = logger
	return m
}

// SetMessages replaces the raw collection. Passing the same slice again
// (same backing array and length) is a no-op, so callers must hand over a
// new slice whenever the contents change.
func (m *Model) SetMessages(msgs []Message) {
	if sameSlice(m.raw, msgs) && !m.indexStale {
		return
	}
	m.raw = msgs
	m.indexStale = true
	m.filterStale = true
	m.sortStale = true
}

// SetSortDirection changes the sort order of Messages.
func (m *Model) SetSortDirection(dir SortDirection) {
	if dir == m.dir {
		return
	}
	m.dir = dir
	m.sortStale = true
}

// SortDirection returns the current sort direction.
func (m *Model) SortDirection() SortDirection {
	return m.dir
}

// SelectTag adds label to the tag selection. Tag labels match without
// regard to case, and selecting an already selected label does nothing.
func (m *Model) SelectTag(label string) {
	if label == "" || m.IsTagSelected(label) {
		return
	}
	m.selectedTags = append(m.selectedTags, label)
	m.filterStale = true
}

// DeselectTag removes label from the tag selection.
func (m *Model) DeselectTag(label string) {
	i := m.selectedIndex(label)
	if i < 0 {
		return
	}
	m.selectedTags = slices.Delete(m.selectedTags, i, i+1)
	m.filterStale = true
}

// ClearSelectedTags empties the tag selection.
func (m *Model) ClearSelectedTags() {
	if len(m.selectedTags) == 0 {
		return
	}
	m.selectedTags = nil
	m.filterStale = true
}

// IsTagSelected reports whether label, compared case-insensitively, is in
// the tag selection.
func (m *Model) IsTagSelected(label string) bool {
	return m.selectedIndex(label) >= 0
}

func (m *Model) selectedIndex(label string) int {
	key := m.tagKey(label)
	return slices.IndexFunc(m.selectedTags, func(l string) bool { return m.tagKey(l) == key })
}

func (m *Model) tagKey(label string) string {
	return m.folder.String(label)
}

// SelectedTags returns a copy of the selected tag labels in selection order.
func (m *Model) SelectedTags() []string {
	return slices.Clone(m.selectedTags)
}

// AddTextFilter adds a free-text filter. Blank and duplicate filters are
// ignored.
func (m *Model) AddTextFilter(text string) {
	text = strings.TrimSpace(text)
	if text == "" || slices.Contains(m.textFilters, text) {
		return
	}
	m.textFilters = append(m.textFilters, text)
	m.folded = append(m.folded, m.folder.String(text))
	m.filterStale = true
}

// RemoveTextFilter removes a free-text filter.
func (m *Model) RemoveTextFilter(text string) {
	i := slices.Index(m.textFilters, strings.TrimSpace(text))
	if i < 0 {
		return
	}
	m.textFilters = slices.Delete(m.textFilters, i, i+1)
	m.folded = slices.Delete(m.folded, i, i+1)
	m.filterStale = true
}

// SetTextFilters replaces all free-text filters.
func (m *Model) SetTextFilters(list []string) {
	m.textFilters = nil
	m.folded = nil
	m.filterStale = true
	for _, text := range list {
		m.AddTextFilter(text)
	}
}

// ClearTextFilters removes all free-text filters.
func (m *Model) ClearTextFilters() {
	if len(m.textFilters) == 0 {
		return
	}
	m.textFilters = nil
	m.folded = nil
	m.filterStale = true
}

// SelectedTextFilters returns a copy of the active free-text filters.
func (m *Model) SelectedTextFilters() []string {
	return slices.Clone(m.textFilters)
}

// AvailableTags returns every distinct literal tag (by case-folded label) in
// the collection, in first-seen order.
func (m *Model) AvailableTags() []Tag {
	m.ensureIndex()
	return slices.Clone(m.available)
}

// MessageCountForTag returns how many messages carry the literal tag label,
// ignoring the current filters.
func (m *Model) MessageCountForTag(label string) int {
	m.ensureIndex()
	return len(m.byTag[m.tagKey(label)])
}

// Messages returns the filtered, sorted view. The returned slice is shared
// with the model and must not be modified.
func (m *Model) Messages() []Message {
	m.ensureSorted()
	return m.sorted
}

// Stats returns recomputation counters.
func (m *Model) Stats() Stats {
	return m.stats
}

func (m *Model) ensureIndex() {
	if !m.indexStale {
		return
	}
	m.indexStale = false
	m.stats.IndexBuilds++

	m.valid = m.raw
	skipped := 0
	for i := range m.raw {
		if m.raw[i].ID == "" {
			skipped++
		}
	}
	if skipped > 0 {
		m.logger.Warn("skipping messages without id", "count", skipped)
		m.valid = make([]Message, 0, len(m.raw)-skipped)
		for i := range m.raw {
			if m.raw[i].ID != "" {
				m.valid = append(m.valid, m.raw[i])
			}
		}
	}
	m.stats.Skipped = skipped

	m.available = nil
	m.catalogue = make(map[string]Tag)
	m.byTag = make(map[string][]int)
	m.haystack = make([][4]string, len(m.valid))
	for pos := range m.valid {
		msg := &m.valid[pos]
		for _, tag := range msg.Properties.Tags {
			key := m.tagKey(tag.Label)
			if _, seen := m.catalogue[key]; !seen {
				m.catalogue[key] = tag
				m.available = append(m.available, tag)
			}
			list := m.byTag[key]
			// A message listing the same tag twice is indexed once.
			if n := len(list); n > 0 && list[n-1] == pos {
				continue
			}
			m.byTag[key] = append(list, pos)
		}
		m.haystack[pos] = [4]string{
			m.folder.String(msg.Sender.Name),
			m.folder.String(msg.Sender.Email),
			m.folder.String(msg.Properties.Subject),
			m.folder.String(msg.BodyText()),
		}
	}
}

func (m *Model) ensureFiltered() {
	m.ensureIndex()
	if !m.filterStale {
		return
	}
	m.filterStale = false
	m.sortStale = true
	m.stats.FilterPasses++

	if len(m.selectedTags) == 0 && len(m.folded) == 0 {
		m.filtered, m.identity = nil, true
		return
	}
	m.identity = false

	var candidates []int
	if len(m.selectedTags) > 0 {
		candidates = m.intersectTags()
	} else {
		candidates = make([]int, len(m.valid))
		for i := range candidates {
			candidates[i] = i
		}
	}

	if len(m.folded) > 0 {
		kept := candidates[:0]
		for _, pos := range candidates {
			if m.matchesAllText(pos) {
				kept = append(kept, pos)
			}
		}
		candidates = kept
	}
	m.filtered = candidates
}

// intersectTags returns the positions of messages carrying every selected
// tag, in collection order.
func (m *Model) intersectTags() []int {
	lists := make([][]int, 0, len(m.selectedTags))
	for _, label := range m.selectedTags {
		list := m.byTag[m.tagKey(label)]
		if len(list) == 0 {
			return []int{}
		}
		lists = append(lists, list)
	}
	slices.SortStableFunc(lists, func(a, b []int) int { return len(a) - len(b) })

	out := slices.Clone(lists[0])
	for _, other := range lists[1:] {
		members := make(map[int]struct{}, len(other))
		for _, pos := range other {
			members[pos] = struct{}{}
		}
		kept := out[:0]
		for _, pos := range out {
			if _, ok := members[pos]; ok {
				kept = append(kept, pos)
			}
		}
		out = kept
		if len(out) == 0 {
			break
		}
	}
	return out
}

// matchesAllText reports whether every text filter matches at least one
// field of the message at pos. Different filters may match different fields.
func (m *Model) matchesAllText(pos int) bool {
	fields := &m.haystack[pos]
	for _, needle := range m.folded {
		found := false
		for _, field := range fields {
			if strings.Contains(field, needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *Model) ensureSorted() {
	m.ensureFiltered()
	if !m.sortStale {
		return
	}
	m.sortStale = false
	m.stats.Sorts++

	var out []Message
	if m.identity {
		out = slices.Clone(m.valid)
	} else {
		out = make([]Message, len(m.filtered))
		for i, pos := range m.filtered {
			out[i] = m.valid[pos]
		}
	}
	slices.SortStableFunc(out, CompareCreated(m.dir))
	m.sorted = out
}

// CompareCreated orders messages by creation time in the given direction.
// Messages without a creation time sort after all dated messages in either
// direction and compare equal to each other, so a stable sort keeps their
// original order.
func CompareCreated(dir SortDirection) func(a, b Message) int {
	return func(a, b Message) int {
		az, bz := a.Created.IsZero(), b.Created.IsZero()
		switch {
		case az && bz:
			return 0
		case az:
			return 1
		case bz:
			return -1
		}
		c := a.Created.Compare(b.Created)
		if dir == SortDesc {
			c = -c
		}
		return c
	}
}

func sameSlice(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
