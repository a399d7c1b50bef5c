// Package session feeds store snapshots into the mailbox engine: it loads
// messages and relations, folds relations into the tag index, merges the
// derived labels into the messages and hands the result to the model. All
// engine access is serialized so that the API, the watch loop and the
// scheduler can share one session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/metrics"
	"github.com/wesm/tagbox/internal/relindex"
	"github.com/wesm/tagbox/internal/search"
)

// Source supplies snapshots of a mailbox. *store.Store implements it.
type Source interface {
	ListMessages(ctx context.Context, mbox string) ([]mailbox.Message, error)
	ListRelations(ctx context.Context) ([]mailbox.Relation, error)
	DataVersion(ctx context.Context) (int64, error)
}

// FilterSaver persists named filter text. *store.Store implements it.
type FilterSaver interface {
	SaveFilter(ctx context.Context, name, text string) error
}

// ErrNoFilterStore is returned by SaveFilter when the source cannot
// persist filters.
var ErrNoFilterStore = errors.New("source cannot save filters")

// Options configures a Session.
type Options struct {
	Mailbox  string                // mailbox to load; empty loads all
	Sort     mailbox.SortDirection // initial and default sort
	Logger   *slog.Logger
	Metrics  *metrics.Collector // optional
	Resolver relindex.Resolver  // optional; relindex.DefaultResolver when nil
}

// TagCount is an available tag with its message count.
type TagCount struct {
	Tag      mailbox.Tag `json:"tag"`
	Count    int         `json:"count"`
	Selected bool        `json:"selected"`
}

// View is a consistent snapshot of the interactive mailbox state.
type View struct {
	Messages    []mailbox.Message     `json:"messages"`
	Tags        []TagCount            `json:"tags"`
	TextFilters []string              `json:"text_filters"`
	Sort        mailbox.SortDirection `json:"-"`
	FilterText  string                `json:"filter_text"`
	LabelNames  map[string]string     `json:"label_names"`
	Total       int                   `json:"total"`
	RefreshedAt time.Time             `json:"refreshed_at"`
}

// Session owns one mailbox model and one relation index.
type Session struct {
	src    Source
	opts   Options
	logger *slog.Logger

	// refreshMu serializes load-and-apply cycles so an older snapshot
	// never lands after a newer one.
	refreshMu sync.Mutex

	mu         sync.Mutex
	model      *mailbox.Model // interactive filters (TUI, CLI)
	queryModel *mailbox.Model // per-call queries (API, MCP)
	index      *relindex.Index

	raw        []mailbox.Message
	merged     []mailbox.Message
	byID       map[string]int
	labelNames map[string]string

	filterText  string
	loaded      bool
	dataVersion int64
	refreshedAt time.Time
}

// New creates a session over src. Call Refresh before reading.
func New(src Source, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	index := relindex.New().WithLogger(logger)
	if opts.Resolver != nil {
		index = index.WithResolver(opts.Resolver)
	}
	if opts.Metrics != nil {
		index = index.WithRecorder(opts.Metrics)
	}

	s := &Session{
		src:        src,
		opts:       opts,
		logger:     logger,
		model:      mailbox.NewModel().WithLogger(logger),
		queryModel: mailbox.NewModel().WithLogger(logger),
		index:      index,
		byID:       map[string]int{},
		labelNames: map[string]string{},
	}
	s.model.SetSortDirection(opts.Sort)
	return s
}

// Refresh loads a fresh snapshot of messages and relations and feeds it
// through the engine. Nothing is reloaded when the source's data version
// has not moved since the last refresh.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.refreshObserved(ctx)
	return err
}

// Rebuild reloads unconditionally and discards all accumulated relation
// state first, dropping tags whose relations are gone for good.
func (s *Session) Rebuild(ctx context.Context) error {
	_, err := s.refresh(ctx, true)
	return err
}

func (s *Session) refreshObserved(ctx context.Context) (bool, error) {
	start := time.Now()
	changed, err := s.refresh(ctx, false)
	if s.opts.Metrics != nil && (changed || err != nil) {
		s.opts.Metrics.ObserveRefresh(time.Since(start), err)
	}
	return changed, err
}

func (s *Session) refresh(ctx context.Context, rebuild bool) (bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	version, err := s.src.DataVersion(ctx)
	if err != nil {
		return false, fmt.Errorf("read data version: %w", err)
	}
	s.mu.Lock()
	current := s.loaded && version == s.dataVersion
	s.mu.Unlock()
	if current && !rebuild {
		return false, nil
	}

	msgs, err := s.src.ListMessages(ctx, s.opts.Mailbox)
	if err != nil {
		return false, fmt.Errorf("load messages: %w", err)
	}
	rels, err := s.src.ListRelations(ctx)
	if err != nil {
		return false, fmt.Errorf("load relations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rebuild {
		s.index.Rebuild(rels)
	} else {
		s.index.Update(rels)
	}
	s.raw = msgs
	s.mergeLocked()
	s.loaded = true
	s.dataVersion = version
	s.refreshedAt = time.Now()

	stats := s.index.Stats()
	s.logger.Debug("session refreshed",
		"messages", len(msgs),
		"relations", len(rels),
		"pending", stats.Pending,
		"rebuild", rebuild,
	)
	return true, nil
}

// mergeLocked derives labels for the raw messages and hands the result to
// both models.
func (s *Session) mergeLocked() {
	relTags := s.index.Get()
	s.merged = mailbox.MergeLabels(s.raw, relTags)
	s.labelNames = mailbox.MergeLabelNames(mailbox.LiteralLabelNames(s.raw), relTags)

	s.byID = make(map[string]int, len(s.merged))
	for i, m := range s.merged {
		if m.ID != "" {
			s.byID[m.ID] = i
		}
	}
	s.model.SetMessages(s.merged)
	s.queryModel.SetMessages(s.merged)
}

// Watch polls the source's data version every interval and refreshes when
// it changes. It returns when ctx is cancelled. Refresh errors are logged
// and retried on the next tick.
func (s *Session) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			changed, err := s.refreshObserved(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("watch refresh failed", "error", err)
				continue
			}
			if changed {
				s.logger.Debug("store changed, session refreshed")
			}
		}
	}
}

// View returns a snapshot of the interactive state. The returned slices
// are owned by the caller.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := slices.Clone(s.model.Messages())
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveModel(s.model.Stats(), len(msgs))
	}
	return View{
		Messages:    msgs,
		Tags:        tagCounts(s.model),
		TextFilters: s.model.SelectedTextFilters(),
		Sort:        s.model.SortDirection(),
		FilterText:  s.filterText,
		LabelNames:  maps.Clone(s.labelNames),
		Total:       len(s.merged),
		RefreshedAt: s.refreshedAt,
	}
}

func tagCounts(m *mailbox.Model) []TagCount {
	available := m.AvailableTags()
	out := make([]TagCount, len(available))
	for i, tag := range available {
		out[i] = TagCount{
			Tag:      tag,
			Count:    m.MessageCountForTag(tag.Label),
			Selected: m.IsTagSelected(tag.Label),
		}
	}
	return out
}

// Tags returns the available tags with counts over the whole mailbox.
func (s *Session) Tags() []TagCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return tagCounts(s.queryModel)
}

// Message returns one loaded message with merged labels.
func (s *Session) Message(id string) (mailbox.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return mailbox.Message{}, false
	}
	return s.merged[i], true
}

// LabelNames returns the label id to display name catalogue.
func (s *Session) LabelNames() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.labelNames)
}

// Query runs q against the loaded messages without touching the
// interactive filters. A query without sort uses the session's default.
func (s *Session) Query(q *search.Query) []mailbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryModel.SetSortDirection(s.opts.Sort)
	q.Apply(s.queryModel)
	return slices.Clone(s.queryModel.Messages())
}

// IndexStats returns the relation index counters.
func (s *Session) IndexStats() relindex.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Stats()
}

// ModelStats returns the interactive model's recompute counters.
func (s *Session) ModelStats() mailbox.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model.Stats()
}

// ApplyFilterText parses text and replaces the interactive tag selection
// and text filters with the result.
func (s *Session) ApplyFilterText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search.Parse(text).Apply(s.model)
	s.filterText = text
}

// FilterText returns the last text passed to ApplyFilterText.
func (s *Session) FilterText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterText
}

// SelectTag adds label to the interactive tag selection.
func (s *Session) SelectTag(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.SelectTag(label)
}

// DeselectTag removes label from the interactive tag selection.
func (s *Session) DeselectTag(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.DeselectTag(label)
}

// ToggleTag selects label if it is not selected and deselects it otherwise.
// It reports whether the label is selected afterwards.
func (s *Session) ToggleTag(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model.IsTagSelected(label) {
		s.model.DeselectTag(label)
		return false
	}
	s.model.SelectTag(label)
	return true
}

// AddTextFilter adds one free-text filter.
func (s *Session) AddTextFilter(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.AddTextFilter(text)
}

// ClearFilters drops every tag and text filter and the filter text.
func (s *Session) ClearFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.ClearSelectedTags()
	s.model.ClearTextFilters()
	s.filterText = ""
}

// SetSortDirection sets the interactive sort direction.
func (s *Session) SetSortDirection(dir mailbox.SortDirection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model.SetSortDirection(dir)
}

// ToggleSort reverses the interactive sort direction and returns the new one.
func (s *Session) ToggleSort() mailbox.SortDirection {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.model.SortDirection().Reverse()
	s.model.SetSortDirection(dir)
	return dir
}

// SaveFilter stores the current filter text under name.
func (s *Session) SaveFilter(ctx context.Context, name string) error {
	saver, ok := s.src.(FilterSaver)
	if !ok {
		return ErrNoFilterStore
	}
	return saver.SaveFilter(ctx, name, s.FilterText())
}
