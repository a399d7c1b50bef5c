package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mattn/go-runewidth"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/relindex"
	"github.com/wesm/tagbox/internal/scheduler"
	"github.com/wesm/tagbox/internal/search"
	"github.com/wesm/tagbox/internal/session"
	"github.com/wesm/tagbox/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	snippetWidth = 120
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// LabelView is a label id with its display name.
type LabelView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MessageSummary represents a message in list responses.
type MessageSummary struct {
	ID      string         `json:"id"`
	Created *time.Time     `json:"created,omitempty"`
	Sender  mailbox.Sender `json:"sender"`
	Subject string         `json:"subject"`
	Tags    []mailbox.Tag  `json:"tags"`
	Labels  []LabelView    `json:"labels"`
	Snippet string         `json:"snippet,omitempty"`
}

// MessageDetail represents a full message response.
type MessageDetail struct {
	MessageSummary
	Blocks []mailbox.Block `json:"blocks"`
}

// MessageList is the response of GET /messages.
type MessageList struct {
	Query    string           `json:"query"`
	Sort     string           `json:"sort,omitempty"`
	Total    int              `json:"total"`
	Count    int              `json:"count"`
	Messages []MessageSummary `json:"messages"`
}

// StatsResponse combines store and index statistics.
type StatsResponse struct {
	Store *store.Stats   `json:"store"`
	Index relindex.Stats `json:"index"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool                  `json:"running"`
	Jobs    []scheduler.JobStatus `json:"jobs"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func summarize(m mailbox.Message, names map[string]string) MessageSummary {
	sum := MessageSummary{
		ID:      m.ID,
		Sender:  m.Sender,
		Subject: m.Properties.Subject,
		Tags:    nonNilSlice(m.Properties.Tags),
		Labels:  make([]LabelView, 0, len(m.Properties.Labels)),
		Snippet: snippet(m.BodyText()),
	}
	if m.HasCreated() {
		created := m.Created.UTC()
		sum.Created = &created
	}
	for _, id := range m.Properties.Labels {
		name := names[id]
		if name == "" {
			name = id
		}
		sum.Labels = append(sum.Labels, LabelView{ID: id, Name: name})
	}
	return sum
}

func snippet(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	return runewidth.Truncate(body, snippetWidth, "…")
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// handleStats returns store and index statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Store: stats, Index: s.deps.Mailbox.IndexStats()})
}

// parseListQuery builds the query for GET /messages from q, repeated tag
// parameters and sort.
func parseListQuery(r *http.Request) (*search.Query, int, error) {
	params := r.URL.Query()
	text := params.Get("q")
	for _, tag := range params["tag"] {
		text = search.AppendTag(text, tag)
	}
	q := search.Parse(text)

	if raw := params.Get("sort"); raw != "" {
		dir, err := mailbox.ParseSortDirection(raw)
		if err != nil {
			return nil, 0, err
		}
		q.Sort = &dir
	}

	limit := defaultLimit
	if raw := params.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, 0, errors.New("limit must be a positive integer")
		}
		limit = min(n, maxLimit)
	}
	return q, limit, nil
}

// handleListMessages returns the messages matching the query, newest first
// unless the query or sort parameter says otherwise. The tag parameter and
// #label select literal tags only; tags applied through handleTagMessage
// appear in labels but are not selectable.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q, limit, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	msgs := s.deps.Mailbox.Query(q)
	names := s.deps.Mailbox.LabelNames()
	resp := MessageList{
		Query: q.String(),
		Total: len(msgs),
	}
	if q.Sort != nil {
		resp.Sort = q.Sort.String()
	}
	msgs = msgs[:min(len(msgs), limit)]
	resp.Count = len(msgs)
	resp.Messages = make([]MessageSummary, len(msgs))
	for i, m := range msgs {
		resp.Messages[i] = summarize(m, names)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetMessage returns a single message by ID with merged labels.
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	msg, ok := s.deps.Mailbox.Message(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Message not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageDetail{
		MessageSummary: summarize(msg, s.deps.Mailbox.LabelNames()),
		Blocks:         nonNilSlice(msg.Blocks),
	})
}

type tagRequest struct {
	Label string `json:"label"`
}

// handleTagMessage applies a tag to a message through a new relation. The
// tag is created when no tag has the label yet.
func (s *Server) handleTagMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Body must be JSON like {\"label\": \"...\"}")
		return
	}
	label := strings.TrimSpace(req.Label)
	if label == "" {
		writeError(w, http.StatusBadRequest, "missing_label", "label is required")
		return
	}

	if _, err := s.deps.Store.GetMessage(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Message not found")
			return
		}
		s.logger.Error("failed to get message", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve message")
		return
	}

	rel, err := s.deps.Store.TagMessage(r.Context(), id, label)
	if err != nil {
		s.logger.Error("failed to tag message", "id", id, "label", label, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to tag message")
		return
	}
	s.refresh(r)
	s.logger.Info("message tagged via API", "id", id, "label", label, "relation", rel.ID)
	writeJSON(w, http.StatusCreated, rel)
}

// handleRemoveRelation deletes a relation, untagging its target.
func (s *Server) handleRemoveRelation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Store.RemoveRelation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Relation not found")
			return
		}
		s.logger.Error("failed to remove relation", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to remove relation")
		return
	}
	s.refresh(r)
	w.WriteHeader(http.StatusNoContent)
}

// refresh brings the mailbox up to date after a write so the next read
// sees it. Failures are logged; the watch loop retries.
func (s *Server) refresh(r *http.Request) {
	if err := s.deps.Mailbox.Refresh(r.Context()); err != nil {
		s.logger.Warn("refresh after write failed", "error", err)
	}
}

// handleListTags returns the available tags with message counts.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tags": nonNilSlice(s.deps.Mailbox.Tags()),
	})
}

// handleListFilters returns all saved filters.
func (s *Server) handleListFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.deps.Store.ListFilters(r.Context())
	if err != nil {
		s.logger.Error("failed to list filters", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve filters")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filters": nonNilSlice(filters),
	})
}

// handleSaveFilter stores filter text under a name. The text is
// normalized through the parser so that saved filters read canonically.
func (s *Server) handleSaveFilter(w http.ResponseWriter, r *http.Request) {
	var req store.SavedFilter
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Body must be JSON like {\"name\": \"...\", \"text\": \"...\"}")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_name", "name is required")
		return
	}
	text := search.Parse(req.Text).String()
	if err := s.deps.Store.SaveFilter(r.Context(), req.Name, text); err != nil {
		s.logger.Error("failed to save filter", "name", req.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to save filter")
		return
	}
	writeJSON(w, http.StatusCreated, store.SavedFilter{Name: req.Name, Text: text, UpdatedAt: time.Now().UTC()})
}

// handleIndexStats returns the relation index counters.
func (s *Server) handleIndexStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Mailbox.IndexStats())
}

// handleRebuild rebuilds the relation index. With a scheduler the rebuild
// job is triggered in the background; otherwise it runs inline.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler != nil && slices.ContainsFunc(s.deps.Scheduler.Status(), func(j scheduler.JobStatus) bool {
		return j.Name == RebuildJob
	}) {
		if err := s.deps.Scheduler.Trigger(RebuildJob); err != nil {
			writeError(w, http.StatusConflict, "rebuild_error", err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"message": "Index rebuild started",
		})
		return
	}

	if err := s.deps.Mailbox.Rebuild(r.Context()); err != nil {
		s.logger.Error("index rebuild failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Index rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Mailbox.IndexStats())
}

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Scheduler not running")
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.deps.Scheduler.IsRunning(),
		Jobs:    nonNilSlice(s.deps.Scheduler.Status()),
	})
}

var (
	_ Mailbox = (*session.Session)(nil)
	_ Store   = (*store.Store)(nil)
)
