package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/relindex"
	"github.com/wesm/tagbox/internal/search"
)

const maxLimit = 1000

type handlers struct {
	mailbox Mailbox
}

type label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type messageSummary struct {
	ID      string         `json:"id"`
	Created *time.Time     `json:"created,omitempty"`
	Sender  mailbox.Sender `json:"sender"`
	Subject string         `json:"subject"`
	Tags    []string       `json:"tags"`
	Labels  []label        `json:"labels"`
}

type messageDetail struct {
	messageSummary
	Body string `json:"body"`
}

type tagCount struct {
	Label string `json:"label"`
	Hue   string `json:"hue,omitempty"`
	Count int    `json:"count"`
}

func summarize(m mailbox.Message, names map[string]string) messageSummary {
	sum := messageSummary{
		ID:      m.ID,
		Sender:  m.Sender,
		Subject: m.Properties.Subject,
		Tags:    make([]string, 0, len(m.Properties.Tags)),
		Labels:  make([]label, 0, len(m.Properties.Labels)),
	}
	if m.HasCreated() {
		created := m.Created.UTC()
		sum.Created = &created
	}
	for _, t := range m.Properties.Tags {
		sum.Tags = append(sum.Tags, t.Label)
	}
	for _, id := range m.Properties.Labels {
		name := names[id]
		if name == "" {
			name = id
		}
		sum.Labels = append(sum.Labels, label{ID: id, Name: name})
	}
	return sum
}

func (h *handlers) listMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	queryStr, _ := args["query"].(string)
	q := search.Parse(queryStr)
	if v, ok := args["sort"].(string); ok && v != "" {
		dir, err := mailbox.ParseSortDirection(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Sort = &dir
	}
	limit := limitArg(args, "limit", 20)

	msgs := h.mailbox.Query(q)
	msgs = msgs[:min(len(msgs), limit)]
	names := h.mailbox.LabelNames()
	out := make([]messageSummary, len(msgs))
	for i, m := range msgs {
		out[i] = summarize(m, names)
	}
	return jsonResult(out)
}

func (h *handlers) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags := h.mailbox.Tags()
	out := make([]tagCount, len(tags))
	for i, tc := range tags {
		out[i] = tagCount{Label: tc.Tag.Label, Hue: tc.Tag.Hue, Count: tc.Count}
	}
	return jsonResult(out)
}

func (h *handlers) getMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id, _ := args["id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	msg, ok := h.mailbox.Message(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("message not found: %s", id)), nil
	}
	return jsonResult(messageDetail{
		messageSummary: summarize(msg, h.mailbox.LabelNames()),
		Body:           msg.BodyText(),
	})
}

func (h *handlers) getStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resp := struct {
		Index relindex.Stats `json:"index"`
		Model mailbox.Stats  `json:"model"`
	}{
		Index: h.mailbox.IndexStats(),
		Model: h.mailbox.ModelStats(),
	}
	return jsonResult(resp)
}

// limitArg extracts a non-negative integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
