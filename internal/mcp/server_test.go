package mcp

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/tagbox/internal/session"
	"github.com/wesm/tagbox/internal/store"
	"github.com/wesm/tagbox/internal/testutil"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// callToolDirect invokes a handler directly with the given arguments and returns the raw result.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

// runToolExpectError invokes a handler and asserts it returns an error result.
func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return r
}

// newTestHandlers seeds three messages and tags "b" with "later" through a
// relation.
func newTestHandlers(t *testing.T) *handlers {
	t.Helper()
	st := testutil.NewTestStore(t)
	testutil.SeedMessages(t, st,
		testutil.NewMessage("a").WithCreated(testutil.Day(1)).WithTags("work").WithSubject("Invoice").Build(),
		testutil.NewMessage("b").WithCreated(testutil.Day(2)).WithTags("work").WithSubject("Invoice again").WithBody("pay", "now").Build(),
		testutil.NewMessage("c").Undated().WithTags("home").WithSubject("Dinner").Build(),
	)
	testutil.MustTag(t, st, "b", "later")

	sess := session.New(st, session.Options{Mailbox: store.DefaultMailbox})
	testutil.MustNoErr(t, sess.Refresh(context.Background()), "Refresh")
	return &handlers{mailbox: sess}
}

func summaryIDs(msgs []messageSummary) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestListMessages(t *testing.T) {
	h := newTestHandlers(t)

	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"no filter newest first undated last", map[string]any{}, []string{"b", "a", "c"}},
		{"tag filter", map[string]any{"query": "#work"}, []string{"b", "a"}},
		{"ascending", map[string]any{"query": "#work", "sort": "asc"}, []string{"a", "b"}},
		{"text filter", map[string]any{"query": "dinner"}, []string{"c"}},
		{"limit", map[string]any{"limit": float64(1)}, []string{"b"}},
		{"no match", map[string]any{"query": "#missing"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := runTool[[]messageSummary](t, ToolListMessages, h.listMessages, tt.args)
			if diff := cmp.Diff(tt.want, summaryIDs(msgs)); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("invalid sort", func(t *testing.T) {
		runToolExpectError(t, ToolListMessages, h.listMessages, map[string]any{"sort": "sideways"})
	})
}

func TestListTags(t *testing.T) {
	h := newTestHandlers(t)
	tags := runTool[[]tagCount](t, ToolListTags, h.listTags, nil)

	counts := map[string]int{}
	for _, tc := range tags {
		counts[tc.Label] = tc.Count
	}
	if diff := cmp.Diff(map[string]int{"work": 2, "home": 1}, counts); diff != "" {
		t.Errorf("tag counts mismatch (-want +got):\n%s", diff)
	}
}

func TestGetMessage(t *testing.T) {
	h := newTestHandlers(t)

	t.Run("found", func(t *testing.T) {
		msg := runTool[messageDetail](t, ToolGetMessage, h.getMessage, map[string]any{"id": "b"})
		if msg.Subject != "Invoice again" || msg.Body != "pay\nnow" {
			t.Errorf("message = %+v", msg)
		}
		names := make([]string, len(msg.Labels))
		for i, l := range msg.Labels {
			names[i] = l.Name
		}
		testutil.AssertStrings(t, names, "work", "later")
	})

	t.Run("not found", func(t *testing.T) {
		r := runToolExpectError(t, ToolGetMessage, h.getMessage, map[string]any{"id": "zzz"})
		if !strings.Contains(resultText(t, r), "not found") {
			t.Errorf("error text = %q", resultText(t, r))
		}
	})

	t.Run("missing id", func(t *testing.T) {
		runToolExpectError(t, ToolGetMessage, h.getMessage, map[string]any{})
	})
}

func TestGetStats(t *testing.T) {
	h := newTestHandlers(t)
	resp := runTool[struct {
		Index struct {
			Resolved int `json:"resolved"`
			Messages int `json:"messages"`
		} `json:"index"`
	}](t, ToolGetStats, h.getStats, nil)

	if resp.Index.Resolved != 1 || resp.Index.Messages != 1 {
		t.Errorf("index stats = %+v", resp.Index)
	}
}

func TestLimitArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"missing", map[string]any{}, 20},
		{"normal", map[string]any{"limit": float64(5)}, 5},
		{"negative", map[string]any{"limit": float64(-1)}, 0},
		{"too large", map[string]any{"limit": float64(1e9)}, maxLimit},
		{"nan", map[string]any{"limit": math.NaN()}, 0},
		{"inf", map[string]any{"limit": math.Inf(1)}, maxLimit},
		{"wrong type", map[string]any{"limit": "5"}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := limitArg(tt.args, "limit", 20); got != tt.want {
				t.Errorf("limitArg() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(newTestHandlers(t).mailbox, "test")
	resp := s.HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`))
	data, err := json.Marshal(resp)
	testutil.MustNoErr(t, err, "marshal tools/list response")
	testutil.AssertContainsAll(t, string(data),
		`"name":"`+ToolListMessages+`"`,
		`"name":"`+ToolListTags+`"`,
		`"name":"`+ToolGetMessage+`"`,
		`"name":"`+ToolGetStats+`"`,
		"tags applied through relations are reported in labels but cannot be filtered on",
	)
}
