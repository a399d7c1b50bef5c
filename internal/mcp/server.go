package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/relindex"
	"github.com/wesm/tagbox/internal/search"
	"github.com/wesm/tagbox/internal/session"
)

// Tool name constants.
const (
	ToolListMessages = "list_messages"
	ToolListTags     = "list_tags"
	ToolGetMessage   = "get_message"
	ToolGetStats     = "get_stats"
)

// Mailbox is the read side the tools query. *session.Session implements it.
type Mailbox interface {
	Query(q *search.Query) []mailbox.Message
	Message(id string) (mailbox.Message, bool)
	Tags() []session.TagCount
	LabelNames() map[string]string
	IndexStats() relindex.Stats
	ModelStats() mailbox.Stats
}

var _ Mailbox = (*session.Session)(nil)

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

// NewServer creates an MCP server exposing the mailbox tools.
func NewServer(mb Mailbox, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"tagbox",
		version,
		server.WithToolCapabilities(false),
	)

	h := &handlers{mailbox: mb}

	s.AddTool(listMessagesTool(), h.listMessages)
	s.AddTool(listTagsTool(), h.listTags)
	s.AddTool(getMessageTool(), h.getMessage)
	s.AddTool(getStatsTool(), h.getStats)
	return s
}

// Serve serves the mailbox tools over stdio. It blocks until stdin is
// closed or the context is cancelled.
func Serve(ctx context.Context, mb Mailbox, version string) error {
	stdio := server.NewStdioServer(NewServer(mb, version))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func listMessagesTool() mcp.Tool {
	return mcp.NewTool(ToolListMessages,
		mcp.WithDescription("List messages matching a filter. Filter text supports #tag, tag:, from:, subject:, quoted phrases and free text; all filters must match. #tag matches literal message tags case-insensitively; tags applied through relations are reported in labels but cannot be filtered on."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Description("Filter text (e.g. '#work invoice'). Empty lists every message."),
		),
		mcp.WithString("sort",
			mcp.Description("Creation time order (default desc)"),
			mcp.Enum("desc", "asc"),
		),
		withLimit("20"),
	)
}

func listTagsTool() mcp.Tool {
	return mcp.NewTool(ToolListTags,
		mcp.WithDescription("List the tags present in the mailbox with the number of messages carrying each."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func getMessageTool() mcp.Tool {
	return mcp.NewTool(ToolGetMessage,
		mcp.WithDescription("Get a message by ID with its body blocks, literal tags and merged labels."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Message ID"),
		),
	)
}

func getStatsTool() mcp.Tool {
	return mcp.NewTool(ToolGetStats,
		mcp.WithDescription("Get relation index and mailbox model counters."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
