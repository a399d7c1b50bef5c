package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	mcpserver "github.com/wesm/tagbox/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This allows any MCP client to browse your mailbox using the tools
list_messages, list_tags, get_message and get_stats.

Add to your MCP client config:
  {
    "mcpServers": {
      "tagbox": {
        "command": "tagbox",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := cfg.WatchInterval()
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		sess, err := openSession(cmd.Context(), s, nil)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if interval > 0 {
			go func() {
				if err := sess.Watch(ctx, interval); err != nil {
					logger.Warn("watch stopped", "error", err)
				}
			}()
		}

		if err := mcpserver.Serve(ctx, sess, Version); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
