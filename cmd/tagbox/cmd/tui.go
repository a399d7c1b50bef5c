package cmd

import (
	"github.com/spf13/cobra"
	"github.com/wesm/tagbox/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	Long: `Open an interactive terminal UI for browsing the mailbox by tag.

Navigation:
  ↑/k, ↓/j         Move up/down
  PgUp/PgDn        Page up/down
  Tab/Shift+Tab    Move the tag cursor
  Space/Enter      Toggle the tag under the cursor
  /                Edit the filter text
  s                Flip sort direction
  c                Clear filters
  r                Refresh
  q                Quit

The view follows changes made by other processes (for example
'tagbox import' or 'tagbox tag') every [index] watch_interval.`,
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
		return tui.Run(sess, tui.Options{
			Version:         Version,
			RefreshInterval: interval,
		})
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
