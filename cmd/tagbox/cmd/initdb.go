package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Initialize the database and write a default config",
	Long: `Create the SQLite database and its tables if they don't exist, and
write config.toml with default values when no config file exists yet.
Running it again is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		path := cfg.ConfigFilePath()
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(out, "Wrote default config to %s\n", path)
		}

		stats, err := s.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		logger.Debug("database ready", "path", s.Path())
		fmt.Fprintf(out, "Database ready at %s\n", s.Path())
		fmt.Fprintf(out, "  Messages:  %s\n", humanize.Comma(stats.MessageCount))
		fmt.Fprintf(out, "  Tags:      %s\n", humanize.Comma(stats.TagCount))
		fmt.Fprintf(out, "  Relations: %s\n", humanize.Comma(stats.RelationCount))
		fmt.Fprintf(out, "  Size:      %s\n", humanize.Bytes(uint64(stats.DatabaseSize)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
