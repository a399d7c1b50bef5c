package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/wesm/tagbox/internal/importer"
)

var importWorkers int

var importCmd = &cobra.Command{
	Use:   "import <path>...",
	Short: "Import .eml and .json messages into the mailbox",
	Long: `Import messages from files or directories.

Supported files:
  *.eml    a single RFC 5322 message
  *.json   an array of message objects

Directories are walked recursively. Other files are skipped. Messages are
stored in the configured mailbox ([data] mailbox); importing a message
with a known id replaces it.

Examples:
  tagbox import ~/Downloads/receipt.eml
  tagbox import ./export/ messages.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		im := importer.New(s, importer.Options{
			Mailbox: cfg.Data.Mailbox,
			Workers: importWorkers,
			Logger:  logger,
		})
		sum, err := im.ImportPaths(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Imported %s messages from %s files in %s\n",
			humanize.Comma(int64(sum.Imported)), humanize.Comma(int64(sum.Files)), sum.Duration.Round(time.Millisecond))
		if sum.Skipped > 0 {
			fmt.Fprintf(out, "  Skipped: %s unsupported files\n", humanize.Comma(int64(sum.Skipped)))
		}
		if sum.Failed > 0 {
			fmt.Fprintf(out, "  Failed:  %s files could not be parsed\n", humanize.Comma(int64(sum.Failed)))
			return fmt.Errorf("%d files failed to import", sum.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().IntVar(&importWorkers, "workers", 0, "parallel parsers (default: number of CPUs)")
}
