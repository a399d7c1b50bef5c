package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/wesm/tagbox/internal/search"
	"github.com/wesm/tagbox/internal/store"
)

var filtersJSON bool

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List saved filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		filters, err := s.ListFilters(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if filtersJSON {
			return printJSON(out, filters)
		}
		if len(filters) == 0 {
			fmt.Fprintln(out, "No saved filters.")
			return nil
		}
		interactive := isTerminal(out)
		w := newTabWriter(out)
		fmt.Fprintln(w, "NAME\tFILTER\tUPDATED")
		for _, f := range filters {
			updated := f.UpdatedAt.UTC().Format("2006-01-02 15:04")
			if interactive {
				updated = humanize.Time(f.UpdatedAt)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, f.Text, updated)
		}
		return w.Flush()
	},
}

var saveFilterCmd = &cobra.Command{
	Use:   "save-filter <name> <filter text>...",
	Short: "Save filter text under a name",
	Long: `Save filter text under a name, replacing any filter with the same name.
The text is normalized before it is stored, so '  invoice  #work' is saved
as '#work invoice'.

Example:
  tagbox save-filter bills '#work invoice'`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("filter name must not be empty")
		}
		text := search.Parse(strings.Join(args[1:], " ")).String()

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.SaveFilter(cmd.Context(), name, text); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved filter %s: %s\n", name, text)
		return nil
	},
}

var deleteFilterCmd = &cobra.Command{
	Use:   "delete-filter <name>",
	Short: "Delete a saved filter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteFilter(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("filter %s not found", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted filter %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filtersCmd, saveFilterCmd, deleteFilterCmd)
	filtersCmd.Flags().BoolVar(&filtersJSON, "json", false, "output as JSON")
}
