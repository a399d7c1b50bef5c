package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the relation index from the store",
	Long: `Discard all relation state and resolve every stored relation again.

Relations are normally resolved incrementally. A rebuild drops relation
tags whose relations no longer exist and reports what the index holds
afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		sess, err := openSession(cmd.Context(), s, nil)
		if err != nil {
			return err
		}
		if err := sess.Rebuild(cmd.Context()); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}

		st := sess.IndexStats()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Relation index rebuilt")
		fmt.Fprintf(out, "  Resolved:        %d\n", st.Resolved)
		fmt.Fprintf(out, "  Pending:         %d\n", st.Pending)
		fmt.Fprintf(out, "  Dropped:         %d\n", st.Dropped)
		fmt.Fprintf(out, "  Tagged messages: %d\n", st.Messages)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
