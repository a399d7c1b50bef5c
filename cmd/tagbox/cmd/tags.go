package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wesm/tagbox/internal/store"
)

var tagsJSON bool

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List available tags with message counts",
	Long: `List every tag present on a message of the configured mailbox, in the
order tags are first seen, with the number of messages carrying each one.
Only literal tags are listed. Tags applied with 'tagbox tag' appear in
message labels instead.`,
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
		tags := sess.Tags()

		out := cmd.OutOrStdout()
		if tagsJSON {
			return printJSON(out, tags)
		}
		if len(tags) == 0 {
			fmt.Fprintln(out, "No tags found.")
			return nil
		}
		w := newTabWriter(out)
		fmt.Fprintln(w, "TAG\tMESSAGES\tHUE")
		for _, tc := range tags {
			fmt.Fprintf(w, "%s\t%d\t%s\n", tc.Tag.Label, tc.Count, tc.Tag.Hue)
		}
		return w.Flush()
	},
}

var tagCmd = &cobra.Command{
	Use:   "tag <message-id> <label>",
	Short: "Apply a tag to a message through a relation",
	Long: `Record a relation that applies the tag <label> to a stored message. The
tag is created when it does not exist. The relation id printed can be
passed to 'tagbox untag' to remove it again.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		rel, err := s.TagMessage(cmd.Context(), args[0], args[1])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("message %s not found", args[0])
		}
		if err != nil {
			return err
		}
		logger.Debug("tagged message", "message", args[0], "label", args[1], "relation", rel.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s with %q (relation %s)\n", args[0], args[1], rel.ID)
		return nil
	},
}

var untagCmd = &cobra.Command{
	Use:   "untag <relation-id>",
	Short: "Remove a relation created by 'tagbox tag'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.RemoveRelation(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("relation %s not found", args[0])
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed relation %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagsCmd, tagCmd, untagCmd)
	tagsCmd.Flags().BoolVar(&tagsJSON, "json", false, "output as JSON")
}
