package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/search"
)

var (
	listTags  []string
	listAsc   bool
	listJSON  bool
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list [filter text]",
	Short: "List messages matching a filter",
	Long: `List the messages of the configured mailbox that match a filter.

Filter syntax:
  #label, tag:label     require a tag (literal tags carried by the message)
  from:, subject:       text filters
  sort:asc, sort:desc   sort by creation time
  words, "phrases"      text filters matched against sender, subject and body

Tag labels match without regard to case. Tags applied with 'tagbox tag' or
POST /api/v1/messages/{id}/tags show up in a message's labels but cannot be
selected with #label or --tag.

Without arguments the [mailbox] default_filter from config.toml is used.

Examples:
  tagbox list
  tagbox list '#work invoice'
  tagbox list --tag work --tag urgent --asc
  tagbox list --json --limit 10`,
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

		text := strings.Join(args, " ")
		if len(args) == 0 && len(listTags) == 0 {
			text = cfg.Mailbox.DefaultFilter
		}
		for _, tag := range listTags {
			text = search.AppendTag(text, tag)
		}
		if listAsc {
			text += " sort:asc"
		}

		q := search.Parse(text)
		logger.Debug("listing messages", "query", q.String())
		msgs := sess.Query(q)
		total := len(msgs)
		if listLimit > 0 && len(msgs) > listLimit {
			msgs = msgs[:listLimit]
		}

		names := sess.LabelNames()
		out := cmd.OutOrStdout()
		if listJSON {
			rows := make([]listedMessage, len(msgs))
			for i := range msgs {
				rows[i] = toListed(&msgs[i], names)
			}
			return printJSON(out, rows)
		}

		if len(msgs) == 0 {
			fmt.Fprintln(out, "No messages found.")
			return nil
		}
		outputMessageTable(out, msgs, names, isTerminal(out))
		if total > len(msgs) {
			fmt.Fprintf(out, "\nShowing %d of %s messages\n", len(msgs), humanize.Comma(int64(total)))
		}
		return nil
	},
}

type listedMessage struct {
	ID      string     `json:"id"`
	Created *time.Time `json:"created,omitempty"`
	From    string     `json:"from,omitempty"`
	Subject string     `json:"subject,omitempty"`
	Labels  []string   `json:"labels"`
}

func toListed(msg *mailbox.Message, names map[string]string) listedMessage {
	row := listedMessage{
		ID:      msg.ID,
		From:    msg.Sender.Email,
		Subject: msg.Properties.Subject,
		Labels:  resolveLabels(msg, names),
	}
	if msg.HasCreated() {
		created := msg.Created
		row.Created = &created
	}
	return row
}

// resolveLabels maps a message's merged label ids to tag labels.
func resolveLabels(msg *mailbox.Message, names map[string]string) []string {
	out := make([]string, 0, len(msg.Properties.Labels))
	for _, id := range msg.Properties.Labels {
		if name, ok := names[id]; ok && name != "" {
			out = append(out, name)
		} else {
			out = append(out, id)
		}
	}
	return out
}

// outputMessageTable prints messages as aligned columns. Interactive output
// uses relative dates and truncates long subjects.
func outputMessageTable(out io.Writer, msgs []mailbox.Message, names map[string]string, interactive bool) {
	w := newTabWriter(out)
	fmt.Fprintln(w, "ID\tDATE\tFROM\tSUBJECT\tLABELS")
	for i := range msgs {
		msg := &msgs[i]
		date := "-"
		if msg.HasCreated() {
			if interactive {
				date = humanize.Time(msg.Created)
			} else {
				date = msg.Created.UTC().Format(time.RFC3339)
			}
		}
		subject := msg.Properties.Subject
		if interactive {
			subject = runewidth.Truncate(subject, 50, "...")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			msg.ID, date, msg.Sender.Email, subject,
			strings.Join(resolveLabels(msg, names), ","))
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringArrayVar(&listTags, "tag", nil, "require a tag (repeatable)")
	listCmd.Flags().BoolVar(&listAsc, "asc", false, "oldest first")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "maximum messages to show (0 = all)")
}
