package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/wesm/tagbox/internal/mailbox"
)

// padRight pads a string with spaces to fill width terminal cells.
// Uses lipgloss.Width to correctly handle ANSI codes and full-width characters.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateRunes truncates a string to fit within maxWidth terminal cells.
// Newlines and tabs are flattened first so a field stays on one row.
func truncateRunes(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// formatDate renders the creation date column. Undated messages show a dash.
func formatDate(m *mailbox.Message) string {
	if !m.HasCreated() {
		return "-"
	}
	return m.Created.Local().Format("2006-01-02 15:04")
}

// formatSender prefers the display name and falls back to the address.
func formatSender(s mailbox.Sender) string {
	if s.Name != "" {
		return s.Name
	}
	return s.Email
}

// labelNames resolves a message's merged label ids to display names.
// Unknown ids are shown as-is.
func labelNames(m *mailbox.Message, names map[string]string) []string {
	out := make([]string, 0, len(m.Properties.Labels))
	for _, id := range m.Properties.Labels {
		if name := names[id]; name != "" {
			out = append(out, name)
		} else {
			out = append(out, id)
		}
	}
	return out
}

func sortLabel(dir mailbox.SortDirection) string {
	if dir == mailbox.SortAsc {
		return "oldest first"
	}
	return "newest first"
}
