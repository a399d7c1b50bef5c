package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgCursor)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}).
			Background(bgBase)

	// Tag chips: selected tags are bold and highlighted, the tag cursor is underlined.
	tagChipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"})

	selectedTagStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#000000"}).
				Background(lipgloss.AdaptiveColor{Light: "#e8d44d", Dark: "#e8d44d"})

	tagCursorStyle = lipgloss.NewStyle().Underline(true)
)

// Column widths for the message table.
const (
	dateWidth   = 16
	senderWidth = 20
	labelsWidth = 24
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	return strings.Join([]string{
		m.titleBarView(),
		m.tagBarView(),
		m.filterLineView(),
		m.messageListView(),
		m.footerView(),
	}, "\n")
}

func (m Model) titleBarView() string {
	title := "tagbox"
	if m.version != "" {
		title += " " + m.version
	}
	stats := fmt.Sprintf("%d of %d messages | %s", len(m.view.Messages), m.view.Total, sortLabel(m.view.Sort))
	if m.loading {
		stats += " | loading"
	}
	content := title + "  " + stats
	return titleBarStyle.Render(padRight(content, max(m.width-2, 1)))
}

// tagBarView renders one chip per available tag. When the chips do not fit,
// the bar scrolls so the tag cursor stays visible.
func (m Model) tagBarView() string {
	width := max(m.width-2, 1)
	if len(m.view.Tags) == 0 {
		return statsStyle.Render(padRight("no tags", width))
	}

	chips := make([]string, len(m.view.Tags))
	for i, tc := range m.view.Tags {
		style := tagChipStyle
		if tc.Selected {
			style = selectedTagStyle
		}
		if i == m.tagCursor {
			style = style.Inherit(tagCursorStyle)
		}
		chips[i] = style.Render(fmt.Sprintf("#%s %d", tc.Tag.Label, tc.Count))
	}

	start := 0
	for start < m.tagCursor && lipgloss.Width(strings.Join(chips[start:m.tagCursor+1], " ")) > width {
		start++
	}
	bar := strings.Join(chips[start:], " ")
	if start > 0 {
		bar = "< " + bar
	}
	return " " + padRight(ansi.Truncate(bar, width, ""), width) + " "
}

func (m Model) filterLineView() string {
	width := max(m.width-2, 1)
	if m.filterActive {
		return " " + padRight(m.filterInput.View(), width) + " "
	}
	if m.view.FilterText != "" {
		return statsStyle.Render(padRight("filter: "+m.view.FilterText, width))
	}
	return statsStyle.Render(padRight("press / to filter", width))
}

func (m Model) subjectWidth() int {
	// Four single-space gutters separate the columns.
	return max(m.width-dateWidth-senderWidth-labelsWidth-4, 10)
}

func (m Model) formatRow(date, sender, subject, labels string) string {
	return " " + padRight(date, dateWidth) +
		" " + padRight(truncateRunes(sender, senderWidth), senderWidth) +
		" " + padRight(truncateRunes(subject, m.subjectWidth()), m.subjectWidth()) +
		" " + truncateRunes(labels, labelsWidth)
}

func (m Model) messageListView() string {
	var sb strings.Builder
	header := m.formatRow("Date", "From", "Subject", "Labels")
	sb.WriteString(tableHeaderStyle.Render(padRight(header, m.width)))
	sb.WriteString("\n")
	sb.WriteString(separatorStyle.Render(strings.Repeat("-", m.width)))
	sb.WriteString("\n")

	if m.err != nil {
		sb.WriteString(errorStyle.Render(padRight(" Error: "+m.err.Error(), m.width)))
		sb.WriteString("\n")
	}

	msgs := m.view.Messages
	if len(msgs) == 0 {
		text := " No messages"
		if m.view.FilterText != "" || len(m.view.TextFilters) > 0 || hasSelectedTag(m) {
			text = " No messages match the current filters"
		}
		sb.WriteString(normalRowStyle.Render(padRight(text, m.width)))
	}

	end := min(m.scrollOffset+m.pageSize, len(msgs))
	for i := m.scrollOffset; i < end; i++ {
		msg := &msgs[i]
		subject := msg.Properties.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		row := padRight(m.formatRow(
			formatDate(msg),
			formatSender(msg.Sender),
			subject,
			strings.Join(labelNames(msg, m.view.LabelNames), " "),
		), m.width)

		style := normalRowStyle
		switch {
		case i == m.cursor:
			style = cursorRowStyle
		case i%2 == 1:
			style = altRowStyle
		}
		sb.WriteString(style.Render(row))
		if i < end-1 {
			sb.WriteString("\n")
		}
	}

	// Fill the page so the footer stays at the bottom.
	used := max(end-m.scrollOffset, 1)
	for i := used; i < m.pageSize; i++ {
		sb.WriteString("\n")
		sb.WriteString(normalRowStyle.Render(strings.Repeat(" ", m.width)))
	}
	return sb.String()
}

func hasSelectedTag(m Model) bool {
	for _, tc := range m.view.Tags {
		if tc.Selected {
			return true
		}
	}
	return false
}

func (m Model) footerView() string {
	width := max(m.width-2, 1)
	if m.flashMessage != "" {
		return flashStyle.Render(padRight(" "+m.flashMessage, m.width))
	}
	if m.filterActive {
		return footerStyle.Render(padRight("Enter apply | Esc cancel", width))
	}

	keys := strings.Join([]string{
		"j/k move",
		"tab tag",
		"space toggle",
		"/ filter",
		"s sort",
		"c clear",
		"r refresh",
		"q quit",
	}, " | ")
	pos := ""
	if n := len(m.view.Messages); n > 0 {
		pos = fmt.Sprintf(" %d/%d", m.cursor+1, n)
	}
	gap := max(width-lipgloss.Width(keys)-lipgloss.Width(pos), 1)
	return footerStyle.Render(padRight(keys+strings.Repeat(" ", gap)+pos, width))
}
