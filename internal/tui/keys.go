package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// handleKeyPress routes keys to the filter bar while it is active and to
// the browser otherwise.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterActive {
		return m.handleFilterKeys(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	// Message list
	case "j", "down":
		if m.cursor < len(m.view.Messages)-1 {
			m.cursor++
			m.ensureCursorVisible()
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
			m.ensureCursorVisible()
		}
	case "g", "home":
		m.cursor = 0
		m.ensureCursorVisible()
	case "G", "end":
		m.cursor = max(len(m.view.Messages)-1, 0)
		m.ensureCursorVisible()
	case "pgdown", "ctrl+d":
		m.cursor = clamp(m.cursor+m.pageSize, 0, len(m.view.Messages)-1)
		m.ensureCursorVisible()
	case "pgup", "ctrl+u":
		m.cursor = clamp(m.cursor-m.pageSize, 0, len(m.view.Messages)-1)
		m.ensureCursorVisible()

	// Tag bar
	case "tab", "l", "right":
		if n := len(m.view.Tags); n > 0 {
			m.tagCursor = (m.tagCursor + 1) % n
		}
	case "shift+tab", "h", "left":
		if n := len(m.view.Tags); n > 0 {
			m.tagCursor = (m.tagCursor - 1 + n) % n
		}
	case " ", "space", "enter":
		return m.toggleTagUnderCursor()

	// Filters and ordering
	case "/":
		return m.activateFilter()
	case "s":
		dir := m.sess.ToggleSort()
		m.reload()
		return m, m.flash("Sort: " + sortLabel(dir))
	case "c":
		m.sess.ClearFilters()
		m.filterInput.SetValue("")
		m.reload()
		return m, m.flash("Filters cleared")
	case "r":
		m.loading = true
		return m, m.refresh()
	}
	return m, nil
}

func (m Model) toggleTagUnderCursor() (tea.Model, tea.Cmd) {
	if m.tagCursor < 0 || m.tagCursor >= len(m.view.Tags) {
		return m, nil
	}
	label := m.view.Tags[m.tagCursor].Tag.Label
	m.sess.ToggleTag(label)
	m.reload()
	return m, nil
}

func (m Model) activateFilter() (tea.Model, tea.Cmd) {
	m.filterActive = true
	m.filterInput.SetValue(m.view.FilterText)
	m.filterInput.CursorEnd()
	return m, m.filterInput.Focus()
}

// handleFilterKeys handles keys while the filter bar is being edited.
// Enter applies the text; Esc leaves the current filters untouched.
func (m Model) handleFilterKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filterActive = false
		m.filterInput.Blur()
		m.sess.ApplyFilterText(m.filterInput.Value())
		m.reload()
		return m, nil

	case "esc":
		m.filterActive = false
		m.filterInput.Blur()
		m.filterInput.SetValue(m.view.FilterText)
		return m, nil

	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}
