// Package tui provides a terminal mailbox browser for tagbox.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/session"
)

// Session is the mailbox state the browser drives. *session.Session
// implements it.
type Session interface {
	View() session.View
	Refresh(ctx context.Context) error
	ToggleTag(label string) bool
	ApplyFilterText(text string)
	ClearFilters()
	ToggleSort() mailbox.SortDirection
}

var _ Session = (*session.Session)(nil)

// Options configuration for TUI.
type Options struct {
	Version string
	// RefreshInterval polls the session for store changes. Zero disables
	// polling; r still refreshes on demand.
	RefreshInterval time.Duration
}

// reservedLines is the chrome around the message list: title bar, tag bar,
// filter line, table header, separator and footer.
const reservedLines = 6

const flashDuration = 3 * time.Second

// Model is the main TUI model following the Elm architecture.
type Model struct {
	sess            Session
	version         string
	refreshInterval time.Duration

	// Latest session snapshot
	view session.View

	// Message list position
	cursor       int
	scrollOffset int
	pageSize     int

	// Tag bar position
	tagCursor int

	// Filter text editing
	filterActive bool
	filterInput  textinput.Model

	// Terminal dimensions
	width  int
	height int

	loading bool
	err     error

	// Flash message (temporary notification)
	flashMessage   string
	flashExpiresAt time.Time

	quitting bool
}

// New creates a new TUI model over sess.
func New(sess Session, opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "#tag words \"phrase\" from:addr"
	ti.Prompt = "/ "
	ti.CharLimit = 200
	ti.Width = 50

	return Model{
		sess:            sess,
		version:         opts.Version,
		refreshInterval: opts.RefreshInterval,
		view:            sess.View(),
		pageSize:        20,
		loading:         true,
		filterInput:     ti,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), m.scheduleTick())
}

// refreshedMsg carries a session snapshot taken after a refresh.
type refreshedMsg struct {
	view session.View
	err  error
}

// tickMsg triggers a periodic refresh.
type tickMsg struct{}

// flashClearMsg clears the flash message after timeout.
type flashClearMsg struct{}

// refresh reloads the session from its store off the UI goroutine.
func (m Model) refresh() tea.Cmd {
	sess := m.sess
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = refreshedMsg{view: sess.View(), err: fmt.Errorf("refresh panic: %v", r)}
			}
		}()
		err := sess.Refresh(context.Background())
		return refreshedMsg{view: sess.View(), err: err}
	}
}

func (m Model) scheduleTick() tea.Cmd {
	if m.refreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = max(msg.Width, 0)
		m.height = max(msg.Height, 0)
		m.pageSize = max(m.height-reservedLines, 1)
		m.filterInput.Width = max(m.width-4, 10)
		m.ensureCursorVisible()
		return m, nil

	case refreshedMsg:
		m.loading = false
		m.err = msg.err
		m.setView(msg.view)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.scheduleTick())

	case flashClearMsg:
		if !m.flashExpiresAt.IsZero() && !time.Now().Before(m.flashExpiresAt) {
			m.flashMessage = ""
		}
		return m, nil
	}
	return m, nil
}

// setView installs a new snapshot and keeps both cursors in range.
func (m *Model) setView(v session.View) {
	m.view = v
	m.cursor = clamp(m.cursor, 0, len(v.Messages)-1)
	m.tagCursor = clamp(m.tagCursor, 0, len(v.Tags)-1)
	m.ensureCursorVisible()
}

// reload takes a fresh snapshot after a synchronous filter change. The
// message cursor returns to the top because the list has changed.
func (m *Model) reload() {
	m.cursor = 0
	m.scrollOffset = 0
	m.setView(m.sess.View())
}

func (m *Model) ensureCursorVisible() {
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}
	if m.cursor >= m.scrollOffset+m.pageSize {
		m.scrollOffset = m.cursor - m.pageSize + 1
	}
	m.scrollOffset = max(m.scrollOffset, 0)
}

func (m *Model) flash(text string) tea.Cmd {
	m.flashMessage = text
	m.flashExpiresAt = time.Now().Add(flashDuration)
	return tea.Tick(flashDuration, func(time.Time) tea.Msg { return flashClearMsg{} })
}

// selectedMessage returns the message under the cursor.
func (m Model) selectedMessage() (mailbox.Message, bool) {
	if m.cursor < 0 || m.cursor >= len(m.view.Messages) {
		return mailbox.Message{}, false
	}
	return m.view.Messages[m.cursor], true
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

// Run starts the browser and blocks until the user quits.
func Run(sess Session, opts Options) error {
	p := tea.NewProgram(New(sess, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
