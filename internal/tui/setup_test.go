package tui

import (
	"context"
	"regexp"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/wesm/tagbox/internal/session"
	"github.com/wesm/tagbox/internal/store"
	"github.com/wesm/tagbox/internal/testutil"
)

// ansiStart is the escape sequence prefix found in styled terminal output.
const ansiStart = "\x1b["

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI color output for tests that assert
// on styled output and restores the original profile via t.Cleanup.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// newTestSession returns a refreshed session over a store seeded with:
//
//	a (day 1) #work        "Invoice"
//	b (day 2) #work #urgent "Invoice again"
//	c (day 3) #home        "Dinner"
//	d (undated)            "Draft"
//
// plus a relation tagging c with "later".
func newTestSession(t *testing.T) (*session.Session, *store.Store) {
	t.Helper()
	st := testutil.NewTestStore(t)
	testutil.SeedMessages(t, st,
		testutil.NewMessage("a").WithCreated(testutil.Day(1)).WithTags("work").WithSubject("Invoice").WithSender("Alice", "alice@example.com").Build(),
		testutil.NewMessage("b").WithCreated(testutil.Day(2)).WithTags("work", "urgent").WithSubject("Invoice again").WithSender("", "bob@example.com").Build(),
		testutil.NewMessage("c").WithCreated(testutil.Day(3)).WithTags("home").WithSubject("Dinner").Build(),
		testutil.NewMessage("d").Undated().WithSubject("Draft").Build(),
	)
	testutil.MustTag(t, st, "c", "later")

	sess := session.New(st, session.Options{Mailbox: store.DefaultMailbox})
	testutil.MustNoErr(t, sess.Refresh(context.Background()), "Refresh")
	return sess, st
}

// newTestModel builds a sized model over newTestSession.
func newTestModel(t *testing.T) Model {
	t.Helper()
	sess, _ := newTestSession(t)
	m := New(sess, Options{Version: "test"})
	m, _ = sendMsg(t, m, tea.WindowSizeMsg{Width: 120, Height: 20})
	m, _ = sendMsg(t, m, refreshedMsg{view: sess.View()})
	return m
}

// sendKey sends a key message to the model and returns the updated concrete Model.
func sendKey(t *testing.T, m Model, k tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	newM, cmd := m.Update(k)
	return newM.(Model), cmd
}

// sendKeys sends each key in order, discarding commands.
func sendKeys(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		m, _ = sendKey(t, m, k)
	}
	return m
}

// sendMsg sends any tea.Msg through Update and returns the concrete Model.
func sendMsg(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	newM, cmd := m.Update(msg)
	return newM.(Model), cmd
}

// typeText sends one rune key per character.
func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = sendKey(t, m, key(r))
	}
	return m
}

func visibleIDs(m Model) []string {
	return testutil.MessageIDs(m.view.Messages)
}

func tagLabels(m Model) []string {
	out := make([]string, len(m.view.Tags))
	for i, tc := range m.view.Tags {
		out[i] = tc.Tag.Label
	}
	return out
}

// key returns a KeyMsg for a single rune (e.g., key('x'), key(' '))
func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func keyEnter() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

func keyEsc() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEscape}
}

func keyTab() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyTab}
}

func keyShiftTab() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyShiftTab}
}

func keySpace() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
}

func keyDown() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyDown}
}
