package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/wesm/tagbox/internal/metrics"
	"github.com/wesm/tagbox/internal/session"
	"github.com/wesm/tagbox/internal/store"
)

// openStore opens the configured database and makes sure the schema exists.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// openSession loads the configured mailbox from s into a new session.
// m may be nil.
func openSession(ctx context.Context, s *store.Store, m *metrics.Collector) (*session.Session, error) {
	dir, err := cfg.SortDirection()
	if err != nil {
		return nil, err
	}
	sess := session.New(s, session.Options{
		Mailbox: cfg.Data.Mailbox,
		Sort:    dir,
		Logger:  logger,
		Metrics: m,
	})
	if err := sess.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("load mailbox: %w", err)
	}
	if text := cfg.Mailbox.DefaultFilter; text != "" {
		sess.ApplyFilterText(text)
	}
	return sess, nil
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
