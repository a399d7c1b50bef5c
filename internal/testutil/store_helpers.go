package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/store"
)

// NewTestStore creates a temporary database for testing.
// The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}

// SeedMessages stores msgs in the default mailbox.
func SeedMessages(t *testing.T, st *store.Store, msgs ...mailbox.Message) {
	t.Helper()
	for _, m := range msgs {
		_, err := st.UpsertMessage(context.Background(), store.DefaultMailbox, m)
		MustNoErr(t, err, "UpsertMessage "+m.ID)
	}
}

// MustTag applies label to a stored message and returns the relation.
func MustTag(t *testing.T, st *store.Store, messageID, label string) *mailbox.Relation {
	t.Helper()
	rel, err := st.TagMessage(context.Background(), messageID, label)
	MustNoErr(t, err, "TagMessage "+messageID+" "+label)
	return rel
}
