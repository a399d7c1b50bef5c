// Package testutil provides test helpers for tagbox tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, MessageIDs)
//   - store_helpers.go: database test setup (NewTestStore)
//   - builders.go: message, tag and relation builders
package testutil
