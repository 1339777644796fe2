package testsupport

import (
	"context"
	"testing"
	"time"

	"citetrack/internal/config"
	"citetrack/internal/item"
	"citetrack/internal/machine"
	"citetrack/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewItem creates a fresh URL item for tests using the provided store.
func NewItem(t testing.TB, st *store.Store, sourceURL string) *item.URLItem {
	t.Helper()

	it, err := st.NewItem(context.Background(), sourceURL)
	if err != nil {
		t.Fatalf("store.NewItem: %v", err)
	}
	return it
}

// MustTransition applies an event through the machine and commits it,
// failing the test on rejection or storage error. Returns the updated item.
func MustTransition(t testing.TB, st *store.Store, it *item.URLItem, ev machine.Event, trigger item.Trigger) *item.URLItem {
	t.Helper()

	next, entry, rejection := machine.Transition(*it, ev, trigger, time.Now())
	if rejection != nil {
		t.Fatalf("transition %s rejected: %s", ev.Kind(), rejection)
	}
	if err := st.CommitTransition(context.Background(), &next, entry); err != nil {
		t.Fatalf("commit %s: %v", ev.Kind(), err)
	}
	return &next
}

// CompleteCitationJSON returns an encoded citation carrying every required
// field, for driving items into the stored stage.
func CompleteCitationJSON(t testing.TB) string {
	t.Helper()

	cit := item.Citation{
		Title:    "An Example Work",
		Creators: []item.Creator{{Family: "Doe", Given: "Jan"}},
		Date:     "2024-05-01",
	}
	encoded, err := cit.Encode()
	if err != nil {
		t.Fatalf("encode citation: %v", err)
	}
	return encoded
}
