package store

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/manudev97/first-frame-sub000/internal/models"
)

func newTestBindings(t *testing.T) *BindingStore {
	t.Helper()
	store, err := NewBindingStore(filepath.Join(t.TempDir(), "bindings.db"), &bolt.Options{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new binding store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBindAndLookup(t *testing.T) {
	store := newTestBindings(t)

	if _, err := store.Bind(42, "0xAbCdef0123456789abcdef0123456789abcdef01"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	binding, err := store.Lookup(42)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if binding.Address != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("address not normalised: %q", binding.Address)
	}

	id, err := store.IdentifierForAddress("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("reverse lookup: %v", err)
	}
	if id != 42 {
		t.Fatalf("reverse lookup = %d, want 42", id)
	}
}

func TestBindConflict(t *testing.T) {
	store := newTestBindings(t)
	const addr = "0x0101010101010101010101010101010101010101"

	if _, err := store.Bind(1, addr); err != nil {
		t.Fatalf("bind: %v", err)
	}
	// Same pair again is fine.
	if _, err := store.Bind(1, addr); err != nil {
		t.Fatalf("rebind same pair: %v", err)
	}
	if _, err := store.Bind(2, addr); err != ErrBindingConflict {
		t.Fatalf("err = %v, want ErrBindingConflict", err)
	}
}

func TestLookupMissing(t *testing.T) {
	store := newTestBindings(t)
	if _, err := store.Lookup(404); err != ErrBindingNotFound {
		t.Fatalf("err = %v, want ErrBindingNotFound", err)
	}
	if _, err := store.IdentifierForAddress("0x9999999999999999999999999999999999999999"); err != ErrBindingNotFound {
		t.Fatalf("err = %v, want ErrBindingNotFound", err)
	}
}

func TestRecordCompletionOrder(t *testing.T) {
	store := newTestBindings(t)
	for i := 0; i < 3; i++ {
		err := store.RecordCompletion(models.PuzzleCompletion{
			SessionID: string(rune('a' + i)),
			PayerID:   int64(i),
			ContentID: "ip-1",
			Pieces:    9,
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	completions, err := store.Completions()
	if err != nil {
		t.Fatalf("completions: %v", err)
	}
	if len(completions) != 3 {
		t.Fatalf("count = %d, want 3", len(completions))
	}
	for i, c := range completions {
		if c.PayerID != int64(i) {
			t.Fatalf("completion %d out of order: %+v", i, c)
		}
	}
}
