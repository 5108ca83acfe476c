package alias

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/nimbly/receipts/internal/domain"
)

// exerciseStore runs the Store contract against any implementation.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Unknown raw name misses.
	if _, ok, err := store.ResolveAlias(ctx, "wfm", domain.EntityStore); err != nil || ok {
		t.Fatalf("ResolveAlias on empty store = (ok=%v, err=%v)", ok, err)
	}

	if err := store.PutAlias(ctx, "wfm", domain.EntityStore, "whole foods market"); err != nil {
		t.Fatalf("PutAlias failed: %v", err)
	}

	key, ok, err := store.ResolveAlias(ctx, "wfm", domain.EntityStore)
	if err != nil || !ok || key != "whole foods market" {
		t.Errorf("ResolveAlias(wfm) = (%q, %v, %v)", key, ok, err)
	}

	// The canonical key is self-mapped so it stays a fixed point.
	key, ok, err = store.ResolveAlias(ctx, "whole foods market", domain.EntityStore)
	if err != nil || !ok || key != "whole foods market" {
		t.Errorf("canonical self-map = (%q, %v, %v)", key, ok, err)
	}

	// Kinds are separate namespaces.
	if _, ok, _ := store.ResolveAlias(ctx, "wfm", domain.EntityProduct); ok {
		t.Error("store alias leaked into product namespace")
	}

	// Known keys are per user and per kind.
	for _, k := range []domain.Key{"milk", "bread"} {
		if err := store.PutKnownKey(ctx, domain.EntityProduct, "u1", k); err != nil {
			t.Fatalf("PutKnownKey failed: %v", err)
		}
	}
	if err := store.PutKnownKey(ctx, domain.EntityProduct, "u2", "rice"); err != nil {
		t.Fatalf("PutKnownKey failed: %v", err)
	}
	if err := store.PutKnownKey(ctx, domain.EntityStore, "u1", "walmart"); err != nil {
		t.Fatalf("PutKnownKey failed: %v", err)
	}

	keys, err := store.KnownKeys(ctx, domain.EntityProduct, "u1")
	if err != nil {
		t.Fatalf("KnownKeys failed: %v", err)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if len(keys) != 2 || keys[0] != "bread" || keys[1] != "milk" {
		t.Errorf("KnownKeys(product, u1) = %v, want [bread milk]", keys)
	}

	// Re-registering is idempotent.
	if err := store.PutKnownKey(ctx, domain.EntityProduct, "u1", "milk"); err != nil {
		t.Fatalf("PutKnownKey failed: %v", err)
	}
	keys, _ = store.KnownKeys(ctx, domain.EntityProduct, "u1")
	if len(keys) != 2 {
		t.Errorf("re-registering duplicated a key: %v", keys)
	}

	if keys, _ := store.KnownKeys(ctx, domain.EntityProduct, "u3"); len(keys) != 0 {
		t.Errorf("KnownKeys for unseen user = %v, want none", keys)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestBoltStore(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "aliases.db"))
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.db")
	ctx := context.Background()

	store, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	if err := store.PutAlias(ctx, "wfm", domain.EntityStore, "whole foods market"); err != nil {
		t.Fatalf("PutAlias failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopening failed: %v", err)
	}
	defer reopened.Close()

	key, ok, err := reopened.ResolveAlias(ctx, "wfm", domain.EntityStore)
	if err != nil || !ok || key != "whole foods market" {
		t.Errorf("alias lost across reopen: (%q, %v, %v)", key, ok, err)
	}
}
