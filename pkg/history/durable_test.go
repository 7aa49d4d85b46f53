package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dalili-app/dalili/pkg/db"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return conn
}

func TestDurableStorePutAndGet(t *testing.T) {
	store := NewDurableStore(newTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", ScopeGlobal, "شقة", map[string]string{"category": "real-estate"}); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	entries, err := store.Get(ctx, "user-1", ScopeGlobal)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Query != "شقة" {
		t.Errorf("expected query شقة, got %q", e.Query)
	}
	if e.ID == "" || e.LocalOnly() {
		t.Errorf("expected a durable id, got %q", e.ID)
	}
	if e.Filters["category"] != "real-estate" {
		t.Errorf("filters not round-tripped: %v", e.Filters)
	}
	if e.Scope != ScopeGlobal {
		t.Errorf("expected global scope, got %s", e.Scope)
	}
}

func TestDurableStoreRepeatMovesToFront(t *testing.T) {
	store := NewDurableStore(newTestDB(t))
	ctx := context.Background()

	for _, q := range []string{"شقة", "سيارة", "شقة"} {
		if err := store.Put(ctx, "user-1", ScopeGlobal, q, nil); err != nil {
			t.Fatalf("failed to put %q: %v", q, err)
		}
	}

	entries, err := store.Get(ctx, "user-1", ScopeGlobal)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("repeat must replace, not accumulate, got %d entries", len(entries))
	}
	if entries[0].Query != "شقة" {
		t.Errorf("repeated query must be newest, got %q first", entries[0].Query)
	}
}

func TestDurableStoreCaseInsensitiveReplace(t *testing.T) {
	store := NewDurableStore(newTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", ScopeGlobal, "iPhone", nil); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := store.Put(ctx, "user-1", ScopeGlobal, "IPHONE", nil); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	entries, err := store.Get(ctx, "user-1", ScopeGlobal)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected case-insensitive replace, got %d entries", len(entries))
	}
	if entries[0].Query != "IPHONE" {
		t.Errorf("latest casing should win, got %q", entries[0].Query)
	}
}

func TestDurableStoreAnonymousIsNoop(t *testing.T) {
	store := NewDurableStore(newTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, "", ScopeGlobal, "شقة", nil); err != nil {
		t.Fatalf("anonymous put must not error: %v", err)
	}

	entries, err := store.Get(ctx, "", ScopeGlobal)
	if err != nil {
		t.Fatalf("anonymous get must not error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries for anonymous identity, got %d", len(entries))
	}
}

func TestDurableStoreIdentitiesIsolated(t *testing.T) {
	store := NewDurableStore(newTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", ScopeGlobal, "شقة", nil); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := store.Put(ctx, "user-2", ScopeGlobal, "سيارة", nil); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	entries, err := store.Get(ctx, "user-1", ScopeGlobal)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(entries) != 1 || entries[0].Query != "شقة" {
		t.Errorf("unexpected entries for user-1: %+v", entries)
	}
}

func TestDurableStoreScopesIsolated(t *testing.T) {
	store := NewDurableStore(newTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", ScopeGlobal, "شقة", nil); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := store.Put(ctx, "user-1", ScopeMarketplace, "ثلاجة", nil); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	global, err := store.Get(ctx, "user-1", ScopeGlobal)
	if err != nil {
		t.Fatalf("failed to get global: %v", err)
	}
	marketplace, err := store.Get(ctx, "user-1", ScopeMarketplace)
	if err != nil {
		t.Fatalf("failed to get marketplace: %v", err)
	}
	if len(global) != 1 || global[0].Query != "شقة" {
		t.Errorf("unexpected global entries: %+v", global)
	}
	if len(marketplace) != 1 || marketplace[0].Query != "ثلاجة" {
		t.Errorf("unexpected marketplace entries: %+v", marketplace)
	}
}

func TestDurableStoreDelete(t *testing.T) {
	store := NewDurableStore(newTestDB(t))
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", ScopeGlobal, "شقة", nil); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	entries, err := store.Get(ctx, "user-1", ScopeGlobal)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if err := store.Delete(ctx, entries[0].ID); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if err := store.Delete(ctx, "no-such-id"); err != nil {
		t.Fatalf("deleting an absent id must not error: %v", err)
	}

	entries, err = store.Get(ctx, "user-1", ScopeGlobal)
	if err != nil {
		t.Fatalf("failed to get: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries after delete, got %d", len(entries))
	}
}
