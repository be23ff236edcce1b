package cache

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T, ttl time.Duration) (*Store, *time.Time) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	store, err := Open(slog.New(slog.DiscardHandler), path, ttl)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestStorePutGet(t *testing.T) {
	store, _ := openTestStore(t, time.Hour)
	ctx := context.Background()
	key := Key{VideoID: "abcdefghijk", Model: "gpt-4o-mini", PromptVersion: "v1"}

	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}
	if err := store.Put(ctx, key, Entry{Content: `{"steps":[]}`, Language: "ja", Truncated: true}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if entry.Content != `{"steps":[]}` || entry.Language != "ja" || !entry.Truncated {
		t.Errorf("entry = %+v", entry)
	}

	other := key
	other.PromptVersion = "v2"
	if _, ok, _ := store.Get(ctx, other); ok {
		t.Error("different prompt version should miss")
	}
}

func TestStorePutReplaces(t *testing.T) {
	store, _ := openTestStore(t, 0)
	ctx := context.Background()
	key := Key{VideoID: "abcdefghijk", Model: "m", PromptVersion: "v1"}

	_ = store.Put(ctx, key, Entry{Content: "old"})
	if err := store.Put(ctx, key, Entry{Content: "new", Language: "en"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry, ok, err := store.Get(ctx, key)
	if err != nil || !ok || entry.Content != "new" || entry.Language != "en" {
		t.Fatalf("Get = %+v, %v, %v", entry, ok, err)
	}
}

func TestStoreExpiry(t *testing.T) {
	store, now := openTestStore(t, time.Hour)
	ctx := context.Background()
	fresh := Key{VideoID: "fresh", Model: "m", PromptVersion: "v1"}
	stale := Key{VideoID: "stale", Model: "m", PromptVersion: "v1"}

	if err := store.Put(ctx, stale, Entry{Content: "a"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	*now = now.Add(2 * time.Hour)
	if err := store.Put(ctx, fresh, Entry{Content: "b"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, ok, _ := store.Get(ctx, stale); ok {
		t.Error("stale entry should be expired")
	}
	if _, ok, _ := store.Get(ctx, fresh); !ok {
		t.Error("fresh entry should be returned")
	}

	removed, err := store.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("Purge removed %d, want 1", removed)
	}
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()
	key := Key{VideoID: "abcdefghijk", Model: "m", PromptVersion: "v1"}

	store, err := Open(logger, path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Put(ctx, key, Entry{Content: "kept"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_ = store.Close()

	store, err = Open(logger, path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if entry, ok, err := store.Get(ctx, key); err != nil || !ok || entry.Content != "kept" {
		t.Fatalf("Get after reopen = %+v, %v, %v", entry, ok, err)
	}
}
