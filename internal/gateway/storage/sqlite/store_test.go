package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/cachegate/internal/gateway/storage"
	_ "modernc.org/sqlite"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway-cache.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		_ = sqlDB.Close()
	}()

	assertTableExists(t, sqlDB, "partitions")
	assertTableExists(t, sqlDB, "cache_entries")
}

func TestPutGetRoundTripIsByteIdentical(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	storedAt := time.Unix(1700000000, 0).UTC()
	resp := storage.StoredResponse{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Cache-Control": []string{"no-store"},
		},
		Body: []byte(`{"nodes":[1,2,3]}`),
	}

	if err := store.Put(ctx, "api-v1", "GET https://example.com/data/graph.json", resp, storedAt); err != nil {
		t.Fatalf("put: %v", err)
	}

	entry, found, err := store.Get(ctx, "api-v1", "GET https://example.com/data/graph.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected entry")
	}
	if entry.Key != "GET https://example.com/data/graph.json" {
		t.Fatalf("key = %q, want original key", entry.Key)
	}
	if entry.Response.Status != http.StatusOK {
		t.Fatalf("status = %d, want %d", entry.Response.Status, http.StatusOK)
	}
	if !bytes.Equal(entry.Response.Body, resp.Body) {
		t.Fatalf("body = %q, want %q", entry.Response.Body, resp.Body)
	}
	if got := entry.Response.Header.Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type = %q, want %q", got, "application/json")
	}
	if got := entry.Response.Header.Get("Cache-Control"); got != "no-store" {
		t.Fatalf("cache control = %q, want %q", got, "no-store")
	}
	if !entry.StoredAt.Equal(storedAt) {
		t.Fatalf("storedAt = %s, want %s", entry.StoredAt, storedAt)
	}
}

func TestPutSkipsNonSuccessStatuses(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	resp := storage.StoredResponse{Status: http.StatusBadGateway, Body: []byte("upstream down")}
	if err := store.Put(ctx, "dynamic-v1", "GET https://example.com/", resp, time.Now()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, found, err := store.Get(ctx, "dynamic-v1", "GET https://example.com/"); err != nil {
		t.Fatalf("get: %v", err)
	} else if found {
		t.Fatal("expected non-200 response to be dropped")
	}
}

func TestPutUpsertsLastWriteWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := "GET https://example.com/app.js"
	first := storage.StoredResponse{Status: http.StatusOK, Body: []byte("v1")}
	second := storage.StoredResponse{Status: http.StatusOK, Body: []byte("v2")}

	if err := store.Put(ctx, "static-v1", key, first, time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := store.Put(ctx, "static-v1", key, second, time.Unix(1700000060, 0)); err != nil {
		t.Fatalf("put second: %v", err)
	}

	entry, found, err := store.Get(ctx, "static-v1", key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatal("expected entry")
	}
	if !bytes.Equal(entry.Response.Body, []byte("v2")) {
		t.Fatalf("body = %q, want %q", entry.Response.Body, "v2")
	}
}

func TestListPartitionsIncludesImplicitOpens(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Open(ctx, "static-v1"); err != nil {
		t.Fatalf("open partition: %v", err)
	}
	resp := storage.StoredResponse{Status: http.StatusOK, Body: []byte("ok")}
	if err := store.Put(ctx, "api-v1", "GET https://example.com/data.json", resp, time.Now()); err != nil {
		t.Fatalf("put: %v", err)
	}

	names, err := store.ListPartitions(ctx)
	if err != nil {
		t.Fatalf("list partitions: %v", err)
	}
	want := []string{"api-v1", "static-v1"}
	if len(names) != len(want) {
		t.Fatalf("partitions = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("partitions = %v, want %v", names, want)
		}
	}
}

func TestDeletePartitionRemovesEntries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	resp := storage.StoredResponse{Status: http.StatusOK, Body: []byte("stale asset")}

	if err := store.Put(ctx, "static-v1", "GET https://example.com/app.css", resp, time.Now()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.DeletePartition(ctx, "static-v1"); err != nil {
		t.Fatalf("delete partition: %v", err)
	}

	if _, found, err := store.Get(ctx, "static-v1", "GET https://example.com/app.css"); err != nil {
		t.Fatalf("get: %v", err)
	} else if found {
		t.Fatal("expected entry to be removed with its partition")
	}
	names, err := store.ListPartitions(ctx)
	if err != nil {
		t.Fatalf("list partitions: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("partitions = %v, want none", names)
	}

	// Deleting again must stay a no-op.
	if err := store.DeletePartition(ctx, "static-v1"); err != nil {
		t.Fatalf("delete partition again: %v", err)
	}
}

func TestPurgeOlderThanHonorsCutoffAndUnknownAge(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()
	resp := storage.StoredResponse{Status: http.StatusOK, Body: []byte("x")}

	if err := store.Put(ctx, "dynamic-v1", "GET https://example.com/old", resp, now.Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("put old: %v", err)
	}
	if err := store.Put(ctx, "dynamic-v1", "GET https://example.com/fresh", resp, now.Add(-time.Hour)); err != nil {
		t.Fatalf("put fresh: %v", err)
	}
	if err := store.Put(ctx, "dynamic-v1", "GET https://example.com/unknown", resp, time.Time{}); err != nil {
		t.Fatalf("put unknown: %v", err)
	}

	purged, err := store.PurgeOlderThan(ctx, "dynamic-v1", now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}

	if _, found, _ := store.Get(ctx, "dynamic-v1", "GET https://example.com/old"); found {
		t.Fatal("expected aged entry to be purged")
	}
	if _, found, _ := store.Get(ctx, "dynamic-v1", "GET https://example.com/fresh"); !found {
		t.Fatal("expected fresh entry to survive")
	}
	if _, found, _ := store.Get(ctx, "dynamic-v1", "GET https://example.com/unknown"); !found {
		t.Fatal("expected unknown-age entry to survive")
	}
}

func TestDeleteEntryIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Delete(ctx, "api-v1", "GET https://example.com/missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	resp := storage.StoredResponse{Status: http.StatusOK, Body: []byte("ok")}
	if err := store.Put(ctx, "api-v1", "GET https://example.com/data.json", resp, time.Now()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "api-v1", "GET https://example.com/data.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, err := store.Get(ctx, "api-v1", "GET https://example.com/data.json"); err != nil {
		t.Fatalf("get: %v", err)
	} else if found {
		t.Fatal("expected deleted entry")
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gateway-cache.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store
}

func assertTableExists(t *testing.T, sqlDB *sql.DB, tableName string) {
	t.Helper()

	row := sqlDB.QueryRowContext(context.Background(), `
SELECT COUNT(*)
FROM sqlite_master
WHERE type = 'table' AND name = ?;
`, tableName)
	var count int
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan sqlite_master for %q: %v", tableName, err)
	}
	if count != 1 {
		t.Fatalf("table %q count = %d, want 1", tableName, count)
	}
}
