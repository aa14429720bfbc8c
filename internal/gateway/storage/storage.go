// Package storage defines the contract for named, versioned cache partitions.
package storage

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StoredResponse is an immutable point-in-time snapshot of one upstream
// response. The body is fully buffered; callers own their copy.
type StoredResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone returns an independent copy safe to hand across ownership boundaries.
func (r StoredResponse) Clone() StoredResponse {
	return StoredResponse{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
	}
}

// Entry pairs a stored response with its cache key and write time.
//
// A zero StoredAt means the write time is unknown; retention purges leave
// such entries untouched.
type Entry struct {
	Key      string
	Response StoredResponse
	StoredAt time.Time
}

// EntryKey canonicalizes a request into its cache key: method plus absolute
// URL with the query preserved and the fragment dropped.
func EntryKey(method string, u *url.URL) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if u == nil {
		return method
	}
	target := *u
	target.Fragment = ""
	target.RawFragment = ""
	return method + " " + target.String()
}

// Store is the contract for cache partition persistence.
//
// Writes are atomic per (partition, key) and last-write-wins; Put against an
// unopened partition opens it implicitly. Only status-200 responses are
// persisted: Put silently no-ops for anything else.
type Store interface {
	// Open creates a partition if absent. Idempotent.
	Open(ctx context.Context, name string) error
	// Get loads one entry; the returned snapshot is the caller's copy.
	Get(ctx context.Context, partition, key string) (Entry, bool, error)
	// Put upserts one entry with the given write time.
	Put(ctx context.Context, partition, key string, resp StoredResponse, storedAt time.Time) error
	// Delete removes one entry. Missing entries are not an error.
	Delete(ctx context.Context, partition, key string) error
	// ListPartitions returns all known partition names, sorted.
	ListPartitions(ctx context.Context) ([]string, error)
	// DeletePartition removes a partition and all its entries. Missing
	// partitions are not an error.
	DeletePartition(ctx context.Context, name string) error
	// PurgeOlderThan deletes entries stored before cutoff, skipping entries
	// with an unknown write time, and reports how many were removed.
	PurgeOlderThan(ctx context.Context, partition string, cutoff time.Time) (int64, error)
	Close() error
}
