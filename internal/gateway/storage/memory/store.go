// Package memory provides an in-memory partition store for tests and
// ephemeral gateway runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/cachegate/internal/gateway/storage"
)

// Store keeps cache partitions in process memory.
type Store struct {
	mu         sync.Mutex
	partitions map[string]map[string]storage.Entry
}

// NewStore creates an empty in-memory partition store.
func NewStore() *Store {
	return &Store{partitions: make(map[string]map[string]storage.Entry)}
}

// Open creates a partition if absent.
func (s *Store) Open(ctx context.Context, name string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("partition name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensurePartition(name)
	return nil
}

// Get loads one entry as an independent snapshot.
func (s *Store) Get(ctx context.Context, partition, key string) (storage.Entry, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return storage.Entry{}, false, err
	}
	if s == nil {
		return storage.Entry{}, false, errors.New("store is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return storage.Entry{}, false, errors.New("entry key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.partitions[strings.TrimSpace(partition)]
	if !ok {
		return storage.Entry{}, false, nil
	}
	entry, ok := entries[key]
	if !ok {
		return storage.Entry{}, false, nil
	}
	entry.Response = entry.Response.Clone()
	return entry, true, nil
}

// Put upserts one entry. Non-200 responses are silently dropped.
func (s *Store) Put(ctx context.Context, partition, key string, resp storage.StoredResponse, storedAt time.Time) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store is required")
	}
	partition = strings.TrimSpace(partition)
	if partition == "" {
		return errors.New("partition name is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("entry key is required")
	}
	if resp.Status != 200 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.ensurePartition(partition)
	entries[key] = storage.Entry{
		Key:      key,
		Response: resp.Clone(),
		StoredAt: toUTC(storedAt),
	}
	return nil
}

// Delete removes one entry. Missing entries are a no-op.
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.partitions[strings.TrimSpace(partition)]
	if !ok {
		return nil
	}
	delete(entries, strings.TrimSpace(key))
	return nil
}

// ListPartitions returns all known partition names, sorted.
func (s *Store) ListPartitions(ctx context.Context) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("store is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeletePartition removes a partition and all its entries. Missing
// partitions are a no-op.
func (s *Store) DeletePartition(ctx context.Context, name string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if s == nil {
		return errors.New("store is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partitions, strings.TrimSpace(name))
	return nil
}

// PurgeOlderThan deletes entries stored before cutoff, skipping entries with
// an unknown write time.
func (s *Store) PurgeOlderThan(ctx context.Context, partition string, cutoff time.Time) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	if s == nil {
		return 0, errors.New("store is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.partitions[strings.TrimSpace(partition)]
	if !ok {
		return 0, nil
	}
	var purged int64
	for key, entry := range entries {
		if entry.StoredAt.IsZero() {
			continue
		}
		if entry.StoredAt.Before(cutoff) {
			delete(entries, key)
			purged++
		}
	}
	return purged, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) ensurePartition(name string) map[string]storage.Entry {
	if s.partitions == nil {
		s.partitions = make(map[string]map[string]storage.Entry)
	}
	entries, ok := s.partitions[name]
	if !ok {
		entries = make(map[string]storage.Entry)
		s.partitions[name] = entries
	}
	return entries
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

func toUTC(value time.Time) time.Time {
	if value.IsZero() {
		return time.Time{}
	}
	return value.UTC()
}

var _ storage.Store = (*Store)(nil)
