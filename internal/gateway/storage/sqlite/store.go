// Package sqlite provides SQLite-backed persistence for cache partitions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/cachegate/internal/gateway/storage"
	"github.com/louisbranch/cachegate/internal/gateway/storage/sqlite/migrations"
	sqlitemigrate "github.com/louisbranch/cachegate/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for cache partitions.
type Store struct {
	sqlDB *sql.DB
}

// Open opens and migrates a cache partition SQLite store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Open creates a partition row if absent.
func (s *Store) Open(ctx context.Context, name string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("partition name is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO partitions (name, created_at)
		 VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name,
		timeToUnixMillis(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("open partition: %w", err)
	}
	return nil
}

// Get loads one entry as an independent snapshot.
func (s *Store) Get(ctx context.Context, partition, key string) (storage.Entry, bool, error) {
	if s == nil || s.sqlDB == nil {
		return storage.Entry{}, false, fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return storage.Entry{}, false, fmt.Errorf("entry key is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT entry_key, status, headers_json, body, stored_at
		 FROM cache_entries
		 WHERE partition_name = ? AND entry_key = ?`,
		strings.TrimSpace(partition),
		key,
	)

	var entry storage.Entry
	var headersJSON string
	var storedAt int64
	if err := row.Scan(
		&entry.Key,
		&entry.Response.Status,
		&headersJSON,
		&entry.Response.Body,
		&storedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return storage.Entry{}, false, nil
		}
		return storage.Entry{}, false, fmt.Errorf("get cache entry: %w", err)
	}

	if headersJSON != "" {
		var header http.Header
		if err := json.Unmarshal([]byte(headersJSON), &header); err != nil {
			return storage.Entry{}, false, fmt.Errorf("decode cache entry headers: %w", err)
		}
		entry.Response.Header = header
	}
	entry.StoredAt = unixMillisToTime(storedAt)

	return entry, true, nil
}

// Put upserts one entry. Non-200 responses are silently dropped.
func (s *Store) Put(ctx context.Context, partition, key string, resp storage.StoredResponse, storedAt time.Time) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	partition = strings.TrimSpace(partition)
	if partition == "" {
		return fmt.Errorf("partition name is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("entry key is required")
	}
	if resp.Status != 200 {
		return nil
	}

	headersJSON, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode cache entry headers: %w", err)
	}

	if err := s.Open(ctx, partition); err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO cache_entries (
		    partition_name, entry_key, status, headers_json, body, stored_at
		 ) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(partition_name, entry_key) DO UPDATE SET
		    status = excluded.status,
		    headers_json = excluded.headers_json,
		    body = excluded.body,
		    stored_at = excluded.stored_at`,
		partition,
		key,
		resp.Status,
		string(headersJSON),
		resp.Body,
		timeToUnixMillis(storedAt),
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry. Missing entries are a no-op.
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("entry key is required")
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM cache_entries WHERE partition_name = ? AND entry_key = ?`,
		strings.TrimSpace(partition),
		key,
	)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// ListPartitions returns every known partition name, including partitions
// opened implicitly by writes.
func (s *Store) ListPartitions(ctx context.Context) ([]string, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT name
		 FROM (
		   SELECT name FROM partitions
		   UNION
		   SELECT DISTINCT partition_name AS name FROM cache_entries
		 )
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partition names: %w", err)
	}
	return names, nil
}

// DeletePartition removes a partition and all its entries in one transaction.
func (s *Store) DeletePartition(ctx context.Context, name string) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("partition name is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete partition: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE partition_name = ?`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete partition entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM partitions WHERE name = ?`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete partition row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete partition: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes entries stored before cutoff, skipping entries with
// an unknown write time.
func (s *Store) PurgeOlderThan(ctx context.Context, partition string, cutoff time.Time) (int64, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	res, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM cache_entries
		 WHERE partition_name = ? AND stored_at > 0 AND stored_at < ?`,
		strings.TrimSpace(partition),
		timeToUnixMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge cache entries: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count purged cache entries: %w", err)
	}
	return purged, nil
}

func timeToUnixMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func unixMillisToTime(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

var _ storage.Store = (*Store)(nil)
