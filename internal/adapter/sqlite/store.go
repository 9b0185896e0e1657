package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// Store implements port.BlobStore using SQLite
type Store struct {
	path          string
	busyTimeoutMs int

	mu sync.Mutex
	db *sql.DB
}

// Ensure Store implements port.BlobStore
var _ port.BlobStore = (*Store)(nil)
var _ port.StatsReporter = (*Store)(nil)
var _ port.KeyLister = (*Store)(nil)
var _ port.SpaceReporter = (*Store)(nil)

// Options contains optional store settings
type Options struct {
	BusyTimeoutMs int
}

// New creates a store for dbPath. The database is not touched until the
// first call to Open or any other operation.
func New(dbPath string, opts *Options) *Store {
	busy := 5000
	if opts != nil && opts.BusyTimeoutMs > 0 {
		busy = opts.BusyTimeoutMs
	}
	return &Store{path: dbPath, busyTimeoutMs: busy}
}

// Open opens the database at dbPath and creates the blob collection
func Open(ctx context.Context, dbPath string) (*Store, error) {
	s := New(dbPath, nil)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Open lazily opens the database. Calling it again after success is a no-op;
// after a failure it retries.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.handle(ctx)
	return err
}

func (s *Store) handle(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := s.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	s.db = db
	return db, nil
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", s.path, s.busyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeoutMs),
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the blob collection
func migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Has reports whether key exists. Any failure reads as absent.
func (s *Store) Has(ctx context.Context, key string) bool {
	db, err := s.handle(ctx)
	if err != nil {
		return false
	}
	var one int
	err = db.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE key = ?", key).Scan(&one)
	return err == nil
}

// Get returns the blob stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, false, err
	}
	var value []byte
	err = db.QueryRowContext(ctx, "SELECT value FROM blobs WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

// Put stores blob under key. The upsert is a single statement, so readers
// see either the old value, no value, or the complete new value.
func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if blob == nil {
		blob = []byte{}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO blobs (key, value, size, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			size = excluded.size,
			updated_at = CURRENT_TIMESTAMP
	`, key, blob, len(blob))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM blobs WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every blob
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM blobs"); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// Keys returns the keys starting with prefix, sorted. substr and length
// both count characters, so multi-byte prefixes match.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT key FROM blobs WHERE substr(key, 1, length(?)) = ? ORDER BY key", prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Stats returns the number of keys and bytes stored
func (s *Store) Stats(ctx context.Context) (*port.StoreStats, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	stats := &port.StoreStats{}
	var total sql.NullInt64
	err = db.QueryRowContext(ctx, "SELECT COUNT(*), SUM(size) FROM blobs").Scan(&stats.Keys, &total)
	if err != nil {
		return nil, err
	}
	stats.TotalBytes = total.Int64
	return stats, nil
}
