// Package memory provides an in-process port.BlobStore. Contents are lost
// when the process exits.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vertextoedge/artifact-cache/internal/port"
)

// Store is a map-backed blob store safe for concurrent use
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

var _ port.BlobStore = (*Store)(nil)
var _ port.StatsReporter = (*Store)(nil)
var _ port.KeyLister = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Open is a no-op
func (s *Store) Open(ctx context.Context) error {
	return nil
}

// Has reports whether key exists
func (s *Store) Has(ctx context.Context, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok
}

// Get returns a copy of the blob under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

// Put stores a copy of blob under key
func (s *Store) Put(ctx context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte{}, blob...)
	return nil
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// Clear removes every key
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = make(map[string][]byte)
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// Keys returns the keys starting with prefix, sorted
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Stats returns key and byte counts
func (s *Store) Stats(ctx context.Context) (*port.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &port.StoreStats{Keys: int64(len(s.blobs))}
	for _, blob := range s.blobs {
		stats.TotalBytes += int64(len(blob))
	}
	return stats, nil
}
