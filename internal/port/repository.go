package port

import "context"

// BlobStore is the persistent key→blob mapping backing the chunk cache.
// It holds one logical collection keyed by string.
//
// Open is idempotent and lazily creates the backing store; every other
// method opens on demand and returns domain.ErrStoreUnavailable (wrapped)
// when that fails.
type BlobStore interface {
	// Open creates the backing store and its collection if needed
	Open(ctx context.Context) error

	// Has reports whether key exists. Read failures degrade to false.
	Has(ctx context.Context, key string) bool

	// Get returns the blob stored under key, or (nil, false, nil) when absent.
	// Read failures are returned so callers can tell them from a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores blob under key atomically: the key never exposes a
	// partially written value.
	Put(ctx context.Context, key string, blob []byte) error

	// Delete removes key. Deleting an absent key succeeds.
	Delete(ctx context.Context, key string) error

	// Clear removes every key in the collection
	Clear(ctx context.Context) error

	// Close releases the backing store
	Close() error
}

// StoreStats describes the contents of a BlobStore
type StoreStats struct {
	Keys       int64
	TotalBytes int64
}

// StatsReporter is implemented by stores that can summarize their contents
type StatsReporter interface {
	Stats(ctx context.Context) (*StoreStats, error)
}

// KeyLister is implemented by stores that can enumerate keys by prefix
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// SpaceReporter is implemented by stores backed by a filesystem
type SpaceReporter interface {
	// FreeBytes returns the space available to the store
	FreeBytes(ctx context.Context) (int64, error)
}
