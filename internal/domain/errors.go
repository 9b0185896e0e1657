package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")

	// Fetch errors
	ErrSizeUnavailable   = errors.New("artifact size unavailable")
	ErrChunkFetchFailed  = errors.New("chunk fetch failed")
	ErrDownloadCancelled = errors.New("download cancelled")
	ErrAlreadyInProgress = errors.New("download already in progress")
	ErrMissingChunk      = errors.New("chunk missing from cache")
	ErrChunkCorrupt      = errors.New("cached chunk failed verification")
	ErrMetadataMissing   = errors.New("artifact metadata missing")

	// Store errors
	ErrStoreUnavailable  = errors.New("persistent store unavailable")
	ErrInsufficientSpace = errors.New("insufficient disk space for download")

	// Backend errors
	ErrUnknownBackend = errors.New("unknown backend")
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrNoEngine       = errors.New("no inference engine configured")
	ErrRemoteFailed   = errors.New("remote generation failed")
)

// ChunkFetchError is returned when a range request for a chunk fails.
// Status is zero when no response was received.
type ChunkFetchError struct {
	Index  int
	Status int
	Err    error
}

// Error returns the error message
func (e *ChunkFetchError) Error() string {
	msg := fmt.Sprintf("chunk %d fetch failed", e.Index)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ChunkFetchError) Unwrap() error {
	return e.Err
}

// Is matches ErrChunkFetchFailed
func (e *ChunkFetchError) Is(target error) bool {
	return target == ErrChunkFetchFailed
}

// NewChunkFetchError creates a new chunk fetch error
func NewChunkFetchError(index, status int, err error) *ChunkFetchError {
	return &ChunkFetchError{Index: index, Status: status, Err: err}
}

// MissingChunkError is returned when an expected chunk is absent from the store
type MissingChunkError struct {
	Index int
}

// Error returns the error message
func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chunk %d missing from cache", e.Index)
}

// Is matches ErrMissingChunk
func (e *MissingChunkError) Is(target error) bool {
	return target == ErrMissingChunk
}

// NewMissingChunkError creates a new missing chunk error
func NewMissingChunkError(index int) *MissingChunkError {
	return &MissingChunkError{Index: index}
}

// IsCancelled reports whether err means the user stopped the download,
// as opposed to a failure
func IsCancelled(err error) bool {
	return errors.Is(err, ErrDownloadCancelled)
}

// ChunkIndex extracts the chunk index from a chunk-scoped error
func ChunkIndex(err error) (int, bool) {
	var fe *ChunkFetchError
	if errors.As(err, &fe) {
		return fe.Index, true
	}
	var me *MissingChunkError
	if errors.As(err, &me) {
		return me.Index, true
	}
	return 0, false
}
