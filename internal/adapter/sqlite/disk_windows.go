package sqlite

import (
	"context"
	"errors"
)

// FreeBytes is not implemented on Windows
func (s *Store) FreeBytes(ctx context.Context) (int64, error) {
	return 0, errors.New("free space not available on this platform")
}
