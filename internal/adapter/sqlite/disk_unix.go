//go:build !windows

package sqlite

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// FreeBytes returns the space available to unprivileged writers on the
// filesystem holding the database
func (s *Store) FreeBytes(ctx context.Context) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(s.path), &stat); err != nil {
		return 0, fmt.Errorf("failed to get disk stats: %w", err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
