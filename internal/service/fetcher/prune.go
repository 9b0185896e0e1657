package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// PruneOrphans deletes chunk and digest keys the current metadata does not
// account for: chunks past TotalChunks (left by an earlier chunk size),
// every chunk when no metadata exists, and digests whose chunk is gone.
// Loads are rejected while it runs. Stores that cannot list keys are
// skipped.
func (s *Service) PruneOrphans(ctx context.Context) (int, error) {
	lister, ok := s.store.(port.KeyLister)
	if !ok {
		return 0, nil
	}

	release, err := s.claim()
	if err != nil {
		return 0, err
	}
	defer release()

	meta, err := s.readMetadata(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	if meta != nil {
		total = meta.TotalChunks
	}

	keys, err := lister.Keys(ctx, domain.ChunkKeyPrefix(s.config.ArtifactID))
	if err != nil {
		return 0, fmt.Errorf("failed to list chunk keys: %w", err)
	}

	present := make(map[int]bool, len(keys))
	for _, key := range keys {
		if index, digest, ok := domain.ParseChunkKey(s.config.ArtifactID, key); ok && !digest && index < total {
			present[index] = true
		}
	}

	removed := 0
	for _, key := range keys {
		index, digest, ok := domain.ParseChunkKey(s.config.ArtifactID, key)
		if !ok {
			continue
		}
		if index < total && (!digest || present[index]) {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("pruned orphaned chunk keys",
			zap.Int("removed", removed),
			zap.Int("total_chunks", total))
	}
	return removed, nil
}
