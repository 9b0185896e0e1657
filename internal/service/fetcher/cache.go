package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/metrics"
)

// errUndecodableMetadata marks stored metadata that cannot be decoded, as
// opposed to a store that cannot be read
var errUndecodableMetadata = errors.New("undecodable metadata")

// readMetadata returns the stored metadata, or nil when absent
func (s *Service) readMetadata(ctx context.Context) (*domain.ArtifactMetadata, error) {
	raw, ok, err := s.store.Get(ctx, domain.MetadataKey(s.config.ArtifactID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var meta domain.ArtifactMetadata
	if err := cbor.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", errUndecodableMetadata, err)
	}
	return &meta, nil
}

func (s *Service) writeMetadata(ctx context.Context, meta *domain.ArtifactMetadata) error {
	raw, err := cbor.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := s.store.Put(ctx, domain.MetadataKey(s.config.ArtifactID), raw); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// saveChunk persists a downloaded chunk, followed by its digest when
// verification is on
func (s *Service) saveChunk(ctx context.Context, index int, data []byte) error {
	if err := s.store.Put(ctx, domain.ChunkKey(s.config.ArtifactID, index), data); err != nil {
		return fmt.Errorf("failed to save chunk %d: %w", index, err)
	}
	if s.config.VerifyChunks {
		sum := blake3.Sum256(data)
		if err := s.store.Put(ctx, domain.ChunkDigestKey(s.config.ArtifactID, index), sum[:]); err != nil {
			return fmt.Errorf("failed to save chunk %d digest: %w", index, err)
		}
	}
	return nil
}

// readChunk reads chunk r back from the store. A chunk whose length does
// not match its range, or whose digest does not match, is ErrChunkCorrupt.
func (s *Service) readChunk(ctx context.Context, r domain.ChunkRange) ([]byte, error) {
	data, ok, err := s.store.Get(ctx, domain.ChunkKey(s.config.ArtifactID, r.Index))
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %d: %w", r.Index, err)
	}
	if !ok {
		return nil, domain.NewMissingChunkError(r.Index)
	}
	if int64(len(data)) != r.Len() {
		return nil, fmt.Errorf("%w: chunk %d has %d bytes, want %d", domain.ErrChunkCorrupt, r.Index, len(data), r.Len())
	}
	if s.config.VerifyChunks {
		if err := s.verifyChunk(ctx, r.Index, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// verifyChunk checks data against the stored digest. Chunks cached before
// verification was enabled have no digest; one is recorded for them.
func (s *Service) verifyChunk(ctx context.Context, index int, data []byte) error {
	key := domain.ChunkDigestKey(s.config.ArtifactID, index)
	sum := blake3.Sum256(data)

	want, ok, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read chunk %d digest: %w", index, err)
	}
	if !ok {
		if err := s.store.Put(ctx, key, sum[:]); err != nil {
			s.logger.Warn("failed to record chunk digest", zap.Int("chunk", index), zap.Error(err))
		}
		return nil
	}
	if !bytes.Equal(want, sum[:]) {
		return fmt.Errorf("%w: chunk %d digest mismatch", domain.ErrChunkCorrupt, index)
	}
	return nil
}

// LoadFromCache assembles the artifact purely from the store. It fails with
// ErrMetadataMissing when no metadata exists and with a MissingChunkError
// for the first absent chunk.
func (s *Service) LoadFromCache(ctx context.Context) ([]byte, error) {
	meta, err := s.readMetadata(ctx)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, domain.ErrMetadataMissing
	}
	return s.assemble(ctx, meta)
}

func (s *Service) assemble(ctx context.Context, meta *domain.ArtifactMetadata) ([]byte, error) {
	if meta.TotalSizeBytes <= 0 || meta.TotalChunks != domain.ChunkCount(meta.TotalSizeBytes, meta.ChunkSizeBytes) {
		return nil, fmt.Errorf("%w: inconsistent metadata (%d bytes, %d chunks of %d)",
			domain.ErrChunkCorrupt, meta.TotalSizeBytes, meta.TotalChunks, meta.ChunkSizeBytes)
	}

	buf := make([]byte, meta.TotalSizeBytes)
	for _, r := range meta.Ranges() {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrDownloadCancelled, err)
		}
		data, err := s.readChunk(ctx, r)
		if err != nil {
			return nil, err
		}
		copy(buf[r.Start:], data)
		s.metrics.RecordChunkBytes(s.config.ArtifactID, metrics.SourceCache, len(data))
	}
	return buf, nil
}
