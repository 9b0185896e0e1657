package fetcher

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/vertextoedge/artifact-cache/internal/adapter/memory"
	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// For any size, chunk size and cached prefix, a download issues exactly one
// range request per uncached chunk, never re-requests a cached range, and
// reports non-decreasing progress ending at 1.
func TestProperty_ResumeRequestsOnlyMissingChunks(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(1, 4000).Draw(rt, "size")
		chunkSize := int64(rapid.IntRange(1, 700).Draw(rt, "chunkSize"))
		concurrency := rapid.IntRange(1, 4).Draw(rt, "concurrency")

		origin := newOrigin(size)
		totalChunks := domain.ChunkCount(int64(size), chunkSize)
		cached := rapid.IntRange(0, totalChunks).Draw(rt, "cached")

		store := memory.New()
		ctx := context.Background()
		if cached > 0 {
			seedCache(rt, store, origin, chunkSize, cached)
		}

		cfg := DefaultConfig()
		cfg.ArtifactID = "model"
		cfg.URL = testURL
		cfg.DefaultChunkSize = chunkSize
		cfg.Concurrency = concurrency
		s := New(cfg, store, origin, nil, zap.NewNop())

		log := &progressLog{}
		data, err := s.DownloadInChunks(ctx, log.callbacks())
		require.NoError(rt, err)
		require.True(rt, bytes.Equal(data, origin.data), "assembled artifact differs from source")

		requests := origin.requests()
		require.Len(rt, requests, totalChunks-cached)
		for _, start := range requests {
			require.GreaterOrEqual(rt, start, int64(cached)*chunkSize, "cached range re-requested")
		}

		require.NotEmpty(rt, log.values)
		for i := 1; i < len(log.values); i++ {
			require.GreaterOrEqual(rt, log.values[i], log.values[i-1], "progress decreased")
		}
		require.Equal(rt, 1.0, log.values[len(log.values)-1])
		require.Equal(rt, 1, log.completes)
	})
}

// Loading a fully cached artifact any number of times touches no network
// and returns identical bytes.
func TestProperty_CachedLoadIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(1, 3000).Draw(rt, "size")
		chunkSize := int64(rapid.IntRange(1, 500).Draw(rt, "chunkSize"))
		loads := rapid.IntRange(2, 4).Draw(rt, "loads")

		origin := newOrigin(size)
		store := memory.New()
		seedCache(rt, store, origin, chunkSize, domain.ChunkCount(int64(size), chunkSize))
		s := newTestService(origin, store, chunkSize)

		for i := 0; i < loads; i++ {
			data, err := s.Load(context.Background(), nil)
			require.NoError(rt, err)
			require.True(rt, bytes.Equal(data, origin.data))
		}
		require.Empty(rt, origin.requests())
		require.Zero(rt, origin.heads())
	})
}
