package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/vertextoedge/artifact-cache/internal/adapter/memory"
	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// limitedStore is a memory store that reports a fixed amount of free space
type limitedStore struct {
	*memory.Store
	free int64
	err  error
}

func (s *limitedStore) FreeBytes(ctx context.Context) (int64, error) {
	return s.free, s.err
}

func TestService_DownloadChecksFreeSpace(t *testing.T) {
	ctx := context.Background()
	origin := newOrigin(1000)
	mem := memory.New()
	seedCache(t, mem, origin, 100, 6)

	tests := []struct {
		name    string
		free    int64
		err     error
		wantErr error
	}{
		{name: "enough for the missing chunks", free: 400},
		{name: "short", free: 399, wantErr: domain.ErrInsufficientSpace},
		{name: "unknown", err: errors.New("statfs failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &limitedStore{Store: mem, free: tt.free, err: tt.err}
			cfg := DefaultConfig()
			cfg.ArtifactID = "model"
			cfg.URL = testURL
			cfg.DefaultChunkSize = 100
			svc := New(cfg, store, origin, nil, nil)

			_, err := svc.DownloadInChunks(ctx, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DownloadInChunks() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				// Reset so the next case sees the same six cached chunks
				for i := 6; i < 10; i++ {
					mem.Delete(ctx, domain.ChunkKey("model", i))
				}
			}
		})
	}
}
