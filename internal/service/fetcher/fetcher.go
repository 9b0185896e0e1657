// Package fetcher downloads one large artifact in byte-range chunks,
// persisting every completed chunk so an interrupted download resumes
// where it stopped.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/metrics"
	"github.com/vertextoedge/artifact-cache/internal/port"
	"github.com/vertextoedge/artifact-cache/internal/util/throttle"
)

// Config contains fetcher configuration
type Config struct {
	// ArtifactID names the artifact in the store
	ArtifactID string

	// URL is the byte-range capable source of the artifact
	URL string

	// DefaultChunkSize is used when the latency probe fails
	DefaultChunkSize int64

	// ProbeTimeout bounds the latency probe
	ProbeTimeout time.Duration

	// ProbePath is resolved against URL to get the latency probe target
	ProbePath string

	// Concurrency is the number of chunks fetched at once. 1 fetches
	// strictly in index order.
	Concurrency int

	// VerifyChunks stores a BLAKE3 digest next to every chunk and checks it
	// when the chunk is read back
	VerifyChunks bool

	// ProgressLogInterval throttles info-level progress logging
	ProgressLogInterval time.Duration
}

// DefaultConfig returns default fetcher configuration
func DefaultConfig() *Config {
	return &Config{
		ArtifactID:          "qwen3-0.6b",
		DefaultChunkSize:    10 * domain.MB,
		ProbeTimeout:        3 * time.Second,
		ProbePath:           "network-test",
		Concurrency:         1,
		ProgressLogInterval: 5 * time.Second,
	}
}

// Service is the chunked fetcher for a single artifact. At most one load
// runs per Service; concurrent loads are rejected.
type Service struct {
	config  *Config
	store   port.BlobStore
	client  port.RangeClient
	metrics *metrics.Collector
	logger  *zap.Logger

	progressLog *throttle.Throttle

	mu      sync.Mutex
	session domain.DownloadSession
	cancel  context.CancelFunc
	// busy is held by ClearCache and PruneOrphans
	busy bool
}

// New creates a new fetcher Service. collector may be nil.
func New(cfg *Config, store port.BlobStore, client port.RangeClient, collector *metrics.Collector, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = 10 * domain.MB
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.ProbePath == "" {
		cfg.ProbePath = "network-test"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:      cfg,
		store:       store,
		client:      client,
		metrics:     collector,
		logger:      logger.With(zap.String("artifact_id", cfg.ArtifactID)),
		progressLog: throttle.New(cfg.ProgressLogInterval),
		session: domain.DownloadSession{
			ArtifactID: cfg.ArtifactID,
			State:      domain.FetchStateIdle,
		},
	}
}

// ArtifactID returns the configured artifact id
func (s *Service) ArtifactID() string {
	return s.config.ArtifactID
}

// Metadata returns the persisted metadata, or nil when none is stored
func (s *Service) Metadata(ctx context.Context) (*domain.ArtifactMetadata, error) {
	return s.readMetadata(ctx)
}

// GetArtifactSize returns the total size recorded in metadata for the
// configured URL, or asks the server for it
func (s *Service) GetArtifactSize(ctx context.Context) (int64, error) {
	if meta, err := s.readMetadata(ctx); err == nil && meta != nil &&
		meta.SourceURL == s.config.URL && meta.TotalSizeBytes > 0 {
		return meta.TotalSizeBytes, nil
	}

	size, err := s.client.ContentLength(ctx, s.config.URL)
	if err != nil {
		s.logger.Error("failed to get artifact size", zap.String("url", s.config.URL), zap.Error(err))
		return 0, err
	}
	return size, nil
}

// DetermineOptimalChunkSize maps one latency probe round trip to a chunk
// size. Probe failure yields the configured default.
func (s *Service) DetermineOptimalChunkSize(ctx context.Context) int64 {
	target, err := s.probeURL()
	if err != nil {
		s.logger.Warn("invalid latency probe target, using default chunk size", zap.Error(err))
		return s.config.DefaultChunkSize
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	defer cancel()

	rtt, err := s.client.Ping(ctx, target)
	if err != nil {
		s.logger.Info("latency probe failed, using default chunk size",
			zap.Int64("chunk_size", s.config.DefaultChunkSize),
			zap.Error(err))
		return s.config.DefaultChunkSize
	}

	size := ChunkSizeFor(rtt)
	s.logger.Debug("latency probe",
		zap.Duration("rtt", rtt),
		zap.Int64("chunk_size", size))
	return size
}

// ChunkSizeFor maps a round-trip time to a chunk size: under 100ms 20MB,
// under 500ms 10MB, otherwise 5MB
func ChunkSizeFor(rtt time.Duration) int64 {
	switch {
	case rtt < 100*time.Millisecond:
		return 20 * domain.MB
	case rtt < 500*time.Millisecond:
		return 10 * domain.MB
	default:
		return 5 * domain.MB
	}
}

// probeURL resolves ProbePath against the artifact URL, replacing the last
// path segment
func (s *Service) probeURL() (string, error) {
	base, err := url.Parse(s.config.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse artifact url: %w", err)
	}
	ref, err := url.Parse(s.config.ProbePath)
	if err != nil {
		return "", fmt.Errorf("failed to parse probe path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

// IsFullyCached reports whether metadata for the configured URL exists and
// every chunk it declares is present in the store
func (s *Service) IsFullyCached(ctx context.Context) bool {
	meta, err := s.readMetadata(ctx)
	if err != nil || meta == nil || meta.TotalChunks <= 0 {
		return false
	}
	if s.config.URL != "" && meta.SourceURL != s.config.URL {
		return false
	}
	for i := 0; i < meta.TotalChunks; i++ {
		if !s.store.Has(ctx, domain.ChunkKey(s.config.ArtifactID, i)) {
			return false
		}
	}
	return true
}

// Cancel signals the active load to stop before its next chunk and aborts
// the request in flight. It returns false when nothing is running. Cached
// chunks are kept.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.session.IsActive || s.cancel == nil {
		return false
	}
	s.logger.Info("cancelling download", zap.String("session_id", s.session.ID))
	s.cancel()
	return true
}

// ClearCache deletes every chunk named by the metadata and then the
// metadata itself. No metadata means there is nothing to clear. It fails
// with ErrAlreadyInProgress while a load is running.
func (s *Service) ClearCache(ctx context.Context) error {
	release, err := s.claim()
	if err != nil {
		return err
	}
	defer release()
	return s.clearCache(ctx)
}

func (s *Service) clearCache(ctx context.Context) error {
	meta, err := s.readMetadata(ctx)
	if errors.Is(err, errUndecodableMetadata) {
		// Undecodable metadata still owns the key; drop it
		s.logger.Warn("clearing unreadable metadata", zap.Error(err))
		return s.store.Delete(ctx, domain.MetadataKey(s.config.ArtifactID))
	}
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}

	for i := 0; i < meta.TotalChunks; i++ {
		if err := s.store.Delete(ctx, domain.ChunkKey(s.config.ArtifactID, i)); err != nil {
			return fmt.Errorf("failed to delete chunk %d: %w", i, err)
		}
		if err := s.store.Delete(ctx, domain.ChunkDigestKey(s.config.ArtifactID, i)); err != nil {
			return fmt.Errorf("failed to delete chunk %d digest: %w", i, err)
		}
	}
	if err := s.store.Delete(ctx, domain.MetadataKey(s.config.ArtifactID)); err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}

	s.logger.Info("artifact cache cleared", zap.Int("chunks", meta.TotalChunks))
	return nil
}
