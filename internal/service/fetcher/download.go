package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/metrics"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// Load returns the complete artifact, from the store when every chunk is
// cached and from the network otherwise. Callbacks may be nil.
func (s *Service) Load(ctx context.Context, callbacks *domain.Callbacks) ([]byte, error) {
	return s.run(ctx, callbacks, true)
}

// DownloadInChunks runs the resumable download: cached chunks are copied
// into the buffer, only missing ranges are requested, and each downloaded
// chunk is persisted before it is used.
func (s *Service) DownloadInChunks(ctx context.Context, callbacks *domain.Callbacks) ([]byte, error) {
	return s.run(ctx, callbacks, false)
}

func (s *Service) run(ctx context.Context, callbacks *domain.Callbacks, preferCache bool) ([]byte, error) {
	ctx, err := s.begin(ctx)
	if err != nil {
		s.metrics.RecordLoad(s.config.ArtifactID, metrics.ResultRejected)
		callbacks.Error(err)
		return nil, err
	}

	progress := &progressReporter{callbacks: callbacks}
	start := time.Now()

	var data []byte
	result := metrics.ResultComplete
	if preferCache {
		data, err = s.loadCached(ctx, progress)
		if data != nil {
			result = metrics.ResultCacheHit
		}
	}
	if data == nil && err == nil {
		data, err = s.download(ctx, progress)
	}
	// Network and store calls see the cancelled context as a plain error
	if err != nil && !domain.IsCancelled(err) {
		err = cancelled(ctx, err)
	}

	s.end(err)

	if err != nil {
		result = metrics.ResultFailed
		if domain.IsCancelled(err) {
			result = metrics.ResultCancelled
			s.logger.Info("download cancelled", zap.Error(err))
		} else {
			s.logger.Error("artifact load failed", zap.Error(err))
		}
		s.metrics.RecordLoad(s.config.ArtifactID, result)
		callbacks.Error(err)
		return nil, err
	}

	s.metrics.RecordLoad(s.config.ArtifactID, result)
	s.logger.Info("artifact ready",
		zap.String("result", result),
		zap.String("size", humanize.IBytes(uint64(len(data)))),
		zap.Duration("duration", time.Since(start)))
	callbacks.Complete(data)
	return data, nil
}

// loadCached serves a fully cached artifact, reporting the 0.5 and 1
// milestones. It returns no data and no error when the artifact must be
// downloaded instead; the only error is cancellation.
func (s *Service) loadCached(ctx context.Context, progress *progressReporter) ([]byte, error) {
	s.setState(domain.FetchStateChecking)
	if !s.IsFullyCached(ctx) {
		return nil, nil
	}

	meta, err := s.readMetadata(ctx)
	if err != nil || meta == nil {
		return nil, nil
	}

	s.setState(domain.FetchStateAssembling)
	progress.report(0.5)

	data, err := s.assemble(ctx, meta)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, err)
		}
		// Missing or corrupt chunks are re-fetched by the download path
		s.logger.Warn("cached artifact unusable, downloading", zap.Error(err))
		return nil, nil
	}

	s.setLoaded(meta.TotalChunks, meta.TotalChunks)
	progress.report(1)
	return data, nil
}

// plan resolves the chunking scheme, reusing persisted metadata when it
// still describes the configured source
func (s *Service) plan(ctx context.Context) (*domain.ArtifactMetadata, error) {
	existing, err := s.readMetadata(ctx)
	if errors.Is(err, errUndecodableMetadata) {
		s.logger.Warn("discarding unreadable metadata", zap.Error(err))
		existing = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if existing != nil && existing.SourceURL != s.config.URL {
		s.logger.Info("source changed, discarding cached chunks",
			zap.String("cached_url", existing.SourceURL),
			zap.String("url", s.config.URL))
		if err := s.clearCache(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear stale cache: %w", err)
		}
		existing = nil
	}

	size, err := s.GetArtifactSize(ctx)
	if err != nil {
		return nil, err
	}

	if existing != nil && existing.Compatible(s.config.URL, size) {
		s.logger.Debug("resuming with cached chunking scheme",
			zap.Int64("chunk_size", existing.ChunkSizeBytes),
			zap.Int("total_chunks", existing.TotalChunks))
		return existing, nil
	}

	chunkSize := s.DetermineOptimalChunkSize(ctx)
	// A cancelled latency check yields the default size; it is not persisted
	if err := ctx.Err(); err != nil {
		return nil, cancelled(ctx, err)
	}
	meta, err := domain.NewArtifactMetadata(s.config.ArtifactID, s.config.URL, size, chunkSize)
	if err != nil {
		return nil, err
	}
	if err := s.writeMetadata(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (s *Service) download(ctx context.Context, progress *progressReporter) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(ctx, err)
	}
	s.setState(domain.FetchStateProbing)
	meta, err := s.plan(ctx)
	if err != nil {
		return nil, err
	}
	s.setTotal(meta.TotalChunks)
	s.metrics.SetChunkSize(s.config.ArtifactID, meta.ChunkSizeBytes)

	s.setState(domain.FetchStateChecking)
	buf := make([]byte, meta.TotalSizeBytes)
	loaded := 0
	var pending []domain.ChunkRange

	for _, r := range meta.Ranges() {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(ctx, err)
		}
		data, err := s.readChunk(ctx, r)
		if err != nil {
			if !errors.Is(err, domain.ErrMissingChunk) {
				s.logger.Warn("cached chunk unusable, refetching", zap.Int("chunk", r.Index), zap.Error(err))
			}
			pending = append(pending, r)
			continue
		}
		copy(buf[r.Start:], data)
		s.metrics.RecordChunkBytes(s.config.ArtifactID, metrics.SourceCache, len(data))
		loaded++
		progress.report(s.setLoaded(loaded, meta.TotalChunks))
	}

	if len(pending) == 0 {
		s.logger.Info("all chunks cached", zap.Int("total_chunks", meta.TotalChunks))
		return buf, nil
	}

	if err := s.checkSpace(ctx, pending); err != nil {
		return nil, err
	}

	s.logger.Info("downloading artifact",
		zap.String("url", s.config.URL),
		zap.String("size", humanize.IBytes(uint64(meta.TotalSizeBytes))),
		zap.Int64("chunk_size", meta.ChunkSizeBytes),
		zap.Int("total_chunks", meta.TotalChunks),
		zap.Int("cached_chunks", loaded),
		zap.Int("concurrency", s.config.Concurrency))
	s.setState(domain.FetchStateDownloading)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, r := range pending {
		r := r
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Checked again here: with a window of one, Go blocks until the
			// previous chunk is done
			if err := gctx.Err(); err != nil {
				return cancelled(ctx, err)
			}
			data, err := s.fetchChunk(gctx, r)
			if err != nil {
				return err
			}
			// A chunk that arrived in full is kept even if cancel races the write
			if err := s.saveChunk(context.WithoutCancel(ctx), r.Index, data); err != nil {
				return err
			}
			copy(buf[r.Start:], data)
			s.metrics.RecordChunkBytes(s.config.ArtifactID, metrics.SourceNetwork, len(data))

			mu.Lock()
			defer mu.Unlock()
			loaded++
			fraction := s.setLoaded(loaded, meta.TotalChunks)
			progress.report(fraction)
			s.logProgress(loaded, meta)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if loaded < meta.TotalChunks {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownloadCancelled, context.Cause(ctx))
	}

	s.setState(domain.FetchStateAssembling)
	return buf, nil
}

// checkSpace fails when the store reports less free space than the
// pending ranges need. Stores that cannot report space are not checked.
func (s *Service) checkSpace(ctx context.Context, pending []domain.ChunkRange) error {
	reporter, ok := s.store.(port.SpaceReporter)
	if !ok {
		return nil
	}
	free, err := reporter.FreeBytes(ctx)
	if err != nil {
		s.logger.Debug("free space unknown, skipping check", zap.Error(err))
		return nil
	}

	var need int64
	for _, r := range pending {
		need += r.Len()
	}
	if free < need {
		return fmt.Errorf("%w: need %s, %s free", domain.ErrInsufficientSpace,
			humanize.IBytes(uint64(need)), humanize.IBytes(uint64(free)))
	}
	return nil
}

// fetchChunk requests range r and reads exactly r.Len() bytes
func (s *Service) fetchChunk(ctx context.Context, r domain.ChunkRange) ([]byte, error) {
	start := time.Now()
	resp, err := s.client.GetRange(ctx, s.config.URL, r.Start, r.End)
	if err != nil {
		s.metrics.RecordChunkRequest(s.config.ArtifactID, "error", time.Since(start))
		if ctx.Err() != nil {
			return nil, cancelled(ctx, err)
		}
		return nil, domain.NewChunkFetchError(r.Index, 0, err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		s.metrics.RecordChunkRequest(s.config.ArtifactID, status, time.Since(start))
		return nil, domain.NewChunkFetchError(r.Index, resp.StatusCode, nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.Len()+1))
	s.metrics.RecordChunkRequest(s.config.ArtifactID, status, time.Since(start))
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx, err)
		}
		return nil, domain.NewChunkFetchError(r.Index, resp.StatusCode, err)
	}
	if int64(len(data)) != r.Len() {
		return nil, domain.NewChunkFetchError(r.Index, resp.StatusCode,
			fmt.Errorf("received %d bytes, want %d", len(data), r.Len()))
	}

	s.logger.Debug("chunk downloaded",
		zap.Int("chunk", r.Index),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)))
	return data, nil
}

func (s *Service) logProgress(loaded int, meta *domain.ArtifactMetadata) {
	if !s.progressLog.AllowOrFinal(loaded == meta.TotalChunks) {
		return
	}
	s.logger.Info("download progress",
		zap.Int("loaded_chunks", loaded),
		zap.Int("total_chunks", meta.TotalChunks),
		zap.String("progress", fmt.Sprintf("%.1f%%", domain.Fraction(loaded, meta.TotalChunks)*100)))
}

// cancelled converts a context error into ErrDownloadCancelled when the
// session itself was cancelled. A sibling chunk failure also cancels the
// group context; that case keeps the original error.
func cancelled(session context.Context, err error) error {
	if session.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrDownloadCancelled, err)
	}
	return err
}
