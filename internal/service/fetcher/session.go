package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// Session returns a snapshot of the current or last session
func (s *Service) Session() domain.DownloadSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// begin claims the single session slot. The returned context is cancelled
// by Cancel or when the session ends.
func (s *Service) begin(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.IsActive || s.busy {
		return nil, domain.ErrAlreadyInProgress
	}

	now := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.session = domain.DownloadSession{
		ID:         uuid.New().String(),
		ArtifactID: s.config.ArtifactID,
		State:      domain.FetchStateProbing,
		IsActive:   true,
		StartedAt:  &now,
	}
	s.progressLog.Reset()
	return ctx, nil
}

// claim reserves the session slot for a cache operation that must not
// overlap a load. The returned func releases it.
func (s *Service) claim() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.IsActive || s.busy {
		return nil, domain.ErrAlreadyInProgress
	}
	s.busy = true
	return func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}, nil
}

// end releases the session slot and records the terminal state
func (s *Service) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.session.IsActive = false
	s.session.FinishedAt = &now
	switch {
	case err == nil:
		s.session.State = domain.FetchStateComplete
		s.session.LastError = ""
	case domain.IsCancelled(err):
		s.session.State = domain.FetchStateCancelled
		s.session.LastError = err.Error()
	default:
		s.session.State = domain.FetchStateFailed
		s.session.LastError = err.Error()
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Service) setState(state string) {
	s.mu.Lock()
	s.session.State = state
	s.mu.Unlock()
}

func (s *Service) setTotal(total int) {
	s.mu.Lock()
	s.session.TotalChunks = total
	s.session.LoadedChunks = 0
	s.session.Progress = 0
	s.mu.Unlock()
}

func (s *Service) setLoaded(loaded, total int) float64 {
	fraction := domain.Fraction(loaded, total)
	s.mu.Lock()
	s.session.LoadedChunks = loaded
	s.session.TotalChunks = total
	s.session.Progress = fraction
	s.mu.Unlock()
	s.metrics.SetProgress(s.config.ArtifactID, fraction)
	return fraction
}

// progressReporter forwards progress to callbacks, dropping any value lower
// than one already reported
type progressReporter struct {
	mu        sync.Mutex
	callbacks *domain.Callbacks
	last      float64
	reported  bool
}

func (p *progressReporter) report(fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reported && fraction < p.last {
		return
	}
	p.last = fraction
	p.reported = true
	p.callbacks.Progress(fraction)
}
