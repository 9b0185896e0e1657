package selector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// Factory instantiates the backend of one kind
type Factory func() (port.Backend, error)

// Reporter produces a fresh capability report
type Reporter interface {
	GetFullReport(ctx context.Context) *domain.CapabilityReport
}

// SelectOptions controls one selection
type SelectOptions struct {
	// ForcedBackend bypasses probing when it names a known backend
	ForcedBackend domain.BackendKind
}

// Selection is the outcome of SelectBackend
type Selection struct {
	Backend port.Backend
	Kind    domain.BackendKind
	Forced  bool

	// Report is nil when the backend was forced
	Report *domain.CapabilityReport
}

// Option describes one selectable strategy
type Option struct {
	ID                  domain.BackendKind `json:"id"`
	Name                string             `json:"name"`
	ExpectedPerformance string             `json:"expected_performance,omitempty"`
}

// Service picks an execution backend from a capability report. Selection
// does not retry: a backend that fails to initialize reports its own error.
type Service struct {
	probe  Reporter
	logger *zap.Logger

	mu        sync.RWMutex
	factories map[domain.BackendKind]Factory
}

// New creates a new selector Service
func New(probe Reporter, factories map[domain.BackendKind]Factory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		probe:     probe,
		logger:    logger,
		factories: make(map[domain.BackendKind]Factory, len(factories)),
	}
	for kind, f := range factories {
		s.factories[kind] = f
	}
	return s
}

// Register sets the factory for kind
func (s *Service) Register(kind domain.BackendKind, f Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[kind] = f
}

// SelectBackend instantiates the forced backend, or probes and applies the
// priority accelerated > fallback > cpu (tier not low) > remote
func (s *Service) SelectBackend(ctx context.Context, opts SelectOptions) (*Selection, error) {
	if opts.ForcedBackend.IsKnown() {
		s.logger.Info("using forced backend", zap.String("backend", string(opts.ForcedBackend)))
		backend, err := s.instantiate(opts.ForcedBackend)
		if err != nil {
			return nil, err
		}
		return &Selection{Backend: backend, Kind: opts.ForcedBackend, Forced: true}, nil
	}
	if opts.ForcedBackend != "" && opts.ForcedBackend != domain.BackendAuto {
		s.logger.Warn("ignoring unknown forced backend", zap.String("backend", string(opts.ForcedBackend)))
	}

	report := s.probe.GetFullReport(ctx)
	kind := report.Recommend()

	s.logger.Info("selected backend",
		zap.String("backend", string(kind)),
		zap.String("tier", string(report.PerformanceTier)),
		zap.Bool("accelerated", report.AcceleratedGPUSupported),
		zap.Bool("fallback", report.FallbackGPUSupported),
		zap.Bool("mobile", report.IsMobile))

	backend, err := s.instantiate(kind)
	if err != nil {
		return nil, err
	}
	return &Selection{Backend: backend, Kind: kind, Report: report}, nil
}

func (s *Service) instantiate(kind domain.BackendKind) (port.Backend, error) {
	s.mu.RLock()
	f, ok := s.factories[kind]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no factory for %q", domain.ErrUnknownBackend, kind)
	}
	backend, err := f()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", kind, err)
	}
	return backend, nil
}

// Options lists the selectable strategies, starting with automatic
// selection
func (s *Service) Options() []Option {
	return []Option{
		{ID: domain.BackendAuto, Name: "Automatic (best available)"},
		{ID: domain.BackendAccelerated, Name: "Accelerated GPU compute (local)", ExpectedPerformance: domain.BackendAccelerated.ExpectedPerformance()},
		{ID: domain.BackendFallback, Name: "Graphics fallback (local)", ExpectedPerformance: domain.BackendFallback.ExpectedPerformance()},
		{ID: domain.BackendCPU, Name: "CPU execution (local)", ExpectedPerformance: domain.BackendCPU.ExpectedPerformance()},
		{ID: domain.BackendRemote, Name: "Remote API", ExpectedPerformance: domain.BackendRemote.ExpectedPerformance()},
	}
}
