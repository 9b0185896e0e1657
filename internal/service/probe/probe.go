package probe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// Config contains probe configuration
type Config struct {
	// DefaultMemoryGB is assumed when the source cannot report memory
	DefaultMemoryGB float64

	// DefaultCores is assumed when the source cannot report cores
	DefaultCores int
}

// DefaultConfig returns default probe configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultMemoryGB: 4,
		DefaultCores:    4,
	}
}

// Service composes capability checks into a CapabilityReport. Reports are
// recomputed on every call.
type Service struct {
	config *Config
	source port.CapabilitySource
	logger *zap.Logger
}

// New creates a new probe Service
func New(cfg *Config, source port.CapabilitySource, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DefaultMemoryGB <= 0 {
		cfg.DefaultMemoryGB = 4
	}
	if cfg.DefaultCores <= 0 {
		cfg.DefaultCores = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{config: cfg, source: source, logger: logger}
}

// CheckAcceleratedBackend reports whether an accelerated compute adapter
// and device can be acquired. It never fails; the reason explains a false
// result.
func (s *Service) CheckAcceleratedBackend(ctx context.Context) (result domain.AcceleratedSupport) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.AcceleratedSupport{Reason: fmt.Sprintf("adapter probe failed: %v", r)}
		}
	}()
	result = s.source.AcceleratedAdapter(ctx)
	if !result.Supported && result.Reason == "" {
		result.Reason = "accelerated adapter unavailable"
	}
	return result
}

// CheckFallbackGraphicsBackend reports whether a graphics context is
// available as a secondary acceleration path
func (s *Service) CheckFallbackGraphicsBackend(ctx context.Context) (result domain.GraphicsSupport) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.GraphicsSupport{Reason: fmt.Sprintf("graphics probe failed: %v", r)}
		}
	}()
	result = s.source.GraphicsContext(ctx)
	if !result.Supported {
		result.Version = 0
		if result.Reason == "" {
			result.Reason = "graphics context unavailable"
		}
	}
	return result
}

// CheckDevicePerformance derives the performance tier from memory and core
// hints, substituting conservative defaults for unknown values
func (s *Service) CheckDevicePerformance() domain.DevicePerformance {
	memory, ok := s.source.MemoryGB()
	if !ok || memory <= 0 {
		memory = s.config.DefaultMemoryGB
	}
	cores, ok := s.source.Cores()
	if !ok || cores <= 0 {
		cores = s.config.DefaultCores
	}

	score, tier := domain.TierFor(memory, cores)
	return domain.DevicePerformance{
		MemoryGB: memory,
		Cores:    cores,
		Score:    score,
		Tier:     tier,
	}
}

// GetFullReport runs every check and computes the recommended strategy
func (s *Service) GetFullReport(ctx context.Context) *domain.CapabilityReport {
	accelerated := s.CheckAcceleratedBackend(ctx)
	graphics := s.CheckFallbackGraphicsBackend(ctx)
	perf := s.CheckDevicePerformance()
	client := s.source.Client()

	report := &domain.CapabilityReport{
		AcceleratedGPUSupported: accelerated.Supported,
		FallbackGPUSupported:    graphics.Supported,
		Accelerated:             accelerated,
		Fallback:                graphics,
		DeviceMemoryGB:          perf.MemoryGB,
		CPUCoreCount:            perf.Cores,
		PerformanceTier:         perf.Tier,
		IsMobile:                client.IsMobile,
		BrowserName:             client.Name,
		BrowserVersion:          client.Version,
	}
	report.RecommendedStrategy = report.Recommend()
	report.ExpectedPerformance = report.RecommendedStrategy.ExpectedPerformance()

	s.logger.Debug("capability report",
		zap.Bool("accelerated", report.AcceleratedGPUSupported),
		zap.String("accelerated_reason", accelerated.Reason),
		zap.Bool("fallback", report.FallbackGPUSupported),
		zap.Float64("memory_gb", report.DeviceMemoryGB),
		zap.Int("cores", report.CPUCoreCount),
		zap.String("tier", string(report.PerformanceTier)),
		zap.String("recommended", string(report.RecommendedStrategy)))

	return report
}
