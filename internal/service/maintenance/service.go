package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// Config contains maintenance service configuration
type Config struct {
	// PruneInterval is how often orphaned chunk keys are swept
	PruneInterval time.Duration

	// PruneOnStart runs one sweep before the first tick
	PruneOnStart bool
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		PruneInterval: time.Hour,
		PruneOnStart:  true,
	}
}

// Pruner removes cache entries the current metadata does not account for
type Pruner interface {
	PruneOrphans(ctx context.Context) (int, error)
}

// Service handles periodic maintenance tasks
type Service struct {
	config *Config
	pruner Pruner
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, pruner Pruner, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: cfg,
		pruner: pruner,
		logger: logger,
	}
}

// Start runs the maintenance loop until ctx is done or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("prune_interval", s.config.PruneInterval))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// maintenanceLoop handles periodic maintenance tasks
func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.PruneOnStart {
		s.prune(ctx)
	}

	pruneTicker := time.NewTicker(s.config.PruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pruneTicker.C:
			s.prune(ctx)
		}
	}
}

// prune sweeps orphaned chunk keys. A running download postpones the
// sweep to the next tick.
func (s *Service) prune(ctx context.Context) {
	removed, err := s.pruner.PruneOrphans(ctx)
	switch {
	case errors.Is(err, domain.ErrAlreadyInProgress):
		s.logger.Debug("download in progress, skipping prune")
	case err != nil:
		s.logger.Error("failed to prune orphaned chunks", zap.Error(err))
	case removed > 0:
		s.logger.Info("pruned orphaned chunks", zap.Int("count", removed))
	}
}
