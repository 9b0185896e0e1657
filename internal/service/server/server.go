// Package server exposes the artifact cache over a small HTTP control API:
// status and capability reports, backend selection and loading,
// cancellation, cache clearing and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
	"github.com/vertextoedge/artifact-cache/internal/service/selector"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	AdminUsername string
	AdminPassword string // empty disables auth on mutating endpoints
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:    "127.0.0.1:8090",
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
}

// Fetcher is the slice of the chunked fetcher the API drives
type Fetcher interface {
	ArtifactID() string
	Session() domain.DownloadSession
	Metadata(ctx context.Context) (*domain.ArtifactMetadata, error)
	IsFullyCached(ctx context.Context) bool
	Cancel() bool
	ClearCache(ctx context.Context) error
}

// Selector picks and instantiates a backend
type Selector interface {
	SelectBackend(ctx context.Context, opts selector.SelectOptions) (*selector.Selection, error)
	Options() []selector.Option
}

// Prober produces capability reports
type Prober interface {
	GetFullReport(ctx context.Context) *domain.CapabilityReport
}

// Deps are the services the server fronts
type Deps struct {
	Fetcher  Fetcher
	Selector Selector
	Prober   Prober
	Store    port.BlobStore

	// Metrics serves /metrics when set
	Metrics http.Handler

	// Forced is the configured default backend for /load
	Forced domain.BackendKind
}

// Server represents the HTTP control API server
type Server struct {
	config *Config
	deps   Deps
	logger *zap.Logger
	server *http.Server

	// baseCtx outlives individual requests; loads run under it
	baseCtx    context.Context
	baseCancel context.CancelFunc
	loads      sync.WaitGroup

	mu      sync.Mutex
	active  port.Backend
	loading bool
	lastErr string
}

// New creates a new HTTP server
func New(cfg *Config, deps Deps, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:     cfg,
		deps:       deps,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
	}

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the routed handler, wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	auth := BasicAuthMiddleware(s.config.AdminUsername, s.config.AdminPassword, s.logger)

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Read-only reports
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/probe", s.handleProbe)
	mux.HandleFunc("/options", s.handleOptions)

	// Control endpoints
	mux.HandleFunc("/load", auth(s.handleLoad))
	mux.HandleFunc("/cancel", auth(s.handleCancel))
	mux.HandleFunc("/cache", auth(s.handleClearCache))
	mux.HandleFunc("/generate", auth(s.handleGenerate))

	if s.deps.Metrics != nil {
		mux.Handle("/metrics", s.deps.Metrics)
	}

	return LoggingMiddleware(s.logger)(mux)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop cancels running loads and gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	s.baseCancel()
	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.loads.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("timed out waiting for running load to stop")
	}
	return err
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.deps.Store != nil {
		if err := s.deps.Store.Open(r.Context()); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			http.Error(w, "Store unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
