package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/adapter/device"
	"github.com/vertextoedge/artifact-cache/internal/adapter/httpclient"
	"github.com/vertextoedge/artifact-cache/internal/adapter/memory"
	"github.com/vertextoedge/artifact-cache/internal/adapter/sqlite"
	"github.com/vertextoedge/artifact-cache/internal/config"
	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/logger"
	"github.com/vertextoedge/artifact-cache/internal/metrics"
	"github.com/vertextoedge/artifact-cache/internal/port"
	"github.com/vertextoedge/artifact-cache/internal/service/backend"
	"github.com/vertextoedge/artifact-cache/internal/service/fetcher"
	"github.com/vertextoedge/artifact-cache/internal/service/probe"
	"github.com/vertextoedge/artifact-cache/internal/service/selector"
)

// app is the composition root shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    port.BlobStore
	fetcher  *fetcher.Service
	probe    *probe.Service
	selector *selector.Service
	registry *prometheus.Registry
}

// newApp loads configuration and wires the services
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, err
	}
	zapLogger := logger.Get()

	a := &app{cfg: cfg, logger: zapLogger}

	switch cfg.Store.Driver {
	case "memory":
		a.store = memory.New()
	default:
		a.store = sqlite.New(cfg.Store.Path, &sqlite.Options{BusyTimeoutMs: cfg.Store.BusyTimeoutMs})
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("artifact_cache", a.registry, zapLogger)

	client := httpclient.New(&httpclient.Config{
		Timeout:               cfg.HTTP.GetTimeout(),
		ResponseHeaderTimeout: cfg.HTTP.GetResponseHeaderTimeout(),
		UserAgent:             cfg.HTTP.UserAgent,
		Headers:               cfg.HTTP.Headers,
		SkipTLSVerify:         cfg.HTTP.SkipTLSVerify,
	})

	a.fetcher = fetcher.New(&fetcher.Config{
		ArtifactID:          cfg.Artifact.ID,
		URL:                 cfg.Artifact.URL,
		DefaultChunkSize:    cfg.Artifact.GetDefaultChunkSize(),
		ProbeTimeout:        cfg.Artifact.GetProbeTimeout(),
		ProbePath:           cfg.Artifact.ProbePath,
		Concurrency:         cfg.Artifact.Concurrency,
		VerifyChunks:        cfg.Artifact.VerifyChunks,
		ProgressLogInterval: cfg.Artifact.GetProgressLogInterval(),
	}, a.store, client, collector, zapLogger)

	source := device.New(&device.Config{
		SysRoot:            cfg.Device.SysRoot,
		MemoryGB:           cfg.Device.MemoryGB,
		Cores:              cfg.Device.Cores,
		UserAgent:          cfg.Device.UserAgent,
		DisableAccelerated: cfg.Device.DisableAccelerated,
		DisableGraphics:    cfg.Device.DisableGraphics,
	})
	a.probe = probe.New(probe.DefaultConfig(), source, zapLogger)

	factories := map[domain.BackendKind]selector.Factory{}
	for _, kind := range []domain.BackendKind{domain.BackendAccelerated, domain.BackendFallback, domain.BackendCPU} {
		kind := kind
		factories[kind] = func() (port.Backend, error) {
			return backend.NewLocal(kind, a.fetcher, nil, zapLogger), nil
		}
	}
	factories[domain.BackendRemote] = func() (port.Backend, error) {
		if cfg.Backend.RemoteURL == "" {
			return nil, fmt.Errorf("%w: backend.remote_url is not configured", domain.ErrUnknownBackend)
		}
		return backend.NewRemote(backend.RemoteConfig{
			Endpoint: cfg.Backend.RemoteURL,
			Timeout:  cfg.Backend.GetRemoteTimeout(),
			APIKey:   cfg.Backend.RemoteAPIKey,
		}, zapLogger), nil
	}
	a.selector = selector.New(a.probe, factories, zapLogger)

	return a, nil
}

// requireURL fails for commands that need to reach the origin
func (a *app) requireURL() error {
	return a.cfg.Artifact.RequireURL()
}

// openStore opens the store eagerly so failures surface before work starts
func (a *app) openStore(ctx context.Context) error {
	if err := a.store.Open(ctx); err != nil {
		return fmt.Errorf("failed to open store at %s: %w", a.cfg.Store.Path, err)
	}
	return nil
}

func (a *app) metricsHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = logger.Sync()
}
