// Package backend provides execution strategies satisfying port.Backend.
// Local backends acquire the artifact through the chunked fetcher and hand
// it to an engine; the remote backend delegates generation over HTTP.
package backend

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// Share of LoadModel progress given to the download; the rest covers
// engine initialization
const fetchShare = 0.9

// ArtifactSource is the part of the fetcher a local backend needs
type ArtifactSource interface {
	Load(ctx context.Context, callbacks *domain.Callbacks) ([]byte, error)
	ClearCache(ctx context.Context) error
}

// Local runs the model in-process on the accelerated, fallback or CPU path
type Local struct {
	kind   domain.BackendKind
	source ArtifactSource
	engine port.Engine
	logger *zap.Logger

	mu       sync.Mutex
	loading  bool
	loaded   bool
	progress float64
}

// Ensure Local implements port.Backend
var _ port.Backend = (*Local)(nil)

// NewLocal creates a local backend of the given kind. A nil engine is
// replaced by NullEngine.
func NewLocal(kind domain.BackendKind, source ArtifactSource, engine port.Engine, logger *zap.Logger) *Local {
	if engine == nil {
		engine = NullEngine{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{
		kind:   kind,
		source: source,
		engine: engine,
		logger: logger.With(zap.String("backend", string(kind))),
	}
}

// Kind returns the backend identifier
func (b *Local) Kind() domain.BackendKind {
	return b.kind
}

// LoadModel fetches the artifact and initializes the engine with it. It
// returns false with ErrAlreadyInProgress when a load is running, and true
// without work when the model is already loaded.
func (b *Local) LoadModel(ctx context.Context, callbacks *domain.Callbacks) (bool, error) {
	b.mu.Lock()
	if b.loading {
		b.mu.Unlock()
		return false, domain.ErrAlreadyInProgress
	}
	if b.loaded {
		b.mu.Unlock()
		return true, nil
	}
	b.loading = true
	b.progress = 0
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.loading = false
		b.mu.Unlock()
	}()

	artifact, err := b.source.Load(ctx, &domain.Callbacks{
		OnProgress: func(fraction float64) {
			b.setProgress(fraction * fetchShare)
			callbacks.Progress(fraction * fetchShare)
		},
	})
	if err != nil {
		b.logger.Warn("artifact acquisition failed", zap.Error(err))
		callbacks.Error(err)
		return false, err
	}

	if err := b.engine.Load(ctx, artifact, b.kind); err != nil {
		b.logger.Error("engine initialization failed", zap.Error(err))
		callbacks.Error(err)
		return false, err
	}

	b.mu.Lock()
	b.loaded = true
	b.progress = 1
	b.mu.Unlock()

	b.logger.Info("model loaded", zap.Int("artifact_bytes", len(artifact)))
	callbacks.Progress(1)
	callbacks.Success()
	return true, nil
}

func (b *Local) setProgress(p float64) {
	b.mu.Lock()
	if p > b.progress {
		b.progress = p
	}
	b.mu.Unlock()
}

// IsModelLoaded reports whether LoadModel has completed
func (b *Local) IsModelLoaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Progress returns the load progress in [0,1]
func (b *Local) Progress() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress
}

// Generate runs the engine on prompt
func (b *Local) Generate(ctx context.Context, prompt string, opts port.GenerateOptions) (string, error) {
	if !b.IsModelLoaded() {
		return "", domain.ErrModelNotLoaded
	}
	return b.engine.Generate(ctx, prompt, opts)
}

// UnloadModel releases the engine's model
func (b *Local) UnloadModel(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded {
		return nil
	}
	if err := b.engine.Unload(ctx); err != nil {
		return err
	}
	b.loaded = false
	b.progress = 0
	b.logger.Info("model unloaded")
	return nil
}

// ClearModelCache drops the cached artifact chunks
func (b *Local) ClearModelCache(ctx context.Context) (bool, error) {
	if err := b.source.ClearCache(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// NullEngine accepts any artifact and cannot generate. It stands in when
// the embedding application supplies no engine.
type NullEngine struct{}

// Load discards the artifact
func (NullEngine) Load(ctx context.Context, artifact []byte, kind domain.BackendKind) error {
	return nil
}

// Generate always fails with ErrNoEngine
func (NullEngine) Generate(ctx context.Context, prompt string, opts port.GenerateOptions) (string, error) {
	return "", domain.ErrNoEngine
}

// Unload does nothing
func (NullEngine) Unload(ctx context.Context) error {
	return nil
}
