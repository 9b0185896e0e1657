package port

import (
	"context"

	"github.com/vertextoedge/artifact-cache/internal/domain"
)

// GenerateOptions are passed through to the engine or remote service
type GenerateOptions struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// Backend is the capability surface every execution strategy exposes
type Backend interface {
	// Kind returns the backend identifier
	Kind() domain.BackendKind

	// LoadModel acquires and initializes the model
	LoadModel(ctx context.Context, callbacks *domain.Callbacks) (bool, error)

	// IsModelLoaded reports whether LoadModel has completed
	IsModelLoaded() bool

	// Progress returns the load progress in [0,1]
	Progress() float64

	// Generate produces text for prompt
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// UnloadModel releases the loaded model
	UnloadModel(ctx context.Context) error

	// ClearModelCache drops any locally cached artifact
	ClearModelCache(ctx context.Context) (bool, error)
}

// Engine runs inference over a loaded artifact. Engines are provided by the
// embedding application; this module treats them as opaque.
type Engine interface {
	Load(ctx context.Context, artifact []byte, kind domain.BackendKind) error
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	Unload(ctx context.Context) error
}
