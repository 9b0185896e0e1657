package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

// RemoteConfig contains remote backend configuration
type RemoteConfig struct {
	Endpoint string
	Timeout  time.Duration
	APIKey   string
}

// Remote sends prompts to a generation service. Nothing is downloaded or
// cached locally.
type Remote struct {
	config     RemoteConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	loaded bool
}

// Ensure Remote implements port.Backend
var _ port.Backend = (*Remote)(nil)

type generateRequest struct {
	Prompt  string               `json:"prompt"`
	Options port.GenerateOptions `json:"options"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// NewRemote creates a new Remote backend
func NewRemote(cfg RemoteConfig, logger *zap.Logger) *Remote {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With(zap.String("backend", string(domain.BackendRemote))),
	}
}

// Kind returns the backend identifier
func (b *Remote) Kind() domain.BackendKind {
	return domain.BackendRemote
}

// LoadModel checks that the endpoint answers
func (b *Remote) LoadModel(ctx context.Context, callbacks *domain.Callbacks) (bool, error) {
	if b.config.Endpoint == "" {
		err := fmt.Errorf("%w: no endpoint configured", domain.ErrRemoteFailed)
		callbacks.Error(err)
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.config.Endpoint, nil)
	if err != nil {
		callbacks.Error(err)
		return false, err
	}
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: endpoint unreachable: %v", domain.ErrRemoteFailed, err)
		callbacks.Error(err)
		return false, err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		err = fmt.Errorf("%w: endpoint returned %d", domain.ErrRemoteFailed, resp.StatusCode)
		callbacks.Error(err)
		return false, err
	}

	b.mu.Lock()
	b.loaded = true
	b.mu.Unlock()

	b.logger.Info("remote endpoint ready", zap.String("endpoint", b.config.Endpoint))
	callbacks.Progress(1)
	callbacks.Success()
	return true, nil
}

func (b *Remote) authorize(req *http.Request) {
	if b.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.APIKey)
	}
}

// IsModelLoaded reports whether the endpoint was reached
func (b *Remote) IsModelLoaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// Progress is 1 once the endpoint was reached
func (b *Remote) Progress() float64 {
	if b.IsModelLoaded() {
		return 1
	}
	return 0
}

// Generate posts the prompt and returns the generated text
func (b *Remote) Generate(ctx context.Context, prompt string, opts port.GenerateOptions) (string, error) {
	if !b.IsModelLoaded() {
		return "", domain.ErrModelNotLoaded
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt, Options: opts})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRemoteFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", domain.ErrRemoteFailed, err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: status %d: invalid response: %v", domain.ErrRemoteFailed, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrRemoteFailed, resp.StatusCode, msg)
	}
	return out.Text, nil
}

// UnloadModel forgets the endpoint check
func (b *Remote) UnloadModel(ctx context.Context) error {
	b.mu.Lock()
	b.loaded = false
	b.mu.Unlock()
	return nil
}

// ClearModelCache has nothing to clear
func (b *Remote) ClearModelCache(ctx context.Context) (bool, error) {
	return true, nil
}
