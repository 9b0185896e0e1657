package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
)

type sessionView struct {
	ID           string     `json:"id,omitempty"`
	State        string     `json:"state"`
	Active       bool       `json:"active"`
	Progress     float64    `json:"progress"`
	LoadedChunks int        `json:"loaded_chunks"`
	TotalChunks  int        `json:"total_chunks"`
	LastError    string     `json:"last_error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type backendView struct {
	Kind      domain.BackendKind `json:"kind"`
	Loading   bool               `json:"loading"`
	Loaded    bool               `json:"loaded"`
	Progress  float64            `json:"progress"`
	LastError string             `json:"last_error,omitempty"`
}

type statusResponse struct {
	ArtifactID  string                   `json:"artifact_id"`
	FullyCached bool                     `json:"fully_cached"`
	Session     sessionView              `json:"session"`
	Metadata    *domain.ArtifactMetadata `json:"metadata,omitempty"`
	Store       *port.StoreStats         `json:"store,omitempty"`
	Backend     *backendView             `json:"backend,omitempty"`
}

func newSessionView(s domain.DownloadSession) sessionView {
	return sessionView{
		ID:           s.ID,
		State:        s.State,
		Active:       s.IsActive,
		Progress:     s.Progress,
		LoadedChunks: s.LoadedChunks,
		TotalChunks:  s.TotalChunks,
		LastError:    s.LastError,
		StartedAt:    s.StartedAt,
		FinishedAt:   s.FinishedAt,
	}
}

// handleStatus reports the download session, cached metadata and store usage
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	resp := statusResponse{
		ArtifactID:  s.deps.Fetcher.ArtifactID(),
		FullyCached: s.deps.Fetcher.IsFullyCached(ctx),
		Session:     newSessionView(s.deps.Fetcher.Session()),
	}

	meta, err := s.deps.Fetcher.Metadata(ctx)
	if err != nil {
		s.logger.Warn("failed to read artifact metadata", zap.Error(err))
	}
	resp.Metadata = meta

	if reporter, ok := s.deps.Store.(port.StatsReporter); ok {
		stats, err := reporter.Stats(ctx)
		if err != nil {
			s.logger.Warn("failed to read store stats", zap.Error(err))
		}
		resp.Store = stats
	}

	s.mu.Lock()
	if s.active != nil {
		resp.Backend = &backendView{
			Kind:      s.active.Kind(),
			Loading:   s.loading,
			Loaded:    s.active.IsModelLoaded(),
			Progress:  s.active.Progress(),
			LastError: s.lastErr,
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// handleProbe returns a fresh capability report
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Prober.GetFullReport(r.Context()))
}

// handleOptions lists the selectable backend identifiers
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Selector.Options())
}
