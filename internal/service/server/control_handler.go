package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/vertextoedge/artifact-cache/internal/domain"
	"github.com/vertextoedge/artifact-cache/internal/port"
	"github.com/vertextoedge/artifact-cache/internal/service/selector"
)

type loadRequest struct {
	Backend string `json:"backend"`
}

type loadResponse struct {
	Backend domain.BackendKind `json:"backend"`
	Forced  bool               `json:"forced"`
	Started bool               `json:"started"`
}

type generateRequest struct {
	Prompt  string               `json:"prompt"`
	Options port.GenerateOptions `json:"options"`
}

// decodeBody decodes an optional JSON body into v
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleLoad selects a backend and starts loading it in the background
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	forced := s.deps.Forced
	if req.Backend != "" {
		kind, ok := domain.ParseBackendKind(req.Backend)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %s", domain.ErrUnknownBackend, req.Backend))
			return
		}
		forced = kind
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, domain.ErrAlreadyInProgress)
		return
	}
	s.loading = true
	s.mu.Unlock()

	sel, err := s.deps.Selector.SelectBackend(r.Context(), selector.SelectOptions{ForcedBackend: forced})
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
		s.logger.Error("backend selection failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.mu.Lock()
	previous := s.active
	s.active = sel.Backend
	s.lastErr = ""
	s.mu.Unlock()

	if previous != nil && previous != sel.Backend {
		if err := previous.UnloadModel(s.baseCtx); err != nil {
			s.logger.Warn("failed to unload previous backend", zap.Error(err))
		}
	}

	s.loads.Add(1)
	go s.runLoad(sel.Backend)

	writeJSON(w, http.StatusAccepted, loadResponse{Backend: sel.Kind, Forced: sel.Forced, Started: true})
}

func (s *Server) runLoad(backend port.Backend) {
	defer s.loads.Done()

	ok, err := backend.LoadModel(s.baseCtx, &domain.Callbacks{
		OnProgress: func(fraction float64) {
			s.logger.Debug("backend load progress",
				zap.String("backend", string(backend.Kind())),
				zap.Float64("progress", fraction))
		},
	})

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	switch {
	case err != nil && domain.IsCancelled(err):
		s.logger.Info("backend load cancelled", zap.String("backend", string(backend.Kind())))
	case err != nil:
		s.logger.Error("backend load failed", zap.String("backend", string(backend.Kind())), zap.Error(err))
	case ok:
		s.logger.Info("backend loaded", zap.String("backend", string(backend.Kind())))
	}
}

// handleCancel stops the running download
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.deps.Fetcher.Cancel()})
}

// handleClearCache deletes the cached artifact
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.deps.Fetcher.ClearCache(r.Context()); err != nil {
		if errors.Is(err, domain.ErrAlreadyInProgress) {
			writeError(w, http.StatusConflict, err)
			return
		}
		s.logger.Error("failed to clear cache", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// handleGenerate runs a prompt through the loaded backend
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateRequest
	if err := decodeBody(r, &req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput))
		return
	}

	s.mu.Lock()
	backend := s.active
	s.mu.Unlock()
	if backend == nil {
		writeError(w, http.StatusConflict, domain.ErrModelNotLoaded)
		return
	}

	text, err := backend.Generate(r.Context(), req.Prompt, req.Options)
	switch {
	case errors.Is(err, domain.ErrModelNotLoaded):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		s.logger.Error("generation failed", zap.String("backend", string(backend.Kind())), zap.Error(err))
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
