package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hype/internal/hype"
	"github.com/mattjoyce/hype/internal/journal"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.stage.Stats()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		State:         st.State,
		Workers:       len(st.Workers),
		Journal:       s.runs != nil,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.stage.Stats())
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ChildrenResponse{Children: s.stage.Children()})
}

// handleSetGroupSize handles PUT /stage/group-size.
func (s *Server) handleSetGroupSize(w http.ResponseWriter, r *http.Request) {
	var req GroupSizeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.stage.SetGroupSize(req.GroupSize); err != nil {
		var cfgErr *hype.ConfigurationError
		if errors.As(err, &cfgErr) {
			s.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("set group size failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to set group size")
		return
	}
	s.logger.Info("group size changed", "group_size", req.GroupSize)
	respondJSON(w, http.StatusOK, GroupSizeResponse{GroupSize: s.stage.Stats().GroupSize})
}

// handleListRuns handles GET /runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.journalEnabled(w) {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.journalEnabled(w) {
		return
	}
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if errors.Is(err, journal.ErrRunNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// handleRunScenes handles GET /runs/{runID}/scenes.
func (s *Server) handleRunScenes(w http.ResponseWriter, r *http.Request) {
	if !s.journalEnabled(w) {
		return
	}
	runID := chi.URLParam(r, "runID")
	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, journal.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("failed to get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	scenes, err := s.runs.Scenes(r.Context(), runID)
	if err != nil {
		s.logger.Error("failed to list scenes", "run_id", runID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list scenes")
		return
	}
	if scenes == nil {
		scenes = []journal.Scene{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"run_id": runID, "scenes": scenes})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func (s *Server) journalEnabled(w http.ResponseWriter) bool {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
