package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/acs-auto/internal/macro"
)

type runRequest struct {
	Category string `json:"category"`
}

type stopRequest struct {
	Stop bool `json:"stop"`
}

type clickRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// handleStartRun starts the active macro of a category. The run proceeds
// in the background; the response carries its initial record.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	category, err := macro.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	run, err := s.controller.RunCategory(category, macro.SourceAPI)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if claims := claimsFrom(r); claims != nil {
		s.logger.Info("run requested over API", "run_id", run.ID, "subject", claims.Subject)
	}
	writeJSON(w, http.StatusAccepted, run)
}

// handleCurrentRun returns the run in progress, or 204 when idle.
func (s *Server) handleCurrentRun(w http.ResponseWriter, _ *http.Request) {
	run := s.runner.Current()
	if run == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleListRuns lists recent runs, newest first.
// Query: category (optional), limit (default 20, max 200).
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runHistory == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "run history is not enabled")
		return
	}

	var category macro.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, err := macro.ParseCategory(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		category = c
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runHistory.ListRuns(r.Context(), category, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if runs == nil {
		runs = []macro.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleGetRun returns one run from history.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runHistory == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "run history is not enabled")
		return
	}
	run, err := s.runHistory.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleGetStop reports the stop signal.
func (s *Server) handleGetStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stopRequest{Stop: s.controller.Stopped()})
}

// handleToggleStop flips the stop signal, like the esc hotkey.
func (s *Server) handleToggleStop(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stopRequest{Stop: s.controller.ToggleStop()})
}

// handleSetStop raises or clears the stop signal explicitly.
func (s *Server) handleSetStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.controller.SetStop(req.Stop)
	writeJSON(w, http.StatusOK, req)
}

// handleClick clicks an offset inside the target window.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.X < 0 || req.Y < 0 {
		writeBadRequest(w, "x and y must be non-negative")
		return
	}
	if err := s.controller.ClickConfiguration(r.Context(), req.X, req.Y); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
