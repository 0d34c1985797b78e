package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/acs-auto/internal/macro"
)

// maxImportSize bounds a macro import document.
const maxImportSize = maxRequestBodySize

// macroResponse is a macro with its position in the category.
type macroResponse struct {
	Index int `json:"index"`
	macro.Macro
}

type nameRequest struct {
	Name string `json:"name"`
}

type stepUpdateRequest struct {
	Name *string `json:"name,omitempty"`
	Code *string `json:"code,omitempty"`
}

type moveRequest struct {
	Delta int `json:"delta"`
}

// handleListMacros lists the macros of a category in order.
func (s *Server) handleListMacros(w http.ResponseWriter, r *http.Request) {
	category, ok := s.categoryParam(w, r)
	if !ok {
		return
	}
	list, err := s.macros.List(category)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out := make([]macroResponse, len(list))
	for i, m := range list {
		out[i] = macroResponse{Index: i, Macro: m}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"macros":   out,
		"count":    len(out),
	})
}

// handleCreateMacro appends a macro with a generated name.
func (s *Server) handleCreateMacro(w http.ResponseWriter, r *http.Request) {
	category, ok := s.categoryParam(w, r)
	if !ok {
		return
	}
	m, err := s.macros.Create(r.Context(), category)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	list, err := s.macros.List(category)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, macroResponse{Index: len(list) - 1, Macro: m})
}

// handleGetMacro returns one macro.
func (s *Server) handleGetMacro(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	m, err := s.macros.Get(category, index)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, macroResponse{Index: index, Macro: m})
}

// handleRenameMacro renames a macro.
func (s *Server) handleRenameMacro(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.macros.Rename(r.Context(), category, index, req.Name); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetMacro(w, r)
}

// handleDeleteMacro removes a macro. The last macro of a category stays.
func (s *Server) handleDeleteMacro(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	if err := s.macros.Delete(r.Context(), category, index); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateMacro makes a macro the one its category runs.
func (s *Server) handleActivateMacro(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	if err := s.macros.SetActive(r.Context(), category, index); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetMacro(w, r)
}

// handleAddStep appends a step with the default code.
func (s *Server) handleAddStep(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	step, err := s.macros.AddStep(r.Context(), category, index, req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	m, err := s.macros.Get(category, index)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"step":  step,
		"macro": macroResponse{Index: index, Macro: m},
	})
}

// handleUpdateStep renames a step, replaces its code, or both.
func (s *Server) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	step, ok := intParam(w, r, "step")
	if !ok {
		return
	}
	var req stepUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == nil && req.Code == nil {
		writeBadRequest(w, "name or code is required")
		return
	}

	if req.Name != nil {
		if err := s.macros.RenameStep(r.Context(), category, index, step, *req.Name); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	if req.Code != nil {
		if err := s.macros.UpdateStepCode(r.Context(), category, index, step, *req.Code); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	s.handleGetMacro(w, r)
}

// handleDeleteStep removes a step.
func (s *Server) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	step, ok := intParam(w, r, "step")
	if !ok {
		return
	}
	if err := s.macros.DeleteStep(r.Context(), category, index, step); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetMacro(w, r)
}

// handleMoveStep swaps a step with its neighbour (delta -1 or +1).
func (s *Server) handleMoveStep(w http.ResponseWriter, r *http.Request) {
	category, index, ok := s.macroParams(w, r)
	if !ok {
		return
	}
	step, ok := intParam(w, r, "step")
	if !ok {
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Delta != -1 && req.Delta != 1 {
		writeBadRequest(w, "delta must be -1 or 1")
		return
	}
	if err := s.macros.MoveStep(r.Context(), category, index, step, req.Delta); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.handleGetMacro(w, r)
}

// handleExportMacros downloads every category as the exchange JSON.
func (s *Server) handleExportMacros(w http.ResponseWriter, r *http.Request) {
	data, err := s.macros.Export()
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="macros.json"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

// handleImportMacros replaces the categories present in the uploaded JSON.
func (s *Server) handleImportMacros(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeBadRequest(w, "reading body failed")
		return
	}
	if err := s.macros.Import(r.Context(), data); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": true})
}

// ─── Path Parameters ────────────────────────────────────────────────────────

func (s *Server) categoryParam(w http.ResponseWriter, r *http.Request) (macro.Category, bool) {
	category, err := macro.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeNotFound(w, err.Error())
		return "", false
	}
	return category, true
}

func (s *Server) macroParams(w http.ResponseWriter, r *http.Request) (macro.Category, int, bool) {
	category, ok := s.categoryParam(w, r)
	if !ok {
		return "", 0, false
	}
	index, ok := intParam(w, r, "index")
	if !ok {
		return "", 0, false
	}
	return category, index, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
