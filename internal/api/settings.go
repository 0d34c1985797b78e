package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
)

// settingsDocument is the editable part of the configuration, as text.
type settingsDocument struct {
	General map[string]string `json:"general,omitempty"`
	Dataset map[string]string `json:"dataset,omitempty"`
}

type template struct {
	Key        string   `json:"key"`
	Candidates []string `json:"candidates"`
}

type candidatesRequest struct {
	Candidates []string `json:"candidates"`
}

// handleGetSettings returns the general and dataset settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSettings())
}

// handleUpdateSettings saves the keys present in the body. Keys are applied
// in sorted order and the first invalid value stops the update; keys before
// it stay saved.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsDocument
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.General) == 0 && len(req.Dataset) == 0 {
		writeBadRequest(w, "no settings given")
		return
	}

	for _, section := range []struct {
		name   string
		values map[string]string
	}{
		{config.SectionGeneral, req.General},
		{config.SectionDataset, req.Dataset},
	} {
		for _, key := range sortedKeys(section.values) {
			if err := s.settings.Set(section.name, key, section.values[key]); err != nil {
				s.writeDomainError(w, r, err)
				return
			}
		}
	}

	if v, ok := req.Dataset["auto_increment"]; ok {
		s.controller.SetAutoIncrement(v == "true")
	}
	s.logger.Info("settings updated", "general", len(req.General), "dataset", len(req.Dataset))
	writeJSON(w, http.StatusOK, s.currentSettings())
}

func (s *Server) currentSettings() settingsDocument {
	doc := settingsDocument{
		General: make(map[string]string),
		Dataset: map[string]string{
			"auto_increment": s.settings.Get(config.SectionDataset, "auto_increment", "false"),
		},
	}
	for _, key := range config.GeneralKeys() {
		doc.General[key] = s.settings.Get(config.SectionGeneral, key, "")
	}
	return doc
}

// handleListTemplates lists template keys with their ordered candidates.
func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	keys := s.settings.TemplateKeys()
	out := make([]template, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.template(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": out,
		"count":     len(out),
	})
}

// handleAddTemplate registers an empty template key.
func (s *Server) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	key, err := s.settings.AddTemplateKey(req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.template(key))
}

// handleSetTemplate replaces the candidate list of an existing key.
func (s *Server) handleSetTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.hasTemplate(key) {
		writeNotFound(w, fmt.Sprintf("template %q not found", key))
		return
	}
	var req candidatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.settings.SetCandidates(key, req.Candidates); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.template(key))
}

// handleRenameTemplate moves a key's candidates to a new name.
func (s *Server) handleRenameTemplate(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	key, err := s.settings.RenameTemplateKey(chi.URLParam(r, "key"), req.Name)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.template(key))
}

// handleDeleteTemplate removes a template key.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeleteTemplateKey(chi.URLParam(r, "key")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) template(key string) template {
	candidates := s.settings.Candidates(key)
	if candidates == nil {
		candidates = []string{}
	}
	return template{Key: key, Candidates: candidates}
}

func (s *Server) hasTemplate(key string) bool {
	return slices.Contains(s.settings.TemplateKeys(), key)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
