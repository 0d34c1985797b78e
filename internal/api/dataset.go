package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nerrad567/acs-auto/internal/acs"
	"github.com/nerrad567/acs-auto/internal/dataset"
	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
)

type jumpRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type autoIncrementRequest struct {
	Enabled bool `json:"enabled"`
}

// handleListSelections returns the device selection of each UID column.
func (s *Server) handleListSelections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Selections())
}

// handleSetSelection stores the device type and power for a UID column.
// The response carries the normalised selection.
func (s *Server) handleSetSelection(w http.ResponseWriter, r *http.Request) {
	category, ok := s.categoryParam(w, r)
	if !ok {
		return
	}
	var req acs.Selection
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	sel, err := s.controller.SetSelection(category, req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// handleDeviceCatalog lists the device types and the powers each offers.
func (s *Server) handleDeviceCatalog(w http.ResponseWriter, _ *http.Request) {
	types := acs.DeviceTypes()
	catalog := make(map[string][]string, len(types))
	for _, t := range types {
		catalog[t] = acs.PowerOptions(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_types": types,
		"powers":       catalog,
		"default":      acs.DefaultSelection(),
	})
}

// handleGetDataset returns the cursor state.
func (s *Server) handleGetDataset(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Dataset())
}

// handleImportDataset loads an uploaded .xlsx or .csv work-list.
//
// The upload is a multipart form with a "file" part and an optional "sheet"
// field naming the worksheet. A failed import keeps the current dataset.
func (s *Server) handleImportDataset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeBadRequest(w, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "file part is required")
		return
	}
	defer file.Close()

	path, err := s.stageUpload(file, header.Filename)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	defer os.Remove(path)

	rows, err := s.controller.ImportFile(path, r.FormValue("sheet"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rows":    rows,
		"dataset": s.controller.Dataset(),
	})
}

// stageUpload copies an upload to a temp file keeping its extension, which
// selects the loader.
func (s *Server) stageUpload(src io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".xlsx" && ext != ".csv" {
		return "", fmt.Errorf("%w: %q", dataset.ErrUnsupportedFormat, filename)
	}

	dst, err := os.CreateTemp(s.uploadDir, "dataset-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("closing upload file: %w", err)
	}
	return dst.Name(), nil
}

// handleJump moves the cursor to the first row matching a field value.
func (s *Server) handleJump(w http.ResponseWriter, r *http.Request) {
	var req jumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	field, err := dataset.ParseField(req.Field)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	found := s.controller.JumpTo(field, req.Value)
	writeJSON(w, http.StatusOK, map[string]any{
		"found":   found,
		"dataset": s.controller.Dataset(),
	})
}

// handleSetAutoIncrement sets the advance gate and persists it.
func (s *Server) handleSetAutoIncrement(w http.ResponseWriter, r *http.Request) {
	var req autoIncrementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.controller.SetAutoIncrement(req.Enabled)
	if err := s.settings.Set(config.SectionDataset, "auto_increment", strconv.FormatBool(req.Enabled)); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
