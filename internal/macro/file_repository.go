package macro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository stores the macro document as one indented JSON file,
// keyed by category.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates a repository backed by the JSON file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Path returns the backing file path.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the document. A missing file yields an empty Document.
func (r *FileRepository) Load(_ context.Context) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading macro file: %w", err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Save writes doc atomically.
func (r *FileRepository) Save(_ context.Context, doc Document) error {
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return fmt.Errorf("creating macro directory: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing macro file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing macro file: %w", err)
	}
	return nil
}

// EncodeDocument renders doc as the exchange JSON format.
func EncodeDocument(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encoding macros: %w", err)
	}
	return data, nil
}

// DecodeDocument parses the exchange JSON format. Undecodable input is
// reported as ErrCorrupt.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}
