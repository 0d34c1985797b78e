package vision

import (
	"fmt"
	"image"
	_ "image/jpeg" // JPEG reference images
	_ "image/png"  // PNG reference images
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Catalog maps template keys to ordered filenames. config.Store satisfies it.
type Catalog interface {
	Candidates(key string) []string
	ImageFolder() string
}

// Logger is the logging interface used by the library.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Template is a decoded reference image.
type Template struct {
	Key   string
	Name  string
	Path  string
	Image *Gray
}

// Library resolves keys to decoded templates. Decoded files are cached by
// path and invalidated when the file's size or modification time changes.
type Library struct {
	catalog Catalog
	logger  Logger

	mu    sync.Mutex
	cache map[string]cachedTemplate
}

type cachedTemplate struct {
	modTime time.Time
	size    int64
	image   *Gray
}

// NewLibrary creates a library over catalog.
func NewLibrary(catalog Catalog, logger Logger) *Library {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Library{
		catalog: catalog,
		logger:  logger,
		cache:   make(map[string]cachedTemplate),
	}
}

// Resolve returns the key's templates in priority order.
//
// Files that do not exist or cannot be decoded are skipped with a warning,
// so the result may be shorter than the configured list or empty.
func (l *Library) Resolve(key string) []Template {
	names := l.catalog.Candidates(key)
	if len(names) == 0 {
		l.logger.Error("template key has no image files configured", "key", key)
		return nil
	}

	folder := l.catalog.ImageFolder()
	templates := make([]Template, 0, len(names))
	for _, name := range names {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(folder, name)
		}

		img, err := l.load(path)
		if err != nil {
			l.logger.Warn("skipping template image", "key", key, "path", path, "error", err)
			continue
		}
		templates = append(templates, Template{Key: key, Name: name, Path: path, Image: img})
	}

	if len(templates) == 0 {
		l.logger.Warn("no usable template images", "key", key)
	}
	return templates
}

// Existing returns the configured paths of key that exist on disk, without
// decoding them.
func (l *Library) Existing(key string) []string {
	folder := l.catalog.ImageFolder()
	var paths []string
	for _, name := range l.catalog.Candidates(key) {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(folder, name)
		}
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	return paths
}

func (l *Library) load(path string) (*Gray, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	c, ok := l.cache[path]
	l.mu.Unlock()
	if ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.image, nil
	}

	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[path] = cachedTemplate{modTime: info.ModTime(), size: info.Size(), image: img}
	l.mu.Unlock()
	return img, nil
}

// DecodeFile reads a PNG or JPEG file into a Gray image.
func DecodeFile(path string) (*Gray, error) {
	f, err := os.Open(path) //nolint:gosec // template paths come from operator config
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return ToGray(img), nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
