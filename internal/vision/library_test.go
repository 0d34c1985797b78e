package vision

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeCatalog struct {
	folder string
	keys   map[string][]string
}

func (c fakeCatalog) Candidates(key string) []string { return c.keys[key] }
func (c fakeCatalog) ImageFolder() string            { return c.folder }

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestLibrary_ResolveSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), mosaic(8, 8, 2, 1))
	writePNG(t, filepath.Join(dir, "c.png"), mosaic(8, 8, 2, 2))
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not an image"), 0600); err != nil {
		t.Fatal(err)
	}

	logger := &recordingLogger{}
	lib := NewLibrary(fakeCatalog{folder: dir, keys: map[string][]string{
		"scan_btn": {"a.png", "c.png", "broken.png", "b.png"},
	}}, logger)

	got := lib.Resolve("scan_btn")
	var names []string
	for _, tmpl := range got {
		names = append(names, tmpl.Name)
	}
	if strings.Join(names, ",") != "c.png,b.png" {
		t.Errorf("Resolve() names = %v, want [c.png b.png]", names)
	}
	if len(logger.warns) != 2 {
		t.Errorf("warnings = %v, want 2 (missing and undecodable)", logger.warns)
	}
	if got[0].Image.W != 8 {
		t.Errorf("decoded width = %d, want 8", got[0].Image.W)
	}
}

func TestLibrary_ResolveUnknownKey(t *testing.T) {
	logger := &recordingLogger{}
	lib := NewLibrary(fakeCatalog{folder: t.TempDir()}, logger)

	if got := lib.Resolve("nope"); got != nil {
		t.Errorf("Resolve(unknown) = %v, want nil", got)
	}
	if len(logger.errs) != 1 {
		t.Errorf("errors logged = %d, want 1", len(logger.errs))
	}
}

func TestLibrary_CachesDecodedImages(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), mosaic(8, 8, 2, 1))
	lib := NewLibrary(fakeCatalog{folder: dir, keys: map[string][]string{"k": {"a.png"}}}, nil)

	first := lib.Resolve("k")
	second := lib.Resolve("k")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Resolve() lengths = %d, %d", len(first), len(second))
	}
	if first[0].Image != second[0].Image {
		t.Error("second Resolve() decoded the file again")
	}
}

func TestLibrary_Existing(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), mosaic(4, 4, 2, 1))
	lib := NewLibrary(fakeCatalog{folder: dir, keys: map[string][]string{"k": {"missing.png", "a.png"}}}, nil)

	got := lib.Existing("k")
	if len(got) != 1 || filepath.Base(got[0]) != "a.png" {
		t.Errorf("Existing() = %v", got)
	}
}
