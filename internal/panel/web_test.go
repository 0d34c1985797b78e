package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandlerEmbedded(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "<!DOCTYPE html>"},
		{"/app.js", "panel.state"},
		{"/panel.css", "button"},
		{"/runs/deep/route", "<!DOCTYPE html>"},
		{"/nonexistent", "<!DOCTYPE html>"},
	}
	for _, dir := range []string{"", "/nonexistent/dir/that/does/not/exist"} {
		h := Handler(dir)
		for _, tt := range tests {
			w := get(t, h, tt.path)
			if w.Code != http.StatusOK {
				t.Errorf("dir %q GET %s: status %d, want 200", dir, tt.path, w.Code)
				continue
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("dir %q GET %s: body does not contain %q", dir, tt.path, tt.want)
			}
			if w.Header().Get("Cache-Control") == "" {
				t.Errorf("GET %s: no Cache-Control header", tt.path)
			}
		}
	}
}

func TestHandlerFilesystemMode(t *testing.T) {
	dir := t.TempDir()
	index := `<!DOCTYPE html><html><body>filesystem panel</body></html>`
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "test.js"), []byte("console.log('test')"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := Handler(dir)

	if w := get(t, h, "/"); !strings.Contains(w.Body.String(), "filesystem panel") {
		t.Errorf("GET /: got %q", w.Body.String())
	}
	if w := get(t, h, "/test.js"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "console.log") {
		t.Errorf("GET /test.js: status %d body %q", w.Code, w.Body.String())
	}
	if w := get(t, h, "/deep/route"); !strings.Contains(w.Body.String(), "filesystem panel") {
		t.Error("fallback did not serve the filesystem index.html")
	}
}
