package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, _, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	return store
}

func TestLoadOrCreate_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	store, regenerated, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if regenerated {
		t.Error("regenerated = true for a missing file")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if got := store.Get(SectionGeneral, "find_image_confidence", ""); got != "0.9" {
		t.Errorf("find_image_confidence = %q, want 0.9", got)
	}
}

func TestLoadOrCreate_RegeneratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("general: [broken"), 0600); err != nil {
		t.Fatal(err)
	}

	store, regenerated, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate() error = %v", err)
	}
	if !regenerated {
		t.Error("regenerated = false for a corrupt file")
	}

	// The file on disk is valid again.
	if _, err := Load(path); err != nil {
		t.Errorf("Load() after regeneration error = %v", err)
	}
	if len(store.TemplateKeys()) == 0 {
		t.Error("regenerated store has no template keys")
	}
}

func TestLoadOrCreate_InvalidFileIsNotOverwritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("general:\n  find_image_confidence: 3\n")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := LoadOrCreate(path); err == nil {
		t.Fatal("LoadOrCreate() expected validation error")
	}
	got, _ := os.ReadFile(path)
	if string(got) != string(content) {
		t.Error("invalid config file was overwritten")
	}
}

func TestStore_SetWritesThrough(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set(SectionGeneral, "find_image_confidence", "0.75"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := store.Automation().Confidence; got != 0.75 {
		t.Errorf("Automation().Confidence = %v, want 0.75", got)
	}

	reloaded, err := Load(store.Path())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.General.FindImageConfidence != 0.75 {
		t.Errorf("persisted confidence = %v, want 0.75", reloaded.General.FindImageConfidence)
	}
}

func TestStore_SetRejectsInvalid(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name         string
		section, key string
		value        string
		wantErr      error
	}{
		{"not a number", SectionGeneral, "action_delay_sec", "fast", ErrInvalidValue},
		{"out of range", SectionGeneral, "find_image_confidence", "1.5", ErrInvalidValue},
		{"unknown key", SectionGeneral, "colour", "red", ErrUnknownKey},
		{"unknown section", "display", "theme", "dark", ErrUnknownSection},
		{"bad bool", SectionDataset, "auto_increment", "maybe", ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Set(tt.section, tt.key, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Set() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := store.Automation().Confidence; got != 0.9 {
		t.Errorf("confidence changed to %v after rejected Set", got)
	}
}

func TestStore_Automation(t *testing.T) {
	store := newTestStore(t)

	a := store.Automation()
	if a.ScreenshotDelay != 500*time.Millisecond {
		t.Errorf("ScreenshotDelay = %v, want 500ms", a.ScreenshotDelay)
	}
	if a.ActionDelay != 200*time.Millisecond {
		t.Errorf("ActionDelay = %v, want 200ms", a.ActionDelay)
	}
	if a.TypeInterval != 50*time.Millisecond {
		t.Errorf("TypeInterval = %v, want 50ms", a.TypeInterval)
	}
	if a.ErrorPolicy != ErrorPolicyContinue {
		t.Errorf("ErrorPolicy = %q, want continue", a.ErrorPolicy)
	}
}

func TestStore_Candidates(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set(SectionTemplates, "scan_btn", " b.png, a.png,,b.png "); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Order preserved, blanks dropped, duplicates kept.
	want := []string{"b.png", "a.png", "b.png"}
	if got := store.Candidates("scan_btn"); !reflect.DeepEqual(got, want) {
		t.Errorf("Candidates() = %v, want %v", got, want)
	}
	if got := store.Candidates("missing_key"); got != nil {
		t.Errorf("Candidates(missing) = %v, want nil", got)
	}
}

func TestStore_TemplateKeyManagement(t *testing.T) {
	store := newTestStore(t)

	key, err := store.AddTemplateKey("  Run Test Btn ")
	if err != nil {
		t.Fatalf("AddTemplateKey() error = %v", err)
	}
	if key != "run_test_btn" {
		t.Errorf("AddTemplateKey() key = %q, want run_test_btn", key)
	}
	if _, err := store.AddTemplateKey("run test btn"); !errors.Is(err, ErrKeyExists) {
		t.Errorf("duplicate AddTemplateKey() error = %v, want ErrKeyExists", err)
	}

	if err := store.SetCandidates(key, []string{"one.png", " ", "two.png"}); err != nil {
		t.Fatalf("SetCandidates() error = %v", err)
	}

	renamed, err := store.RenameTemplateKey(key, "Start Btn")
	if err != nil {
		t.Fatalf("RenameTemplateKey() error = %v", err)
	}
	if got := store.Candidates(renamed); !reflect.DeepEqual(got, []string{"one.png", "two.png"}) {
		t.Errorf("Candidates(%s) = %v", renamed, got)
	}
	if got := store.Candidates(key); got != nil {
		t.Errorf("old key still resolves: %v", got)
	}

	if err := store.DeleteTemplateKey(renamed); err != nil {
		t.Fatalf("DeleteTemplateKey() error = %v", err)
	}
	if err := store.DeleteTemplateKey(renamed); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("second DeleteTemplateKey() error = %v, want ErrUnknownKey", err)
	}
}

func TestStore_GetDefault(t *testing.T) {
	store := newTestStore(t)

	if got := store.Get(SectionTemplates, "nope", "fallback"); got != "fallback" {
		t.Errorf("Get() = %q, want fallback", got)
	}
	if got := store.Get(SectionDataset, "auto_increment", ""); got != "true" {
		t.Errorf("Get(dataset.auto_increment) = %q, want true", got)
	}
}

func TestGeneralKeys(t *testing.T) {
	keys := GeneralKeys()
	if len(keys) != 8 {
		t.Fatalf("GeneralKeys() returned %d keys, want 8", len(keys))
	}
	if !sort.StringsAreSorted(keys) {
		t.Errorf("GeneralKeys() = %v, want sorted", keys)
	}
	if keys[0] != "action_delay_sec" {
		t.Errorf("keys[0] = %q, want action_delay_sec", keys[0])
	}
}
