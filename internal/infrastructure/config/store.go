package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Section names accepted by Store.Get and Store.Set.
const (
	SectionGeneral   = "general"
	SectionTemplates = "templates"
	SectionDataset   = "dataset"
)

// Store errors.
var (
	ErrUnknownSection = errors.New("config: unknown section")
	ErrUnknownKey     = errors.New("config: unknown key")
	ErrInvalidValue   = errors.New("config: invalid value")
	ErrKeyExists      = errors.New("config: template key already exists")
)

// Automation is a typed snapshot of the automation tunables.
type Automation struct {
	ImageFolder     string
	ScreenshotDelay time.Duration
	ActionDelay     time.Duration
	TypeInterval    time.Duration
	StepTimeout     time.Duration
	Confidence      float64
	ErrorPolicy     string
}

// Store is the live, mutable configuration.
//
// Tunables are read through the Store on every call so that a settings save
// takes effect on the next search without a restart. Every Set is written
// through to the backing file.
type Store struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewStore wraps an already loaded configuration. An empty path keeps the
// store in memory only.
func NewStore(cfg *Config, path string) *Store {
	return &Store{cfg: cfg, path: path}
}

// LoadOrCreate opens the configuration file at path.
//
// A missing file is created with defaults. A file that cannot be parsed is
// replaced with defaults and regenerated is reported true. A file that
// parses but fails validation is an error and is left untouched so an
// operator can fix it.
func LoadOrCreate(path string) (store *Store, regenerated bool, err error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s := NewStore(Default(), path)
		if err := s.Save(); err != nil {
			return nil, false, err
		}
		applyEnvOverrides(s.cfg)
		return s, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("reading config file: %w", err)
	}

	cfg, parseErr := parse(data)
	if parseErr != nil {
		s := NewStore(Default(), path)
		if err := s.Save(); err != nil {
			return nil, true, err
		}
		applyEnvOverrides(s.cfg)
		return s, true, nil
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("validating config: %w", err)
	}
	return NewStore(cfg, path), false, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfig(s.cfg)
}

// Automation returns the current automation tunables.
func (s *Store) Automation() Automation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.cfg.General
	return Automation{
		ImageFolder:     g.ImageFolder,
		ScreenshotDelay: seconds(g.ScreenshotDelaySec),
		ActionDelay:     seconds(g.ActionDelaySec),
		TypeInterval:    seconds(g.TypeIntervalSec),
		StepTimeout:     seconds(g.StepTimeoutSec),
		Confidence:      g.FindImageConfidence,
		ErrorPolicy:     g.ErrorPolicy,
	}
}

// Devices returns the device discovery and picker settings.
func (s *Store) Devices() DevicesConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneConfig(s.cfg).Devices
}

// Candidates returns the ordered template filenames for key.
// Order is search priority; duplicates are kept.
func (s *Store) Candidates(key string) []string {
	s.mu.RLock()
	raw, ok := s.cfg.Templates[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return SplitCandidates(raw)
}

// SplitCandidates splits a comma-joined template list, trimming blanks.
func SplitCandidates(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// TemplateKeys returns all template keys in sorted order.
func (s *Store) TemplateKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.cfg.Templates))
	for k := range s.cfg.Templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value for section/key as text, or def when it is unset.
func (s *Store) Get(section, key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch section {
	case SectionGeneral:
		if field, ok := generalFields(&s.cfg.General)[key]; ok {
			return field.get()
		}
	case SectionTemplates:
		if v, ok := s.cfg.Templates[key]; ok {
			return v
		}
	case SectionDataset:
		if key == "auto_increment" {
			return strconv.FormatBool(s.cfg.Dataset.AutoIncrement)
		}
	}
	return def
}

// Set updates section/key and writes the file.
// Values that make the configuration invalid are rejected and nothing changes.
func (s *Store) Set(section, key, value string) error {
	return s.update(func(cfg *Config) error {
		switch section {
		case SectionGeneral:
			field, ok := generalFields(&cfg.General)[key]
			if !ok {
				return fmt.Errorf("%w: %s.%s", ErrUnknownKey, section, key)
			}
			return field.set(value)
		case SectionTemplates:
			if strings.TrimSpace(key) == "" {
				return fmt.Errorf("%w: empty template key", ErrInvalidValue)
			}
			cfg.Templates[key] = value
			return nil
		case SectionDataset:
			if key != "auto_increment" {
				return fmt.Errorf("%w: %s.%s", ErrUnknownKey, section, key)
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%w: %s.%s: %v", ErrInvalidValue, section, key, err)
			}
			cfg.Dataset.AutoIncrement = b
			return nil
		default:
			return fmt.Errorf("%w: %s", ErrUnknownSection, section)
		}
	})
}

// AddTemplateKey registers an empty template key.
// The name is normalised to lower case with spaces replaced by underscores.
func (s *Store) AddTemplateKey(name string) (string, error) {
	key := NormaliseKey(name)
	if key == "" {
		return "", fmt.Errorf("%w: empty template key", ErrInvalidValue)
	}
	err := s.update(func(cfg *Config) error {
		if _, exists := cfg.Templates[key]; exists {
			return fmt.Errorf("%w: %s", ErrKeyExists, key)
		}
		cfg.Templates[key] = ""
		return nil
	})
	return key, err
}

// RenameTemplateKey moves the candidate list of oldKey to a new name.
func (s *Store) RenameTemplateKey(oldKey, newName string) (string, error) {
	key := NormaliseKey(newName)
	if key == "" {
		return "", fmt.Errorf("%w: empty template key", ErrInvalidValue)
	}
	if key == oldKey {
		return key, nil
	}
	err := s.update(func(cfg *Config) error {
		v, ok := cfg.Templates[oldKey]
		if !ok {
			return fmt.Errorf("%w: templates.%s", ErrUnknownKey, oldKey)
		}
		if _, exists := cfg.Templates[key]; exists {
			return fmt.Errorf("%w: %s", ErrKeyExists, key)
		}
		delete(cfg.Templates, oldKey)
		cfg.Templates[key] = v
		return nil
	})
	return key, err
}

// DeleteTemplateKey removes a template key.
func (s *Store) DeleteTemplateKey(key string) error {
	return s.update(func(cfg *Config) error {
		if _, ok := cfg.Templates[key]; !ok {
			return fmt.Errorf("%w: templates.%s", ErrUnknownKey, key)
		}
		delete(cfg.Templates, key)
		return nil
	})
}

// SetCandidates replaces the ordered filename list of key.
func (s *Store) SetCandidates(key string, names []string) error {
	var kept []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			kept = append(kept, n)
		}
	}
	return s.Set(SectionTemplates, key, strings.Join(kept, ","))
}

// NormaliseKey converts a display name into a template key.
func NormaliseKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// Save writes the configuration to the backing file with 0600 permissions.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(s.cfg)
}

func (s *Store) update(mutate func(cfg *Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneConfig(s.cfg)
	if err := mutate(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if err := s.saveLocked(&next); err != nil {
		return err
	}
	s.cfg = &next
	return nil
}

func (s *Store) saveLocked(cfg *Config) error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// ─── Field Access ───────────────────────────────────────────────────

type field struct {
	get func() string
	set func(string) error
}

func generalFields(g *GeneralConfig) map[string]field {
	return map[string]field{
		"icon_folder":           stringField(&g.IconFolder),
		"image_folder":          stringField(&g.ImageFolder),
		"screenshot_delay_sec":  floatField(&g.ScreenshotDelaySec),
		"action_delay_sec":      floatField(&g.ActionDelaySec),
		"find_image_confidence": floatField(&g.FindImageConfidence),
		"type_interval_sec":     floatField(&g.TypeIntervalSec),
		"step_timeout_sec":      floatField(&g.StepTimeoutSec),
		"error_policy":          stringField(&g.ErrorPolicy),
	}
}

// GeneralKeys lists the keys of the general section in sorted order.
func GeneralKeys() []string {
	keys := make([]string, 0, 8)
	for k := range generalFields(&GeneralConfig{}) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringField(p *string) field {
	return field{
		get: func() string { return *p },
		set: func(v string) error { *p = v; return nil },
	}
}

func floatField(p *float64) field {
	return field{
		get: func() string { return strconv.FormatFloat(*p, 'f', -1, 64) },
		set: func(v string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v)
			}
			*p = f
			return nil
		},
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func cloneConfig(c *Config) Config {
	out := *c
	out.Templates = cloneMap(c.Templates)
	if out.Templates == nil {
		out.Templates = make(map[string]string)
	}
	out.Devices.Types = cloneMap(c.Devices.Types)
	out.Devices.Powers = cloneMap(c.Devices.Powers)
	out.Hotkeys.Categories = cloneMap(c.Hotkeys.Categories)
	out.Hotkeys.Clicks = append([]HotkeyClick(nil), c.Hotkeys.Clicks...)
	out.Target.Launch.Args = append([]string(nil), c.Target.Launch.Args...)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ImageFolder returns the folder that template filenames are relative to.
func (s *Store) ImageFolder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.General.ImageFolder
}
