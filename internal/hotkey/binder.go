package hotkey

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/macro"
)

// Backend delivers global key presses.
type Backend interface {
	Register(key string, fn func()) error
	Run(ctx context.Context) error
}

// Actions are the operator commands a key can trigger.
// *session.Controller implements it.
type Actions interface {
	ToggleStop() bool
	RunCategory(category macro.Category, source string) (*macro.Run, error)
	ClickConfiguration(ctx context.Context, x, y int) error
}

// Logger defines the logging interface used by the binder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Binding is one registered key.
type Binding struct {
	Key    string `json:"key"`
	Action string `json:"action"`
}

// Binder registers the configured keys on a backend.
type Binder struct {
	cfg     config.HotkeysConfig
	backend Backend
	actions Actions
	logger  Logger
}

// New creates a binder. logger may be nil.
func New(cfg config.HotkeysConfig, backend Backend, actions Actions, logger Logger) *Binder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Binder{cfg: cfg, backend: backend, actions: actions, logger: logger}
}

// Run binds the keys and dispatches presses until ctx is cancelled. It
// returns nil at once when hotkeys are disabled.
func (b *Binder) Run(ctx context.Context) error {
	if !b.cfg.Enabled {
		b.logger.Info("hotkeys disabled")
		return nil
	}
	bindings, err := b.Bind(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("hotkeys bound", "count", len(bindings))
	if err := b.backend.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running hotkey hook: %w", err)
	}
	return nil
}

// Bind registers every configured key. Clicks run on their own goroutine
// bound to ctx so the hook loop never waits on the mouse.
func (b *Binder) Bind(ctx context.Context) ([]Binding, error) {
	var bindings []Binding
	seen := make(map[string]string)

	add := func(key, action string, fn func()) error {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil
		}
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q for %s and %s", ErrDuplicateKey, key, prev, action)
		}
		if err := b.backend.Register(key, fn); err != nil {
			return err
		}
		seen[key] = action
		bindings = append(bindings, Binding{Key: key, Action: action})
		return nil
	}

	if err := add(b.cfg.Stop, "stop", func() {
		on := b.actions.ToggleStop()
		b.logger.Info("stop hotkey", "stopped", on)
	}); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(b.cfg.Categories))
	for name := range b.cfg.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		category, err := macro.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("hotkeys.categories: %w", err)
		}
		if err := add(b.cfg.Categories[name], "run "+string(category), func() {
			if _, err := b.actions.RunCategory(category, macro.SourceHotkey); err != nil {
				b.logger.Debug("hotkey run not started", "category", category, "error", err)
			}
		}); err != nil {
			return nil, err
		}
	}

	for _, click := range b.cfg.Clicks {
		x, y := click.X, click.Y
		if err := add(click.Key, fmt.Sprintf("click %d,%d", x, y), func() {
			go func() {
				//nolint:errcheck // the controller logs click failures
				b.actions.ClickConfiguration(ctx, x, y)
			}()
		}); err != nil {
			return nil, err
		}
	}
	return bindings, nil
}
