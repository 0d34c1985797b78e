package hotkey

import (
	"context"
	"fmt"
	"strings"

	hook "github.com/robotn/gohook"
)

// GoHook captures global key presses with gohook. Only one GoHook may run
// per process because gohook keeps its registrations in package state.
type GoHook struct{}

// NewGoHook returns the system hook backend.
func NewGoHook() *GoHook {
	return &GoHook{}
}

// Register calls fn on every key-down of key.
func (*GoHook) Register(key string, fn func()) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if _, ok := hook.Keycode[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	hook.Register(hook.KeyDown, []string{key}, func(hook.Event) { fn() })
	return nil
}

// Run dispatches key events until ctx is cancelled.
func (*GoHook) Run(ctx context.Context) error {
	events := hook.Start()
	done := hook.Process(events)
	select {
	case <-ctx.Done():
		hook.End()
		<-done
		return ctx.Err()
	case <-done:
		return nil
	}
}
