package process

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
)

// FromLaunch builds a Config from the target.launch section.
func FromLaunch(name string, cfg config.LaunchConfig) Config {
	c := DefaultConfig(name, cfg.Binary, cfg.Args)
	c.WorkDir = cfg.WorkDir
	c.RestartOnFailure = cfg.RestartOnFailure
	if cfg.RestartDelaySeconds > 0 {
		c.RestartDelay = time.Duration(cfg.RestartDelaySeconds) * time.Second
	}
	c.MaxRestartAttempts = cfg.MaxRestartAttempts
	return c
}

// Window is the part of *desktop.Windows used by WindowCheck.
type Window interface {
	Origin() (image.Point, error)
}

// WindowCheck returns a health check that fails while the target window
// cannot be found.
func WindowCheck(w Window) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.Origin(); err != nil {
			return fmt.Errorf("target window: %w", err)
		}
		return nil
	}
}
