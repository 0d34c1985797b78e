package acs

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/locator"
)

// Workflow timing.
const (
	// ControlTimeout bounds the search for a field or button of the
	// property editor.
	ControlTimeout = 10 * time.Second

	// OpenDevicePause lets the property editor open after a device is
	// double-clicked.
	OpenDevicePause = time.Second
)

// Primitives is the locator surface driven by workflows and exposed to
// macro steps. *locator.Locator implements it.
type Primitives interface {
	Stopped() bool
	Pause(ctx context.Context, d time.Duration) bool
	Locate(ctx context.Context, key string, opts locator.SearchOptions) (locator.Location, bool)
	WaitForImage(ctx context.Context, key string, opts locator.SearchOptions) bool
	FindAndClick(ctx context.Context, key string, opts locator.ClickOptions) locator.Outcome
	ClickAt(ctx context.Context, p image.Point, button string, double bool) bool
	TypeText(ctx context.Context, text string, opts locator.TypeOptions) bool
	PressKey(ctx context.Context, key string, modifiers ...string) bool
	DragSlider(ctx context.Context, key string, dx, dy int, duration time.Duration) bool
	IsSliderAlreadyMoved(ctx context.Context, key string, timeout time.Duration, confidence float64) bool
	LocateDevices(ctx context.Context, keys locator.DeviceKeys, timeout time.Duration) locator.Devices
}

// Settings provides the device section of the live configuration.
type Settings interface {
	Devices() config.DevicesConfig
}

// Window locates the target application window.
type Window interface {
	Origin() (image.Point, error)
	Activate() error
}

// Logger defines the logging interface used by workflows.
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

// Workflow combines the locator primitives with the device workflows of
// the target application.
type Workflow struct {
	Primitives

	settings Settings
	window   Window
	logger   Logger
}

// NewWorkflow creates a workflow. window may be nil, in which case
// ClickConfiguration fails with ErrNoWindow.
func NewWorkflow(p Primitives, settings Settings, window Window, logger Logger) *Workflow {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Workflow{Primitives: p, settings: settings, window: window, logger: logger}
}

// DiscoverDevices runs device discovery with the configured keys.
// A zero timeout uses locator.DefaultDeviceTimeout.
func (w *Workflow) DiscoverDevices(ctx context.Context, timeout time.Duration) locator.Devices {
	keys := locator.DeviceKeysFrom(w.settings.Devices())
	d := w.LocateDevices(ctx, keys, timeout)
	w.logger.Info("device discovery",
		"leds", len(d.Leds),
		"pumps", len(d.Pumps),
		"converters", len(d.Converters),
	)
	return d
}

// SelectDeviceType opens the device type drop-down and picks name.
func (w *Workflow) SelectDeviceType(ctx context.Context, name string) (string, error) {
	devices := w.settings.Devices()
	key, ok := devices.Types[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDeviceType, name)
	}
	w.logger.Info("selecting device type", "type", name)
	if err := w.click(ctx, devices.TypeFieldKey); err != nil {
		return "", err
	}
	if err := w.click(ctx, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("device type selected: %s", name), nil
}

// SelectDevicePower opens the device power drop-down and picks value.
func (w *Workflow) SelectDevicePower(ctx context.Context, value string) (string, error) {
	devices := w.settings.Devices()
	key, ok := devices.Powers[value]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDevicePower, value)
	}
	w.logger.Info("selecting device power", "power", value)
	if err := w.click(ctx, devices.PowerFieldKey); err != nil {
		return "", err
	}
	if err := w.click(ctx, key); err != nil {
		return "", err
	}
	return fmt.Sprintf("device power selected: %s", value), nil
}

// SelectDevice opens a discovered device by double-clicking its entry.
func (w *Workflow) SelectDevice(ctx context.Context, loc locator.Location) error {
	if w.Stopped() {
		return ErrStopped
	}
	center := loc.Center()
	w.logger.Info("opening device", "x", center.X, "y", center.Y)
	if !w.ClickAt(ctx, center, "left", true) {
		return fmt.Errorf("%w: double-click at %d,%d", ErrInput, center.X, center.Y)
	}
	return nil
}

// SelectDeviceAndWrite opens a discovered device and writes its DMX slave
// address. kind names the device in logs and the returned result line.
func (w *Workflow) SelectDeviceAndWrite(ctx context.Context, kind string, loc locator.Location, address string) (string, error) {
	if err := w.SelectDevice(ctx, loc); err != nil {
		return "", err
	}
	if !w.Pause(ctx, OpenDevicePause) {
		return "", ctx.Err()
	}

	devices := w.settings.Devices()
	typed := w.TypeText(ctx, address, locator.TypeOptions{
		Key:       devices.AddressFieldKey,
		Timeout:   ControlTimeout,
		SelectAll: true,
	})
	if !typed {
		if w.Stopped() {
			return "", ErrStopped
		}
		return "", fmt.Errorf("%w: cannot type the DMX slave address of %s", ErrTemplateNotFound, kind)
	}
	if err := w.click(ctx, devices.AddressSubmitKey); err != nil {
		return "", fmt.Errorf("writing address of %s: %w", kind, err)
	}

	w.logger.Info("address written", "device", kind, "address", address)
	return fmt.Sprintf("%s address %s written", kind, address), nil
}

// ClickConfiguration clicks the point (x, y) relative to the target
// window's top-left corner.
func (w *Workflow) ClickConfiguration(ctx context.Context, x, y int) error {
	if w.window == nil {
		return ErrNoWindow
	}
	origin, err := w.window.Origin()
	if err != nil {
		w.logger.Warn("target window not found", "error", err)
		return err
	}
	if err := w.window.Activate(); err != nil {
		w.logger.Debug("activating target window failed", "error", err)
	}
	p := origin.Add(image.Pt(x, y))
	w.logger.Info("clicking target window", "x", x, "y", y)
	if !w.ClickAt(ctx, p, "left", false) {
		return fmt.Errorf("%w: click at %d,%d", ErrInput, p.X, p.Y)
	}
	return nil
}

func (w *Workflow) click(ctx context.Context, key string) error {
	switch w.FindAndClick(ctx, key, locator.ClickOptions{Timeout: ControlTimeout}) {
	case locator.Clicked:
		return nil
	case locator.Stopped:
		return ErrStopped
	case locator.Failed:
		return fmt.Errorf("%w: clicking %s", ErrInput, key)
	default:
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
}
