package locator

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/stop"
	"github.com/nerrad567/acs-auto/internal/vision"
)

// Timing constants shared by the primitives.
const (
	// PollInterval is the pause between two passes over the candidate list.
	PollInterval = 500 * time.Millisecond

	// DefaultTimeout bounds FindAndClick and WaitForImage when the caller
	// passes no timeout.
	DefaultTimeout = 30 * time.Second

	// NoWait as a search timeout reports not found without capturing.
	NoWait time.Duration = -1

	// FieldTimeout bounds the click that focuses a text field before typing.
	FieldTimeout = 10 * time.Second

	// SelectAllPause follows the ctrl+a that clears a field.
	SelectAllPause = 100 * time.Millisecond

	// SliderTimeout and SliderConfidence are fixed for DragSlider.
	SliderTimeout    = 10 * time.Second
	SliderConfidence = 0.8

	// SliderMovedTimeout is the default for IsSliderAlreadyMoved.
	SliderMovedTimeout = 5 * time.Second
)

// Screen captures the display.
type Screen interface {
	// Bounds returns the full virtual screen rectangle.
	Bounds() image.Rectangle
	// Capture grabs the pixels inside r, in screen coordinates.
	Capture(r image.Rectangle) (image.Image, error)
}

// Input drives the mouse and keyboard.
type Input interface {
	Move(p image.Point) error
	Click(p image.Point, button string, double bool) error
	TypeText(text string, interval time.Duration) error
	KeyTap(key string, modifiers ...string) error
	Drag(from image.Point, dx, dy int, duration time.Duration) error
}

// Templates resolves a key to its decoded candidate images.
type Templates interface {
	Resolve(key string) []vision.Template
}

// Settings supplies the automation tunables. config.Store satisfies it.
type Settings interface {
	Automation() config.Automation
}

// Metrics records the outcome of every search. Optional.
type Metrics interface {
	RecordLocate(key string, found bool, passes int, elapsed time.Duration)
}

// Logger is the logging interface used by the locator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps holds the collaborators of a Locator. Metrics and Logger are optional.
type Deps struct {
	Settings  Settings
	Templates Templates
	Screen    Screen
	Input     Input
	Stop      *stop.Signal
	Metrics   Metrics
	Logger    Logger
}

// Location is one template hit in screen coordinates.
type Location struct {
	Rect     image.Rectangle
	Score    float64
	Template string
}

// Center returns the midpoint of the hit.
func (l Location) Center() image.Point {
	return image.Pt((l.Rect.Min.X+l.Rect.Max.X)/2, (l.Rect.Min.Y+l.Rect.Max.Y)/2)
}

// Outcome is the result of FindAndClick.
type Outcome int

// FindAndClick outcomes.
const (
	NotFound Outcome = iota
	Clicked
	Stopped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Clicked:
		return "clicked"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "not_found"
	}
}

// SearchOptions narrows a search. The zero value means the default timeout,
// the configured confidence and the whole screen. A negative Timeout (see
// NoWait) ends the search before the first pass. Confidence has no "accept
// anything" setting: zero or below always means the configured value.
type SearchOptions struct {
	Timeout    time.Duration
	Confidence float64
	Region     image.Rectangle
}

// ClickOptions configures FindAndClick.
type ClickOptions struct {
	Timeout    time.Duration
	Confidence float64
	// Button is "left", "right" or "center". Empty means left.
	Button string
	Double bool
}

// TypeOptions configures TypeText.
type TypeOptions struct {
	// Key, when set, is clicked first to focus the field.
	Key       string
	Timeout   time.Duration
	SelectAll bool
}

// Locator runs template searches against the live screen.
//
// A Locator is used by one run at a time but its methods are safe for
// concurrent use; all mutable state lives in its collaborators.
type Locator struct {
	settings  Settings
	templates Templates
	screen    Screen
	input     Input
	stop      *stop.Signal
	metrics   Metrics
	logger    Logger
	matcher   vision.Matcher

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a Locator.
func New(deps Deps) (*Locator, error) {
	switch {
	case deps.Settings == nil:
		return nil, fmt.Errorf("%w: settings", ErrMissingDependency)
	case deps.Templates == nil:
		return nil, fmt.Errorf("%w: templates", ErrMissingDependency)
	case deps.Screen == nil:
		return nil, fmt.Errorf("%w: screen", ErrMissingDependency)
	case deps.Input == nil:
		return nil, fmt.Errorf("%w: input", ErrMissingDependency)
	case deps.Stop == nil:
		return nil, fmt.Errorf("%w: stop signal", ErrMissingDependency)
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Locator{
		settings:  deps.Settings,
		templates: deps.Templates,
		screen:    deps.Screen,
		input:     deps.Input,
		stop:      deps.Stop,
		metrics:   deps.Metrics,
		logger:    logger,
		matcher:   vision.DefaultMatcher(),
		now:       time.Now,
		sleep:     sleepContext,
	}, nil
}

// Stopped reports whether the stop signal is raised.
func (l *Locator) Stopped() bool {
	return l.stop.IsSet()
}

// Pause sleeps for d. It returns false when ctx ends first.
func (l *Locator) Pause(ctx context.Context, d time.Duration) bool {
	return l.sleep(ctx, d)
}

// Locate polls for key and returns the first hit.
func (l *Locator) Locate(ctx context.Context, key string, opts SearchOptions) (Location, bool) {
	loc, res := l.poll(ctx, key, opts)
	return loc, res == resultFound
}

// WaitForImage reports whether key appears before the timeout.
func (l *Locator) WaitForImage(ctx context.Context, key string, opts SearchOptions) bool {
	_, ok := l.Locate(ctx, key, opts)
	return ok
}

// FindAndClick polls for key and clicks the center of the first hit, then
// waits the configured action delay.
func (l *Locator) FindAndClick(ctx context.Context, key string, opts ClickOptions) Outcome {
	loc, res := l.poll(ctx, key, SearchOptions{Timeout: opts.Timeout, Confidence: opts.Confidence})
	switch res {
	case resultStopped:
		return Stopped
	case resultFailed:
		return Failed
	case resultNotFound:
		return NotFound
	}

	button := opts.Button
	if button == "" {
		button = "left"
	}
	center := loc.Center()
	if err := l.input.Click(center, button, opts.Double); err != nil {
		l.logger.Error("click failed", "key", key, "x", center.X, "y", center.Y, "error", err)
		return Failed
	}
	l.logger.Info("clicked template", "key", key, "template", loc.Template, "x", center.X, "y", center.Y, "double", opts.Double)
	l.sleep(ctx, l.settings.Automation().ActionDelay)
	return Clicked
}

// ClickAt clicks a fixed screen point, then waits the action delay.
func (l *Locator) ClickAt(ctx context.Context, p image.Point, button string, double bool) bool {
	if button == "" {
		button = "left"
	}
	if err := l.input.Click(p, button, double); err != nil {
		l.logger.Error("click failed", "x", p.X, "y", p.Y, "error", err)
		return false
	}
	l.sleep(ctx, l.settings.Automation().ActionDelay)
	return true
}

// TypeText types text, optionally after clicking the field named by
// opts.Key and clearing it with ctrl+a.
func (l *Locator) TypeText(ctx context.Context, text string, opts TypeOptions) bool {
	if l.stop.IsSet() {
		return false
	}
	if opts.Key != "" {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = FieldTimeout
		}
		if l.FindAndClick(ctx, opts.Key, ClickOptions{Timeout: timeout}) != Clicked {
			l.logger.Warn("text field not found", "key", opts.Key)
			return false
		}
	}
	if opts.SelectAll {
		if err := l.input.KeyTap("a", "ctrl"); err != nil {
			l.logger.Error("select all failed", "error", err)
			return false
		}
		if !l.sleep(ctx, SelectAllPause) {
			return false
		}
	}

	cfg := l.settings.Automation()
	if err := l.input.TypeText(text, cfg.TypeInterval); err != nil {
		l.logger.Error("typing failed", "key", opts.Key, "error", err)
		return false
	}
	l.logger.Debug("typed text", "key", opts.Key, "length", len(text))
	l.sleep(ctx, cfg.ActionDelay)
	return true
}

// PressKey taps a key with optional modifiers, then waits the action delay.
func (l *Locator) PressKey(ctx context.Context, key string, modifiers ...string) bool {
	if l.stop.IsSet() {
		return false
	}
	if err := l.input.KeyTap(key, modifiers...); err != nil {
		l.logger.Error("key press failed", "key", key, "error", err)
		return false
	}
	l.sleep(ctx, l.settings.Automation().ActionDelay)
	return true
}

// DragSlider finds the slider handle named by key and drags it by (dx, dy)
// over duration.
func (l *Locator) DragSlider(ctx context.Context, key string, dx, dy int, duration time.Duration) bool {
	loc, ok := l.Locate(ctx, key, SearchOptions{Timeout: SliderTimeout, Confidence: SliderConfidence})
	if !ok {
		l.logger.Warn("slider not found", "key", key)
		return false
	}
	center := loc.Center()
	if err := l.input.Move(center); err != nil {
		l.logger.Error("moving to slider failed", "key", key, "error", err)
		return false
	}
	if err := l.input.Drag(center, dx, dy, duration); err != nil {
		l.logger.Error("dragging slider failed", "key", key, "error", err)
		return false
	}
	l.logger.Info("dragged slider", "key", key, "dx", dx, "dy", dy)
	l.sleep(ctx, l.settings.Automation().ActionDelay)
	return true
}

// IsSliderAlreadyMoved reports whether the "moved" template of a slider is
// visible. A zero timeout means SliderMovedTimeout.
func (l *Locator) IsSliderAlreadyMoved(ctx context.Context, key string, timeout time.Duration, confidence float64) bool {
	if timeout <= 0 {
		timeout = SliderMovedTimeout
	}
	return l.WaitForImage(ctx, key, SearchOptions{Timeout: timeout, Confidence: confidence})
}

// ─── Polling ────────────────────────────────────────────────────────

type result int

const (
	resultNotFound result = iota
	resultFound
	resultStopped
	resultFailed
)

func (l *Locator) poll(ctx context.Context, key string, opts SearchOptions) (loc Location, res result) {
	timeout := opts.Timeout
	switch {
	case timeout < 0:
		l.record(key, false, 0, 0)
		return Location{}, resultNotFound
	case timeout == 0:
		timeout = DefaultTimeout
	}

	templates := l.templates.Resolve(key)
	if len(templates) == 0 {
		l.logger.Warn("no template images available", "key", key)
		l.record(key, false, 0, 0)
		return Location{}, resultNotFound
	}

	start := l.now()
	deadline := start.Add(timeout)
	passes := 0
	defer func() {
		l.record(key, res == resultFound, passes, l.now().Sub(start))
	}()

	for l.now().Before(deadline) {
		if l.stop.IsSet() {
			l.logger.Info("search stopped by user", "key", key)
			return Location{}, resultStopped
		}
		passes++

		cfg := l.settings.Automation()
		confidence := opts.Confidence
		if confidence <= 0 {
			confidence = cfg.Confidence
		}

		for _, t := range templates {
			if !l.sleep(ctx, cfg.ScreenshotDelay) {
				return Location{}, resultStopped
			}
			hit, ok, err := l.matchOnce(t, confidence, opts.Region)
			if err != nil {
				l.logger.Error("template match failed", "key", key, "template", t.Name, "error", err)
				if cfg.ErrorPolicy == config.ErrorPolicyAbort {
					return Location{}, resultFailed
				}
				continue
			}
			if ok {
				l.logger.Debug("template found", "key", key, "template", t.Name, "score", hit.Score)
				return hit, resultFound
			}
		}

		if !l.sleep(ctx, PollInterval) {
			return Location{}, resultStopped
		}
	}

	l.logger.Warn("template not found before timeout", "key", key, "timeout", timeout)
	return Location{}, resultNotFound
}

// capture grabs region, or the full screen when region is empty, and
// converts it to grayscale. Panics from the capture backend become errors.
func (l *Locator) capture(region image.Rectangle) (gray *vision.Gray, origin image.Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMatch, r)
		}
	}()

	if region.Empty() {
		region = l.screen.Bounds()
	}
	img, err := l.screen.Capture(region)
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("%w: capturing screen: %v", ErrMatch, err)
	}
	return vision.ToGray(img), region.Min, nil
}

func (l *Locator) matchOnce(t vision.Template, confidence float64, region image.Rectangle) (Location, bool, error) {
	gray, origin, err := l.capture(region)
	if err != nil {
		return Location{}, false, err
	}
	m, ok := l.matcher.Find(gray, t.Image, confidence)
	if !ok {
		return Location{}, false, nil
	}
	return Location{Rect: m.Rect.Add(origin), Score: m.Score, Template: t.Name}, true, nil
}

func (l *Locator) record(key string, found bool, passes int, elapsed time.Duration) {
	if l.metrics != nil {
		l.metrics.RecordLocate(key, found, passes, elapsed)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
