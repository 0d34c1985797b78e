package locator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/acs-auto/internal/infrastructure/config"
	"github.com/nerrad567/acs-auto/internal/stop"
	"github.com/nerrad567/acs-auto/internal/vision"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeSettings struct {
	mu    sync.Mutex
	cfg   config.Automation
	reads int
}

func (f *fakeSettings) Automation() config.Automation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.cfg
}

func (f *fakeSettings) setConfidence(c float64) {
	f.mu.Lock()
	f.cfg.Confidence = c
	f.mu.Unlock()
}

type fakeTemplates map[string][]vision.Template

func (f fakeTemplates) Resolve(key string) []vision.Template {
	return f[key]
}

type fakeScreen struct {
	img      image.Image
	err      error
	panicMsg string
	regions  []image.Rectangle
}

func (f *fakeScreen) Bounds() image.Rectangle { return f.img.Bounds() }

func (f *fakeScreen) Capture(r image.Rectangle) (image.Image, error) {
	f.regions = append(f.regions, r)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.img.(*image.RGBA).SubImage(r), nil
}

type fakeInput struct {
	calls []string
	err   error
}

func (f *fakeInput) Move(p image.Point) error {
	f.calls = append(f.calls, fmt.Sprintf("move %d,%d", p.X, p.Y))
	return f.err
}

func (f *fakeInput) Click(p image.Point, button string, double bool) error {
	f.calls = append(f.calls, fmt.Sprintf("click %d,%d %s double=%v", p.X, p.Y, button, double))
	return f.err
}

func (f *fakeInput) TypeText(text string, interval time.Duration) error {
	f.calls = append(f.calls, fmt.Sprintf("type %q %v", text, interval))
	return f.err
}

func (f *fakeInput) KeyTap(key string, modifiers ...string) error {
	f.calls = append(f.calls, "tap "+strings.Join(append(modifiers, key), "+"))
	return f.err
}

func (f *fakeInput) Drag(from image.Point, dx, dy int, d time.Duration) error {
	f.calls = append(f.calls, fmt.Sprintf("drag %d,%d by %d,%d over %v", from.X, from.Y, dx, dy, d))
	return f.err
}

type fakeMetrics struct {
	key    string
	found  bool
	passes int
}

func (f *fakeMetrics) RecordLocate(key string, found bool, passes int, _ time.Duration) {
	f.key, f.found, f.passes = key, found, passes
}

type fakeClock struct {
	t       time.Time
	slept   []time.Duration
	onSleep func()
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(_ context.Context, d time.Duration) bool {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	if c.onSleep != nil {
		c.onSleep()
	}
	return true
}

// ─── Helpers ────────────────────────────────────────────────────────

func mosaic(w, h, block int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			c := color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255}
			draw.Draw(img, image.Rect(bx, by, bx+block, by+block), &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
	return img
}

func crop(src *image.RGBA, r image.Rectangle) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), src, r.Min, draw.Src)
	return out
}

func paste(dst, src *image.RGBA, at image.Point) {
	draw.Draw(dst, src.Bounds().Add(at), src, image.Point{}, draw.Src)
}

func flat(w, h int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{level, level, level, 255}}, image.Point{}, draw.Src)
	return img
}

func tmpl(key, name string, img image.Image) vision.Template {
	return vision.Template{Key: key, Name: name, Image: vision.ToGray(img)}
}

type harness struct {
	loc      *Locator
	settings *fakeSettings
	screen   *fakeScreen
	input    *fakeInput
	metrics  *fakeMetrics
	clock    *fakeClock
	stop     *stop.Signal
}

func newHarness(t *testing.T, screen image.Image, templates fakeTemplates) *harness {
	t.Helper()
	h := &harness{
		settings: &fakeSettings{cfg: config.Automation{
			Confidence:   0.9,
			ActionDelay:  300 * time.Millisecond,
			TypeInterval: 50 * time.Millisecond,
			ErrorPolicy:  config.ErrorPolicyContinue,
		}},
		screen:  &fakeScreen{img: screen},
		input:   &fakeInput{},
		metrics: &fakeMetrics{},
		clock:   &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		stop:    stop.New(),
	}
	loc, err := New(Deps{
		Settings:  h.settings,
		Templates: templates,
		Screen:    h.screen,
		Input:     h.input,
		Stop:      h.stop,
		Metrics:   h.metrics,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	loc.now = h.clock.now
	loc.sleep = h.clock.sleep
	h.loc = loc
	return h
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestNew_MissingDependency(t *testing.T) {
	_, err := New(Deps{Settings: &fakeSettings{}})
	if !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("New() error = %v, want ErrMissingDependency", err)
	}
}

func TestFindAndClick_NoCandidates(t *testing.T) {
	h := newHarness(t, mosaic(64, 48, 8, 1), fakeTemplates{})

	got := h.loc.FindAndClick(context.Background(), "missing_btn", ClickOptions{Timeout: 5 * time.Second})

	if got != NotFound {
		t.Errorf("FindAndClick() = %v, want not_found", got)
	}
	if len(h.clock.slept) != 0 {
		t.Errorf("slept %v, want no polling", h.clock.slept)
	}
	if len(h.screen.regions) != 0 {
		t.Errorf("captured %d times, want 0", len(h.screen.regions))
	}
	if len(h.input.calls) != 0 {
		t.Errorf("input calls = %v, want none", h.input.calls)
	}
}

func TestFindAndClick_CandidateOrder(t *testing.T) {
	screen := mosaic(96, 64, 8, 2)
	present := crop(screen, image.Rect(40, 16, 64, 40))
	absent := mosaic(24, 24, 2, 99)

	h := newHarness(t, screen, fakeTemplates{
		"ok_btn": {tmpl("ok_btn", "ok_old.png", absent), tmpl("ok_btn", "ok_new.png", present)},
	})

	got := h.loc.FindAndClick(context.Background(), "ok_btn", ClickOptions{Timeout: 5 * time.Second})

	if got != Clicked {
		t.Fatalf("FindAndClick() = %v, want clicked", got)
	}
	want := []string{"click 52,28 left double=false"}
	if fmt.Sprint(h.input.calls) != fmt.Sprint(want) {
		t.Errorf("input calls = %v, want %v", h.input.calls, want)
	}
	// One debounce per candidate, then the action delay after the click.
	if len(h.screen.regions) != 2 {
		t.Errorf("captures = %d, want 2", len(h.screen.regions))
	}
	if last := h.clock.slept[len(h.clock.slept)-1]; last != 300*time.Millisecond {
		t.Errorf("last sleep = %v, want action delay", last)
	}
	if !h.metrics.found || h.metrics.passes != 1 || h.metrics.key != "ok_btn" {
		t.Errorf("metrics = %+v, want found in 1 pass", *h.metrics)
	}
}

func TestFindAndClick_FirstCandidateWins(t *testing.T) {
	screen := mosaic(96, 64, 8, 3)
	first := crop(screen, image.Rect(8, 8, 32, 32))
	second := crop(screen, image.Rect(56, 24, 80, 48))

	h := newHarness(t, screen, fakeTemplates{
		"btn": {tmpl("btn", "a.png", first), tmpl("btn", "b.png", second)},
	})

	loc, ok := h.loc.Locate(context.Background(), "btn", SearchOptions{Timeout: time.Second})
	if !ok {
		t.Fatal("Locate() found nothing")
	}
	if loc.Template != "a.png" {
		t.Errorf("Template = %q, want a.png", loc.Template)
	}
	if len(h.screen.regions) != 1 {
		t.Errorf("captures = %d, want 1", len(h.screen.regions))
	}
}

func TestFindAndClick_DoubleRightClick(t *testing.T) {
	screen := mosaic(64, 48, 8, 4)
	h := newHarness(t, screen, fakeTemplates{
		"item": {tmpl("item", "item.png", crop(screen, image.Rect(16, 8, 40, 32)))},
	})

	got := h.loc.FindAndClick(context.Background(), "item", ClickOptions{Button: "right", Double: true})

	if got != Clicked {
		t.Fatalf("FindAndClick() = %v, want clicked", got)
	}
	if h.input.calls[0] != "click 28,20 right double=true" {
		t.Errorf("click = %q", h.input.calls[0])
	}
}

func TestFindAndClick_Timeout(t *testing.T) {
	h := newHarness(t, mosaic(64, 48, 8, 5), fakeTemplates{
		"btn": {tmpl("btn", "btn.png", mosaic(16, 16, 2, 77))},
	})

	got := h.loc.FindAndClick(context.Background(), "btn", ClickOptions{Timeout: 2 * time.Second})

	if got != NotFound {
		t.Errorf("FindAndClick() = %v, want not_found", got)
	}
	if h.metrics.passes != 4 {
		t.Errorf("passes = %d, want 4", h.metrics.passes)
	}
	if h.metrics.found {
		t.Error("metrics recorded found")
	}
}

func TestFindAndClick_NoWait(t *testing.T) {
	screen := mosaic(64, 48, 8, 5)
	h := newHarness(t, screen, fakeTemplates{
		"btn": {tmpl("btn", "btn.png", crop(screen, image.Rect(8, 8, 32, 32)))},
	})

	got := h.loc.FindAndClick(context.Background(), "btn", ClickOptions{Timeout: NoWait})

	if got != NotFound {
		t.Errorf("FindAndClick() = %v, want not_found", got)
	}
	if len(h.screen.regions) != 0 || len(h.clock.slept) != 0 {
		t.Errorf("captures = %d, sleeps = %v, want none", len(h.screen.regions), h.clock.slept)
	}
	if len(h.input.calls) != 0 {
		t.Errorf("input calls = %v, want none", h.input.calls)
	}
	if h.metrics.key != "btn" || h.metrics.found || h.metrics.passes != 0 {
		t.Errorf("metrics = %+v, want a zero-pass miss", *h.metrics)
	}
}

func TestFindAndClick_StopBeforeFirstPass(t *testing.T) {
	h := newHarness(t, mosaic(64, 48, 8, 6), fakeTemplates{
		"btn": {tmpl("btn", "btn.png", mosaic(16, 16, 2, 77))},
	})
	h.stop.Set()

	got := h.loc.FindAndClick(context.Background(), "btn", ClickOptions{Timeout: 5 * time.Second})

	if got != Stopped {
		t.Errorf("FindAndClick() = %v, want stopped", got)
	}
	if len(h.screen.regions) != 0 {
		t.Errorf("captures = %d, want 0", len(h.screen.regions))
	}
}

func TestFindAndClick_StopDuringPolling(t *testing.T) {
	h := newHarness(t, mosaic(64, 48, 8, 7), fakeTemplates{
		"btn": {tmpl("btn", "btn.png", mosaic(16, 16, 2, 77))},
	})
	h.clock.onSleep = func() {
		if h.clock.slept[len(h.clock.slept)-1] == PollInterval {
			h.stop.Set()
		}
	}

	got := h.loc.FindAndClick(context.Background(), "btn", ClickOptions{Timeout: 30 * time.Second})

	if got != Stopped {
		t.Errorf("FindAndClick() = %v, want stopped", got)
	}
	if h.metrics.passes != 1 {
		t.Errorf("passes = %d, want 1", h.metrics.passes)
	}
}

func TestLocate_ConfidenceReadAtCallTime(t *testing.T) {
	// A white template over a flat 204 screen scores 1 - 51/255 = 0.8.
	h := newHarness(t, flat(48, 32, 204), fakeTemplates{
		"blank": {tmpl("blank", "blank.png", flat(16, 16, 255))},
	})
	ctx := context.Background()

	h.settings.setConfidence(0.9)
	if h.loc.WaitForImage(ctx, "blank", SearchOptions{Timeout: time.Second}) {
		t.Error("WaitForImage() at 0.9 = true, want false")
	}

	h.settings.setConfidence(0.7)
	if !h.loc.WaitForImage(ctx, "blank", SearchOptions{Timeout: time.Second}) {
		t.Error("WaitForImage() at 0.7 = false, want true")
	}

	h.settings.setConfidence(0.9)
	if !h.loc.WaitForImage(ctx, "blank", SearchOptions{Timeout: time.Second, Confidence: 0.75}) {
		t.Error("WaitForImage() with override 0.75 = false, want true")
	}
}

func TestLocate_ErrorPolicy(t *testing.T) {
	tests := []struct {
		name     string
		policy   string
		panicMsg string
		want     Outcome
		captures int
	}{
		{"continue keeps polling", config.ErrorPolicyContinue, "", NotFound, 2},
		{"abort fails fast", config.ErrorPolicyAbort, "", Failed, 1},
		{"panic is recovered", config.ErrorPolicyAbort, "display gone", Failed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, mosaic(64, 48, 8, 8), fakeTemplates{
				"btn": {tmpl("btn", "btn.png", mosaic(16, 16, 2, 77))},
			})
			h.settings.cfg.ErrorPolicy = tt.policy
			h.screen.err = errors.New("capture failed")
			h.screen.panicMsg = tt.panicMsg

			got := h.loc.FindAndClick(context.Background(), "btn", ClickOptions{Timeout: time.Second})

			if got != tt.want {
				t.Errorf("FindAndClick() = %v, want %v", got, tt.want)
			}
			if len(h.screen.regions) != tt.captures {
				t.Errorf("captures = %d, want %d", len(h.screen.regions), tt.captures)
			}
			if len(h.input.calls) != 0 {
				t.Errorf("input calls = %v, want none", h.input.calls)
			}
		})
	}
}

func TestTypeText(t *testing.T) {
	screen := mosaic(64, 48, 8, 9)
	h := newHarness(t, screen, fakeTemplates{
		"address_field": {tmpl("address_field", "field.png", crop(screen, image.Rect(8, 8, 32, 24)))},
	})

	ok := h.loc.TypeText(context.Background(), "17", TypeOptions{Key: "address_field", SelectAll: true})

	if !ok {
		t.Fatal("TypeText() = false")
	}
	want := []string{
		"click 20,16 left double=false",
		"tap ctrl+a",
		`type "17" 50ms`,
	}
	if fmt.Sprint(h.input.calls) != fmt.Sprint(want) {
		t.Errorf("input calls = %v, want %v", h.input.calls, want)
	}
	if !containsDuration(h.clock.slept, SelectAllPause) {
		t.Errorf("slept %v, want select-all pause", h.clock.slept)
	}
}

func TestTypeText_FieldMissing(t *testing.T) {
	h := newHarness(t, mosaic(64, 48, 8, 10), fakeTemplates{})

	if h.loc.TypeText(context.Background(), "17", TypeOptions{Key: "address_field"}) {
		t.Error("TypeText() = true, want false")
	}
	if len(h.input.calls) != 0 {
		t.Errorf("input calls = %v, want none", h.input.calls)
	}
}

func TestPressKey(t *testing.T) {
	h := newHarness(t, mosaic(64, 48, 8, 11), fakeTemplates{})

	if !h.loc.PressKey(context.Background(), "enter") {
		t.Fatal("PressKey() = false")
	}
	if h.input.calls[0] != "tap enter" {
		t.Errorf("call = %q, want tap enter", h.input.calls[0])
	}
	if h.clock.slept[0] != 300*time.Millisecond {
		t.Errorf("slept %v, want action delay", h.clock.slept)
	}

	h.stop.Set()
	if h.loc.PressKey(context.Background(), "enter") {
		t.Error("PressKey() while stopped = true")
	}
}

func TestDragSlider(t *testing.T) {
	screen := mosaic(96, 64, 8, 12)
	h := newHarness(t, screen, fakeTemplates{
		"slider": {tmpl("slider", "slider.png", crop(screen, image.Rect(16, 16, 40, 40)))},
	})
	// The slider search uses its own fixed confidence.
	h.settings.setConfidence(1.5)

	if !h.loc.DragSlider(context.Background(), "slider", 120, 0, time.Second) {
		t.Fatal("DragSlider() = false")
	}
	want := []string{"move 28,28", "drag 28,28 by 120,0 over 1s"}
	if fmt.Sprint(h.input.calls) != fmt.Sprint(want) {
		t.Errorf("input calls = %v, want %v", h.input.calls, want)
	}
}

func TestIsSliderAlreadyMoved_DefaultTimeout(t *testing.T) {
	h := newHarness(t, mosaic(64, 48, 8, 13), fakeTemplates{
		"slider_moved": {tmpl("slider_moved", "moved.png", mosaic(16, 16, 2, 55))},
	})

	if h.loc.IsSliderAlreadyMoved(context.Background(), "slider_moved", 0, 0) {
		t.Error("IsSliderAlreadyMoved() = true, want false")
	}
	// 5s of 0.5s passes.
	if h.metrics.passes != 10 {
		t.Errorf("passes = %d, want 10", h.metrics.passes)
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{NotFound: "not_found", Clicked: "clicked", Stopped: "stopped", Failed: "failed"} {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", o, got, want)
		}
	}
}

func containsDuration(ds []time.Duration, d time.Duration) bool {
	for _, v := range ds {
		if v == d {
			return true
		}
	}
	return false
}
